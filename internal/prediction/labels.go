package prediction

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
)

// DefaultClasses is the label order of the trash classifier when the model
// ships without a metadata file. Ordinals are wire-visible.
var DefaultClasses = []string{
	"cardboard",
	"glass",
	"metal",
	"paper",
	"plastic",
	"trash",
	"undefined",
}

// Category is a label's ordinal in its LabelSet.
type Category int

// LabelSet is the ordered, immutable list of labels bound to model output
// positions.
type LabelSet struct {
	names []string
}

func NewLabelSet(names []string) (LabelSet, error) {
	if len(names) == 0 {
		return LabelSet{}, fmt.Errorf("label set is empty")
	}
	seen := make(map[string]bool, len(names))
	for i, n := range names {
		if n == "" {
			return LabelSet{}, fmt.Errorf("label %d is empty", i)
		}
		if seen[n] {
			return LabelSet{}, fmt.Errorf("duplicate label %q", n)
		}
		seen[n] = true
	}
	return LabelSet{names: slices.Clone(names)}, nil
}

func (l LabelSet) Len() int { return len(l.names) }

func (l LabelSet) Name(c Category) string { return l.names[c] }

func (l LabelSet) Names() []string { return slices.Clone(l.names) }

// CheckWidth fails with ErrShapeMismatch unless the model emits exactly one
// score per label.
func (l LabelSet) CheckWidth(width int) error {
	if width != len(l.names) {
		return fmt.Errorf("%w: model emits %d scores, %d labels declared", ErrShapeMismatch, width, len(l.names))
	}
	return nil
}

// Probability is one entry of a Distribution.
type Probability struct {
	Category Category
	Label    string
	Value    float32
}

// Distribution holds one probability per label, in label order.
type Distribution []Probability

// Map zips scores with labels by position.
func (l LabelSet) Map(scores []float32) (Distribution, error) {
	if err := l.CheckWidth(len(scores)); err != nil {
		return nil, err
	}
	dist := make(Distribution, len(scores))
	for i, v := range scores {
		dist[i] = Probability{Category: Category(i), Label: l.names[i], Value: v}
	}
	return dist, nil
}

// Values returns the probabilities in label order.
func (d Distribution) Values() []float32 {
	out := make([]float32, len(d))
	for i, p := range d {
		out[i] = p.Value
	}
	return out
}

// MarshalJSON encodes the distribution as {"<ordinal>": probability}.
func (d Distribution) MarshalJSON() ([]byte, error) {
	m := make(map[string]float32, len(d))
	for _, p := range d {
		m[strconv.Itoa(int(p.Category))] = p.Value
	}
	return json.Marshal(m)
}
