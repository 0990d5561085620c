package prediction

import (
	"encoding/json"
	"fmt"
	"strconv"

	"gonum.org/v1/gonum/floats"
)

// CorrelationIDs are caller-supplied identifiers echoed in the result.
type CorrelationIDs struct {
	PredictionID string
	Target       string
}

// Result is the outcome of one classification.
type Result struct {
	PredictionID  string
	Target        string
	Top           Probability
	Probabilities Distribution
}

type resultJSON struct {
	PredictionID  string             `json:"prediction_id"`
	Target        string             `json:"target"`
	Label         string             `json:"label"`
	Result        map[string]float32 `json:"result"`
	Probabilities Distribution       `json:"probabilities"`
}

func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		PredictionID:  r.PredictionID,
		Target:        r.Target,
		Label:         r.Top.Label,
		Result:        map[string]float32{strconv.Itoa(int(r.Top.Category)): r.Top.Value},
		Probabilities: r.Probabilities,
	})
}

// Assemble picks the arg-max of dist; the lowest ordinal wins a tie. dist
// must be non-empty, which LabelSet.Map guarantees.
func Assemble(dist Distribution, ids CorrelationIDs) *Result {
	if len(dist) == 0 {
		panic("prediction: Assemble called with an empty distribution")
	}

	values := make([]float64, len(dist))
	for i, p := range dist {
		values[i] = float64(p.Value)
	}

	return &Result{
		PredictionID:  ids.PredictionID,
		Target:        ids.Target,
		Top:           dist[floats.MaxIdx(values)],
		Probabilities: dist,
	}
}

// String is used in log lines.
func (r *Result) String() string {
	return fmt.Sprintf("%s=%.4f", r.Top.Label, r.Top.Value)
}
