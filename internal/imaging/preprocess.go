package imaging

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/nfnt/resize"

	"github.com/trashscanner/predictor/internal/model"
)

const channels = 3

var filters = map[string]resize.InterpolationFunction{
	"nearest":  resize.NearestNeighbor,
	"bilinear": resize.Bilinear,
	"bicubic":  resize.Bicubic,
	"mitchell": resize.MitchellNetravali,
	"lanczos2": resize.Lanczos2,
	"lanczos3": resize.Lanczos3,
}

// ParseFilter maps a filter name to its nfnt/resize kernel.
func ParseFilter(name string) (resize.InterpolationFunction, error) {
	f, ok := filters[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unknown resize filter %q", name)
	}
	return f, nil
}

// Preprocessor converts decoded images to [1, 3, H, W] float32 tensors with
// values in [0, 1].
type Preprocessor struct {
	height int
	width  int
	filter resize.InterpolationFunction
}

func NewPreprocessor(height, width int, filter resize.InterpolationFunction) (*Preprocessor, error) {
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("target size must be positive, got %dx%d", width, height)
	}
	return &Preprocessor{height: height, width: width, filter: filter}, nil
}

// Shape is the tensor shape Preprocess produces.
func (p *Preprocessor) Shape() []int64 {
	return []int64{1, channels, int64(p.height), int64(p.width)}
}

func (p *Preprocessor) Preprocess(img image.Image) (model.Tensor, error) {
	if img == nil {
		return model.Tensor{}, fmt.Errorf("%w: nil image", ErrPreprocess)
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return model.Tensor{}, fmt.Errorf("%w: image has zero size %dx%d", ErrPreprocess, b.Dx(), b.Dy())
	}

	resized := resize.Resize(uint(p.width), uint(p.height), toRGB(img), p.filter)

	bounds := resized.Bounds()
	if bounds.Dx() != p.width || bounds.Dy() != p.height {
		return model.Tensor{}, fmt.Errorf("%w: resize produced %dx%d, want %dx%d",
			ErrPreprocess, bounds.Dx(), bounds.Dy(), p.width, p.height)
	}

	tensor := model.NewTensor(p.Shape()...)
	plane := p.width * p.height
	for y := 0; y < p.height; y++ {
		for x := 0; x < p.width; x++ {
			c := color.RGBAModel.Convert(resized.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.RGBA)

			i := y*p.width + x
			tensor.Data[i] = float32(c.R) / 255.0
			tensor.Data[plane+i] = float32(c.G) / 255.0
			tensor.Data[2*plane+i] = float32(c.B) / 255.0
		}
	}

	return tensor, nil
}

// toRGB copies img into an opaque RGBA image holding each pixel's stored
// non-premultiplied color. Gray and palette pixels expand to R=G=B.
func toRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := out.PixOffset(x, y)
			out.Pix[i+0] = c.R
			out.Pix[i+1] = c.G
			out.Pix[i+2] = c.B
			out.Pix[i+3] = 0xff
		}
	}
	return out
}
