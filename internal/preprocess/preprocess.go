// Package preprocess converts decoded images into the fixed-size float tensor
// the classifier expects.
package preprocess

import (
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/fruitlens/fruit-classifier/internal/imagesource"
	"github.com/nfnt/resize"
)

const (
	Size     = 224
	Channels = 3
)

// Tensor is a single image batch in NHWC order: shape (1, Size, Size, Channels)
// with every value in [0, 1].
type Tensor struct {
	Shape [4]int
	Data  []float32
}

// Shape is the only tensor shape ToTensor produces.
var Shape = [4]int{1, Size, Size, Channels}

// Len is the number of values in a tensor of Shape.
const Len = Size * Size * Channels

// Valid reports whether t has the fixed shape and a matching data length.
func (t Tensor) Valid() bool {
	return t.Shape == Shape && len(t.Data) == Len
}

// ToTensor normalises img to RGB, resizes it to Size x Size with bilinear
// interpolation and rescales 8-bit channel values to [0, 1].
func ToTensor(img image.Image) (Tensor, error) {
	if img == nil {
		return Tensor{}, &imagesource.DecodeError{Source: "preprocess", Err: errors.New("nil image")}
	}
	if b := img.Bounds(); b.Empty() {
		return Tensor{}, &imagesource.DecodeError{Source: "preprocess", Err: fmt.Errorf("empty image %v", b)}
	}

	resized := resize.Resize(Size, Size, toRGBA(img), resize.Bilinear)
	rgba := toRGBA(resized)

	data := make([]float32, Len)
	b := rgba.Bounds()
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := rgba.Pix[(y-b.Min.Y)*rgba.Stride:]
		for x := 0; x < b.Dx(); x++ {
			px := row[x*4 : x*4+3]
			data[i] = float32(px[0]) / 255
			data[i+1] = float32(px[1]) / 255
			data[i+2] = float32(px[2]) / 255
			i += Channels
		}
	}
	return Tensor{Shape: Shape, Data: data}, nil
}

// toRGBA redraws any colour model (grey, palette, YCbCr, NRGBA...) as
// premultiplied RGBA so transparent areas end up black and alpha can be
// dropped.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// CHW returns a copy of t laid out as (1, Channels, Size, Size) for models
// that take planar input.
func (t Tensor) CHW() []float32 {
	out := make([]float32, len(t.Data))
	plane := Size * Size
	for p := 0; p < plane; p++ {
		for c := 0; c < Channels; c++ {
			out[c*plane+p] = t.Data[p*Channels+c]
		}
	}
	return out
}
