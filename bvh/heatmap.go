package bvh

import (
	"image"
	"image/color"
	"io"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/chewxy/math32"
	"golang.org/x/image/bmp"
)

// MaxHeatmapSize is the largest width or height accepted by WriteHeatmap.
const MaxHeatmapSize = 4096

// WriteHeatmap renders the tree seen from above (X right, Z down) as a BMP
// image. The red channel is the number of leaves covering a pixel relative to
// the most covered one, internal node outlines are drawn in green.
func (t *Tree) WriteHeatmap(w io.Writer, width, height int) error {
	if width <= 0 || height <= 0 || width > MaxHeatmapSize || height > MaxHeatmapSize {
		return errors.New("invalid heatmap size").
			WithType(ErrTypeInvalidHeatmapSize).
			WithTag("width", width).
			WithTag("height", height)
	}

	frame := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 3; i < len(frame.Pix); i += 4 {
		frame.Pix[i] = 255
	}

	if t.root != nil {
		p := newHeatmapProjection(t.root.box, width, height)
		density := make([]int, width*height)
		maxDensity := 0

		t.walk(func(n *Node) bool {
			if !n.IsLeaf() {
				return true
			}

			x1, y1, x2, y2 := p.rect(n.box)
			for y := y1; y <= y2; y++ {
				for x := x1; x <= x2; x++ {
					d := density[y*width+x] + 1
					density[y*width+x] = d
					if d > maxDensity {
						maxDensity = d
					}
				}
			}
			return true
		})

		for i, d := range density {
			if d != 0 {
				frame.Pix[i*4] = uint8(55 + 200*d/maxDensity)
			}
		}

		outline := color.RGBA{0, 255, 0, 255}
		t.walk(func(n *Node) bool {
			if !n.IsLeaf() {
				x1, y1, x2, y2 := p.rect(n.box)
				for x := x1; x <= x2; x++ {
					frame.SetRGBA(x, y1, outline)
					frame.SetRGBA(x, y2, outline)
				}
				for y := y1; y <= y2; y++ {
					frame.SetRGBA(x1, y, outline)
					frame.SetRGBA(x2, y, outline)
				}
			}
			return true
		})
	}

	if err := bmp.Encode(w, frame); err != nil {
		return errors.New("encoding heatmap failed").Wrap(err)
	}
	return nil
}

type heatmapProjection struct {
	origin        [2]float32
	scaleX        float32
	scaleY        float32
	width, height int
}

func newHeatmapProjection(bounds Box, width, height int) heatmapProjection {
	p := heatmapProjection{
		origin: [2]float32{bounds.Lower[0], bounds.Lower[2]},
		width:  width,
		height: height,
	}

	size := bounds.Size()
	if size[0] > 0 {
		p.scaleX = float32(width-1) / size[0]
	}
	if size[2] > 0 {
		p.scaleY = float32(height-1) / size[2]
	}
	return p
}

// rect returns the pixel rectangle covered by b, clamped to the image.
func (p heatmapProjection) rect(b Box) (x1, y1, x2, y2 int) {
	x1 = p.pixel(b.Lower[0]-p.origin[0], p.scaleX, p.width)
	x2 = p.pixel(b.Upper[0]-p.origin[0], p.scaleX, p.width)
	y1 = p.pixel(b.Lower[2]-p.origin[1], p.scaleY, p.height)
	y2 = p.pixel(b.Upper[2]-p.origin[1], p.scaleY, p.height)
	return x1, y1, x2, y2
}

func (p heatmapProjection) pixel(v, scale float32, size int) int {
	i := int(math32.Floor(v * scale))
	if i < 0 {
		return 0
	}
	if i >= size {
		return size - 1
	}
	return i
}
