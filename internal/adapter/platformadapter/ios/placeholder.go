package ios

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/nfnt/resize"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// placeholderBaseWidth/Height is the canvas the annotation is drawn on;
// the screenshot fallback passes no resolution (lastKnownResolution
// returns 0, 0), so the placeholder is returned at this size (spec.md
// §4.1's final fallback: "a generated placeholder image annotated with
// device name and model").
const (
	placeholderBaseWidth  = 400
	placeholderBaseHeight = 700
)

// generatePlaceholder renders a flat-color canvas annotated with name
// and model, then scales it to (width, height) if both are positive.
func generatePlaceholder(name, model string, width, height int) ([]byte, error) {
	canvas := image.NewRGBA(image.Rect(0, 0, placeholderBaseWidth, placeholderBaseHeight))
	bg := color.RGBA{R: 45, G: 45, B: 48, A: 255}
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: bg}, image.Point{}, draw.Src)

	drawLabel(canvas, name, placeholderBaseHeight/2-20)
	drawLabel(canvas, model, placeholderBaseHeight/2+10)

	var out image.Image = canvas
	if width > 0 && height > 0 {
		out = resize.Resize(uint(width), uint(height), canvas, resize.Lanczos3)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawLabel(dst draw.Image, text string, y int) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(16, y),
	}
	d.DrawString(text)
}
