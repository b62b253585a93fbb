package imageguard

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"math"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var (
	watermarkFontOnce sync.Once
	watermarkFont     *opentype.Font
	watermarkFontErr  error
)

func loadWatermarkFont() (*opentype.Font, error) {
	watermarkFontOnce.Do(func() {
		watermarkFont, watermarkFontErr = opentype.Parse(gobold.TTF)
	})
	return watermarkFont, watermarkFontErr
}

// Watermark renders text onto the image: a black shadow layer offset by
// (+2,+2) under a white foreground, centered horizontally with the baseline
// at 60% of the height, re-encoded as JPEG quality 95. Any failure returns
// the original bytes untouched; watermarking never fails a dispatch.
func (g *Guard) Watermark(data []byte, text string) []byte {
	if text == "" {
		return data
	}

	out, err := renderWatermark(data, text)
	if err != nil {
		g.log.Warn().Err(err).Msg("imageguard: watermark failed, sending original")
		return data
	}
	return out
}

func renderWatermark(data []byte, text string) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	b := src.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), src, b.Min, draw.Src)

	f, err := loadWatermarkFont()
	if err != nil {
		return nil, err
	}

	size := math.Round(0.07 * float64(b.Dx()))
	if size < 12 {
		size = 12
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, err
	}
	defer face.Close()

	drawer := &font.Drawer{Dst: canvas, Face: face}
	textWidth := drawer.MeasureString(text).Ceil()
	x := (b.Dx() - textWidth) / 2
	y := int(0.6 * float64(b.Dy()))

	// shadow first, then foreground
	drawer.Src = image.NewUniform(color.NRGBA{A: 80})
	drawer.Dot = fixed.P(x+2, y+2)
	drawer.DrawString(text)

	drawer.Src = image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 100})
	drawer.Dot = fixed.P(x, y)
	drawer.DrawString(text)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: 95}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
