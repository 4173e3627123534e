package fallback

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/compumacy/visolearn-local/internal/domain"
)

const (
	placeholderSize   = 512
	placeholderBorder = 10
)

// PlaceholderImage renders a flat bordered PNG standing in for a generated
// image and returns it as an inline data URL, the same envelope the remote
// uses for its images. The pixels are fixed so the output is deterministic.
func PlaceholderImage() (domain.ImageData, error) {
	img := image.NewRGBA(image.Rect(0, 0, placeholderSize, placeholderSize))

	fill := color.RGBA{R: 240, G: 240, B: 240, A: 255}
	border := color.RGBA{R: 180, G: 180, B: 180, A: 255}
	marker := color.RGBA{R: 200, G: 60, B: 60, A: 255}

	draw.Draw(img, img.Bounds(), &image.Uniform{C: fill}, image.Point{}, draw.Src)

	b := img.Bounds()
	frame := image.Rect(b.Min.X+placeholderBorder, b.Min.Y+placeholderBorder,
		b.Max.X-placeholderBorder, b.Max.Y-placeholderBorder)
	for x := b.Min.X; x < b.Max.X; x++ {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			if !image.Pt(x, y).In(frame) {
				img.Set(x, y, border)
			}
		}
	}

	// A red strip along the bottom marks the image as locally generated,
	// so a degraded session is visually unmistakable even without the UI
	// banner.
	strip := image.Rect(frame.Min.X, frame.Max.Y-24, frame.Max.X, frame.Max.Y)
	draw.Draw(img, strip, &image.Uniform{C: marker}, image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return domain.ImageData{}, err
	}

	return domain.ImageData{
		URL:      "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType: "image/png",
		Size:     buf.Len(),
	}, nil
}
