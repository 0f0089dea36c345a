package transform

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gen2brain/webp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Engine turns source bytes into an encoded derivative.
// Implementations must be deterministic and safe for concurrent use.
type Engine interface {
	Transform(ctx context.Context, data []byte, p Params) ([]byte, error)
}

// WebPEngine decodes JPEG, PNG, GIF and WebP, downsizes and encodes lossy WebP.
type WebPEngine struct {
	logger zerolog.Logger
}

// NewWebPEngine creates a new WebPEngine.
func NewWebPEngine() *WebPEngine {
	return &WebPEngine{
		logger: log.With().Str("component", "transform").Logger(),
	}
}

// Transform decodes data, resizes it to p.Width (maintaining aspect ratio, never
// upscaling) and encodes it as WebP. An out-of-range quality falls back to
// DefaultQuality; the resize is still applied.
func (e *WebPEngine) Transform(ctx context.Context, data []byte, p Params) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resized := img
	if p.HasWidth() {
		resized = resize(img, p.Width)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	quality := p.Quality
	if !p.QualityValid() {
		e.logger.Debug().Int("quality", p.Quality).Msg("Quality out of range, using encoder default")
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, resized, webp.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}

	e.logger.Debug().
		Str("format", format).
		Int("width", resized.Bounds().Dx()).
		Int("height", resized.Bounds().Dy()).
		Int("quality", quality).
		Int("bytes", buf.Len()).
		Msg("Image transformed")

	return buf.Bytes(), nil
}

// resize scales img down to width, keeping the aspect ratio.
// Images already narrower than width are returned unchanged.
func resize(img image.Image, width int) image.Image {
	bounds := img.Bounds()
	origWidth := bounds.Dx()
	origHeight := bounds.Dy()

	if origWidth <= width {
		return img
	}

	newHeight := origHeight * width / origWidth
	if newHeight < 1 {
		newHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
