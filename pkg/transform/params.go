// Package transform resizes and re-encodes images.
package transform

const (
	// DefaultQuality is used when no quality is requested.
	DefaultQuality = 75

	// MinQuality and MaxQuality bound a valid quality.
	MinQuality = 0
	MaxQuality = 100

	// ContentType is the media type of every encoded output.
	ContentType = "image/webp"
)

// Params describes a requested derivative.
type Params struct {
	// Width is the target width in pixels; 0 means no resize
	Width int

	// Quality is the encoder quality; outside [MinQuality, MaxQuality]
	// the quality adjustment is skipped
	Quality int
}

// DefaultParams returns params with no resize and the default quality.
func DefaultParams() Params {
	return Params{Quality: DefaultQuality}
}

// HasWidth reports whether a resize was requested.
func (p Params) HasWidth() bool {
	return p.Width > 0
}

// QualityValid reports whether Quality is in range.
func (p Params) QualityValid() bool {
	return p.Quality >= MinQuality && p.Quality <= MaxQuality
}
