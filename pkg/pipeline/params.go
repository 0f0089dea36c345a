package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Sternrassler/image-optimizer/pkg/transform"
)

// invalidQuality marks an unparsable quality; it is out of range, so the
// engine skips the quality adjustment.
const invalidQuality = -1

// ParseParams converts boundary strings into transform params.
//
// An empty width means no resize; a width that is not a positive integer is an
// invalid request. An empty quality means transform.DefaultQuality; an
// unparsable or out-of-range quality is passed through and never an error.
func ParseParams(width, quality string) (transform.Params, error) {
	params := transform.DefaultParams()

	if w := strings.TrimSpace(width); w != "" {
		n, err := strconv.Atoi(w)
		if err != nil || n <= 0 {
			return params, &Error{
				Kind: KindInvalidRequest,
				Err:  fmt.Errorf("width must be a positive integer, got %q", width),
			}
		}
		params.Width = n
	}

	if q := strings.TrimSpace(quality); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			n = invalidQuality
		}
		params.Quality = n
	}

	return params, nil
}
