package testutil

import (
	"bytes"
	"context"
	"sync"

	"github.com/Sternrassler/image-optimizer/pkg/transform"
)

// ScaleEngine is a deterministic transform.Engine whose output length is
// len(input)*Numerator/Denominator. Output bytes are derived from the input so
// identical inputs give identical outputs.
type ScaleEngine struct {
	Numerator   int
	Denominator int

	// Err, when set, is returned by every Transform.
	Err error

	mu    sync.Mutex
	calls []transform.Params
}

// NewHalvingEngine returns an engine that halves its input.
func NewHalvingEngine() *ScaleEngine {
	return &ScaleEngine{Numerator: 1, Denominator: 2}
}

// NewInflatingEngine returns an engine that doubles its input.
func NewInflatingEngine() *ScaleEngine {
	return &ScaleEngine{Numerator: 2, Denominator: 1}
}

// Transform implements transform.Engine.
func (e *ScaleEngine) Transform(ctx context.Context, data []byte, p transform.Params) ([]byte, error) {
	e.mu.Lock()
	e.calls = append(e.calls, p)
	e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.Err != nil {
		return nil, e.Err
	}

	size := len(data) * e.Numerator / e.Denominator
	out := bytes.Repeat([]byte{'w'}, size)
	if size > 0 && len(data) > 0 {
		out[0] = data[0]
	}
	return out, nil
}

// Calls returns the params of every Transform call.
func (e *ScaleEngine) Calls() []transform.Params {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]transform.Params, len(e.calls))
	copy(out, e.calls)
	return out
}
