// Package warm precomputes derivatives so later requests are cache hits.
//
// A Warmer runs each request through the pipeline on a bounded worker pool.
// Items are independent: a failing item is recorded in its Outcome and the
// remaining items still run.
//
// Example usage:
//
//	w := warm.New(p, warm.DefaultConfig())
//	outcomes, err := w.Warm(ctx, []warm.Request{
//		{Source: "photos/cat.jpg", Width: 300},
//		{Source: "https://example.com/dog.png", Width: 640, Quality: warm.Quality(60)},
//	})
//
// Warm returns an Outcome per request, in request order, plus the first item
// error encountered.
package warm
