package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/image-optimizer/internal/testutil"
	"github.com/Sternrassler/image-optimizer/pkg/cache"
	"github.com/Sternrassler/image-optimizer/pkg/pipeline"
	"github.com/Sternrassler/image-optimizer/pkg/source"
	"github.com/Sternrassler/image-optimizer/pkg/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "photos/cat.jpg"

type fixture struct {
	pipeline *pipeline.Pipeline
	objects  *testutil.MemoryObjects
	engine   *testutil.ScaleEngine
	store    *testutil.RecordingStore
	original []byte
}

func newFixture(t *testing.T, engine *testutil.ScaleEngine, store cache.Store, mode pipeline.FallbackCaching) *fixture {
	t.Helper()

	objects := testutil.NewMemoryObjects()
	original := bytes.Repeat([]byte{0x42}, 200)
	objects.Put(testKey, original)

	cfg := source.DefaultConfig()
	cfg.Objects = objects

	recording := testutil.NewRecordingStore(store)
	p, err := pipeline.New(pipeline.Config{
		Resolver:        source.NewResolver(cfg),
		Engine:          engine,
		Cache:           recording,
		FallbackCaching: mode,
	})
	require.NoError(t, err)

	return &fixture{
		pipeline: p,
		objects:  objects,
		engine:   engine,
		store:    recording,
		original: original,
	}
}

func TestServe_MissThenHit(t *testing.T) {
	f := newFixture(t, testutil.NewHalvingEngine(), nil, "")
	ctx := context.Background()
	params := transform.Params{Width: 300, Quality: 80}

	first, err := f.pipeline.Serve(ctx, testKey, params)
	require.NoError(t, err)
	assert.Equal(t, pipeline.CacheMiss, first.CacheStatus)
	assert.Equal(t, transform.ContentType, first.ContentType)
	assert.Equal(t, 200, first.OriginalSize)
	assert.Equal(t, 100, first.OptimizedSize)
	assert.Len(t, first.Data, 100)
	assert.False(t, first.ServedOriginal)
	assert.InDelta(t, 50.0, first.SavingsPercent(), 0.001)

	second, err := f.pipeline.Serve(ctx, testKey, params)
	require.NoError(t, err)
	assert.Equal(t, pipeline.CacheHit, second.CacheStatus)
	assert.Equal(t, first.Data, second.Data)

	assert.Len(t, f.engine.Calls(), 1, "hit must not transform")
	assert.Equal(t, 1, f.objects.GetCount(), "hit must not fetch")
	assert.Equal(t, []cache.Key{cache.DerivativeKey(testKey, 300, 80)}, f.store.Sets())
}

func TestServe_EmptySource(t *testing.T) {
	f := newFixture(t, testutil.NewHalvingEngine(), nil, "")

	_, err := f.pipeline.Serve(context.Background(), "", transform.DefaultParams())
	require.Error(t, err)
	assert.True(t, errors.Is(err, pipeline.ErrEmptySource))
	assert.Equal(t, pipeline.KindInvalidRequest, pipeline.KindOf(err))
	assert.Equal(t, http.StatusBadRequest, pipeline.StatusCode(err))
	assert.Empty(t, f.engine.Calls())
	assert.Zero(t, f.objects.GetCount())
}

func TestServe_DisabledCacheNeverHits(t *testing.T) {
	f := newFixture(t, testutil.NewHalvingEngine(), cache.Disabled{}, "")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := f.pipeline.Serve(ctx, testKey, transform.DefaultParams())
		require.NoError(t, err)
		assert.Equal(t, pipeline.CacheMiss, result.CacheStatus)
		assert.Len(t, result.Data, 100)
	}
	assert.Len(t, f.engine.Calls(), 3)
	assert.False(t, f.pipeline.CacheEnabled())
}

func TestServe_FallbackServesOriginal(t *testing.T) {
	f := newFixture(t, testutil.NewInflatingEngine(), nil, "")
	ctx := context.Background()
	params := transform.Params{Width: 100, Quality: 80}

	result, err := f.pipeline.Serve(ctx, testKey, params)
	require.NoError(t, err)
	assert.Equal(t, pipeline.CacheMiss, result.CacheStatus)
	assert.True(t, result.ServedOriginal)
	assert.Equal(t, f.original, result.Data)
	assert.Equal(t, 200, result.OriginalSize)
	assert.Equal(t, 400, result.OptimizedSize)
	assert.Less(t, result.SavingsPercent(), 0.0)

	// The cache holds the transformed bytes, so the hit differs from the miss.
	hit, err := f.pipeline.Serve(ctx, testKey, params)
	require.NoError(t, err)
	assert.Equal(t, pipeline.CacheHit, hit.CacheStatus)
	assert.Len(t, hit.Data, 400)
}

func TestServe_FallbackCacheServed(t *testing.T) {
	f := newFixture(t, testutil.NewInflatingEngine(), nil, pipeline.CacheServed)
	ctx := context.Background()

	miss, err := f.pipeline.Serve(ctx, testKey, transform.DefaultParams())
	require.NoError(t, err)
	assert.True(t, miss.ServedOriginal)

	hit, err := f.pipeline.Serve(ctx, testKey, transform.DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, pipeline.CacheHit, hit.CacheStatus)
	assert.Equal(t, f.original, hit.Data)
}

func TestServe_EqualSizeServesTransformed(t *testing.T) {
	f := newFixture(t, &testutil.ScaleEngine{Numerator: 1, Denominator: 1}, nil, "")

	result, err := f.pipeline.Serve(context.Background(), testKey, transform.DefaultParams())
	require.NoError(t, err)
	assert.False(t, result.ServedOriginal)
	assert.Zero(t, result.SavingsPercent())
}

func TestServe_Errors(t *testing.T) {
	tests := []struct {
		name       string
		src        string
		setup      func(f *fixture)
		wantKind   pipeline.Kind
		wantStatus int
		wantCalls  int
	}{
		{
			name:       "missing store key",
			src:        "nonexistent-key",
			wantKind:   pipeline.KindNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "object store failure",
			src:        testKey,
			setup:      func(f *fixture) { f.objects.Err = errors.New("connection reset") },
			wantKind:   pipeline.KindUpstream,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "transform failure",
			src:        testKey,
			setup:      func(f *fixture) { f.engine.Err = errors.New("corrupt image") },
			wantKind:   pipeline.KindTransform,
			wantStatus: http.StatusInternalServerError,
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testutil.NewHalvingEngine(), nil, "")
			if tt.setup != nil {
				tt.setup(f)
			}

			result, err := f.pipeline.Serve(context.Background(), tt.src, transform.DefaultParams())
			require.Error(t, err)
			assert.Nil(t, result)
			assert.Equal(t, tt.wantKind, pipeline.KindOf(err))
			assert.Equal(t, tt.wantStatus, pipeline.StatusCode(err))
			assert.Len(t, f.engine.Calls(), tt.wantCalls)
			assert.Empty(t, f.store.Sets(), "failed requests must not write the cache")

			var pErr *pipeline.Error
			require.True(t, errors.As(err, &pErr))
			assert.Equal(t, tt.src, pErr.Source)
		})
	}
}

func TestServe_QualityOutOfRangePassesThrough(t *testing.T) {
	f := newFixture(t, testutil.NewHalvingEngine(), nil, "")
	params := transform.Params{Width: 100, Quality: 150}

	result, err := f.pipeline.Serve(context.Background(), testKey, params)
	require.NoError(t, err)
	assert.Equal(t, pipeline.CacheMiss, result.CacheStatus)

	calls := f.engine.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 150, calls[0].Quality)
	assert.Equal(t, []cache.Key{cache.DerivativeKey(testKey, 100, 150)}, f.store.Sets())
}

func TestServe_DistinctParamsUseDistinctEntries(t *testing.T) {
	f := newFixture(t, testutil.NewHalvingEngine(), nil, "")
	ctx := context.Background()

	for _, width := range []int{100, 200} {
		result, err := f.pipeline.Serve(ctx, testKey, transform.Params{Width: width, Quality: 75})
		require.NoError(t, err)
		assert.Equal(t, pipeline.CacheMiss, result.CacheStatus, "width %d", width)
	}
	assert.Len(t, f.store.Sets(), 2)
}

func TestServe_CacheWriteFailureIgnored(t *testing.T) {
	f := newFixture(t, testutil.NewHalvingEngine(), nil, "")
	f.store.SetErr = errors.New("OOM command not allowed")
	ctx := context.Background()

	result, err := f.pipeline.Serve(ctx, testKey, transform.DefaultParams())
	require.NoError(t, err)
	assert.Len(t, result.Data, 100)

	again, err := f.pipeline.Serve(ctx, testKey, transform.DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, pipeline.CacheMiss, again.CacheStatus)
}

func TestServe_RemoteSource(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetImage("/img.png", bytes.Repeat([]byte{0x01}, 64))

	p, err := pipeline.New(pipeline.Config{
		Resolver: source.NewResolver(source.DefaultConfig()),
		Engine:   testutil.NewHalvingEngine(),
		Cache:    cache.NewMemoryStore(16, time.Hour),
	})
	require.NoError(t, err)

	src := origin.URL() + "/img.png"
	result, err := p.Serve(context.Background(), src, transform.DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, 64, result.OriginalSize)
	assert.Equal(t, 32, result.OptimizedSize)

	origin.SetResponse("/missing.png", testutil.MockOriginResponse{StatusCode: http.StatusNotFound})
	_, err = p.Serve(context.Background(), origin.URL()+"/missing.png", transform.DefaultParams())
	assert.Equal(t, http.StatusNotFound, pipeline.StatusCode(err))

	origin.SetResponse("/broken.png", testutil.NewServerErrorResponse())
	_, err = p.Serve(context.Background(), origin.URL()+"/broken.png", transform.DefaultParams())
	assert.Equal(t, pipeline.KindUpstream, pipeline.KindOf(err))
}

func TestServe_SingleFlightCoalescesMisses(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	resp := testutil.NewImageResponse(bytes.Repeat([]byte{0x07}, 100))
	resp.Delay = 300 * time.Millisecond
	origin.SetResponse("/slow.png", resp)

	engine := testutil.NewHalvingEngine()
	p, err := pipeline.New(pipeline.Config{
		Resolver:     source.NewResolver(source.DefaultConfig()),
		Engine:       engine,
		Cache:        cache.Disabled{},
		SingleFlight: true,
	})
	require.NoError(t, err)

	const callers = 5
	src := origin.URL() + "/slow.png"
	results := make([]*pipeline.Result, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.Serve(context.Background(), src, transform.DefaultParams())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Len(t, results[i].Data, 50)
	}
	assert.Equal(t, 1, origin.GetRequestCount())
	assert.Len(t, engine.Calls(), 1)
}

func TestServeRequest(t *testing.T) {
	f := newFixture(t, testutil.NewHalvingEngine(), nil, "")
	ctx := context.Background()

	result, err := f.pipeline.ServeRequest(ctx, testKey, "300", "")
	require.NoError(t, err)
	assert.Equal(t, pipeline.CacheMiss, result.CacheStatus)
	assert.Equal(t, []transform.Params{{Width: 300, Quality: 75}}, f.engine.Calls())

	_, err = f.pipeline.ServeRequest(ctx, testKey, "wide", "80")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, pipeline.StatusCode(err))

	var pErr *pipeline.Error
	require.True(t, errors.As(err, &pErr))
	assert.Equal(t, testKey, pErr.Source)
}

func TestNew_Validation(t *testing.T) {
	resolver := source.NewResolver(source.DefaultConfig())
	engine := testutil.NewHalvingEngine()

	_, err := pipeline.New(pipeline.Config{Engine: engine})
	assert.Error(t, err)

	_, err = pipeline.New(pipeline.Config{Resolver: resolver})
	assert.Error(t, err)

	_, err = pipeline.New(pipeline.Config{Resolver: resolver, Engine: engine, FallbackCaching: "sometimes"})
	assert.Error(t, err)

	p, err := pipeline.New(pipeline.Config{Resolver: resolver, Engine: engine})
	require.NoError(t, err)
	assert.False(t, p.CacheEnabled(), "nil cache is disabled")
}

func TestServe_SingleFlightSurvivesCallerCancel(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	resp := testutil.NewImageResponse(bytes.Repeat([]byte{0x07}, 100))
	resp.Delay = 300 * time.Millisecond
	origin.SetResponse("/slow.png", resp)

	store := testutil.NewRecordingStore(nil)
	p, err := pipeline.New(pipeline.Config{
		Resolver:     source.NewResolver(source.DefaultConfig()),
		Engine:       testutil.NewHalvingEngine(),
		Cache:        store,
		SingleFlight: true,
	})
	require.NoError(t, err)

	src := origin.URL() + "/slow.png"
	cancelCtx, cancel := context.WithCancel(context.Background())

	var (
		wg                  sync.WaitGroup
		cancelledErr, okErr error
		okResult            *pipeline.Result
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, cancelledErr = p.Serve(cancelCtx, src, transform.DefaultParams())
	}()
	time.Sleep(50 * time.Millisecond)
	go func() {
		defer wg.Done()
		okResult, okErr = p.Serve(context.Background(), src, transform.DefaultParams())
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	wg.Wait()

	require.Error(t, cancelledErr)
	assert.Equal(t, pipeline.KindCanceled, pipeline.KindOf(cancelledErr))

	require.NoError(t, okErr)
	assert.Equal(t, pipeline.CacheMiss, okResult.CacheStatus)
	assert.Len(t, okResult.Data, 50)
	assert.Equal(t, 1, origin.GetRequestCount())
	assert.Len(t, store.Sets(), 1, "the shared computation still writes the cache")
}

func TestServe_ClientCancelIsNotUpstreamError(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	resp := testutil.NewImageResponse(bytes.Repeat([]byte{0x07}, 100))
	resp.Delay = 300 * time.Millisecond
	origin.SetResponse("/slow.png", resp)

	p, err := pipeline.New(pipeline.Config{
		Resolver: source.NewResolver(source.DefaultConfig()),
		Engine:   testutil.NewHalvingEngine(),
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		src  string
		ctx  func() (context.Context, context.CancelFunc)
	}{
		{
			name: "cancelled during fetch",
			src:  origin.URL() + "/slow.png",
			ctx: func() (context.Context, context.CancelFunc) {
				ctx, cancel := context.WithCancel(context.Background())
				time.AfterFunc(50*time.Millisecond, cancel)
				return ctx, cancel
			},
		},
		{
			name: "cancelled before transform",
			src:  testKey,
			ctx: func() (context.Context, context.CancelFunc) {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx, cancel
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testutil.NewHalvingEngine(), nil, "")
			server := p
			if tt.src == testKey {
				server = f.pipeline
			}

			ctx, cancel := tt.ctx()
			defer cancel()

			_, err := server.Serve(ctx, tt.src, transform.DefaultParams())
			require.Error(t, err)
			assert.True(t, errors.Is(err, context.Canceled))
			assert.Equal(t, pipeline.KindCanceled, pipeline.KindOf(err))
			assert.Empty(t, f.store.Sets())
		})
	}
}

func TestServe_NegativeWidthRejected(t *testing.T) {
	f := newFixture(t, testutil.NewHalvingEngine(), nil, "")

	_, err := f.pipeline.Serve(context.Background(), testKey, transform.Params{Width: -5, Quality: 75})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, pipeline.StatusCode(err))
	assert.Empty(t, f.engine.Calls())
	assert.Empty(t, f.store.Sets())
	assert.Zero(t, f.objects.GetCount())
}
