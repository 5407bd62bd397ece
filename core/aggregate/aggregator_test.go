package aggregate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrackHound/cache"
	"TrackHound/config"
	"TrackHound/core/source"
	"TrackHound/model"
)

type fakeAdapter struct {
	name         model.TrackSource
	searchFn     func(ctx context.Context, query string, limit int) ([]model.SearchResult, error)
	popularFn    func(ctx context.Context, limit int) ([]model.SearchResult, error)
	resolveFn    func(ctx context.Context, externalID string) (*model.DownloadResolution, error)
	healthFn     func(ctx context.Context) model.HealthStatus
	searchCalls  int32
	popularCalls int32
	resolveCalls int32
}

func (f *fakeAdapter) Name() model.TrackSource { return f.name }

func (f *fakeAdapter) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	atomic.AddInt32(&f.searchCalls, 1)
	if f.searchFn == nil {
		return nil, nil
	}
	return f.searchFn(ctx, query, limit)
}

func (f *fakeAdapter) Popular(ctx context.Context, limit int) ([]model.SearchResult, error) {
	atomic.AddInt32(&f.popularCalls, 1)
	if f.popularFn == nil {
		return nil, nil
	}
	return f.popularFn(ctx, limit)
}

func (f *fakeAdapter) ResolveDownload(ctx context.Context, externalID string) (*model.DownloadResolution, error) {
	atomic.AddInt32(&f.resolveCalls, 1)
	if f.resolveFn == nil {
		return nil, source.E(f.name, "fake:resolve", source.KindUnavailable, errors.New("not wired"))
	}
	return f.resolveFn(ctx, externalID)
}

func (f *fakeAdapter) HealthCheck(ctx context.Context) model.HealthStatus {
	if f.healthFn == nil {
		return model.HealthStatus{Source: f.name, Healthy: true, LatencyMs: 1, CheckedAt: time.Now()}
	}
	return f.healthFn(ctx)
}

func track(src model.TrackSource, artist, title string, q model.AudioQuality) model.SearchResult {
	return model.SearchResult{
		Title:      title,
		Artist:     artist,
		Duration:   210,
		ExternalID: string(src) + ":" + title,
		Source:     src,
		Quality:    q,
	}
}

func fixed(results ...model.SearchResult) func(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	return func(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
		return results, nil
	}
}

func failing(src model.TrackSource) func(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	return func(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
		return nil, source.E(src, "fake:search", source.KindTransient, errors.New("upstream down"))
	}
}

func newTestAggregator(t *testing.T, cfg Config, adapters ...*fakeAdapter) *Aggregator {
	t.Helper()
	reg := source.NewRegistry()
	for _, a := range adapters {
		reg.Register(a)
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 2 * time.Second
	}
	return New(reg, cfg)
}

func standardAdapters() (vk, yt, sp *fakeAdapter) {
	vk = &fakeAdapter{name: model.SourceVKAudio}
	yt = &fakeAdapter{name: model.SourceYouTube}
	sp = &fakeAdapter{name: model.SourceSpotify}
	return vk, yt, sp
}

func TestSearchComprehensiveMergesAllSources(t *testing.T) {
	vk, yt, sp := standardAdapters()
	vk.searchFn = fixed(track(vk.name, "Muse", "Uprising", model.QualityHigh))
	yt.searchFn = fixed(track(yt.name, "Imagine Dragons", "Believer", model.QualityMedium))
	sp.searchFn = fixed(track(sp.name, "Queen", "Under Pressure", model.QualityMedium))
	agg := newTestAggregator(t, Config{}, vk, yt, sp)

	results, err := agg.Search(context.Background(), "rock", 10, model.StrategyComprehensive, nil, 0)

	require.NoError(t, err)
	require.Len(t, results, 3)
	titles := []string{results[0].Title, results[1].Title, results[2].Title}
	assert.ElementsMatch(t, []string{"Uprising", "Believer", "Under Pressure"}, titles)
	assert.EqualValues(t, 1, atomic.LoadInt32(&vk.searchCalls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&yt.searchCalls))
	assert.EqualValues(t, 1, atomic.LoadInt32(&sp.searchCalls))
}

func TestSearchDeduplicatesAcrossSources(t *testing.T) {
	vk, yt, sp := standardAdapters()
	vk.searchFn = fixed(track(vk.name, "Muse", "Uprising", model.QualityHigh))
	yt.searchFn = fixed(track(yt.name, "MUSE", "uprising", model.QualityMedium))
	sp.searchFn = fixed()
	agg := newTestAggregator(t, Config{}, vk, yt, sp)

	results, err := agg.Search(context.Background(), "muse", 10, model.StrategyComprehensive, nil, 0)

	require.NoError(t, err)
	require.Len(t, results, 1, "same artist|title from two sources must collapse")
	assert.Equal(t, "muse|uprising", results[0].DedupKey())
}

func TestSearchFastestServesFirstNonEmpty(t *testing.T) {
	vk, yt, sp := standardAdapters()
	// Instant but empty: must not win.
	vk.searchFn = fixed()
	yt.searchFn = func(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
		time.Sleep(20 * time.Millisecond)
		return []model.SearchResult{track(yt.name, "Imagine Dragons", "Believer", model.QualityMedium)}, nil
	}
	sp.searchFn = func(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
		}
		return []model.SearchResult{track(sp.name, "Queen", "Under Pressure", model.QualityMedium)}, nil
	}
	agg := newTestAggregator(t, Config{}, vk, yt, sp)

	start := time.Now()
	results, err := agg.Search(context.Background(), "believer", 10, model.StrategyFastest, nil, 0)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.SourceYouTube, results[0].Source)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "must not wait for the slow source")
}

func TestSearchFastestAllEmpty(t *testing.T) {
	vk, yt, sp := standardAdapters()
	vk.searchFn, yt.searchFn, sp.searchFn = fixed(), fixed(), fixed()
	agg := newTestAggregator(t, Config{}, vk, yt, sp)

	results, err := agg.Search(context.Background(), "nothing", 10, model.StrategyFastest, nil, 0)

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchSequentialWalksPriorityOrder(t *testing.T) {
	vk, yt, sp := standardAdapters()
	var mu sync.Mutex
	var order []model.TrackSource
	record := func(src model.TrackSource) {
		mu.Lock()
		order = append(order, src)
		mu.Unlock()
	}
	vk.searchFn = func(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
		record(vk.name)
		return nil, nil
	}
	yt.searchFn = func(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
		record(yt.name)
		return []model.SearchResult{track(yt.name, "Imagine Dragons", "Believer", model.QualityMedium)}, nil
	}
	sp.searchFn = func(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
		record(sp.name)
		return []model.SearchResult{track(sp.name, "Queen", "Under Pressure", model.QualityMedium)}, nil
	}
	agg := newTestAggregator(t, Config{}, vk, yt, sp)

	results, err := agg.Search(context.Background(), "believer", 10, model.StrategySequential, nil, 0)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.SourceYouTube, results[0].Source)
	assert.Equal(t, []model.TrackSource{model.SourceVKAudio, model.SourceYouTube}, order)
	assert.Zero(t, atomic.LoadInt32(&sp.searchCalls), "sequential must stop once a source delivers")
}

func TestSearchPartialResultsOnTimeout(t *testing.T) {
	vk, yt, sp := standardAdapters()
	vk.searchFn = fixed(track(vk.name, "Muse", "Uprising", model.QualityHigh))
	yt.searchFn = func(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
		<-ctx.Done()
		return nil, source.E(yt.name, "fake:search", source.KindTransient, ctx.Err())
	}
	sp.searchFn = fixed(track(sp.name, "Queen", "Under Pressure", model.QualityMedium))
	agg := newTestAggregator(t, Config{}, vk, yt, sp)

	start := time.Now()
	results, err := agg.Search(context.Background(), "rock", 10, model.StrategyComprehensive, nil, 150*time.Millisecond)

	require.NoError(t, err, "a deadline with partial results is not a failure")
	assert.Less(t, time.Since(start), time.Second)
	titles := make([]string, 0, len(results))
	for _, r := range results {
		titles = append(titles, r.Title)
	}
	assert.ElementsMatch(t, []string{"Uprising", "Under Pressure"}, titles)
}

func TestSearchAllSourcesFailed(t *testing.T) {
	vk, yt, sp := standardAdapters()
	vk.searchFn = failing(vk.name)
	yt.searchFn = failing(yt.name)
	sp.searchFn = failing(sp.name)
	agg := newTestAggregator(t, Config{}, vk, yt, sp)

	results, err := agg.Search(context.Background(), "rock", 10, model.StrategyComprehensive, nil, 0)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "all sources failed")
	assert.Empty(t, results)
}

func TestSearchNoEligibleSources(t *testing.T) {
	vk, yt, sp := standardAdapters()
	agg := newTestAggregator(t, Config{}, vk, yt, sp)

	_, err := agg.Search(context.Background(), "rock", 10, model.StrategyComprehensive,
		[]model.TrackSource{model.SourceDeezer}, 0)

	assert.ErrorIs(t, err, ErrNoSources)
}

func TestSearchSubsetRestrictsFanOut(t *testing.T) {
	vk, yt, sp := standardAdapters()
	vk.searchFn = fixed(track(vk.name, "Muse", "Uprising", model.QualityHigh))
	sp.searchFn = fixed(track(sp.name, "Queen", "Under Pressure", model.QualityMedium))
	agg := newTestAggregator(t, Config{}, vk, yt, sp)

	results, err := agg.Search(context.Background(), "rock", 10, model.StrategyComprehensive,
		[]model.TrackSource{model.SourceSpotify}, 0)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.SourceSpotify, results[0].Source)
	assert.Zero(t, atomic.LoadInt32(&vk.searchCalls))
	assert.Zero(t, atomic.LoadInt32(&yt.searchCalls))
}

func TestSearchEmptyQuery(t *testing.T) {
	vk, yt, sp := standardAdapters()
	agg := newTestAggregator(t, Config{}, vk, yt, sp)

	results, err := agg.Search(context.Background(), "   ", 10, model.StrategyComprehensive, nil, 0)

	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Zero(t, atomic.LoadInt32(&vk.searchCalls))
}

func TestSearchRespectsLimit(t *testing.T) {
	vk, yt, sp := standardAdapters()
	many := make([]model.SearchResult, 0, 8)
	for _, title := range []string{"A", "B", "C", "D", "E", "F", "G", "H"} {
		many = append(many, track(vk.name, "Artist "+title, "Track "+title, model.QualityMedium))
	}
	vk.searchFn = fixed(many...)
	yt.searchFn = fixed()
	sp.searchFn = fixed()
	agg := newTestAggregator(t, Config{}, vk, yt, sp)

	results, err := agg.Search(context.Background(), "a", 3, model.StrategyComprehensive, nil, 0)

	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestSearchHealthFloorExcludesFailingSource(t *testing.T) {
	vk := &fakeAdapter{name: model.SourceVKAudio}
	vk.searchFn = failing(vk.name)
	agg := newTestAggregator(t, Config{}, vk)

	// Three failed rounds drive the score under the floor.
	for i := 0; i < 3; i++ {
		_, err := agg.Search(context.Background(), "rock", 5, model.StrategyComprehensive, nil, 0)
		require.Error(t, err)
	}
	assert.Less(t, agg.health.Score(vk.name), healthFloor)

	_, err := agg.Search(context.Background(), "rock", 5, model.StrategyComprehensive, nil, 0)
	assert.ErrorIs(t, err, ErrNoSources)
	assert.EqualValues(t, 3, atomic.LoadInt32(&vk.searchCalls), "an ineligible source must not be called")

	// The upstream recovers; a health probe lifts the score back over
	// the floor and search traffic resumes.
	vk.searchFn = fixed(track(vk.name, "Muse", "Uprising", model.QualityHigh))
	agg.HealthCheck(context.Background())
	require.GreaterOrEqual(t, agg.health.Score(vk.name), healthFloor)

	results, err := agg.Search(context.Background(), "rock", 5, model.StrategyComprehensive, nil, 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchQualityFirstOrdering(t *testing.T) {
	vk, yt, sp := standardAdapters()
	vk.searchFn = fixed(track(vk.name, "Muse", "Uprising", model.QualityUltra))
	yt.searchFn = fixed(track(yt.name, "Imagine Dragons", "Believer", model.QualityHigh))
	sp.searchFn = fixed(
		track(sp.name, "Queen", "Under Pressure", model.QualityMedium),
		track(sp.name, "Queen", "Bohemian Rhapsody", model.QualityUltra),
	)
	agg := newTestAggregator(t, Config{}, vk, yt, sp)

	results, err := agg.Search(context.Background(), "rock", 10, model.StrategyQualityFirst, nil, 0)

	require.NoError(t, err)
	require.Len(t, results, 4)
	// All sources healthy: spotify blends highest, vk lowest. Within one
	// source the better quality tier goes first.
	assert.Equal(t, "Bohemian Rhapsody", results[0].Title)
	assert.Equal(t, "Under Pressure", results[1].Title)
	assert.Equal(t, "Believer", results[2].Title)
	assert.Equal(t, "Uprising", results[3].Title)
}

func TestSearchQualityFirstDemotesDegradedSource(t *testing.T) {
	vk, yt, sp := standardAdapters()
	vk.searchFn = fixed(track(vk.name, "Muse", "Uprising", model.QualityUltra))
	yt.searchFn = fixed(track(yt.name, "Imagine Dragons", "Believer", model.QualityHigh))
	sp.searchFn = fixed(track(sp.name, "Queen", "Under Pressure", model.QualityMedium))
	agg := newTestAggregator(t, Config{}, vk, yt, sp)

	// Two failures pull spotify's blend under both competitors.
	agg.health.RecordFailure(sp.name, errors.New("flaking"))
	agg.health.RecordFailure(sp.name, errors.New("flaking"))

	results, err := agg.Search(context.Background(), "rock", 10, model.StrategyQualityFirst, nil, 0)

	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, model.SourceYouTube, results[0].Source)
	assert.Equal(t, model.SourceVKAudio, results[1].Source)
	assert.Equal(t, model.SourceSpotify, results[2].Source)
}

func TestSearchHonorsConcurrencyCeiling(t *testing.T) {
	var active, maxActive int32
	slowSearch := func(src model.TrackSource) func(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
		return func(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
			cur := atomic.AddInt32(&active, 1)
			for {
				old := atomic.LoadInt32(&maxActive)
				if cur <= old || atomic.CompareAndSwapInt32(&maxActive, old, cur) {
					break
				}
			}
			time.Sleep(30 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			return []model.SearchResult{track(src, "Artist "+string(src), "Track "+string(src), model.QualityMedium)}, nil
		}
	}
	vk, yt, sp := standardAdapters()
	vk.searchFn = slowSearch(vk.name)
	yt.searchFn = slowSearch(yt.name)
	sp.searchFn = slowSearch(sp.name)
	agg := newTestAggregator(t, Config{MaxConcurrent: 1}, vk, yt, sp)

	results, err := agg.Search(context.Background(), "rock", 10, model.StrategyComprehensive, nil, 0)

	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.EqualValues(t, 1, atomic.LoadInt32(&maxActive), "in-flight calls must respect the ceiling")
}

func TestPopularSharesLimitAcrossSources(t *testing.T) {
	vk, yt, sp := standardAdapters()
	var vkShare, ytShare, spShare int32
	vk.popularFn = func(ctx context.Context, limit int) ([]model.SearchResult, error) {
		atomic.StoreInt32(&vkShare, int32(limit))
		return []model.SearchResult{
			track(vk.name, "Muse", "Uprising", model.QualityHigh),
			track(vk.name, "Muse", "Hysteria", model.QualityHigh),
		}, nil
	}
	yt.popularFn = func(ctx context.Context, limit int) ([]model.SearchResult, error) {
		atomic.StoreInt32(&ytShare, int32(limit))
		return []model.SearchResult{
			track(yt.name, "Imagine Dragons", "Believer", model.QualityMedium),
			// Duplicate of a vk entry, must collapse.
			track(yt.name, "Muse", "Uprising", model.QualityMedium),
		}, nil
	}
	sp.popularFn = func(ctx context.Context, limit int) ([]model.SearchResult, error) {
		atomic.StoreInt32(&spShare, int32(limit))
		return []model.SearchResult{track(sp.name, "Queen", "Under Pressure", model.QualityMedium)}, nil
	}
	agg := newTestAggregator(t, Config{}, vk, yt, sp)

	results, err := agg.Popular(context.Background(), 9)

	require.NoError(t, err)
	assert.Len(t, results, 4)
	assert.EqualValues(t, 3, atomic.LoadInt32(&vkShare))
	assert.EqualValues(t, 3, atomic.LoadInt32(&ytShare))
	assert.EqualValues(t, 3, atomic.LoadInt32(&spShare))
}

func TestPopularToleratesFailingSource(t *testing.T) {
	vk, yt, sp := standardAdapters()
	vk.popularFn = func(ctx context.Context, limit int) ([]model.SearchResult, error) {
		return nil, source.E(vk.name, "fake:popular", source.KindTransient, errors.New("down"))
	}
	yt.popularFn = func(ctx context.Context, limit int) ([]model.SearchResult, error) {
		return []model.SearchResult{track(yt.name, "Imagine Dragons", "Believer", model.QualityMedium)}, nil
	}
	sp.popularFn = func(ctx context.Context, limit int) ([]model.SearchResult, error) {
		return []model.SearchResult{track(sp.name, "Queen", "Under Pressure", model.QualityMedium)}, nil
	}
	agg := newTestAggregator(t, Config{}, vk, yt, sp)

	results, err := agg.Popular(context.Background(), 6)

	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchEachStreamsPerSourceOutcomes(t *testing.T) {
	vk, yt, sp := standardAdapters()
	vk.searchFn = fixed(track(vk.name, "Muse", "Uprising", model.QualityHigh))
	yt.searchFn = failing(yt.name)
	sp.searchFn = fixed(track(sp.name, "Queen", "Under Pressure", model.QualityMedium))
	agg := newTestAggregator(t, Config{}, vk, yt, sp)

	counts := make(map[model.TrackSource]int)
	errs := 0
	err := agg.SearchEach(context.Background(), "rock", 5, nil, 0,
		func(src model.TrackSource, results []model.SearchResult, err error) {
			if err != nil {
				errs++
				return
			}
			counts[src] = len(results)
		})

	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.SourceVKAudio])
	assert.Equal(t, 1, counts[model.SourceSpotify])
	assert.Equal(t, 1, errs, "the failing source must surface through the callback")
}

func newDownloadCache(t *testing.T) *cache.TrackCache {
	t.Helper()
	store := cache.New("test", cache.NewLocalStore(100), nil,
		config.CacheTTLConfig{DownloadURL: time.Hour}, 0)
	return cache.NewTrackCache(store)
}

func TestResolveCachesSuccessfulResolution(t *testing.T) {
	vk := &fakeAdapter{name: model.SourceVKAudio}
	vk.resolveFn = func(ctx context.Context, externalID string) (*model.DownloadResolution, error) {
		return &model.DownloadResolution{URL: "https://cdn.example.com/a.mp3", Format: "mp3", Bitrate: 192}, nil
	}
	agg := newTestAggregator(t, Config{Tracks: newDownloadCache(t)}, vk)

	res, fromCache, err := agg.Resolve(context.Background(), vk.name, "1_2")
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, "https://cdn.example.com/a.mp3", res.URL)

	res, fromCache, err = agg.Resolve(context.Background(), vk.name, "1_2")
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, "https://cdn.example.com/a.mp3", res.URL)
	assert.EqualValues(t, 1, atomic.LoadInt32(&vk.resolveCalls), "second resolve must come from cache")
}

func TestResolveNeverCachesUnavailable(t *testing.T) {
	vk := &fakeAdapter{name: model.SourceVKAudio}
	vk.resolveFn = func(ctx context.Context, externalID string) (*model.DownloadResolution, error) {
		return nil, source.E(vk.name, "fake:resolve", source.KindUnavailable, errors.New("no stream"))
	}
	agg := newTestAggregator(t, Config{Tracks: newDownloadCache(t)}, vk)

	_, _, err := agg.Resolve(context.Background(), vk.name, "1_2")
	require.True(t, source.IsUnavailable(err))
	assert.Equal(t, 1.0, agg.health.Score(vk.name), "a missing stream is not a source failure")

	// The track becomes available; the next resolve must reach the
	// adapter instead of a cached failure.
	vk.resolveFn = func(ctx context.Context, externalID string) (*model.DownloadResolution, error) {
		return &model.DownloadResolution{URL: "https://cdn.example.com/b.mp3", Format: "mp3", Bitrate: 192}, nil
	}
	res, fromCache, err := agg.Resolve(context.Background(), vk.name, "1_2")
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, "https://cdn.example.com/b.mp3", res.URL)
	assert.EqualValues(t, 2, atomic.LoadInt32(&vk.resolveCalls))
}

func TestResolveTransientFailureDecaysHealth(t *testing.T) {
	vk := &fakeAdapter{name: model.SourceVKAudio}
	vk.resolveFn = func(ctx context.Context, externalID string) (*model.DownloadResolution, error) {
		return nil, source.E(vk.name, "fake:resolve", source.KindTransient, errors.New("timeout"))
	}
	agg := newTestAggregator(t, Config{}, vk)

	_, _, err := agg.Resolve(context.Background(), vk.name, "1_2")

	require.Error(t, err)
	assert.InDelta(t, 0.6, agg.health.Score(vk.name), 1e-9)
}

func TestResolveUnknownSource(t *testing.T) {
	vk := &fakeAdapter{name: model.SourceVKAudio}
	agg := newTestAggregator(t, Config{}, vk)

	_, _, err := agg.Resolve(context.Background(), model.SourceDeezer, "71")

	assert.True(t, source.IsNotFound(err))
}

func TestInvalidateDownloadForcesRefetch(t *testing.T) {
	vk := &fakeAdapter{name: model.SourceVKAudio}
	vk.resolveFn = func(ctx context.Context, externalID string) (*model.DownloadResolution, error) {
		return &model.DownloadResolution{URL: "https://cdn.example.com/a.mp3", Format: "mp3", Bitrate: 192}, nil
	}
	agg := newTestAggregator(t, Config{Tracks: newDownloadCache(t)}, vk)

	_, _, err := agg.Resolve(context.Background(), vk.name, "1_2")
	require.NoError(t, err)
	require.NoError(t, agg.InvalidateDownload(context.Background(), vk.name, "1_2"))

	_, fromCache, err := agg.Resolve(context.Background(), vk.name, "1_2")
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.EqualValues(t, 2, atomic.LoadInt32(&vk.resolveCalls))
}

func TestHealthCheckProbesAllAndFeedsTracker(t *testing.T) {
	vk, yt, sp := standardAdapters()
	yt.healthFn = func(ctx context.Context) model.HealthStatus {
		return model.HealthStatus{Source: yt.name, Healthy: false, Error: "probe failed", CheckedAt: time.Now()}
	}
	agg := newTestAggregator(t, Config{}, vk, yt, sp)

	statuses := agg.HealthCheck(context.Background())

	require.Len(t, statuses, 3)
	// Registry order is sorted by source name.
	assert.Equal(t, model.SourceSpotify, statuses[0].Source)
	assert.Equal(t, model.SourceVKAudio, statuses[1].Source)
	assert.Equal(t, model.SourceYouTube, statuses[2].Source)
	assert.False(t, statuses[2].Healthy)

	assert.Equal(t, 1.0, agg.health.Score(vk.name))
	assert.InDelta(t, 0.6, agg.health.Score(yt.name), 1e-9)

	snaps := agg.Health()
	require.Len(t, snaps, 3)
}

func TestHealthCheckServesCachedProbes(t *testing.T) {
	var probes int32
	vk := &fakeAdapter{name: model.SourceVKAudio}
	vk.healthFn = func(ctx context.Context) model.HealthStatus {
		atomic.AddInt32(&probes, 1)
		return model.HealthStatus{Source: vk.name, Healthy: true, LatencyMs: 3, CheckedAt: time.Now()}
	}
	store := cache.New("test", cache.NewLocalStore(10), nil,
		config.CacheTTLConfig{HealthCheck: time.Minute}, 0)
	agg := newTestAggregator(t, Config{Tracks: cache.NewTrackCache(store)}, vk)

	first := agg.HealthCheck(context.Background())
	second := agg.HealthCheck(context.Background())

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.True(t, second[0].Healthy)
	assert.Equal(t, first[0].CheckedAt.Unix(), second[0].CheckedAt.Unix(),
		"the cached status keeps its original probe time")
	assert.EqualValues(t, 1, atomic.LoadInt32(&probes),
		"the second report must come from the cache")
}
