// Package aggregate fans searches out across the registered source
// adapters. It owns the per-source health scores, the global ceiling on
// in-flight adapter calls and the caching of resolutions and probe
// statuses, and it merges per-source result sets into one deduplicated
// list.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"TrackHound/cache"
	"TrackHound/core/source"
	"TrackHound/logger"
	"TrackHound/model"
)

// SourceConfig is the static per-source search policy.
type SourceConfig struct {
	Enabled           bool
	Priority          int // lower is called first
	Timeout           time.Duration
	MaxResults        int
	QualityWeight     float64
	ReliabilityWeight float64
}

// DefaultSourceConfigs mirrors what the upstreams tolerate: the scraped
// catalog is cheap and goes first, the video catalog is slow but broad,
// the metadata catalog is precise but resolves no streams.
func DefaultSourceConfigs() map[model.TrackSource]SourceConfig {
	return map[model.TrackSource]SourceConfig{
		model.SourceVKAudio: {Enabled: true, Priority: 1, Timeout: 30 * time.Second, MaxResults: 50, QualityWeight: 0.8, ReliabilityWeight: 0.7},
		model.SourceYouTube: {Enabled: true, Priority: 2, Timeout: 60 * time.Second, MaxResults: 50, QualityWeight: 0.9, ReliabilityWeight: 0.9},
		model.SourceSpotify: {Enabled: true, Priority: 3, Timeout: 20 * time.Second, MaxResults: 50, QualityWeight: 1.0, ReliabilityWeight: 0.95},
	}
}

const (
	defaultLimit         = 50
	defaultTimeout       = 30 * time.Second
	defaultMaxConcurrent = 3
)

// ErrNoSources is returned when a search has nobody to ask: the
// caller's subset matched nothing, or every candidate is disabled or
// below the health floor.
var ErrNoSources = errors.New("no eligible sources")

// Config configures an Aggregator. Zero fields fall back to defaults.
type Config struct {
	Sources        map[model.TrackSource]SourceConfig
	Tracks         *cache.TrackCache // optional cache for resolutions and probe statuses
	MaxConcurrent  int               // ceiling on in-flight adapter calls
	DefaultTimeout time.Duration     // overall budget when the caller passes none
}

// Aggregator fans search and resolution calls out across registered
// adapters, tracking per-source health and bounding concurrency.
type Aggregator struct {
	registry *source.Registry
	configs  map[model.TrackSource]SourceConfig
	health   *HealthTracker
	tracks   *cache.TrackCache
	sem      *semaphore.Weighted
	timeout  time.Duration
	log      *zap.Logger
}

func New(registry *source.Registry, cfg Config) *Aggregator {
	if cfg.Sources == nil {
		cfg.Sources = DefaultSourceConfigs()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultTimeout
	}
	return &Aggregator{
		registry: registry,
		configs:  cfg.Sources,
		health:   NewHealthTracker(),
		tracks:   cfg.Tracks,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		timeout:  cfg.DefaultTimeout,
		log:      logger.Named("aggregate"),
	}
}

type candidate struct {
	adapter source.Adapter
	cfg     SourceConfig
	blend   float64
}

// blendFor folds the static weights together with live health. The
// reliability weight scales how much the live score counts for that
// source.
func (a *Aggregator) blendFor(src model.TrackSource, cfg SourceConfig) float64 {
	return 0.5*cfg.QualityWeight + 0.5*cfg.ReliabilityWeight*a.health.Score(src)
}

// eligible returns the adapters a call may use, in call order. A nil
// subset means every registered source. Sources under the health floor
// are skipped; they come back as soon as probes or later successes lift
// their score again.
func (a *Aggregator) eligible(subset []model.TrackSource, strategy model.Strategy) []candidate {
	want := make(map[model.TrackSource]bool, len(subset))
	for _, s := range subset {
		want[s] = true
	}
	var out []candidate
	for _, ad := range a.registry.All() {
		name := ad.Name()
		cfg, ok := a.configs[name]
		if !ok || !cfg.Enabled {
			continue
		}
		if len(want) > 0 && !want[name] {
			continue
		}
		if !a.health.Eligible(name) {
			a.log.Debug("source below health floor, skipping",
				logger.String("source", string(name)))
			continue
		}
		out = append(out, candidate{adapter: ad, cfg: cfg, blend: a.blendFor(name, cfg)})
	}
	if strategy == model.StrategyQualityFirst {
		sort.SliceStable(out, func(i, j int) bool { return out[i].blend > out[j].blend })
	} else {
		sort.SliceStable(out, func(i, j int) bool { return out[i].cfg.Priority < out[j].cfg.Priority })
	}
	return out
}

// Search fans the query out per the strategy and returns the merged,
// deduplicated results. When the overall budget expires mid-flight,
// whatever has been gathered is returned; an error comes back only when
// no source was eligible or every source called failed.
func (a *Aggregator) Search(ctx context.Context, query string, limit int, strategy model.Strategy, sources []model.TrackSource, timeout time.Duration) ([]model.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if timeout <= 0 {
		timeout = a.timeout
	}
	cands := a.eligible(sources, strategy)
	if len(cands) == 0 {
		return nil, ErrNoSources
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		results []model.SearchResult
		err     error
	)
	switch strategy {
	case model.StrategyFastest:
		results, err = a.searchFastest(ctx, cands, query, limit)
	case model.StrategySequential:
		results, err = a.searchSequential(ctx, cands, query, limit)
	default:
		results, err = a.searchParallel(ctx, cands, query, limit)
	}
	if err != nil {
		return nil, err
	}
	results = dedupe(results)
	if strategy == model.StrategyQualityFirst {
		a.biasRanking(results, cands)
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// callSearch runs one adapter search under the global ceiling and the
// source's own timeout, recording the outcome in the health tracker.
// Outcomes are not recorded once the overall budget is spent: a call
// cancelled from above says nothing about the source.
func (a *Aggregator) callSearch(ctx context.Context, c candidate, query string, limit int) ([]model.SearchResult, error) {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer a.sem.Release(1)

	n := limit
	if c.cfg.MaxResults > 0 && n > c.cfg.MaxResults {
		n = c.cfg.MaxResults
	}
	cctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	name := c.adapter.Name()
	start := time.Now()
	results, err := c.adapter.Search(cctx, query, n)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			a.health.RecordFailure(name, err)
		}
		a.log.Warn("source search failed",
			logger.String("source", string(name)),
			logger.Duration("latency", latency),
			logger.ErrorField(err))
		return nil, err
	}
	a.health.RecordSuccess(name, latency, c.cfg.Timeout)
	a.log.Debug("source search completed",
		logger.String("source", string(name)),
		logger.Int("results", len(results)),
		logger.Duration("latency", latency))
	return results, nil
}

type outcome struct {
	source  model.TrackSource
	results []model.SearchResult
	err     error
}

// launch starts one goroutine per candidate. The channel is buffered so
// stragglers finishing after the caller gave up never block.
func (a *Aggregator) launch(ctx context.Context, cands []candidate, call func(context.Context, candidate) ([]model.SearchResult, error)) <-chan outcome {
	ch := make(chan outcome, len(cands))
	for _, c := range cands {
		c := c
		go func() {
			res, err := call(ctx, c)
			ch <- outcome{source: c.adapter.Name(), results: res, err: err}
		}()
	}
	return ch
}

// collectAll merges successes until all n outcomes arrive or the budget
// expires. On expiry the gathered part is returned as-is; in-flight
// calls are cancelled through ctx. An error comes back only when every
// candidate reported failure.
func (a *Aggregator) collectAll(ctx context.Context, ch <-chan outcome, n int) ([]model.SearchResult, error) {
	var (
		merged   []model.SearchResult
		failures int
		lastErr  error
	)
	for done := 0; done < n; done++ {
		select {
		case out := <-ch:
			if out.err != nil {
				if ctx.Err() == nil {
					failures++
					lastErr = out.err
				}
				continue
			}
			merged = append(merged, out.results...)
		case <-ctx.Done():
			a.log.Debug("gather budget expired",
				logger.Int("gathered", len(merged)),
				logger.Int("pending", n-done))
			return merged, nil
		}
	}
	if failures == n {
		return nil, fmt.Errorf("all sources failed: %w", lastErr)
	}
	return merged, nil
}

// searchParallel merges whatever arrives before the budget runs out.
func (a *Aggregator) searchParallel(ctx context.Context, cands []candidate, query string, limit int) ([]model.SearchResult, error) {
	ch := a.launch(ctx, cands, func(ctx context.Context, c candidate) ([]model.SearchResult, error) {
		return a.callSearch(ctx, c, query, limit)
	})
	return a.collectAll(ctx, ch, len(cands))
}

// searchFastest serves the first source to deliver a non-empty set.
// Later outcomes land in the buffered channel and are discarded.
func (a *Aggregator) searchFastest(ctx context.Context, cands []candidate, query string, limit int) ([]model.SearchResult, error) {
	ch := a.launch(ctx, cands, func(ctx context.Context, c candidate) ([]model.SearchResult, error) {
		return a.callSearch(ctx, c, query, limit)
	})

	var (
		failures int
		lastErr  error
	)
	for done := 0; done < len(cands); done++ {
		select {
		case out := <-ch:
			if out.err != nil {
				if ctx.Err() == nil {
					failures++
					lastErr = out.err
				}
				continue
			}
			if len(out.results) > 0 {
				a.log.Debug("fastest source won",
					logger.String("source", string(out.source)),
					logger.Int("results", len(out.results)))
				return out.results, nil
			}
		case <-ctx.Done():
			return nil, nil
		}
	}
	if failures == len(cands) {
		return nil, fmt.Errorf("all sources failed: %w", lastErr)
	}
	return nil, nil
}

// searchSequential walks candidates in order until one returns results
// or the budget runs out.
func (a *Aggregator) searchSequential(ctx context.Context, cands []candidate, query string, limit int) ([]model.SearchResult, error) {
	var (
		failures int
		lastErr  error
	)
	for _, c := range cands {
		if ctx.Err() != nil {
			break
		}
		results, err := a.callSearch(ctx, c, query, limit)
		if err != nil {
			if ctx.Err() == nil {
				failures++
				lastErr = err
			}
			continue
		}
		if len(results) > 0 {
			return results, nil
		}
	}
	if failures == len(cands) {
		return nil, fmt.Errorf("all sources failed: %w", lastErr)
	}
	return nil, nil
}

// biasRanking orders merged results by their source's blend, then by
// the result's own quality tier. Sorting is stable so intra-source
// relevance order survives.
func (a *Aggregator) biasRanking(results []model.SearchResult, cands []candidate) {
	blends := make(map[model.TrackSource]float64, len(cands))
	for _, c := range cands {
		blends[c.adapter.Name()] = c.blend
	}
	sort.SliceStable(results, func(i, j int) bool {
		bi, bj := blends[results[i].Source], blends[results[j].Source]
		if bi != bj {
			return bi > bj
		}
		return model.QualityRank(results[i].Quality) > model.QualityRank(results[j].Quality)
	})
}

// SearchEach fans the query out like comprehensive but hands every
// source's outcome to fn as it completes instead of merging. fn runs on
// the collecting goroutine, so a single consumer (a websocket writer)
// needs no extra locking. Returns once every eligible source reported
// or the budget expired.
func (a *Aggregator) SearchEach(ctx context.Context, query string, limit int, sources []model.TrackSource, timeout time.Duration, fn func(src model.TrackSource, results []model.SearchResult, err error)) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if timeout <= 0 {
		timeout = a.timeout
	}
	cands := a.eligible(sources, model.StrategyComprehensive)
	if len(cands) == 0 {
		return ErrNoSources
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := a.launch(ctx, cands, func(ctx context.Context, c candidate) ([]model.SearchResult, error) {
		return a.callSearch(ctx, c, query, limit)
	})
	for done := 0; done < len(cands); done++ {
		select {
		case out := <-ch:
			fn(out.source, out.results, out.err)
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

// Popular gathers trending tracks from every eligible source, an even
// share each, and merges them.
func (a *Aggregator) Popular(ctx context.Context, limit int) ([]model.SearchResult, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	cands := a.eligible(nil, model.StrategyComprehensive)
	if len(cands) == 0 {
		return nil, ErrNoSources
	}
	share := limit / len(cands)
	if share < 1 {
		share = 1
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	ch := a.launch(ctx, cands, func(ctx context.Context, c candidate) ([]model.SearchResult, error) {
		return a.callPopular(ctx, c, share)
	})
	merged, err := a.collectAll(ctx, ch, len(cands))
	if err != nil {
		return nil, err
	}
	merged = dedupe(merged)
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func (a *Aggregator) callPopular(ctx context.Context, c candidate, limit int) ([]model.SearchResult, error) {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer a.sem.Release(1)

	cctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	name := c.adapter.Name()
	start := time.Now()
	results, err := c.adapter.Popular(cctx, limit)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			a.health.RecordFailure(name, err)
		}
		a.log.Warn("source popular failed",
			logger.String("source", string(name)),
			logger.ErrorField(err))
		return nil, err
	}
	a.health.RecordSuccess(name, latency, c.cfg.Timeout)
	return results, nil
}

// Resolve returns a playable location for a track, consulting the
// download cache first. Successful resolutions are cached with a TTL
// clamped to the URL's own expiry; failed ones never are. The second
// return reports whether the cache served the resolution.
func (a *Aggregator) Resolve(ctx context.Context, src model.TrackSource, externalID string) (*model.DownloadResolution, bool, error) {
	adapter, ok := a.registry.Get(src)
	if !ok {
		return nil, false, source.E(src, "aggregate:resolve", source.KindNotFound,
			fmt.Errorf("unknown source %q", src))
	}
	if a.tracks != nil {
		if res, hit := a.tracks.GetDownload(ctx, src, externalID); hit {
			a.log.Debug("download resolution served from cache",
				logger.String("source", string(src)),
				logger.String("externalID", externalID))
			return res, true, nil
		}
	}

	cfg := a.configs[src]
	rctx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	start := time.Now()
	res, err := adapter.ResolveDownload(rctx, externalID)
	if err != nil {
		// NotFound and Unavailable are verdicts about the track, not
		// about the source.
		if ctx.Err() == nil && !source.IsNotFound(err) && !source.IsUnavailable(err) {
			a.health.RecordFailure(src, err)
		}
		return nil, false, err
	}
	a.health.RecordSuccess(src, time.Since(start), cfg.Timeout)
	if a.tracks != nil {
		if cerr := a.tracks.SetDownload(ctx, src, externalID, res); cerr != nil {
			a.log.Warn("caching download resolution failed",
				logger.String("source", string(src)),
				logger.ErrorField(cerr))
		}
	}
	return res, false, nil
}

// InvalidateDownload drops a cached resolution, forcing the next
// Resolve to hit the adapter again.
func (a *Aggregator) InvalidateDownload(ctx context.Context, src model.TrackSource, externalID string) error {
	if a.tracks == nil {
		return nil
	}
	return a.tracks.DeleteDownload(ctx, src, externalID)
}

// HealthCheck reports every registered source's status, probing the
// upstream at most once per health TTL: a cached status is returned
// as-is, with its original CheckedAt. Fresh probes feed the health
// tracker and ignore the eligibility floor on purpose: they are how a
// demoted source earns its way back over it.
func (a *Aggregator) HealthCheck(ctx context.Context) []model.HealthStatus {
	adapters := a.registry.All()
	statuses := make([]model.HealthStatus, len(adapters))
	var wg sync.WaitGroup
	for i, ad := range adapters {
		if a.tracks != nil {
			if st, ok := a.tracks.GetHealth(ctx, ad.Name()); ok {
				statuses[i] = *st
				continue
			}
		}
		wg.Add(1)
		go func(i int, ad source.Adapter) {
			defer wg.Done()
			st := ad.HealthCheck(ctx)
			if st.Healthy {
				a.health.RecordSuccess(ad.Name(), time.Duration(st.LatencyMs)*time.Millisecond, a.configs[ad.Name()].Timeout)
			} else {
				a.health.RecordFailure(ad.Name(), errors.New(st.Error))
			}
			if a.tracks != nil {
				if cerr := a.tracks.SetHealth(ctx, st); cerr != nil {
					a.log.Warn("caching health status failed",
						logger.String("source", string(ad.Name())),
						logger.ErrorField(cerr))
				}
			}
			statuses[i] = st
		}(i, ad)
	}
	wg.Wait()
	return statuses
}

// Health exposes the tracker's current per-source view.
func (a *Aggregator) Health() []HealthSnapshot {
	return a.health.Snapshot()
}

// dedupe keeps the first result per artist|title key, preserving order.
func dedupe(results []model.SearchResult) []model.SearchResult {
	seen := make(map[string]struct{}, len(results))
	out := results[:0]
	for _, r := range results {
		key := r.DedupKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}
