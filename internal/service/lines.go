package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pickforge/internal/cache"
	"github.com/pickforge/internal/config"
	"github.com/pickforge/internal/domain"
	"github.com/pickforge/internal/metrics"
	"github.com/pickforge/internal/odds"
	"golang.org/x/sync/singleflight"
)

// OddsFetcher fetches normalized odds from the provider
type OddsFetcher interface {
	FetchOdds(ctx context.Context, req odds.OddsRequest) (domain.OddsSnapshot, error)
}

// SyncTrigger schedules a result sync without blocking the caller
type SyncTrigger interface {
	Trigger(league domain.League) bool
}

// LinesQuery holds the raw odds request parameters
type LinesQuery struct {
	League  string
	Region  string
	Markets string
}

// Lines is a served odds response
type Lines struct {
	League   domain.League
	Snapshot domain.OddsSnapshot
	Cached   bool
}

// LinesService serves odds through the cache
type LinesService struct {
	fetcher OddsFetcher
	cache   *cache.OddsCache
	sync    SyncTrigger
	ttl     time.Duration
	timeout time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewLinesService creates a new lines service. sync may be nil.
func NewLinesService(
	fetcher OddsFetcher,
	oddsCache *cache.OddsCache,
	sync SyncTrigger,
	cfg *config.OddsConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *LinesService {
	return &LinesService{
		fetcher: fetcher,
		cache:   oddsCache,
		sync:    sync,
		ttl:     cfg.CacheTTL,
		timeout: cfg.Timeout,
		metrics: m,
		logger:  logger,
	}
}

// GetLines returns odds for the query, from cache when fresh. A successful
// upstream fetch schedules a result sync for the league.
func (s *LinesService) GetLines(ctx context.Context, q LinesQuery) (Lines, error) {
	league := domain.ParseLeague(q.League)
	region := domain.ParseRegion(q.Region)
	markets := domain.MapMarkets(q.Markets)
	key := cache.Fingerprint(league, region, markets)

	if snap, ok := s.cache.Get(key); ok {
		s.metrics.CacheLookup(true)
		return Lines{League: league, Snapshot: snap, Cached: true}, nil
	}
	s.metrics.CacheLookup(false)

	// Concurrent misses for one fingerprint share a single upstream call.
	// The shared fetch is detached from any one caller's cancellation.
	ch := s.group.DoChan(key, func() (interface{}, error) {
		fetchCtx := context.WithoutCancel(ctx)
		if s.timeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(fetchCtx, s.timeout)
			defer cancel()
		}

		snap, err := s.fetcher.FetchOdds(fetchCtx, odds.OddsRequest{
			League:  league,
			Region:  region,
			Markets: markets,
		})
		if err != nil {
			return domain.OddsSnapshot{}, err
		}
		s.cache.Put(key, snap, s.ttl)
		return snap, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return Lines{}, fmt.Errorf("fetching %s odds: %w", league, ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		return Lines{}, fmt.Errorf("fetching %s odds: %w", league, res.Err)
	}

	if s.sync != nil && !s.sync.Trigger(league) {
		s.logger.Warn("result sync queue full, trigger dropped", "league", league)
	}

	return Lines{League: league, Snapshot: res.Val.(domain.OddsSnapshot)}, nil
}
