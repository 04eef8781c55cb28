package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pickforge/internal/config"
	"github.com/pickforge/internal/domain"
	"github.com/pickforge/internal/metrics"
	"github.com/pickforge/internal/scoring"
)

const standingsBroadcastSize = 10

// ResultStore is the persisted store result sync writes to
type ResultStore interface {
	PickedGames(ctx context.Context, league domain.League) (map[string]int, error)
	UpsertGameResults(ctx context.Context, results []domain.GameResult) error
	PendingPicks(ctx context.Context, league domain.League, gameID string) ([]domain.StoredPick, error)
	SettlePicks(ctx context.Context, graded []domain.GradedPick) ([]domain.GradedPick, error)
	SettledPicks(ctx context.Context, league domain.League) ([]domain.GradedPick, error)
}

// ScoreFetcher fetches recent scores from the provider
type ScoreFetcher interface {
	FetchScores(ctx context.Context, league domain.League, daysFrom int) ([]domain.ScoreEvent, error)
}

// StandingsStore credits graded picks and reads the resulting tables.
// Rebuild replaces a league's tables with the given settled picks.
type StandingsStore interface {
	AddPoints(ctx context.Context, graded []domain.GradedPick) error
	Rebuild(ctx context.Context, league domain.League, settled []domain.GradedPick) error
	Top(ctx context.Context, league domain.League, week int, n int) ([]domain.Standing, error)
}

// Broadcaster pushes live updates to subscribers of a league
type Broadcaster interface {
	BroadcastGameResult(result domain.GameResult)
	BroadcastStandings(league domain.League, week int, standings []domain.Standing)
}

// ResultSyncer writes game results for picked games and settles their
// picks. Jobs run on one goroutine fed by Trigger and an optional ticker.
type ResultSyncer struct {
	store     ResultStore
	fetcher   ScoreFetcher
	standings StandingsStore
	hub       Broadcaster
	config    *config.SyncConfig
	daysFrom  int
	metrics   *metrics.Metrics
	logger    *slog.Logger

	queue   chan domain.League
	pending map[domain.League]bool
	stale   map[domain.League]bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewResultSyncer creates a new result syncer. store, standings and hub
// may be nil; without a store every job is skipped.
func NewResultSyncer(
	store ResultStore,
	fetcher ScoreFetcher,
	standings StandingsStore,
	hub Broadcaster,
	cfg *config.SyncConfig,
	daysFrom int,
	m *metrics.Metrics,
	logger *slog.Logger,
) *ResultSyncer {
	size := cfg.QueueSize
	if size <= 0 {
		size = 16
	}
	return &ResultSyncer{
		store:     store,
		fetcher:   fetcher,
		standings: standings,
		hub:       hub,
		config:    cfg,
		daysFrom:  daysFrom,
		metrics:   m,
		logger:    logger,
		queue:     make(chan domain.League, size),
		pending:   make(map[domain.League]bool),
		stale:     make(map[domain.League]bool),
	}
}

// Trigger schedules a sync for the league without blocking. A league that
// already has a queued job is coalesced into it. It reports false when the
// queue is full and the trigger was dropped.
func (w *ResultSyncer) Trigger(league domain.League) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending[league] {
		return true
	}
	select {
	case w.queue <- league:
		w.pending[league] = true
		return true
	default:
		w.metrics.SyncRun(metrics.SyncDropped)
		return false
	}
}

// Start begins processing queued and periodic jobs. A stopped syncer can
// be started again.
func (w *ResultSyncer) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	w.logger.Info("result syncer started",
		"interval", w.config.Interval,
		"periodic", w.config.Enabled,
	)

	go w.run(ctx, stopCh, doneCh)
	return nil
}

// Stop stops the worker and waits for the current job to finish
func (w *ResultSyncer) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)
	<-doneCh

	w.logger.Info("result syncer stopped")
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *ResultSyncer) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// run is the main worker loop
func (w *ResultSyncer) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	var tick <-chan time.Time
	if w.config.Enabled && w.config.Interval > 0 {
		ticker := time.NewTicker(w.config.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case league := <-w.queue:
			w.mu.Lock()
			delete(w.pending, league)
			w.mu.Unlock()
			w.runJob(ctx, league)
		case <-tick:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce syncs every league (useful for manual triggers)
func (w *ResultSyncer) RunOnce(ctx context.Context) {
	startTime := time.Now()
	for _, league := range domain.Leagues() {
		w.runJob(ctx, league)
	}
	w.logger.Debug("sync cycle completed", "duration", time.Since(startTime))
}

func (w *ResultSyncer) runJob(ctx context.Context, league domain.League) {
	if w.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.JobTimeout)
		defer cancel()
	}

	if err := w.Sync(ctx, league); err != nil {
		if errors.Is(err, domain.ErrStoreUnavailable) {
			w.metrics.SyncRun(metrics.SyncSkipped)
			return
		}
		w.metrics.SyncRun(metrics.SyncError)
		w.logger.Error("result sync failed", "league", league, "error", err)
		return
	}
	w.metrics.SyncRun(metrics.SyncOK)
}

// Sync fetches recent scores for a league and applies them to picked
// games. Leagues without picks never reach the provider.
func (w *ResultSyncer) Sync(ctx context.Context, league domain.League) error {
	if w.store == nil {
		return domain.ErrStoreUnavailable
	}
	defer w.rebuildIfStale(ctx, league)

	weeks, err := w.store.PickedGames(ctx, league)
	if err != nil {
		return fmt.Errorf("reading picked games: %w", err)
	}
	if len(weeks) == 0 {
		return nil
	}

	events, err := w.fetcher.FetchScores(ctx, league, w.daysFrom)
	if err != nil {
		return fmt.Errorf("fetching scores: %w", err)
	}

	return w.apply(ctx, league, weeks, events)
}

// Apply writes pushed score events, grouped by league. It is the entry
// point for score feeds other than the provider's scores endpoint.
func (w *ResultSyncer) Apply(ctx context.Context, events []domain.ScoreEvent) error {
	if w.store == nil {
		return domain.ErrStoreUnavailable
	}

	byLeague := make(map[domain.League][]domain.ScoreEvent)
	for _, ev := range events {
		byLeague[ev.League] = append(byLeague[ev.League], ev)
	}

	for league, evs := range byLeague {
		weeks, err := w.store.PickedGames(ctx, league)
		if err != nil {
			return fmt.Errorf("reading picked games: %w", err)
		}
		err = w.apply(ctx, league, weeks, evs)
		w.rebuildIfStale(ctx, league)
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *ResultSyncer) apply(ctx context.Context, league domain.League, weeks map[string]int, events []domain.ScoreEvent) error {
	results := make([]domain.GameResult, 0, len(events))
	var gradable []domain.ScoreEvent
	for _, ev := range events {
		week, ok := weeks[ev.ID]
		if !ok {
			continue
		}
		results = append(results, ev.ToResult(week))
		if ev.Gradable() {
			gradable = append(gradable, ev)
		}
	}
	if len(results) == 0 {
		return nil
	}

	if err := w.store.UpsertGameResults(ctx, results); err != nil {
		return fmt.Errorf("upserting game results: %w", err)
	}
	w.metrics.ResultsUpserted(len(results))
	w.logger.Info("game results synced", "league", league, "count", len(results))

	if w.hub != nil {
		for _, res := range results {
			w.hub.BroadcastGameResult(res)
		}
	}

	touched := make(map[int]bool)
	for _, ev := range gradable {
		settled, err := w.grade(ctx, league, ev)
		if err != nil {
			return fmt.Errorf("grading game %s: %w", ev.ID, err)
		}
		for _, g := range settled {
			touched[g.Week] = true
		}
	}

	w.broadcastStandings(ctx, league, touched)
	return nil
}

// grade settles the pending picks of a completed game and credits the
// standings with the picks this call settled.
func (w *ResultSyncer) grade(ctx context.Context, league domain.League, ev domain.ScoreEvent) ([]domain.GradedPick, error) {
	picks, err := w.store.PendingPicks(ctx, league, ev.ID)
	if err != nil {
		return nil, err
	}
	if len(picks) == 0 {
		return nil, nil
	}

	graded := make([]domain.GradedPick, 0, len(picks))
	for _, p := range picks {
		graded = append(graded, scoring.Grade(p, *ev.HomeScore, *ev.AwayScore))
	}

	settled, err := w.store.SettlePicks(ctx, graded)
	if err != nil {
		return nil, err
	}
	for _, g := range settled {
		w.metrics.PickGraded(string(g.Result))
	}

	if w.standings != nil && len(settled) > 0 {
		if err := w.standings.AddPoints(ctx, settled); err != nil {
			// settled picks are no longer pending, so the tables are
			// rebuilt from the store instead of retrying the credit
			w.markStale(league)
			w.logger.Error("failed to credit standings",
				"league", league,
				"game_id", ev.ID,
				"count", len(settled),
				"error", err,
			)
		}
	}
	return settled, nil
}

func (w *ResultSyncer) markStale(league domain.League) {
	w.mu.Lock()
	w.stale[league] = true
	w.mu.Unlock()
}

func (w *ResultSyncer) rebuildIfStale(ctx context.Context, league domain.League) {
	w.mu.Lock()
	stale := w.stale[league]
	w.mu.Unlock()
	if !stale {
		return
	}
	if err := w.RebuildStandings(ctx, league); err != nil {
		w.logger.Error("failed to rebuild standings", "league", league, "error", err)
	}
}

// RebuildStandings recomputes a league's standings from the settled picks
// in the store.
func (w *ResultSyncer) RebuildStandings(ctx context.Context, league domain.League) error {
	if w.store == nil || w.standings == nil {
		return domain.ErrStoreUnavailable
	}

	settled, err := w.store.SettledPicks(ctx, league)
	if err != nil {
		return fmt.Errorf("reading settled picks: %w", err)
	}
	if err := w.standings.Rebuild(ctx, league, settled); err != nil {
		return fmt.Errorf("rebuilding standings: %w", err)
	}

	w.mu.Lock()
	delete(w.stale, league)
	w.mu.Unlock()

	w.logger.Info("standings rebuilt", "league", league, "picks", len(settled))
	return nil
}

// RebuildAllStandings rebuilds every league, typically once at startup
func (w *ResultSyncer) RebuildAllStandings(ctx context.Context) error {
	var errs []error
	for _, league := range domain.Leagues() {
		if err := w.RebuildStandings(ctx, league); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", league, err))
		}
	}
	return errors.Join(errs...)
}

func (w *ResultSyncer) broadcastStandings(ctx context.Context, league domain.League, weeks map[int]bool) {
	if w.hub == nil || w.standings == nil || len(weeks) == 0 {
		return
	}
	weeks[0] = true
	for week := range weeks {
		top, err := w.standings.Top(ctx, league, week, standingsBroadcastSize)
		if err != nil {
			w.logger.Warn("failed to read standings for broadcast", "league", league, "week", week, "error", err)
			continue
		}
		w.hub.BroadcastStandings(league, week, top)
	}
}
