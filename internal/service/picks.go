package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pickforge/internal/domain"
	"github.com/pickforge/internal/metrics"
	"github.com/pickforge/internal/odds"
)

// IndexBuilder builds the game index used to lock picks. It always goes to
// the provider: kickoff times must be as fresh as possible.
type IndexBuilder struct {
	fetcher OddsFetcher
}

// NewIndexBuilder creates a new index builder
func NewIndexBuilder(fetcher OddsFetcher) *IndexBuilder {
	return &IndexBuilder{fetcher: fetcher}
}

// Build fetches a moneyline-only snapshot and indexes it by game id
func (b *IndexBuilder) Build(ctx context.Context, league domain.League) (domain.GameIndex, error) {
	snap, err := b.fetcher.FetchOdds(ctx, odds.OddsRequest{
		League:  league,
		Region:  domain.DefaultRegion,
		Markets: string(domain.MarketH2H),
	})
	if err != nil {
		return nil, fmt.Errorf("building %s game index: %w", league, err)
	}
	return IndexGames(snap.Games), nil
}

// IndexGames reduces games to their lock data
func IndexGames(games []domain.Game) domain.GameIndex {
	index := make(domain.GameIndex, len(games))
	for _, g := range games {
		index[g.ID] = domain.IndexedGame{
			Kickoff:   g.CommenceTime,
			Home:      g.Home,
			Away:      g.Away,
			Moneyline: g.Moneyline,
		}
	}
	return index
}

// ValidateBatch checks request-level preconditions. A malformed item fails
// the whole batch.
func ValidateBatch(picks []domain.ProposedPick) error {
	if len(picks) == 0 {
		return domain.ErrNoPicks
	}
	for _, p := range picks {
		if p.GameID == "" || !p.Side.Valid() {
			return domain.ErrBadPick
		}
	}
	return nil
}

// Decide partitions picks against the index at instant now. A game locks at
// its kickoff instant: now == kickoff is rejected.
func Decide(picks []domain.ProposedPick, index domain.GameIndex, now time.Time) domain.PickDecision {
	decision := domain.PickDecision{
		Accepted: make([]domain.AcceptedPick, 0, len(picks)),
		Rejected: make([]domain.RejectedPick, 0),
	}

	for _, p := range picks {
		game, ok := index[p.GameID]
		if !ok {
			decision.Rejected = append(decision.Rejected, domain.RejectedPick{
				GameID: p.GameID,
				Side:   p.Side,
				Reason: domain.ReasonUnknownGame,
			})
			continue
		}
		if !now.Before(game.Kickoff) {
			decision.Rejected = append(decision.Rejected, domain.RejectedPick{
				GameID: p.GameID,
				Side:   p.Side,
				Reason: domain.ReasonLocked,
			})
			continue
		}

		team := game.Home
		if p.Side == domain.SideAway {
			team = game.Away
		}
		accepted := domain.AcceptedPick{
			GameID:     p.GameID,
			Side:       p.Side,
			Team:       team,
			Home:       game.Home,
			Away:       game.Away,
			Kickoff:    game.Kickoff,
			ReceivedAt: now,
		}
		if price, ok := game.Moneyline[team]; ok {
			accepted.Price = &price
		}
		decision.Accepted = append(decision.Accepted, accepted)
	}

	return decision
}

// GameIndexer builds a fresh game index for a league
type GameIndexer interface {
	Build(ctx context.Context, league domain.League) (domain.GameIndex, error)
}

// PickStore persists accepted picks
type PickStore interface {
	SavePicks(ctx context.Context, userID string, league domain.League, picks []domain.AcceptedPick) error
	ListUserPicks(ctx context.Context, userID string, league domain.League, week int) ([]domain.StoredPick, error)
}

// WeekFunc assigns a week number to a kickoff
type WeekFunc func(league domain.League, kickoff time.Time) int

// Submission is the outcome of a pick submission
type Submission struct {
	ServerTime time.Time
	League     domain.League
	Decision   domain.PickDecision
}

// PickService runs pick intake and locking
type PickService struct {
	indexer GameIndexer
	store   PickStore
	week    WeekFunc
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewPickService creates a new pick service. store may be nil, in which
// case decisions are returned without being persisted.
func NewPickService(
	indexer GameIndexer,
	store PickStore,
	week WeekFunc,
	m *metrics.Metrics,
	logger *slog.Logger,
) *PickService {
	return &PickService{
		indexer: indexer,
		store:   store,
		week:    week,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Submit validates a batch, decides every pick against a freshly built
// index and persists accepted picks when a user is known.
func (s *PickService) Submit(ctx context.Context, userID string, batch domain.PickBatch) (Submission, error) {
	if err := ValidateBatch(batch.Picks); err != nil {
		return Submission{}, err
	}

	league := domain.ParseLeague(batch.League)
	index, err := s.indexer.Build(ctx, league)
	if err != nil {
		return Submission{}, err
	}

	now := s.now().UTC()
	decision := Decide(batch.Picks, index, now)
	if s.week != nil {
		for i := range decision.Accepted {
			decision.Accepted[i].Week = s.week(league, decision.Accepted[i].Kickoff)
		}
	}

	s.metrics.PickAccepted(len(decision.Accepted))
	for _, r := range decision.Rejected {
		s.metrics.PickRejected(string(r.Reason))
	}

	if userID != "" && s.store != nil && len(decision.Accepted) > 0 {
		if err := s.store.SavePicks(ctx, userID, league, decision.Accepted); err != nil {
			s.logger.Error("failed to persist accepted picks",
				"user_id", userID,
				"league", league,
				"count", len(decision.Accepted),
				"error", err,
			)
		}
	}

	return Submission{ServerTime: now, League: league, Decision: decision}, nil
}

// List returns a user's stored picks. week 0 lists the whole season.
func (s *PickService) List(ctx context.Context, userID string, league domain.League, week int) ([]domain.StoredPick, error) {
	if userID == "" || week < 0 {
		return nil, domain.ErrInvalidRequest
	}
	if s.store == nil {
		return nil, domain.ErrStoreUnavailable
	}
	picks, err := s.store.ListUserPicks(ctx, userID, league, week)
	if err != nil {
		return nil, fmt.Errorf("listing picks for %s: %w", userID, err)
	}
	return picks, nil
}
