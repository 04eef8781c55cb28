package service

import (
	"context"
	"fmt"

	"github.com/pickforge/internal/domain"
)

const (
	defaultStandingsLimit = 25
	maxStandingsLimit     = 100
)

// StandingsReader reads ranked standings. week 0 means the season table.
type StandingsReader interface {
	Top(ctx context.Context, league domain.League, week int, n int) ([]domain.Standing, error)
	Rank(ctx context.Context, league domain.League, week int, userID string) (*domain.Standing, error)
}

// StandingsService serves league standings
type StandingsService struct {
	reader StandingsReader
}

// NewStandingsService creates a new standings service. reader may be nil
// when Redis is not configured.
func NewStandingsService(reader StandingsReader) *StandingsService {
	return &StandingsService{reader: reader}
}

// Top returns the top entries for a league, clamping the limit
func (s *StandingsService) Top(ctx context.Context, league domain.League, week, limit int) ([]domain.Standing, error) {
	if s.reader == nil {
		return nil, domain.ErrStoreUnavailable
	}
	if week < 0 {
		return nil, domain.ErrInvalidRequest
	}
	if limit <= 0 {
		limit = defaultStandingsLimit
	}
	if limit > maxStandingsLimit {
		limit = maxStandingsLimit
	}

	entries, err := s.reader.Top(ctx, league, week, limit)
	if err != nil {
		return nil, fmt.Errorf("reading %s standings: %w", league, err)
	}
	return entries, nil
}

// Rank returns one user's standing in a league table
func (s *StandingsService) Rank(ctx context.Context, league domain.League, week int, userID string) (*domain.Standing, error) {
	if s.reader == nil {
		return nil, domain.ErrStoreUnavailable
	}
	if week < 0 || userID == "" {
		return nil, domain.ErrInvalidRequest
	}
	return s.reader.Rank(ctx, league, week, userID)
}
