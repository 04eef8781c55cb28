package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pickforge/internal/config"
	"github.com/pickforge/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Standings keeps season and weekly pick standings in sorted sets
type Standings struct {
	client *redis.Client
	logger *slog.Logger
}

// NewStandings creates a new Redis standings store
func NewStandings(cfg *config.RedisConfig, logger *slog.Logger) (*Standings, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Standings{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (s *Standings) Close() error {
	return s.client.Close()
}

// Ping checks Redis connectivity
func (s *Standings) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// standingsKey returns the sorted set key for a league. week 0 is the season.
func standingsKey(league domain.League, week int) string {
	if week <= 0 {
		return fmt.Sprintf("standings:%s:season", league)
	}
	return fmt.Sprintf("standings:%s:week:%d", league, week)
}

// AddPoints credits graded picks to the season and weekly tables. Losses
// add zero points so every graded user appears in the standings.
func (s *Standings) AddPoints(ctx context.Context, graded []domain.GradedPick) error {
	if len(graded) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, g := range graded {
		pipe.ZIncrBy(ctx, standingsKey(g.League, 0), g.Points, g.UserID)
		pipe.ZIncrBy(ctx, standingsKey(g.League, g.Week), g.Points, g.UserID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("adding points: %w", err)
	}
	return nil
}

// Rebuild replaces every standings table of a league with totals computed
// from the given settled picks, in one MULTI/EXEC.
func (s *Standings) Rebuild(ctx context.Context, league domain.League, settled []domain.GradedPick) error {
	keys, err := s.leagueKeys(ctx, league)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		for _, g := range settled {
			pipe.ZIncrBy(ctx, standingsKey(league, 0), g.Points, g.UserID)
			pipe.ZIncrBy(ctx, standingsKey(league, g.Week), g.Points, g.UserID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("rebuilding %s standings: %w", league, err)
	}
	return nil
}

// leagueKeys lists the season key and every weekly key of a league
func (s *Standings) leagueKeys(ctx context.Context, league domain.League) ([]string, error) {
	keys := []string{standingsKey(league, 0)}
	iter := s.client.Scan(ctx, 0, fmt.Sprintf("standings:%s:week:*", league), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s standings keys: %w", league, err)
	}
	return keys, nil
}

// Top returns the top n users of a league table (descending points)
func (s *Standings) Top(ctx context.Context, league domain.League, week int, n int) ([]domain.Standing, error) {
	key := standingsKey(league, week)
	results, err := s.client.ZRevRangeWithScores(ctx, key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top standings: %w", err)
	}
	return toStandings(results, 0), nil
}

// Rank returns a user's position in a league table
func (s *Standings) Rank(ctx context.Context, league domain.League, week int, userID string) (*domain.Standing, error) {
	key := standingsKey(league, week)

	// Use pipeline to get both rank and score
	pipe := s.client.Pipeline()
	rankCmd := pipe.ZRevRank(ctx, key, userID)
	scoreCmd := pipe.ZScore(ctx, key, userID)
	_, err := pipe.Exec(ctx)

	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrUserNotRanked
		}
		return nil, fmt.Errorf("getting user rank: %w", err)
	}

	rank, err := rankCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("getting rank result: %w", err)
	}
	points, err := scoreCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("getting score result: %w", err)
	}

	return &domain.Standing{
		Rank:   rank + 1, // Convert 0-indexed to 1-indexed
		UserID: userID,
		Points: points,
	}, nil
}

func toStandings(results []redis.Z, offset int64) []domain.Standing {
	entries := make([]domain.Standing, 0, len(results))
	for i, z := range results {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, domain.Standing{
			Rank:   offset + int64(i) + 1,
			UserID: member,
			Points: z.Score,
		})
	}
	return entries
}
