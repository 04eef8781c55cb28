package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pickforge/internal/config"
	"github.com/pickforge/internal/domain"
)

// Repository provides PostgreSQL-based storage for picks and game results
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks database connectivity
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS picks (
			id UUID PRIMARY KEY,
			user_id VARCHAR(128) NOT NULL,
			league VARCHAR(16) NOT NULL,
			week INT NOT NULL,
			game_id VARCHAR(64) NOT NULL,
			side VARCHAR(8) NOT NULL,
			team VARCHAR(128) NOT NULL,
			price INT,
			kickoff TIMESTAMPTZ NOT NULL,
			result VARCHAR(10) NOT NULL DEFAULT 'pending',
			points DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, league, game_id)
		)`,
		`CREATE TABLE IF NOT EXISTS games (
			id VARCHAR(64) PRIMARY KEY,
			league VARCHAR(16) NOT NULL,
			week INT NOT NULL,
			home_team VARCHAR(128) NOT NULL,
			away_team VARCHAR(128) NOT NULL,
			commence_time TIMESTAMPTZ NOT NULL,
			status VARCHAR(16) NOT NULL DEFAULT 'scheduled',
			home_score INT,
			away_score INT,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_picks_league_game ON picks(league, game_id)`,
		`CREATE INDEX IF NOT EXISTS idx_picks_pending ON picks(game_id) WHERE result = 'pending'`,
		`CREATE INDEX IF NOT EXISTS idx_games_league_week ON games(league, week)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// SavePicks upserts accepted picks for a user. Resubmitting a game before
// lock replaces the side, team, price and week of the earlier pick.
func (r *Repository) SavePicks(ctx context.Context, userID string, league domain.League, picks []domain.AcceptedPick) error {
	if len(picks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO picks (id, user_id, league, week, game_id, side, team, price, kickoff, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (user_id, league, game_id)
		DO UPDATE SET side = $6, team = $7, price = $8, week = $4, kickoff = $9, updated_at = $10
		WHERE picks.result = 'pending'
	`

	for _, p := range picks {
		batch.Queue(query,
			uuid.New(),
			userID,
			string(league),
			p.Week,
			p.GameID,
			string(p.Side),
			p.Team,
			p.Price,
			p.Kickoff,
			p.ReceivedAt,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range picks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("saving picks: %w", err)
		}
	}
	return nil
}

// ListUserPicks returns a user's picks for a league, newest kickoff first.
// week 0 returns every week.
func (r *Repository) ListUserPicks(ctx context.Context, userID string, league domain.League, week int) ([]domain.StoredPick, error) {
	query := `
		SELECT id, user_id, league, week, game_id, side, team, price, kickoff, created_at, result, points
		FROM picks
		WHERE user_id = $1 AND league = $2 AND ($3 = 0 OR week = $3)
		ORDER BY kickoff DESC, game_id
	`
	rows, err := r.pool.Query(ctx, query, userID, string(league), week)
	if err != nil {
		return nil, fmt.Errorf("listing picks: %w", err)
	}
	defer rows.Close()

	picks := make([]domain.StoredPick, 0)
	for rows.Next() {
		p, err := scanPick(rows)
		if err != nil {
			return nil, err
		}
		picks = append(picks, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing picks: %w", err)
	}
	return picks, nil
}

// PickedGames returns game id -> week for every game of the league that has
// at least one pick. The week comes from the earliest pick on the game.
func (r *Repository) PickedGames(ctx context.Context, league domain.League) (map[string]int, error) {
	query := `
		SELECT DISTINCT ON (game_id) game_id, week
		FROM picks
		WHERE league = $1
		ORDER BY game_id, created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, string(league))
	if err != nil {
		return nil, fmt.Errorf("listing picked games: %w", err)
	}
	defer rows.Close()

	weeks := make(map[string]int)
	for rows.Next() {
		var gameID string
		var week int
		if err := rows.Scan(&gameID, &week); err != nil {
			return nil, fmt.Errorf("scanning picked game: %w", err)
		}
		weeks[gameID] = week
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing picked games: %w", err)
	}
	return weeks, nil
}

// UpsertGameResults writes game rows keyed by id. The week column is set on
// insert only, so the first week recorded for a game is kept.
func (r *Repository) UpsertGameResults(ctx context.Context, results []domain.GameResult) error {
	if len(results) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO games (id, league, week, home_team, away_team, commence_time, status, home_score, away_score, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id)
		DO UPDATE SET
			home_team = $4,
			away_team = $5,
			commence_time = $6,
			status = $7,
			home_score = COALESCE($8, games.home_score),
			away_score = COALESCE($9, games.away_score),
			updated_at = $10
	`
	now := time.Now()

	for _, res := range results {
		batch.Queue(query,
			res.ID,
			string(res.League),
			res.Week,
			res.Home,
			res.Away,
			res.CommenceTime,
			string(res.Status),
			res.HomeScore,
			res.AwayScore,
			now,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range results {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upserting game results: %w", err)
		}
	}
	return nil
}

// PendingPicks returns the unsettled picks on a game
func (r *Repository) PendingPicks(ctx context.Context, league domain.League, gameID string) ([]domain.StoredPick, error) {
	query := `
		SELECT id, user_id, league, week, game_id, side, team, price, kickoff, created_at, result, points
		FROM picks
		WHERE league = $1 AND game_id = $2 AND result = 'pending'
	`
	rows, err := r.pool.Query(ctx, query, string(league), gameID)
	if err != nil {
		return nil, fmt.Errorf("listing pending picks: %w", err)
	}
	defer rows.Close()

	var picks []domain.StoredPick
	for rows.Next() {
		p, err := scanPick(rows)
		if err != nil {
			return nil, err
		}
		picks = append(picks, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing pending picks: %w", err)
	}
	return picks, nil
}

// SettlePicks records grades for picks that are still pending and returns
// the ones this call settled. A pick settled concurrently is skipped.
func (r *Repository) SettlePicks(ctx context.Context, graded []domain.GradedPick) ([]domain.GradedPick, error) {
	if len(graded) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	query := `
		UPDATE picks SET result = $2, points = $3, updated_at = $4
		WHERE id = $1 AND result = 'pending'
	`
	now := time.Now()

	queued := make([]domain.GradedPick, 0, len(graded))
	for _, g := range graded {
		id, err := uuid.Parse(g.PickID)
		if err != nil {
			r.logger.Warn("skipping pick with invalid id", "pick_id", g.PickID, "error", err)
			continue
		}
		batch.Queue(query, id, string(g.Result), g.Points, now)
		queued = append(queued, g)
	}
	if len(queued) == 0 {
		return nil, nil
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	settled := make([]domain.GradedPick, 0, len(queued))
	for _, g := range queued {
		tag, err := br.Exec()
		if err != nil {
			return settled, fmt.Errorf("settling picks: %w", err)
		}
		if tag.RowsAffected() == 1 {
			settled = append(settled, g)
		}
	}
	return settled, nil
}

// SettledPicks returns every graded pick of a league, the source of truth
// for rebuilding standings.
func (r *Repository) SettledPicks(ctx context.Context, league domain.League) ([]domain.GradedPick, error) {
	query := `
		SELECT id, user_id, league, week, result, points
		FROM picks
		WHERE league = $1 AND result <> 'pending'
	`
	rows, err := r.pool.Query(ctx, query, string(league))
	if err != nil {
		return nil, fmt.Errorf("listing settled picks: %w", err)
	}
	defer rows.Close()

	var graded []domain.GradedPick
	for rows.Next() {
		var g domain.GradedPick
		var id uuid.UUID
		if err := rows.Scan(&id, &g.UserID, &g.League, &g.Week, &g.Result, &g.Points); err != nil {
			return nil, fmt.Errorf("scanning settled pick: %w", err)
		}
		g.PickID = id.String()
		graded = append(graded, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing settled picks: %w", err)
	}
	return graded, nil
}

func scanPick(rows pgx.Rows) (domain.StoredPick, error) {
	var p domain.StoredPick
	var id uuid.UUID
	err := rows.Scan(
		&id,
		&p.UserID,
		&p.League,
		&p.Week,
		&p.GameID,
		&p.Side,
		&p.Team,
		&p.Price,
		&p.Kickoff,
		&p.CreatedAt,
		&p.Result,
		&p.Points,
	)
	if err != nil {
		return domain.StoredPick{}, fmt.Errorf("scanning pick: %w", err)
	}
	p.ID = id.String()
	return p, nil
}
