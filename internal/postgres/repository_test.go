package postgres

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pickforge/internal/domain"
)

// newTestRepository connects to PICKFORGE_TEST_DATABASE_URL and migrates a
// fresh schema that is dropped when the test ends.
func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	url := os.Getenv("PICKFORGE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PICKFORGE_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	admin, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}
	t.Cleanup(admin.Close)

	schema := "pickforge_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := admin.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", schema)); err != nil {
		t.Fatalf("creating schema: %v", err)
	}
	t.Cleanup(func() {
		admin.Exec(context.Background(), fmt.Sprintf("DROP SCHEMA %s CASCADE", schema))
	})

	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		t.Fatalf("parsing url: %v", err)
	}
	poolConfig.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}

	repo := &Repository{pool: pool, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	// registered after the schema drop so it runs first
	t.Cleanup(repo.Close)

	if err := repo.RunMigrations(ctx); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return repo
}

func intPtr(v int) *int { return &v }

var (
	kickoff = time.Date(2026, 10, 18, 17, 0, 0, 0, time.UTC)
	t0      = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
)

func acceptedPick(gameID string, side domain.Side, week int, received time.Time) domain.AcceptedPick {
	return domain.AcceptedPick{
		GameID:     gameID,
		Side:       side,
		Team:       gameID + "-" + string(side),
		Kickoff:    kickoff,
		ReceivedAt: received,
		Week:       week,
	}
}

func TestUpsertGameResults_KeepsFirstWeekAndScores(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	first := domain.GameResult{
		ID: "G1", League: domain.LeagueNFL, Week: 6,
		Home: "Bears", Away: "Lions", CommenceTime: kickoff,
		Status: domain.GameStatusFinal, HomeScore: intPtr(21), AwayScore: intPtr(14),
	}
	if err := repo.UpsertGameResults(ctx, []domain.GameResult{first}); err != nil {
		t.Fatal(err)
	}

	// a later report with another week and no scores
	later := first
	later.Week = 7
	later.Status = domain.GameStatusScheduled
	later.HomeScore = nil
	later.AwayScore = nil
	if err := repo.UpsertGameResults(ctx, []domain.GameResult{later}); err != nil {
		t.Fatal(err)
	}

	var week int
	var status string
	var home, away *int
	err := repo.pool.QueryRow(ctx,
		`SELECT week, status, home_score, away_score FROM games WHERE id = $1`, "G1",
	).Scan(&week, &status, &home, &away)
	if err != nil {
		t.Fatal(err)
	}
	if week != 6 {
		t.Errorf("week = %d, want the first recorded week 6", week)
	}
	if status != string(domain.GameStatusScheduled) {
		t.Errorf("status = %s", status)
	}
	if home == nil || away == nil || *home != 21 || *away != 14 {
		t.Errorf("scores = %v-%v, want 21-14 kept", home, away)
	}
}

func TestPickedGames_UsesEarliestPickWeek(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if err := repo.SavePicks(ctx, "late", domain.LeagueNFL, []domain.AcceptedPick{
		acceptedPick("G1", domain.SideAway, 7, t0.Add(2*time.Hour)),
	}); err != nil {
		t.Fatal(err)
	}
	if err := repo.SavePicks(ctx, "early", domain.LeagueNFL, []domain.AcceptedPick{
		acceptedPick("G1", domain.SideHome, 6, t0),
		acceptedPick("G2", domain.SideHome, 6, t0),
	}); err != nil {
		t.Fatal(err)
	}
	if err := repo.SavePicks(ctx, "early", domain.LeagueNBA, []domain.AcceptedPick{
		acceptedPick("N1", domain.SideHome, 1, t0),
	}); err != nil {
		t.Fatal(err)
	}

	weeks, err := repo.PickedGames(ctx, domain.LeagueNFL)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]int{"G1": 6, "G2": 6}
	if len(weeks) != len(want) {
		t.Fatalf("picked games = %v, want %v", weeks, want)
	}
	for id, w := range want {
		if weeks[id] != w {
			t.Errorf("%s week = %d, want %d", id, weeks[id], w)
		}
	}
}

func TestSavePicks_RewritesOnlyPendingPicks(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	save := func(gameID string, side domain.Side) {
		t.Helper()
		if err := repo.SavePicks(ctx, "u1", domain.LeagueNFL, []domain.AcceptedPick{
			acceptedPick(gameID, side, 6, t0),
		}); err != nil {
			t.Fatal(err)
		}
	}

	save("G1", domain.SideHome)
	save("G2", domain.SideHome)
	picks, err := repo.ListUserPicks(ctx, "u1", domain.LeagueNFL, 0)
	if err != nil {
		t.Fatal(err)
	}
	ids := make(map[string]string)
	for _, p := range picks {
		ids[p.GameID] = p.ID
	}

	settled, err := repo.SettlePicks(ctx, []domain.GradedPick{
		{PickID: ids["G2"], UserID: "u1", League: domain.LeagueNFL, Week: 6, Result: domain.OutcomeWin, Points: 2},
	})
	if err != nil || len(settled) != 1 {
		t.Fatalf("settled = %v, err = %v", settled, err)
	}

	save("G1", domain.SideAway)
	save("G2", domain.SideAway)

	picks, err = repo.ListUserPicks(ctx, "u1", domain.LeagueNFL, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(picks) != 2 {
		t.Fatalf("got %d picks, want 2", len(picks))
	}
	for _, p := range picks {
		if p.ID != ids[p.GameID] {
			t.Errorf("%s id changed on resubmission", p.GameID)
		}
		switch p.GameID {
		case "G1":
			if p.Side != domain.SideAway || p.Result != domain.OutcomePending {
				t.Errorf("pending pick = %+v, want rewritten to away", p)
			}
		case "G2":
			if p.Side != domain.SideHome || p.Result != domain.OutcomeWin || p.Points != 2 {
				t.Errorf("settled pick = %+v, want unchanged", p)
			}
		}
	}
}

func TestSettlePicks_Idempotent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if err := repo.SavePicks(ctx, "u1", domain.LeagueNHL, []domain.AcceptedPick{
		acceptedPick("H1", domain.SideHome, 2, t0),
	}); err != nil {
		t.Fatal(err)
	}
	pending, err := repo.PendingPicks(ctx, domain.LeagueNHL, "H1")
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending = %v, err = %v", pending, err)
	}

	graded := []domain.GradedPick{
		{PickID: pending[0].ID, UserID: "u1", League: domain.LeagueNHL, Week: 2, Result: domain.OutcomeLoss},
		{PickID: "not-a-uuid", UserID: "u2", League: domain.LeagueNHL, Week: 2, Result: domain.OutcomeWin, Points: 2},
	}

	first, err := repo.SettlePicks(ctx, graded)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 || first[0].PickID != pending[0].ID {
		t.Fatalf("first settle = %+v, want only the stored pick", first)
	}

	second, err := repo.SettlePicks(ctx, graded)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 0 {
		t.Errorf("second settle = %+v, want none", second)
	}

	if pending, _ := repo.PendingPicks(ctx, domain.LeagueNHL, "H1"); len(pending) != 0 {
		t.Errorf("still pending: %+v", pending)
	}

	all, err := repo.SettledPicks(ctx, domain.LeagueNHL)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Result != domain.OutcomeLoss || all[0].UserID != "u1" || all[0].Week != 2 {
		t.Errorf("settled picks = %+v", all)
	}
}

func TestListUserPicks_WeekFilter(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if err := repo.SavePicks(ctx, "u1", domain.LeagueNFL, []domain.AcceptedPick{
		acceptedPick("G1", domain.SideHome, 5, t0),
		acceptedPick("G2", domain.SideAway, 6, t0),
	}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		user string
		week int
		want int
	}{
		{"all weeks", "u1", 0, 2},
		{"one week", "u1", 6, 1},
		{"empty week", "u1", 9, 0},
		{"other user", "u2", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			picks, err := repo.ListUserPicks(ctx, tt.user, domain.LeagueNFL, tt.week)
			if err != nil {
				t.Fatal(err)
			}
			if picks == nil {
				t.Fatal("picks should be an empty slice, not nil")
			}
			if len(picks) != tt.want {
				t.Errorf("got %d picks, want %d", len(picks), tt.want)
			}
		})
	}
}
