package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pickforge/internal/config"
	"github.com/pickforge/internal/domain"
)

func intPtr(v int) *int { return &v }

type fakeStore struct {
	mu       sync.Mutex
	picked   map[domain.League]map[string]int
	pending  map[string][]domain.StoredPick
	upserted []domain.GameResult
	skip     map[string]bool // pick ids settled elsewhere
	settled  []domain.GradedPick
	pickErr  error
}

func (s *fakeStore) PickedGames(_ context.Context, league domain.League) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.picked[league], s.pickErr
}

func (s *fakeStore) UpsertGameResults(_ context.Context, results []domain.GameResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserted = append(s.upserted, results...)
	return nil
}

func (s *fakeStore) PendingPicks(_ context.Context, _ domain.League, gameID string) ([]domain.StoredPick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[gameID], nil
}

func (s *fakeStore) SettlePicks(_ context.Context, graded []domain.GradedPick) ([]domain.GradedPick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var settled []domain.GradedPick
	for _, g := range graded {
		if !s.skip[g.PickID] {
			settled = append(settled, g)
		}
	}
	s.settled = append(s.settled, settled...)
	return settled, nil
}

func (s *fakeStore) SettledPicks(_ context.Context, league domain.League) ([]domain.GradedPick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.GradedPick
	for _, g := range s.settled {
		if g.League == league {
			out = append(out, g)
		}
	}
	return out, nil
}

type fakeFetcher struct {
	mu     sync.Mutex
	calls  []domain.League
	events []domain.ScoreEvent
	err    error
	called chan domain.League
}

func (f *fakeFetcher) FetchScores(_ context.Context, league domain.League, _ int) ([]domain.ScoreEvent, error) {
	f.mu.Lock()
	f.calls = append(f.calls, league)
	f.mu.Unlock()
	if f.called != nil {
		f.called <- league
	}
	return f.events, f.err
}

type fakeStandings struct {
	added   []domain.GradedPick
	addErr  error
	rebuilt map[domain.League][]domain.GradedPick
}

func (s *fakeStandings) AddPoints(_ context.Context, graded []domain.GradedPick) error {
	if s.addErr != nil {
		return s.addErr
	}
	s.added = append(s.added, graded...)
	return nil
}

func (s *fakeStandings) Rebuild(_ context.Context, league domain.League, settled []domain.GradedPick) error {
	if s.rebuilt == nil {
		s.rebuilt = make(map[domain.League][]domain.GradedPick)
	}
	s.rebuilt[league] = settled
	return nil
}

func (s *fakeStandings) Top(_ context.Context, _ domain.League, _ int, _ int) ([]domain.Standing, error) {
	return []domain.Standing{{Rank: 1, UserID: "u1", Points: 2.3}}, nil
}

type fakeHub struct {
	results   []domain.GameResult
	standings []int
}

func (h *fakeHub) BroadcastGameResult(result domain.GameResult) {
	h.results = append(h.results, result)
}

func (h *fakeHub) BroadcastStandings(_ domain.League, week int, _ []domain.Standing) {
	h.standings = append(h.standings, week)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSyncer(store ResultStore, f ScoreFetcher, st StandingsStore, hub Broadcaster, queueSize int) *ResultSyncer {
	cfg := &config.SyncConfig{QueueSize: queueSize, JobTimeout: time.Second}
	return NewResultSyncer(store, f, st, hub, cfg, 3, nil, testLogger())
}

func TestSync_SkipsWithoutStore(t *testing.T) {
	f := &fakeFetcher{}
	w := newSyncer(nil, f, nil, nil, 4)

	if err := w.Sync(context.Background(), domain.LeagueNFL); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if len(f.calls) != 0 {
		t.Error("provider called without a store")
	}
}

func TestSync_NoPickedGamesSkipsFetch(t *testing.T) {
	f := &fakeFetcher{}
	w := newSyncer(&fakeStore{}, f, nil, nil, 4)

	if err := w.Sync(context.Background(), domain.LeagueNFL); err != nil {
		t.Fatal(err)
	}
	if len(f.calls) != 0 {
		t.Errorf("provider called %d times for a league without picks", len(f.calls))
	}
}

func TestSync_UpsertsPickedGamesAndGrades(t *testing.T) {
	store := &fakeStore{
		picked: map[domain.League]map[string]int{
			domain.LeagueNFL: {"G1": 5, "G2": 5, "G3": 6},
		},
		pending: map[string][]domain.StoredPick{
			"G1": {
				{ID: "p1", UserID: "u1", League: domain.LeagueNFL, Week: 5, Side: domain.SideHome, Price: intPtr(130)},
				{ID: "p2", UserID: "u2", League: domain.LeagueNFL, Week: 5, Side: domain.SideAway},
			},
			"G2": {{ID: "p3", UserID: "u1", League: domain.LeagueNFL, Week: 5, Side: domain.SideHome}},
		},
	}
	f := &fakeFetcher{events: []domain.ScoreEvent{
		{ID: "G1", League: domain.LeagueNFL, Completed: true, HomeScore: intPtr(24), AwayScore: intPtr(17)},
		{ID: "G2", League: domain.LeagueNFL, HomeScore: intPtr(7), AwayScore: intPtr(3)},
		{ID: "G3", League: domain.LeagueNFL},
		{ID: "G4", League: domain.LeagueNFL, Completed: true, HomeScore: intPtr(1), AwayScore: intPtr(0)},
	}}
	st := &fakeStandings{}
	hub := &fakeHub{}
	w := newSyncer(store, f, st, hub, 4)

	if err := w.Sync(context.Background(), domain.LeagueNFL); err != nil {
		t.Fatal(err)
	}

	if len(store.upserted) != 3 {
		t.Fatalf("upserted %d rows, want 3 (unpicked game ignored)", len(store.upserted))
	}
	wantStatus := map[string]domain.GameStatus{
		"G1": domain.GameStatusFinal,
		"G2": domain.GameStatusFinal,
		"G3": domain.GameStatusScheduled,
	}
	for _, res := range store.upserted {
		if res.Status != wantStatus[res.ID] {
			t.Errorf("%s status = %s, want %s", res.ID, res.Status, wantStatus[res.ID])
		}
		if res.Week != store.picked[domain.LeagueNFL][res.ID] {
			t.Errorf("%s week = %d", res.ID, res.Week)
		}
	}

	// only the completed game is graded
	if len(st.added) != 2 {
		t.Fatalf("credited %d picks, want 2", len(st.added))
	}
	if st.added[0].Result != domain.OutcomeWin || st.added[0].Points != 2.3 {
		t.Errorf("p1 graded %+v", st.added[0])
	}
	if st.added[1].Result != domain.OutcomeLoss || st.added[1].Points != 0 {
		t.Errorf("p2 graded %+v", st.added[1])
	}

	if len(hub.results) != 3 {
		t.Errorf("broadcast %d results, want 3", len(hub.results))
	}
	if len(hub.standings) != 2 {
		t.Errorf("broadcast standings for weeks %v, want season and week 5", hub.standings)
	}
}

func TestSync_OnlyCreditsPicksThisRunSettled(t *testing.T) {
	store := &fakeStore{
		picked: map[domain.League]map[string]int{domain.LeagueNBA: {"N1": 2}},
		pending: map[string][]domain.StoredPick{"N1": {
			{ID: "a", UserID: "u1", League: domain.LeagueNBA, Week: 2, Side: domain.SideHome},
			{ID: "b", UserID: "u2", League: domain.LeagueNBA, Week: 2, Side: domain.SideHome},
		}},
		skip: map[string]bool{"a": true},
	}
	f := &fakeFetcher{events: []domain.ScoreEvent{
		{ID: "N1", League: domain.LeagueNBA, Completed: true, HomeScore: intPtr(101), AwayScore: intPtr(99)},
	}}
	st := &fakeStandings{}
	w := newSyncer(store, f, st, nil, 4)

	if err := w.Sync(context.Background(), domain.LeagueNBA); err != nil {
		t.Fatal(err)
	}
	if len(st.added) != 1 || st.added[0].PickID != "b" {
		t.Errorf("credited %+v, want only b", st.added)
	}
}

func TestSync_FetchError(t *testing.T) {
	store := &fakeStore{picked: map[domain.League]map[string]int{domain.LeagueNFL: {"G1": 1}}}
	w := newSyncer(store, &fakeFetcher{err: errors.New("timeout")}, nil, nil, 4)

	if err := w.Sync(context.Background(), domain.LeagueNFL); err == nil {
		t.Fatal("expected error")
	}
	if len(store.upserted) != 0 {
		t.Error("nothing should be written on fetch failure")
	}
}

func TestApply_GroupsByLeague(t *testing.T) {
	store := &fakeStore{picked: map[domain.League]map[string]int{
		domain.LeagueNFL: {"G1": 3},
		domain.LeagueNHL: {"H1": 1},
	}}
	w := newSyncer(store, &fakeFetcher{}, nil, nil, 4)

	err := w.Apply(context.Background(), []domain.ScoreEvent{
		{ID: "G1", League: domain.LeagueNFL, HomeScore: intPtr(3)},
		{ID: "H1", League: domain.LeagueNHL},
		{ID: "G1", League: domain.LeagueNHL},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(store.upserted) != 2 {
		t.Errorf("upserted %+v, want G1 (nfl) and H1 (nhl)", store.upserted)
	}
}

func TestTrigger_CoalescesAndDrops(t *testing.T) {
	w := newSyncer(&fakeStore{}, &fakeFetcher{}, nil, nil, 1)

	if !w.Trigger(domain.LeagueNFL) {
		t.Fatal("first trigger dropped")
	}
	if !w.Trigger(domain.LeagueNFL) {
		t.Error("repeat trigger for a pending league should coalesce")
	}
	if w.Trigger(domain.LeagueNBA) {
		t.Error("trigger on a full queue should be dropped")
	}
	if len(w.queue) != 1 {
		t.Errorf("queue length = %d, want 1", len(w.queue))
	}
}

func TestStartStop_ProcessesTriggers(t *testing.T) {
	store := &fakeStore{picked: map[domain.League]map[string]int{domain.LeagueNFL: {"G1": 1}}}
	f := &fakeFetcher{called: make(chan domain.League, 1)}
	w := newSyncer(store, f, nil, nil, 4)

	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !w.IsRunning() {
		t.Fatal("worker not running")
	}

	w.Trigger(domain.LeagueNFL)
	select {
	case league := <-f.called:
		if league != domain.LeagueNFL {
			t.Errorf("synced %s", league)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("triggered sync never ran")
	}

	if err := w.Stop(); err != nil {
		t.Fatal(err)
	}
	if w.IsRunning() {
		t.Error("worker still running after Stop")
	}

	// a new trigger after the job was taken is queued again
	if !w.Trigger(domain.LeagueNFL) {
		t.Error("trigger after processing should be accepted")
	}
}

func TestSync_RebuildsStandingsAfterFailedCredit(t *testing.T) {
	store := &fakeStore{
		picked: map[domain.League]map[string]int{domain.LeagueNFL: {"G1": 4}},
		pending: map[string][]domain.StoredPick{"G1": {
			{ID: "p1", UserID: "u1", League: domain.LeagueNFL, Week: 4, Side: domain.SideHome},
		}},
		settled: []domain.GradedPick{
			{PickID: "old", UserID: "u2", League: domain.LeagueNFL, Week: 3, Result: domain.OutcomeWin, Points: 2},
			{PickID: "nba", UserID: "u3", League: domain.LeagueNBA, Week: 1, Result: domain.OutcomeWin, Points: 2},
		},
	}
	f := &fakeFetcher{events: []domain.ScoreEvent{
		{ID: "G1", League: domain.LeagueNFL, Completed: true, HomeScore: intPtr(20), AwayScore: intPtr(10)},
	}}
	st := &fakeStandings{addErr: errors.New("redis down")}
	w := newSyncer(store, f, st, nil, 4)

	if err := w.Sync(context.Background(), domain.LeagueNFL); err != nil {
		t.Fatal(err)
	}

	rebuilt, ok := st.rebuilt[domain.LeagueNFL]
	if !ok {
		t.Fatal("standings were not rebuilt after a failed credit")
	}
	if len(rebuilt) != 2 {
		t.Fatalf("rebuilt from %+v, want the earlier nfl pick and p1", rebuilt)
	}
	if _, ok := st.rebuilt[domain.LeagueNBA]; ok {
		t.Error("only the affected league should be rebuilt")
	}

	// once rebuilt, a later sync with a healthy store does not rebuild again
	st.addErr = nil
	delete(st.rebuilt, domain.LeagueNFL)
	if err := w.Sync(context.Background(), domain.LeagueNFL); err != nil {
		t.Fatal(err)
	}
	if _, ok := st.rebuilt[domain.LeagueNFL]; ok {
		t.Error("standings rebuilt without a failed credit")
	}
}

func TestRebuildAllStandings(t *testing.T) {
	store := &fakeStore{settled: []domain.GradedPick{
		{PickID: "a", UserID: "u1", League: domain.LeagueMLB, Week: 2, Result: domain.OutcomePush, Points: 1},
	}}
	st := &fakeStandings{}
	w := newSyncer(store, &fakeFetcher{}, st, nil, 4)

	if err := w.RebuildAllStandings(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(st.rebuilt) != len(domain.Leagues()) {
		t.Errorf("rebuilt %d leagues, want %d", len(st.rebuilt), len(domain.Leagues()))
	}
	if len(st.rebuilt[domain.LeagueMLB]) != 1 {
		t.Errorf("mlb rebuilt from %+v", st.rebuilt[domain.LeagueMLB])
	}

	if err := newSyncer(nil, &fakeFetcher{}, nil, nil, 4).RebuildAllStandings(context.Background()); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Errorf("err = %v, want store unavailable", err)
	}
}

func TestStartStop_Restart(t *testing.T) {
	store := &fakeStore{picked: map[domain.League]map[string]int{domain.LeagueNFL: {"G1": 1}}}
	f := &fakeFetcher{called: make(chan domain.League, 1)}
	w := newSyncer(store, f, nil, nil, 4)

	for round := 0; round < 2; round++ {
		if err := w.Start(context.Background()); err != nil {
			t.Fatal(err)
		}
		w.Trigger(domain.LeagueNFL)
		select {
		case <-f.called:
		case <-time.After(2 * time.Second):
			t.Fatalf("round %d: triggered sync never ran", round)
		}
		if err := w.Stop(); err != nil {
			t.Fatal(err)
		}
	}

	// concurrent and repeated stops are safe
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Stop()
		}()
	}
	wg.Wait()
	if w.IsRunning() {
		t.Error("worker still running after Stop")
	}
}
