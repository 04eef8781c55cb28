package domain

import "time"

// SourceUnknown labels games normalized without any bookmaker
const SourceUnknown = "unknown"

// Game is the canonical per-game odds record
type Game struct {
	ID           string         `json:"id"`
	CommenceTime time.Time      `json:"commenceTime"`
	Home         string         `json:"home"`
	Away         string         `json:"away"`
	SpreadHome   *float64       `json:"spreadHome"`
	SpreadAway   *float64       `json:"spreadAway"`
	Moneyline    map[string]int `json:"moneyline"`
	Source       string         `json:"source"`
}

// Quota carries the upstream rate-limit hints passed through to callers
type Quota struct {
	Remaining string `json:"remaining,omitempty"`
	Used      string `json:"used,omitempty"`
	Last      string `json:"last,omitempty"`
}

// OddsSnapshot is one normalized upstream odds fetch
type OddsSnapshot struct {
	Games     []Game    `json:"games"`
	Quota     Quota     `json:"quota"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// IndexedGame is the subset of a game needed to validate picks
type IndexedGame struct {
	Kickoff   time.Time
	Home      string
	Away      string
	Moneyline map[string]int
}

// GameIndex maps game identifiers to their lock data
type GameIndex map[string]IndexedGame

// GameStatus is the persisted status of a game result
type GameStatus string

const (
	GameStatusScheduled GameStatus = "scheduled"
	GameStatusFinal     GameStatus = "final"
)

// GameResult is a persisted game row
type GameResult struct {
	ID           string     `json:"id"`
	League       League     `json:"league"`
	Week         int        `json:"week"`
	Home         string     `json:"home"`
	Away         string     `json:"away"`
	CommenceTime time.Time  `json:"commenceTime"`
	Status       GameStatus `json:"status"`
	HomeScore    *int       `json:"homeScore"`
	AwayScore    *int       `json:"awayScore"`
}

// ScoreEvent is a provider-neutral score report for one game
type ScoreEvent struct {
	ID           string
	League       League
	Home         string
	Away         string
	CommenceTime time.Time
	Completed    bool
	HomeScore    *int
	AwayScore    *int
}

// Status derives the persisted status. A game counts as final once the
// provider marks it completed or reports any numeric score.
func (e ScoreEvent) Status() GameStatus {
	if e.Completed || e.HomeScore != nil || e.AwayScore != nil {
		return GameStatusFinal
	}
	return GameStatusScheduled
}

// Gradable reports whether picks on the game can be settled
func (e ScoreEvent) Gradable() bool {
	return e.Completed && e.HomeScore != nil && e.AwayScore != nil
}

// ToResult builds the persisted row for the event
func (e ScoreEvent) ToResult(week int) GameResult {
	return GameResult{
		ID:           e.ID,
		League:       e.League,
		Week:         week,
		Home:         e.Home,
		Away:         e.Away,
		CommenceTime: e.CommenceTime,
		Status:       e.Status(),
		HomeScore:    e.HomeScore,
		AwayScore:    e.AwayScore,
	}
}
