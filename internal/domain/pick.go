package domain

import (
	"time"
)

// Side is the team a pick backs
type Side string

const (
	SideHome Side = "home"
	SideAway Side = "away"
)

// Valid reports whether the side is one of the two known values
func (s Side) Valid() bool {
	return s == SideHome || s == SideAway
}

// RejectReason is the machine-readable code for an item-level rejection
type RejectReason string

const (
	ReasonUnknownGame RejectReason = "unknown_game"
	ReasonLocked      RejectReason = "locked"
)

// ProposedPick is a single client-submitted pick
type ProposedPick struct {
	GameID string `json:"gameId"`
	Side   Side   `json:"side"`
}

// PickBatch is the body of a pick submission
type PickBatch struct {
	League string         `json:"league,omitempty"`
	Picks  []ProposedPick `json:"picks"`
}

// AcceptedPick is a pick that passed the lock check, stamped with the
// kickoff used for the decision.
type AcceptedPick struct {
	GameID     string    `json:"gameId"`
	Side       Side      `json:"side"`
	Team       string    `json:"team"`
	Home       string    `json:"home"`
	Away       string    `json:"away"`
	Kickoff    time.Time `json:"kickoff"`
	ReceivedAt time.Time `json:"receivedAt"`
	Price      *int      `json:"price,omitempty"`
	Week       int       `json:"week"`
}

// RejectedPick is a pick that failed an item-level check
type RejectedPick struct {
	GameID string       `json:"gameId"`
	Side   Side         `json:"side"`
	Reason RejectReason `json:"reason"`
}

// PickDecision partitions a batch, preserving input order in each list
type PickDecision struct {
	Accepted []AcceptedPick `json:"accepted"`
	Rejected []RejectedPick `json:"rejected"`
}

// PickOutcome is the settlement state of a stored pick
type PickOutcome string

const (
	OutcomePending PickOutcome = "pending"
	OutcomeWin     PickOutcome = "win"
	OutcomeLoss    PickOutcome = "loss"
	OutcomePush    PickOutcome = "push"
)

// StoredPick is a persisted pick row
type StoredPick struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	League    League      `json:"league"`
	Week      int         `json:"week"`
	GameID    string      `json:"gameId"`
	Side      Side        `json:"side"`
	Team      string      `json:"team"`
	Price     *int        `json:"price,omitempty"`
	Kickoff   time.Time   `json:"kickoff"`
	CreatedAt time.Time   `json:"createdAt"`
	Result    PickOutcome `json:"result"`
	Points    float64     `json:"points"`
}

// GradedPick is a stored pick after settlement
type GradedPick struct {
	PickID string
	UserID string
	League League
	Week   int
	Result PickOutcome
	Points float64
}

// Standing is a ranked entry in league standings
type Standing struct {
	Rank   int64   `json:"rank"`
	UserID string  `json:"userId"`
	Points float64 `json:"points"`
}
