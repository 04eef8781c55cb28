package scoring

import (
	"math"

	"github.com/pickforge/internal/domain"
)

// Points for non-winning outcomes and for wins without a price snapshot
const (
	LossPoints    = 0.0
	PushPoints    = 1.0
	EvenWinPoints = 2.0
)

// Outcome settles a side against final scores. Equal scores push.
func Outcome(side domain.Side, homeScore, awayScore int) domain.PickOutcome {
	if homeScore == awayScore {
		return domain.OutcomePush
	}
	homeWon := homeScore > awayScore
	if (side == domain.SideHome) == homeWon {
		return domain.OutcomeWin
	}
	return domain.OutcomeLoss
}

// Points returns the return on a one-unit stake for a settled pick, rounded
// to hundredths. Wins pay by the American price captured at pick time.
func Points(outcome domain.PickOutcome, price *int) float64 {
	switch outcome {
	case domain.OutcomeWin:
		return round2(winReturn(price))
	case domain.OutcomePush:
		return PushPoints
	default:
		return LossPoints
	}
}

func winReturn(price *int) float64 {
	if price == nil || *price == 0 {
		return EvenWinPoints
	}
	p := float64(*price)
	if p > 0 {
		return p/100 + 1
	}
	return 100/math.Abs(p) + 1
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Grade settles a stored pick against final scores
func Grade(pick domain.StoredPick, homeScore, awayScore int) domain.GradedPick {
	outcome := Outcome(pick.Side, homeScore, awayScore)
	return domain.GradedPick{
		PickID: pick.ID,
		UserID: pick.UserID,
		League: pick.League,
		Week:   pick.Week,
		Result: outcome,
		Points: Points(outcome, pick.Price),
	}
}
