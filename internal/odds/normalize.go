package odds

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pickforge/internal/domain"
)

var errMissingID = errors.New("event has no id")

// Normalize converts upstream events into canonical games. An event that
// cannot be identified or timed is skipped; every other gap degrades to
// nil spreads, an empty moneyline or an "unknown" source.
func Normalize(events []Event) []domain.Game {
	games := make([]domain.Game, 0, len(events))
	for _, ev := range events {
		game, err := NormalizeEvent(ev)
		if err != nil {
			continue
		}
		games = append(games, game)
	}
	return games
}

// NormalizeEvent converts a single upstream event
func NormalizeEvent(ev Event) (domain.Game, error) {
	if ev.ID == "" {
		return domain.Game{}, errMissingID
	}
	commence, err := parseTime(ev.CommenceTime)
	if err != nil {
		return domain.Game{}, fmt.Errorf("event %s: %w", ev.ID, err)
	}

	game := domain.Game{
		ID:           ev.ID,
		CommenceTime: commence,
		Home:         ev.HomeTeam,
		Away:         ev.AwayTeam,
		Moneyline:    map[string]int{},
		Source:       domain.SourceUnknown,
	}

	book := selectBookmaker(ev.Bookmakers)
	if book == nil {
		return game, nil
	}
	if book.Title != "" {
		game.Source = book.Title
	} else if book.Key != "" {
		game.Source = book.Key
	}

	if spreads := findMarket(book.Markets, domain.MarketSpreads); spreads != nil {
		for _, o := range spreads.Outcomes {
			if o.Name == "" || o.Point == nil {
				continue
			}
			switch o.Name {
			case ev.HomeTeam:
				if game.SpreadHome == nil {
					game.SpreadHome = copyPoint(o.Point)
				}
			case ev.AwayTeam:
				if game.SpreadAway == nil {
					game.SpreadAway = copyPoint(o.Point)
				}
			}
		}
	}

	if h2h := findMarket(book.Markets, domain.MarketH2H); h2h != nil {
		for _, o := range h2h.Outcomes {
			if o.Name == "" {
				continue
			}
			game.Moneyline[o.Name] = int(math.Round(o.Price))
		}
	}

	return game, nil
}

// selectBookmaker prefers the first book quoting spreads, then the first book
func selectBookmaker(books []Bookmaker) *Bookmaker {
	for i := range books {
		if findMarket(books[i].Markets, domain.MarketSpreads) != nil {
			return &books[i]
		}
	}
	if len(books) > 0 {
		return &books[0]
	}
	return nil
}

func findMarket(markets []Market, key domain.Market) *Market {
	for i := range markets {
		if markets[i].Key == string(key) {
			return &markets[i]
		}
	}
	return nil
}

func copyPoint(p *float64) *float64 {
	v := *p
	return &v
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing commence time %q: %w", raw, err)
	}
	return t.UTC(), nil
}

// ToScoreEvent converts an upstream score row. Scores that are not integers
// are treated as unknown.
func (s ScoreResult) ToScoreEvent(league domain.League) (domain.ScoreEvent, error) {
	if s.ID == "" {
		return domain.ScoreEvent{}, errMissingID
	}
	commence, err := parseTime(s.CommenceTime)
	if err != nil {
		return domain.ScoreEvent{}, fmt.Errorf("score %s: %w", s.ID, err)
	}

	ev := domain.ScoreEvent{
		ID:           s.ID,
		League:       league,
		Home:         s.HomeTeam,
		Away:         s.AwayTeam,
		CommenceTime: commence,
		Completed:    s.Completed,
	}
	for _, ts := range s.Scores {
		v, err := strconv.Atoi(strings.TrimSpace(ts.Score))
		if err != nil {
			continue
		}
		switch ts.Name {
		case s.HomeTeam:
			ev.HomeScore = &v
		case s.AwayTeam:
			ev.AwayScore = &v
		}
	}
	return ev, nil
}
