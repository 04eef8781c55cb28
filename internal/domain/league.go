package domain

import (
	"strings"
)

// League is a closed set of supported leagues
type League string

const (
	LeagueNFL   League = "nfl"
	LeagueNCAAF League = "ncaaf"
	LeagueNBA   League = "nba"
	LeagueNCAAB League = "ncaab"
	LeagueMLB   League = "mlb"
	LeagueNHL   League = "nhl"
)

// DefaultLeague is used when a request names no league or an unknown one
const DefaultLeague = LeagueNFL

var leagueSportKeys = map[League]string{
	LeagueNFL:   "americanfootball_nfl",
	LeagueNCAAF: "americanfootball_ncaaf",
	LeagueNBA:   "basketball_nba",
	LeagueNCAAB: "basketball_ncaab",
	LeagueMLB:   "baseball_mlb",
	LeagueNHL:   "icehockey_nhl",
}

// ParseLeague resolves a league token, falling back to DefaultLeague
func ParseLeague(raw string) League {
	if l, ok := LookupLeague(raw); ok {
		return l
	}
	return DefaultLeague
}

// LookupLeague resolves a league token without falling back
func LookupLeague(raw string) (League, bool) {
	l := League(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := leagueSportKeys[l]
	return l, ok
}

// SportKey returns the upstream provider key for the league
func (l League) SportKey() string {
	if key, ok := leagueSportKeys[l]; ok {
		return key
	}
	return leagueSportKeys[DefaultLeague]
}

// Leagues returns every supported league in a stable order
func Leagues() []League {
	return []League{LeagueNFL, LeagueNCAAF, LeagueNBA, LeagueNCAAB, LeagueMLB, LeagueNHL}
}

// Market is an upstream odds market key
type Market string

const (
	MarketSpreads Market = "spreads"
	MarketH2H     Market = "h2h"
	MarketTotals  Market = "totals"
)

// DefaultMarkets is the market list used when nothing usable was requested
const DefaultMarkets = "spreads,h2h"

var marketAliases = map[string]Market{
	"spreads":   MarketSpreads,
	"spread":    MarketSpreads,
	"h2h":       MarketH2H,
	"moneyline": MarketH2H,
	"ml":        MarketH2H,
	"totals":    MarketTotals,
	"total":     MarketTotals,
}

// ParseMarkets maps a comma-separated market list onto canonical markets.
// Unknown tokens are dropped, duplicates keep their first position.
func ParseMarkets(raw string) []Market {
	seen := make(map[Market]bool)
	var markets []Market
	for _, token := range strings.Split(raw, ",") {
		m, ok := marketAliases[strings.ToLower(strings.TrimSpace(token))]
		if !ok || seen[m] {
			continue
		}
		seen[m] = true
		markets = append(markets, m)
	}
	return markets
}

// MapMarkets returns the canonical comma-separated form of a market list.
// Applying it to its own output returns the same string.
func MapMarkets(raw string) string {
	markets := ParseMarkets(raw)
	if len(markets) == 0 {
		return DefaultMarkets
	}
	parts := make([]string, len(markets))
	for i, m := range markets {
		parts[i] = string(m)
	}
	return strings.Join(parts, ",")
}

// Region is an upstream bookmaker region
type Region string

const (
	RegionUS  Region = "us"
	RegionUS2 Region = "us2"
	RegionUK  Region = "uk"
	RegionEU  Region = "eu"
	RegionAU  Region = "au"
)

// DefaultRegion is used for unknown or empty regions
const DefaultRegion = RegionUS

// ParseRegion resolves a region token, falling back to DefaultRegion
func ParseRegion(raw string) Region {
	switch r := Region(strings.ToLower(strings.TrimSpace(raw))); r {
	case RegionUS, RegionUS2, RegionUK, RegionEU, RegionAU:
		return r
	default:
		return DefaultRegion
	}
}
