package model

import "time"

// Match is a scheduled fixture between two teams.
type Match struct {
	ID        int       `json:"matchID"`   // Primary key
	TeamA     string    `json:"teamA"`     // Home side
	TeamB     string    `json:"teamB"`     // Away side
	StartTime time.Time `json:"startTime"` // Kick-off
}

// OddsSnapshot is the latest decimal odds for both sides of a match.
type OddsSnapshot struct {
	MatchID   int       `json:"matchID"`
	TeamAOdds float64   `json:"teamAOdds"`
	TeamBOdds float64   `json:"teamBOdds"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MatchOddsItem is one board row: a match and its odds, if any are known.
type MatchOddsItem struct {
	Match Match         `json:"match"`
	Odds  *OddsSnapshot `json:"odds,omitempty"`
}

// ID returns the match ID of the row.
func (i MatchOddsItem) ID() int {
	return i.Match.ID
}

// WithOdds returns a copy of the row carrying s.
func (i MatchOddsItem) WithOdds(s OddsSnapshot) MatchOddsItem {
	i.Odds = &s
	return i
}

// BuildItems pairs each match with its odds, preserving match order.
// Odds for unknown matches are ignored; matches without odds get nil.
func BuildItems(matches []Match, odds []OddsSnapshot) []MatchOddsItem {
	byMatch := make(map[int]OddsSnapshot, len(odds))
	for _, o := range odds {
		byMatch[o.MatchID] = o
	}

	items := make([]MatchOddsItem, 0, len(matches))
	for _, m := range matches {
		item := MatchOddsItem{Match: m}
		if o, ok := byMatch[m.ID]; ok {
			item = item.WithOdds(o)
		}
		items = append(items, item)
	}
	return items
}
