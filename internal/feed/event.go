package feed

import (
	"time"

	"github.com/rickgao/odds-feed/internal/model"
	"github.com/rickgao/odds-feed/internal/stream"
)

// EventType names a board change.
type EventType string

const (
	EventSnapshot EventType = "snapshot" // full list replaced
	EventOdds     EventType = "odds"     // one match's odds changed
	EventState    EventType = "state"    // stream status changed
	EventMessage  EventType = "message"  // user-facing message changed
)

// Event is one board change as delivered to listeners.
type Event struct {
	Type    EventType             `json:"type"`
	Items   []model.MatchOddsItem `json:"items,omitempty"`
	Odds    *model.OddsSnapshot   `json:"odds,omitempty"`
	Status  stream.Status         `json:"status,omitempty"`
	Message string                `json:"message,omitempty"`
	Time    time.Time             `json:"time"`
}

// Listener receives board events. It is called synchronously and must not
// block.
type Listener func(Event)

// State is a point-in-time copy of the board.
type State struct {
	Items        []model.MatchOddsItem `json:"items"`
	Message      string                `json:"message,omitempty"`
	Loading      bool                  `json:"loading"`
	StreamStatus stream.Status         `json:"stream_status"`
}
