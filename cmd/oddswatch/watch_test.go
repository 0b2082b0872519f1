package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/odds-feed/internal/feed"
	"github.com/rickgao/odds-feed/internal/model"
	"github.com/rickgao/odds-feed/internal/stream"
)

func TestWSURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{"http://127.0.0.1:8080", "ws://127.0.0.1:8080/ws", false},
		{"https://odds.example.com/", "wss://odds.example.com/ws", false},
		{"http://host:1/api?x=1", "ws://host:1/ws", false},
		{"ftp://host", "", true},
	}
	for _, tt := range tests {
		got, err := wsURL(tt.base)
		if (err != nil) != tt.wantErr {
			t.Errorf("wsURL(%q) error = %v, wantErr %v", tt.base, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("wsURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func encode(t *testing.T, ev feed.Event) []byte {
	t.Helper()
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	return b
}

func TestPrintEvent(t *testing.T) {
	now := time.Now()
	odds := feed.Event{Type: feed.EventOdds, Odds: &model.OddsSnapshot{MatchID: 1001, TeamAOdds: 1.5, TeamBOdds: 2.75}, Time: now}
	state := feed.Event{Type: feed.EventState, Status: stream.StatusReconnecting, Time: now}
	snapshot := feed.Event{Type: feed.EventSnapshot, Time: now, Items: []model.MatchOddsItem{
		{Match: model.Match{ID: 1001, TeamA: "Eagles", TeamB: "Tigers"}},
	}}

	tests := []struct {
		name   string
		raw    []byte
		filter map[string]bool
		json   bool
		want   []string
	}{
		{"odds", encode(t, odds), nil, false, []string{"odds", "1001", "1.50", "2.75"}},
		{"state", encode(t, state), nil, false, []string{"state", "reconnecting"}},
		{"snapshot", encode(t, snapshot), nil, false, []string{"snapshot", "1 matches", "Eagles", "Tigers"}},
		{"filtered out", encode(t, odds), map[string]bool{"state": true}, false, nil},
		{"raw json", encode(t, state), nil, true, []string{`"type":"state"`}},
		{"not json", []byte("hello"), nil, false, []string{"hello"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printEvent(&buf, tt.raw, tt.filter, tt.json)

			out := buf.String()
			if tt.want == nil && out != "" {
				t.Errorf("output = %q, want nothing", out)
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output %q missing %q", out, w)
				}
			}
		})
	}
}

func TestWatch_PrintsUntilServerCloses(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteJSON(feed.Event{Type: feed.EventMessage, Message: "odds updates interrupted", Time: time.Now()})
		_ = conn.WriteJSON(feed.Event{Type: feed.EventState, Status: stream.StatusStopped, Time: time.Now()})
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
		// Wait for the client to answer the close.
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		conn.ReadMessage()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var buf bytes.Buffer
	if err := watch(ctx, srv.URL, watchOptions{}, &buf); err != nil {
		t.Fatalf("watch returned %v", err)
	}

	out := buf.String()
	for _, want := range []string{"connected ws://", "odds updates interrupted", "stopped"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}
