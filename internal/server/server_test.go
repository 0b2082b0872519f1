package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/odds-feed/internal/feed"
	"github.com/rickgao/odds-feed/internal/hub"
	"github.com/rickgao/odds-feed/internal/model"
	"github.com/rickgao/odds-feed/internal/store"
	"github.com/rickgao/odds-feed/internal/stream"
	"github.com/rickgao/odds-feed/internal/version"
)

type fakeBoard struct{ state feed.State }

func (f fakeBoard) State() feed.State { return f.state }

type fakeStream struct {
	status stream.Status
	stats  *stream.Stats
}

func (f fakeStream) StreamStatus() stream.Status { return f.status }

func (f fakeStream) StreamStats() (stream.Stats, bool) {
	if f.stats == nil {
		return stream.Stats{}, false
	}
	return *f.stats, true
}

func testBoard() fakeBoard {
	return fakeBoard{state: feed.State{
		Items: []model.MatchOddsItem{{
			Match: model.Match{ID: 1001, TeamA: "Eagles", TeamB: "Tigers"},
			Odds:  &model.OddsSnapshot{MatchID: 1001, TeamAOdds: 1.85, TeamBOdds: 2.05},
		}},
		Message:      feed.MessageInterrupted,
		StreamStatus: stream.StatusStopped,
	}}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func get(t *testing.T, srv *httptest.Server, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return resp, body
}

func TestHealthz(t *testing.T) {
	s := New(Options{Board: testBoard(), Stream: fakeStream{}, Logger: quietLogger()})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, body := get(t, srv, "/healthz")
	if resp.StatusCode != http.StatusOK || string(body) != "ok\n" {
		t.Errorf("GET /healthz = %d %q", resp.StatusCode, body)
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name      string
		stream    fakeStream
		wantStats bool
	}{
		{"no stream", fakeStream{status: stream.StatusUnknown}, false},
		{"connected", fakeStream{status: stream.StatusConnected, stats: &stream.Stats{Emitted: 12, Reconnects: 1}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Options{
				Board:   testBoard(),
				Stream:  tt.stream,
				Clients: func() int { return 3 },
				Writer:  func() store.WriterMetrics { return store.WriterMetrics{Inserts: 5} },
				Logger:  quietLogger(),
			})
			srv := httptest.NewServer(s.Handler())
			defer srv.Close()

			resp, body := get(t, srv, "/api/status")
			if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}

			var got struct {
				Name         string              `json:"name"`
				Version      string              `json:"version"`
				StreamStatus string              `json:"stream_status"`
				Stats        *stream.Stats       `json:"stats"`
				Uptime       int64               `json:"uptime_seconds"`
				Clients      int                 `json:"clients"`
				Writer       store.WriterMetrics `json:"writer"`
			}
			if err := json.Unmarshal(body, &got); err != nil {
				t.Fatalf("Unmarshal(%s) failed: %v", body, err)
			}

			if got.Name != version.Name || got.Version != version.Version {
				t.Errorf("name/version = %q/%q", got.Name, got.Version)
			}
			if got.StreamStatus != tt.stream.status.String() {
				t.Errorf("stream_status = %q, want %q", got.StreamStatus, tt.stream.status)
			}
			if (got.Stats != nil) != tt.wantStats {
				t.Errorf("stats = %+v, want present=%v", got.Stats, tt.wantStats)
			}
			if tt.wantStats && got.Stats.Emitted != 12 {
				t.Errorf("stats.emitted = %d, want 12", got.Stats.Emitted)
			}
			if got.Clients != 3 || got.Writer.Inserts != 5 {
				t.Errorf("clients = %d, writer = %+v", got.Clients, got.Writer)
			}
		})
	}
}

func TestBoard(t *testing.T) {
	s := New(Options{Board: testBoard(), Stream: fakeStream{}, Logger: quietLogger()})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	_, body := get(t, srv, "/api/board")

	var got struct {
		Items []struct {
			Match struct {
				ID int `json:"matchID"`
			} `json:"match"`
			Odds *model.OddsSnapshot `json:"odds"`
		} `json:"items"`
		Message      string `json:"message"`
		StreamStatus string `json:"stream_status"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("Unmarshal(%s) failed: %v", body, err)
	}
	if len(got.Items) != 1 || got.Items[0].Odds == nil || got.Items[0].Odds.TeamAOdds != 1.85 {
		t.Errorf("items = %+v", got.Items)
	}
	if got.Message != feed.MessageInterrupted || got.StreamStatus != "stopped" {
		t.Errorf("message = %q, stream_status = %q", got.Message, got.StreamStatus)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := New(Options{Board: testBoard(), Stream: fakeStream{}, Logger: quietLogger()})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/board", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /api/board = %d, want 405", resp.StatusCode)
	}
}

func TestRefresh(t *testing.T) {
	calls := 0
	s := New(Options{
		Board:  testBoard(),
		Stream: fakeStream{},
		Refresh: func(ctx context.Context) error {
			calls++
			return errors.New("catalog unavailable")
		},
		Logger: quietLogger(),
	})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/refresh", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/refresh failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if calls != 1 {
		t.Errorf("Refresh called %d times, want 1", calls)
	}
	var st feed.State
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if st.Message != feed.MessageInterrupted {
		t.Errorf("message = %q", st.Message)
	}
}

func TestRefresh_DisabledWithoutHook(t *testing.T) {
	s := New(Options{Board: testBoard(), Stream: fakeStream{}, Logger: quietLogger()})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/refresh", "application/json", nil)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestWebSocketFeed(t *testing.T) {
	board := testBoard()
	h := hub.New(hub.Config{}, func() any {
		return feed.Event{Type: feed.EventSnapshot, Items: board.state.Items}
	}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	s := New(Options{Board: board, Stream: fakeStream{}, Events: h.Handler(), Logger: quietLogger()})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	var ev feed.Event
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if ev.Type != feed.EventSnapshot || len(ev.Items) != 1 {
		t.Errorf("first event = %+v, want snapshot with one item", ev)
	}

	for h.Clients() != 1 {
		time.Sleep(5 * time.Millisecond)
	}
	h.BroadcastJSON(feed.Event{Type: feed.EventMessage, Message: "hello"})
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if ev.Type != feed.EventMessage || ev.Message != "hello" {
		t.Errorf("event = %+v, want message", ev)
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	s := New(Options{Board: testBoard(), Stream: fakeStream{}, ShutdownTimeout: time.Second, Logger: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Serve returned %v, want nil", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
