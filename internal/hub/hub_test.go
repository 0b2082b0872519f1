package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type message struct {
	Type  string `json:"type"`
	Value int    `json:"value"`
}

func startHub(t *testing.T, welcome func() any) (*Hub, string) {
	t.Helper()

	h := New(Config{}, welcome, slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Run(ctx)
	}()

	srv := httptest.NewServer(h.Handler())
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	var m message
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal(%s) failed: %v", data, err)
	}
	return m
}

func waitClients(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != want {
		if time.Now().After(deadline) {
			t.Fatalf("Clients() = %d, want %d", h.Clients(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_WelcomeThenBroadcast(t *testing.T) {
	h, url := startHub(t, func() any { return message{Type: "snapshot", Value: 1} })

	conn := dial(t, url)
	if got := read(t, conn); got.Type != "snapshot" || got.Value != 1 {
		t.Fatalf("first message = %+v, want snapshot", got)
	}
	waitClients(t, h, 1)

	h.BroadcastJSON(message{Type: "odds", Value: 2})
	if got := read(t, conn); got.Type != "odds" || got.Value != 2 {
		t.Errorf("broadcast = %+v, want odds/2", got)
	}
}

func TestHub_BroadcastReachesEveryClient(t *testing.T) {
	h, url := startHub(t, nil)

	a := dial(t, url)
	b := dial(t, url)
	waitClients(t, h, 2)

	h.BroadcastJSON(message{Type: "state", Value: 3})
	for _, conn := range []*websocket.Conn{a, b} {
		if got := read(t, conn); got.Type != "state" || got.Value != 3 {
			t.Errorf("broadcast = %+v, want state/3", got)
		}
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	h, url := startHub(t, nil)

	conn := dial(t, url)
	waitClients(t, h, 1)

	conn.Close()
	waitClients(t, h, 0)
}

func TestHub_UnmarshalableBroadcastIgnored(t *testing.T) {
	h, url := startHub(t, nil)
	conn := dial(t, url)
	waitClients(t, h, 1)

	h.BroadcastJSON(make(chan int))
	h.BroadcastJSON(message{Type: "after"})

	if got := read(t, conn); got.Type != "after" {
		t.Errorf("message = %+v, want the valid broadcast", got)
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	h := New(Config{}, nil, slog.New(slog.DiscardHandler))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Run(ctx)
	}()
	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	waitClients(t, h, 1)

	cancel()
	<-done

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("ReadMessage succeeded after the hub shut down")
	}
	if h.Clients() != 0 {
		t.Errorf("Clients() = %d after shutdown, want 0", h.Clients())
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	h := New(Config{PingInterval: -1}, nil, nil)
	def := DefaultConfig()
	if h.cfg != def {
		t.Errorf("cfg = %+v, want %+v", h.cfg, def)
	}
}
