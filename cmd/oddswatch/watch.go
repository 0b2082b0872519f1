package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/odds-feed/internal/feed"
)

type watchOptions struct {
	Filter []string // event types to show (empty = all)
	JSON   bool     // print raw JSON per event
}

// wsURL turns an http(s) base URL into the /ws endpoint.
func wsURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme: %q", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

// watch streams events to out until ctx ends or the server goes away.
func watch(ctx context.Context, base string, opts watchOptions, out io.Writer) error {
	target, err := wsURL(base)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if !opts.JSON {
		fmt.Fprintf(out, "connected %s\n", target)
		if len(opts.Filter) > 0 {
			fmt.Fprintf(out, "filter: %s\n", strings.Join(opts.Filter, ", "))
		}
	}

	filterSet := make(map[string]bool, len(opts.Filter))
	for _, f := range opts.Filter {
		filterSet[f] = true
	}

	done := make(chan error, 1)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				done <- err
				return
			}
			printEvent(out, msg, filterSet, opts.JSON)
		}
	}()

	select {
	case <-ctx.Done():
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second),
		)
		return nil
	case err := <-done:
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil
		}
		return fmt.Errorf("connection lost: %w", err)
	}
}

// printEvent writes one event. Messages that are not board events are
// printed as received.
func printEvent(out io.Writer, raw []byte, filter map[string]bool, rawJSON bool) {
	var ev feed.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		fmt.Fprintf(out, "%s\n", raw)
		return
	}
	if len(filter) > 0 && !filter[string(ev.Type)] {
		return
	}
	if rawJSON {
		fmt.Fprintf(out, "%s\n", raw)
		return
	}

	ts := ev.Time.Local().Format("15:04:05")
	switch ev.Type {
	case feed.EventSnapshot:
		fmt.Fprintf(out, "%s snapshot  %d matches", ts, len(ev.Items))
		if ev.Message != "" {
			fmt.Fprintf(out, "  (%s)", ev.Message)
		}
		fmt.Fprintln(out)
		for _, item := range ev.Items {
			odds := "   -     -"
			if item.Odds != nil {
				odds = fmt.Sprintf("%5.2f %5.2f", item.Odds.TeamAOdds, item.Odds.TeamBOdds)
			}
			fmt.Fprintf(out, "  %6d  %-20s %-20s %s\n", item.ID(), item.Match.TeamA, item.Match.TeamB, odds)
		}

	case feed.EventOdds:
		if ev.Odds == nil {
			return
		}
		fmt.Fprintf(out, "%s odds      %6d  %5.2f %5.2f\n", ts, ev.Odds.MatchID, ev.Odds.TeamAOdds, ev.Odds.TeamBOdds)

	case feed.EventState:
		fmt.Fprintf(out, "%s state     %s\n", ts, ev.Status)

	case feed.EventMessage:
		fmt.Fprintf(out, "%s message   %s\n", ts, ev.Message)

	default:
		fmt.Fprintf(out, "%s\n", raw)
	}
}
