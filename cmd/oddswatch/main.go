// oddswatch connects to a running oddsd and prints board events as they
// arrive.
// Usage: go run ./cmd/oddswatch --addr http://127.0.0.1:8080 --filter odds,state
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
)

func main() {
	var (
		addr    = pflag.StringP("addr", "a", "http://127.0.0.1:8080", "oddsd base URL")
		jsonOut = pflag.Bool("json", false, "print raw JSON per event")
		filter  = pflag.StringSlice("filter", nil, "event types to show (e.g. --filter odds,state)")
	)
	pflag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := watchOptions{Filter: *filter, JSON: *jsonOut}
	if err := watch(ctx, *addr, opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "oddswatch:", err)
		os.Exit(1)
	}
}
