// Package stream implements the simulated push-feed connection.
//
// The feed behaves like a WebSocket market-data connection without touching
// the network:
//   - Engine owns the connection state machine (idle, connecting, connected,
//     reconnecting, stopped), heartbeat bookkeeping and reconnect backoff
//   - Three loops (emission ticker, heartbeat, watchdog) post events to the
//     engine's mailbox; a single goroutine applies them
//   - RateLimiter caps emissions per rolling one-second window
//   - Ticker is the facade: one live engine at a time, exposed to consumers
//     as a lazy, cancellable Stream
//
// Every anomaly (lost pong, watchdog timeout, spontaneous drop) becomes a
// transition to reconnecting. The only terminal state is stopped.
package stream
