// Package feed ties the match catalog, the odds generator and the simulated
// stream together.
//
// Service loads matches and opening odds and hands out odds streams. Board
// is the consumer: it keeps the list of match rows current as updates
// arrive, tracks the stream's connection status, and fans every change out
// to registered listeners (the WebSocket hub and the odds writer).
package feed
