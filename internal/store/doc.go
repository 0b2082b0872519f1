// Package store persists board rows and odds history in PostgreSQL.
//
// Tables:
//   - match_odds: one row per match with its latest odds (the board cache)
//   - odds_history: append-only log of every odds update, keyed by UUID
//
// Odds columns are nullable: a match may be cached before any odds are known.
package store
