// Package model defines the shared data types of the odds feed.
//
// Conventions:
//   - Odds: decimal odds as float64, rounded to two places
//   - Timestamps: time.Time, UTC when produced by this module
//   - IDs: int match IDs as published by the match catalog
package model
