// Package database provides the PostgreSQL connection pool used by the
// match-odds cache and the odds writer.
package database
