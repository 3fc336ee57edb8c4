// Package store provides the relational persistence layer. Every store wraps
// a shared *sql.DB, embeds its own schema and exposes context-accepting
// methods. Writes that span entities run inside a single transaction
// committed at the end.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "github.com/lib/pq"
)

// ErrNotFound is returned by lookups that miss.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when a business precondition blocks a write, such
// as deleting a facility that still owns activity data.
var ErrConflict = errors.New("store: conflict")

// Open connects to Postgres with the pool settings the workers rely on:
// 10 base connections plus 20 overflow, hourly recycling, pre-ping
// verification. sslMode overrides the sslmode query parameter
// (disable|prefer|require).
func Open(ctx context.Context, databaseURL, sslMode string) (*sql.DB, error) {
	dsn, err := withSSLMode(databaseURL, sslMode)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}
	return db, nil
}

func withSSLMode(databaseURL, sslMode string) (string, error) {
	if sslMode == "" {
		return databaseURL, nil
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("store: parse database url: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", sslMode)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// InTx runs fn inside a transaction, rolling back on error.
func InTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	return nil
}
