// internal/store/db.go
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

// Open connects to the relational store backing every entity in §3: a
// single process-wide pool shared by every organization's gateway (C7);
// the database itself is the serialization point for multi-writer updates
// across tenants.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to store: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// DefaultCallTimeout bounds any single store round trip (§5).
const DefaultCallTimeout = 10 * time.Second
