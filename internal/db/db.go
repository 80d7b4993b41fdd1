// Package db opens the queue store's Postgres connection pool and applies
// its schema migrations at startup, grounded on CineVault's db package.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/jtdct/ingestor/internal/migrations"
)

// Connect opens a connection pool against dsn sized to the pipeline's
// production bounds (min=1, max=5 per the queue store's §4.5 contract).
func Connect(dsn string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(1)
	return conn, nil
}

// Migrate idempotently applies the embedded schema migrations.
func Migrate(conn *sql.DB) error {
	return migrations.Up(conn)
}
