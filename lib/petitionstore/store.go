// Copyright 2026 The Petitiond Authors
// SPDX-License-Identifier: Apache-2.0

// Package petitionstore persists validated petition records in SQLite.
//
// The store is the only shared mutable resource in the service. Batch
// inserts run in a single IMMEDIATE transaction so a batch lands
// entirely or not at all, and WAL mode guarantees that the rate
// limiter's count/recent reads observe every previously committed
// insert.
//
// Order dates are stored in their canonical textual form, which sorts
// lexicographically in chronological order — the (client_id,
// order_date) index serves both rate-limit queries directly.
package petitionstore

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/petitionworks/petitiond/lib/petition"
	"github.com/petitionworks/petitiond/lib/sqlitepool"
)

const schema = `
	CREATE TABLE IF NOT EXISTS client_petitions (
		id                INTEGER PRIMARY KEY,
		client_id         INTEGER NOT NULL,
		name_material     TEXT NOT NULL,
		amount            INTEGER NOT NULL,
		digital_signature TEXT NOT NULL,
		public_key        TEXT NOT NULL,
		order_date        TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_client_petitions_client_date
		ON client_petitions(client_id, order_date);
`

// Config holds the parameters for opening a petition store.
type Config struct {
	// Path is the SQLite database file. Required.
	Path string

	// PoolSize is the connection pool size. Defaults to 4.
	PoolSize int

	// Logger receives operational messages. Required.
	Logger *slog.Logger

	// ResetOnOpen drops and recreates the petition table, discarding
	// all history. Opt-in: the default preserves history across
	// restarts.
	ResetOnOpen bool
}

// Store is a durable, query-capable collection of petition records.
// Records are immutable once inserted.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// Open creates the store, its schema, and optionally resets the
// petition table.
func Open(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("petition store: Logger is required")
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: cfg.PoolSize,
		Logger:   cfg.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("petition store: %w", err)
	}

	store := &Store{pool: pool, logger: cfg.Logger}

	if cfg.ResetOnOpen {
		if err := store.Reset(context.Background()); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return store, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Reset drops and recreates the petition table. This discards all
// history for every client; it exists as an explicit administrative
// operation, not a side effect of startup.
func (s *Store) Reset(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("petition store: reset: %w", err)
	}
	defer s.pool.Put(conn)

	if err := sqlitex.ExecuteTransient(conn, "DROP TABLE IF EXISTS client_petitions", nil); err != nil {
		return fmt.Errorf("petition store: dropping table: %w", err)
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("petition store: recreating table: %w", err)
	}

	s.logger.Warn("petition table reset, all history discarded")
	return nil
}

// InsertBatch inserts all records in a single IMMEDIATE transaction.
// Either every record lands or none do.
func (s *Store) InsertBatch(ctx context.Context, records []petition.Record) error {
	if len(records) == 0 {
		return nil
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("petition store: insert batch: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("petition store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	for i := range records {
		if err = insertRecord(conn, &records[i]); err != nil {
			return err
		}
	}

	return nil
}

func insertRecord(conn *sqlite.Conn, record *petition.Record) error {
	err := sqlitex.Execute(conn, `INSERT INTO client_petitions
		(client_id, name_material, amount, digital_signature, public_key, order_date)
		VALUES (?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			record.ClientID,
			record.NameMaterial,
			record.Amount,
			record.DigitalSignature,
			record.PublicKey,
			petition.FormatOrderDate(record.OrderDate),
		},
	})
	if err != nil {
		return fmt.Errorf("petition store: inserting petition for client %d: %w", record.ClientID, err)
	}
	return nil
}

// CountForClient returns the number of persisted petitions for a
// client.
func (s *Store) CountForClient(ctx context.Context, clientID int64) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("petition store: count: %w", err)
	}
	defer s.pool.Put(conn)

	var count int64
	err = sqlitex.Execute(conn,
		"SELECT COUNT(*) FROM client_petitions WHERE client_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{clientID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return 0, fmt.Errorf("petition store: count for client %d: %w", clientID, err)
	}
	return count, nil
}

// RecentForClient returns the n most recent petitions for a client,
// ordered by order_date descending. Ties resolve by insertion order,
// newest first.
func (s *Store) RecentForClient(ctx context.Context, clientID int64, n int) ([]petition.Record, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("petition store: recent: %w", err)
	}
	defer s.pool.Put(conn)

	var records []petition.Record
	err = sqlitex.Execute(conn, `SELECT client_id, name_material, amount,
		digital_signature, public_key, order_date
		FROM client_petitions
		WHERE client_id = ?
		ORDER BY order_date DESC, id DESC
		LIMIT ?`, &sqlitex.ExecOptions{
		Args: []any{clientID, n},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			record, err := scanRecord(stmt)
			if err != nil {
				return err
			}
			records = append(records, record)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("petition store: recent for client %d: %w", clientID, err)
	}
	return records, nil
}

func scanRecord(stmt *sqlite.Stmt) (petition.Record, error) {
	orderDate, err := petition.ParseOrderDate(stmt.ColumnText(5))
	if err != nil {
		return petition.Record{}, fmt.Errorf("stored order_date: %w", err)
	}
	return petition.Record{
		ClientID:         stmt.ColumnInt64(0),
		NameMaterial:     stmt.ColumnText(1),
		Amount:           stmt.ColumnInt64(2),
		DigitalSignature: stmt.ColumnText(3),
		PublicKey:        stmt.ColumnText(4),
		OrderDate:        orderDate,
	}, nil
}
