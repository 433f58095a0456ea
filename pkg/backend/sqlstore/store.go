// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlstore provides the relational Backend Client over database/sql
// for PostgreSQL, MySQL and SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kadirpekel/conductor/pkg/retriever"
)

// Store executes parameterized statements built by the relational strategy.
type Store struct {
	db     *sql.DB
	driver string
}

// Open creates a connection pool and verifies it.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	driver := cfg.DriverName()
	db, err := sql.Open(driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time. A single connection
	// serializes access and prevents "database is locked" errors.
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxConns)
		db.SetMaxIdleConns(cfg.MaxIdle)
	}
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == "sqlite3" {
		if _, err := db.ExecContext(pingCtx, "PRAGMA busy_timeout=10000"); err != nil {
			slog.Warn("Failed to set busy timeout", "error", err)
		}
	}

	return &Store{db: db, driver: driver}, nil
}

// New wraps an existing pool. The store takes ownership of db.
func New(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// DB exposes the underlying pool.
func (s *Store) DB() *sql.DB { return s.db }

// Exec runs a statement that returns no rows.
func (s *Store) Exec(ctx context.Context, statement string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, statement, args...); err != nil {
		return fmt.Errorf("%s: exec: %w", s.driver, err)
	}
	return nil
}

// Fetch runs the statement and maps each row to a record. Filters are
// already compiled into the statement, so they are not consulted here.
func (s *Store) Fetch(ctx context.Context, q retriever.SQLQuery, topK int, _ retriever.Filters) ([]retriever.Record, error) {
	rows, err := s.db.QueryContext(ctx, q.Statement, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", s.driver, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("%s: columns: %w", s.driver, err)
	}

	var records []retriever.Record
	for rows.Next() {
		if topK > 0 && len(records) >= topK {
			break
		}
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", s.driver, err)
		}

		rec := retriever.Record{Payload: make(map[string]any, len(columns))}
		for i, col := range columns {
			v := normalize(values[i])
			switch col {
			case retriever.IDColumn:
				rec.ID = fmt.Sprint(v)
			case retriever.ScoreColumn:
				rec.Score = toFloat(v)
			default:
				rec.Payload[col] = v
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", s.driver, err)
	}
	return records, nil
}

func (s *Store) Backend() string { return s.driver }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case int:
		return float64(n)
	case float64:
		return n
	case float32:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}
