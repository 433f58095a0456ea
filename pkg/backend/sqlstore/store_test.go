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

package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/conductor/pkg/retriever"
)

func openJournal(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	s, err := Open(ctx, Config{Driver: "sqlite", Database: filepath.Join(t.TempDir(), "journal.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Exec(ctx, `CREATE TABLE entries (id INTEGER PRIMARY KEY, title TEXT, body TEXT, mood TEXT)`))
	for _, row := range [][]any{
		{1, "Gratitude list", "three small things", "calm"},
		{2, "Bad night", "gratitude feels far away", "low"},
		{3, "Gratitude walk", "gratitude for the river", "calm"},
		{4, "Tax day", "receipts everywhere", "low"},
	} {
		require.NoError(t, s.Exec(ctx, `INSERT INTO entries (id, title, body, mood) VALUES (?, ?, ?, ?)`, row...))
	}
	return s
}

func TestStore_ThroughRelationalStrategy(t *testing.T) {
	store := openJournal(t)

	s, err := retriever.NewRelationalStrategy(retriever.Metadata{Name: "entries"}, store, retriever.RelationalConfig{
		Table:          "entries",
		SearchColumns:  []string{"title", "body"},
		PayloadColumns: []string{"title", "mood"},
		FilterColumns:  []string{"mood"},
		Dialect:        "sqlite",
	})
	require.NoError(t, err)

	items, err := s.Retrieve(context.Background(), retriever.Query{Text: "Gratitude"}, 10, nil)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "3", items[0].ID, "matches in both columns, ties broken by id")
	assert.Equal(t, "1", items[1].ID)
	assert.Equal(t, "2", items[2].ID)
	assert.Equal(t, 2.0, items[0].Score)
	assert.Equal(t, map[string]any{"title": "Gratitude walk", "mood": "calm"}, items[0].Payload)
	assert.Equal(t, "sqlite3", items[0].Provenance.Backend)

	items, err = s.Retrieve(context.Background(), retriever.Query{Text: "gratitude"}, 10, retriever.Filters{"mood": "low"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "2", items[0].ID)

	require.NoError(t, s.Ping(context.Background()))
}

func TestStore_FetchStopsAtTopK(t *testing.T) {
	store := openJournal(t)

	records, err := store.Fetch(context.Background(), retriever.SQLQuery{
		Statement: `SELECT id AS _id, 1 AS _score, title FROM entries ORDER BY id`,
	}, 2, nil)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "1", records[0].ID)
	assert.Equal(t, 1.0, records[0].Score)
	assert.Equal(t, "Gratitude list", records[0].Payload["title"])
}

func TestStore_BadStatement(t *testing.T) {
	store := openJournal(t)
	_, err := store.Fetch(context.Background(), retriever.SQLQuery{Statement: "SELECT nope FROM missing"}, 1, nil)
	assert.Error(t, err)
}

func TestConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantDSN string
		wantErr bool
	}{
		{
			name:    "postgres",
			cfg:     Config{Driver: "postgres", Host: "db", Database: "journal", Username: "app"},
			wantDSN: "host=db port=5432 dbname=journal user=app sslmode=disable",
		},
		{
			name:    "mysql",
			cfg:     Config{Driver: "mysql", Host: "db", Database: "journal", Username: "app", Password: "pw"},
			wantDSN: "app:pw@tcp(db:3306)/journal?parseTime=true",
		},
		{name: "sqlite", cfg: Config{Database: "/tmp/x.db"}, wantDSN: "/tmp/x.db"},
		{name: "missing host", cfg: Config{Driver: "postgres", Database: "j"}, wantErr: true},
		{name: "unknown driver", cfg: Config{Driver: "oracle", Database: "j"}, wantErr: true},
		{name: "missing database", cfg: Config{Driver: "sqlite"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.SetDefaults()
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDSN, tt.cfg.DSN())
		})
	}
}
