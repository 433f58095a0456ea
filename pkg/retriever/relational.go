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

package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/kadirpekel/conductor/pkg/errs"
)

// SQL dialects understood by the relational strategy.
const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
	DialectSQLite   = "sqlite"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// RelationalConfig maps a table onto the retrieval contract.
type RelationalConfig struct {
	Table    string `yaml:"table"`
	IDColumn string `yaml:"id_column"`

	// SearchColumns are matched against query terms. Each matching
	// (term, column) pair adds one to the score.
	SearchColumns []string `yaml:"search_columns"`

	// PayloadColumns are returned in the item payload.
	// Default: IDColumn plus SearchColumns
	PayloadColumns []string `yaml:"payload_columns,omitempty"`

	// FilterColumns may appear as filter keys.
	// Default: PayloadColumns
	FilterColumns []string `yaml:"filter_columns,omitempty"`

	// Dialect selects the placeholder style: postgres, mysql or sqlite.
	Dialect string `yaml:"dialect"`
}

func (c *RelationalConfig) SetDefaults() {
	if c.IDColumn == "" {
		c.IDColumn = "id"
	}
	if len(c.PayloadColumns) == 0 {
		c.PayloadColumns = append([]string{c.IDColumn}, c.SearchColumns...)
	}
	if len(c.FilterColumns) == 0 {
		c.FilterColumns = c.PayloadColumns
	}
	if c.Dialect == "" || c.Dialect == "sqlite3" {
		c.Dialect = DialectSQLite
	}
	if c.Dialect == "postgresql" {
		c.Dialect = DialectPostgres
	}
}

func (c *RelationalConfig) Validate() error {
	if c.Table == "" {
		return fmt.Errorf("table is required")
	}
	if len(c.SearchColumns) == 0 {
		return fmt.Errorf("at least one search column is required")
	}
	switch c.Dialect {
	case DialectPostgres, DialectMySQL, DialectSQLite:
	default:
		return fmt.Errorf("unsupported dialect %q (valid: postgres, mysql, sqlite)", c.Dialect)
	}

	idents := slices.Concat([]string{c.Table, c.IDColumn}, c.SearchColumns, c.PayloadColumns, c.FilterColumns)
	for _, id := range idents {
		if !identifierPattern.MatchString(id) {
			return fmt.Errorf("invalid SQL identifier %q", id)
		}
	}
	return nil
}

// RelationalStrategy translates a keyword query and equality filters into a
// parameterized, scored SELECT.
type RelationalStrategy struct {
	meta    Metadata
	client  SQLClient
	config  RelationalConfig
	retryer *Retryer
}

// NewRelationalStrategy takes ownership of client; Close releases it.
func NewRelationalStrategy(meta Metadata, client SQLClient, cfg RelationalConfig, opts ...StrategyOption) (*RelationalStrategy, error) {
	if client == nil {
		return nil, fmt.Errorf("relational retriever %q: client is required", meta.Name)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("relational retriever %q: %w", meta.Name, err)
	}

	meta.Kind = KindRelational
	if len(meta.Capabilities) == 0 {
		meta.Capabilities = []string{CapabilityKeyword, CapabilityFilterable}
	}

	o := applyStrategyOptions(opts)

	slog.Debug("Relational retriever initialized",
		"retriever", meta.Name,
		"backend", client.Backend(),
		"table", cfg.Table)

	return &RelationalStrategy{meta: meta, client: client, config: cfg, retryer: o.retryer}, nil
}

func (s *RelationalStrategy) Metadata() Metadata { return s.meta }

func (s *RelationalStrategy) Retrieve(ctx context.Context, query Query, topK int, filters Filters) ([]Item, error) {
	native, err := s.Build(query, topK, filters)
	if err != nil {
		return nil, err
	}

	records, err := Do(ctx, s.retryer, s.meta.Name+".fetch", func(ctx context.Context) ([]Record, error) {
		return s.client.Fetch(ctx, native, topK, nil)
	})
	if err != nil {
		return nil, err
	}
	return rank(toItems(records, s.meta.Name, s.client.Backend()), topK), nil
}

// Build renders the native statement for query. Exposed for diagnostics
// and tests.
func (s *RelationalStrategy) Build(query Query, topK int, filters Filters) (SQLQuery, error) {
	var (
		args   []any
		argNum int
	)
	placeholder := func(v any) string {
		args = append(args, v)
		argNum++
		if s.config.Dialect == DialectPostgres {
			return fmt.Sprintf("$%d", argNum)
		}
		return "?"
	}

	terms := Tokenize(query.Text)

	var scoreParts, matchParts []string
	for _, term := range terms {
		for _, col := range s.config.SearchColumns {
			scoreParts = append(scoreParts,
				fmt.Sprintf("CASE WHEN LOWER(%s) LIKE %s THEN 1 ELSE 0 END", col, placeholder(likePattern(term))))
		}
	}
	for _, term := range terms {
		for _, col := range s.config.SearchColumns {
			matchParts = append(matchParts, fmt.Sprintf("LOWER(%s) LIKE %s", col, placeholder(likePattern(term))))
		}
	}

	score := "0"
	if len(scoreParts) > 0 {
		score = strings.Join(scoreParts, " + ")
	}

	var where []string
	if len(matchParts) > 0 {
		where = append(where, "("+strings.Join(matchParts, " OR ")+")")
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if !slices.Contains(s.config.FilterColumns, k) {
			return SQLQuery{}, &errs.InvalidQueryError{
				Retriever: s.meta.Name,
				Err:       fmt.Errorf("filter %q is not a filterable column of %s", k, s.config.Table),
			}
		}
		where = append(where, fmt.Sprintf("%s = %s", k, placeholder(filters[k])))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s AS %s, %s AS %s", s.config.IDColumn, IDColumn, score, ScoreColumn)
	for _, col := range s.config.PayloadColumns {
		fmt.Fprintf(&b, ", %s", col)
	}
	fmt.Fprintf(&b, " FROM %s", s.config.Table)
	if len(where) > 0 {
		fmt.Fprintf(&b, " WHERE %s", strings.Join(where, " AND "))
	}
	fmt.Fprintf(&b, " ORDER BY %s DESC, %s ASC", ScoreColumn, IDColumn)
	if topK > 0 {
		fmt.Fprintf(&b, " LIMIT %d", topK)
	}

	return SQLQuery{Statement: b.String(), Args: args}, nil
}

func (s *RelationalStrategy) Ping(ctx context.Context) error {
	return pingClient(ctx, s.client)
}

func (s *RelationalStrategy) Close() error {
	return s.client.Close()
}

func likePattern(term string) string {
	r := strings.NewReplacer(`%`, ``, `_`, ``)
	return "%" + r.Replace(term) + "%"
}

var _ Strategy = (*RelationalStrategy)(nil)
