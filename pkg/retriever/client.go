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

import "context"

// Record is one raw result from a backend client.
type Record struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// Client is the narrow fetch contract implemented by backend clients. Q is
// the backend's native query form.
type Client[Q any] interface {
	Fetch(ctx context.Context, query Q, topK int, filters Filters) ([]Record, error)

	// Backend names the concrete backend, e.g. "qdrant" or "sqlite3".
	Backend() string

	Close() error
}

// VectorQuery is the native form for vector stores.
type VectorQuery struct {
	Collection string
	Vector     []float32
}

// GraphQuery is the native form for graph stores: start from Seeds and
// nodes matching any of Terms, then expand along EdgeTypes up to Depth hops.
type GraphQuery struct {
	Seeds     []string
	Terms     []string
	EdgeTypes []string
	Depth     int
}

// SQLQuery is a parameterized statement. The statement must project the
// item id as column IDColumn and the score as column ScoreColumn.
type SQLQuery struct {
	Statement string
	Args      []any
}

// Column aliases relational statements must project.
const (
	IDColumn    = "_id"
	ScoreColumn = "_score"
)

type (
	VectorClient = Client[VectorQuery]
	GraphClient  = Client[GraphQuery]
	SQLClient    = Client[SQLQuery]
)
