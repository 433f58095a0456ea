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

package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kadirpekel/conductor/pkg/retriever"
)

// QdrantConfig configures a Qdrant connection.
type QdrantConfig struct {
	Host string `yaml:"host" json:"host"`

	// Port is the gRPC port (default: 6334).
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	UseTLS bool   `yaml:"use_tls,omitempty" json:"use_tls,omitempty"`
}

// SetDefaults applies default values.
func (c *QdrantConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
}

// Qdrant is a vector Backend Client for a Qdrant server.
type Qdrant struct {
	client *qdrant.Client
	config QdrantConfig
}

// NewQdrant creates a Qdrant client. The connection is established lazily.
func NewQdrant(cfg QdrantConfig) (*Qdrant, error) {
	cfg.SetDefaults()

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client for %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return &Qdrant{client: client, config: cfg}, nil
}

// Fetch searches a collection. Filters become exact-match conditions that
// must all hold.
func (q *Qdrant) Fetch(ctx context.Context, query retriever.VectorQuery, topK int, filters retriever.Filters) ([]retriever.Record, error) {
	req := &qdrant.SearchPoints{
		CollectionName: query.Collection,
		Vector:         query.Vector,
		Limit:          uint64(topK),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(filters) > 0 {
		filter, err := qdrantFilter(filters)
		if err != nil {
			return nil, err
		}
		req.Filter = filter
	}

	resp, err := q.client.GetPointsClient().Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant: search %s: %w", query.Collection, classify(err))
	}
	return qdrantRecords(resp.GetResult()), nil
}

func (q *Qdrant) Backend() string { return string(TypeQdrant) }

func (q *Qdrant) Ping(ctx context.Context) error {
	if _, err := q.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed for %s:%d: %w", q.config.Host, q.config.Port, classify(err))
	}
	return nil
}

func (q *Qdrant) Close() error {
	return q.client.Close()
}

func qdrantFilter(filters retriever.Filters) (*qdrant.Filter, error) {
	conditions := make([]*qdrant.Condition, 0, len(filters))
	for key, value := range filters {
		switch v := value.(type) {
		case string:
			conditions = append(conditions, qdrant.NewMatch(key, v))
		case bool:
			conditions = append(conditions, qdrant.NewMatchBool(key, v))
		case int:
			conditions = append(conditions, qdrant.NewMatchInt(key, int64(v)))
		case int64:
			conditions = append(conditions, qdrant.NewMatchInt(key, v))
		case float64:
			if v != float64(int64(v)) {
				return nil, fmt.Errorf("qdrant: filter %s: exact match on fractional value %v is not supported", key, v)
			}
			conditions = append(conditions, qdrant.NewMatchInt(key, int64(v)))
		default:
			return nil, fmt.Errorf("qdrant: filter %s: unsupported value type %T", key, value)
		}
	}
	return &qdrant.Filter{Must: conditions}, nil
}

func qdrantRecords(points []*qdrant.ScoredPoint) []retriever.Record {
	records := make([]retriever.Record, 0, len(points))
	for _, p := range points {
		records = append(records, retriever.Record{
			ID:      qdrantID(p.GetId()),
			Score:   float64(p.GetScore()),
			Payload: qdrantPayload(p.GetPayload()),
		})
	}
	return records
}

func qdrantID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	switch v := id.GetPointIdOptions().(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", v.Num)
	}
	return ""
}

func qdrantPayload(fields map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = qdrantValue(v)
	}
	return out
}

func qdrantValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		values := kind.ListValue.GetValues()
		list := make([]any, len(values))
		for i, item := range values {
			list[i] = qdrantValue(item)
		}
		return list
	case *qdrant.Value_StructValue:
		return qdrantPayload(kind.StructValue.GetFields())
	default:
		return nil
	}
}

// classify tags transient gRPC failures so the retry layer recognises them.
func classify(err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		return fmt.Errorf("service unavailable: %w", err)
	case codes.DeadlineExceeded:
		return fmt.Errorf("i/o timeout: %w", err)
	}
	return err
}
