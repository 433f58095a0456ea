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

package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "trace", want: slog.LevelInfo, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestNew_Simple(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.LevelInfo, &buf, FormatSimple)

	l.Debug("hidden")
	l.With("tool", "search").WithGroup("req").Warn("Tool failed", "kind", "timeout", "error", "took too long")

	assert.Equal(t, "WARN Tool failed tool=search req.kind=timeout req.error=\"took too long\"\n", buf.String())
	assert.False(t, IsTerminal(&buf))
}

func TestNew_Verbose(t *testing.T) {
	var buf bytes.Buffer
	New(slog.LevelDebug, &buf, FormatVerbose).Debug("Registered tool", "tool", "a")

	line := buf.String()
	assert.Regexp(t, `^\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2} DEBUG Registered tool tool=a\n$`, line)
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	New(slog.LevelInfo, &buf, FormatJSON).Info("Executed", "latency_ms", 12)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "Executed", rec["msg"])
	assert.Equal(t, float64(12), rec["latency_ms"])
}

func TestFilteringHandler(t *testing.T) {
	assert.True(t, fromConductor(0))

	var buf bytes.Buffer
	h := &filteringHandler{handler: slog.NewTextHandler(&buf, nil), minLevel: slog.LevelInfo}
	assert.False(t, h.Enabled(t.Context(), slog.LevelDebug))
	assert.True(t, h.Enabled(t.Context(), slog.LevelError))
}

func TestInitAndGetLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	Init(slog.LevelInfo, &buf, FormatSimple)
	GetLogger().Info("ready")
	slog.Info("also ready")

	assert.Equal(t, "INFO ready\nINFO also ready\n", buf.String())
}
