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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kadirpekel/conductor/pkg/builder"
	"github.com/kadirpekel/conductor/pkg/config"
	"github.com/kadirpekel/conductor/pkg/config/provider"
	"github.com/kadirpekel/conductor/pkg/logger"
	"github.com/kadirpekel/conductor/pkg/telemetry"
)

// initLogger installs the process logger. Flags and their environment
// variables win over the config file; cfg may be nil before the config is
// loaded.
func initLogger(g Globals, cfg *config.LoggerConfig) (func(), error) {
	level, file, format := g.LogLevel, g.LogFile, g.LogFormat
	if cfg != nil {
		if level == "" {
			level = cfg.Level
		}
		if file == "" {
			file = cfg.File
		}
		if format == "" {
			format = cfg.Format
		}
	}
	if format == "" {
		format = logger.FormatSimple
	}

	lvl, err := logger.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	if file == "" {
		logger.Init(lvl, os.Stderr, format)
		return func() {}, nil
	}
	out, cleanup, err := logger.OpenLogFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger.Init(lvl, out, format)
	return cleanup, nil
}

// providerConfig turns the global flags into a provider configuration.
func providerConfig(g Globals) (provider.ProviderConfig, error) {
	typ, err := provider.ParseType(g.Provider)
	if err != nil {
		return provider.ProviderConfig{}, err
	}
	return provider.ProviderConfig{Type: typ, Path: g.Config, Endpoints: g.Endpoints}, nil
}

// openLoader reads the first configuration from the source the globals
// describe. The caller closes the loader.
func openLoader(ctx context.Context, g Globals, opts ...config.LoaderOption) (*config.Config, *config.Loader, error) {
	pc, err := providerConfig(g)
	if err != nil {
		return nil, nil, err
	}
	cfg, loader, err := config.Open(ctx, pc, opts...)
	if err != nil {
		return nil, nil, err
	}
	slog.Debug("Loaded configuration", "provider", pc.Type, "path", pc.Path)
	return cfg, loader, nil
}

// session is a loaded configuration with its runtime, for one-shot
// commands.
type session struct {
	cfg     *config.Config
	rt      *builder.Runtime
	cleanup func()
}

func (s *session) Close() {
	if err := s.rt.Close(); err != nil {
		slog.Warn("Failed to close runtime", "error", err)
	}
	s.cleanup()
}

func openSession(ctx context.Context, g Globals) (*session, error) {
	cfg, loader, err := openLoader(ctx, g)
	if err != nil {
		return nil, err
	}
	_ = loader.Close()

	cleanup, err := initLogger(g, &cfg.Logger)
	if err != nil {
		return nil, err
	}

	rt, err := builder.Build(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to build runtime: %w", err)
	}
	return &session{cfg: cfg, rt: rt, cleanup: cleanup}, nil
}

// newTelemetry initializes tracing and metrics from the configuration.
func newTelemetry(ctx context.Context, cfg telemetry.Config) (*telemetry.Manager, error) {
	mgr := telemetry.NewManager(cfg)
	if err := mgr.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	return mgr, nil
}
