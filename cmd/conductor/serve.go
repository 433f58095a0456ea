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
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/conductor/pkg/builder"
	"github.com/kadirpekel/conductor/pkg/config"
	"github.com/kadirpekel/conductor/pkg/server"
)

// ServeCmd runs the ops server and, unless disabled, hot-reloads the
// configuration when the provider reports a change.
type ServeCmd struct {
	Address string        `help:"Listen address. Overrides server.address." placeholder:"HOST:PORT"`
	Watch   bool          `help:"Reload the runtime when the configuration changes." default:"true" negatable:""`
	Drain   time.Duration `help:"How long a replaced runtime stays open for in-flight executions." default:"5s"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var reloader *builder.Reloader
	cfg, loader, err := openLoader(ctx, cli.Globals, config.WithOnChange(func(next *config.Config) {
		if reloader == nil {
			return
		}
		// Logged by the reloader; the active runtime stays in place.
		_ = reloader.Reload(ctx, next)
	}))
	if err != nil {
		return err
	}
	defer loader.Close()

	cleanup, err := initLogger(cli.Globals, &cfg.Logger)
	if err != nil {
		return err
	}
	defer cleanup()

	mgr, err := newTelemetry(ctx, cfg.Observability)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Telemetry shutdown failed", "error", err)
		}
	}()

	opts := []builder.Option{builder.WithTelemetry(mgr, slog.Default())}
	rt, err := builder.Build(ctx, cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to build runtime: %w", err)
	}
	reloader = builder.NewReloader(rt, c.Drain, opts...)
	defer reloader.Close()

	serverCfg := cfg.Server
	if c.Address != "" {
		serverCfg.Address = c.Address
	}
	srv := server.New(serverCfg, reloader,
		server.WithTelemetry(mgr),
		server.WithMetricsPath(cfg.Observability.Metrics.Endpoint))

	slog.Info("Conductor ready",
		"address", serverCfg.Address,
		"tools", len(rt.Tools.Names()),
		"retrievers", len(rt.Retrievers.Names()),
		"watch", c.Watch)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	if c.Watch {
		g.Go(func() error {
			err := loader.Watch(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	err = g.Wait()
	slog.Info("Conductor stopped")
	return err
}
