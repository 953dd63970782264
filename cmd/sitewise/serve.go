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
	"os/signal"
	"syscall"

	"github.com/kadirpekel/sitewise"
	"github.com/kadirpekel/sitewise/pkg/config"
	"github.com/kadirpekel/sitewise/pkg/server"
)

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Address    string `help:"Listen address (overrides server.address)." placeholder:"HOST:PORT"`
	WatchTools bool   `name:"watch-tools" help:"Reload MCP providers when the registry file changes."`
	NoWarmup   bool   `name:"no-warmup" help:"Defer tool discovery to the first request."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, cleanup, err := cli.newRuntime(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := rt.Config()
	if c.Address != "" {
		cfg.Server.Address = c.Address
	}

	if !c.NoWarmup {
		n := rt.Chain().Warmup(ctx)
		slog.Info("Tools available", "count", n)
	}

	if c.WatchTools && config.BoolValue(cfg.Tools.Enabled, true) {
		go func() {
			err := config.WatchFile(ctx, cfg.Tools.RegistryPath, func() {
				if err := rt.ReloadTools(ctx); err != nil {
					slog.Error("Tool reload failed", "error", err)
				}
			})
			if err != nil {
				slog.Error("Registry watch error", "path", cfg.Tools.RegistryPath, "error", err)
			}
		}()
	}

	srv := server.New(cfg.Server, rt.Chain(),
		server.WithMetrics(rt.Metrics(), rt.MetricsHandler()),
		server.WithToolCount(rt.ToolCount),
		server.WithVersion(sitewise.Current().Version),
	)

	fmt.Printf("\nSitewise server ready\n")
	fmt.Printf("   Chat:        http://%s/api/rag-chat\n", displayAddr(cfg.Server.Address))
	fmt.Printf("   Stream:      http://%s/api/rag-chat-stream\n", displayAddr(cfg.Server.Address))
	fmt.Printf("   Health:      http://%s/health\n", displayAddr(cfg.Server.Address))
	if rt.MetricsHandler() != nil {
		fmt.Printf("   Metrics:     http://%s/metrics\n", displayAddr(cfg.Server.Address))
	}
	if cfg.Observability.Tracing.Enabled {
		fmt.Printf("   Tracing:     %s (%s)\n", cfg.Observability.Tracing.Exporter, cfg.Observability.Tracing.Endpoint)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	return srv.Serve(ctx)
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
