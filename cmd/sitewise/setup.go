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

	"github.com/kadirpekel/sitewise/pkg/config"
	"github.com/kadirpekel/sitewise/pkg/logger"
	"github.com/kadirpekel/sitewise/pkg/runtime"
)

// loadConfig reads the config file (or defaults without one) and installs
// the logger. Flags and environment variables override the logger section.
// The returned cleanup closes the log file.
func (cli *CLI) loadConfig() (*config.Config, func(), error) {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, nil, err
	}
	cfg.SetDefaults()

	level := firstNonEmpty(cli.LogLevel, cfg.Logger.Level, "info")
	format := firstNonEmpty(cli.LogFormat, cfg.Logger.Format, "simple")
	file := firstNonEmpty(cli.LogFile, cfg.Logger.File)

	output, cleanup := os.Stderr, func() {}
	if file != "" {
		f, closeFn, err := logger.OpenLogFile(file)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output, cleanup = f, closeFn
	}
	logger.Init(logger.ParseLevel(level), output, format)

	if cli.Config != "" {
		slog.Debug("Loaded configuration", "path", cli.Config)
	}
	return cfg, cleanup, nil
}

// newRuntime loads the config and builds the runtime. The returned cleanup
// closes both.
func (cli *CLI) newRuntime(ctx context.Context) (*runtime.Runtime, func(), error) {
	cfg, closeLog, err := cli.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	rt, err := runtime.New(ctx, cfg)
	if err != nil {
		closeLog()
		return nil, nil, fmt.Errorf("failed to create runtime: %w", err)
	}
	return rt, func() {
		_ = rt.Close(context.WithoutCancel(ctx))
		closeLog()
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
