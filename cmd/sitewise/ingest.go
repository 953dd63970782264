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
	"os/signal"
	"syscall"
	"time"
)

// IngestCmd loads documents, splits them into chunks and indexes them.
type IngestCmd struct {
	Paths        []string `arg:"" help:"Files or directories to ingest." type:"path"`
	ChunkSize    int      `name:"chunk-size" help:"Chunk size in characters (0 = config value)."`
	ChunkOverlap int      `name:"chunk-overlap" help:"Chunk overlap in characters (-1 = config value)." default:"-1"`
	Reset        bool     `help:"Drop the collection before indexing."`
}

func (c *IngestCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, cleanup, err := cli.newRuntime(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if c.Reset {
		if err := rt.Store().Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear collection: %w", err)
		}
	}

	stats, err := rt.Ingest(ctx, c.Paths, c.ChunkSize, c.ChunkOverlap)
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d chunks in %d batches (%s) into %q\n",
		stats.Documents, stats.Batches, stats.Duration.Round(time.Millisecond), rt.Config().Vector.Collection)
	return nil
}
