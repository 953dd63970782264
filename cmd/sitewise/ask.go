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
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/kadirpekel/sitewise/pkg/chain"
	"github.com/kadirpekel/sitewise/pkg/rag"
)

// AskCmd answers one question and prints the result.
type AskCmd struct {
	Question string `arg:"" help:"Question to answer."`
	Stream   bool   `help:"Print the answer as it is generated."`
	TopK     int    `name:"top-k" help:"Number of documents to retrieve (0 = config value)."`
	JSON     bool   `name:"json" help:"Print the full result as JSON."`
}

func (c *AskCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, cleanup, err := cli.newRuntime(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	req := chain.Request{Query: c.Question, TopK: c.TopK}

	if !c.Stream {
		res := rt.Chain().Run(ctx, req)
		if c.JSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		fmt.Println(res.Answer)
		printSummary(res.Strategy, res.Sources, res.ToolsUsed)
		return nil
	}

	var (
		sources []string
		used    []string
		failed  error
	)
	for ev := range rt.Chain().StreamRun(ctx, req) {
		switch ev.Type {
		case chain.EventSources:
			for _, d := range ev.Sources {
				sources = append(sources, d.Source())
			}
		case chain.EventToolsUsed:
			used = ev.ToolsUsed
		case chain.EventAnswerChunk:
			fmt.Print(ev.Chunk)
		case chain.EventError:
			fmt.Println(ev.Error)
			failed = ev.Err
		case chain.EventDone:
			fmt.Println()
			fmt.Printf("\nStrategy: %s\n", ev.Strategy)
		}
	}
	if len(sources) > 0 {
		fmt.Printf("Sources:  %s\n", strings.Join(sources, ", "))
	}
	if len(used) > 0 {
		fmt.Printf("Tools:    %s\n", strings.Join(used, ", "))
	}
	return failed
}

func printSummary(strategy chain.Strategy, docs []rag.Document, tools []string) {
	fmt.Printf("\nStrategy: %s\n", strategy)
	if len(docs) > 0 {
		names := make([]string, 0, len(docs))
		for _, d := range docs {
			names = append(names, fmt.Sprintf("%s (%.2f)", d.Source(), d.Score))
		}
		fmt.Printf("Sources:  %s\n", strings.Join(names, ", "))
	}
	if len(tools) > 0 {
		fmt.Printf("Tools:    %s\n", strings.Join(tools, ", "))
	}
}

// ToolsCmd discovers and lists the tools offered to the model.
type ToolsCmd struct {
	JSON bool `name:"json" help:"Print the function schemas as JSON."`
}

func (c *ToolsCmd) Run(cli *CLI) error {
	ctx := context.Background()
	rt, cleanup, err := cli.newRuntime(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if rt.Chain().Warmup(ctx) == 0 {
		fmt.Println("No tools available")
		return nil
	}
	tools := rt.Chain().Router().Tools()
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tools)
	}

	fmt.Printf("\nAvailable tools (%d):\n\n", len(tools))
	for _, t := range tools {
		fmt.Printf("  - %s\n", t.Name)
		if t.Description != "" {
			fmt.Printf("      %s\n", firstLine(t.Description))
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
