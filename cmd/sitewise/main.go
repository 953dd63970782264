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

// Command sitewise is the CLI for the commercial-location answering
// service.
//
// Usage:
//
//	sitewise serve --config sitewise.yaml
//	sitewise ingest ./docs --chunk-size 500
//	sitewise ask "강남역 상권 분석해줘" --stream
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/sitewise"
	"github.com/kadirpekel/sitewise/pkg/config"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP server."`
	Ask      AskCmd      `cmd:"" help:"Answer one question from the terminal."`
	Ingest   IngestCmd   `cmd:"" help:"Load, split and index documents."`
	Tools    ToolsCmd    `cmd:"" help:"List the tools offered to the model."`
	Validate ValidateCmd `cmd:"" help:"Validate the configuration and provider registry."`

	Config    string `short:"c" help:"Path to config file (YAML or JSON)." type:"path" env:"SITEWISE_CONFIG"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." env:"LOG_LEVEL"`
	LogFile   string `help:"Log file path (empty = stderr)." env:"LOG_FILE"`
	LogFormat string `help:"Log format (simple, verbose, json)." env:"LOG_FORMAT"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(sitewise.Current())
	return nil
}

func main() {
	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("sitewise"),
		kong.Description("Sitewise - conversational commercial-location analysis"),
		kong.UsageOnError(),
	)

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
