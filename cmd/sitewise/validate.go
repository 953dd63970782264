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
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/sitewise/pkg/config"
)

// ValidateCmd validates the configuration file and the provider registry.
type ValidateCmd struct {
	Format      string `short:"f" help:"Output format: compact, verbose, json." default:"compact" enum:"compact,verbose,json"`
	PrintConfig bool   `short:"p" name:"print-config" help:"Print the expanded configuration (with defaults applied and env vars resolved)."`
}

// ValidationError is one problem found by validate.
type ValidationError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type validateOutput struct {
	Valid  bool              `json:"valid"`
	File   string            `json:"file"`
	Errors []ValidationError `json:"errors,omitempty"`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	file := cli.Config
	if file == "" {
		file = "(defaults)"
	}

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return c.report(file, []ValidationError{{Type: "load", Message: err.Error()}})
	}
	cfg.SetDefaults()

	var problems []ValidationError
	if err := cfg.Validate(); err != nil {
		problems = append(problems, ValidationError{Type: "config", Message: err.Error()})
	}

	if config.BoolValue(cfg.Tools.Enabled, true) {
		reg, err := config.LoadProviderRegistry(cfg.Tools.RegistryPath)
		if err != nil {
			problems = append(problems, ValidationError{Type: "registry", Message: err.Error()})
		} else {
			for _, name := range reg.Names() {
				if err := reg.Servers[name].Validate(); err != nil {
					problems = append(problems, ValidationError{Type: "provider", Message: fmt.Sprintf("%s: %v", name, err)})
				}
			}
		}
	}

	if len(problems) > 0 {
		return c.report(file, problems)
	}
	if c.PrintConfig {
		return c.printConfig(file, cfg)
	}
	return c.report(file, nil)
}

func (c *ValidateCmd) report(file string, problems []ValidationError) error {
	switch c.Format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(validateOutput{Valid: len(problems) == 0, File: file, Errors: problems}); err != nil {
			return err
		}
	case "verbose":
		if len(problems) == 0 {
			fmt.Fprintf(os.Stdout, "Configuration Validation Successful\n")
			fmt.Fprintf(os.Stdout, "===================================\n\n")
			fmt.Fprintf(os.Stdout, "File:   %s\n", file)
			fmt.Fprintf(os.Stdout, "Status: OK\n")
			return nil
		}
		fmt.Fprintf(os.Stderr, "Configuration Validation Failed\n")
		fmt.Fprintf(os.Stderr, "===============================\n\n")
		fmt.Fprintf(os.Stderr, "File:    %s\n", file)
		for _, p := range problems {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", p.Type, p.Message)
		}
	default:
		if len(problems) == 0 {
			fmt.Fprintf(os.Stdout, "%s: valid\n", file)
			return nil
		}
		for _, p := range problems {
			fmt.Fprintf(os.Stderr, "%s: %s error: %s\n", file, p.Type, p.Message)
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("validation failed with %d error(s)", len(problems))
	}
	return nil
}

func (c *ValidateCmd) printConfig(file string, cfg *config.Config) error {
	if c.Format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config as JSON: %w", err)
		}
		return nil
	}

	fmt.Fprintf(os.Stdout, "# Expanded Configuration from: %s\n", file)
	fmt.Fprintf(os.Stdout, "# (defaults applied, env vars resolved)\n\n")
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config as YAML: %w", err)
	}
	return nil
}
