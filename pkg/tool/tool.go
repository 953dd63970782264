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

// Package tool defines the provider-neutral tool types shared by the
// catalog, the MCP transport and the router.
//
// # Lifecycle
//
// A provider advertises Descriptors. The router turns each descriptor into
// a FunctionSchema that the language model can choose from, and the model
// answers with Calls. Each Call becomes an Invocation sent to the catalog,
// which answers with a Result:
//
//	Descriptor ──ToFunctionSchema──▶ FunctionSchema ──LLM──▶ Call
//	                                                          │
//	Result ◀──Catalog.Call── Invocation ◀─────────────────────┘
//
// # Results
//
// A Result is a sum type: either Payload carries whatever JSON value the
// provider returned, or Err carries the failure message. Failures are never
// raised as Go errors past the catalog boundary, so a single failing call
// does not abort its siblings.
package tool

import (
	"encoding/json"
)

// ID identifies a tool by its owning provider and its advertised name.
type ID struct {
	Provider string
	Name     string
}

// String returns "provider/name".
func (id ID) String() string {
	return id.Provider + "/" + id.Name
}

// Valid reports whether both halves are set.
func (id ID) Valid() bool {
	return id.Provider != "" && id.Name != ""
}

// Descriptor is a tool as advertised by its provider.
type Descriptor struct {
	Provider    string
	Name        string
	Description string
	InputSchema map[string]any
}

// ID returns the descriptor's identity.
func (d Descriptor) ID() ID {
	return ID{Provider: d.Provider, Name: d.Name}
}

// FunctionSchema is the function-calling shape consumed by the language model.
type FunctionSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Call is a tool call proposed by the language model. Arguments is the raw
// JSON text emitted by the model and may be malformed.
type Call struct {
	ID        string
	Name      string
	Arguments string
}

// Invocation is a decoded request to run one tool.
type Invocation struct {
	Name      string
	Arguments map[string]any
	CallID    string
}

// Result is the outcome of one invocation.
type Result struct {
	Name    string
	Payload any
	Err     string
}

// Failed reports whether the result is the error branch.
func (r Result) Failed() bool {
	return r.Err != ""
}

// Failure builds an error result for name.
func Failure(name string, err error) Result {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Result{Name: name, Err: msg}
}

// MarshalJSON encodes a failure as {"error": msg} and a success as the raw payload.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(map[string]string{"error": r.Err})
	}
	return json.Marshal(r.Payload)
}
