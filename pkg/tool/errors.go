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

package tool

import (
	"fmt"
	"strings"
)

// ProviderInitError reports a provider that could not be registered.
type ProviderInitError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ProviderInitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[catalog:register] provider %q %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("[catalog:register] provider %q %s", e.Provider, e.Message)
}

func (e *ProviderInitError) Unwrap() error {
	return e.Err
}

// DiscoveryError reports that every registered provider failed to list tools.
type DiscoveryError struct {
	Failed []string
	Err    error
}

func (e *DiscoveryError) Error() string {
	msg := fmt.Sprintf("[catalog:discover] all providers failed (%s)", strings.Join(e.Failed, ", "))
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// InvocationError reports a failed tool call.
type InvocationError struct {
	Tool string
	Err  error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("[catalog:call] tool %q failed: %v", e.Tool, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// NotFoundError reports a call to a tool name no provider advertises.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("[catalog:call] tool %q not found", e.Name)
}
