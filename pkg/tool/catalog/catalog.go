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

// Package catalog keeps the set of tool providers, the tools they offer,
// and routes calls by tool name to the owning provider.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kadirpekel/sitewise/pkg/config"
	"github.com/kadirpekel/sitewise/pkg/observability"
	"github.com/kadirpekel/sitewise/pkg/registry"
	"github.com/kadirpekel/sitewise/pkg/tool"
	"github.com/kadirpekel/sitewise/pkg/tool/mcptoolset"
)

// Provider is a tool-invocation protocol client.
type Provider interface {
	Name() string
	ListTools(ctx context.Context) ([]tool.Descriptor, error)
	CallTool(ctx context.Context, name string, args map[string]any) (any, error)
	Close() error
}

// ProviderFactory builds a provider from its registry entry.
type ProviderFactory func(name string, desc config.ProviderDescriptor) (Provider, error)

// MCPFactory builds MCP-backed providers.
func MCPFactory(name string, desc config.ProviderDescriptor) (Provider, error) {
	return mcptoolset.New(mcptoolset.Config{
		Name:       name,
		URL:        desc.URL,
		Transport:  desc.Transport,
		Command:    desc.Command,
		Args:       desc.Args,
		Env:        desc.Env,
		Filter:     desc.Filter,
		MaxRetries: desc.MaxRetries,
		Timeout:    desc.Timeout,
	})
}

// Catalog registers providers and caches their tools keyed by tool.ID.
type Catalog struct {
	factory  ProviderFactory
	metrics  observability.Metrics
	fallback string

	mu  sync.RWMutex
	set *providerSet
}

// providerSet is one generation of providers with the tools discovered
// from them. Reload builds a new set and swaps it in whole.
type providerSet struct {
	providers *registry.BaseRegistry[registry.Name, Provider]
	tools     *registry.BaseRegistry[tool.ID, tool.Descriptor]

	// calls counts dispatches still running against this set.
	calls sync.WaitGroup
}

func newProviderSet() *providerSet {
	return &providerSet{
		providers: registry.NewBaseRegistry[registry.Name, Provider](),
		tools:     registry.NewBaseRegistry[tool.ID, tool.Descriptor](),
	}
}

func (s *providerSet) names() []string {
	keys := s.providers.Keys()
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = string(k)
	}
	slices.Sort(names)
	return names
}

func (s *providerSet) close() error {
	var errs []error
	for _, p := range s.providers.List() {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

type Option func(*Catalog)

// WithProviderFactory replaces the MCP factory.
func WithProviderFactory(f ProviderFactory) Option {
	return func(c *Catalog) {
		c.factory = f
	}
}

func WithMetrics(m observability.Metrics) Option {
	return func(c *Catalog) {
		c.metrics = m
	}
}

// WithFallbackProvider makes the static fallback tools dispatchable through
// the named provider when discovery finds nothing.
func WithFallbackProvider(name string) Option {
	return func(c *Catalog) {
		c.fallback = name
	}
}

func New(opts ...Option) *Catalog {
	c := &Catalog{
		factory: MCPFactory,
		metrics: observability.NoopMetrics{},
		set:     newProviderSet(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Catalog) current() *providerSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.set
}

// RegisterProvider validates desc and adds the provider. Nothing is
// contacted until discovery.
func (c *Catalog) RegisterProvider(ctx context.Context, name string, desc config.ProviderDescriptor) error {
	return c.register(c.current(), name, desc)
}

func (c *Catalog) register(set *providerSet, name string, desc config.ProviderDescriptor) error {
	if name == "" {
		return c.rejectProvider(name, "has an empty name", nil)
	}
	if _, exists := set.providers.Get(registry.Name(name)); exists {
		return c.rejectProvider(name, "is already registered", nil)
	}
	if err := desc.Validate(); err != nil {
		return c.rejectProvider(name, "has an invalid descriptor", err)
	}

	p, err := c.factory(name, desc)
	if err != nil {
		return c.rejectProvider(name, "could not be created", err)
	}
	if err := set.providers.Register(registry.Name(name), p); err != nil {
		_ = p.Close()
		return c.rejectProvider(name, "could not be registered", err)
	}

	slog.Debug("Registered tool provider", "provider", name, "url", desc.URL != "", "command", desc.Command)
	return nil
}

// RegisterAll registers every registry entry in name order and returns how
// many were accepted.
func (c *Catalog) RegisterAll(ctx context.Context, reg *config.ProviderRegistry) int {
	return c.registerAll(c.current(), reg)
}

func (c *Catalog) registerAll(set *providerSet, reg *config.ProviderRegistry) int {
	if reg == nil {
		return 0
	}
	accepted := 0
	for _, name := range reg.Names() {
		if err := c.register(set, name, reg.Servers[name]); err == nil {
			accepted++
		}
	}
	return accepted
}

// Reload registers reg into a fresh provider set, discovers its tools and
// only then swaps it in, so Call never observes an empty catalog. The
// previous providers are closed once the calls already dispatched to them
// return. It reports how many providers were accepted and the discovery
// outcome of the new set.
func (c *Catalog) Reload(ctx context.Context, reg *config.ProviderRegistry) (int, error) {
	next := newProviderSet()
	n := c.registerAll(next, reg)
	_, err := c.discover(ctx, next)

	c.mu.Lock()
	prev := c.set
	c.set = next
	c.mu.Unlock()

	prev.calls.Wait()
	if cerr := prev.close(); cerr != nil {
		slog.Warn("Failed to close replaced tool providers", "error", cerr)
	}
	slog.Info("Tool catalog swapped", "providers", n, "tools", next.tools.Count())
	return n, err
}

func (c *Catalog) rejectProvider(name, msg string, err error) error {
	initErr := &tool.ProviderInitError{Provider: name, Message: msg, Err: err}
	slog.Warn("Skipping tool provider", "provider", name, "error", initErr)
	return initErr
}

// DiscoverAll lists the tools of every provider and replaces the cache in
// one step. A tool name already taken by an earlier provider (in name
// order) is dropped. When every provider fails, the returned error is a
// *tool.DiscoveryError.
func (c *Catalog) DiscoverAll(ctx context.Context) ([]tool.Descriptor, error) {
	return c.discover(ctx, c.current())
}

func (c *Catalog) discover(ctx context.Context, set *providerSet) ([]tool.Descriptor, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanToolDiscovery)

	names := set.names()
	var (
		discovered []tool.Descriptor
		failed     []string
		errs       []error
		owners     = make(map[string]string)
	)

	for _, name := range names {
		p, _ := set.providers.Get(registry.Name(name))
		descs, err := p.ListTools(ctx)
		if err != nil {
			slog.Warn("Tool discovery failed", "provider", name, "error", err)
			failed = append(failed, name)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}

		for _, d := range descs {
			d.Provider = name
			if owner, taken := owners[d.Name]; taken {
				slog.Warn("Duplicate tool name, keeping first provider",
					"tool", d.Name, "kept", owner, "dropped", name)
				continue
			}
			owners[d.Name] = name
			discovered = append(discovered, d)
		}
		slog.Info("Discovered tools", "provider", name, "tools", len(descs))
	}

	cached := discovered
	if len(discovered) == 0 && c.fallback != "" {
		if _, ok := set.providers.Get(registry.Name(c.fallback)); ok {
			cached = tool.FallbackDescriptors(c.fallback)
			slog.Info("Using fallback tools", "provider", c.fallback, "tools", len(cached))
		}
	}

	keys := make([]tool.ID, len(cached))
	for i, d := range cached {
		keys[i] = d.ID()
	}
	for _, bad := range set.tools.Replace(keys, cached) {
		slog.Warn("Dropped tool with invalid identity", "tool", bad.String())
	}

	span.SetAttributes(attribute.Int(observability.AttrToolCount, len(discovered)))

	var err error
	if len(names) > 0 && len(failed) == len(names) {
		err = &tool.DiscoveryError{Failed: failed, Err: errors.Join(errs...)}
	}
	observability.EndSpan(span, err)
	return discovered, err
}

// Call dispatches inv to the provider owning inv.Name. Provider failures
// are returned as an error Result with a nil error; only an unknown name is
// an error. A Reload racing the call leaves it on the set it started with.
func (c *Catalog) Call(ctx context.Context, inv tool.Invocation) (tool.Result, error) {
	c.mu.RLock()
	set := c.set
	set.calls.Add(1)
	c.mu.RUnlock()
	defer set.calls.Done()

	id, _, ok := set.tools.Find(func(id tool.ID) bool { return id.Name == inv.Name })
	if !ok {
		return tool.Result{}, &tool.NotFoundError{Name: inv.Name}
	}
	p, ok := set.providers.Get(registry.Name(id.Provider))
	if !ok {
		return tool.Result{}, &tool.NotFoundError{Name: inv.Name}
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanToolExecution,
		attribute.String(observability.AttrToolName, id.Name),
		attribute.String(observability.AttrToolProvider, id.Provider),
	)

	start := time.Now()
	payload, err := p.CallTool(ctx, id.Name, inv.Arguments)
	duration := time.Since(start)

	c.metrics.RecordToolExecution(ctx, id.Provider, id.Name, duration, err)
	observability.EndSpan(span, err)

	if err != nil {
		invErr := &tool.InvocationError{Tool: id.String(), Err: err}
		slog.Warn("Tool call failed", "call_id", inv.CallID, "duration", duration, "error", invErr)
		return tool.Failure(inv.Name, err), nil
	}

	slog.Debug("Tool call completed", "tool", id.String(), "call_id", inv.CallID, "duration", duration)
	return tool.Result{Name: inv.Name, Payload: payload}, nil
}

// Tools returns the cached descriptors in discovery order.
func (c *Catalog) Tools() []tool.Descriptor {
	return c.current().tools.List()
}

// Providers returns the registered provider names in name order.
func (c *Catalog) Providers() []string {
	return c.current().names()
}

// Close closes every provider and clears the cache.
func (c *Catalog) Close() error {
	set := c.current()
	err := set.close()
	set.tools.Clear()
	return err
}
