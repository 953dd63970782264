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

package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/sitewise/pkg/config"
	"github.com/kadirpekel/sitewise/pkg/testutils"
	"github.com/kadirpekel/sitewise/pkg/tool"
)

func fakeFactory(providers map[string]*testutils.FakeProvider) ProviderFactory {
	return func(name string, desc config.ProviderDescriptor) (Provider, error) {
		p, ok := providers[name]
		if !ok {
			return nil, errors.New("no fake for " + name)
		}
		return p, nil
	}
}

func urlDesc() config.ProviderDescriptor {
	return config.ProviderDescriptor{URL: "https://mcp.example.com/mcp"}
}

func TestRegisterProvider_Rejections(t *testing.T) {
	fakes := map[string]*testutils.FakeProvider{"tavily": testutils.NewFakeProvider("tavily")}
	c := New(WithProviderFactory(fakeFactory(fakes)))
	ctx := context.Background()

	require.NoError(t, c.RegisterProvider(ctx, "tavily", urlDesc()))

	tests := []struct {
		name     string
		provider string
		desc     config.ProviderDescriptor
	}{
		{name: "empty name", provider: "", desc: urlDesc()},
		{name: "duplicate", provider: "tavily", desc: urlDesc()},
		{name: "no endpoint", provider: "a", desc: config.ProviderDescriptor{}},
		{name: "both endpoints", provider: "b", desc: config.ProviderDescriptor{URL: "https://x.io", Command: "npx"}},
		{name: "unresolved placeholder", provider: "c", desc: config.ProviderDescriptor{URL: "https://x.io/?key=${MISSING_KEY}"}},
		{name: "bad scheme", provider: "d", desc: config.ProviderDescriptor{URL: "ftp://x.io"}},
		{name: "factory failure", provider: "e", desc: urlDesc()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.RegisterProvider(ctx, tt.provider, tt.desc)
			var initErr *tool.ProviderInitError
			require.ErrorAs(t, err, &initErr)
			assert.Equal(t, tt.provider, initErr.Provider)
		})
	}

	assert.Equal(t, []string{"tavily"}, c.Providers())
}

func TestRegisterAll(t *testing.T) {
	fakes := map[string]*testutils.FakeProvider{
		"alpha": testutils.NewFakeProvider("alpha"),
		"beta":  testutils.NewFakeProvider("beta"),
	}
	c := New(WithProviderFactory(fakeFactory(fakes)))

	reg := &config.ProviderRegistry{Servers: map[string]config.ProviderDescriptor{
		"beta":   urlDesc(),
		"alpha":  {Command: "npx", Args: []string{"server"}},
		"broken": {},
	}}

	assert.Equal(t, 2, c.RegisterAll(context.Background(), reg))
	assert.Equal(t, []string{"alpha", "beta"}, c.Providers())
	assert.Equal(t, 0, c.RegisterAll(context.Background(), nil))
}

func TestDiscoverAll(t *testing.T) {
	alpha := testutils.NewFakeProvider("alpha", "web_search", "web_extract")
	beta := testutils.NewFakeProvider("beta", "web_search", "geocode")
	c := New(WithProviderFactory(fakeFactory(map[string]*testutils.FakeProvider{"alpha": alpha, "beta": beta})))
	ctx := context.Background()

	require.NoError(t, c.RegisterProvider(ctx, "beta", urlDesc()))
	require.NoError(t, c.RegisterProvider(ctx, "alpha", urlDesc()))

	tools, err := c.DiscoverAll(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 3)

	// alpha wins the shared name because providers are visited in name order.
	owner := map[string]string{}
	for _, d := range tools {
		owner[d.Name] = d.Provider
	}
	assert.Equal(t, "alpha", owner["web_search"])
	assert.Equal(t, "beta", owner["geocode"])

	again, err := c.DiscoverAll(ctx)
	require.NoError(t, err)
	assert.Len(t, again, 3)
	assert.Len(t, c.Tools(), 3, "repeated discovery must not duplicate")
}

func TestDiscoverAll_PartialAndTotalFailure(t *testing.T) {
	ok := testutils.NewFakeProvider("ok", "web_search")
	bad := testutils.NewFakeProvider("bad")
	bad.ListErr = errors.New("connection refused")
	c := New(WithProviderFactory(fakeFactory(map[string]*testutils.FakeProvider{"ok": ok, "bad": bad})))
	ctx := context.Background()

	require.NoError(t, c.RegisterProvider(ctx, "ok", urlDesc()))
	require.NoError(t, c.RegisterProvider(ctx, "bad", urlDesc()))

	tools, err := c.DiscoverAll(ctx)
	require.NoError(t, err, "one failing provider must not fail discovery")
	assert.Len(t, tools, 1)

	ok.ListErr = errors.New("timeout")
	tools, err = c.DiscoverAll(ctx)
	var discErr *tool.DiscoveryError
	require.ErrorAs(t, err, &discErr)
	assert.ElementsMatch(t, []string{"bad", "ok"}, discErr.Failed)
	assert.Empty(t, tools)
	assert.Empty(t, c.Tools(), "cache is replaced even when discovery fails")
}

func TestDiscoverAll_NoProviders(t *testing.T) {
	tools, err := New().DiscoverAll(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, tools)
}

func TestDiscoverAll_FallbackProvider(t *testing.T) {
	empty := testutils.NewFakeProvider("tavily")
	c := New(
		WithProviderFactory(fakeFactory(map[string]*testutils.FakeProvider{"tavily": empty})),
		WithFallbackProvider("tavily"),
	)
	ctx := context.Background()
	require.NoError(t, c.RegisterProvider(ctx, "tavily", urlDesc()))

	tools, err := c.DiscoverAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, tools)
	assert.Len(t, c.Tools(), 2)

	res, err := c.Call(ctx, tool.Invocation{Name: "web_search", Arguments: map[string]any{"query": "q"}})
	require.NoError(t, err)
	assert.False(t, res.Failed())
	assert.Equal(t, "web_search", empty.Calls()[0].Name)
}

func TestCall(t *testing.T) {
	p := testutils.NewFakeProvider("tavily", "web_search", "web_extract")
	p.Results["web_search"] = map[string]any{"results": []any{"a", "b", "c"}}
	p.Errors["web_extract"] = errors.New("dial tcp: connection refused")

	c := New(WithProviderFactory(fakeFactory(map[string]*testutils.FakeProvider{"tavily": p})))
	ctx := context.Background()
	require.NoError(t, c.RegisterProvider(ctx, "tavily", urlDesc()))
	_, err := c.DiscoverAll(ctx)
	require.NoError(t, err)

	res, err := c.Call(ctx, tool.Invocation{Name: "web_search", Arguments: map[string]any{"query": "강남"}})
	require.NoError(t, err)
	assert.Equal(t, "web_search", res.Name)
	assert.Equal(t, map[string]any{"results": []any{"a", "b", "c"}}, res.Payload)
	assert.Equal(t, "강남", p.Calls()[0].Args["query"])

	res, err = c.Call(ctx, tool.Invocation{Name: "web_extract"})
	require.NoError(t, err, "provider failures are results, not errors")
	assert.True(t, res.Failed())
	assert.Contains(t, res.Err, "connection refused")

	_, err = c.Call(ctx, tool.Invocation{Name: "missing"})
	var nf *tool.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.Name)
}

func TestClose(t *testing.T) {
	p := testutils.NewFakeProvider("tavily", "web_search")
	c := New(WithProviderFactory(fakeFactory(map[string]*testutils.FakeProvider{"tavily": p})))
	ctx := context.Background()
	require.NoError(t, c.RegisterProvider(ctx, "tavily", urlDesc()))
	_, _ = c.DiscoverAll(ctx)

	require.NoError(t, c.Close())
	assert.True(t, p.Closed())
	assert.Empty(t, c.Tools())
}

func TestReload(t *testing.T) {
	old := testutils.NewFakeProvider("old", "web_search")
	fresh := testutils.NewFakeProvider("fresh", "geocode")
	c := New(WithProviderFactory(fakeFactory(map[string]*testutils.FakeProvider{"old": old, "fresh": fresh})))
	ctx := context.Background()

	require.NoError(t, c.RegisterProvider(ctx, "old", urlDesc()))
	_, err := c.DiscoverAll(ctx)
	require.NoError(t, err)

	n, err := c.Reload(ctx, &config.ProviderRegistry{Servers: map[string]config.ProviderDescriptor{"fresh": urlDesc()}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, old.Closed())
	assert.Equal(t, []string{"fresh"}, c.Providers())

	tools := c.Tools()
	require.Len(t, tools, 1, "tools are discovered before the swap")
	assert.Equal(t, "geocode", tools[0].Name)

	_, err = c.Call(ctx, tool.Invocation{Name: "web_search"})
	var nf *tool.NotFoundError
	assert.ErrorAs(t, err, &nf)
	res, err := c.Call(ctx, tool.Invocation{Name: "geocode"})
	require.NoError(t, err)
	assert.False(t, res.Failed())
}

func TestReload_DiscoveryFailureReported(t *testing.T) {
	bad := testutils.NewFakeProvider("bad", "web_search")
	bad.ListErr = errors.New("handshake failed")
	c := New(WithProviderFactory(fakeFactory(map[string]*testutils.FakeProvider{"bad": bad})))

	n, err := c.Reload(context.Background(), &config.ProviderRegistry{Servers: map[string]config.ProviderDescriptor{"bad": urlDesc()}})
	assert.Equal(t, 1, n)
	var discErr *tool.DiscoveryError
	assert.ErrorAs(t, err, &discErr)
	assert.Equal(t, []string{"bad"}, c.Providers())
	assert.Empty(t, c.Tools())
}

func TestReload_InFlightCallsSurvive(t *testing.T) {
	old := testutils.NewFakeProvider("old", "web_search")
	fresh := testutils.NewFakeProvider("fresh", "web_search")
	c := New(WithProviderFactory(fakeFactory(map[string]*testutils.FakeProvider{"old": old, "fresh": fresh})))
	ctx := context.Background()

	require.NoError(t, c.RegisterProvider(ctx, "old", urlDesc()))
	_, err := c.DiscoverAll(ctx)
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	old.BeforeCall = func(string) {
		once.Do(func() { close(started) })
		<-release
	}

	inflight := make(chan tool.Result, 1)
	go func() {
		res, err := c.Call(ctx, tool.Invocation{Name: "web_search"})
		assert.NoError(t, err)
		inflight <- res
	}()
	<-started

	reloaded := make(chan struct{})
	go func() {
		defer close(reloaded)
		_, err := c.Reload(ctx, &config.ProviderRegistry{Servers: map[string]config.ProviderDescriptor{"fresh": urlDesc()}})
		assert.NoError(t, err)
	}()

	require.Eventually(t, func() bool {
		p := c.Providers()
		return len(p) == 1 && p[0] == "fresh"
	}, time.Second, 5*time.Millisecond)

	res, err := c.Call(ctx, tool.Invocation{Name: "web_search"})
	require.NoError(t, err, "the new set is complete when it becomes visible")
	assert.False(t, res.Failed())
	assert.Len(t, fresh.Calls(), 1)
	assert.False(t, old.Closed(), "replaced providers stay open while a call is running")

	close(release)
	assert.False(t, (<-inflight).Failed())
	<-reloaded
	assert.True(t, old.Closed())
}
