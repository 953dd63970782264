// Package testutils provides fakes shared by sitewise package tests.
package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/kadirpekel/sitewise/pkg/tool"
)

// CallRecord captures one CallTool invocation.
type CallRecord struct {
	Name string
	Args map[string]any
}

// FakeProvider is a scripted tool provider.
type FakeProvider struct {
	ProviderName string
	Descriptors  []tool.Descriptor
	ListErr      error

	// ListDelay is slept before every ListTools call.
	ListDelay time.Duration

	// Results maps tool name to payload; Errors maps tool name to failure.
	Results map[string]any
	Errors  map[string]error

	// BeforeCall runs at the start of every CallTool, outside the lock.
	BeforeCall func(name string)

	mu        sync.Mutex
	listCalls int
	calls     []CallRecord
	closed    bool
}

// NewFakeProvider returns a provider advertising the named tools.
func NewFakeProvider(name string, tools ...string) *FakeProvider {
	p := &FakeProvider{
		ProviderName: name,
		Results:      map[string]any{},
		Errors:       map[string]error{},
	}
	for _, t := range tools {
		p.Descriptors = append(p.Descriptors, tool.Descriptor{
			Name:        t,
			Description: t + " tool",
			InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		})
	}
	return p
}

func (p *FakeProvider) Name() string { return p.ProviderName }

func (p *FakeProvider) ListTools(ctx context.Context) ([]tool.Descriptor, error) {
	if p.ListDelay > 0 {
		time.Sleep(p.ListDelay)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listCalls++
	if p.ListErr != nil {
		return nil, p.ListErr
	}
	out := make([]tool.Descriptor, len(p.Descriptors))
	copy(out, p.Descriptors)
	return out, nil
}

func (p *FakeProvider) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	if p.BeforeCall != nil {
		p.BeforeCall(name)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, CallRecord{Name: name, Args: args})
	if err, ok := p.Errors[name]; ok {
		return nil, err
	}
	if res, ok := p.Results[name]; ok {
		return res, nil
	}
	return map[string]any{"result": name + " ok"}, nil
}

func (p *FakeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *FakeProvider) ListCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listCalls
}

func (p *FakeProvider) Calls() []CallRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CallRecord, len(p.calls))
	copy(out, p.calls)
	return out
}

func (p *FakeProvider) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
