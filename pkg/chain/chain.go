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

package chain

import (
	"context"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kadirpekel/sitewise/pkg/model"
	"github.com/kadirpekel/sitewise/pkg/observability"
	"github.com/kadirpekel/sitewise/pkg/rag"
	"github.com/kadirpekel/sitewise/pkg/tool"
	"github.com/kadirpekel/sitewise/pkg/utils"
)

// DefaultTopK is the number of documents retrieved when a request does not
// say.
const DefaultTopK = 3

// Options configures a Chain. Zero values take the package defaults.
type Options struct {
	TopK       int
	MaxHistory int

	// Temperature and MaxTokens apply to answer generation.
	Temperature float64
	MaxTokens   int

	// MaxPayloadTokens bounds each tool payload in the answer prompt.
	MaxPayloadTokens int
	Counter          *utils.TokenCounter

	Metrics    observability.Metrics
	Classifier *Classifier
}

// ToolLoader builds the tool router on first use.
type ToolLoader func(ctx context.Context) (*Router, error)

// ChainOption configures optional collaborators of a Chain.
type ChainOption func(*Chain)

// WithToolRouter enables tools with an already built router.
func WithToolRouter(r *Router) ChainOption {
	return func(c *Chain) {
		c.router.Store(r)
	}
}

// WithToolLoader enables tools with a router built lazily on first use. A
// loader error disables tools for the lifetime of the Chain.
func WithToolLoader(fn ToolLoader) ChainOption {
	return func(c *Chain) {
		c.loader = fn
	}
}

// Chain answers questions from retrieved documents, tool results, or the
// model's own knowledge. It is safe for concurrent use.
type Chain struct {
	cfg         Options
	retriever   rag.Retriever
	synthesizer *Synthesizer
	loader      ToolLoader
	metrics     observability.Metrics
	classifier  *Classifier

	once   sync.Once
	router atomic.Pointer[Router]
}

// New creates a Chain. Without WithToolRouter or WithToolLoader it never
// calls tools.
func New(cfg Options, retriever rag.Retriever, llm model.LLM, opts ...ChainOption) *Chain {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = DefaultMaxHistory
	}
	if cfg.MaxPayloadTokens <= 0 {
		cfg.MaxPayloadTokens = DefaultMaxPayloadTokens
	}

	c := &Chain{
		cfg:         cfg,
		retriever:   retriever,
		synthesizer: NewSynthesizer(llm, cfg.Temperature, cfg.MaxTokens),
		metrics:     cfg.Metrics,
		classifier:  cfg.Classifier,
	}
	if c.metrics == nil {
		c.metrics = observability.NoopMetrics{}
	}
	if c.classifier == nil {
		c.classifier = defaultClassifier
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Warmup initializes the tool subsystem now instead of on the first
// request. It returns the number of tools offered to the model, 0 when
// tools are disabled.
func (c *Chain) Warmup(ctx context.Context) int {
	c.ensureReady(ctx)
	if r := c.router.Load(); r != nil {
		return len(r.Tools())
	}
	return 0
}

// Router returns the tool router, or nil while tools are disabled or not
// yet loaded.
func (c *Chain) Router() *Router {
	return c.router.Load()
}

// Close releases the tool catalog.
func (c *Chain) Close() error {
	if r := c.router.Load(); r != nil {
		return r.Close()
	}
	return nil
}

func (c *Chain) ensureReady(ctx context.Context) {
	c.once.Do(func() {
		// Initialization outlives the request that triggers it.
		ctx := context.WithoutCancel(ctx)

		if c.router.Load() == nil && c.loader != nil {
			r, err := c.loader(ctx)
			if err != nil {
				slog.Warn("Tools disabled", "error", err)
				return
			}
			c.router.Store(r)
		}
		if r := c.router.Load(); r != nil {
			n := r.Initialize(ctx)
			slog.Info("Tool subsystem ready", "tools", n)
		}
	})
}

// plan is the decision half of a request, shared by Run and StreamRun.
type plan struct {
	req      Request
	docs     []rag.Document
	sel      Selection
	strategy Strategy
}

func (c *Chain) decide(ctx context.Context, req Request) plan {
	c.ensureReady(ctx)

	topK := req.TopK
	if topK <= 0 {
		topK = c.cfg.TopK
	}

	query := ExpandQuery(req.Query, req.History, c.cfg.MaxHistory)
	docs, err := c.retriever.Search(ctx, query, topK)
	if err != nil {
		slog.Warn("Retrieval failed, continuing without documents", "error", err)
		docs = nil
	}
	if docs == nil {
		docs = []rag.Document{}
	}

	realtime := c.classifier.NeedsRealtime(req.Query)

	var sel Selection
	if r := c.router.Load(); r != nil {
		sel = r.SelectAndExecute(ctx, req.Query, docs, req.History)
	}
	if sel.Results == nil {
		sel.Results = map[string]tool.Result{}
	}
	if sel.ToolsUsed == nil {
		sel.ToolsUsed = []string{}
	}

	strategy := SelectStrategy(sel, docs)
	slog.Info("Answer strategy selected",
		"strategy", strategy.String(),
		"docs", len(docs),
		"tools", len(sel.ToolsUsed),
		"realtime", realtime)

	return plan{req: req, docs: docs, sel: sel, strategy: strategy}
}

func (c *Chain) messages(p plan) []model.Message {
	return BuildMessages(PromptInput{
		Strategy:         p.strategy,
		Query:            p.req.Query,
		History:          p.req.History,
		Docs:             p.docs,
		DocContext:       c.retriever.FormatForPrompt(p.docs),
		ToolResults:      p.sel.Results,
		ToolsUsed:        p.sel.ToolsUsed,
		Counter:          c.cfg.Counter,
		MaxPayloadTokens: c.cfg.MaxPayloadTokens,
	})
}

// Run answers req in one blocking call. Failures are absorbed: a model
// error yields an apology answer, never an error.
func (c *Chain) Run(ctx context.Context, req Request) Result {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, observability.SpanChainRun,
		attribute.Bool(observability.AttrChainStreaming, false))

	p := c.decide(ctx, req)
	res := Result{
		Sources:     p.docs,
		ToolResults: p.sel.Results,
		ToolsUsed:   p.sel.ToolsUsed,
		Strategy:    p.strategy,
	}

	answer, usage, runErr := c.synthesizer.Generate(ctx, c.messages(p))
	if runErr != nil {
		slog.Error("Answer generation failed", "strategy", p.strategy.String(), "error", runErr)
		answer = Apology(runErr)
	}
	res.Answer = answer
	res.Usage = usage

	span.SetAttributes(attribute.String(observability.AttrChainStrategy, p.strategy.String()))
	observability.EndSpan(span, runErr)
	c.metrics.RecordRequest(ctx, p.strategy.String(), false, time.Since(start))
	return res
}

// StreamRun answers req as an event sequence: sources, then tool_results
// and tools_used when tools ran, then answer chunks, then exactly one done
// or error event. Breaking out of the range stops the model stream.
func (c *Chain) StreamRun(ctx context.Context, req Request) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		start := time.Now()
		ctx, span := observability.StartSpan(ctx, observability.SpanChainStream,
			attribute.Bool(observability.AttrChainStreaming, true))

		p := c.decide(ctx, req)
		span.SetAttributes(attribute.String(observability.AttrChainStrategy, p.strategy.String()))

		var runErr error
		defer func() {
			observability.EndSpan(span, runErr)
			c.metrics.RecordRequest(ctx, p.strategy.String(), true, time.Since(start))
		}()

		if !yield(Event{Type: EventSources, Sources: p.docs}) {
			return
		}
		if p.sel.Used {
			if !yield(Event{Type: EventToolResults, ToolResults: p.sel.Results}) {
				return
			}
			if !yield(Event{Type: EventToolsUsed, ToolsUsed: p.sel.ToolsUsed}) {
				return
			}
		}

		for chunk, err := range c.synthesizer.Stream(ctx, c.messages(p)) {
			if err != nil {
				runErr = err
				yield(errorEvent(ctx, err))
				return
			}
			if !yield(Event{Type: EventAnswerChunk, Chunk: chunk}) {
				return
			}
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			yield(errorEvent(ctx, err))
			return
		}
		yield(Event{Type: EventDone, Strategy: p.strategy})
	}
}

func errorEvent(ctx context.Context, err error) Event {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Event{Type: EventError, Error: ctxErr.Error(), Err: ctxErr}
	}
	slog.Error("Answer stream failed", "error", err)
	return Event{Type: EventError, Error: Apology(err), Err: err}
}
