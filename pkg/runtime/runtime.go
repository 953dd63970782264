// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package runtime assembles the answering pipeline from a Config: metrics
// and tracing, the chat model, the embedder, the vector store, the tool
// catalog and the Chain on top of them.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/kadirpekel/sitewise/pkg/chain"
	"github.com/kadirpekel/sitewise/pkg/config"
	"github.com/kadirpekel/sitewise/pkg/embedder"
	"github.com/kadirpekel/sitewise/pkg/model"
	"github.com/kadirpekel/sitewise/pkg/observability"
	"github.com/kadirpekel/sitewise/pkg/rag"
	"github.com/kadirpekel/sitewise/pkg/tool/catalog"
	"github.com/kadirpekel/sitewise/pkg/utils"
	"github.com/kadirpekel/sitewise/pkg/vector"
)

// ServiceName is reported to the tracer and used as the metrics namespace.
const ServiceName = "sitewise"

// ErrToolsDisabled is returned by ReloadTools when the tool subsystem is off.
var ErrToolsDisabled = errors.New("tools are disabled")

type Option func(*options)

type options struct {
	llm             model.LLM
	embedder        embedder.Embedder
	vectors         vector.Provider
	providerFactory catalog.ProviderFactory
	counter         *utils.TokenCounter
	skipCounter     bool
}

// WithLLM uses llm instead of building one from cfg.LLM.
func WithLLM(llm model.LLM) Option {
	return func(o *options) { o.llm = llm }
}

// WithEmbedder uses emb instead of building one from cfg.Embedder.
func WithEmbedder(emb embedder.Embedder) Option {
	return func(o *options) { o.embedder = emb }
}

// WithVectorProvider uses p instead of building one from cfg.Vector.
func WithVectorProvider(p vector.Provider) Option {
	return func(o *options) { o.vectors = p }
}

// WithProviderFactory replaces the MCP factory used by the tool catalog.
func WithProviderFactory(f catalog.ProviderFactory) Option {
	return func(o *options) { o.providerFactory = f }
}

// WithTokenCounter sets the counter used to truncate tool payloads. A nil
// counter falls back to the rune estimate.
func WithTokenCounter(tc *utils.TokenCounter) Option {
	return func(o *options) {
		o.counter = tc
		o.skipCounter = true
	}
}

// Runtime owns every long-lived component of a running service.
type Runtime struct {
	cfg            *config.Config
	chain          *chain.Chain
	store          *rag.Store
	catalog        *catalog.Catalog
	llm            model.LLM
	metrics        observability.Metrics
	metricsHandler http.Handler
	shutdownTracer observability.ShutdownFunc

	reloadMu  sync.Mutex
	closeOnce sync.Once
}

// New builds a Runtime. cfg is defaulted and validated first.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	rt := &Runtime{cfg: cfg}

	metrics, handler, err := observability.InitMetrics(ctx, observability.MetricsConfig{
		Enabled:   cfg.Observability.Metrics.Enabled,
		Namespace: cfg.Observability.Metrics.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	observability.SetGlobalMetrics(metrics)
	rt.metrics, rt.metricsHandler = metrics, handler

	shutdown, err := observability.InitGlobalTracer(ctx, observability.TracerConfig{
		Enabled:     cfg.Observability.Tracing.Enabled,
		Exporter:    cfg.Observability.Tracing.Exporter,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		ServiceName: ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	rt.shutdownTracer = shutdown

	llm := o.llm
	if llm == nil {
		if llm, err = DefaultLLMFactory(cfg.LLM, metrics); err != nil {
			rt.Close(ctx)
			return nil, fmt.Errorf("failed to create LLM: %w", err)
		}
	}
	rt.llm = llm

	emb := o.embedder
	if emb == nil {
		if emb, err = DefaultEmbedderFactory(cfg.Embedder); err != nil {
			rt.Close(ctx)
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
	}

	vectors := o.vectors
	if vectors == nil {
		if vectors, err = vector.New(cfg.Vector); err != nil {
			rt.Close(ctx)
			return nil, fmt.Errorf("failed to create vector store: %w", err)
		}
	}
	rt.store = rag.NewStore(emb, vectors, rag.StoreConfig{
		Collection: cfg.Vector.Collection,
		Metrics:    metrics,
	})

	counter := o.counter
	if !o.skipCounter {
		if counter, err = utils.NewTokenCounter(cfg.LLM.Model); err != nil {
			slog.Warn("Token counter unavailable, using estimates", "model", cfg.LLM.Model, "error", err)
			counter = nil
		}
	}

	chainOpts := []chain.ChainOption{}
	if config.BoolValue(cfg.Tools.Enabled, true) {
		catOpts := []catalog.Option{
			catalog.WithMetrics(metrics),
			catalog.WithFallbackProvider(cfg.Tools.FallbackProvider),
		}
		if o.providerFactory != nil {
			catOpts = append(catOpts, catalog.WithProviderFactory(o.providerFactory))
		}
		rt.catalog = catalog.New(catOpts...)
		chainOpts = append(chainOpts, chain.WithToolLoader(rt.loadTools))
	}

	rt.chain = chain.New(chain.Options{
		TopK:             cfg.Retrieval.TopK,
		MaxHistory:       cfg.Retrieval.MaxHistory,
		Temperature:      cfg.LLM.Temperature,
		MaxTokens:        cfg.LLM.MaxTokens,
		MaxPayloadTokens: cfg.Tools.MaxPayloadTokens,
		Counter:          counter,
		Metrics:          metrics,
	}, rt.store, llm, chainOpts...)

	slog.Info("Runtime ready",
		"model", llm.Name(),
		"embedder", emb.Model(),
		"vector_store", vectors.Name(),
		"tools", rt.catalog != nil)
	return rt, nil
}

// loadTools reads the provider registry and builds the router. A registry
// error disables tools for the lifetime of the chain.
func (r *Runtime) loadTools(ctx context.Context) (*chain.Router, error) {
	reg, err := config.LoadProviderRegistry(r.cfg.Tools.RegistryPath)
	if err != nil {
		return nil, err
	}
	n := r.catalog.RegisterAll(ctx, reg)
	slog.Info("Tool providers registered", "registered", n, "configured", len(reg.Servers))

	return chain.NewRouter(r.catalog, r.llm, chain.RouterConfig{
		Temperature:         r.cfg.LLM.RouterTemperature,
		EnhanceDescriptions: config.BoolValue(r.cfg.Tools.EnhanceDescriptions, true),
	}), nil
}

// ReloadTools re-reads the provider registry, connects the new providers and
// swaps them in with their tools. Calls already running finish on the old
// providers. On a registry error the running providers are kept.
func (r *Runtime) ReloadTools(ctx context.Context) error {
	if r.catalog == nil {
		return ErrToolsDisabled
	}

	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	r.chain.Warmup(ctx)
	router := r.chain.Router()
	if router == nil {
		return fmt.Errorf("tool subsystem failed to load: %w", ErrToolsDisabled)
	}

	reg, err := config.LoadProviderRegistry(r.cfg.Tools.RegistryPath)
	if err != nil {
		return err
	}
	n, err := r.catalog.Reload(ctx, reg)
	if err != nil {
		slog.Warn("Tool discovery after reload failed", "error", err)
	}
	tools := router.Refresh(ctx)
	slog.Info("Tools reloaded", "providers", n, "tools", tools)
	return nil
}

// Ingest loads paths, splits them into chunks and indexes the chunks. Zero
// sizes take the ingest config values.
func (r *Runtime) Ingest(ctx context.Context, paths []string, chunkSize, overlap int) (rag.IndexStats, error) {
	if chunkSize <= 0 {
		chunkSize = r.cfg.Ingest.ChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = r.cfg.Ingest.ChunkOverlap
	}

	docs, err := rag.NewLoader(r.cfg.Ingest.Extensions...).Load(ctx, paths...)
	if err != nil {
		return rag.IndexStats{}, err
	}
	chunks := rag.NewSplitter(chunkSize, overlap).SplitDocuments(docs)
	slog.Info("Documents loaded", "pages", len(docs), "chunks", len(chunks))

	return r.store.Index(ctx, chunks)
}

func (r *Runtime) Chain() *chain.Chain {
	return r.chain
}

func (r *Runtime) Store() *rag.Store {
	return r.store
}

func (r *Runtime) Config() *config.Config {
	return r.cfg
}

func (r *Runtime) Metrics() observability.Metrics {
	return r.metrics
}

// MetricsHandler returns the Prometheus scrape handler, or nil when metrics
// are disabled.
func (r *Runtime) MetricsHandler() http.Handler {
	return r.metricsHandler
}

// ToolCount returns the number of tools currently offered to the model.
func (r *Runtime) ToolCount() int {
	if r.chain == nil {
		return 0
	}
	if router := r.chain.Router(); router != nil {
		return len(router.Tools())
	}
	return 0
}

// Close releases every component. It is safe to call more than once.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	r.closeOnce.Do(func() {
		if r.catalog != nil {
			if err := r.catalog.Close(); err != nil {
				errs = append(errs, fmt.Errorf("tool catalog cleanup: %w", err))
			}
		}
		if r.store != nil {
			if err := r.store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("vector store cleanup: %w", err))
			}
		}
		if r.llm != nil {
			if err := r.llm.Close(); err != nil {
				errs = append(errs, fmt.Errorf("llm cleanup: %w", err))
			}
		}
		if pm, ok := r.metrics.(*observability.PrometheusMetrics); ok {
			if err := pm.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
			}
		}
		if r.shutdownTracer != nil {
			if err := r.shutdownTracer(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
			}
		}
	})
	for _, err := range errs {
		slog.Warn("Runtime cleanup error", "error", err)
	}
	return errors.Join(errs...)
}
