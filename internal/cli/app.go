package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/ppiankov/verimem/internal/embed"
	"github.com/ppiankov/verimem/internal/memory"
	"github.com/ppiankov/verimem/internal/model"
	"github.com/ppiankov/verimem/internal/normalize"
	"github.com/ppiankov/verimem/internal/pipeline"
	"github.com/ppiankov/verimem/internal/policy"
	"github.com/ppiankov/verimem/internal/reason"
	"github.com/ppiankov/verimem/internal/retrieve"
	"github.com/ppiankov/verimem/internal/store"
	"github.com/ppiankov/verimem/internal/websearch"
	"github.com/ppiankov/verimem/internal/worker"
)

// app bundles the constructed collaborators for the CLI commands
type app struct {
	cfg      *model.Config
	logger   *log.Logger
	store    store.ClaimStore
	engine   *memory.Engine
	pipeline *pipeline.Pipeline
}

// loadConfig layers the config file and environment over the defaults
func loadConfig() *model.Config {
	cfg := model.DefaultConfig()

	// Config file values (viper keys follow the yaml structure)
	if v := viper.GetString("qdrant.host"); v != "" {
		cfg.Qdrant.Host = v
	}
	if v := viper.GetInt("qdrant.port"); v != 0 {
		cfg.Qdrant.Port = v
	}
	if v := viper.GetString("qdrant.collection"); v != "" {
		cfg.Qdrant.Collection = v
	}
	if viper.IsSet("qdrant.use_tls") {
		cfg.Qdrant.UseTLS = viper.GetBool("qdrant.use_tls")
	}
	if v := viper.GetString("embedding.model"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := viper.GetString("llm.model"); v != "" {
		cfg.LLM.Model = v
	}
	if v := viper.GetInt("retrieval.top_k"); v != 0 {
		cfg.Retrieval.TopK = v
	}
	if v := viper.GetFloat64("retrieval.cache_hit_threshold"); v != 0 {
		cfg.Retrieval.CacheHitThreshold = v
	}
	if v := viper.GetFloat64("retrieval.cache_max_age_days"); v != 0 {
		cfg.Retrieval.CacheMaxAgeDays = v
	}
	if v := viper.GetFloat64("memory.dedup_threshold"); v != 0 {
		cfg.Memory.DedupThreshold = v
	}
	if v := viper.GetInt("concurrency.workers"); v != 0 {
		cfg.Concurrency.Workers = v
	}

	// API keys come from the environment, never from the config file
	cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.Search.APIKey = os.Getenv("TAVILY_API_KEY")
	cfg.Qdrant.APIKey = os.Getenv("QDRANT_API_KEY")

	cfg.Output.Verbose = verbose
	cfg.Output.JSON = outJSON
	return cfg
}

// newApp constructs the full collaborator graph. Web search is optional:
// without a TAVILY_API_KEY verification runs on memory evidence alone.
func newApp(ctx context.Context) (*app, error) {
	cfg := loadConfig()
	logger := newLogger()

	if cfg.Embedding.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	embedder, err := embed.NewOpenAIEmbedder(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	claims, err := store.NewQdrant(cfg.Qdrant, cfg.Embedding.DenseDim, cfg.Embedding.VisualDim, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to claim store: %w", err)
	}
	if err := claims.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	retriever := retrieve.NewRetriever(embedder, claims, cfg.Retrieval, logger)
	engine := memory.NewEngine(claims, embedder, retriever, cfg.Memory, logger)

	normalizer, err := normalize.NewNormalizer(cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("create normalizer: %w", err)
	}
	reasoner, err := reason.NewReasoner(cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("create reasoner: %w", err)
	}

	var searcher pipeline.Searcher
	if cfg.Search.APIKey != "" {
		tavily, err := websearch.NewTavilyClient(cfg.Search, logger)
		if err != nil {
			return nil, fmt.Errorf("create web search client: %w", err)
		}
		searcher = tavily
	} else {
		logger.Warn("TAVILY_API_KEY not set, web search disabled")
	}

	p := pipeline.New(normalizer, retriever, searcher, reasoner, engine,
		policy.NewCachePolicy(cfg.Retrieval), websearch.FormatForLLM, cfg.Pipeline, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    claims,
		engine:   engine,
		pipeline: p,
	}, nil
}

// newBatchProcessor wires the worker pool around the pipeline
func (a *app) newBatchProcessor() *worker.BatchProcessor {
	return worker.NewBatchProcessor(a.pipeline, a.cfg.Concurrency, a.logger)
}
