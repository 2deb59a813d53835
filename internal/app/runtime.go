// Package app wires the runtime together: store, lexicon, arbiter,
// resolvers, routing engine, and the serving surfaces.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dashwise/router-runtime/internal/arbiter"
	"github.com/dashwise/router-runtime/internal/config"
	"github.com/dashwise/router-runtime/internal/dispatch"
	"github.com/dashwise/router-runtime/internal/engine"
	"github.com/dashwise/router-runtime/internal/gateway"
	"github.com/dashwise/router-runtime/internal/httpapi"
	"github.com/dashwise/router-runtime/internal/lexicon"
	"github.com/dashwise/router-runtime/internal/resolvers"
	"github.com/dashwise/router-runtime/internal/store"
	"github.com/dashwise/router-runtime/internal/sweeper"
	"github.com/dashwise/router-runtime/internal/telemetry"
)

type Runtime struct {
	cfg            config.Config
	logger         *slog.Logger
	store          *store.Store
	engine         *engine.Engine
	httpServer     *http.Server
	lexiconWatcher *lexicon.Watcher
	sweeper        *sweeper.Service
}

func New(cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	sqlStore, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := sqlStore.AutoMigrate(context.Background()); err != nil {
		sqlStore.Close()
		return nil, err
	}
	if err := sqlStore.SeedNounRoutes(context.Background()); err != nil {
		sqlStore.Close()
		return nil, err
	}

	lexiconSource, err := lexicon.NewSource(cfg.LexiconPath, logger)
	if err != nil {
		sqlStore.Close()
		return nil, err
	}
	lexiconWatcher, err := lexicon.NewWatcher(lexiconSource, logger)
	if err != nil {
		sqlStore.Close()
		return nil, err
	}

	var arbiterClient arbiter.Client
	if cfg.LLMFallbackEnabled && cfg.LLMAPIKey != "" {
		arbiterClient = arbiter.NewHTTPClient(arbiter.Config{
			APIKey:  cfg.LLMAPIKey,
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.LLMModel,
			Timeout: time.Duration(cfg.LLMTimeoutSec) * time.Second,
		}, logger.With("component", "llm-arbiter"))
	}

	documents, err := resolvers.LoadDocuments(cfg.DocsPath)
	if err != nil {
		sqlStore.Close()
		return nil, err
	}
	var corpus resolvers.Corpus
	if len(documents) > 0 {
		corpus = resolvers.NewStaticCorpus(documents...)
	}

	dispatcher := dispatch.New(dispatch.Dependencies{
		Arbiter:     arbiterClient,
		Telemetry:   telemetry.NewSink(logger, sqlStore),
		Audit:       sqlStore,
		KnownNoun:   resolvers.NewKnownNoun(sqlStore, logger),
		CrossCorpus: resolvers.NewCrossCorpus(corpus, logger),
		Doc:         resolvers.NewDocRetrieval(corpus, logger),
		Params: dispatch.Params{
			AutoExecuteConfidence: cfg.AutoExecuteConfidence,
			MinSelectConfidence:   cfg.MinSelectConfidence,
			SafeReasons:           cfg.SafeReasons(),
			SnapshotMaxAgeTurns:   cfg.SnapshotMaxAgeTurns,
		},
		Logger: logger.With("component", "dispatch"),
	})

	routingEngine := engine.New(engine.Dependencies{
		Dispatcher: dispatcher,
		Lexicon:    lexiconSource,
		Gates: dispatch.Gates{
			LLMFallback:          cfg.LLMFallbackEnabled,
			AutoExecute:          cfg.AutoExecuteEnabled,
			ContextRetry:         cfg.ContextRetryEnabled,
			SemanticLane:         cfg.SemanticLaneEnabled,
			SelectionArbitration: cfg.SelectionArbitrationEnabled,
		},
		Logger: logger,
	})

	sweepService, err := sweeper.New(
		routingEngine,
		cfg.SweepCronExpr,
		time.Duration(cfg.SessionTTLSeconds)*time.Second,
		logger,
	)
	if err != nil {
		sqlStore.Close()
		return nil, err
	}

	handler := httpapi.NewRouter(httpapi.Dependencies{
		Config:  cfg,
		Store:   sqlStore,
		Engine:  routingEngine,
		Gateway: gateway.New(routingEngine, logger),
		Logger:  logger.With("component", "httpapi"),
	})

	return &Runtime{
		cfg:    cfg,
		logger: logger,
		store:  sqlStore,
		engine: routingEngine,
		httpServer: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		lexiconWatcher: lexiconWatcher,
		sweeper:        sweepService,
	}, nil
}

// Engine exposes the routing engine, for transports constructed outside the
// runtime such as the MCP server.
func (r *Runtime) Engine() *engine.Engine {
	return r.engine
}

func (r *Runtime) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}
