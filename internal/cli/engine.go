package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/agentward/agentward/internal/auditlog"
	"github.com/agentward/agentward/internal/config"
	"github.com/agentward/agentward/internal/llm"
	"github.com/agentward/agentward/internal/memguard"
	"github.com/agentward/agentward/internal/metrics"
	"github.com/agentward/agentward/internal/rulecache"
	"github.com/agentward/agentward/internal/rulestore"
	"github.com/agentward/agentward/internal/shellcheck"
)

// engine bundles the wired components a command needs.
type engine struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Collector

	store   rulestore.Store
	mutable rulestore.MutableStore // nil unless the store supports writes
	cache   *rulecache.Cache
	checker *shellcheck.Checker
	guard   *memguard.Guard
	audit   auditlog.Recorder

	closers []func() error
}

func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.logger.Warn("close failed", "error", err)
		}
	}
}

func buildEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	e := &engine{
		cfg:     cfg,
		logger:  newLogger(cfg),
		metrics: metrics.New(),
	}

	switch cfg.Rules.Source {
	case "builtin":
		e.store = rulestore.BuiltinStore{}
	case "file":
		fs, err := rulestore.OpenFile(cfg.Rules.Path)
		if err != nil {
			return nil, fmt.Errorf("open rules file: %w", err)
		}
		e.store = fs
	case "sqlite":
		ss, err := rulestore.OpenSQLite(cfg.Rules.Path)
		if err != nil {
			return nil, fmt.Errorf("open rules db: %w", err)
		}
		e.store = ss
		e.mutable = ss
		e.closers = append(e.closers, ss.Close)
	default:
		return nil, fmt.Errorf("unknown rules source %q", cfg.Rules.Source)
	}

	ttl, err := cfg.CacheTTL()
	if err != nil {
		return nil, err
	}
	e.cache = rulecache.New(e.store, e.logger,
		rulecache.WithTTL(ttl), rulecache.WithMetrics(e.metrics))

	e.checker = shellcheck.New(e.cache, e.logger, e.metrics)

	switch cfg.Audit.Sink {
	case "sqlite":
		rec, err := auditlog.OpenSQLite(cfg.Audit.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open audit db: %w", err)
		}
		e.audit = rec
		e.closers = append(e.closers, rec.Close)
	case "otlp":
		batchTimeout, err := cfg.Audit.OTLP.ParseBatchTimeout()
		if err != nil {
			return nil, fmt.Errorf("audit.otlp.batch_timeout: %w", err)
		}
		rec, err := auditlog.OpenOTLP(ctx, auditlog.OTLPConfig{
			Endpoint:     cfg.Audit.OTLP.Endpoint,
			Insecure:     cfg.Audit.OTLP.Insecure,
			Headers:      cfg.Audit.OTLP.Headers,
			BatchTimeout: batchTimeout,
			ServiceName:  cfg.Audit.OTLP.ServiceName,
		})
		if err != nil {
			return nil, fmt.Errorf("open otlp audit sink: %w", err)
		}
		e.audit = rec
		e.closers = append(e.closers, func() error { return rec.Shutdown(context.Background()) })
	default:
		e.audit = auditlog.NopRecorder{}
	}

	var classifier llm.Classifier
	if cfg.LLM.Endpoint != "" {
		classifier = llm.NewHTTPClassifier(cfg.LLM.Endpoint, cfg.LLM.APIKey)
	}
	e.guard = memguard.New(classifier, e.audit, e.logger, e.metrics)

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", e.metrics.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				e.logger.Warn("metrics listener failed", "addr", cfg.Metrics.Addr, "error", err)
			}
		}()
		e.closers = append(e.closers, func() error { return srv.Shutdown(context.Background()) })
	}

	return e, nil
}

// memGuardConfig maps the file config to per-call analysis options.
func (e *engine) memGuardConfig() (memguard.Config, error) {
	timeout, err := e.cfg.MemoryTimeout()
	if err != nil {
		return memguard.Config{}, err
	}
	return memguard.Config{
		DetectionMode:       e.cfg.Memory.DetectionMode,
		AggressivenessLevel: e.cfg.Memory.AggressivenessLevel,
		LLMProvider:         e.cfg.Memory.LLMProvider,
		LLMModel:            e.cfg.Memory.LLMModel,
		LLMMaxTokens:        e.cfg.Memory.LLMMaxTokens,
		LLMTemperature:      e.cfg.Memory.LLMTemperature,
		Timeout:             timeout,
	}, nil
}
