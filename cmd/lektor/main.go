// Command lektor is the lecture transcription and annotation server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/mzajc/lektor/internal/config"
	"github.com/mzajc/lektor/internal/health"
	"github.com/mzajc/lektor/internal/lecture"
	"github.com/mzajc/lektor/internal/metadata"
	"github.com/mzajc/lektor/internal/observe"
	"github.com/mzajc/lektor/internal/server"
	"github.com/mzajc/lektor/internal/vocab"
	"github.com/mzajc/lektor/pkg/persistence"
	"github.com/mzajc/lektor/pkg/persistence/httpapi"
	"github.com/mzajc/lektor/pkg/persistence/postgres"
	"github.com/mzajc/lektor/pkg/provider/llm"
	"github.com/mzajc/lektor/pkg/provider/llm/anyllm"
	"github.com/mzajc/lektor/pkg/provider/recognition"
	"github.com/mzajc/lektor/pkg/provider/synthesis"
	oaisynth "github.com/mzajc/lektor/pkg/provider/synthesis/openai"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "lektor.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "lektor: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "lektor: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("lektor starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "lektor",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Persistence backend ───────────────────────────────────────────────────
	store, err := reg.CreateStore(ctx, cfg.Persistence)
	if err != nil {
		slog.Error("failed to create persistence backend", "backend", cfg.Persistence.Backend, "err", err)
		return 1
	}
	if closer, ok := store.(interface{ Close() }); ok {
		defer closer.Close()
	}
	slog.Info("persistence backend ready", "backend", cfg.Persistence.Backend)

	// ── Metadata generator ────────────────────────────────────────────────────
	var generator lecture.MetadataGenerator
	if cfg.Metadata.LLM.Name != "" {
		provider, err := reg.CreateLLM(cfg.Metadata.LLM)
		if err != nil {
			slog.Error("failed to create metadata llm", "name", cfg.Metadata.LLM.Name, "err", err)
			return 1
		}
		opts := []metadata.Option{metadata.WithSubjectSource(store)}
		if cfg.Metadata.MaxExcerpt > 0 {
			opts = append(opts, metadata.WithMaxExcerpt(cfg.Metadata.MaxExcerpt))
		}
		generator = metadata.New(provider, opts...)
		slog.Info("metadata generator ready", "llm", cfg.Metadata.LLM.Name, "model", cfg.Metadata.LLM.Model)
	}

	// ── Vocabulary corrector ──────────────────────────────────────────────────
	var corrector lecture.TextCorrector
	if len(cfg.Vocabulary.Terms) > 0 {
		var opts []vocab.Option
		if cfg.Vocabulary.PhoneticThreshold > 0 {
			opts = append(opts, vocab.WithPhoneticThreshold(cfg.Vocabulary.PhoneticThreshold))
		}
		if cfg.Vocabulary.FuzzyThreshold > 0 {
			opts = append(opts, vocab.WithFuzzyThreshold(cfg.Vocabulary.FuzzyThreshold))
		}
		corrector = vocab.New(cfg.Vocabulary.Terms, opts...)
		slog.Info("vocabulary corrector ready", "terms", len(cfg.Vocabulary.Terms))
	}

	// ── Synthesis ─────────────────────────────────────────────────────────────
	newSynthesis := synthesisFactory(cfg.Synthesis)
	switch {
	case newSynthesis != nil:
		slog.Info("synthesis ready", "name", cfg.Synthesis.Name, "voice", cfg.Synthesis.Voice)
	case cfg.Synthesis.Name != "":
		slog.Warn("synthesis requires an api_key; speak commands disabled", "name", cfg.Synthesis.Name)
	}

	// ── Server ────────────────────────────────────────────────────────────────
	srvCfg := server.Config{
		ListenAddr: cfg.Server.ListenAddr,
		Recognition: recognition.Config{
			Locale:         cfg.Recognition.Locale,
			InterimResults: cfg.Recognition.InterimResults,
		},
		Store:        store,
		Metadata:     generator,
		Corrector:    corrector,
		NewSynthesis: newSynthesis,
		Readiness:    readinessChecks(store),
		Logger:       logger,
		Metrics:      observe.DefaultMetrics(),
	}
	if cfg.Server.TLS != nil {
		srvCfg.CertFile = cfg.Server.TLS.CertFile
		srvCfg.KeyFile = cfg.Server.TLS.KeyFile
	}

	srv, err := server.New(srvCfg)
	if err != nil {
		slog.Error("failed to create server", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// openai, anthropic, gemini, deepseek, mistral, groq, llamacpp, llamafile
	// all share the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"openai", "anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── Persistence ───────────────────────────────────────────────────────────

	reg.RegisterStore(config.BackendHTTPAPI, func(_ context.Context, cfg config.PersistenceConfig) (persistence.Store, error) {
		return httpapi.New(cfg.BaseURL)
	})

	reg.RegisterStore(config.BackendPostgres, func(ctx context.Context, cfg config.PersistenceConfig) (persistence.Store, error) {
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	})
}

// synthesisFactory returns a per-connection synthesis provider factory, or
// nil when synthesis is not usable. Each WebSocket connection gets its own
// provider so synthesized audio flows back over that connection.
func synthesisFactory(entry config.ProviderEntry) func(server.AudioSink) (synthesis.Provider, error) {
	if entry.Name == "" || entry.APIKey == "" {
		return nil
	}
	return func(sink server.AudioSink) (synthesis.Provider, error) {
		var opts []oaisynth.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaisynth.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oaisynth.WithModel(entry.Model))
		}
		if entry.Voice != "" {
			opts = append(opts, oaisynth.WithVoice(entry.Voice))
		}
		return oaisynth.New(entry.APIKey, oaisynth.Sink(sink), opts...)
	}
}

// readinessChecks probes the dependencies that can actually fail at
// runtime. Both shipped stores implement Ping.
func readinessChecks(store persistence.Store) []health.Checker {
	var checks []health.Checker
	if pinger, ok := store.(interface{ Ping(context.Context) error }); ok {
		checks = append(checks, health.Checker{Name: "store", Check: pinger.Ping})
	}
	return checks
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
