package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":       {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"synthesis": {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Persistence
	switch {
	case cfg.Persistence.Backend == "":
		errs = append(errs, errors.New("persistence.backend is required; valid values: httpapi, postgres"))
	case !cfg.Persistence.Backend.IsValid():
		errs = append(errs, fmt.Errorf("persistence.backend %q is invalid; valid values: httpapi, postgres", cfg.Persistence.Backend))
	case cfg.Persistence.Backend == BackendHTTPAPI && cfg.Persistence.BaseURL == "":
		errs = append(errs, errors.New("persistence.base_url is required for the httpapi backend"))
	case cfg.Persistence.Backend == BackendPostgres && cfg.Persistence.PostgresDSN == "":
		errs = append(errs, errors.New("persistence.postgres_dsn is required for the postgres backend"))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Metadata.LLM.Name)
	validateProviderName("synthesis", cfg.Synthesis.Name)

	if cfg.Metadata.LLM.Name == "" {
		slog.Warn("metadata.llm is not configured; untitled lectures will use default metadata")
	}
	if cfg.Metadata.MaxExcerpt < 0 {
		errs = append(errs, fmt.Errorf("metadata.max_excerpt %d must not be negative", cfg.Metadata.MaxExcerpt))
	}

	// Vocabulary thresholds
	if t := cfg.Vocabulary.PhoneticThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("vocabulary.phonetic_threshold %.2f is out of range [0, 1]", t))
	}
	if t := cfg.Vocabulary.FuzzyThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("vocabulary.fuzzy_threshold %.2f is out of range [0, 1]", t))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
