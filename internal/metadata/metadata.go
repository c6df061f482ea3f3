// Package metadata proposes a title and subject for a finished lecture by
// asking an LLM to read the opening of the transcript.
//
// The generator sends only an excerpt (the first 2000 characters by
// default) together with the subjects already present in the store, so the
// model can file a new lecture under an existing subject instead of
// inventing a near-duplicate. The model must answer with a single JSON
// object; anything else is treated as a failure and the caller falls back
// to default metadata.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mzajc/lektor/pkg/persistence"
	"github.com/mzajc/lektor/pkg/provider/llm"
)

const (
	defaultMaxExcerpt = 2000
	maxTokens         = 200
)

const systemPrompt = `You label lecture transcripts. Given the beginning of a transcript, produce a short descriptive title and a single broad subject (e.g. "Biology", "History", "Mathematics"). When one of the existing subjects fits, reuse it verbatim instead of creating a new one. Answer with exactly one JSON object of the form {"title": "...", "subject": "..."} and nothing else.`

// SubjectSource lists the subjects already known to the persistence layer.
// [persistence.Store] satisfies it.
type SubjectSource interface {
	ListSubjects(ctx context.Context) ([]string, error)
}

// Option is a functional option for configuring a [Generator].
type Option func(*Generator)

// WithSubjectSource lets the generator offer existing subjects to the model
// for reuse. Without one, every proposal may invent a fresh subject.
func WithSubjectSource(src SubjectSource) Option {
	return func(g *Generator) {
		g.subjects = src
	}
}

// WithMaxExcerpt caps how many characters of the transcript are sent to the
// model. Default: 2000.
func WithMaxExcerpt(n int) Option {
	return func(g *Generator) {
		g.maxExcerpt = n
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(g *Generator) {
		g.log = log
	}
}

// Generator proposes lecture metadata via an LLM. Safe for concurrent use.
type Generator struct {
	provider   llm.Provider
	subjects   SubjectSource
	maxExcerpt int
	log        *slog.Logger
}

// New builds a Generator over the given completion provider.
func New(provider llm.Provider, opts ...Option) *Generator {
	g := &Generator{
		provider:   provider,
		maxExcerpt: defaultMaxExcerpt,
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// proposal is the JSON shape the model must answer with.
type proposal struct {
	Title   string `json:"title"`
	Subject string `json:"subject"`
}

// Propose returns a title and subject for the given lecture text. A failure
// to list existing subjects is logged and ignored; a failure of the model
// call or an unparseable answer is returned as an error.
func (g *Generator) Propose(ctx context.Context, text string) (title, subject string, err error) {
	excerpt := text
	if runes := []rune(excerpt); len(runes) > g.maxExcerpt {
		excerpt = string(runes[:g.maxExcerpt])
	}

	var existing []string
	if g.subjects != nil {
		existing, err = g.subjects.ListSubjects(ctx)
		if err != nil {
			g.log.Warn("listing existing subjects failed", "error", err)
			existing = nil
		}
	}

	var prompt strings.Builder
	if len(existing) > 0 {
		prompt.WriteString("Existing subjects: ")
		prompt.WriteString(strings.Join(existing, ", "))
		prompt.WriteString("\n\n")
	}
	prompt.WriteString("Transcript beginning:\n")
	prompt.WriteString(excerpt)

	resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Prompt:       prompt.String(),
		MaxTokens:    maxTokens,
	})
	if err != nil {
		return "", "", fmt.Errorf("metadata: complete: %w", err)
	}

	var p proposal
	if err := json.Unmarshal([]byte(stripFences(resp.Content)), &p); err != nil {
		return "", "", fmt.Errorf("metadata: parse model answer: %w", err)
	}
	return strings.TrimSpace(p.Title), strings.TrimSpace(p.Subject), nil
}

// stripFences removes a surrounding markdown code fence, which some models
// insist on adding around JSON answers.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Ensure persistence.Store satisfies SubjectSource.
var _ SubjectSource = (persistence.Store)(nil)
