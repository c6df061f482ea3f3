package metadata

import (
	"context"
	"errors"
	"strings"
	"testing"

	storemock "github.com/mzajc/lektor/pkg/persistence/mock"
	"github.com/mzajc/lektor/pkg/provider/llm"
	llmmock "github.com/mzajc/lektor/pkg/provider/llm/mock"
)

func TestGenerator_Propose(t *testing.T) {
	t.Run("parses the model answer", func(t *testing.T) {
		provider := &llmmock.Provider{
			Response: llm.CompletionResponse{
				Content: `{"title": "Cell Division", "subject": "Biology"}`,
			},
		}
		g := New(provider)

		title, subject, err := g.Propose(context.Background(), "today we cover mitosis")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if title != "Cell Division" || subject != "Biology" {
			t.Errorf("unexpected proposal %q/%q", title, subject)
		}
	})

	t.Run("tolerates fenced answers", func(t *testing.T) {
		provider := &llmmock.Provider{
			Response: llm.CompletionResponse{
				Content: "```json\n{\"title\": \"T\", \"subject\": \"S\"}\n```",
			},
		}
		g := New(provider)

		title, subject, err := g.Propose(context.Background(), "text")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if title != "T" || subject != "S" {
			t.Errorf("unexpected proposal %q/%q", title, subject)
		}
	})

	t.Run("offers existing subjects to the model", func(t *testing.T) {
		provider := &llmmock.Provider{
			Response: llm.CompletionResponse{Content: `{"title":"T","subject":"History"}`},
		}
		store := &storemock.Store{Subjects: []string{"History", "Physics"}}
		g := New(provider, WithSubjectSource(store))

		if _, _, err := g.Propose(context.Background(), "the french revolution"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		req := provider.CompleteCalls[0]
		if !strings.Contains(req.Prompt, "History, Physics") {
			t.Errorf("expected existing subjects in prompt, got %q", req.Prompt)
		}
	})

	t.Run("subject listing failure is non-fatal", func(t *testing.T) {
		provider := &llmmock.Provider{
			Response: llm.CompletionResponse{Content: `{"title":"T","subject":"S"}`},
		}
		store := &storemock.Store{ListSubjectsErr: errors.New("api down")}
		g := New(provider, WithSubjectSource(store))

		if _, _, err := g.Propose(context.Background(), "text"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("truncates the excerpt", func(t *testing.T) {
		provider := &llmmock.Provider{
			Response: llm.CompletionResponse{Content: `{"title":"T","subject":"S"}`},
		}
		g := New(provider, WithMaxExcerpt(10))

		long := strings.Repeat("a", 50)
		if _, _, err := g.Propose(context.Background(), long); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		req := provider.CompleteCalls[0]
		if strings.Contains(req.Prompt, strings.Repeat("a", 11)) {
			t.Errorf("expected excerpt capped at 10 characters, got %q", req.Prompt)
		}
	})

	t.Run("model failure", func(t *testing.T) {
		provider := &llmmock.Provider{CompleteErr: errors.New("llm timeout")}
		g := New(provider)

		if _, _, err := g.Propose(context.Background(), "text"); err == nil {
			t.Fatal("expected error, got nil")
		}
	})

	t.Run("unparseable answer", func(t *testing.T) {
		provider := &llmmock.Provider{
			Response: llm.CompletionResponse{Content: "Sure! Here is a title for you."},
		}
		g := New(provider)

		if _, _, err := g.Propose(context.Background(), "text"); err == nil {
			t.Fatal("expected error, got nil")
		}
	})
}
