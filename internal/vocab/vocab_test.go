package vocab

import "testing"

func TestCorrector_Correct(t *testing.T) {
	t.Run("rewrites a misrecognized term", func(t *testing.T) {
		c := New([]string{"kubernetes"})
		got := c.Correct("deploy the app to the kubernets cluster")
		want := "deploy the app to the kubernetes cluster"
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})

	t.Run("preserves punctuation and spacing", func(t *testing.T) {
		c := New([]string{"kubernetes"})
		got := c.Correct("first: kubernets, then the rest.\n\nDone.")
		want := "first: kubernetes, then the rest.\n\nDone."
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})

	t.Run("preserves leading capitalization", func(t *testing.T) {
		c := New([]string{"kubernetes"})
		got := c.Correct("Kubernets is an orchestrator")
		want := "Kubernetes is an orchestrator"
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})

	t.Run("leaves correctly spelled terms alone", func(t *testing.T) {
		c := New([]string{"kubernetes"})
		input := "kubernetes handles scheduling"
		if got := c.Correct(input); got != input {
			t.Errorf("expected unchanged text, got %q", got)
		}
	})

	t.Run("leaves unrelated words alone", func(t *testing.T) {
		c := New([]string{"kubernetes"})
		input := "the banana was yellow"
		if got := c.Correct(input); got != input {
			t.Errorf("expected unchanged text, got %q", got)
		}
	})

	t.Run("never touches short words", func(t *testing.T) {
		c := New([]string{"then"})
		input := "ten of the he"
		if got := c.Correct(input); got != input {
			t.Errorf("expected short words untouched, got %q", got)
		}
	})

	t.Run("empty vocabulary is the identity", func(t *testing.T) {
		c := New(nil)
		input := "completely arbitrary text"
		if got := c.Correct(input); got != input {
			t.Errorf("expected identity, got %q", got)
		}
	})

	t.Run("blank terms are ignored", func(t *testing.T) {
		c := New([]string{"", "   "})
		input := "nothing to match"
		if got := c.Correct(input); got != input {
			t.Errorf("expected identity, got %q", got)
		}
	})
}

func TestCorrector_Thresholds(t *testing.T) {
	// With the phonetic threshold raised above any attainable score, no
	// correction survives the ranking stage.
	strict := New([]string{"kubernetes"},
		WithPhoneticThreshold(0.999),
		WithFuzzyThreshold(0.999),
	)
	input := "kubernets cluster"
	if got := strict.Correct(input); got != input {
		t.Errorf("expected strict thresholds to suppress corrections, got %q", got)
	}
}
