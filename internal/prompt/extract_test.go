package prompt

import (
	"testing"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
)

func TestLabelExtractor(t *testing.T) {
	vocab := models.Vocabulary{"has_aspiration", "no_aspiration"}
	ex, err := NewLabelExtractor(vocab)
	if err != nil {
		t.Fatalf("NewLabelExtractor: %v", err)
	}

	tests := []struct {
		name string
		text string
		want string
	}{
		{"exact", "has_aspiration", "has_aspiration"},
		{"case insensitive", "NO_ASPIRATION", "no_aspiration"},
		{"surrounded by punctuation", "Label: 'no_aspiration'.", "no_aspiration"},
		{"multiline", "Reasoning...\nno_aspiration\n", "no_aspiration"},
		{"priority order wins", "no_aspiration or has_aspiration", "has_aspiration"},
		{"embedded in longer word", "has_aspirations", ""},
		{"prefixed by underscore", "x_no_aspiration", ""},
		{"empty", "", ""},
		{"error sentinel", models.ErrorSentinel, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ex.Extract(tt.text); got != tt.want {
				t.Errorf("Extract(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestLabelExtractorWordBoundaries(t *testing.T) {
	ex, err := NewLabelExtractor(models.Vocabulary{"yes", "no"})
	if err != nil {
		t.Fatalf("NewLabelExtractor: %v", err)
	}

	tests := []struct {
		text string
		want string
	}{
		{"yes", "yes"},
		{"Yes.", "yes"},
		{"eyes", ""},
		{"yesterday", ""},
		{"nothing", ""},
		{"I'd say no", "no"},
		{"no2", ""},
		{"(no)", "no"},
	}

	for _, tt := range tests {
		if got := ex.Extract(tt.text); got != tt.want {
			t.Errorf("Extract(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestLabelExtractorResultIsInVocabulary(t *testing.T) {
	vocab := models.Vocabulary{"a", "b.c", "d+"}
	ex, err := NewLabelExtractor(vocab)
	if err != nil {
		t.Fatalf("NewLabelExtractor: %v", err)
	}
	inputs := []string{"a", "bxc", "b.c", "d+ here", "d", "", "A B.C", "zzz"}
	for _, in := range inputs {
		got := ex.Extract(in)
		if got != "" && !vocab.Contains(got) {
			t.Errorf("Extract(%q) returned %q which is not in the vocabulary", in, got)
		}
	}
	if got := ex.Extract("bxc"); got != "" {
		t.Errorf("regexp metacharacters must be quoted, got %q", got)
	}
}

func TestNewLabelExtractorRejectsBadVocabulary(t *testing.T) {
	if _, err := NewLabelExtractor(nil); err == nil {
		t.Error("expected error for empty vocabulary")
	}
	if _, err := NewLabelExtractor(models.Vocabulary{"x", "x"}); err == nil {
		t.Error("expected error for duplicate labels")
	}
}
