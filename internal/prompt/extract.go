package prompt

import (
	"regexp"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
)

// wordChar is the class of runes that may not touch a label on either side.
const wordChar = `\p{L}\p{N}_`

// LabelExtractor maps free-form model output to exactly one vocabulary
// label. Patterns are compiled once per vocabulary.
type LabelExtractor struct {
	vocab    models.Vocabulary
	patterns []*regexp.Regexp
}

func NewLabelExtractor(vocab models.Vocabulary) (*LabelExtractor, error) {
	if _, err := models.NewVocabulary(vocab...); err != nil {
		return nil, err
	}
	patterns := make([]*regexp.Regexp, len(vocab))
	for i, label := range vocab {
		patterns[i] = regexp.MustCompile(`(?i)(?:^|[^` + wordChar + `])` + regexp.QuoteMeta(label) + `(?:$|[^` + wordChar + `])`)
	}
	return &LabelExtractor{vocab: vocab, patterns: patterns}, nil
}

// Extract returns the first label, in vocabulary order, that occurs in text
// as a whole word (case-insensitive), or "" when none does.
func (e *LabelExtractor) Extract(text string) string {
	for i, re := range e.patterns {
		if re.MatchString(text) {
			return e.vocab[i]
		}
	}
	return ""
}

func (e *LabelExtractor) Vocabulary() models.Vocabulary {
	return e.vocab
}
