package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
)

const (
	// TextPlaceholder is substituted with the row text when a prompt is
	// formatted.
	TextPlaceholder = "{text}"

	DefaultPlaceholderSentence = "Here is the text: {text}"
	DefaultTaskDescription     = "which category it belongs to"
)

var placeholderPattern = regexp.MustCompile(`\{[^{}]*\}`)

// HasPlaceholder reports whether the template contains the text placeholder.
func HasPlaceholder(template string) bool {
	return strings.Contains(template, TextPlaceholder)
}

// EnsurePlaceholder appends the placeholder sentence when the template has
// no text placeholder.
func EnsurePlaceholder(template, sentence string) string {
	if HasPlaceholder(template) {
		return template
	}
	if !strings.Contains(sentence, TextPlaceholder) {
		sentence = DefaultPlaceholderSentence
	}
	return strings.TrimRight(template, " \n") + " " + sentence
}

// Format substitutes the row text into the template.
func Format(template, text string) string {
	return strings.ReplaceAll(template, TextPlaceholder, text)
}

// StripPlaceholders removes every {...} token, including ones the model
// invented, so a single canonical placeholder can be appended afterwards.
func StripPlaceholders(s string) string {
	return placeholderPattern.ReplaceAllString(s, "")
}

// Canonicalize prepares model-written prompt text for reuse: strips
// placeholders, trims and appends the placeholder sentence. It returns ""
// when nothing is left.
func Canonicalize(revised, sentence string) string {
	body := strings.TrimSpace(StripPlaceholders(revised))
	body = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(body, "```"), "```"))
	if body == "" {
		return ""
	}
	if !strings.Contains(sentence, TextPlaceholder) {
		sentence = DefaultPlaceholderSentence
	}
	return body + " " + sentence
}

// NamesAllLabels reports whether every vocabulary label still appears in the
// prompt as a whole word.
func NamesAllLabels(prompt string, vocab models.Vocabulary) bool {
	for _, label := range vocab {
		ex, err := NewLabelExtractor(models.Vocabulary{label})
		if err != nil || ex.Extract(prompt) == "" {
			return false
		}
	}
	return true
}

// BuildInitialPrompt builds the seed template embedding the vocabulary.
func BuildInitialPrompt(task string, vocab models.Vocabulary, sentence string) string {
	if strings.TrimSpace(task) == "" {
		task = DefaultTaskDescription
	}
	p := fmt.Sprintf("Analyze the following text and determine %s. Respond with one of: %s only.", task, vocab.Quoted())
	return EnsurePlaceholder(p, sentence)
}
