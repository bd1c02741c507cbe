package models

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain"
)

// Row is a single labeled example. Rows are immutable once loaded.
type Row struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Dataset is an ordered collection of rows. Row order is significant:
// evaluation results are aligned to it by index.
type Dataset struct {
	Name string `json:"name"`
	Rows []Row  `json:"rows"`
}

func NewDataset(name string, rows []Row) *Dataset {
	return &Dataset{Name: name, Rows: rows}
}

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

func (d *Dataset) IsEmpty() bool {
	return d.Len() == 0
}

// Labels returns the true label of every row in order.
func (d *Dataset) Labels() []string {
	labels := make([]string, len(d.Rows))
	for i, row := range d.Rows {
		labels[i] = row.Label
	}
	return labels
}

// Validate checks the dataset is usable against the given vocabulary.
// It never touches the network and is meant to run before any remote call.
func (d *Dataset) Validate(vocab Vocabulary) error {
	if d.IsEmpty() {
		return domain.ErrEmptyDataset
	}
	if len(vocab) == 0 {
		return domain.ErrEmptyVocabulary
	}
	for i, row := range d.Rows {
		if strings.TrimSpace(row.Text) == "" {
			return domain.NewDomainError(domain.ErrInvalidRow, fmt.Sprintf("row %d has no text", i))
		}
		if row.Label == "" {
			return domain.NewDomainError(domain.ErrInvalidRow, fmt.Sprintf("row %d has no label", i))
		}
		if !vocab.Contains(row.Label) {
			return domain.NewDomainError(domain.ErrUnknownLabel, fmt.Sprintf("row %d label %q", i, row.Label))
		}
	}
	return nil
}

// Vocabulary is the closed, ordered set of valid labels. Order is the
// extraction priority: when two labels could match, the earlier one wins.
type Vocabulary []string

// NewVocabulary builds a vocabulary, rejecting empty input, blank labels
// and duplicates (compared case-insensitively, since extraction is).
func NewVocabulary(labels ...string) (Vocabulary, error) {
	if len(labels) == 0 {
		return nil, domain.ErrEmptyVocabulary
	}
	seen := make(map[string]bool, len(labels))
	vocab := make(Vocabulary, 0, len(labels))
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			return nil, domain.NewDomainError(domain.ErrInvalidInput, "blank label in vocabulary")
		}
		key := strings.ToLower(label)
		if seen[key] {
			return nil, domain.NewDomainError(domain.ErrDuplicateLabel, label)
		}
		seen[key] = true
		vocab = append(vocab, label)
	}
	return vocab, nil
}

// VocabularyFromDataset derives the vocabulary from the distinct labels of
// a dataset, sorted so the priority order does not depend on row order.
func VocabularyFromDataset(d *Dataset) (Vocabulary, error) {
	if d.IsEmpty() {
		return nil, domain.ErrEmptyDataset
	}
	var labels []string
	for _, row := range d.Rows {
		if row.Label != "" && !slices.Contains(labels, row.Label) {
			labels = append(labels, row.Label)
		}
	}
	slices.Sort(labels)
	return NewVocabulary(labels...)
}

func (v Vocabulary) Contains(label string) bool {
	return slices.Contains(v, label)
}

// Quoted renders the vocabulary as 'a', 'b' for use inside prompts.
func (v Vocabulary) Quoted() string {
	quoted := make([]string, len(v))
	for i, label := range v {
		quoted[i] = "'" + label + "'"
	}
	return strings.Join(quoted, ", ")
}
