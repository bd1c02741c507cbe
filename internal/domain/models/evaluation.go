package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"
	"time"
)

// ErrorSentinel is recorded as the raw output of a row whose call failed
// after all retries.
const ErrorSentinel = "Error"

// UnlabeledColumn names the confusion matrix column that counts rows whose
// output matched no label.
const UnlabeledColumn = "unlabeled"

// Prediction is the outcome for one dataset row. Label is empty when the
// raw output matched no vocabulary label.
type Prediction struct {
	Index  int    `json:"index"`
	Raw    string `json:"raw"`
	Label  string `json:"label,omitempty"`
	Failed bool   `json:"failed,omitempty"`
}

// EvaluationResult holds one prediction per dataset row, aligned by index,
// and the metrics computed over them.
type EvaluationResult struct {
	Prompt      string        `json:"prompt"`
	Predictions []Prediction  `json:"predictions"`
	Metrics     Metrics       `json:"metrics"`
	Duration    time.Duration `json:"duration"`
}

// PredictedLabels returns the extracted label of every row in order.
func (r *EvaluationResult) PredictedLabels() []string {
	labels := make([]string, len(r.Predictions))
	for i, p := range r.Predictions {
		labels[i] = p.Label
	}
	return labels
}

func (r *EvaluationResult) FailedCount() int {
	n := 0
	for _, p := range r.Predictions {
		if p.Failed {
			n++
		}
	}
	return n
}

// LabelMetrics are the one-vs-rest scores for a single label.
type LabelMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Metrics summarises an evaluation. Precision, Recall and F1 are macro
// averages over the labels present in the ground truth.
type Metrics struct {
	Accuracy  float64                 `json:"accuracy"`
	Precision float64                 `json:"precision"`
	Recall    float64                 `json:"recall"`
	F1        float64                 `json:"f1"`
	Correct   int                     `json:"correct"`
	Total     int                     `json:"total"`
	PerLabel  map[string]LabelMetrics `json:"per_label"`
	Confusion *ConfusionMatrix        `json:"confusion_matrix"`
}

// LabelPair is an ordered (true, predicted) combination. An empty Predicted
// means the output matched no label.
type LabelPair struct {
	True      string
	Predicted string
}

func (p LabelPair) String() string {
	predicted := p.Predicted
	if predicted == "" {
		predicted = UnlabeledColumn
	}
	return p.True + " -> " + predicted
}

// ConfusionMatrix counts (true, predicted) pairs. Rows are true labels;
// columns are the same labels plus the synthetic unlabeled column.
type ConfusionMatrix struct {
	labels []string
	counts map[LabelPair]int
}

func NewConfusionMatrix(labels []string) *ConfusionMatrix {
	return &ConfusionMatrix{
		labels: slices.Clone(labels),
		counts: make(map[LabelPair]int),
	}
}

// Add records one observation. Unknown true labels are appended as new rows.
func (m *ConfusionMatrix) Add(trueLabel, predicted string) {
	if !slices.Contains(m.labels, trueLabel) {
		m.labels = append(m.labels, trueLabel)
	}
	m.counts[LabelPair{True: trueLabel, Predicted: predicted}]++
}

func (m *ConfusionMatrix) Count(trueLabel, predicted string) int {
	return m.counts[LabelPair{True: trueLabel, Predicted: predicted}]
}

func (m *ConfusionMatrix) Labels() []string {
	return slices.Clone(m.labels)
}

// Columns returns the predicted-label columns, including the unlabeled
// column only when at least one row had no match.
func (m *ConfusionMatrix) Columns() []string {
	cols := slices.Clone(m.labels)
	for pair, n := range m.counts {
		if pair.Predicted == "" && n > 0 {
			return append(cols, UnlabeledColumn)
		}
	}
	return cols
}

// Pairs returns a copy of the non-zero counts.
func (m *ConfusionMatrix) Pairs() map[LabelPair]int {
	out := make(map[LabelPair]int, len(m.counts))
	for pair, n := range m.counts {
		if n > 0 {
			out[pair] = n
		}
	}
	return out
}

// IsDiagonal reports whether every counted pair is a correct prediction.
func (m *ConfusionMatrix) IsDiagonal() bool {
	for pair, n := range m.counts {
		if n > 0 && pair.True != pair.Predicted {
			return false
		}
	}
	return true
}

func (m *ConfusionMatrix) rows() [][]int {
	cols := m.Columns()
	rows := make([][]int, len(m.labels))
	for i, t := range m.labels {
		rows[i] = make([]int, len(cols))
		for j, c := range cols {
			if j >= len(m.labels) {
				c = ""
			}
			rows[i][j] = m.Count(t, c)
		}
	}
	return rows
}

// String renders the matrix as an aligned text table.
func (m *ConfusionMatrix) String() string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprint(w, "true \\ predicted")
	for _, c := range m.Columns() {
		fmt.Fprintf(w, "\t%s", c)
	}
	fmt.Fprintln(w)
	for i, row := range m.rows() {
		fmt.Fprint(w, m.labels[i])
		for _, n := range row {
			fmt.Fprintf(w, "\t%d", n)
		}
		fmt.Fprintln(w)
	}
	w.Flush()
	return sb.String()
}

type confusionMatrixJSON struct {
	Labels  []string `json:"labels"`
	Columns []string `json:"columns"`
	Counts  [][]int  `json:"counts"`
}

func (m *ConfusionMatrix) MarshalJSON() ([]byte, error) {
	return json.Marshal(confusionMatrixJSON{
		Labels:  m.labels,
		Columns: m.Columns(),
		Counts:  m.rows(),
	})
}

func (m *ConfusionMatrix) UnmarshalJSON(data []byte) error {
	var raw confusionMatrixJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.labels = raw.Labels
	m.counts = make(map[LabelPair]int)
	for i, t := range raw.Labels {
		if i >= len(raw.Counts) {
			break
		}
		for j, c := range raw.Columns {
			if j >= len(raw.Counts[i]) || raw.Counts[i][j] == 0 {
				continue
			}
			if j >= len(raw.Labels) {
				c = ""
			}
			m.counts[LabelPair{True: t, Predicted: c}] = raw.Counts[i][j]
		}
	}
	return nil
}
