package models

// MisclassifiedRow is a row whose extracted label differs from its true label.
type MisclassifiedRow struct {
	Index     int    `json:"index"`
	Text      string `json:"text"`
	TrueLabel string `json:"true_label"`
	Predicted string `json:"predicted"`
	Raw       string `json:"raw"`
}

// ConfusionCount is a confusion pair with its number of occurrences.
type ConfusionCount struct {
	Pair  LabelPair `json:"-"`
	Key   string    `json:"pair"`
	Count int       `json:"count"`
}

// LabelErrorPattern describes how rows of one true label were misclassified.
type LabelErrorPattern struct {
	Count                 int            `json:"count"`
	Errors                int            `json:"errors"`
	ErrorRate             float64        `json:"error_rate"`
	CommonMisclassifiedAs map[string]int `json:"common_misclassified_as,omitempty"`
}

// ErrorPatternSummary is the structured error analysis of one evaluation.
type ErrorPatternSummary struct {
	Misclassified     []MisclassifiedRow           `json:"misclassified_rows"`
	PerLabelErrorRate map[string]float64           `json:"per_label_error_rate"`
	PatternsByLabel   map[string]LabelErrorPattern `json:"patterns_by_label"`
	TopConfusions     []ConfusionCount             `json:"top_confusion_pairs"`
	TotalRows         int                          `json:"total_rows"`
}

// LabelDegradation records a label whose error rate got worse.
type LabelDegradation struct {
	Label       string  `json:"label"`
	BestRate    float64 `json:"best_rate"`
	CurrentRate float64 `json:"current_rate"`
}

// PatternComparison contrasts the error patterns of the best prompt with a
// worse current attempt.
type PatternComparison struct {
	Persistent     []ConfusionCount   `json:"persistent"`
	Novel          []ConfusionCount   `json:"novel"`
	DegradedLabels []LabelDegradation `json:"degraded_labels"`
}

// DegradedRow is a row the best prompt classified correctly and the current
// prompt did not.
type DegradedRow struct {
	Index         int    `json:"index"`
	Text          string `json:"text"`
	TrueLabel     string `json:"true_label"`
	BestPredicted string `json:"best_predicted"`
	CurPredicted  string `json:"current_predicted"`
}
