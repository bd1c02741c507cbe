package prompt

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
)

const (
	// MaxTopConfusions caps the ranked confusion pair list.
	MaxTopConfusions = 5
	// PersistentConfusions is how many of the best prompt's top pairs are
	// carried into combined feedback.
	PersistentConfusions = 3
)

// AnalyzeErrors summarises where an evaluation went wrong.
func AnalyzeErrors(dataset *models.Dataset, result *models.EvaluationResult) (*models.ErrorPatternSummary, error) {
	if dataset.IsEmpty() {
		return nil, domain.ErrEmptyDataset
	}
	if result == nil || len(result.Predictions) != dataset.Len() {
		return nil, domain.NewDomainError(domain.ErrInvalidInput, "evaluation result is not aligned with the dataset")
	}

	summary := &models.ErrorPatternSummary{
		PerLabelErrorRate: make(map[string]float64),
		PatternsByLabel:   make(map[string]models.LabelErrorPattern),
		TotalRows:         dataset.Len(),
	}

	totals := make(map[string]int)
	errs := make(map[string]int)
	misclassifiedAs := make(map[string]map[string]int)
	pairCounts := make(map[models.LabelPair]int)
	var pairOrder []models.LabelPair

	for i, row := range dataset.Rows {
		totals[row.Label]++
		pred := result.Predictions[i]
		if pred.Label == row.Label {
			continue
		}
		errs[row.Label]++
		summary.Misclassified = append(summary.Misclassified, models.MisclassifiedRow{
			Index:     i,
			Text:      row.Text,
			TrueLabel: row.Label,
			Predicted: pred.Label,
			Raw:       pred.Raw,
		})

		pair := models.LabelPair{True: row.Label, Predicted: pred.Label}
		if pairCounts[pair] == 0 {
			pairOrder = append(pairOrder, pair)
		}
		pairCounts[pair]++

		as := pred.Label
		if as == "" {
			as = models.UnlabeledColumn
		}
		if misclassifiedAs[row.Label] == nil {
			misclassifiedAs[row.Label] = make(map[string]int)
		}
		misclassifiedAs[row.Label][as]++
	}

	for label, total := range totals {
		rate := float64(errs[label]) / float64(total)
		summary.PerLabelErrorRate[label] = rate
		summary.PatternsByLabel[label] = models.LabelErrorPattern{
			Count:                 total,
			Errors:                errs[label],
			ErrorRate:             rate,
			CommonMisclassifiedAs: misclassifiedAs[label],
		}
	}

	ranked := make([]models.ConfusionCount, 0, len(pairOrder))
	for _, pair := range pairOrder {
		ranked = append(ranked, models.ConfusionCount{Pair: pair, Key: pair.String(), Count: pairCounts[pair]})
	}
	// Stable keeps first-seen order among equal counts.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	if len(ranked) > MaxTopConfusions {
		ranked = ranked[:MaxTopConfusions]
	}
	summary.TopConfusions = ranked

	return summary, nil
}

// ComparePatterns contrasts the best prompt's errors with a current attempt.
func ComparePatterns(best, current *models.ErrorPatternSummary) models.PatternComparison {
	var cmp models.PatternComparison

	n := min(PersistentConfusions, len(best.TopConfusions))
	cmp.Persistent = slices.Clone(best.TopConfusions[:n])

	for _, cc := range current.TopConfusions {
		known := slices.ContainsFunc(best.TopConfusions, func(b models.ConfusionCount) bool {
			return b.Pair == cc.Pair
		})
		if !known {
			cmp.Novel = append(cmp.Novel, cc)
		}
	}

	labels := make([]string, 0, len(current.PerLabelErrorRate))
	for label := range current.PerLabelErrorRate {
		labels = append(labels, label)
	}
	slices.Sort(labels)
	for _, label := range labels {
		bestRate, ok := best.PerLabelErrorRate[label]
		if !ok {
			continue
		}
		if curRate := current.PerLabelErrorRate[label]; curRate > bestRate {
			cmp.DegradedLabels = append(cmp.DegradedLabels, models.LabelDegradation{
				Label:       label,
				BestRate:    bestRate,
				CurrentRate: curRate,
			})
		}
	}

	return cmp
}

// FindDegradedRows returns rows the best evaluation got right and the
// current evaluation got wrong, in dataset order.
func FindDegradedRows(dataset *models.Dataset, best, current *models.EvaluationResult) []models.DegradedRow {
	n := min(dataset.Len(), len(best.Predictions), len(current.Predictions))
	var out []models.DegradedRow
	for i := 0; i < n; i++ {
		row := dataset.Rows[i]
		b, c := best.Predictions[i].Label, current.Predictions[i].Label
		if b == row.Label && c != row.Label {
			out = append(out, models.DegradedRow{
				Index:         i,
				Text:          row.Text,
				TrueLabel:     row.Label,
				BestPredicted: b,
				CurPredicted:  c,
			})
		}
	}
	return out
}

// FormatCombinedFeedback renders a comparison as the feedback block used by
// hybrid revision.
func FormatCombinedFeedback(cmp models.PatternComparison, degraded []models.DegradedRow, maxExamples int) string {
	var sections []string

	if len(cmp.Persistent) > 0 {
		var sb strings.Builder
		sb.WriteString("Persistent errors from best prompt:\n")
		for _, cc := range cmp.Persistent {
			fmt.Fprintf(&sb, "- %s: %d occurrences\n", cc.Key, cc.Count)
		}
		sections = append(sections, sb.String())
	}
	if len(cmp.Novel) > 0 {
		var sb strings.Builder
		sb.WriteString("New error patterns from current attempt:\n")
		for _, cc := range cmp.Novel {
			fmt.Fprintf(&sb, "- %s: %d occurrences\n", cc.Key, cc.Count)
		}
		sections = append(sections, sb.String())
	}
	if len(cmp.DegradedLabels) > 0 {
		var sb strings.Builder
		sb.WriteString("Key differences in error patterns:\n")
		for _, d := range cmp.DegradedLabels {
			fmt.Fprintf(&sb, "- '%s' classification degraded: %.1f%% -> %.1f%%\n", d.Label, d.BestRate*100, d.CurrentRate*100)
		}
		sections = append(sections, sb.String())
	}
	if len(degraded) > 0 && maxExamples > 0 {
		var sb strings.Builder
		sb.WriteString("Examples the best prompt handled correctly but the current attempt missed:\n")
		for _, d := range degraded[:min(maxExamples, len(degraded))] {
			cur := d.CurPredicted
			if cur == "" {
				cur = models.UnlabeledColumn
			}
			fmt.Fprintf(&sb, "- Text: %q (true: %s, current predicted: %s)\n", truncate(d.Text, 200), d.TrueLabel, cur)
		}
		sections = append(sections, sb.String())
	}

	if len(sections) == 0 {
		return "No distinct error patterns were found."
	}
	return strings.TrimSpace(strings.Join(sections, "\n"))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
