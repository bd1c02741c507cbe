package prompt

import (
	"fmt"
	"slices"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
)

// CalculateMetrics scores predictions against true labels. An empty
// prediction is a no-match: always incorrect, counted in the unlabeled
// column. Labels fixes the matrix order; true labels missing from it are
// appended. Macro averages only cover labels present in the ground truth.
func CalculateMetrics(trueLabels, predicted, labels []string) (models.Metrics, error) {
	if len(trueLabels) != len(predicted) {
		return models.Metrics{}, domain.NewDomainError(domain.ErrInvalidInput,
			fmt.Sprintf("got %d true labels and %d predictions", len(trueLabels), len(predicted)))
	}
	if len(trueLabels) == 0 {
		return models.Metrics{}, domain.ErrEmptyDataset
	}

	matrix := models.NewConfusionMatrix(labels)
	support := make(map[string]int)
	predictedCount := make(map[string]int)
	truePositive := make(map[string]int)
	correct := 0

	for i, t := range trueLabels {
		p := predicted[i]
		matrix.Add(t, p)
		support[t]++
		if p != "" {
			predictedCount[p]++
		}
		if p == t {
			correct++
			truePositive[t]++
		}
	}

	all := matrix.Labels()
	for p := range predictedCount {
		if !slices.Contains(all, p) {
			all = append(all, p)
		}
	}

	m := models.Metrics{
		Accuracy:  float64(correct) / float64(len(trueLabels)),
		Correct:   correct,
		Total:     len(trueLabels),
		PerLabel:  make(map[string]models.LabelMetrics, len(all)),
		Confusion: matrix,
	}

	present := 0
	for _, label := range all {
		tp := truePositive[label]
		precision := ratio(tp, predictedCount[label])
		recall := ratio(tp, support[label])
		lm := models.LabelMetrics{
			Precision: precision,
			Recall:    recall,
			F1:        harmonicMean(precision, recall),
			Support:   support[label],
		}
		m.PerLabel[label] = lm
		if support[label] > 0 {
			present++
			m.Precision += lm.Precision
			m.Recall += lm.Recall
			m.F1 += lm.F1
		}
	}
	if present > 0 {
		m.Precision /= float64(present)
		m.Recall /= float64(present)
		m.F1 /= float64(present)
	}

	return m, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func harmonicMean(a, b float64) float64 {
	if a+b == 0 {
		return 0
	}
	return 2 * a * b / (a + b)
}
