package prompt

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain"
)

const eps = 1e-9

func TestCalculateMetricsMacroAverages(t *testing.T) {
	m, err := CalculateMetrics(
		[]string{"yes", "no", "yes"},
		[]string{"no", "no", "yes"},
		[]string{"yes", "no"},
	)
	require.NoError(t, err)

	assert.InDelta(t, 2.0/3.0, m.Accuracy, eps)
	assert.InDelta(t, 0.75, m.Precision, eps)
	assert.InDelta(t, 0.75, m.Recall, eps)
	assert.InDelta(t, 2.0/3.0, m.F1, eps)
	assert.Equal(t, 2, m.Correct)
	assert.Equal(t, 3, m.Total)

	assert.InDelta(t, 1.0, m.PerLabel["yes"].Precision, eps)
	assert.InDelta(t, 0.5, m.PerLabel["yes"].Recall, eps)
	assert.Equal(t, 2, m.PerLabel["yes"].Support)
	assert.Equal(t, 1, m.Confusion.Count("yes", "no"))
}

func TestCalculateMetricsZeroDenominators(t *testing.T) {
	// "neg" is never predicted and "pos" is never true.
	m, err := CalculateMetrics(
		[]string{"neg", "neg"},
		[]string{"pos", ""},
		[]string{"pos", "neg"},
	)
	require.NoError(t, err)

	assert.Equal(t, 0.0, m.Accuracy)
	for label, lm := range m.PerLabel {
		for _, v := range []float64{lm.Precision, lm.Recall, lm.F1} {
			assert.False(t, math.IsNaN(v), "label %s produced NaN", label)
			assert.Equal(t, 0.0, v)
		}
	}
	assert.Equal(t, 0.0, m.F1)
	assert.Equal(t, 1, m.Confusion.Count("neg", ""), "no-match goes to the unlabeled column")
	assert.NotContains(t, m.Confusion.Labels(), "", "no-match never becomes a row")
}

func TestCalculateMetricsAccuracyIsExact(t *testing.T) {
	truth := make([]string, 7)
	pred := make([]string, 7)
	for i := range truth {
		truth[i] = "a"
		pred[i] = "b"
		if i < 3 {
			pred[i] = "a"
		}
	}
	m, err := CalculateMetrics(truth, pred, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, 3.0/7.0, m.Accuracy)
}

func TestCalculateMetricsMacroIgnoresAbsentTrueLabels(t *testing.T) {
	m, err := CalculateMetrics(
		[]string{"a", "a"},
		[]string{"a", "a"},
		[]string{"a", "b", "c"},
	)
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.F1, "labels missing from the ground truth do not drag the macro average")
	assert.True(t, m.Confusion.IsDiagonal())
}

func TestCalculateMetricsInvalidInput(t *testing.T) {
	_, err := CalculateMetrics([]string{"a"}, nil, []string{"a"})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = CalculateMetrics(nil, nil, []string{"a"})
	assert.True(t, errors.Is(err, domain.ErrEmptyDataset))
}
