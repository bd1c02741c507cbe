package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
)

func TestRenderAnalysisCapsSamples(t *testing.T) {
	var errs []models.MisclassifiedRow
	for i := 0; i < 30; i++ {
		errs = append(errs, models.MisclassifiedRow{Index: i, Text: "t", TrueLabel: "a", Predicted: "", Raw: "?"})
	}
	m := models.NewConfusionMatrix([]string{"a", "b"})
	m.Add("a", "")

	out, err := RenderAnalysis(AnalysisInput{
		Prompt:     "Classify {text}",
		Accuracy:   0.5,
		Labels:     models.Vocabulary{"a", "b"},
		Errors:     errs,
		Confusion:  m,
		MaxSamples: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, 20, strings.Count(out, "- Text:"))
	assert.Contains(t, out, "Accuracy Achieved: 50.00%")
	assert.Contains(t, out, "Predicted: unlabeled")
	assert.Contains(t, out, "'a', 'b'")
}

func TestRenderRevisionAndHybrid(t *testing.T) {
	out, err := RenderRevision(RevisionInput{
		Prompt:   "Classify {text}",
		Accuracy: 0.25,
		Labels:   models.Vocabulary{"pos", "neg"},
		Analysis: "model confuses sarcasm",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "model confuses sarcasm")
	assert.Contains(t, out, "'pos', 'neg'")

	out, err = RenderHybrid(HybridInput{
		BestPrompt:      "best",
		BestAccuracy:    0.8,
		CurrentPrompt:   "current",
		CurrentAccuracy: 0.6,
		Labels:          models.Vocabulary{"pos", "neg"},
		Feedback:        "Persistent errors from best prompt:",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "BEST PROMPT (Accuracy: 80.00%)")
	assert.Contains(t, out, "ATTEMPTED PROMPT (Accuracy: 60.00%)")
}
