package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/tracefile"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/config"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestNewLogger_Format(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(config.LogConfig{Level: "info", Format: "json"}, &buf)
	l.Debug("hidden")
	l.Info("shown", "run_id", "evo_1")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"run_id":"evo_1"`)
}

func TestResolveVocabulary(t *testing.T) {
	train := models.NewDataset("train", []models.Row{
		{Text: "a", Label: "positive"},
		{Text: "b", Label: "negative"},
	})
	validation := models.NewDataset("validation", []models.Row{
		{Text: "c", Label: "neutral"},
	})

	t.Run("configured order wins", func(t *testing.T) {
		vocab, err := resolveVocabulary([]string{"positive", "neutral", "negative"}, train)
		require.NoError(t, err)
		assert.Equal(t, models.Vocabulary{"positive", "neutral", "negative"}, vocab)
	})

	t.Run("derived from every set", func(t *testing.T) {
		vocab, err := resolveVocabulary(nil, train, validation, nil)
		require.NoError(t, err)
		assert.Equal(t, models.Vocabulary{"negative", "neutral", "positive"}, vocab)
	})

	t.Run("nothing loaded", func(t *testing.T) {
		_, err := resolveVocabulary(nil)
		assert.ErrorIs(t, err, domain.ErrEmptyDataset)
	})
}

func TestRetryConfig(t *testing.T) {
	logger = slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	c := config.DefaultConfig()
	c.Retry.MaxRetries = 3
	c.Retry.InitialIntervalMs = 10
	c.Retry.MaxIntervalMs = 200

	rc := retryConfig(c)
	assert.Equal(t, 3, rc.MaxRetries)
	assert.Equal(t, 10*time.Millisecond, rc.InitialInterval)
	assert.Equal(t, 200*time.Millisecond, rc.MaxInterval)
	require.NotNil(t, rc.Retryable)
	require.NotNil(t, rc.OnRetry)
}

func TestServiceConfigs(t *testing.T) {
	c := config.DefaultConfig()
	c.Evolution.MaxIterations = 7
	c.Evolution.Strategy = models.StrategyHybrid
	c.Evolution.Concurrency = 4
	c.Evolution.RevisionTemperature = 0.3
	c.Evolution.PlaceholderSentence = "Input: {text}"

	ev := evolutionConfig(c)
	assert.Equal(t, 7, ev.MaxIterations)
	assert.Equal(t, models.StrategyHybrid, ev.Strategy)
	assert.Equal(t, "Input: {text}", ev.PlaceholderSentence)
	assert.NotEmpty(t, ev.TaskDescription)
	require.NoError(t, ev.Validate())

	assert.Equal(t, 4, evaluatorConfig(c).Concurrency)
	assert.Equal(t, "Input: {text}", evaluatorConfig(c).PlaceholderSentence)
	assert.Equal(t, 0.3, reviserConfig(c).Temperature)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b c", truncate("a\n b\tc", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func sampleTrace() *models.RunTrace {
	return &models.RunTrace{
		Records: []models.IterationRecord{
			{Iteration: 0, Prompt: "Classify {text}", Accuracy: 0.5, F1: 0.4},
			{Iteration: 1, Prompt: "Label the review {text}", Accuracy: 0.75, F1: 0.7},
			{Iteration: 2, Prompt: "Decide {text}", Accuracy: 0.75, F1: 0.6},
		},
		BestPromptByF1: "Label the review {text}",
	}
}

func TestPrintTrace(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printTrace(&buf, "trace.json", sampleTrace()))

	out := buf.String()
	assert.Contains(t, out, "1 *")
	assert.Contains(t, out, "Total: 3 records")
	assert.Contains(t, out, "Best prompt:\nLabel the review {text}")

	buf.Reset()
	require.NoError(t, printTrace(&buf, "empty.json", &models.RunTrace{}))
	assert.Contains(t, buf.String(), "No iterations recorded in empty.json")
}

func TestTraceConvert(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "trace.json")
	out := filepath.Join(dir, "trace.msgpack")

	data, err := tracefile.Encode(sampleTrace(), tracefile.FormatJSON)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(in, data, 0o644))

	cmd := traceConvertCmd()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{in, out})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, stdout.String(), "Wrote 3 records")

	got, err := tracefile.Load(out)
	require.NoError(t, err)
	assert.Equal(t, sampleTrace().Records, got.Records)
	assert.Equal(t, "Label the review {text}", got.BestPromptByF1)
}
