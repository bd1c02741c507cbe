package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestProvider_Load_CSV(t *testing.T) {
	path := writeTemp(t, "reviews.csv", "id,text,label\n1,great product,positive\n2,\"awful, broke\",negative\n")
	cfg := DefaultConfig()
	cfg.Path = path
	cfg.ValidationSplit = 0

	train, validation, err := NewProvider(cfg).Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "reviews", train.Name)
	assert.Equal(t, []models.Row{
		{Text: "great product", Label: "positive"},
		{Text: "awful, broke", Label: "negative"},
	}, train.Rows)
	assert.True(t, validation.IsEmpty())
}

func TestProvider_Load_FlagDerivedLabels(t *testing.T) {
	path := writeTemp(t, "talent.csv", "talent_statement,Validation,has_aspiration\n"+
		"I want to lead a team,Agree,Yes\n"+
		"I like my desk,Agree,No\n"+
		"Dream big,Disagree,Yes\n"+
		"Routine work,,No\n")
	cfg := DefaultConfig()
	cfg.Path = path
	cfg.Name = "talent"
	cfg.TextColumn = "talent_statement"
	cfg.LabelColumn = "has_aspiration"
	cfg.FlagColumn = "Validation"
	cfg.FlipPair = []string{"Yes", "No"}
	cfg.LabelMap = map[string]string{"Yes": "has_aspiration", "No": "no_aspiration"}
	cfg.ValidationSplit = 0

	train, _, err := NewProvider(cfg).Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []models.Row{
		{Text: "I want to lead a team", Label: "has_aspiration"},
		{Text: "I like my desk", Label: "no_aspiration"},
		{Text: "Dream big", Label: "no_aspiration"},
	}, train.Rows)
}

func TestProvider_Load_JSONL(t *testing.T) {
	path := writeTemp(t, "rows.jsonl", `{"text":"ok","label":"positive"}

{"text":"bad","label":"negative","extra":1}
`)
	cfg := DefaultConfig()
	cfg.Path = path
	cfg.ValidationSplit = 0

	train, _, err := NewProvider(cfg).Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, train.Len())
	assert.Equal(t, "negative", train.Rows[1].Label)
}

func TestProvider_Load_SeparateValidationFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = writeTemp(t, "train.csv", "text,label\na,x\nb,y\nc,x\n")
	cfg.ValidationPath = writeTemp(t, "val.csv", "text,label\nd,y\n")

	train, validation, err := NewProvider(cfg).Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, train.Len())
	assert.Equal(t, []models.Row{{Text: "d", Label: "y"}}, validation.Rows)
}

func TestProvider_Load_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "missing label column",
			file:    "a.csv",
			content: "text,category\nhello,x\n",
			wantErr: domain.ErrMissingColumn,
		},
		{
			name:    "missing jsonl field",
			file:    "a.jsonl",
			content: `{"text":"hello"}` + "\n",
			wantErr: domain.ErrMissingColumn,
		},
		{
			name:    "header only",
			file:    "a.csv",
			content: "text,label\n",
			wantErr: domain.ErrEmptyDataset,
		},
		{
			name:    "flip outside pair",
			file:    "a.csv",
			content: "text,label,flag\nhello,Maybe,Disagree\n",
			mutate: func(c *Config) {
				c.FlagColumn = "flag"
				c.FlipPair = []string{"Yes", "No"}
			},
			wantErr: domain.ErrUnknownLabel,
		},
		{
			name:    "unexpected flag",
			file:    "a.csv",
			content: "text,label,flag\nhello,Yes,Unsure\n",
			mutate: func(c *Config) {
				c.FlagColumn = "flag"
				c.FlipPair = []string{"Yes", "No"}
			},
			wantErr: domain.ErrInvalidRow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Path = writeTemp(t, tt.file, tt.content)
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			_, _, err := NewProvider(cfg).Load(context.Background())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestProvider_Load_MissingFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "nope.csv")

	_, _, err := NewProvider(cfg).Load(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}
