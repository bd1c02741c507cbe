// Package dataset loads labeled rows from CSV or JSONL files and splits them
// into training and validation sets.
package dataset

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/ports"
)

// Config describes where rows come from and how labels are derived.
type Config struct {
	// Path is a .csv, .jsonl or .ndjson file.
	Path string
	// ValidationPath, when set, is loaded as the validation set and no
	// split is performed.
	ValidationPath string
	Name           string

	TextColumn  string
	LabelColumn string

	// FlagColumn holds a reviewer verdict on the raw label. Rows with an
	// empty flag are dropped and DisagreeValue flips a binary label.
	FlagColumn    string
	AgreeValue    string
	DisagreeValue string
	// FlipPair is the two raw labels swapped on disagreement.
	FlipPair []string

	// LabelMap renames raw labels after flag handling.
	LabelMap map[string]string

	ValidationSplit float64
	Seed            uint64
}

func DefaultConfig() Config {
	return Config{
		TextColumn:      "text",
		LabelColumn:     "label",
		AgreeValue:      "Agree",
		DisagreeValue:   "Disagree",
		ValidationSplit: 0.2,
		Seed:            42,
	}
}

// record is one raw row before label derivation.
type record struct {
	text  string
	label string
	flag  string
}

// Provider implements ports.DatasetProvider over files on disk.
type Provider struct {
	config Config
}

var _ ports.DatasetProvider = (*Provider)(nil)

func NewProvider(config Config) *Provider {
	return &Provider{config: config}
}

// Load reads the configured files and returns train and validation sets.
// Validation is empty when ValidationSplit is zero and no ValidationPath is
// set.
func (p *Provider) Load(ctx context.Context) (*models.Dataset, *models.Dataset, error) {
	name := p.config.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(p.config.Path), filepath.Ext(p.config.Path))
	}

	rows, err := p.loadRows(ctx, p.config.Path)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, domain.NewDomainError(domain.ErrEmptyDataset, p.config.Path)
	}

	if p.config.ValidationPath != "" {
		validation, err := p.loadRows(ctx, p.config.ValidationPath)
		if err != nil {
			return nil, nil, err
		}
		return models.NewDataset(name, rows), models.NewDataset(name+"-validation", validation), nil
	}

	train, validation := StratifiedSplit(rows, p.config.ValidationSplit, p.config.Seed)
	return models.NewDataset(name, train), models.NewDataset(name+"-validation", validation), nil
}

func (p *Provider) loadRows(ctx context.Context, path string) ([]models.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	var records []record
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		records, err = p.readJSONL(ctx, f)
	default:
		records, err = p.readCSV(ctx, f)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return p.derive(records)
}

func (p *Provider) readCSV(ctx context.Context, r io.Reader) ([]record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	textCol, err := column(index, p.config.TextColumn)
	if err != nil {
		return nil, err
	}
	labelCol, err := column(index, p.config.LabelColumn)
	if err != nil {
		return nil, err
	}
	flagCol := -1
	if p.config.FlagColumn != "" {
		if flagCol, err = column(index, p.config.FlagColumn); err != nil {
			return nil, err
		}
	}

	var records []record
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rec := record{text: field(fields, textCol), label: field(fields, labelCol)}
		if flagCol >= 0 {
			rec.flag = field(fields, flagCol)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (p *Provider) readJSONL(ctx context.Context, r io.Reader) ([]record, error) {
	var records []record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		text, ok := obj[p.config.TextColumn]
		if !ok {
			return nil, domain.NewDomainError(domain.ErrMissingColumn, fmt.Sprintf("line %d: %q", line, p.config.TextColumn))
		}
		label, ok := obj[p.config.LabelColumn]
		if !ok {
			return nil, domain.NewDomainError(domain.ErrMissingColumn, fmt.Sprintf("line %d: %q", line, p.config.LabelColumn))
		}
		rec := record{text: stringify(text), label: stringify(label)}
		if p.config.FlagColumn != "" {
			rec.flag = stringify(obj[p.config.FlagColumn])
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// derive applies flag handling and the label map.
func (p *Provider) derive(records []record) ([]models.Row, error) {
	rows := make([]models.Row, 0, len(records))
	for i, rec := range records {
		label := strings.TrimSpace(rec.label)
		if p.config.FlagColumn != "" {
			flag := strings.TrimSpace(rec.flag)
			switch {
			case flag == "":
				continue
			case strings.EqualFold(flag, p.config.DisagreeValue):
				flipped, err := flip(label, p.config.FlipPair)
				if err != nil {
					return nil, fmt.Errorf("row %d: %w", i, err)
				}
				label = flipped
			case strings.EqualFold(flag, p.config.AgreeValue):
			default:
				return nil, domain.NewDomainError(domain.ErrInvalidRow, fmt.Sprintf("row %d: unexpected flag %q", i, flag))
			}
		}
		if mapped, ok := p.config.LabelMap[label]; ok {
			label = mapped
		}
		rows = append(rows, models.Row{Text: rec.text, Label: label})
	}
	return rows, nil
}

func flip(label string, pair []string) (string, error) {
	if len(pair) != 2 {
		return "", domain.NewDomainError(domain.ErrInvalidInput, "disagreement flip needs exactly two labels")
	}
	switch label {
	case pair[0]:
		return pair[1], nil
	case pair[1]:
		return pair[0], nil
	}
	return "", domain.NewDomainError(domain.ErrUnknownLabel, fmt.Sprintf("cannot flip %q", label))
}

func column(index map[string]int, name string) (int, error) {
	i, ok := index[name]
	if !ok {
		return 0, domain.NewDomainError(domain.ErrMissingColumn, fmt.Sprintf("%q", name))
	}
	return i, nil
}

func field(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}
	return ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool, float64:
		return fmt.Sprint(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
