// Package tracefile persists run traces and the exported best prompt on the
// local filesystem.
package tracefile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/ports"
)

// Format is the on-disk encoding of a trace.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// FormatFromPath picks msgpack for .msgpack/.mpk files and JSON otherwise.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".msgpack", ".mpk":
		return FormatMsgpack
	default:
		return FormatJSON
	}
}

// Store writes the trace of every finished run to one file, replacing the
// previous content.
type Store struct {
	path   string
	format Format
}

var _ ports.TraceStore = (*Store)(nil)

func NewStore(path string) *Store {
	return &Store{path: path, format: FormatFromPath(path)}
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) SaveTrace(_ context.Context, run *models.EvolutionRun, trace *models.RunTrace) error {
	data, err := Encode(trace, s.format)
	if err != nil {
		return err
	}
	if err := writeFile(s.path, data); err != nil {
		return fmt.Errorf("write trace for run %s: %w", run.ID, err)
	}
	return nil
}

// Load reads a trace written by SaveTrace.
func Load(path string) (*models.RunTrace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	return Decode(data, FormatFromPath(path))
}

// Encode renders a trace. JSON output is the list of iteration records
// followed by the {"BestPromptByF1": ...} marker.
func Encode(trace *models.RunTrace, format Format) ([]byte, error) {
	switch format {
	case FormatMsgpack:
		data, err := msgpack.Marshal(trace)
		if err != nil {
			return nil, fmt.Errorf("encode trace: %w", err)
		}
		return data, nil
	default:
		data, err := json.MarshalIndent(trace, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode trace: %w", err)
		}
		return append(data, '\n'), nil
	}
}

func Decode(data []byte, format Format) (*models.RunTrace, error) {
	var trace models.RunTrace
	var err error
	switch format {
	case FormatMsgpack:
		err = msgpack.Unmarshal(data, &trace)
	default:
		err = json.Unmarshal(data, &trace)
	}
	if err != nil {
		return nil, fmt.Errorf("decode trace: %w", err)
	}
	return &trace, nil
}

// PromptExporter writes the best prompt as plain text.
type PromptExporter struct {
	path string
}

var _ ports.BestPromptExporter = (*PromptExporter)(nil)

func NewPromptExporter(path string) *PromptExporter {
	return &PromptExporter{path: path}
}

func (e *PromptExporter) ExportBestPrompt(_ context.Context, prompt string) error {
	if err := writeFile(e.path, []byte(prompt)); err != nil {
		return fmt.Errorf("export best prompt: %w", err)
	}
	return nil
}

// writeFile replaces path atomically so readers never see a partial file.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
