package prompt

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/prompt/baselines"
)

var templateFuncs = template.FuncMap{
	"percent": func(v float64) string { return fmt.Sprintf("%.2f%%", v*100) },
}

var (
	analysisTmpl = template.Must(template.New("analysis").Funcs(templateFuncs).Parse(baselines.ErrorAnalysisPrompt))
	revisionTmpl = template.Must(template.New("revision").Funcs(templateFuncs).Parse(baselines.RevisionPrompt))
	hybridTmpl   = template.Must(template.New("hybrid").Funcs(templateFuncs).Parse(baselines.HybridRevisionPrompt))
)

// AnalysisInput feeds the error analysis prompt.
type AnalysisInput struct {
	Prompt     string
	Accuracy   float64
	Labels     models.Vocabulary
	Errors     []models.MisclassifiedRow
	Confusion  *models.ConfusionMatrix
	MaxSamples int
}

// RevisionInput feeds the rewrite prompt.
type RevisionInput struct {
	Prompt   string
	Accuracy float64
	Labels   models.Vocabulary
	Analysis string
}

// HybridInput feeds the hybrid rewrite prompt.
type HybridInput struct {
	BestPrompt      string
	BestAccuracy    float64
	CurrentPrompt   string
	CurrentAccuracy float64
	Labels          models.Vocabulary
	Feedback        string
}

// RenderAnalysis renders the analysis request. Errors beyond MaxSamples are
// dropped.
func RenderAnalysis(in AnalysisInput) (string, error) {
	if in.MaxSamples > 0 && len(in.Errors) > in.MaxSamples {
		in.Errors = in.Errors[:in.MaxSamples]
	}
	data := struct {
		AnalysisInput
		Labels    string
		Confusion string
	}{AnalysisInput: in, Labels: in.Labels.Quoted()}
	if in.Confusion != nil {
		data.Confusion = in.Confusion.String()
	}
	return render(analysisTmpl, data)
}

func RenderRevision(in RevisionInput) (string, error) {
	data := struct {
		RevisionInput
		Labels string
	}{RevisionInput: in, Labels: in.Labels.Quoted()}
	return render(revisionTmpl, data)
}

func RenderHybrid(in HybridInput) (string, error) {
	data := struct {
		HybridInput
		Labels string
	}{HybridInput: in, Labels: in.Labels.Quoted()}
	return render(hybridTmpl, data)
}

func render(t *template.Template, data any) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", t.Name(), err)
	}
	return sb.String(), nil
}
