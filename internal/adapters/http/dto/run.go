package dto

import "github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"

type RunListResponse struct {
	Runs   []*models.EvolutionRun `json:"runs"`
	Total  int                    `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
}

// TraceResponse is the API view of a run trace. The on-disk trace format
// is a flat array; clients get named fields instead.
type TraceResponse struct {
	RunID          string                   `json:"run_id"`
	Records        []models.IterationRecord `json:"records"`
	BestPromptByF1 string                   `json:"best_prompt_by_f1"`
}

func NewTraceResponse(trace *models.RunTrace) *TraceResponse {
	records := trace.Records
	if records == nil {
		records = []models.IterationRecord{}
	}
	return &TraceResponse{
		RunID:          trace.RunID,
		Records:        records,
		BestPromptByF1: trace.BestPromptByF1,
	}
}
