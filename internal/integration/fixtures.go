//go:build integration

package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sashabaranov/go-openai"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain/models"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/prompt/baselines"
)

// revisedPrompt is what the fake model proposes on every rewrite. The fake
// classifier only answers correctly when it sees the "Answer with" marker.
const revisedPrompt = "Decide whether the review is positive or negative. Answer with positive or negative."

// FakeLLM is an OpenAI-compatible chat completions server with scripted
// answers: the seed prompt always says "positive", the revised prompt
// classifies by keyword.
type FakeLLM struct {
	Server *httptest.Server

	classifications atomic.Int64
	analyses        atomic.Int64
	revisions       atomic.Int64
}

func NewFakeLLM(t *testing.T) *FakeLLM {
	t.Helper()
	f := &FakeLLM{}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Server.Close)
	return f
}

// BaseURL is the API base to hand to llm.NewClient.
func (f *FakeLLM) BaseURL() string {
	return f.Server.URL + "/v1"
}

func (f *FakeLLM) Classifications() int64 { return f.classifications.Load() }
func (f *FakeLLM) Analyses() int64        { return f.analyses.Load() }
func (f *FakeLLM) Revisions() int64       { return f.revisions.Load() }

func (f *FakeLLM) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/chat/completions" {
		http.NotFound(w, r)
		return
	}

	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var system, user string
	for _, m := range req.Messages {
		switch m.Role {
		case openai.ChatMessageRoleSystem:
			system = m.Content
		case openai.ChatMessageRoleUser:
			user = m.Content
		}
	}

	var content string
	switch system {
	case baselines.AnalysisSystemPrompt:
		f.analyses.Add(1)
		content = "The prompt labels every review positive. Negative reviews mention words like bad or awful."
	case baselines.RevisionSystemPrompt, baselines.HybridSystemPrompt:
		f.revisions.Add(1)
		content = revisedPrompt
	default:
		f.classifications.Add(1)
		content = classify(user)
	}

	resp := openai.ChatCompletionResponse{
		ID:     fmt.Sprintf("chatcmpl-%d", f.classifications.Load()+f.analyses.Load()+f.revisions.Load()),
		Object: "chat.completion",
		Model:  req.Model,
		Choices: []openai.ChatCompletionChoice{{
			Index:        0,
			Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{PromptTokens: len(user) / 4, CompletionTokens: 2, TotalTokens: len(user)/4 + 2},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func classify(user string) string {
	if !strings.Contains(user, "Answer with") {
		return "positive"
	}
	lower := strings.ToLower(user)
	if strings.Contains(lower, "bad") || strings.Contains(lower, "awful") {
		return "Negative."
	}
	return "Positive"
}

// ReviewDataset is a balanced sentiment set the seed prompt gets half right.
func ReviewDataset(name string) *models.Dataset {
	return models.NewDataset(name, []models.Row{
		{Text: "A good film with a great cast", Label: "positive"},
		{Text: "Bad pacing and an awful script", Label: "negative"},
		{Text: "Lovely soundtrack, good story", Label: "positive"},
		{Text: "The ending was bad", Label: "negative"},
		{Text: "Great fun for the whole family", Label: "positive"},
		{Text: "Awful acting throughout", Label: "negative"},
		{Text: "I would watch it again, it was good", Label: "positive"},
		{Text: "Simply bad", Label: "negative"},
	})
}
