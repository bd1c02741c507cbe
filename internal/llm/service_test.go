package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/retry"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/ports"
)

type stubCompleter struct {
	calls int32
	fn    func(ctx context.Context, req ports.LLMRequest) (*ports.LLMResponse, error)
}

func (s *stubCompleter) Complete(ctx context.Context, req ports.LLMRequest) (*ports.LLMResponse, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.fn(ctx, req)
}

func (s *stubCompleter) Model() string { return "stub" }

func userRequest(content string) ports.LLMRequest {
	return ports.LLMRequest{Messages: []ports.LLMMessage{ports.UserMessage(content)}}
}

func TestServiceChat(t *testing.T) {
	stub := &stubCompleter{fn: func(ctx context.Context, req ports.LLMRequest) (*ports.LLMResponse, error) {
		return &ports.LLMResponse{Content: "echo: " + req.Messages[0].Content}, nil
	}}
	svc := NewService(stub, DefaultServiceConfig())

	resp, err := svc.Chat(context.Background(), userRequest("hi"))
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", resp.Content)
}

func TestServiceRejectsEmptyRequest(t *testing.T) {
	stub := &stubCompleter{fn: func(ctx context.Context, req ports.LLMRequest) (*ports.LLMResponse, error) {
		return &ports.LLMResponse{}, nil
	}}
	svc := NewService(stub, DefaultServiceConfig())

	_, err := svc.Chat(context.Background(), ports.LLMRequest{})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	assert.Equal(t, int32(0), stub.calls)
}

func TestServiceAppliesTimeout(t *testing.T) {
	stub := &stubCompleter{fn: func(ctx context.Context, req ports.LLMRequest) (*ports.LLMResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	cfg := DefaultServiceConfig()
	cfg.Timeout = 20 * time.Millisecond
	svc := NewService(stub, cfg)

	_, err := svc.Chat(context.Background(), userRequest("slow"))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestServiceCircuitOpens(t *testing.T) {
	stub := &stubCompleter{fn: func(ctx context.Context, req ports.LLMRequest) (*ports.LLMResponse, error) {
		return nil, errors.New("down")
	}}
	svc := NewService(stub, ServiceConfig{Timeout: time.Second, BreakerFailures: 2, BreakerTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		_, err := svc.Chat(context.Background(), userRequest("x"))
		require.Error(t, err)
	}
	_, err := svc.Chat(context.Background(), userRequest("x"))
	assert.True(t, errors.Is(err, domain.ErrLLMUnavailable))
	assert.Equal(t, int32(2), stub.calls, "open circuit must not reach the client")
}

func TestServiceRateLimit(t *testing.T) {
	stub := &stubCompleter{fn: func(ctx context.Context, req ports.LLMRequest) (*ports.LLMResponse, error) {
		return &ports.LLMResponse{Content: "ok"}, nil
	}}
	cfg := DefaultServiceConfig()
	cfg.RequestsPerSecond = 1
	svc := NewService(stub, cfg)

	_, err := svc.Chat(context.Background(), userRequest("first"))
	require.NoError(t, err)

	// The bucket is empty, so a call with a tight deadline cannot wait for a token.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = svc.Chat(ctx, userRequest("second"))
	require.Error(t, err)
	assert.Equal(t, int32(1), stub.calls)
}

func TestClientAgainstOpenAICompatibleServer(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"pos"},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":1,"total_tokens":6}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/v1", "test-key", WithModel("test-model"), WithMaxTokens(100))
	resp, err := client.Complete(context.Background(), userRequest("classify"))
	require.NoError(t, err)
	assert.Equal(t, "pos", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 5, resp.PromptTokens)
	assert.Contains(t, gotBody, `"model":"test-model"`)
	assert.Contains(t, gotBody, `"max_tokens":100`)
	assert.Contains(t, gotBody, `"temperature"`, "zero temperature must still be sent")
}

func TestClientMapsStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/v1", "k", WithModel("m"))
	_, err := client.Complete(context.Background(), userRequest("x"))
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.HTTPStatus())
	assert.True(t, retry.IsRetryableError(err))
}

func TestAzureClientUsesDeployment(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"neg"}}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "k", WithAzure("2024-02-01"), WithModel("my-gpt4o"))
	resp, err := client.Complete(context.Background(), userRequest("x"))
	require.NoError(t, err)
	assert.Equal(t, "neg", resp.Content)
	assert.Equal(t, "/openai/deployments/my-gpt4o/chat/completions", gotPath)
	assert.Contains(t, gotQuery, "api-version=2024-02-01")
}
