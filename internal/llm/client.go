package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/ports"
)

var tracer = otel.GetTracerProvider().Tracer("promptevo/llm")

// Providers
const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
)

// Config holds the configuration for the LLM client.
type Config struct {
	Provider   string
	BaseURL    string
	APIKey     string
	APIVersion string
	// Model is the model name, or the deployment name for Azure.
	Model      string
	MaxTokens  int
	HTTPClient *http.Client
	Transport  http.RoundTripper
	Timeout    time.Duration
}

// Option configures a Config.
type Option func(*Config)

// WithModel sets the model (or Azure deployment) for chat completions.
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithMaxTokens sets the default max tokens for completions.
func WithMaxTokens(maxTokens int) Option {
	return func(c *Config) {
		c.MaxTokens = maxTokens
	}
}

// WithAzure switches the client to Azure OpenAI with the given API version.
func WithAzure(apiVersion string) Option {
	return func(c *Config) {
		c.Provider = ProviderAzure
		c.APIVersion = apiVersion
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// WithTransport sets a custom HTTP transport.
// This is ignored if WithHTTPClient is also used.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Config) {
		c.Transport = rt
	}
}

// WithTimeout sets the HTTP client timeout.
// This is ignored if WithHTTPClient is also used.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// Client wraps the OpenAI client with configuration metadata.
type Client struct {
	api       *openai.Client
	provider  string
	model     string
	maxTokens int
}

// NewClient creates an OpenAI or Azure OpenAI client.
// For OpenAI, baseURL is the full API base (e.g. "https://api.openai.com/v1");
// for Azure it is the resource endpoint.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	cfg := &Config{
		Provider:  ProviderOpenAI,
		BaseURL:   strings.TrimSuffix(baseURL, "/"),
		APIKey:    apiKey,
		Model:     "gpt-4o-mini",
		MaxTokens: 100,
		Timeout:   60 * time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	var openaiCfg openai.ClientConfig
	if cfg.Provider == ProviderAzure {
		openaiCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.APIVersion != "" {
			openaiCfg.APIVersion = cfg.APIVersion
		}
		deployment := cfg.Model
		openaiCfg.AzureModelMapperFunc = func(string) string { return deployment }
	} else {
		openaiCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			openaiCfg.BaseURL = cfg.BaseURL
		}
	}

	if cfg.HTTPClient != nil {
		openaiCfg.HTTPClient = cfg.HTTPClient
	} else {
		transport := cfg.Transport
		if transport == nil {
			transport = http.DefaultTransport
		}
		openaiCfg.HTTPClient = &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		}
	}

	return &Client{
		api:       openai.NewClientWithConfig(openaiCfg),
		provider:  cfg.Provider,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

func (c *Client) Model() string {
	return c.model
}

// Complete sends one chat completion request and returns the first choice.
func (c *Client) Complete(ctx context.Context, req ports.LLMRequest) (*ports.LLMResponse, error) {
	creq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    make([]openai.ChatCompletionMessage, len(req.Messages)),
		MaxTokens:   req.MaxTokens,
		Temperature: temperature(req.Temperature),
	}
	if creq.MaxTokens == 0 {
		creq.MaxTokens = c.maxTokens
	}
	for i, m := range req.Messages {
		creq.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := c.createChatCompletion(ctx, creq)
	if err != nil {
		return nil, wrapAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, domain.ErrLLMEmptyResponse
	}

	choice := resp.Choices[0]
	return &ports.LLMResponse{
		Content:          choice.Message.Content,
		FinishReason:     string(choice.FinishReason),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// createChatCompletion wraps the OpenAI client's CreateChatCompletion with an OTel span.
func (c *Client) createChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	ctx, span := tracer.Start(ctx, "llm.chat", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("llm.provider", c.provider),
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.request.max_tokens", req.MaxTokens),
		attribute.Int("llm.request.messages", len(req.Messages)),
		attribute.Float64("llm.request.temperature", float64(req.Temperature)),
	)

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return resp, err
	}

	span.SetAttributes(
		attribute.Int("llm.usage.input_tokens", resp.Usage.PromptTokens),
		attribute.Int("llm.usage.output_tokens", resp.Usage.CompletionTokens),
		attribute.Int("llm.usage.total_tokens", resp.Usage.TotalTokens),
	)
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		span.SetAttributes(
			attribute.String("llm.response.finish_reason", string(choice.FinishReason)),
			attribute.Int("llm.response.content_length", len(choice.Message.Content)),
		)
	} else {
		span.SetAttributes(attribute.Int("llm.response.choices", 0))
	}

	return resp, nil
}

// temperature maps 0 to the smallest positive float32, since the request
// field is omitted from the JSON body when zero and the API then applies its
// own default.
func temperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

// StatusError is an API failure carrying the HTTP status code.
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s (status %d): %v", domain.ErrLLMRequestFailed, e.Status, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

func (e *StatusError) HTTPStatus() int {
	return e.Status
}

func wrapAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return &StatusError{Status: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return &StatusError{Status: reqErr.HTTPStatusCode, Err: err}
	}
	return fmt.Errorf("chat request failed: %w", err)
}
