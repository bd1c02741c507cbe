package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/circuitbreaker"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/metrics"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/ports"
)

const (
	// LLMTimeout is the default maximum time to wait for one LLM response
	LLMTimeout = 2 * time.Minute
)

// Completer is the raw chat completion call wrapped by Service.
type Completer interface {
	Complete(ctx context.Context, req ports.LLMRequest) (*ports.LLMResponse, error)
	Model() string
}

// ServiceConfig tunes the protective wrappers around the client.
type ServiceConfig struct {
	Timeout         time.Duration
	BreakerFailures int
	BreakerTimeout  time.Duration

	// RequestsPerSecond limits outgoing calls. Zero disables the limiter.
	RequestsPerSecond float64
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Timeout:         LLMTimeout,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// Service implements ports.LLMService on top of a Completer, adding a
// per-call timeout, a circuit breaker and request metrics.
type Service struct {
	client  Completer
	breaker *circuitbreaker.CircuitBreaker
	timeout time.Duration
	limiter *rate.Limiter
}

// NewService creates a new LLM service
func NewService(client Completer, cfg ServiceConfig) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = LLMTimeout
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 5
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(1, int(cfg.RequestsPerSecond)))
	}
	return &Service{
		client:  client,
		limiter: limiter,
		breaker: circuitbreaker.New(cfg.BreakerFailures, cfg.BreakerTimeout,
			circuitbreaker.WithStateChange(func(_, to circuitbreaker.State) {
				metrics.CircuitBreakerState.Set(float64(to))
			}),
		),
		timeout: cfg.Timeout,
	}
}

// Chat sends a non-streaming chat request
func (s *Service) Chat(ctx context.Context, req ports.LLMRequest) (*ports.LLMResponse, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	var result *ports.LLMResponse
	start := time.Now()
	err := s.breaker.Execute(func() error {
		var err error
		result, err = s.doChat(ctx, req)
		return err
	})

	model := s.client.Model()
	metrics.LLMRequestDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
	status := "success"
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		status = "circuit_open"
		err = domain.NewDomainError(domain.ErrLLMUnavailable, err.Error())
	case err != nil:
		status = "error"
	}
	metrics.LLMRequestsTotal.WithLabelValues(model, status).Inc()

	return result, err
}

func (s *Service) doChat(ctx context.Context, req ports.LLMRequest) (*ports.LLMResponse, error) {
	// Add timeout to prevent hanging on slow/failed LLM requests
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if len(req.Messages) == 0 {
		return nil, domain.NewDomainError(domain.ErrInvalidInput, "chat request has no messages")
	}

	resp, err := s.client.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	return resp, nil
}
