package services

import (
	"sync"
	"time"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/adapters/metrics"
	"github.com/Binary67/LLM-Prompt-Evolution/internal/ports"
)

// EvolutionProgressPublisher manages subscriptions and publishing of
// evolution progress events.
type EvolutionProgressPublisher struct {
	channels map[string][]chan ports.EvolutionProgressEvent
	mu       sync.RWMutex
	buffer   int
}

// Compile-time interface checks
var (
	_ ports.ProgressPublisher  = (*EvolutionProgressPublisher)(nil)
	_ ports.ProgressSubscriber = (*EvolutionProgressPublisher)(nil)
)

func NewEvolutionProgressPublisher() *EvolutionProgressPublisher {
	return &EvolutionProgressPublisher{
		channels: make(map[string][]chan ports.EvolutionProgressEvent),
		buffer:   100,
	}
}

// Subscribe creates a new channel for receiving progress events for a run
// The returned channel is buffered to prevent blocking the publisher
func (p *EvolutionProgressPublisher) Subscribe(runID string) <-chan ports.EvolutionProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan ports.EvolutionProgressEvent, p.buffer)
	p.channels[runID] = append(p.channels[runID], ch)
	metrics.ProgressSubscribers.Inc()
	return ch
}

// Unsubscribe removes a channel from receiving progress events
// The channel will be closed after removal
func (p *EvolutionProgressPublisher) Unsubscribe(runID string, ch <-chan ports.EvolutionProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	channels := p.channels[runID]
	for i, subscriberCh := range channels {
		if subscriberCh == ch {
			p.channels[runID] = append(channels[:i], channels[i+1:]...)
			close(subscriberCh)
			metrics.ProgressSubscribers.Dec()
			break
		}
	}

	if len(p.channels[runID]) == 0 {
		delete(p.channels, runID)
	}
}

// Publish sends a progress event to all subscribers of its run.
// Publishing is non-blocking - if a subscriber's buffer is full, the event is dropped for that subscriber
func (p *EvolutionProgressPublisher) Publish(event ports.EvolutionProgressEvent) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, ch := range p.channels[event.RunID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close closes all channels for a run (called when the run finishes)
func (p *EvolutionProgressPublisher) Close(runID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	channels := p.channels[runID]
	for _, ch := range channels {
		close(ch)
	}
	metrics.ProgressSubscribers.Sub(float64(len(channels)))
	delete(p.channels, runID)
}

// SubscriberCount returns the number of active subscribers for a run
func (p *EvolutionProgressPublisher) SubscriberCount(runID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.channels[runID])
}

// ActiveRuns returns a list of run IDs that have active subscribers
func (p *EvolutionProgressPublisher) ActiveRuns() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	runs := make([]string, 0, len(p.channels))
	for runID := range p.channels {
		runs = append(runs, runID)
	}
	return runs
}
