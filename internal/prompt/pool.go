package prompt

import (
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/Binary67/LLM-Prompt-Evolution/internal/domain"
)

// PoolEntry is a prompt and the accuracy it scored when it was added.
type PoolEntry struct {
	Prompt   string  `json:"prompt"`
	Accuracy float64 `json:"accuracy"`
}

// Pool is an append-only store of scored prompts used for epsilon-greedy
// selection. It is safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	entries []PoolEntry
	rng     *rand.Rand
}

// NewPool creates a pool whose random draws are reproducible for a seed.
func NewPool(seed uint64) *Pool {
	return NewPoolWithRand(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

func NewPoolWithRand(rng *rand.Rand) *Pool {
	return &Pool{rng: rng}
}

func (p *Pool) Add(prompt string, accuracy float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, PoolEntry{Prompt: prompt, Accuracy: accuracy})
}

func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Entries returns a copy of the pool in insertion order.
func (p *Pool) Entries() []PoolEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.entries)
}

// GetBestPrompt returns the entry with the highest accuracy, the first one
// added on ties.
func (p *Pool) GetBestPrompt() (PoolEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bestLocked()
}

// GetRandomPrompt draws an entry uniformly.
func (p *Pool) GetRandomPrompt() (PoolEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.randomLocked()
}

// Select draws a random entry with probability epsilon and returns the best
// entry otherwise. explored reports which branch was taken.
func (p *Pool) Select(epsilon float64) (entry PoolEntry, explored bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) == 0 {
		return PoolEntry{}, false, domain.ErrEmptyPool
	}
	if epsilon > 0 && p.rng.Float64() < epsilon {
		entry, err = p.randomLocked()
		return entry, true, err
	}
	entry, err = p.bestLocked()
	return entry, false, err
}

func (p *Pool) bestLocked() (PoolEntry, error) {
	if len(p.entries) == 0 {
		return PoolEntry{}, domain.ErrEmptyPool
	}
	best := p.entries[0]
	for _, e := range p.entries[1:] {
		if e.Accuracy > best.Accuracy {
			best = e
		}
	}
	return best, nil
}

func (p *Pool) randomLocked() (PoolEntry, error) {
	if len(p.entries) == 0 {
		return PoolEntry{}, domain.ErrEmptyPool
	}
	return p.entries[p.rng.IntN(len(p.entries))], nil
}

// SelectPrompt is the epsilon-greedy policy: explore a random prompt with
// probability epsilon, otherwise exploit the best one.
func SelectPrompt(pool *Pool, epsilon float64) (string, error) {
	entry, _, err := pool.Select(epsilon)
	if err != nil {
		return "", err
	}
	return entry.Prompt, nil
}
