package samplepool

import (
	"math/rand/v2"
	"sync"
)

// samplePools holds the decoded samples served to the playback layer,
// one slice per category. Slices are replaced wholesale and never
// mutated in place, so a reader holding an old slice stays valid.
type samplePools struct {
	mu         sync.RWMutex
	byCategory map[string][]*Sample
}

func newSamplePools() *samplePools {
	return &samplePools{byCategory: make(map[string][]*Sample)}
}

// Pick returns a uniformly random sample from a category, or false
// when the category pool is empty or unknown.
func (p *samplePools) Pick(category string) (*Sample, bool) {
	p.mu.RLock()
	samples := p.byCategory[category]
	p.mu.RUnlock()
	if len(samples) == 0 {
		return nil, false
	}
	return samples[rand.IntN(len(samples))], true
}

// Replace swaps a category's pool for a new set in one step.
func (p *samplePools) Replace(category string, samples []*Sample) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(samples) == 0 {
		delete(p.byCategory, category)
		return
	}
	p.byCategory[category] = samples
}

// Count returns the number of samples held for a category.
func (p *samplePools) Count(category string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byCategory[category])
}

// Counts returns the pool size for every non-empty category.
func (p *samplePools) Counts() map[string]int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]int, len(p.byCategory))
	for cat, samples := range p.byCategory {
		out[cat] = len(samples)
	}
	return out
}

// Clear drops every pool.
func (p *samplePools) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byCategory = make(map[string][]*Sample)
}
