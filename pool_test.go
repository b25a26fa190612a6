package samplepool

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func poolSamples(category string, n int) []*Sample {
	out := make([]*Sample, n)
	for i := range out {
		out[i] = &Sample{
			SourceKey: fmt.Sprintf("key-%d", i),
			Category:  category,
			Audio:     &Audio{PCM: audioBytes(32), SampleRate: 44100, Channels: 1},
		}
	}
	return out
}

func TestPoolPickEmpty(t *testing.T) {
	p := newSamplePools()
	if s, ok := p.Pick("blue"); ok || s != nil {
		t.Fatal("empty pool must return nothing")
	}
}

func TestPoolPickReturnsOwnSamples(t *testing.T) {
	p := newSamplePools()
	samples := poolSamples("blue", 3)
	p.Replace("blue", samples)

	members := make(map[string]bool, len(samples))
	for _, s := range samples {
		members[s.SourceKey] = true
	}
	for i := 0; i < 50; i++ {
		s, ok := p.Pick("blue")
		if !ok {
			t.Fatal("pick failed on a populated pool")
		}
		if !members[s.SourceKey] {
			t.Fatalf("pick returned a foreign sample: %s", s.SourceKey)
		}
	}
}

func TestPoolPickEventuallyCoversAll(t *testing.T) {
	p := newSamplePools()
	p.Replace("blue", poolSamples("blue", 3))

	seen := make(map[string]bool)
	for i := 0; i < 500 && len(seen) < 3; i++ {
		s, _ := p.Pick("blue")
		seen[s.SourceKey] = true
	}
	if len(seen) != 3 {
		t.Errorf("500 picks covered %d of 3 samples", len(seen))
	}
}

func TestPoolReplaceIsWholesale(t *testing.T) {
	p := newSamplePools()
	p.Replace("blue", poolSamples("blue", 5))
	if got := p.Count("blue"); got != 5 {
		t.Fatalf("Count = %d, want 5", got)
	}

	replacement := []*Sample{{SourceKey: "only", Category: "blue"}}
	p.Replace("blue", replacement)
	if got := p.Count("blue"); got != 1 {
		t.Fatalf("Count after replace = %d, want 1", got)
	}
	s, _ := p.Pick("blue")
	if s.SourceKey != "only" {
		t.Errorf("old samples leaked through the replacement: %s", s.SourceKey)
	}

	p.Replace("blue", nil)
	if _, ok := p.Pick("blue"); ok {
		t.Error("replacing with nil should empty the pool")
	}
}

func TestPoolCounts(t *testing.T) {
	p := newSamplePools()
	p.Replace("blue", poolSamples("blue", 2))
	p.Replace("fin", poolSamples("fin", 3))

	counts := p.Counts()
	if counts["blue"] != 2 || counts["fin"] != 3 {
		t.Errorf("Counts() = %v", counts)
	}

	p.Clear()
	if len(p.Counts()) != 0 {
		t.Error("Clear left pools behind")
	}
}

func TestPoolConcurrentPickAndReplace(t *testing.T) {
	p := newSamplePools()
	p.Replace("blue", poolSamples("blue", 4))

	done := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				if s, ok := p.Pick("blue"); ok && s == nil {
					t.Error("pick returned ok with a nil sample")
					return
				}
			}
		}()
	}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p.Replace("blue", poolSamples("blue", n+1))
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("concurrent pool access deadlocked")
	}
}
