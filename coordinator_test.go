package samplepool

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testCatalog() *Catalog {
	return NewCatalog(
		SourceDescriptor{Category: "blue", Tier: TierDirect, URL: sourceURL("good.example", "blue-one")},
		SourceDescriptor{Category: "fin", Tier: TierDirect, URL: sourceURL("good.example", "fin-one")},
		SourceDescriptor{Category: "gray", Tier: TierDirect, URL: sourceURL("down.example", "gray-one")},
	)
}

func newTestCoordinator(t *testing.T, fetcher Fetcher, catalog *Catalog, concurrency int, deadline time.Duration) *coordinator {
	t.Helper()
	p, _ := newTestPipeline(t, fetcher)
	return newCoordinator(p, catalog, concurrency, deadline, testLogger())
}

func TestCoordinatorPartialFailureIsolation(t *testing.T) {
	fetcher := newFakeFetcher(func(ctx context.Context, req FetchRequest) (*FetchResponse, error) {
		if strings.Contains(req.URL, "down.example") {
			return &FetchResponse{StatusCode: 404, Body: []byte("gone")}, nil
		}
		return okAudio()
	})
	coord := newTestCoordinator(t, fetcher, testCatalog(), 2, 5*time.Second)

	report, pools := coord.RefreshAll(context.Background())

	if report.ID == "" || report.Elapsed < 0 {
		t.Errorf("malformed report: %+v", report)
	}
	if len(report.Categories) != 3 {
		t.Fatalf("report covers %d categories, want 3", len(report.Categories))
	}

	for _, cat := range []string{"blue", "fin"} {
		cr := report.Categories[cat]
		if cr.Fetched != 1 || cr.Failed != 0 {
			t.Errorf("%s: fetched=%d failed=%d, want 1/0", cat, cr.Fetched, cr.Failed)
		}
		if len(pools[cat]) != 1 {
			t.Errorf("%s: pool has %d samples, want 1", cat, len(pools[cat]))
		}
	}

	gray := report.Categories["gray"]
	if gray.Failed != 1 {
		t.Errorf("gray: failed=%d, want 1", gray.Failed)
	}
	if len(gray.Errors) == 0 {
		t.Error("gray: failure left no error message")
	}
	if len(pools["gray"]) != 0 {
		t.Errorf("gray: pool has %d samples, want 0", len(pools["gray"]))
	}

	if report.TotalFetched() != 2 || report.TotalFailed() != 1 {
		t.Errorf("totals: fetched=%d failed=%d, want 2/1",
			report.TotalFetched(), report.TotalFailed())
	}
}

func TestCoordinatorSecondRefreshOfCategorySkips(t *testing.T) {
	fetcher := newFakeFetcher(nil)
	coord := newTestCoordinator(t, fetcher, testCatalog(), 2, 5*time.Second)

	if !coord.claim("blue") {
		t.Fatal("first claim refused")
	}
	cr, samples := coord.RefreshCategory(context.Background(), "blue")
	if !cr.Skipped {
		t.Error("overlapping refresh not reported as skipped")
	}
	if samples != nil {
		t.Error("skipped refresh returned samples")
	}
	coord.release("blue")

	cr, samples = coord.RefreshCategory(context.Background(), "blue")
	if cr.Skipped {
		t.Error("refresh skipped after release")
	}
	if len(samples) != 1 {
		t.Errorf("got %d samples, want 1", len(samples))
	}
}

func TestCoordinatorHonorsCategoryDeadline(t *testing.T) {
	fetcher := newFakeFetcher(func(ctx context.Context, req FetchRequest) (*FetchResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	catalog := NewCatalog(
		SourceDescriptor{Category: "blue", Tier: TierDirect, URL: sourceURL("slowhost.example", "one")},
		SourceDescriptor{Category: "blue", Tier: TierDirect, URL: sourceURL("slowhost.example", "two")},
	)
	coord := newTestCoordinator(t, fetcher, catalog, 1, 100*time.Millisecond)

	start := time.Now()
	cr, _ := coord.RefreshCategory(context.Background(), "blue")
	elapsed := time.Since(start)

	if cr.Failed == 0 {
		t.Error("deadline produced no failures")
	}
	if elapsed > 5*time.Second {
		t.Errorf("category ran %v past a 100ms deadline", elapsed)
	}
}

func TestCoordinatorBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	fetcher := newFakeFetcher(func(ctx context.Context, req FetchRequest) (*FetchResponse, error) {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return okAudio()
	})
	coord := newTestCoordinator(t, fetcher, testCatalog(), 1, 5*time.Second)

	coord.RefreshAll(context.Background())

	if got := peak.Load(); got > 1 {
		t.Errorf("peak concurrent transfers = %d, want at most 1", got)
	}
}

func TestCoordinatorReportsCacheHits(t *testing.T) {
	fetcher := newFakeFetcher(nil)
	coord := newTestCoordinator(t, fetcher, testCatalog(), 2, 5*time.Second)

	first, _ := coord.RefreshAll(context.Background())
	if first.TotalFetched() != 3 {
		t.Fatalf("first pass fetched %d, want 3", first.TotalFetched())
	}

	second, _ := coord.RefreshAll(context.Background())
	if second.TotalFetched() != 0 {
		t.Errorf("second pass fetched %d, want 0", second.TotalFetched())
	}
	hits := 0
	for _, cr := range second.Categories {
		hits += cr.Cached
	}
	if hits != 3 {
		t.Errorf("second pass had %d cache hits, want 3", hits)
	}
}
