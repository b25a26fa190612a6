package samplepool

import (
	"net/url"
	"testing"
)

func TestCatalogDirectTierComesFirst(t *testing.T) {
	c := NewCatalog(
		SourceDescriptor{Category: "blue", Tier: TierRelayed, URL: "https://r.example/one.mp3"},
		SourceDescriptor{Category: "blue", Tier: TierDirect, URL: "https://d.example/two.mp3"},
		SourceDescriptor{Category: "blue", Tier: TierRelayed, URL: "https://r.example/three.mp3"},
		SourceDescriptor{Category: "blue", Tier: TierDirect, URL: "https://d.example/four.mp3"},
	)

	descs := c.Descriptors("blue")
	if len(descs) != 4 {
		t.Fatalf("got %d descriptors, want 4", len(descs))
	}
	wantOrder := []string{
		"https://d.example/two.mp3",
		"https://d.example/four.mp3",
		"https://r.example/one.mp3",
		"https://r.example/three.mp3",
	}
	for i, want := range wantOrder {
		if descs[i].URL != want {
			t.Errorf("descriptor %d = %s, want %s", i, descs[i].URL, want)
		}
	}
}

func TestCatalogCategoriesKeepDeclarationOrder(t *testing.T) {
	c := NewCatalog(
		SourceDescriptor{Category: "fin", Tier: TierDirect, URL: "https://x.example/a.mp3"},
		SourceDescriptor{Category: "blue", Tier: TierDirect, URL: "https://x.example/b.mp3"},
		SourceDescriptor{Category: "fin", Tier: TierDirect, URL: "https://x.example/c.mp3"},
	)

	got := c.Categories()
	if len(got) != 2 || got[0] != "fin" || got[1] != "blue" {
		t.Fatalf("Categories() = %v, want [fin blue]", got)
	}
}

func TestCatalogCacheableDescriptorsFiltersNonFiles(t *testing.T) {
	c := NewCatalog(
		SourceDescriptor{Category: "blue", Tier: TierDirect, URL: "https://x.example/song.mp3"},
		SourceDescriptor{Category: "blue", Tier: TierDirect, URL: "https://x.example/browse/whales"},
		SourceDescriptor{Category: "blue", Tier: TierDirect, URL: "https://x.example/page.html"},
		SourceDescriptor{Category: "blue", Tier: TierDirect, URL: "https://x.example/deep.wav?token=abc"},
	)

	cacheable := c.CacheableDescriptors("blue")
	if len(cacheable) != 2 {
		t.Fatalf("got %d cacheable descriptors, want 2: %v", len(cacheable), cacheable)
	}
	for _, d := range cacheable {
		if d.URL == "https://x.example/browse/whales" || d.URL == "https://x.example/page.html" {
			t.Errorf("non-file URL survived the filter: %s", d.URL)
		}
	}
}

func TestCatalogUnknownCategory(t *testing.T) {
	c := NewCatalog()
	if c.Has("nothing") {
		t.Error("empty catalog claims to have a category")
	}
	if descs := c.Descriptors("nothing"); len(descs) != 0 {
		t.Errorf("unknown category returned %d descriptors", len(descs))
	}
	if cacheable := c.CacheableDescriptors("nothing"); len(cacheable) != 0 {
		t.Errorf("unknown category returned %d cacheable descriptors", len(cacheable))
	}
}

func TestDefaultCatalogIsWellFormed(t *testing.T) {
	c := DefaultCatalog()
	categories := c.Categories()
	if len(categories) == 0 {
		t.Fatal("default catalog is empty")
	}
	for _, category := range categories {
		descs := c.Descriptors(category)
		if len(descs) < 2 {
			t.Errorf("category %q has %d sources, want at least 2", category, len(descs))
		}
		cacheable := c.CacheableDescriptors(category)
		if len(cacheable) == 0 {
			t.Errorf("category %q has no cacheable sources", category)
		}
		for _, d := range descs {
			u, err := url.Parse(d.URL)
			if err != nil || u.Scheme != "https" || u.Host == "" {
				t.Errorf("category %q has a malformed URL: %s", category, d.URL)
			}
			if d.Tier != TierDirect && d.Tier != TierRelayed {
				t.Errorf("category %q has an unknown tier: %v", category, d.Tier)
			}
		}
	}
}

func TestTierString(t *testing.T) {
	if TierDirect.String() != "direct" || TierRelayed.String() != "relayed" {
		t.Errorf("tier strings wrong: %s, %s", TierDirect, TierRelayed)
	}
	if Tier(99).String() != "unknown" {
		t.Errorf("out-of-range tier = %s, want unknown", Tier(99))
	}
}
