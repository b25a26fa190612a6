package samplepool

import (
	"sort"

	"github.com/driftwhale/samplepool/internal/cache"
)

// Tier describes how a source expects to be reached.
type Tier int

const (
	// TierDirect origins are fetched straight from their URL first
	TierDirect Tier = iota
	// TierRelayed origins are only reachable through a relay service
	TierRelayed
)

// String implements the Stringer interface
func (t Tier) String() string {
	switch t {
	case TierDirect:
		return "direct"
	case TierRelayed:
		return "relayed"
	default:
		return "unknown"
	}
}

// SourceDescriptor is one downloadable asset in the catalog.
type SourceDescriptor struct {
	Category string
	Tier     Tier
	URL      string
}

// Catalog is the static table of known sample sources, grouped by
// category. Within a category, direct-tier sources come before relayed
// ones and otherwise keep their declaration order.
type Catalog struct {
	byCategory map[string][]SourceDescriptor
	order      []string
}

// NewCatalog builds a catalog from descriptors, preserving category
// declaration order.
func NewCatalog(descriptors ...SourceDescriptor) *Catalog {
	c := &Catalog{byCategory: make(map[string][]SourceDescriptor)}
	for _, d := range descriptors {
		if _, ok := c.byCategory[d.Category]; !ok {
			c.order = append(c.order, d.Category)
		}
		c.byCategory[d.Category] = append(c.byCategory[d.Category], d)
	}
	for cat, descs := range c.byCategory {
		sort.SliceStable(descs, func(i, j int) bool {
			return descs[i].Tier < descs[j].Tier
		})
		c.byCategory[cat] = descs
	}
	return c
}

// Categories returns category names in declaration order.
func (c *Catalog) Categories() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Descriptors returns the ordered sources for a category.
func (c *Catalog) Descriptors(category string) []SourceDescriptor {
	descs := c.byCategory[category]
	out := make([]SourceDescriptor, len(descs))
	copy(out, descs)
	return out
}

// CacheableDescriptors returns the sources for a category whose URLs
// point at a recognized audio file, skipping listing pages and other
// endpoints that cannot be stored as-is.
func (c *Catalog) CacheableDescriptors(category string) []SourceDescriptor {
	var out []SourceDescriptor
	for _, d := range c.byCategory[category] {
		if cache.IsDirectFileURL(d.URL) {
			out = append(out, d)
		}
	}
	return out
}

// Has reports whether the catalog knows the category.
func (c *Catalog) Has(category string) bool {
	_, ok := c.byCategory[category]
	return ok
}

// Len returns the total number of descriptors.
func (c *Catalog) Len() int {
	n := 0
	for _, descs := range c.byCategory {
		n += len(descs)
	}
	return n
}

// DefaultCatalog lists recorded whale vocalizations, two origins per
// species. The archive.org mirrors tolerate direct fetches, the
// freesound CDN is fronted by an aggressive rate limiter and is pulled
// through relays instead.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		SourceDescriptor{Category: "minke", Tier: TierDirect, URL: "https://archive.org/download/whale-vocalizations/minke_boing_atlantic.mp3"},
		SourceDescriptor{Category: "minke", Tier: TierRelayed, URL: "https://cdn.freesound.org/previews/321/321503_5123451-hq.mp3"},
		SourceDescriptor{Category: "humpback", Tier: TierDirect, URL: "https://archive.org/download/whale-vocalizations/humpback_song_maui.mp3"},
		SourceDescriptor{Category: "humpback", Tier: TierRelayed, URL: "https://cdn.freesound.org/previews/415/415209_7866321-hq.mp3"},
		SourceDescriptor{Category: "gray", Tier: TierDirect, URL: "https://archive.org/download/whale-vocalizations/gray_whale_migration.mp3"},
		SourceDescriptor{Category: "gray", Tier: TierRelayed, URL: "https://cdn.freesound.org/previews/254/254784_4486188-hq.mp3"},
		SourceDescriptor{Category: "fin", Tier: TierDirect, URL: "https://archive.org/download/whale-vocalizations/fin_whale_pulses.mp3"},
		SourceDescriptor{Category: "fin", Tier: TierRelayed, URL: "https://cdn.freesound.org/previews/193/193170_2435678-hq.mp3"},
		SourceDescriptor{Category: "blue", Tier: TierDirect, URL: "https://archive.org/download/whale-vocalizations/blue_whale_52hz.mp3"},
		SourceDescriptor{Category: "blue", Tier: TierRelayed, URL: "https://cdn.freesound.org/previews/467/467905_9658741-hq.mp3"},
		SourceDescriptor{Category: "sperm", Tier: TierDirect, URL: "https://archive.org/download/whale-vocalizations/sperm_whale_clicks.mp3"},
		SourceDescriptor{Category: "sperm", Tier: TierRelayed, URL: "https://cdn.freesound.org/previews/398/398274_1153782-hq.mp3"},
	)
}
