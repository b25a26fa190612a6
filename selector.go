package samplepool

import "sort"

// Threshold maps every value at or below UpperBound to Category,
// unless a lower threshold claimed it first.
type Threshold struct {
	UpperBound float64
	Category   string
}

// Selector maps a continuous magnitude onto a sample category using an
// ordered threshold table. Values above every bound land in the
// fallback category.
type Selector struct {
	thresholds []Threshold
	fallback   string
}

// NewSelector builds a selector from a threshold table and a fallback
// category. The table is sorted by upper bound, so callers may list
// thresholds in any order.
func NewSelector(thresholds []Threshold, fallback string) *Selector {
	sorted := make([]Threshold, len(thresholds))
	copy(sorted, thresholds)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UpperBound < sorted[j].UpperBound
	})
	return &Selector{thresholds: sorted, fallback: fallback}
}

// CategoryFor returns the category owning the first threshold whose
// upper bound is at or above value.
func (s *Selector) CategoryFor(value float64) string {
	for _, t := range s.thresholds {
		if value <= t.UpperBound {
			return t.Category
		}
	}
	return s.fallback
}

// Categories returns every category the selector can produce, in
// threshold order with the fallback last.
func (s *Selector) Categories() []string {
	seen := make(map[string]bool, len(s.thresholds)+1)
	out := make([]string, 0, len(s.thresholds)+1)
	for _, t := range s.thresholds {
		if !seen[t.Category] {
			seen[t.Category] = true
			out = append(out, t.Category)
		}
	}
	if !seen[s.fallback] {
		out = append(out, s.fallback)
	}
	return out
}

// DefaultSelector maps a magnitude in kilobytes onto whale species,
// small values land on the small whales.
func DefaultSelector() *Selector {
	return NewSelector([]Threshold{
		{UpperBound: 64, Category: "minke"},
		{UpperBound: 256, Category: "humpback"},
		{UpperBound: 1024, Category: "gray"},
		{UpperBound: 4096, Category: "fin"},
		{UpperBound: 16384, Category: "blue"},
	}, "sperm")
}
