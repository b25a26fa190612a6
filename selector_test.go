package samplepool

import "testing"

func TestSelectorThresholdBoundaries(t *testing.T) {
	s := NewSelector([]Threshold{
		{UpperBound: 30, Category: "a"},
		{UpperBound: 99, Category: "b"},
		{UpperBound: 999, Category: "c"},
	}, "d")

	cases := []struct {
		value float64
		want  string
	}{
		{0, "a"},
		{30, "a"},
		{31, "b"},
		{99, "b"},
		{100, "c"},
		{999, "c"},
		{1000, "d"},
		{1e9, "d"},
	}
	for _, tc := range cases {
		if got := s.CategoryFor(tc.value); got != tc.want {
			t.Errorf("CategoryFor(%v) = %q, want %q", tc.value, got, tc.want)
		}
	}
}

func TestSelectorSortsUnorderedThresholds(t *testing.T) {
	s := NewSelector([]Threshold{
		{UpperBound: 999, Category: "c"},
		{UpperBound: 30, Category: "a"},
		{UpperBound: 99, Category: "b"},
	}, "d")

	if got := s.CategoryFor(10); got != "a" {
		t.Errorf("CategoryFor(10) = %q, want %q", got, "a")
	}
	if got := s.CategoryFor(50); got != "b" {
		t.Errorf("CategoryFor(50) = %q, want %q", got, "b")
	}
}

func TestSelectorNoThresholds(t *testing.T) {
	s := NewSelector(nil, "only")
	if got := s.CategoryFor(42); got != "only" {
		t.Errorf("CategoryFor(42) = %q, want fallback", got)
	}
}

func TestSelectorCategories(t *testing.T) {
	s := NewSelector([]Threshold{
		{UpperBound: 10, Category: "a"},
		{UpperBound: 20, Category: "b"},
		{UpperBound: 30, Category: "a"},
	}, "z")

	got := s.Categories()
	want := []string{"a", "b", "z"}
	if len(got) != len(want) {
		t.Fatalf("Categories() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Categories() = %v, want %v", got, want)
		}
	}
}

func TestDefaultSelectorCoversDefaultCatalog(t *testing.T) {
	s := DefaultSelector()
	c := DefaultCatalog()
	for _, category := range s.Categories() {
		if !c.Has(category) {
			t.Errorf("selector category %q missing from the default catalog", category)
		}
	}
}
