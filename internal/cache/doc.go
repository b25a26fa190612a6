// Package cache provides the persistent sample store: a JSON manifest
// mapping source keys to local files, atomic asset writes under a
// per-category directory layout, legacy-layout migration, and a
// swappable eviction strategy.
package cache
