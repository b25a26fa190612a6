// Package samplepool discovers, downloads, validates, decodes, and
// persistently caches categorized audio samples from unreliable remote
// origins, then serves them to a playback layer by category or by a
// mapped continuous value.
//
// The package is built around a Manager that owns a disk-backed cache
// index, per-category in-memory sample pools, and a background refresh
// worker. Acquisition never happens at startup; it runs only when a
// refresh is triggered or when an empty pool requests samples on
// demand. Downloads go direct first and fall back through a fixed
// chain of relay services, with retry classification and per-host
// pacing along the way.
package samplepool
