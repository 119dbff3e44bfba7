// Package freshness records when each unit (source or layer) last completed
// successfully.
//
// A Record is overwritten on every success and never deleted. Writes are
// monotonic: a Put never moves LastSuccess backwards. Layer records also carry
// the upstream timestamps observed when the layer was built, which is what
// downstream staleness is decided from.
//
// Two backends implement Store: FileStore keeps one JSON document per unit and
// replaces it atomically; RedisStore keeps one key per unit and merges under
// WATCH. Every I/O failure is returned as a STORE_ERROR AppError and is never
// reported as an absent record.
package freshness
