// Package cascade runs refresh cycles over a plan of sources and layers.
//
// A cycle evaluates every source concurrently and runs the stale ones. Once
// every source result is in, layers are evaluated one at a time in plan
// order: a layer rebuilds when forced, when an upstream unit succeeded this
// cycle, or when an upstream timestamp moved past the snapshot recorded at
// its last build. Failures are confined to the unit that failed and surface
// only in the Report.
package cascade
