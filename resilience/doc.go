// Package resilience provides the retry and concurrency-limiting patterns
// used by the task runner.
//
//   - Retry: re-runs a failing operation with linear or exponential backoff,
//     randomized by ±jitter, waiting on a timer so the caller stays cancelable.
//   - Bulkhead: a fixed pool of slots bounding how many task attempts run at
//     once, with usage stats.
//
// The two compose so that a slot is held only while an attempt runs:
//
//	bh := resilience.NewBulkhead(resilience.BulkheadConfig{Name: "tasks", MaxConcurrent: 4})
//	err := resilience.RetryFunc(ctx, cfg, func() error {
//	    return bh.Execute(ctx, attempt)
//	})
package resilience
