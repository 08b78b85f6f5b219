// Package retry repeats operations that failed for environmental reasons.
//
// Only errors classified as transient by the errors package are retried;
// invalid and fatal errors are returned at once. The backoff is exponential
// with optional jitter and stops early when the context is done.
//
//	store, err := retry.DoWithResult(ctx, retry.Startup(), func() (*kvstore.Store, error) {
//		return dial(ctx, cfg)
//	})
//
// Comment writes are not retried: a failed write is reported to the user,
// who repeats the action.
package retry
