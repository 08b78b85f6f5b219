// Package health reports whether the annotation server can do its work.
//
// A Monitor holds named probes. Each probe checks one dependency, such as the
// comment backend, and returns nil when it is usable. Check runs every probe
// and aggregates the results:
//   - Healthy: every probe passed
//   - Degraded: a probe registered as optional failed
//   - Unhealthy: a required probe failed
//
// Error messages are sanitized before they leave the process, so URLs, paths
// and credentials from backend errors are not exposed on the endpoint.
//
//	monitor := health.NewMonitor()
//	monitor.Require("comments", func(ctx context.Context) error {
//		_, err := backend.List(ctx, "")
//		return err
//	})
//	mux.Handle("/healthz", monitor.Handler())
package health
