// Package metric provides Prometheus metrics for the annotation engine.
//
// A MetricsRegistry owns a private prometheus.Registry holding the engine
// metrics (Metrics) plus the Go runtime and process collectors. Components
// receive the *Metrics and record through its nil-safe methods, so tests and
// embedders that do not care about metrics can pass nil.
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	engine := annotation.NewEngine(src, comments,
//	    annotation.WithMetrics(registry.CoreMetrics()))
//
//	mux := http.NewServeMux()
//	registry.Mount(mux, "/metrics")
//
// # Metrics
//
//	ecgannotate_caliper_changes_total{mode,change}
//	ecgannotate_caliper_evictions_total{mode}
//	ecgannotate_caliper_mode_switches_total{mode}
//	ecgannotate_caliper_protocol_violations_total
//	ecgannotate_caliper_live_measurements
//	ecgannotate_comments_writes_total{operation,status}
//	ecgannotate_comments_flush_duration_seconds
//	ecgannotate_comments_stored
//	ecgannotate_gateway_gestures_total{type,status}
//	ecgannotate_gateway_gesture_duration_seconds{type}
//	ecgannotate_gateway_active_sessions
package metric
