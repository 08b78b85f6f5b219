// Package config loads the ecgannotate configuration.
//
// Configuration is built in three steps: built-in defaults, zero or more JSON
// file layers merged key by key, then ECGVIEW_* environment overrides. The
// result is validated unless validation is disabled on the Loader.
//
//	{
//	    "record":   {"meta": "data/holter-0412.yaml"},
//	    "comments": {"backend": "nats", "nats": {"url": "nats://localhost:4222", "bucket": "ecg_annotations", "timeout": "3s"}},
//	    "calipers": {"mode": "synchronized"},
//	    "server":   {"addr": ":8050", "ws_path": "/ws", "metrics_path": "/metrics", "health_path": "/healthz", "shutdown_timeout": "5s"},
//	    "log":      {"level": "debug", "format": "json"}
//	}
//
// Durations may be given as Go duration strings. Environment overrides:
//
//	ECGVIEW_RECORD_META
//	ECGVIEW_COMMENTS_BACKEND, ECGVIEW_COMMENTS_DIR
//	ECGVIEW_NATS_URL, ECGVIEW_NATS_BUCKET
//	ECGVIEW_CALIPER_MODE
//	ECGVIEW_SERVER_ADDR
//	ECGVIEW_LOG_LEVEL, ECGVIEW_LOG_FORMAT
package config
