// Package ecgviewer keeps caliper measurements, event tags and free-text
// comments consistent while a user annotates a multi-channel ECG recording.
//
// The waveform renderer owns what is drawn. After every gesture it reports
// the shapes of one channel, the visible window or a button press; the
// annotation engine works out what changed and returns the next renderer
// state for the channels that need it.
//
// # Layout
//
//   - render: renderer state exchanged per gesture (window, shapes, annotations)
//   - record: recording metadata loaded from a YAML sidecar
//   - caliper: measurements, per-channel calipers and the caliper store
//   - tag: event tags positioned relative to the visible window
//   - comment: comments anchored to measurements, persisted per recording
//   - annotation: the engine combining the above behind one gesture API
//   - gateway: websocket sessions driving an engine per connection
//   - storage: file and NATS KeyValue backends for comment documents
//   - config, errors, metric, health, pkg/retry: ambient infrastructure
//
// The ecgannotate command serves the gateway or replays a recorded gesture
// script against a recording.
package ecgviewer
