// Package annotation is the single entry point of the rendering layer into
// the annotation state of one recording.
//
// An Engine owns the calipers, the tag overlay, the visible window and the
// set of displayed channels, and writes comments through a comment.Store.
// Every gesture takes the caller's per-channel render state and returns a
// Result holding fresh copies of it with the affected channels rebuilt:
//
//	eng, err := annotation.NewEngine(meta, comments, annotation.WithMode(caliper.ModeSynchronized))
//	res, err := eng.OnShapeEvent(1, diff, views)
//	if res.ResetComposer {
//		// start a new comment for res.Label
//	}
//
// Engine is not safe for concurrent use. Transports that deliver gestures
// concurrently serialize them first (see gateway.Session).
package annotation
