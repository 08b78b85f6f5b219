// Package errors provides standardized error handling for the annotation engine.
//
// # Overview
//
// Errors fall into three classes:
//
//   - Transient: the environment failed (comment storage unreachable, disk
//     permission, cancelled context). The gesture may be repeated.
//   - Invalid: the request cannot be honoured in the current state (stale
//     comment index, no measurement to comment on, unknown channel).
//   - Fatal: the renderer and the engine disagree about the shape-diff
//     protocol. Nothing local can repair it; the caller should stop feeding
//     gestures and reload the view.
//
// # Usage
//
// Wrap failures with component and method context:
//
//	if err := s.flush(ctx); err != nil {
//	    return errors.WrapTransient(err, "CommentStore", "Upsert", "flush comments")
//	}
//
// Decide on handling by class:
//
//	if _, err := engine.OnShapeEvent(ch, diff, views); err != nil {
//	    if errors.IsFatal(err) {
//	        // renderer protocol mismatch, reload the record
//	    }
//	}
//
// Classified errors keep the wrapped sentinel in their chain, so errors.Is
// from the standard library keeps working.
package errors
