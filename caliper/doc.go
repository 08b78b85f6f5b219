// Package caliper tracks the rectangular measurements drawn over channel
// traces.
//
// The renderer never says what the user did. After every gesture it reports
// either its whole shape collection for a channel or the new corners of one
// shape, and Channel.Update works out whether a shape was added, removed or
// moved by comparing that report with the shapes it already holds. Shapes are
// assumed to be appended at the end of the collection.
//
// Store runs the calipers in one of two modes:
//
//   - ModeIndependent: each channel has its own caliper.
//   - ModeSynchronized: one caliper is drawn identically on every channel.
//
// In both modes Store keeps a global edit order so the most recently added or
// edited measurement can always be found, and a comment can be attached to it.
// Switching mode discards all measurements.
//
// Nothing in this package is safe for concurrent use.
package caliper
