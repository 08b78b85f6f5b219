// Package comment keeps the user comments of a recording.
//
// Comments are anchored to the coordinates a caliper measurement had when the
// comment was saved, so they outlive the measurement itself. The collection is
// kept sorted by key and persisted as one JSON document per recording:
//
//	[
//	    [100, 0, 90, -5, 2, "note A"],
//	    [2500, 0.4, 2200, -1.1, 0, "ST elevation"]
//	]
//
// Saving a comment whose key already exists replaces its text. Entries are
// addressed by position for removal; positions are only valid until the next
// mutation.
package comment
