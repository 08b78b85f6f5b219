// Package tag places the event markers of a recording over the visible window.
package tag

import (
	"fmt"
	"sort"
	"time"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/errors"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/render"
)

// Tag is an event marker imported with the recording.
type Tag struct {
	Category string        `json:"category" yaml:"category"`
	Time     time.Duration `json:"time" yaml:"time"`
	Text     string        `json:"text" yaml:"text"`
}

// NoHighlight selects no tag for highlighting.
const NoHighlight = -1

// Overlay is the fixed, time-ordered tag sequence of one recording. A tag is
// identified by its position in the sequence.
type Overlay struct {
	tags []Tag
}

// NewOverlay copies the tags in the order given, which must be by time. The
// positions used by InRange, At and Window are positions in that input.
func NewOverlay(tags []Tag) (*Overlay, error) {
	for i := 1; i < len(tags); i++ {
		if tags[i].Time < tags[i-1].Time {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: tag %d at %v precedes tag %d at %v",
					errors.ErrInvalidConfig, i, tags[i].Time, i-1, tags[i-1].Time),
				"Overlay", "New", "check tag order")
		}
	}
	return &Overlay{tags: append([]Tag(nil), tags...)}, nil
}

// Len returns the number of tags.
func (o *Overlay) Len() int {
	return len(o.tags)
}

// At returns the tag at position i.
func (o *Overlay) At(i int) (Tag, bool) {
	if i < 0 || i >= len(o.tags) {
		return Tag{}, false
	}
	return o.tags[i], true
}

// InRange returns one marker per tag in [w.Start, w.End). Markers alternate
// above and below the trace by their position in the whole sequence, so the
// pattern does not shift while scrolling. The tag at position highlighted is
// drawn with the highlight background.
func (o *Overlay) InRange(w render.Window, highlighted int) []render.Annotation {
	lo := sort.Search(len(o.tags), func(i int) bool { return o.tags[i].Time >= w.Start })
	hi := sort.Search(len(o.tags), func(i int) bool { return o.tags[i].Time >= w.End })
	if lo >= hi {
		return nil
	}

	out := make([]render.Annotation, 0, hi-lo)
	for i := lo; i < hi; i++ {
		t := o.tags[i]
		a := render.Annotation{
			Kind:       render.KindTag,
			X:          t.Time,
			Position:   render.Above,
			Text:       t.Text,
			Background: render.AnnotationBackground,
		}
		if i%2 == 1 {
			a.Position = render.Below
		}
		if i == highlighted {
			a.Highlighted = true
			a.Background = render.AnnotationBackgroundHighlighted
		}
		out = append(out, a)
	}
	return out
}

// Window returns a window of the given width centred on tag i, clamped so it
// does not start before the recording.
func (o *Overlay) Window(i int, width time.Duration) (render.Window, bool) {
	t, ok := o.At(i)
	if !ok || width <= 0 {
		return render.Window{}, false
	}
	start := t.Time - width/2
	if start < 0 {
		start = 0
	}
	return render.Window{Start: start, End: start + width}, true
}
