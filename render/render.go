// Package render defines the state exchanged with the waveform renderer: the
// visible time window, caliper shapes and annotation markers per channel.
//
// The renderer owns this state. The annotation engine receives it with every
// gesture and returns the next state; it never keeps references across calls.
package render

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/errors"
)

// Fill colours for caliper rectangles.
const (
	CaliperFill       = "rgba(253, 203, 113, 0.51)"
	CaliperFillActive = "rgba(252, 169, 18, 0.51)"
)

// Background colours for annotation labels.
const (
	AnnotationBackground            = "rgba(192, 192, 192, 0.3)"
	AnnotationBackgroundHighlighted = "rgba(252, 169, 18, 0.3)"
)

// Window is the visible time range, as offsets from the start of the recording.
type Window struct {
	Start time.Duration
	End   time.Duration
}

// NewWindow returns the window [start, end).
func NewWindow(start, end time.Duration) (Window, error) {
	w := Window{Start: start, End: end}
	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

// Validate checks that the window is non-empty.
func (w Window) Validate() error {
	if w.End <= w.Start {
		return errors.WrapInvalid(
			fmt.Errorf("%w: end %v not after start %v", errors.ErrInvalidWindow, w.End, w.Start),
			"Window", "Validate", "window bounds check")
	}
	return nil
}

// Contains reports whether t lies in [Start, End).
func (w Window) Contains(t time.Duration) bool {
	return t >= w.Start && t < w.End
}

// Overlaps reports whether the closed range [x0, x1] shares any time with the
// window interior.
func (w Window) Overlaps(x0, x1 time.Duration) bool {
	return x1 > w.Start && x0 < w.End
}

type windowJSON struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// MarshalJSON encodes the bounds as milliseconds.
func (w Window) MarshalJSON() ([]byte, error) {
	return json.Marshal(windowJSON{Start: Millis(w.Start), End: Millis(w.End)})
}

// UnmarshalJSON decodes bounds given in milliseconds.
func (w *Window) UnmarshalJSON(data []byte) error {
	var raw windowJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*w = Window{Start: FromMillis(raw.Start), End: FromMillis(raw.End)}
	return nil
}

// Width returns End - Start.
func (w Window) Width() time.Duration {
	return w.End - w.Start
}

// Shape is one caliper rectangle as the renderer draws it.
type Shape struct {
	X0   time.Duration
	X1   time.Duration
	Y0   float64
	Y1   float64
	Fill string
}

type shapeJSON struct {
	X0   float64 `json:"x0"`
	X1   float64 `json:"x1"`
	Y0   float64 `json:"y0"`
	Y1   float64 `json:"y1"`
	Fill string  `json:"fillcolor,omitempty"`
}

// MarshalJSON encodes x coordinates as milliseconds.
func (s Shape) MarshalJSON() ([]byte, error) {
	return json.Marshal(shapeJSON{
		X0:   Millis(s.X0),
		X1:   Millis(s.X1),
		Y0:   s.Y0,
		Y1:   s.Y1,
		Fill: s.Fill,
	})
}

// UnmarshalJSON decodes x coordinates given in milliseconds.
func (s *Shape) UnmarshalJSON(data []byte) error {
	var raw shapeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Shape{
		X0:   FromMillis(raw.X0),
		X1:   FromMillis(raw.X1),
		Y0:   raw.Y0,
		Y1:   raw.Y1,
		Fill: raw.Fill,
	}
	return nil
}

// Position places an annotation relative to the trace baseline.
type Position string

// Annotation positions.
const (
	Above  Position = "above"
	Below  Position = "below"
	Inline Position = "inline"
)

// Kind identifies what produced an annotation.
type Kind string

// Annotation kinds.
const (
	KindTag              Kind = "tag"
	KindCaliperTime      Kind = "caliper_time"
	KindCaliperAmplitude Kind = "caliper_amplitude"
)

// Annotation is a text marker drawn over a channel trace.
type Annotation struct {
	Kind        Kind          `json:"kind"`
	X           time.Duration `json:"-"`
	Y           float64       `json:"y"`
	Position    Position      `json:"position"`
	Text        string        `json:"text"`
	Highlighted bool          `json:"highlighted,omitempty"`
	Background  string        `json:"bgcolor"`
}

// MarshalJSON encodes X as milliseconds.
func (a Annotation) MarshalJSON() ([]byte, error) {
	type plain Annotation
	return json.Marshal(struct {
		plain
		X float64 `json:"x"`
	}{plain: plain(a), X: Millis(a.X)})
}

// UnmarshalJSON decodes X given in milliseconds.
func (a *Annotation) UnmarshalJSON(data []byte) error {
	type plain Annotation
	var raw struct {
		plain
		X float64 `json:"x"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Annotation(raw.plain)
	a.X = FromMillis(raw.X)
	return nil
}

// ChannelView is the renderer state of one displayed channel.
type ChannelView struct {
	Shapes      []Shape      `json:"shapes"`
	Annotations []Annotation `json:"annotations"`
}

// Clone returns a deep copy of the view.
func (v ChannelView) Clone() ChannelView {
	return ChannelView{
		Shapes:      append([]Shape(nil), v.Shapes...),
		Annotations: append([]Annotation(nil), v.Annotations...),
	}
}

// Millis converts a duration to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// FromMillis converts fractional milliseconds to a duration.
func FromMillis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
