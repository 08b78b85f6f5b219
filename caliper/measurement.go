package caliper

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/render"
)

// DefaultUnit is the amplitude unit used when the record does not name one.
const DefaultUnit = "mV"

// grouping printer for "10,000ms"
var printer = message.NewPrinter(language.English)

// Measurement is the geometry of one caliper rectangle plus its display text.
// X0 < X1 and Y0 < Y1 always hold.
type Measurement struct {
	X0 time.Duration
	X1 time.Duration
	Y0 float64
	Y1 float64

	TimeText      string
	AmplitudeText string
}

// NewMeasurement normalizes the corner coordinates and derives the text pair.
func NewMeasurement(x0, x1 time.Duration, y0, y1 float64, unit string) Measurement {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	if unit == "" {
		unit = DefaultUnit
	}
	return Measurement{
		X0:            x0,
		X1:            x1,
		Y0:            y0,
		Y1:            y1,
		TimeText:      FormatElapsed(x1 - x0),
		AmplitudeText: printer.Sprintf("%.1f%s", y1-y0, unit),
	}
}

// FromShape builds a measurement from a renderer shape.
func FromShape(s render.Shape, unit string) Measurement {
	return NewMeasurement(s.X0, s.X1, s.Y0, s.Y1, unit)
}

// FormatElapsed renders a duration as whole milliseconds with thousands grouping.
func FormatElapsed(d time.Duration) string {
	return printer.Sprintf("%dms", d.Round(time.Millisecond).Milliseconds())
}

// Elapsed returns X1 - X0.
func (m Measurement) Elapsed() time.Duration {
	return m.X1 - m.X0
}

// Delta returns Y1 - Y0.
func (m Measurement) Delta() float64 {
	return m.Y1 - m.Y0
}

// Center returns the midpoint of the rectangle.
func (m Measurement) Center() (time.Duration, float64) {
	return m.X0 + (m.X1-m.X0)/2, (m.Y0 + m.Y1) / 2
}

// Outside reports whether the rectangle lies entirely outside the window.
func (m Measurement) Outside(w render.Window) bool {
	return m.X1 <= w.Start || m.X0 >= w.End
}

// Shape returns the renderer rectangle for this measurement.
func (m Measurement) Shape(fill string) render.Shape {
	return render.Shape{X0: m.X0, X1: m.X1, Y0: m.Y0, Y1: m.Y1, Fill: fill}
}

// Annotations returns the elapsed-time label above the rectangle and the
// amplitude label to its right.
func (m Measurement) Annotations() []render.Annotation {
	cx, cy := m.Center()
	return []render.Annotation{
		{
			Kind:       render.KindCaliperTime,
			X:          cx,
			Y:          m.Y1,
			Position:   render.Above,
			Text:       m.TimeText,
			Background: render.AnnotationBackground,
		},
		{
			Kind:       render.KindCaliperAmplitude,
			X:          m.X1,
			Y:          cy,
			Position:   render.Inline,
			Text:       m.AmplitudeText,
			Background: render.AnnotationBackground,
		},
	}
}

const (
	timeTolerance      = time.Microsecond
	amplitudeTolerance = 1e-6
)

// sameGeometry compares rectangles with a tolerance that absorbs the
// millisecond float round trip through the renderer.
func (m Measurement) sameGeometry(o Measurement) bool {
	return absDuration(m.X0-o.X0) <= timeTolerance &&
		absDuration(m.X1-o.X1) <= timeTolerance &&
		absFloat(m.Y0-o.Y0) <= amplitudeTolerance &&
		absFloat(m.Y1-o.Y1) <= amplitudeTolerance
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
