package annotation

import (
	"fmt"
	"time"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/caliper"
)

// Label describes the measurement a new comment would attach to. The zero
// Label means there is none.
type Label struct {
	Channel   string `json:"channel"`
	Time      string `json:"time"`
	Amplitude string `json:"amplitude"`
}

// Empty reports whether no measurement is labelled.
func (l Label) Empty() bool {
	return l == Label{}
}

// String joins the fields for log lines.
func (l Label) String() string {
	if l.Empty() {
		return ""
	}
	return fmt.Sprintf("%s %s %s", l.Channel, l.Time, l.Amplitude)
}

func newLabel(channel string, m caliper.Measurement, unit string) Label {
	if unit == "" {
		unit = caliper.DefaultUnit
	}
	return Label{
		Channel:   channel,
		Time:      fmt.Sprintf("%s - %s", clock(m.X0), clock(m.X1)),
		Amplitude: fmt.Sprintf("%.2f ~ %.2f %s", m.Y0, m.Y1, unit),
	}
}

// clock formats an offset from recording start as hh:mm:ss.mmm.
func clock(d time.Duration) string {
	neg := d < 0
	if neg {
		d = -d
	}
	ms := d.Round(time.Millisecond).Milliseconds()
	s := fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3600000, ms/60000%60, ms/1000%60, ms%1000)
	if neg {
		return "-" + s
	}
	return s
}
