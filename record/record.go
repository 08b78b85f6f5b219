// Package record describes the recording whose channels are being annotated.
//
// Waveform access lives elsewhere; the annotation engine only needs the
// sample clock, channel names, amplitude unit and the event tags.
package record

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/errors"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/tag"
)

// Source is what the annotation engine consumes from a loaded recording.
type Source interface {
	Name() string
	ChannelNames() []string
	AmplitudeUnit() string
	// CountToTime converts a sample count to an offset from recording start.
	CountToTime(count int64) time.Duration
	// TimeToCount converts an offset from recording start to the nearest sample.
	TimeToCount(t time.Duration) int64
	Tags() []tag.Tag
	// VisibleSampleWindow is the initial visible range, in samples.
	VisibleSampleWindow() (start, end int64)
}

// DefaultWindow is the initial visible range, in samples, when the metadata
// does not name one.
var DefaultWindow = [2]int64{0, 100000}

// TagMeta is a tag as stored in the metadata sidecar, located by sample.
type TagMeta struct {
	Category string `json:"category" yaml:"category"`
	Sample   int64  `json:"sample" yaml:"sample"`
	Text     string `json:"text" yaml:"text"`
}

// Meta is a fixed-rate recording described by a YAML or JSON sidecar:
//
//	name: holter-0412
//	sample_rate: 1000
//	unit: mV
//	channels: [I, II, V1]
//	window: [0, 30000]
//	tags:
//	  - {category: rhythm, sample: 12000, text: AF onset}
type Meta struct {
	Recording  string    `json:"name" yaml:"name"`
	SampleRate float64   `json:"sample_rate" yaml:"sample_rate"`
	Unit       string    `json:"unit" yaml:"unit"`
	Channels   []string  `json:"channels" yaml:"channels"`
	Samples    int64     `json:"samples,omitempty" yaml:"samples,omitempty"`
	Window     []int64   `json:"window,omitempty" yaml:"window,omitempty"`
	TagList    []TagMeta `json:"tags,omitempty" yaml:"tags,omitempty"`
}

var _ Source = (*Meta)(nil)

// LoadMeta reads a sidecar. Files ending in .json are decoded as JSON,
// anything else as YAML. A missing name defaults to the file's base name.
func LoadMeta(path string) (*Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: %s", errors.ErrConfigNotFound, path), "record", "LoadMeta", "read metadata")
		}
		return nil, errors.WrapTransient(err, "record", "LoadMeta", "read metadata")
	}

	var m Meta
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &m)
	} else {
		err = yaml.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err), "record", "LoadMeta", "decode metadata")
	}

	if m.Recording == "" {
		base := filepath.Base(path)
		m.Recording = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the sample clock, channel list, window and tag order.
func (m *Meta) Validate() error {
	var problem string
	switch {
	case m.SampleRate <= 0 || math.IsNaN(m.SampleRate) || math.IsInf(m.SampleRate, 0):
		problem = fmt.Sprintf("sample_rate must be positive, got %v", m.SampleRate)
	case len(m.Channels) == 0:
		problem = "at least one channel is required"
	case len(m.Window) != 0 && len(m.Window) != 2:
		problem = fmt.Sprintf("window needs a start and an end, got %d values", len(m.Window))
	case len(m.Window) == 2 && m.Window[1] <= m.Window[0]:
		problem = fmt.Sprintf("window end %d not after start %d", m.Window[1], m.Window[0])
	default:
		for i := 1; i < len(m.TagList); i++ {
			if m.TagList[i].Sample < m.TagList[i-1].Sample {
				problem = fmt.Sprintf("tag %d at sample %d precedes tag %d at sample %d",
					i, m.TagList[i].Sample, i-1, m.TagList[i-1].Sample)
				break
			}
		}
	}
	if problem != "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, problem), "record", "Validate", "check metadata")
	}
	return nil
}

// Name returns the recording name.
func (m *Meta) Name() string { return m.Recording }

// ChannelNames returns the channel labels in display order.
func (m *Meta) ChannelNames() []string { return append([]string(nil), m.Channels...) }

// AmplitudeUnit returns the unit of the channel values.
func (m *Meta) AmplitudeUnit() string {
	if m.Unit == "" {
		return "mV"
	}
	return m.Unit
}

// CountToTime truncates to whole microseconds.
func (m *Meta) CountToTime(count int64) time.Duration {
	us := float64(count) * 1e6 / m.SampleRate
	return time.Duration(int64(us)) * time.Microsecond
}

// TimeToCount rounds to the nearest sample.
func (m *Meta) TimeToCount(t time.Duration) int64 {
	return int64(math.Round(t.Seconds() * m.SampleRate))
}

// Tags converts the sidecar tags to time-located tags.
func (m *Meta) Tags() []tag.Tag {
	out := make([]tag.Tag, 0, len(m.TagList))
	for _, t := range m.TagList {
		out = append(out, tag.Tag{Category: t.Category, Time: m.CountToTime(t.Sample), Text: t.Text})
	}
	return out
}

// VisibleSampleWindow returns the configured window, or DefaultWindow clipped
// to the recording length.
func (m *Meta) VisibleSampleWindow() (int64, int64) {
	if len(m.Window) == 2 {
		return m.Window[0], m.Window[1]
	}
	start, end := DefaultWindow[0], DefaultWindow[1]
	if m.Samples > 0 && end > m.Samples {
		end = m.Samples
	}
	return start, end
}
