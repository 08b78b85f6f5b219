package comment

import (
	"cmp"
	"encoding/json"
	"fmt"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/errors"
)

// Comment is a note anchored to the coordinates of a caliper measurement.
// Times are sample counts from the start of the recording. The first five
// fields form the key; two comments with equal keys are the same comment.
type Comment struct {
	CenterTime      int64
	CenterAmplitude float64
	OriginTime      int64
	OriginAmplitude float64
	Channel         int
	Text            string
}

// Key is the identifying part of a comment.
type Key struct {
	CenterTime      int64
	CenterAmplitude float64
	OriginTime      int64
	OriginAmplitude float64
	Channel         int
}

// Key returns the identifying fields.
func (c Comment) Key() Key {
	return Key{
		CenterTime:      c.CenterTime,
		CenterAmplitude: c.CenterAmplitude,
		OriginTime:      c.OriginTime,
		OriginAmplitude: c.OriginAmplitude,
		Channel:         c.Channel,
	}
}

// Compare orders keys field by field.
func (k Key) Compare(o Key) int {
	if c := cmp.Compare(k.CenterTime, o.CenterTime); c != 0 {
		return c
	}
	if c := cmp.Compare(k.CenterAmplitude, o.CenterAmplitude); c != 0 {
		return c
	}
	if c := cmp.Compare(k.OriginTime, o.OriginTime); c != 0 {
		return c
	}
	if c := cmp.Compare(k.OriginAmplitude, o.OriginAmplitude); c != 0 {
		return c
	}
	return cmp.Compare(k.Channel, o.Channel)
}

// compare orders by key, then text.
func compare(a, b Comment) int {
	if c := a.Key().Compare(b.Key()); c != 0 {
		return c
	}
	return cmp.Compare(a.Text, b.Text)
}

// MarshalJSON encodes the comment as
// [centerTime, centerAmplitude, originTime, originAmplitude, channel, text].
func (c Comment) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{c.CenterTime, c.CenterAmplitude, c.OriginTime, c.OriginAmplitude, c.Channel, c.Text})
}

// UnmarshalJSON decodes the six element array form.
func (c *Comment) UnmarshalJSON(data []byte) error {
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return corrupted("comment is not an array: %v", err)
	}
	if len(fields) != 6 {
		return corrupted("comment has %d fields, want 6", len(fields))
	}

	var out Comment
	var centerTime, originTime float64
	targets := []any{&centerTime, &out.CenterAmplitude, &originTime, &out.OriginAmplitude, &out.Channel, &out.Text}
	for i, target := range targets {
		if err := json.Unmarshal(fields[i], target); err != nil {
			return corrupted("comment field %d: %v", i, err)
		}
	}
	// sample counts may have been written as floats
	out.CenterTime = int64(centerTime)
	out.OriginTime = int64(originTime)
	*c = out
	return nil
}

func corrupted(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errors.ErrDataCorrupted, fmt.Sprintf(format, args...))
}

// Brief is the abbreviated projection shown in comment lists.
type Brief struct {
	CenterTime int64  `json:"center_time"`
	Channel    int    `json:"channel"`
	Text       string `json:"text"`
}

// Entry pairs a comment with its position in the store. Positions are valid
// until the next mutation.
type Entry struct {
	Index   int     `json:"index"`
	Comment Comment `json:"comment"`
}

// Brief returns the abbreviated projection.
func (e Entry) Brief() Brief {
	return Brief{CenterTime: e.Comment.CenterTime, Channel: e.Comment.Channel, Text: e.Comment.Text}
}

// Unbounded disables a Query bound.
const Unbounded int64 = -1

// Query selects comments on a set of channels whose center time lies in
// [Start, End]. A bound equal to Unbounded is not applied.
type Query struct {
	Channels []int
	Start    int64
	End      int64
}

// All returns a query over the whole recording for the channels.
func All(channels ...int) Query {
	return Query{Channels: channels, Start: Unbounded, End: Unbounded}
}
