package caliper

import (
	"maps"
	"slices"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/render"
)

// independent keeps one caliper per channel, created on first use.
type independent struct {
	unit     string
	channels map[int]*Channel
}

func newIndependent(unit string) *independent {
	return &independent{unit: unit, channels: make(map[int]*Channel)}
}

func (v *independent) mode() Mode {
	return ModeIndependent
}

func (v *independent) caliper(ch int) *Channel {
	c, ok := v.channels[ch]
	if !ok {
		c = NewChannel(ch, v.unit)
		v.channels[ch] = c
	}
	return c
}

func (v *independent) owns(entry, ch int) bool {
	return entry == ch
}

func (v *independent) recent(ch int) (*Channel, bool) {
	c, ok := v.channels[ch]
	return c, ok
}

func (v *independent) measurements(ch int) []Measurement {
	c, ok := v.channels[ch]
	if !ok {
		return nil
	}
	return c.Measurements()
}

func (v *independent) prune(w render.Window) map[int]PruneResult {
	out := make(map[int]PruneResult, len(v.channels))
	for _, ch := range slices.Sorted(maps.Keys(v.channels)) {
		out[ch] = v.channels[ch].Prune(w)
	}
	return out
}

func (v *independent) removeChannel(ch int) (int, bool) {
	c, ok := v.channels[ch]
	if !ok {
		return 0, true
	}
	delete(v.channels, ch)
	return c.Len(), true
}

func (v *independent) clear() {
	for _, c := range v.channels {
		c.Clear()
	}
	v.channels = make(map[int]*Channel)
}

func (v *independent) len() int {
	n := 0
	for _, c := range v.channels {
		n += c.Len()
	}
	return n
}
