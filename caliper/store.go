package caliper

import (
	"fmt"
	"slices"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/errors"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/render"
)

// Mode selects how calipers relate to channels.
type Mode int

const (
	// ModeIndependent keeps one caliper per channel.
	ModeIndependent Mode = iota
	// ModeSynchronized keeps one caliper drawn identically on every channel.
	ModeSynchronized
)

// SharedChannel is the channel key under which Synchronized mode reports
// evictions of the shared caliper.
const SharedChannel = -1

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeIndependent:
		return "independent"
	case ModeSynchronized:
		return "synchronized"
	default:
		return "unknown"
	}
}

// ParseMode converts a mode name back to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "independent":
		return ModeIndependent, nil
	case "synchronized", "sync":
		return ModeSynchronized, nil
	default:
		return ModeIndependent, errors.WrapInvalid(
			fmt.Errorf("%w: unknown caliper mode %q", errors.ErrInvalidConfig, s),
			"Mode", "Parse", "parse caliper mode")
	}
}

// variant is the per-mode caliper layout.
type variant interface {
	mode() Mode
	// caliper returns the caliper that handles gestures on ch.
	caliper(ch int) *Channel
	// owns reports whether a global edit-order entry belongs to the caliper
	// serving ch.
	owns(entry, ch int) bool
	// recent resolves the caliper holding the most recent measurement when
	// the global stack top names ch.
	recent(ch int) (*Channel, bool)
	measurements(ch int) []Measurement
	prune(w render.Window) map[int]PruneResult
	removeChannel(ch int) (removed int, ok bool)
	clear()
	len() int
}

// Ref locates a live measurement.
type Ref struct {
	// Channel holding the measurement. In Synchronized mode it is the
	// channel the measurement was last drawn or edited on.
	Channel     int
	Index       int
	Measurement Measurement
}

// Eviction reports what a window change removed.
type Eviction struct {
	// Removed maps each channel to its evicted positions. Synchronized mode
	// reports under SharedChannel.
	Removed map[int][]int
	// MostRecentEvicted is set when the most recent measurement was removed.
	MostRecentEvicted bool
}

// Any reports whether something was evicted.
func (e Eviction) Any() bool {
	return len(e.Removed) > 0
}

// Store runs the calipers of one recording in either mode and keeps a global
// edit order across channels: one entry per live measurement naming the
// channel it was last added or edited on, most recent last.
type Store struct {
	unit    string
	v       variant
	global  []int
	lastKey int
}

const noEdit = -2

// NewStore returns an empty store in the given mode.
func NewStore(mode Mode, unit string) *Store {
	s := &Store{unit: unit, lastKey: noEdit}
	s.v = s.newVariant(mode)
	return s
}

func (s *Store) newVariant(mode Mode) variant {
	if mode == ModeSynchronized {
		return newSynchronized(s.unit)
	}
	return newIndependent(s.unit)
}

// Mode returns the active mode.
func (s *Store) Mode() Mode {
	return s.v.mode()
}

// Len returns the number of live measurements.
func (s *Store) Len() int {
	return s.v.len()
}

// GlobalOrder returns a copy of the cross-channel edit order.
func (s *Store) GlobalOrder() []int {
	return slices.Clone(s.global)
}

// Update applies a shape diff reported on channel ch.
func (s *Store) Update(ch int, diff ShapeDiff) (Update, error) {
	c := s.v.caliper(ch)
	u, err := c.Update(diff)
	if err != nil {
		return u, err
	}

	key := c.Index()
	switch u.Change {
	case ChangeAdd:
		for range u.Count {
			s.global = append(s.global, ch)
		}
		u.MostRecentChanged = true
		s.lastKey = noEdit
	case ChangeEdit:
		pos := s.drop(ch, u.ranks[0])
		u.MostRecentChanged = pos != len(s.global)
		s.global = append(s.global, ch)
		u.Continued = u.Continued && s.lastKey == key
		s.lastKey = key
	case ChangeRemove:
		pos := s.drop(ch, u.ranks[0])
		u.MostRecentChanged = pos == len(s.global)
		s.lastKey = noEdit
	default:
		s.lastKey = noEdit
	}
	return u, nil
}

// drop removes the global entry for the measurement holding rank in the edit
// order of ch's caliper and returns the position it had.
func (s *Store) drop(ch, rank int) int {
	seen := 0
	for pos, entry := range s.global {
		if !s.v.owns(entry, ch) {
			continue
		}
		if seen == rank {
			s.global = slices.Delete(s.global, pos, pos+1)
			return pos
		}
		seen++
	}
	return -1
}

// MostRecent returns the most recently added or edited measurement.
func (s *Store) MostRecent() (Ref, bool) {
	if len(s.global) == 0 {
		return Ref{}, false
	}
	ch := s.global[len(s.global)-1]
	c, ok := s.v.recent(ch)
	if !ok {
		return Ref{}, false
	}
	i, ok := c.MostRecentIndex()
	if !ok {
		return Ref{}, false
	}
	m, _ := c.At(i)
	return Ref{Channel: ch, Index: i, Measurement: m}, true
}

// Measurements returns the measurements drawn on channel ch.
func (s *Store) Measurements(ch int) []Measurement {
	return s.v.measurements(ch)
}

// Prune evicts measurements lying entirely outside the window.
func (s *Store) Prune(w render.Window) Eviction {
	top := len(s.global) - 1
	results := s.v.prune(w)

	ev := Eviction{Removed: make(map[int][]int, len(results))}
	var positions []int
	for key, r := range results {
		if !r.Any() {
			continue
		}
		ev.Removed[key] = r.Removed
		positions = append(positions, s.positions(key, r.ranks)...)
	}
	if len(positions) == 0 {
		return ev
	}

	slices.Sort(positions)
	for k := len(positions) - 1; k >= 0; k-- {
		s.global = slices.Delete(s.global, positions[k], positions[k]+1)
	}
	ev.MostRecentEvicted = positions[len(positions)-1] == top
	s.lastKey = noEdit
	return ev
}

// positions maps edit-order ranks of the caliper under key to global stack
// positions.
func (s *Store) positions(key int, ranks []int) []int {
	want := make(map[int]bool, len(ranks))
	for _, r := range ranks {
		want[r] = true
	}
	var out []int
	seen := 0
	for pos, entry := range s.global {
		if !s.v.owns(entry, key) {
			continue
		}
		if want[seen] {
			out = append(out, pos)
		}
		seen++
	}
	return out
}

// ChannelRemoved drops the caliper of a channel that is no longer displayed
// and reports whether live measurements went with it. displayed lists the
// channels still shown.
//
// Synchronized mode keeps the shared caliper and always reports false. Edit
// order entries naming ch move to the most recent displayed channel that acted
// before it, or to the lowest displayed channel, so MostRecent never names a
// hidden channel while one is shown.
func (s *Store) ChannelRemoved(ch int, displayed []int) bool {
	removed, ok := s.v.removeChannel(ch)
	if !ok {
		s.repoint(ch, displayed)
		return false
	}
	s.global = slices.DeleteFunc(s.global, func(entry int) bool { return entry == ch })
	if s.lastKey == ch {
		s.lastKey = noEdit
	}
	return removed > 0
}

// repoint moves the edit order entries of ch onto another displayed channel.
func (s *Store) repoint(ch int, displayed []int) {
	target, found := -1, false
	for k := len(s.global) - 1; k >= 0; k-- {
		if e := s.global[k]; e != ch && slices.Contains(displayed, e) {
			target, found = e, true
			break
		}
	}
	if !found {
		for _, d := range displayed {
			if d != ch && (!found || d < target) {
				target, found = d, true
			}
		}
	}
	if !found {
		return
	}
	for k, e := range s.global {
		if e == ch {
			s.global[k] = target
		}
	}
}

// ToggleSync switches mode. Measurements of both modes are cleared; geometry
// is not carried across.
func (s *Store) ToggleSync() Mode {
	next := ModeSynchronized
	if s.v.mode() == ModeSynchronized {
		next = ModeIndependent
	}
	s.v.clear()
	s.v = s.newVariant(next)
	s.global = nil
	s.lastKey = noEdit
	return next
}

// Clear removes every measurement and keeps the mode.
func (s *Store) Clear() {
	s.v.clear()
	s.global = nil
	s.lastKey = noEdit
}
