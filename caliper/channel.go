package caliper

import (
	"fmt"
	"slices"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/errors"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/render"
)

// Change is the operation inferred from a shape diff.
type Change int

const (
	// ChangeNone means the diff did not alter the caliper.
	ChangeNone Change = iota
	// ChangeAdd means one or more shapes were appended.
	ChangeAdd
	// ChangeEdit means one shape was moved or resized in place.
	ChangeEdit
	// ChangeRemove means one shape was deleted.
	ChangeRemove
)

// String returns the label used in logs and metrics.
func (c Change) String() string {
	switch c {
	case ChangeNone:
		return "none"
	case ChangeAdd:
		return "add"
	case ChangeEdit:
		return "edit"
	case ChangeRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Update describes what a shape diff did to a caliper.
type Update struct {
	Change Change
	// Index is the first appended, the edited or the removed position; -1
	// when nothing changed.
	Index int
	Count int
	// Continued is set on an edit of the same index the previous call edited.
	Continued bool
	// MostRecentChanged is set by Store when the most recent measurement is
	// a different one after the update.
	MostRecentChanged bool

	// edit-order ranks held by the touched measurements before the update
	ranks []int
}

// PruneResult reports a window eviction.
type PruneResult struct {
	// Removed holds the evicted positions in ascending order, numbered as they
	// were before the eviction.
	Removed []int
	// MostRecentSurvived is true when the caliper had a most recent
	// measurement and it was not evicted.
	MostRecentSurvived bool

	ranks []int
}

// Any reports whether something was evicted.
func (r PruneResult) Any() bool {
	return len(r.Removed) > 0
}

// Channel tracks the caliper shapes drawn on one channel. Measurements are
// addressed by the renderer's shape position; the edit order lists live
// positions with the most recently added or edited last.
type Channel struct {
	index        int
	unit         string
	measurements []Measurement
	order        []int
	lastEdit     int
}

// NewChannel returns an empty caliper for the channel.
func NewChannel(index int, unit string) *Channel {
	return &Channel{index: index, unit: unit, lastEdit: -1}
}

// Index returns the channel index.
func (c *Channel) Index() int {
	return c.index
}

// Len returns the number of live measurements.
func (c *Channel) Len() int {
	return len(c.measurements)
}

// At returns the measurement at position i.
func (c *Channel) At(i int) (Measurement, bool) {
	if i < 0 || i >= len(c.measurements) {
		return Measurement{}, false
	}
	return c.measurements[i], true
}

// Measurements returns a copy of the live measurements in render order.
func (c *Channel) Measurements() []Measurement {
	return slices.Clone(c.measurements)
}

// EditOrder returns a copy of the edit-order stack, most recent last.
func (c *Channel) EditOrder() []int {
	return slices.Clone(c.order)
}

// MostRecentIndex returns the position on top of the edit-order stack.
func (c *Channel) MostRecentIndex() (int, bool) {
	if len(c.order) == 0 {
		return -1, false
	}
	return c.order[len(c.order)-1], true
}

// Update classifies the diff against the stored shapes and applies it.
//
// A collection with more shapes than stored appends the trailing shapes. A
// collection with exactly one fewer removes the first position whose geometry
// no longer matches, or the last one when all compared positions match. An
// edit payload replaces the named position and moves it to the top of the
// edit order. Any other shape of payload is a protocol violation and leaves
// the caliper untouched.
func (c *Channel) Update(diff ShapeDiff) (Update, error) {
	if diff.IsEdit() {
		return c.edit(*diff.Edit)
	}

	incoming := diff.Shapes
	stored := len(c.measurements)
	switch n := len(incoming); {
	case n > stored:
		return c.add(incoming[stored:], stored), nil
	case n == stored-1:
		return c.remove(incoming), nil
	case n < stored-1:
		return Update{}, errors.WrapFatal(
			fmt.Errorf("%w: channel %d holds %d shapes, renderer reports %d",
				errors.ErrProtocolViolation, c.index, stored, n),
			"Channel", "Update", "classify shape diff")
	default:
		c.lastEdit = -1
		return Update{Change: ChangeNone, Index: -1}, nil
	}
}

func (c *Channel) add(shapes []render.Shape, first int) Update {
	for i, s := range shapes {
		c.measurements = append(c.measurements, FromShape(s, c.unit))
		c.order = append(c.order, first+i)
	}
	c.lastEdit = -1
	return Update{Change: ChangeAdd, Index: first, Count: len(shapes)}
}

func (c *Channel) remove(incoming []render.Shape) Update {
	removed := len(c.measurements) - 1
	for i, s := range incoming {
		if !c.measurements[i].sameGeometry(FromShape(s, c.unit)) {
			removed = i
			break
		}
	}
	rank := c.rank(removed)
	c.removeAt(removed)
	c.lastEdit = -1
	return Update{Change: ChangeRemove, Index: removed, Count: 1, ranks: []int{rank}}
}

func (c *Channel) edit(e ShapeEdit) (Update, error) {
	i := e.Index
	if i < 0 || i >= len(c.measurements) {
		return Update{}, errors.WrapFatal(
			fmt.Errorf("%w: channel %d edit names shape %d of %d",
				errors.ErrProtocolViolation, c.index, i, len(c.measurements)),
			"Channel", "Update", "apply shape edit")
	}

	c.measurements[i] = FromShape(e.Shape, c.unit)
	rank := c.rank(i)
	c.order = append(slices.Delete(c.order, rank, rank+1), i)

	continued := c.lastEdit == i
	c.lastEdit = i
	return Update{Change: ChangeEdit, Index: i, Count: 1, Continued: continued, ranks: []int{rank}}, nil
}

// Prune evicts every measurement lying entirely outside the window.
func (c *Channel) Prune(w render.Window) PruneResult {
	top, hadTop := c.MostRecentIndex()

	var result PruneResult
	for i, m := range c.measurements {
		if m.Outside(w) {
			result.Removed = append(result.Removed, i)
			result.ranks = append(result.ranks, c.rank(i))
		}
	}
	result.MostRecentSurvived = hadTop && !slices.Contains(result.Removed, top)
	if !result.Any() {
		return result
	}

	for k := len(result.Removed) - 1; k >= 0; k-- {
		c.removeAt(result.Removed[k])
	}
	c.lastEdit = -1
	return result
}

// Clear removes every measurement and returns how many there were.
func (c *Channel) Clear() int {
	n := len(c.measurements)
	c.measurements = nil
	c.order = nil
	c.lastEdit = -1
	return n
}

// removeAt deletes position i and renumbers the edit order.
func (c *Channel) removeAt(i int) {
	c.measurements = slices.Delete(c.measurements, i, i+1)
	order := c.order[:0]
	for _, idx := range c.order {
		switch {
		case idx == i:
			continue
		case idx > i:
			order = append(order, idx-1)
		default:
			order = append(order, idx)
		}
	}
	c.order = order
}

func (c *Channel) rank(i int) int {
	return slices.Index(c.order, i)
}
