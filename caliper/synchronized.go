package caliper

import "github.com/StefanHeng/test-ECG-Signal-Viewer/render"

// synchronized keeps one caliper whose measurements are drawn on every
// channel. The acting channel of each gesture is kept in the store's global
// edit order.
type synchronized struct {
	shared *Channel
}

func newSynchronized(unit string) *synchronized {
	return &synchronized{shared: NewChannel(SharedChannel, unit)}
}

func (v *synchronized) mode() Mode {
	return ModeSynchronized
}

func (v *synchronized) caliper(int) *Channel {
	return v.shared
}

func (v *synchronized) owns(int, int) bool {
	return true
}

func (v *synchronized) recent(int) (*Channel, bool) {
	return v.shared, true
}

func (v *synchronized) measurements(int) []Measurement {
	return v.shared.Measurements()
}

func (v *synchronized) prune(w render.Window) map[int]PruneResult {
	return map[int]PruneResult{SharedChannel: v.shared.Prune(w)}
}

// removeChannel is a no-op: the shared caliper outlives any one channel.
func (v *synchronized) removeChannel(int) (int, bool) {
	return 0, false
}

func (v *synchronized) clear() {
	v.shared.Clear()
}

func (v *synchronized) len() int {
	return v.shared.Len()
}
