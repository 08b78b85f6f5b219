package annotation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/caliper"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/comment"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/errors"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/metric"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/record"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/render"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/tag"
)

// Result is the render state after a gesture.
type Result struct {
	// Views holds one view per displayed channel. Channels the gesture did
	// not touch are copies of the caller's views.
	Views map[int]render.ChannelView `json:"views"`
	// Label describes the most recent measurement, if any.
	Label Label `json:"label"`
	// ResetComposer is set when the measurement a comment would attach to is
	// no longer the one it was before the gesture.
	ResetComposer bool           `json:"reset_composer"`
	Window        render.Window  `json:"window"`
	Change        caliper.Change `json:"-"`
}

// Engine keeps calipers, tags and comments of one recording consistent with
// the renderer.
type Engine struct {
	source      record.Source
	names       []string
	unit        string
	overlay     *tag.Overlay
	calipers    *caliper.Store
	comments    *comment.Store
	window      render.Window
	highlighted int
	displayed   []int

	mode     caliper.Mode
	channels []int
	logger   *slog.Logger
	metrics  *metric.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records caliper activity.
func WithMetrics(m *metric.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithMode sets the initial caliper mode. The default is ModeIndependent.
func WithMode(mode caliper.Mode) Option {
	return func(e *Engine) {
		e.mode = mode
	}
}

// WithChannels sets the initially displayed channels. By default every
// channel of the recording is displayed.
func WithChannels(channels ...int) Option {
	return func(e *Engine) {
		e.channels = slices.Clone(channels)
	}
}

// NewEngine builds the engine for a recording. The comment store may be nil,
// in which case comment operations fail with ErrMissingConfig.
func NewEngine(source record.Source, comments *comment.Store, opts ...Option) (*Engine, error) {
	overlay, err := tag.NewOverlay(source.Tags())
	if err != nil {
		return nil, err
	}
	e := &Engine{
		source:      source,
		names:       source.ChannelNames(),
		unit:        source.AmplitudeUnit(),
		overlay:     overlay,
		comments:    comments,
		highlighted: tag.NoHighlight,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if len(e.names) == 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: recording %q has no channels", errors.ErrInvalidConfig, source.Name()),
			"Engine", "New", "read channel names")
	}

	start, end := source.VisibleSampleWindow()
	w, err := render.NewWindow(source.CountToTime(start), source.CountToTime(end))
	if err != nil {
		return nil, err
	}
	e.window = w

	if e.channels == nil {
		for ch := range e.names {
			e.displayed = append(e.displayed, ch)
		}
	} else {
		for _, ch := range e.channels {
			if !e.exists(ch) {
				return nil, unknownChannel(ch, "New")
			}
			if !slices.Contains(e.displayed, ch) {
				e.displayed = append(e.displayed, ch)
			}
		}
		slices.Sort(e.displayed)
	}
	e.channels = nil

	e.calipers = caliper.NewStore(e.mode, e.unit)
	e.logger = e.logger.With("recording", source.Name())
	return e, nil
}

func unknownChannel(ch int, method string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %d", errors.ErrUnknownChannel, ch),
		"Engine", method, "resolve channel")
}

func (e *Engine) exists(ch int) bool {
	return ch >= 0 && ch < len(e.names)
}

func (e *Engine) isDisplayed(ch int) bool {
	_, found := slices.BinarySearch(e.displayed, ch)
	return found
}

// Mode returns the caliper mode.
func (e *Engine) Mode() caliper.Mode {
	return e.calipers.Mode()
}

// Window returns the visible window.
func (e *Engine) Window() render.Window {
	return e.window
}

// Channels returns the displayed channels in ascending order.
func (e *Engine) Channels() []int {
	return slices.Clone(e.displayed)
}

// Highlighted returns the highlighted tag, or tag.NoHighlight.
func (e *Engine) Highlighted() int {
	return e.highlighted
}

// MostRecent returns the measurement a new comment would attach to.
func (e *Engine) MostRecent() (caliper.Ref, bool) {
	return e.calipers.MostRecent()
}

// Snapshot returns the full render state without changing anything.
func (e *Engine) Snapshot() Result {
	return e.result(nil, e.displayed)
}

// AnnotationsForChannel returns the tag markers in the window followed by the
// labels of the channel's measurements.
func (e *Engine) AnnotationsForChannel(ch int, w render.Window, highlighted int) []render.Annotation {
	out := e.overlay.InRange(w, highlighted)
	for _, m := range e.calipers.Measurements(ch) {
		if m.Outside(w) {
			continue
		}
		out = append(out, m.Annotations()...)
	}
	return out
}

// OnShapeEvent applies a renderer shape diff reported on channel ch.
//
// Independent mode rebuilds the acting channel plus any channel whose active
// shape changed; Synchronized mode rebuilds every displayed channel. A fatal
// error means the renderer and the engine disagree about the shapes; the
// engine state is unchanged and the caller should resynchronize.
func (e *Engine) OnShapeEvent(ch int, diff caliper.ShapeDiff, views map[int]render.ChannelView) (Result, error) {
	if !e.isDisplayed(ch) {
		return Result{}, unknownChannel(ch, "OnShapeEvent")
	}

	before, hadBefore := e.calipers.MostRecent()
	u, err := e.calipers.Update(ch, diff)
	if err != nil {
		if errors.IsFatal(err) {
			e.metrics.RecordProtocolViolation()
			e.logger.Error("Rejected shape diff", "channel", ch, "error", err)
		}
		return Result{}, err
	}

	mode := e.calipers.Mode()
	e.metrics.RecordCaliperChange(mode.String(), u.Change.String())
	e.metrics.RecordLiveMeasurements(e.calipers.Len())

	var reset bool
	switch u.Change {
	case caliper.ChangeEdit:
		reset = !u.Continued
	case caliper.ChangeAdd, caliper.ChangeRemove:
		reset = u.MostRecentChanged
	}

	affected := []int{ch}
	if mode == caliper.ModeSynchronized {
		affected = e.displayed
	} else {
		if hadBefore {
			affected = append(affected, before.Channel)
		}
		if after, ok := e.calipers.MostRecent(); ok {
			affected = append(affected, after.Channel)
		}
	}

	e.logger.Debug("Applied shape diff",
		"channel", ch, "change", u.Change, "index", u.Index, "count", u.Count,
		"continued", u.Continued, "reset_composer", reset)

	res := e.result(views, affected)
	res.ResetComposer = reset
	res.Change = u.Change
	return res, nil
}

// OnWindowChange moves the visible window and evicts measurements that lie
// entirely outside it.
func (e *Engine) OnWindowChange(w render.Window, views map[int]render.ChannelView) (Result, error) {
	if err := w.Validate(); err != nil {
		return Result{}, err
	}
	e.window = w

	ev := e.calipers.Prune(w)
	if ev.Any() {
		n := 0
		for _, removed := range ev.Removed {
			n += len(removed)
		}
		mode := e.calipers.Mode().String()
		e.metrics.RecordEvictions(mode, n)
		e.metrics.RecordLiveMeasurements(e.calipers.Len())
		e.logger.Debug("Evicted measurements", "window", w, "count", n, "most_recent", ev.MostRecentEvicted)
	}

	res := e.result(views, e.displayed)
	res.ResetComposer = ev.MostRecentEvicted
	return res, nil
}

// ToggleSync switches between Independent and Synchronized mode. All
// measurements are cleared.
func (e *Engine) ToggleSync(views map[int]render.ChannelView) Result {
	_, had := e.calipers.MostRecent()
	mode := e.calipers.ToggleSync()
	e.metrics.RecordSyncToggle(mode.String())
	e.metrics.RecordLiveMeasurements(0)
	e.logger.Info("Switched caliper mode", "mode", mode)

	res := e.result(views, e.displayed)
	res.ResetComposer = had
	return res
}

// ClearCalipers removes every measurement and keeps the mode.
func (e *Engine) ClearCalipers(views map[int]render.ChannelView) Result {
	_, had := e.calipers.MostRecent()
	e.calipers.Clear()
	e.metrics.RecordLiveMeasurements(0)

	res := e.result(views, e.displayed)
	res.ResetComposer = had
	return res
}

// RemoveChannel stops displaying channel ch. In Independent mode its
// measurements are discarded.
func (e *Engine) RemoveChannel(ch int, views map[int]render.ChannelView) (Result, error) {
	if !e.isDisplayed(ch) {
		return Result{}, unknownChannel(ch, "RemoveChannel")
	}

	before, hadBefore := e.calipers.MostRecent()
	e.displayed = slices.DeleteFunc(e.displayed, func(c int) bool { return c == ch })
	if e.calipers.ChannelRemoved(ch, e.displayed) {
		e.metrics.RecordLiveMeasurements(e.calipers.Len())
		e.logger.Debug("Discarded calipers of removed channel", "channel", ch)
	}
	after, hasAfter := e.calipers.MostRecent()

	res := e.result(views, e.displayed)
	res.ResetComposer = hadBefore && (!hasAfter || !e.sameMeasurement(before, after))
	return res, nil
}

// sameMeasurement reports whether two refs locate the same measurement. The
// shared caliper holds one measurement set whatever channel it is credited to.
func (e *Engine) sameMeasurement(a, b caliper.Ref) bool {
	if e.calipers.Mode() == caliper.ModeSynchronized {
		return a.Index == b.Index && a.Measurement == b.Measurement
	}
	return a == b
}

// AddChannel displays channel ch. Adding a displayed channel rebuilds its
// view and changes nothing else.
func (e *Engine) AddChannel(ch int, views map[int]render.ChannelView) (Result, error) {
	if !e.exists(ch) {
		return Result{}, unknownChannel(ch, "AddChannel")
	}
	if i, found := slices.BinarySearch(e.displayed, ch); !found {
		e.displayed = slices.Insert(e.displayed, i, ch)
	}
	return e.result(views, []int{ch}), nil
}

// HighlightTag highlights tag i and centres the window on it, keeping the
// window width. tag.NoHighlight clears the highlight and keeps the window.
func (e *Engine) HighlightTag(i int, views map[int]render.ChannelView) (Result, error) {
	if i == tag.NoHighlight {
		e.highlighted = i
		return e.result(views, e.displayed), nil
	}

	w, ok := e.overlay.Window(i, e.window.Width())
	if !ok {
		return Result{}, errors.WrapInvalid(
			fmt.Errorf("%w: tag %d of %d", errors.ErrIndexOutOfRange, i, e.overlay.Len()),
			"Engine", "HighlightTag", "locate tag")
	}
	e.highlighted = i
	return e.OnWindowChange(w, views)
}

// SaveComment attaches text to the most recent measurement. A comment already
// stored for the same measurement has its text replaced.
func (e *Engine) SaveComment(ctx context.Context, text string) (comment.Comment, error) {
	if e.comments == nil {
		return comment.Comment{}, errors.WrapInvalid(
			fmt.Errorf("%w: no comment store", errors.ErrMissingConfig),
			"Engine", "SaveComment", "open comment store")
	}
	ref, ok := e.calipers.MostRecent()
	if !ok {
		return comment.Comment{}, errors.WrapInvalid(errors.ErrNoMeasurement,
			"Engine", "SaveComment", "locate measurement")
	}

	m := ref.Measurement
	cx, cy := m.Center()
	c := comment.Comment{
		CenterTime:      e.source.TimeToCount(cx),
		CenterAmplitude: cy,
		OriginTime:      e.source.TimeToCount(m.X0),
		OriginAmplitude: m.Y0,
		Channel:         ref.Channel,
		Text:            text,
	}
	if _, err := e.comments.Upsert(ctx, c); err != nil {
		return comment.Comment{}, err
	}
	e.logger.Info("Saved comment", "channel", ref.Channel, "center", c.CenterTime)
	return c, nil
}

// Comments lists stored comments matching q.
func (e *Engine) Comments(q comment.Query) []comment.Entry {
	if e.comments == nil {
		return nil
	}
	return e.comments.Query(q)
}

// RemoveComment deletes the comment at position i of the store.
func (e *Engine) RemoveComment(ctx context.Context, i int) error {
	if e.comments == nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: no comment store", errors.ErrMissingConfig),
			"Engine", "RemoveComment", "open comment store")
	}
	_, err := e.comments.Remove(ctx, i)
	return err
}

// result copies the caller's views of displayed channels and rebuilds the
// listed ones. Displayed channels missing from views are built as well.
func (e *Engine) result(views map[int]render.ChannelView, rebuild []int) Result {
	ref, ok := e.calipers.MostRecent()

	out := make(map[int]render.ChannelView, len(e.displayed))
	for _, ch := range e.displayed {
		if v, found := views[ch]; found {
			out[ch] = v.Clone()
		}
	}
	for _, ch := range rebuild {
		if e.isDisplayed(ch) {
			out[ch] = e.view(ch, ref, ok)
		}
	}
	for _, ch := range e.displayed {
		if _, found := out[ch]; !found {
			out[ch] = e.view(ch, ref, ok)
		}
	}

	res := Result{Views: out, Window: e.window}
	if ok {
		res.Label = newLabel(e.names[ref.Channel], ref.Measurement, e.unit)
	}
	return res
}

// view renders channel ch from engine state.
func (e *Engine) view(ch int, ref caliper.Ref, hasRef bool) render.ChannelView {
	measurements := e.calipers.Measurements(ch)
	v := render.ChannelView{
		Shapes:      make([]render.Shape, 0, len(measurements)),
		Annotations: e.overlay.InRange(e.window, e.highlighted),
	}
	shared := e.calipers.Mode() == caliper.ModeSynchronized
	for i, m := range measurements {
		fill := render.CaliperFill
		if hasRef && i == ref.Index && (shared || ref.Channel == ch) {
			fill = render.CaliperFillActive
		}
		v.Shapes = append(v.Shapes, m.Shape(fill))
		v.Annotations = append(v.Annotations, m.Annotations()...)
	}
	if v.Annotations == nil {
		v.Annotations = []render.Annotation{}
	}
	return v
}
