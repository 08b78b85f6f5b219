package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/annotation"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/caliper"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/errors"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/metric"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/render"
)

// Session applies the gestures of one renderer to one engine, in order.
// Handle is safe for concurrent use; gestures are serialized.
type Session struct {
	id      string
	engine  *annotation.Engine
	mu      *sync.Mutex
	seq     uint64
	views   map[int]render.ChannelView
	failed  error
	logger  *slog.Logger
	metrics *metric.Metrics
}

// Option configures a Session or a Server.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics *metric.Metrics
	lock    *sync.Mutex
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records gesture counts and latency.
func WithMetrics(m *metric.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithLock serializes the session with every other session holding the same
// lock. Sessions whose engines write through one comment store must share it.
func WithLock(mu *sync.Mutex) Option {
	return func(o *options) {
		if mu != nil {
			o.lock = mu
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.lock == nil {
		o.lock = &sync.Mutex{}
	}
	return o
}

// NewSession starts a session on the engine.
func NewSession(engine *annotation.Engine, opts ...Option) *Session {
	o := applyOptions(opts)
	id := uuid.NewString()
	s := &Session{
		id:      id,
		engine:  engine,
		mu:      o.lock,
		logger:  o.logger.With("session", id),
		metrics: o.metrics,
	}
	s.views = engine.Snapshot().Views
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Err returns the fatal error that ended the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// Handle applies one gesture.
func (s *Session) Handle(ctx context.Context, g Gesture) Reply {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	reply := Reply{ID: g.ID, Session: s.id, Seq: s.seq, Type: g.Type}

	var err error
	if s.failed != nil {
		err = errors.WrapFatal(s.failed, "Session", "Handle", "accept gesture on failed session")
	} else {
		err = s.dispatch(ctx, g, &reply)
	}

	status := "ok"
	if err != nil {
		class := errors.Classify(err)
		status = class.String()
		reply.OK = false
		reply.Class = status
		reply.Error = err.Error()
		if class == errors.ErrorFatal && s.failed == nil {
			s.failed = err
			s.logger.Error("Session failed", "gesture", g.Type, "seq", s.seq, "error", err)
		} else {
			s.logger.Warn("Gesture rejected", "gesture", g.Type, "seq", s.seq, "class", status, "error", err)
		}
	} else {
		reply.OK = true
		s.logger.Debug("Gesture applied", "gesture", g.Type, "seq", s.seq)
	}
	s.metrics.RecordGesture(g.Type, status, time.Since(start))
	return reply
}

func (s *Session) dispatch(ctx context.Context, g Gesture, reply *Reply) error {
	views := g.Views
	if views == nil {
		views = s.views
	}

	var (
		res annotation.Result
		err error
	)
	switch g.Type {
	case GestureShape:
		var diff caliper.ShapeDiff
		if diff, err = decodeDiff(g.Diff); err != nil {
			return err
		}
		if res, err = s.engine.OnShapeEvent(g.Channel, diff, views); err != nil {
			return err
		}
		reply.Change = res.Change.String()

	case GestureWindow:
		if g.Window == nil {
			return missing(g.Type, "window")
		}
		if res, err = s.engine.OnWindowChange(*g.Window, views); err != nil {
			return err
		}

	case GestureToggleSync:
		res = s.engine.ToggleSync(views)

	case GestureClear:
		res = s.engine.ClearCalipers(views)

	case GestureAddChannel:
		if res, err = s.engine.AddChannel(g.Channel, views); err != nil {
			return err
		}

	case GestureRemoveChannel:
		if res, err = s.engine.RemoveChannel(g.Channel, views); err != nil {
			return err
		}

	case GestureHighlightTag:
		if res, err = s.engine.HighlightTag(g.Index, views); err != nil {
			return err
		}

	case GestureSnapshot:
		res = s.engine.Snapshot()

	case GestureSaveComment:
		c, err := s.engine.SaveComment(ctx, g.Text)
		if err != nil {
			return err
		}
		reply.Comment = &c
		return nil

	case GestureRemoveComment:
		return s.engine.RemoveComment(ctx, g.Index)

	case GestureListComments:
		q := CommentQuery{Channels: s.engine.Channels()}
		if g.Query != nil {
			q = *g.Query
		}
		entries := s.engine.Comments(q.query())
		if q.Verbose {
			reply.Comments = entries
			return nil
		}
		reply.Briefs = make([]BriefEntry, 0, len(entries))
		for _, e := range entries {
			reply.Briefs = append(reply.Briefs, BriefEntry{Index: e.Index, Brief: e.Brief()})
		}
		return nil

	default:
		return errors.WrapInvalid(fmt.Errorf("%w: %q", errors.ErrUnknownGesture, g.Type),
			"Session", "Handle", "route gesture")
	}

	s.views = res.Views
	reply.Result = &res
	reply.Mode = s.engine.Mode().String()
	return nil
}

func decodeDiff(raw json.RawMessage) (caliper.ShapeDiff, error) {
	if len(raw) == 0 {
		return caliper.ShapeDiff{}, missing(GestureShape, "diff")
	}
	var diff caliper.ShapeDiff
	if err := json.Unmarshal(raw, &diff); err != nil {
		if errors.IsFatal(err) {
			return caliper.ShapeDiff{}, err
		}
		return caliper.ShapeDiff{}, errors.WrapFatal(
			fmt.Errorf("%w: %v", errors.ErrMalformedShapeDiff, err),
			"Session", "Handle", "decode shape diff")
	}
	return diff, nil
}

func missing(gesture, field string) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s gesture without %s", errors.ErrUnknownGesture, gesture, field),
		"Session", "Handle", "read gesture")
}
