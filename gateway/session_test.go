package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/annotation"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/comment"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/errors"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/metric"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/record"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/render"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/storage/filestore"
)

func testMeta() *record.Meta {
	return &record.Meta{
		Recording:  "gateway-test",
		SampleRate: 1000,
		Channels:   []string{"I", "II", "V1"},
		Window:     []int64{0, 30000},
		TagList:    []record.TagMeta{{Category: "beat", Sample: 5000, Text: "PVC"}},
	}
}

// engineFactory opens one comment store shared by every engine it builds.
func engineFactory(t *testing.T) EngineFactory {
	t.Helper()
	backend, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	comments, err := comment.Open(context.Background(), backend, "gateway-test")
	require.NoError(t, err)
	return func() (*annotation.Engine, error) {
		return annotation.NewEngine(testMeta(), comments)
	}
}

func newSession(t *testing.T, opts ...Option) *Session {
	t.Helper()
	engine, err := engineFactory(t)()
	require.NoError(t, err)
	return NewSession(engine, opts...)
}

func shape(ch int, diff string) Gesture {
	return Gesture{Type: GestureShape, Channel: ch, Diff: json.RawMessage(diff)}
}

func TestSession_ShapeGestures(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)
	_, err := uuid.Parse(s.ID())
	require.NoError(t, err)

	r := s.Handle(ctx, shape(1, `{"shapes": [{"x0": 10000, "x1": 20000, "y0": -5, "y1": 5}]}`))
	require.True(t, r.OK, r.Error)
	assert.Equal(t, uint64(1), r.Seq)
	assert.Equal(t, s.ID(), r.Session)
	assert.Equal(t, "add", r.Change)
	assert.Equal(t, "independent", r.Mode)
	require.NotNil(t, r.Result)
	assert.Len(t, r.Result.Views[1].Shapes, 1)
	assert.True(t, r.Result.ResetComposer)

	// the views of the previous reply are used when the gesture carries none
	r = s.Handle(ctx, shape(1, `{"shapes[0].x0": 12000, "shapes[0].x1": 20000, "shapes[0].y0": -5, "shapes[0].y1": 5}`))
	require.True(t, r.OK, r.Error)
	assert.Equal(t, "edit", r.Change)
	assert.Equal(t, "00:00:12.000 - 00:00:20.000", r.Result.Label.Time)
	assert.Equal(t, "8,000ms", r.Result.Views[1].Annotations[1].Text)

	r = s.Handle(ctx, Gesture{Type: GestureToggleSync, ID: "t-1"})
	require.True(t, r.OK)
	assert.Equal(t, "t-1", r.ID)
	assert.Equal(t, "synchronized", r.Mode)
	assert.Empty(t, r.Result.Views[1].Shapes)
}

func TestSession_Comments(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)

	r := s.Handle(ctx, Gesture{Type: GestureSaveComment, Text: "nothing to attach to"})
	assert.False(t, r.OK)
	assert.Equal(t, "invalid", r.Class)

	require.True(t, s.Handle(ctx, shape(2, `{"shapes": [{"x0": 12000, "x1": 20000, "y0": -1, "y1": 1}]}`)).OK)
	r = s.Handle(ctx, Gesture{Type: GestureSaveComment, Text: "ST elevation"})
	require.True(t, r.OK, r.Error)
	require.NotNil(t, r.Comment)
	assert.Equal(t, int64(16000), r.Comment.CenterTime)
	assert.Equal(t, 2, r.Comment.Channel)

	r = s.Handle(ctx, Gesture{Type: GestureListComments})
	require.True(t, r.OK)
	assert.Equal(t, []BriefEntry{{Index: 0, Brief: comment.Brief{CenterTime: 16000, Channel: 2, Text: "ST elevation"}}}, r.Briefs)

	start := int64(17000)
	r = s.Handle(ctx, Gesture{Type: GestureListComments, Query: &CommentQuery{Channels: []int{2}, Start: &start, Verbose: true}})
	require.True(t, r.OK)
	assert.Empty(t, r.Comments)

	r = s.Handle(ctx, Gesture{Type: GestureListComments, Query: &CommentQuery{Channels: []int{2}, Verbose: true}})
	require.Len(t, r.Comments, 1)
	assert.Equal(t, -1.0, r.Comments[0].Comment.OriginAmplitude)

	r = s.Handle(ctx, Gesture{Type: GestureRemoveComment, Index: 3})
	assert.Equal(t, "invalid", r.Class)
	r = s.Handle(ctx, Gesture{Type: GestureRemoveComment, Index: 0})
	assert.True(t, r.OK)
}

func TestSession_InvalidGestures(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)

	tests := []struct {
		name    string
		gesture Gesture
	}{
		{"unknown type", Gesture{Type: "pinch"}},
		{"window without bounds", Gesture{Type: GestureWindow}},
		{"empty window", Gesture{Type: GestureWindow, Window: &render.Window{}}},
		{"shape without diff", Gesture{Type: GestureShape}},
		{"unknown channel", Gesture{Type: GestureRemoveChannel, Channel: 9}},
		{"tag out of range", Gesture{Type: GestureHighlightTag, Index: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := s.Handle(ctx, tt.gesture)
			assert.False(t, r.OK)
			assert.Equal(t, "invalid", r.Class)
			assert.NotEmpty(t, r.Error)
		})
	}
	require.NoError(t, s.Err())
	assert.True(t, s.Handle(ctx, Gesture{Type: GestureSnapshot}).OK)
}

func TestSession_FatalErrorEndsSession(t *testing.T) {
	tests := []struct {
		name string
		diff string
	}{
		{"no shape keys", `{"xaxis.range[0]": 0}`},
		{"truncated json", `{"shapes": [`},
		{"coordinates missing", `{"shapes": [{"x0": 1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metric.NewMetrics()
			s := newSession(t, WithMetrics(m))

			r := s.Handle(context.Background(), shape(0, tt.diff))
			assert.False(t, r.OK)
			assert.Equal(t, "fatal", r.Class)
			require.Error(t, s.Err())

			r = s.Handle(context.Background(), Gesture{Type: GestureSnapshot})
			assert.Equal(t, "fatal", r.Class)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.Gestures.WithLabelValues(GestureShape, "fatal")))
			assert.Equal(t, 1.0, testutil.ToFloat64(m.Gestures.WithLabelValues(GestureSnapshot, "fatal")))
		})
	}
}

func TestSession_SerializesGestures(t *testing.T) {
	s := newSession(t)

	const n = 20
	seqs := make(chan uint64, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seqs <- s.Handle(context.Background(), Gesture{Type: GestureSnapshot}).Seq
		}()
	}
	wg.Wait()
	close(seqs)

	seen := make(map[uint64]bool, n)
	for seq := range seqs {
		seen[seq] = true
	}
	assert.Len(t, seen, n)
	for i := uint64(1); i <= n; i++ {
		assert.True(t, seen[i], "seq %d", i)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.MaxMessageSize = 0
	require.NoError(t, cfg.Validate())
	assert.Equal(t, int64(1024*1024), cfg.MaxMessageSize)

	cfg = DefaultConfig()
	cfg.PingInterval = cfg.ReadTimeout
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxMessageSize = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.GestureRate = -1
	assert.True(t, errors.IsInvalid(cfg.Validate()))

	cfg = DefaultConfig()
	cfg.GestureBurst = 0
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.GestureBurst)
}
