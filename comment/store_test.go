package comment

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/errors"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/storage"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/storage/filestore"
)

// mockBackend is a storage.Store whose calls are scripted per test.
type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Put(ctx context.Context, key string, data []byte) error {
	return m.Called(ctx, key, data).Error(0)
}

func (m *mockBackend) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *mockBackend) List(ctx context.Context, prefix string) ([]string, error) {
	args := m.Called(ctx, prefix)
	keys, _ := args.Get(0).([]string)
	return keys, args.Error(1)
}

func (m *mockBackend) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

var errUnplugged = fmt.Errorf("%w: disk unplugged", errors.ErrStorageUnavailable)

func newBackend(t *testing.T) *filestore.Store {
	t.Helper()
	backend, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	return backend
}

func open(t *testing.T, backend storage.Store) *Store {
	t.Helper()
	s, err := Open(context.Background(), backend, "rec-01")
	require.NoError(t, err)
	return s
}

func c(center int64, ch int, text string) Comment {
	return Comment{CenterTime: center, CenterAmplitude: 0, OriginTime: center - 10, OriginAmplitude: -5, Channel: ch, Text: text}
}

func TestOpen_InitializesEmptyDocument(t *testing.T) {
	backend := newBackend(t)
	s := open(t, backend)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, "rec-01_comments.json", s.Key())

	data, err := backend.Get(context.Background(), "rec-01_comments.json")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestOpen_EmptyFileIsReinitialized(t *testing.T) {
	backend := newBackend(t)
	require.NoError(t, backend.Put(context.Background(), KeyFor("rec-01"), nil))

	s := open(t, backend)
	assert.Equal(t, 0, s.Len())
	data, err := backend.Get(context.Background(), KeyFor("rec-01"))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestOpen_LoadsAndNormalizes(t *testing.T) {
	backend := newBackend(t)
	doc := `[
    [300, 0, 290, -5, 1, "late"],
    [100, 0, 90, -5, 2, "first"],
    [100, 0, 90, -5, 2, "second"],
    [100.0, 0.5, 90, -5, 0, "float count"]
]`
	require.NoError(t, backend.Put(context.Background(), KeyFor("rec-01"), []byte(doc)))

	s := open(t, backend)
	require.Equal(t, 3, s.Len())
	first, _ := s.At(0)
	assert.Equal(t, "second", first.Text)
	second, _ := s.At(1)
	assert.Equal(t, "float count", second.Text)
	assert.Equal(t, int64(100), second.CenterTime)
}

func TestOpen_CorruptDocument(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{{{`},
		{"short record", `[[1, 2, 3]]`},
		{"text not string", `[[1, 0, 1, 0, 0, 7]]`},
		{"negative channel", `[[1, 0, 1, 0, -1, "x"]]`},
		{"not a list", `{"comments": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newBackend(t)
			require.NoError(t, backend.Put(context.Background(), KeyFor("rec-01"), []byte(tt.doc)))
			_, err := Open(context.Background(), backend, "rec-01")
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrDataCorrupted)
			assert.True(t, errors.IsFatal(err))
		})
	}
}

func TestOpen_BackendUnavailable(t *testing.T) {
	backend := &mockBackend{}
	backend.On("Get", mock.Anything, KeyFor("rec-01")).Return(nil, errUnplugged)

	_, err := Open(context.Background(), backend, "rec-01")
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	backend.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything)
}

// Scenario: saving twice on the same caliper keeps a single comment with the
// latest text.
func TestStore_UpsertMergesSameKey(t *testing.T) {
	ctx := context.Background()
	s := open(t, newBackend(t))

	_, err := s.Upsert(ctx, Comment{100, 0, 90, -5, 2, "note A"})
	require.NoError(t, err)
	entries := s.Query(All(2))
	require.Len(t, entries, 1)
	assert.Equal(t, "note A", entries[0].Comment.Text)

	_, err = s.Upsert(ctx, Comment{100, 0, 90, -5, 2, "note B"})
	require.NoError(t, err)
	entries = s.Query(All(2))
	require.Len(t, entries, 1)
	assert.Equal(t, "note B", entries[0].Comment.Text)

	// text sorting before the stored one hits the found position directly
	_, err = s.Upsert(ctx, Comment{100, 0, 90, -5, 2, "a note"})
	require.NoError(t, err)
	entries = s.Query(All(2))
	require.Len(t, entries, 1)
	assert.Equal(t, "a note", entries[0].Comment.Text)
}

func TestStore_UpsertKeepsOrderAndPersists(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)
	s := open(t, backend)

	for _, cm := range []Comment{c(500, 0, "e"), c(100, 1, "a"), c(300, 0, "c"), c(100, 0, "z")} {
		_, err := s.Upsert(ctx, cm)
		require.NoError(t, err)
	}

	var got []string
	for i := 0; i < s.Len(); i++ {
		cm, _ := s.At(i)
		got = append(got, cm.Text)
	}
	assert.Equal(t, []string{"z", "a", "c", "e"}, got)

	data, err := backend.Get(ctx, s.Key())
	require.NoError(t, err)
	var raw [][]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 4)
	assert.Equal(t, []any{100.0, 0.0, 90.0, -5.0, 0.0, "z"}, raw[0])
	assert.Contains(t, string(data), "\n    [", "indented with four spaces")

	reopened := open(t, backend)
	assert.Equal(t, 4, reopened.Len())
}

func TestStore_UpsertReturnsPosition(t *testing.T) {
	ctx := context.Background()
	s := open(t, newBackend(t))

	i, err := s.Upsert(ctx, c(200, 0, "b"))
	require.NoError(t, err)
	assert.Equal(t, 0, i)
	i, err = s.Upsert(ctx, c(100, 0, "a"))
	require.NoError(t, err)
	assert.Equal(t, 0, i)
	i, err = s.Upsert(ctx, c(200, 0, "z"))
	require.NoError(t, err)
	assert.Equal(t, 1, i)
	assert.Equal(t, 2, s.Len())
}

func TestStore_Query(t *testing.T) {
	ctx := context.Background()
	s := open(t, newBackend(t))
	for _, cm := range []Comment{c(100, 0, "a"), c(200, 1, "b"), c(300, 0, "c"), c(300, 2, "d"), c(400, 0, "e")} {
		_, err := s.Upsert(ctx, cm)
		require.NoError(t, err)
	}

	tests := []struct {
		name  string
		query Query
		want  []int
	}{
		{"all of channel 0", All(0), []int{0, 2, 4}},
		{"several channels", All(0, 2), []int{0, 2, 3, 4}},
		{"range inclusive end", Query{Channels: []int{0, 1, 2}, Start: 200, End: 300}, []int{1, 2, 3}},
		{"open start", Query{Channels: []int{0}, Start: Unbounded, End: 250}, []int{0}},
		{"open end", Query{Channels: []int{0}, Start: 250, End: Unbounded}, []int{2, 4}},
		{"no channels", All(), nil},
		{"empty range", Query{Channels: []int{0}, Start: 101, End: 199}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var idx []int
			for _, e := range s.Query(tt.query) {
				idx = append(idx, e.Index)
				at, _ := s.At(e.Index)
				assert.Equal(t, at, e.Comment)
			}
			assert.Equal(t, tt.want, idx)
		})
	}
}

func TestEntry_Brief(t *testing.T) {
	e := Entry{Index: 3, Comment: Comment{100, 0.5, 90, -5, 2, "note"}}
	assert.Equal(t, Brief{CenterTime: 100, Channel: 2, Text: "note"}, e.Brief())
}

func TestStore_Remove(t *testing.T) {
	ctx := context.Background()
	backend := newBackend(t)
	s := open(t, backend)
	for _, cm := range []Comment{c(100, 0, "a"), c(200, 0, "b"), c(300, 0, "c")} {
		_, err := s.Upsert(ctx, cm)
		require.NoError(t, err)
	}

	removed, err := s.Remove(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "b", removed.Text)
	assert.Equal(t, 2, s.Len())

	_, err = s.Remove(ctx, 2)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.ErrorIs(t, err, errors.ErrIndexOutOfRange)

	reopened := open(t, backend)
	assert.Equal(t, 2, reopened.Len())
}

func TestStore_FlushFailureIsTransient(t *testing.T) {
	ctx := context.Background()
	backend := &mockBackend{}
	backend.On("Get", mock.Anything, KeyFor("rec-01")).Return([]byte(`[]`), nil)
	backend.On("Put", mock.Anything, KeyFor("rec-01"), mock.Anything).Return(errUnplugged).Once()
	backend.On("Put", mock.Anything, KeyFor("rec-01"), mock.Anything).Return(nil)

	s := open(t, backend)
	_, err := s.Upsert(ctx, c(100, 0, "a"))
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.ErrorIs(t, err, errors.ErrStorageUnavailable)

	// the comment is kept in memory and goes out with the next write
	assert.Equal(t, 1, s.Len())
	_, err = s.Upsert(ctx, c(200, 0, "b"))
	require.NoError(t, err)

	backend.AssertNumberOfCalls(t, "Put", 2)
	last := backend.Calls[len(backend.Calls)-1].Arguments.Get(2).([]byte)
	var doc [][]any
	require.NoError(t, json.Unmarshal(last, &doc))
	assert.Len(t, doc, 2)
}
