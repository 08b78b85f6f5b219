package comment

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/errors"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/metric"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/storage"
)

// KeyFor returns the storage key of a recording's comment document.
func KeyFor(recording string) string {
	return recording + "_comments.json"
}

// Store is the sorted comment collection of one recording. Every mutation
// rewrites the whole document to the backend. Store is not safe for
// concurrent use.
type Store struct {
	backend storage.Store
	key     string
	list    []Comment
	logger  *slog.Logger
	metrics *metric.Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records writes and flush latency.
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// Open loads the comments of a recording, writing an empty document first if
// none exists or the stored one is empty.
func Open(ctx context.Context, backend storage.Store, recording string, opts ...Option) (*Store, error) {
	s := &Store{
		backend: backend,
		key:     KeyFor(recording),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	data, err := backend.Get(ctx, s.key)
	switch {
	case stderrors.Is(err, errors.ErrKeyNotFound), err == nil && len(data) == 0:
		if err := s.flush(ctx); err != nil {
			return nil, errors.WrapTransient(err, "CommentStore", "Open", "initialize comment document")
		}
		s.logger.Info("Created comment document", "key", s.key)
	case err != nil:
		return nil, errors.WrapTransient(err, "CommentStore", "Open", "read comment document")
	default:
		if err := validateDocument(data); err != nil {
			return nil, errors.WrapFatal(err, "CommentStore", "Open", "validate comment document")
		}
		var list []Comment
		if err := json.Unmarshal(data, &list); err != nil {
			if !stderrors.Is(err, errors.ErrDataCorrupted) {
				err = fmt.Errorf("%w: %v", errors.ErrDataCorrupted, err)
			}
			return nil, errors.WrapFatal(err, "CommentStore", "Open", "decode comment document")
		}
		s.list = normalize(list)
		s.logger.Debug("Loaded comments", "key", s.key, "count", len(s.list))
	}

	s.metrics.RecordCommentsStored(len(s.list))
	return s, nil
}

// normalize sorts a loaded document and merges entries sharing a key, the
// later entry's text winning.
func normalize(list []Comment) []Comment {
	sort.SliceStable(list, func(i, j int) bool { return list[i].Key().Compare(list[j].Key()) < 0 })
	out := make([]Comment, 0, len(list))
	for _, c := range list {
		if n := len(out); n > 0 && out[n-1].Key() == c.Key() {
			out[n-1].Text = c.Text
			continue
		}
		out = append(out, c)
	}
	return out
}

// Key returns the storage key of the document.
func (s *Store) Key() string {
	return s.key
}

// Len returns the number of comments.
func (s *Store) Len() int {
	return len(s.list)
}

// At returns the comment at position i.
func (s *Store) At(i int) (Comment, bool) {
	if i < 0 || i >= len(s.list) {
		return Comment{}, false
	}
	return s.list[i], true
}

// search returns the first position whose comment does not sort before c.
func (s *Store) search(c Comment) int {
	return sort.Search(len(s.list), func(i int) bool { return compare(s.list[i], c) >= 0 })
}

// Upsert saves c. When a comment with the same key exists its text is
// replaced, otherwise c is inserted in order. Returns the position of c.
func (s *Store) Upsert(ctx context.Context, c Comment) (int, error) {
	i := s.search(c)
	switch {
	case i < len(s.list) && s.list[i].Key() == c.Key():
		s.list[i].Text = c.Text
	case i > 0 && s.list[i-1].Key() == c.Key():
		// the stored text sorts before the new one
		i--
		s.list[i].Text = c.Text
	default:
		s.list = slices.Insert(s.list, i, c)
	}

	err := s.write(ctx, "upsert")
	if err != nil {
		return i, errors.WrapTransient(err, "CommentStore", "Upsert", "flush comments")
	}
	return i, nil
}

// Remove deletes the comment at position i.
func (s *Store) Remove(ctx context.Context, i int) (Comment, error) {
	if i < 0 || i >= len(s.list) {
		return Comment{}, errors.WrapInvalid(
			fmt.Errorf("%w: comment %d of %d", errors.ErrIndexOutOfRange, i, len(s.list)),
			"CommentStore", "Remove", "locate comment")
	}
	removed := s.list[i]
	s.list = slices.Delete(s.list, i, i+1)

	if err := s.write(ctx, "remove"); err != nil {
		return removed, errors.WrapTransient(err, "CommentStore", "Remove", "flush comments")
	}
	return removed, nil
}

// Query returns the matching comments in order with their positions.
func (s *Store) Query(q Query) []Entry {
	lo, hi := 0, len(s.list)
	if q.Start != Unbounded {
		lo = sort.Search(len(s.list), func(i int) bool { return s.list[i].CenterTime >= q.Start })
	}
	if q.End != Unbounded {
		hi = sort.Search(len(s.list), func(i int) bool { return s.list[i].CenterTime > q.End })
	}

	var out []Entry
	for i := lo; i < hi; i++ {
		if slices.Contains(q.Channels, s.list[i].Channel) {
			out = append(out, Entry{Index: i, Comment: s.list[i]})
		}
	}
	return out
}

func (s *Store) write(ctx context.Context, operation string) error {
	start := time.Now()
	err := s.flush(ctx)
	s.metrics.RecordCommentWrite(operation, err, time.Since(start), len(s.list))
	if err != nil {
		s.logger.Error("Comment flush failed", "key", s.key, "operation", operation, "error", err)
		return err
	}
	s.logger.Debug("Comments flushed", "key", s.key, "operation", operation, "count", len(s.list))
	return nil
}

func (s *Store) flush(ctx context.Context) error {
	list := s.list
	if list == nil {
		list = []Comment{}
	}
	data, err := json.MarshalIndent(list, "", "    ")
	if err != nil {
		return errors.WrapFatal(err, "CommentStore", "flush", "encode comments")
	}
	return s.backend.Put(ctx, s.key, data)
}
