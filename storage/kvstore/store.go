// Package kvstore implements storage.Store on a NATS JetStream KeyValue bucket.
package kvstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/errors"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/pkg/retry"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/storage"
)

var _ storage.Store = (*Store)(nil)

// Config selects the NATS server and bucket.
type Config struct {
	URL     string        `json:"url"`
	Bucket  string        `json:"bucket"`
	Timeout time.Duration `json:"timeout"`
	// History is the number of revisions kept per key.
	History uint8 `json:"history"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		URL:     nats.DefaultURL,
		Bucket:  "ecg_annotations",
		Timeout: 5 * time.Second,
		History: 5,
	}
}

// Store keeps documents in a KeyValue bucket. Bucket keys only allow a small
// character set, so other bytes are escaped as "=XX".
type Store struct {
	bucket  jetstream.KeyValue
	timeout time.Duration
	conn    *nats.Conn
}

// Connect dials the server and opens the bucket, creating it if needed.
// Transient failures are retried with the startup policy of package retry.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: bucket name is empty", errors.ErrMissingConfig),
			"kvstore", "Connect", "validate config")
	}
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}

	return retry.DoWithResult(ctx, retry.Startup(), func() (*Store, error) {
		return dial(ctx, cfg)
	})
}

// dial makes one attempt at opening the bucket. Every failure is transient:
// the server may still be starting next to us.
func dial(ctx context.Context, cfg Config) (*Store, error) {
	opts := []nats.Option{nats.Name("ecgannotate")}
	if cfg.Timeout > 0 {
		opts = append(opts, nats.Timeout(cfg.Timeout))
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, errors.WrapTransient(err, "kvstore", "Connect", "connect to NATS")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, errors.WrapTransient(err, "kvstore", "Connect", "create JetStream context")
	}

	bucket, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "ECG viewer annotations",
		History:     cfg.History,
	})
	if err != nil {
		conn.Close()
		return nil, errors.WrapTransient(err, "kvstore", "Connect", "open KV bucket")
	}

	s := New(bucket, cfg.Timeout)
	s.conn = conn
	return s, nil
}

// New wraps an already opened bucket.
func New(bucket jetstream.KeyValue, timeout time.Duration) *Store {
	return &Store{bucket: bucket, timeout: timeout}
}

// Close drains the connection opened by Connect.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Drain(); err != nil {
		return errors.WrapTransient(err, "kvstore", "Close", "drain connection")
	}
	return nil
}

// applyTimeout applies the configured timeout to the context if set
func (s *Store) applyTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return ctx, func() {}
}

// Put stores data at key, last writer wins.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	if key == "" {
		return errors.WrapInvalid(fmt.Errorf("empty key"), "kvstore", "Put", "validate key")
	}
	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	if _, err := s.bucket.Put(ctx, EscapeKey(key), data); err != nil {
		return errors.WrapTransient(err, "kvstore", "Put", "put to KV")
	}
	return nil
}

// Get reads the latest value at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	entry, err := s.bucket.Get(ctx, EscapeKey(key))
	if err != nil {
		if stderrors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: %s", errors.ErrKeyNotFound, key), "kvstore", "Get", "get from KV")
		}
		return nil, errors.WrapTransient(err, "kvstore", "Get", "get from KV")
	}
	return entry.Value(), nil
}

// List returns the stored keys starting with prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	lister, err := s.bucket.ListKeys(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoKeysFound) {
			return []string{}, nil
		}
		return nil, errors.WrapTransient(err, "kvstore", "List", "list KV keys")
	}
	defer lister.Stop()

	keys := []string{}
	for escaped := range lister.Keys() {
		key, err := UnescapeKey(escaped)
		if err != nil {
			return nil, errors.WrapFatal(err, "kvstore", "List", "decode key")
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.applyTimeout(ctx)
	defer cancel()

	if err := s.bucket.Delete(ctx, EscapeKey(key)); err != nil && !stderrors.Is(err, jetstream.ErrKeyNotFound) {
		return errors.WrapTransient(err, "kvstore", "Delete", "delete from KV")
	}
	return nil
}

func keepByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '-', b == '_':
		return true
	}
	return false
}

// EscapeKey maps a key onto the bucket key alphabet. "/" becomes "." so
// hierarchical keys become subject tokens.
func EscapeKey(key string) string {
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c == '/':
			b.WriteByte('.')
		case keepByte(c):
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "=%02X", c)
		}
	}
	return b.String()
}

// UnescapeKey reverses EscapeKey.
func UnescapeKey(escaped string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(escaped); i++ {
		c := escaped[i]
		switch c {
		case '.':
			b.WriteByte('/')
		case '=':
			if i+2 >= len(escaped) {
				return "", fmt.Errorf("%w: truncated escape in key %q", errors.ErrDataCorrupted, escaped)
			}
			v, err := strconv.ParseUint(escaped[i+1:i+3], 16, 8)
			if err != nil {
				return "", fmt.Errorf("%w: bad escape in key %q", errors.ErrDataCorrupted, escaped)
			}
			b.WriteByte(byte(v))
			i += 2
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}
