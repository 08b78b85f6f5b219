//go:build integration

package kvstore_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/StefanHeng/test-ECG-Signal-Viewer/comment"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/errors"
	"github.com/StefanHeng/test-ECG-Signal-Viewer/storage/kvstore"
)

// Package-level shared container to avoid Docker resource exhaustion
var (
	sharedContainer testcontainers.Container
	sharedURL       string
)

func TestMain(m *testing.M) {
	if os.Getenv("INTEGRATION_TESTS") != "" {
		container, url, err := startNATS(context.Background())
		if err != nil {
			panic("Failed to start NATS container: " + err.Error())
		}
		sharedContainer = container
		sharedURL = url
	}

	exitCode := m.Run()

	if sharedContainer != nil {
		sharedContainer.Terminate(context.Background())
	}
	os.Exit(exitCode)
}

func startNATS(ctx context.Context) (testcontainers.Container, string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "nats:2.11.7-alpine",
		ExposedPorts: []string{"4222/tcp", "8222/tcp"},
		Cmd:          []string{"--port", "4222", "--http_port", "8222", "--js"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("4222/tcp"),
			wait.ForHTTP("/").WithPort("8222/tcp").WithStartupTimeout(30*time.Second),
		),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to start NATS container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "4222")
	if err != nil {
		container.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get mapped port: %w", err)
	}
	return container, fmt.Sprintf("nats://%s:%s", host, port.Port()), nil
}

// KVStoreSuite runs the backend against the shared NATS container.
type KVStoreSuite struct {
	suite.Suite
}

// SetupSuite uses the package-level shared NATS container
func (s *KVStoreSuite) SetupSuite() {
	if os.Getenv("INTEGRATION_TESTS") == "" {
		s.T().Skip("Skipping integration test. Set INTEGRATION_TESTS=1 to run.")
	}
	s.Require().NotEmpty(sharedURL, "TestMain should have started NATS")
}

func TestKVStoreSuite(t *testing.T) {
	suite.Run(t, new(KVStoreSuite))
}

// store opens a bucket private to the calling test.
func (s *KVStoreSuite) store(bucket string) *kvstore.Store {
	store, err := kvstore.Connect(context.Background(), kvstore.Config{
		URL:     sharedURL,
		Bucket:  bucket,
		Timeout: 5 * time.Second,
		History: 3,
	})
	s.Require().NoError(err)
	s.T().Cleanup(func() { store.Close() })
	return store
}

func (s *KVStoreSuite) TestPutGetDelete() {
	store := s.store("TEST_PUT_GET")
	ctx := context.Background()

	s.Require().NoError(store.Put(ctx, "rec 01_comments.json", []byte("[]")))
	s.Require().NoError(store.Put(ctx, "rec 01_comments.json", []byte(`[[100,0,90,-5,2,"note"]]`)))

	data, err := store.Get(ctx, "rec 01_comments.json")
	s.Require().NoError(err)
	s.Equal(`[[100,0,90,-5,2,"note"]]`, string(data))

	s.Require().NoError(store.Delete(ctx, "rec 01_comments.json"))
	_, err = store.Get(ctx, "rec 01_comments.json")
	s.ErrorIs(err, errors.ErrKeyNotFound)

	s.Require().NoError(store.Delete(ctx, "never-written.json"))
}

func (s *KVStoreSuite) TestList() {
	store := s.store("TEST_LIST")
	ctx := context.Background()

	keys, err := store.List(ctx, "")
	s.Require().NoError(err)
	s.Empty(keys)

	for _, key := range []string{"b_comments.json", "a_comments.json", "ward/c_comments.json"} {
		s.Require().NoError(store.Put(ctx, key, []byte("[]")))
	}

	keys, err = store.List(ctx, "")
	s.Require().NoError(err)
	s.Equal([]string{"a_comments.json", "b_comments.json", "ward/c_comments.json"}, keys)

	keys, err = store.List(ctx, "ward/")
	s.Require().NoError(err)
	s.Equal([]string{"ward/c_comments.json"}, keys)
}

// Comments saved through one store are seen by the next one opened on the
// same bucket.
func (s *KVStoreSuite) TestCommentsRoundTrip() {
	ctx := context.Background()
	backend := s.store("TEST_COMMENTS")

	comments, err := comment.Open(ctx, backend, "holter")
	s.Require().NoError(err)
	_, err = comments.Upsert(ctx, comment.Comment{CenterTime: 16000, OriginTime: 10000, OriginAmplitude: -5, Channel: 1, Text: "ST elevation"})
	s.Require().NoError(err)

	reopened, err := comment.Open(ctx, s.store("TEST_COMMENTS"), "holter")
	s.Require().NoError(err)
	s.Require().Equal(1, reopened.Len())
	got, _ := reopened.At(0)
	s.Equal("ST elevation", got.Text)
}

func (s *KVStoreSuite) TestConnectDoesNotRetryInvalidConfig() {
	start := time.Now()
	_, err := kvstore.Connect(context.Background(), kvstore.Config{URL: sharedURL})
	s.True(errors.IsInvalid(err))
	s.Less(time.Since(start), time.Second)
}
