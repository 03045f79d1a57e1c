package host

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chaz8081/speechbridge/internal/bridge"
	"github.com/chaz8081/speechbridge/internal/metrics"
	"github.com/chaz8081/speechbridge/internal/permission"
	"github.com/chaz8081/speechbridge/internal/recognize"
)

type fakeCapturer struct {
	mu        sync.Mutex
	recording bool
}

func (c *fakeCapturer) Start(func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recording = true
	return nil
}

func (c *fakeCapturer) Stop() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recording = false
	return nil
}

func (c *fakeCapturer) IsRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

func (c *fakeCapturer) CaptureDevices() ([]string, error) {
	return []string{"mic"}, nil
}

type fakeRecognizer struct {
	streams chan *fakeStream
}

func (r *fakeRecognizer) Name() string                        { return "fake" }
func (r *fakeRecognizer) Available(ctx context.Context) error { return nil }

func (r *fakeRecognizer) Languages(ctx context.Context) ([]string, error) {
	return []string{"en-US", "de-DE"}, nil
}

func (r *fakeRecognizer) Open(ctx context.Context, p recognize.Params) (recognize.Stream, error) {
	s := &fakeStream{hyps: make(chan recognize.Hypothesis, 32)}
	r.streams <- s
	return s, nil
}

type fakeStream struct {
	mu     sync.Mutex
	hyps   chan recognize.Hypothesis
	closed bool
}

func (s *fakeStream) Write([]byte) error                     { return nil }
func (s *fakeStream) Hypotheses() <-chan recognize.Hypothesis { return s.hyps }
func (s *fakeStream) Finish(ctx context.Context) error       { return s.Close() }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.hyps)
	}
	return nil
}

func (s *fakeStream) push(h recognize.Hypothesis) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.hyps <- h
	}
}

type fixture struct {
	bridge   *bridge.Bridge
	rec      *fakeRecognizer
	capture  *fakeCapturer
	perms    *permission.Manager
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func newFixture(t *testing.T, status permission.Status) *fixture {
	t.Helper()
	f := &fixture{
		rec:      &fakeRecognizer{streams: make(chan *fakeStream, 4)},
		capture:  &fakeCapturer{},
		perms:    permission.NewManager(permission.NewMemoryStore(status), permission.StaticPrompter(true), nil),
		registry: prometheus.NewRegistry(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	f.metrics = metrics.New(f.registry)
	f.bridge = bridge.New(f.rec, f.capture, f.perms, bridge.Options{
		DefaultLanguage: "en-US",
		Metrics:         f.metrics,
		Logger:          f.logger,
	})
	t.Cleanup(func() { _ = f.bridge.Close(context.Background()) })
	return f
}

func (f *fixture) dispatcher() *Dispatcher {
	return NewDispatcher(f.bridge, f.metrics, f.logger)
}

// recorder collects replies sent through an invocation.
type recorder struct {
	mu      sync.Mutex
	replies []Reply
}

func (r *recorder) send(reply Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, reply)
	return nil
}

func (r *recorder) all() []Reply {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Reply(nil), r.replies...)
}
