package bridge

import (
	"context"
	"sync"

	"github.com/chaz8081/speechbridge/internal/permission"
	"github.com/chaz8081/speechbridge/internal/recognize"
)

type fakeCapturer struct {
	mu        sync.Mutex
	sink      func([]byte)
	recording bool
	starts    int
	stops     int
	startErr  error
	devices   []string
	pcm       []byte
}

func newFakeCapturer() *fakeCapturer {
	return &fakeCapturer{devices: []string{"Built-in Microphone"}}
}

func (c *fakeCapturer) Start(sink func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	c.sink = sink
	c.recording = true
	c.starts++
	return nil
}

func (c *fakeCapturer) Stop() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording {
		return nil
	}
	c.recording = false
	c.sink = nil
	c.stops++
	return c.pcm
}

func (c *fakeCapturer) IsRecording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

func (c *fakeCapturer) CaptureDevices() ([]string, error) {
	return c.devices, nil
}

// feed delivers pcm through the registered sink as the audio thread would.
func (c *fakeCapturer) feed(pcm []byte) {
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	if sink != nil {
		sink(pcm)
	}
}

type fakeRecognizer struct {
	availErr error
	langs    []string
	langsErr error
	openErr  error
	streams  chan *fakeStream
	params   recognize.Params
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{
		langs:   []string{"en-US", "en", "de", "fr"},
		streams: make(chan *fakeStream, 4),
	}
}

func (r *fakeRecognizer) Name() string { return "fake" }

func (r *fakeRecognizer) Available(ctx context.Context) error { return r.availErr }

func (r *fakeRecognizer) Languages(ctx context.Context) ([]string, error) {
	if r.langsErr != nil {
		return nil, r.langsErr
	}
	return append([]string(nil), r.langs...), nil
}

func (r *fakeRecognizer) Open(ctx context.Context, p recognize.Params) (recognize.Stream, error) {
	if r.openErr != nil {
		return nil, r.openErr
	}
	r.params = p
	s := &fakeStream{hyps: make(chan recognize.Hypothesis, 64)}
	r.streams <- s
	return s, nil
}

type fakeStream struct {
	mu          sync.Mutex
	hyps        chan recognize.Hypothesis
	written     [][]byte
	writeErr    error
	onFinish    []recognize.Hypothesis
	finished    bool
	closed      bool
	closedCalls int
}

func (s *fakeStream) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.written = append(s.written, pcm)
	return nil
}

func (s *fakeStream) Hypotheses() <-chan recognize.Hypothesis { return s.hyps }

func (s *fakeStream) push(h recognize.Hypothesis) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.hyps <- h
	}
}

func (s *fakeStream) Finish(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
	if s.closed {
		return nil
	}
	for _, h := range s.onFinish {
		s.hyps <- h
	}
	s.closed = true
	close(s.hyps)
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closedCalls++
	if !s.closed {
		s.closed = true
		close(s.hyps)
	}
	return nil
}

func (s *fakeStream) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.written)
}

func alts(ts ...string) []recognize.Alternative {
	out := make([]recognize.Alternative, len(ts))
	for i, t := range ts {
		out[i] = recognize.Alternative{Transcript: t, Confidence: 0.9 - float64(i)/10}
	}
	return out
}

// countingPerms tracks how many permission listeners are registered.
type countingPerms struct {
	*permission.Manager
	mu        sync.Mutex
	listening int
}

func (p *countingPerms) Listen(fn func(permission.Status)) func() {
	unsubscribe := p.Manager.Listen(fn)
	p.mu.Lock()
	p.listening++
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			p.mu.Lock()
			p.listening--
			p.mu.Unlock()
		})
	}
}

func (p *countingPerms) listeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listening
}
