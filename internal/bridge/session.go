package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/chaz8081/speechbridge/internal/audio"
	"github.com/chaz8081/speechbridge/internal/recognize"
)

const (
	eventBuffer = 64
	audioBuffer = 256
)

// Session is one listening session. Results arrive on Events until the
// session ends through Stop, a recognizer failure, permission revocation or
// the end of an utterance in single-utterance mode.
type Session struct {
	ID        string
	Language  string
	StartedAt time.Time

	opts   StartOptions
	bridge *Bridge
	logger *slog.Logger
	stream recognize.Stream
	cancel context.CancelFunc

	audio    chan []byte
	events   chan Event
	stopCh   chan stopRequest
	done     chan struct{}
	pumpDone chan struct{}

	// Owned by the run goroutine.
	finals      [][]recognize.Alternative
	interim     []recognize.Alternative
	lastPartial []string

	mu          sync.Mutex
	audioClosed bool
	started     bool
	result      Result
	err         error
}

type stopRequest struct {
	flush bool
	err   error
}

func newSession(b *Bridge, id, lang string, opts StartOptions) *Session {
	return &Session{
		ID:        id,
		Language:  lang,
		StartedAt: time.Now(),
		opts:      opts,
		bridge:    b,
		logger:    b.logger.With("session", id),
		audio:     make(chan []byte, audioBuffer),
		events:    make(chan Event, eventBuffer),
		stopCh:    make(chan stopRequest, 1),
		done:      make(chan struct{}),
		pumpDone:  make(chan struct{}),
	}
}

// Options returns the resolved options the session runs with.
func (s *Session) Options() StartOptions { return s.opts }

// Events delivers partial results (when enabled) followed by exactly one
// terminal event. The channel is closed after the terminal event.
func (s *Session) Events() <-chan Event { return s.events }

// Done is closed once the session has ended and released the microphone.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns the terminal error, or nil if the session ended normally or is
// still running.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Result returns the final result once the session has ended.
func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Stop ends the session, waits for the recognizer to flush its last results
// and returns the final result. Stopping an ended session returns its outcome.
func (s *Session) Stop(ctx context.Context) (Result, error) {
	s.requestStop(stopRequest{flush: true})
	select {
	case <-s.done:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.err
}

// abort ends the session with err without waiting for it to finish.
func (s *Session) abort(err error) {
	s.requestStop(stopRequest{err: err})
}

// requestStop queues req unless another request is already pending.
func (s *Session) requestStop(req stopRequest) {
	select {
	case s.stopCh <- req:
	default:
	}
}

func (s *Session) begin(stream recognize.Stream, cancel context.CancelFunc) {
	s.stream = stream
	s.cancel = cancel
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	go s.pump()
	go s.run()
}

// failStart ends a session that never reached the listening state.
func (s *Session) failStart(err error) {
	s.mu.Lock()
	s.err = err
	s.audioClosed = true
	s.mu.Unlock()
	s.events <- Event{Err: err}
	close(s.events)
	close(s.done)
}

// onAudio is the capture sink. It runs on the audio thread and never blocks.
func (s *Session) onAudio(pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audioClosed {
		return
	}
	select {
	case s.audio <- pcm:
	default:
		s.logger.Warn("dropping audio chunk, recognizer is behind", slog.Int("bytes", len(pcm)))
	}
}

// pump forwards captured audio to the recognizer.
func (s *Session) pump() {
	defer close(s.pumpDone)
	failed := false
	for pcm := range s.audio {
		if failed {
			continue
		}
		if err := s.stream.Write(pcm); err != nil {
			failed = true
			s.abort(recognizerError("startListening", err))
			continue
		}
		s.bridge.metrics.RecordAudio(len(pcm))
	}
}

func (s *Session) run() {
	hyps := s.stream.Hypotheses()
	for {
		select {
		case req := <-s.stopCh:
			s.end(req.flush && req.err == nil, req.err)
			return
		case h, ok := <-hyps:
			if !ok {
				s.logger.Debug("recognizer stream closed")
				s.end(false, nil)
				return
			}
			if h.Err != nil {
				s.end(false, recognizerError("startListening", h.Err))
				return
			}
			s.apply(h)
			if h.EndOfUtterance && s.bridge.opts.StopOnUtteranceEnd {
				s.logger.Debug("utterance ended, finishing session")
				s.end(true, nil)
				return
			}
		}
	}
}

// apply folds a hypothesis into the session transcript and emits a partial
// result when it changed.
func (s *Session) apply(h recognize.Hypothesis) {
	if h.IsFinal {
		if len(h.Alternatives) > 0 {
			s.finals = append(s.finals, h.Alternatives)
		}
		s.interim = nil
	} else {
		s.interim = h.Alternatives
	}

	if !s.opts.ShowPartial {
		return
	}
	matches, confidence := s.compose()
	if len(matches) == 0 || slices.Equal(matches, s.lastPartial) {
		return
	}
	s.lastPartial = matches
	s.emitPartial(Result{
		SessionID:  s.ID,
		Matches:    matches,
		IsPartial:  true,
		Confidence: confidence,
	})
}

// emitPartial never blocks. One slot is kept free for the terminal event.
func (s *Session) emitPartial(r Result) {
	if len(s.events) >= cap(s.events)-1 {
		s.bridge.metrics.RecordDropped()
		s.logger.Warn("dropping partial result, consumer is behind")
		return
	}
	s.events <- Event{Result: r}
	s.bridge.metrics.RecordResult("partial")
}

func (s *Session) compose() ([]string, float64) {
	segments := s.finals
	if len(s.interim) > 0 {
		segments = append(segments[:len(segments):len(segments)], s.interim)
	}
	return composeMatches(segments, s.opts.Matches)
}

// composeMatches joins per-segment alternatives into at most limit full
// transcripts, best first. Segments with fewer alternatives contribute their
// last one. Confidence is the mean of the best alternatives.
func composeMatches(segments [][]recognize.Alternative, limit int) ([]string, float64) {
	n := 0
	var conf float64
	for _, seg := range segments {
		n = max(n, len(seg))
		conf += seg[0].Confidence
	}
	if n == 0 {
		return nil, 0
	}
	conf /= float64(len(segments))
	if limit > 0 {
		n = min(n, limit)
	}

	matches := make([]string, 0, n)
	parts := make([]string, 0, len(segments))
	for i := 0; i < n; i++ {
		parts = parts[:0]
		for _, seg := range segments {
			alt := seg[min(i, len(seg)-1)]
			if t := strings.TrimSpace(alt.Transcript); t != "" {
				parts = append(parts, t)
			}
		}
		m := strings.Join(parts, " ")
		if m == "" || slices.Contains(matches, m) {
			continue
		}
		matches = append(matches, m)
	}
	return matches, conf
}

// end releases the microphone, collects the final result and reports the
// outcome.
func (s *Session) end(flush bool, cause error) {
	pcm := s.bridge.capture.Stop()

	s.mu.Lock()
	s.audioClosed = true
	close(s.audio)
	s.mu.Unlock()

	if flush {
		s.drain()
	}
	if err := s.stream.Close(); err != nil {
		s.logger.Debug("closing recognizer stream", "error", err)
	}
	<-s.pumpDone
	s.cancel()

	res := Result{SessionID: s.ID, IsFinal: true}
	res.Matches, res.Confidence = s.compose()
	if cause == nil && s.bridge.opts.RecordDir != "" && len(pcm) > 0 {
		uri, err := s.writeRecording(pcm)
		if err != nil {
			s.logger.Warn("saving voice recording failed", "error", err)
		} else {
			res.AudioURI = uri
		}
	}

	s.mu.Lock()
	s.result = res
	s.err = cause
	s.mu.Unlock()

	if cause != nil {
		s.logger.Warn("session ended with error", "error", cause)
		s.events <- Event{Err: cause}
	} else {
		s.logger.Info("session finished",
			"matches", len(res.Matches),
			"duration", time.Since(s.StartedAt).Round(time.Millisecond))
		s.events <- Event{Result: res}
		s.bridge.metrics.RecordResult("final")
	}
	close(s.events)

	s.bridge.release(s, cause)
	close(s.done)
}

// drain finishes the recognizer stream and applies the hypotheses it still
// delivers, bounded by the flush timeout.
func (s *Session) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), s.bridge.opts.FlushTimeout)
	defer cancel()

	select {
	case <-s.pumpDone:
	case <-ctx.Done():
		s.logger.Warn("audio still pending at flush timeout")
		return
	}

	go func() {
		if err := s.stream.Finish(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Debug("finishing recognizer stream", "error", err)
		}
	}()

	hyps := s.stream.Hypotheses()
	for {
		select {
		case h, ok := <-hyps:
			if !ok {
				return
			}
			if h.Err != nil {
				s.logger.Warn("recognizer error while flushing", "error", h.Err)
				return
			}
			s.apply(h)
		case <-ctx.Done():
			s.logger.Warn("recognizer flush timed out", "timeout", s.bridge.opts.FlushTimeout)
			return
		}
	}
}

func (s *Session) writeRecording(pcm []byte) (string, error) {
	path := filepath.Join(s.bridge.opts.RecordDir, "voice-"+s.ID+".wav")
	if err := audio.WriteWAV(path, pcm, s.bridge.opts.SampleRate, s.bridge.opts.Channels); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving recording path: %w", err)
	}
	return "file://" + filepath.ToSlash(abs), nil
}
