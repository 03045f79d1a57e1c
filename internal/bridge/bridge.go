// Package bridge exposes on-device speech recognition to a client through a
// small set of operations: availability and language queries, microphone
// permission, and a single listening session at a time.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/speechbridge/internal/metrics"
	"github.com/chaz8081/speechbridge/internal/permission"
	"github.com/chaz8081/speechbridge/internal/recognize"
)

// Capturer owns the microphone. Start must not block; sink is called from the
// audio thread. Stop releases the device and returns everything captured.
type Capturer interface {
	Start(sink func(pcm []byte)) error
	Stop() []byte
	IsRecording() bool
	CaptureDevices() ([]string, error)
}

// Permissions answers microphone consent queries.
type Permissions interface {
	Has() bool
	Request(ctx context.Context) (bool, error)
	Listen(fn func(permission.Status)) (unsubscribe func())
}

// Bridge is the speech recognition adapter. It is safe for concurrent use.
type Bridge struct {
	rec     recognize.Recognizer
	capture Capturer
	perms   Permissions
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics

	initOnce sync.Once

	langMu sync.Mutex
	langs  []string

	mu          sync.Mutex
	active      *Session
	closed      bool
	unsubscribe func()
}

// New creates a Bridge. Call Initialize before use; StartListening does so
// implicitly.
func New(rec recognize.Recognizer, capture Capturer, perms Permissions, opts Options) *Bridge {
	opts = opts.withDefaults()
	return &Bridge{
		rec:     rec,
		capture: capture,
		perms:   perms,
		opts:    opts,
		logger:  opts.Logger.With("component", "bridge"),
		metrics: opts.Metrics,
	}
}

// Initialize subscribes to permission changes, warms the language cache and
// probes the recognizer. Only the first call has an effect. Probe failures
// are logged, not returned.
func (b *Bridge) Initialize(ctx context.Context) {
	b.initOnce.Do(func() {
		unsubscribe := b.perms.Listen(b.onPermissionChange)
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			unsubscribe()
		} else {
			b.unsubscribe = unsubscribe
			b.mu.Unlock()
		}
		langs := b.GetSupportedLanguages(ctx)
		if err := b.checkAvailable(ctx); err != nil {
			b.logger.Warn("speech recognition not available", "error", err)
		}
		b.logger.Info("bridge initialized",
			"recognizer", b.rec.Name(),
			"languages", len(langs))
	})
}

// IsRecognitionAvailable reports whether the recognizer can open streams and
// a capture device is present.
func (b *Bridge) IsRecognitionAvailable(ctx context.Context) bool {
	return b.checkAvailable(ctx) == nil
}

func (b *Bridge) checkAvailable(ctx context.Context) error {
	if err := b.rec.Available(ctx); err != nil {
		return err
	}
	devices, err := b.capture.CaptureDevices()
	if err != nil {
		return fmt.Errorf("listing capture devices: %w", err)
	}
	if len(devices) == 0 {
		return errors.New("no capture device found")
	}
	return nil
}

// GetSupportedLanguages returns the recognizer's language tags. The first
// successful answer is cached so the order stays stable. When the recognizer
// cannot answer, the built-in table is returned uncached.
func (b *Bridge) GetSupportedLanguages(ctx context.Context) []string {
	b.langMu.Lock()
	defer b.langMu.Unlock()

	if b.langs == nil {
		langs, err := b.rec.Languages(ctx)
		if err != nil || len(langs) == 0 {
			if err != nil {
				b.logger.Warn("querying supported languages failed", "error", err)
			}
			return recognize.DefaultLanguages()
		}
		b.langs = langs
	}
	out := make([]string, len(b.langs))
	copy(out, b.langs)
	return out
}

// HasPermission reports whether microphone consent is granted. It never
// prompts.
func (b *Bridge) HasPermission() bool {
	return b.perms.Has()
}

// RequestPermission prompts for consent unless already granted.
func (b *Bridge) RequestPermission(ctx context.Context) bool {
	ok, err := b.perms.Request(ctx)
	if err != nil {
		b.logger.Warn("permission request failed", "error", err)
		return false
	}
	return ok
}

// StartListening opens a recognition stream and starts capturing audio. At
// most one session runs at a time; a second start fails with an
// audio_session_error and leaves the running session untouched.
func (b *Bridge) StartListening(ctx context.Context, opts StartOptions) (*Session, error) {
	const op = "startListening"
	b.Initialize(ctx)

	if err := b.checkAvailable(ctx); err != nil {
		return nil, &Error{Kind: KindRecognitionUnavailable, Op: op, Err: err}
	}

	requested := b.opts.resolveLanguage(opts.Language)
	lang, ok := recognize.Match(requested, b.GetSupportedLanguages(ctx))
	if !ok {
		return nil, &Error{Kind: KindRecognitionUnavailable, Op: op,
			Err: fmt.Errorf("language %q is not supported", requested)}
	}
	opts.Language = lang
	if opts.Matches <= 0 {
		opts.Matches = b.opts.MaxMatches
	}
	if isNull(opts.Prompt) {
		opts.Prompt = ""
	}

	if !b.perms.Has() {
		return nil, &Error{Kind: KindPermissionDenied, Op: op}
	}

	s := newSession(b, uuid.NewString(), lang, opts)
	b.mu.Lock()
	switch {
	case b.closed:
		b.mu.Unlock()
		return nil, &Error{Kind: KindAudioSession, Op: op, Err: errors.New("bridge is closed")}
	case b.active != nil:
		id := b.active.ID
		b.mu.Unlock()
		return nil, &Error{Kind: KindAudioSession, Op: op, Err: fmt.Errorf("session %s is already listening", id)}
	}
	b.active = s
	b.mu.Unlock()

	// The stream outlives the start request.
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := b.rec.Open(sctx, recognize.Params{
		Language:        lang,
		SampleRate:      b.opts.SampleRate,
		Channels:        b.opts.Channels,
		MaxAlternatives: opts.Matches,
	})
	if err != nil {
		cancel()
		err = recognizerError(op, err)
		b.release(s, err)
		s.failStart(err)
		return nil, err
	}

	if err := b.capture.Start(s.onAudio); err != nil {
		_ = stream.Close()
		cancel()
		err = &Error{Kind: KindAudioSession, Op: op, Err: err}
		b.release(s, err)
		s.failStart(err)
		return nil, err
	}

	b.metrics.SessionStarted()
	s.begin(stream, cancel)
	s.logger.Info("listening started",
		"language", lang,
		"matches", opts.Matches,
		"partial", opts.ShowPartial)
	return s, nil
}

// StopListening stops the active session and returns its final result.
func (b *Bridge) StopListening(ctx context.Context) (Result, error) {
	s := b.Active()
	if s == nil {
		return Result{}, &Error{Kind: KindNoActiveSession, Op: "stopListening"}
	}
	return s.Stop(ctx)
}

// Active returns the running session, or nil.
func (b *Bridge) Active() *Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// IsListening reports whether a session is running.
func (b *Bridge) IsListening() bool {
	return b.Active() != nil
}

// Close stops the active session and unsubscribes from permission changes.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	s := b.active
	unsubscribe := b.unsubscribe
	b.unsubscribe = nil
	b.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if s == nil {
		return nil
	}
	if _, err := s.Stop(ctx); err != nil && ctx.Err() != nil {
		return fmt.Errorf("stopping session: %w", err)
	}
	return nil
}

// release clears the active slot if s still holds it.
func (b *Bridge) release(s *Session, cause error) {
	b.mu.Lock()
	if b.active == s {
		b.active = nil
	}
	b.mu.Unlock()

	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return
	}
	outcome := "completed"
	if cause != nil {
		outcome = string(KindOf(cause))
	}
	b.metrics.SessionEnded(outcome, time.Since(s.StartedAt))
}

func (b *Bridge) onPermissionChange(st permission.Status) {
	if st == permission.Granted {
		return
	}
	if s := b.Active(); s != nil {
		s.logger.Warn("microphone permission revoked, ending session")
		s.abort(&Error{Kind: KindPermissionDenied, Op: "startListening", Err: errors.New("permission revoked")})
	}
}
