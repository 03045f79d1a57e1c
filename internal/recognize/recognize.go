// Package recognize provides streaming speech recognizer backends.
//
// Supported backends:
//   - deepgram: Deepgram live transcription over WebSocket (default)
package recognize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chaz8081/speechbridge/internal/config"
)

// ErrUnavailable reports that a backend cannot serve requests at all,
// e.g. because it has no credentials.
var ErrUnavailable = errors.New("recognizer unavailable")

// Alternative is one candidate transcript for a stretch of speech.
type Alternative struct {
	Transcript string
	Confidence float64
}

// Hypothesis is one update from a Stream. Alternatives are ordered best
// first. A hypothesis with Err set is terminal.
type Hypothesis struct {
	Alternatives   []Alternative
	IsFinal        bool
	EndOfUtterance bool
	Err            error
}

// Params configures a recognition stream.
type Params struct {
	Language        string
	SampleRate      int
	Channels        int
	MaxAlternatives int
}

// Stream is one live recognition session against a backend.
type Stream interface {
	// Write sends a chunk of S16LE PCM audio.
	Write(pcm []byte) error
	// Hypotheses delivers results until the stream ends, then is closed.
	Hypotheses() <-chan Hypothesis
	// Finish signals the end of audio. Remaining hypotheses are still
	// delivered before Hypotheses is closed.
	Finish(ctx context.Context) error
	// Close tears the stream down immediately.
	Close() error
}

// Recognizer converts live audio to text.
type Recognizer interface {
	Name() string
	// Available returns nil when the backend can open streams.
	Available(ctx context.Context) error
	// Languages returns the supported language tags in a stable order.
	Languages(ctx context.Context) ([]string, error)
	// Open starts a new stream.
	Open(ctx context.Context, p Params) (Stream, error)
}

// New creates a Recognizer based on the config backend setting.
func New(cfg config.RecognizerConfig, logger *slog.Logger) (Recognizer, error) {
	switch cfg.Backend {
	case "deepgram", "":
		return NewDeepgram(DeepgramConfig{
			APIKey:         cfg.APIKey,
			Model:          cfg.Model,
			Languages:      cfg.Languages,
			UtteranceEndMS: cfg.UtteranceEndMS,
		}, logger), nil
	default:
		return nil, fmt.Errorf("recognize: unknown backend %q (supported: deepgram)", cfg.Backend)
	}
}
