package recognize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// DeepgramConfig configures the Deepgram backend.
type DeepgramConfig struct {
	APIKey         string
	Model          string
	Languages      []string
	UtteranceEndMS int
}

// Deepgram streams audio to Deepgram's live transcription API.
type Deepgram struct {
	cfg    DeepgramConfig
	logger *slog.Logger
}

// NewDeepgram creates a Deepgram recognizer. No connection is made until Open.
func NewDeepgram(cfg DeepgramConfig, logger *slog.Logger) *Deepgram {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	return &Deepgram{
		cfg:    cfg,
		logger: logger.With("component", "deepgram"),
	}
}

func (d *Deepgram) Name() string { return "deepgram" }

// Available reports whether an API key is configured.
func (d *Deepgram) Available(ctx context.Context) error {
	if d.cfg.APIKey == "" {
		return fmt.Errorf("%w: deepgram api key not configured", ErrUnavailable)
	}
	return nil
}

// Languages returns the configured language list, or the built-in nova-2
// table when none is configured.
func (d *Deepgram) Languages(ctx context.Context) ([]string, error) {
	if len(d.cfg.Languages) == 0 {
		return DefaultLanguages(), nil
	}
	out := make([]string, len(d.cfg.Languages))
	copy(out, d.cfg.Languages)
	return out, nil
}

// Open connects a new live transcription stream.
func (d *Deepgram) Open(ctx context.Context, p Params) (Stream, error) {
	if err := d.Available(ctx); err != nil {
		return nil, err
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &deepgramStream{
		out:     make(chan Hypothesis, 64),
		ctx:     sctx,
		cancel:  cancel,
		maxAlts: p.MaxAlternatives,
		logger:  d.logger.With("language", p.Language),
	}

	transcriptOptions := d.liveOptions(p)
	clientOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}

	dgClient, err := client.NewWSUsingCallback(sctx, d.cfg.APIKey, clientOptions, transcriptOptions, &callback{stream: s})
	if err != nil {
		cancel()
		return nil, &Error{Code: CodeClient, Err: fmt.Errorf("deepgram: create client: %w", err)}
	}
	if connected := dgClient.Connect(); !connected {
		cancel()
		return nil, &Error{Code: CodeNetwork, Err: errors.New("deepgram: connection failed")}
	}
	s.dgClient = dgClient

	s.logger.Info("deepgram stream opened",
		slog.String("model", d.cfg.Model),
		slog.Int("sample_rate", p.SampleRate))
	return s, nil
}

// liveOptions builds the transcription options for one stream. Deepgram
// returns a single alternative unless more are requested.
func (d *Deepgram) liveOptions(p Params) *interfaces.LiveTranscriptionOptions {
	opts := &interfaces.LiveTranscriptionOptions{
		Model:          d.cfg.Model,
		Language:       p.Language,
		Encoding:       "linear16",
		SampleRate:     p.SampleRate,
		Channels:       p.Channels,
		InterimResults: true,
		VadEvents:      true,
		SmartFormat:    true,
		Punctuate:      true,
	}
	if p.MaxAlternatives > 1 {
		opts.Alternatives = p.MaxAlternatives
	}
	if d.cfg.UtteranceEndMS > 0 {
		opts.UtteranceEndMs = fmt.Sprintf("%d", d.cfg.UtteranceEndMS)
	}
	return opts
}

// deepgramStream adapts the SDK callback interface to a Stream.
type deepgramStream struct {
	dgClient *client.WSCallback
	out      chan Hypothesis
	ctx      context.Context
	cancel   context.CancelFunc
	maxAlts  int
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

func (s *deepgramStream) Write(pcm []byte) error {
	if s.dgClient == nil {
		return &Error{Code: CodeClient, Err: errors.New("deepgram: stream not connected")}
	}
	if _, err := s.dgClient.Write(pcm); err != nil {
		return &Error{Code: CodeNetwork, Err: fmt.Errorf("deepgram: write audio: %w", err)}
	}
	return nil
}

func (s *deepgramStream) Hypotheses() <-chan Hypothesis { return s.out }

// Finish asks Deepgram to flush and close the stream. The SDK returns once
// the socket is closed, after which no further callbacks arrive.
func (s *deepgramStream) Finish(ctx context.Context) error {
	if s.dgClient == nil {
		s.shutdown()
		return nil
	}
	done := make(chan struct{})
	go func() {
		s.dgClient.Finish()
		close(done)
	}()
	select {
	case <-done:
		s.shutdown()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *deepgramStream) Close() error {
	s.cancel()
	if s.dgClient != nil {
		s.dgClient.Stop()
	}
	s.shutdown()
	return nil
}

// shutdown closes the hypothesis channel once.
func (s *deepgramStream) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.out)
}

// emit delivers h unless the stream is shut down. Interim hypotheses are
// dropped when the consumer lags; final ones wait for room.
func (s *deepgramStream) emit(h Hypothesis) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if !h.IsFinal && h.Err == nil && !h.EndOfUtterance {
		select {
		case s.out <- h:
		default:
			s.logger.Warn("dropping interim hypothesis, consumer is behind")
		}
		return
	}
	select {
	case s.out <- h:
	case <-s.ctx.Done():
	}
}

// --- Callback Implementation ---

// callback receives SDK events for one stream.
type callback struct {
	stream *deepgramStream
}

func (c *callback) Open(or *msginterfaces.OpenResponse) error {
	c.stream.logger.Debug("deepgram connection opened")
	return nil
}

func (c *callback) Message(mr *msginterfaces.MessageResponse) error {
	if mr == nil || len(mr.Channel.Alternatives) == 0 {
		return nil
	}

	alts := make([]Alternative, 0, len(mr.Channel.Alternatives))
	for _, a := range mr.Channel.Alternatives {
		alts = append(alts, Alternative{Transcript: a.Transcript, Confidence: a.Confidence})
	}
	alts = trimAlternatives(alts, c.stream.maxAlts)
	if len(alts) == 0 {
		// Deepgram sends empty finals to close out silence.
		if mr.SpeechFinal {
			c.stream.emit(Hypothesis{IsFinal: true, EndOfUtterance: true})
		}
		return nil
	}

	c.stream.logger.Debug("transcript received",
		slog.String("transcript", alts[0].Transcript),
		slog.Bool("is_final", mr.IsFinal),
		slog.Bool("speech_final", mr.SpeechFinal))

	c.stream.emit(Hypothesis{
		Alternatives:   alts,
		IsFinal:        mr.IsFinal || mr.SpeechFinal,
		EndOfUtterance: mr.SpeechFinal,
	})
	return nil
}

func (c *callback) Metadata(md *msginterfaces.MetadataResponse) error {
	if md != nil {
		c.stream.logger.Debug("deepgram metadata received", slog.String("request_id", md.RequestID))
	}
	return nil
}

func (c *callback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	return nil
}

func (c *callback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	c.stream.emit(Hypothesis{IsFinal: true, EndOfUtterance: true})
	return nil
}

func (c *callback) Close(cr *msginterfaces.CloseResponse) error {
	c.stream.logger.Debug("deepgram connection closed")
	c.stream.shutdown()
	return nil
}

func (c *callback) Error(er *msginterfaces.ErrorResponse) error {
	if er == nil {
		return nil
	}
	c.stream.logger.Error("deepgram error",
		slog.String("error_code", er.ErrCode),
		slog.String("error_message", er.ErrMsg))
	code := classifyDeepgramError(er.ErrCode, er.ErrMsg)
	c.stream.emit(Hypothesis{Err: &Error{Code: code, Err: fmt.Errorf("deepgram: %s %s", er.ErrCode, er.ErrMsg)}})
	return nil
}

func (c *callback) UnhandledEvent(byData []byte) error {
	c.stream.logger.Debug("deepgram unhandled event", slog.String("data", string(byData)))
	return nil
}

// trimAlternatives drops empty transcripts and keeps at most max entries.
func trimAlternatives(alts []Alternative, max int) []Alternative {
	out := alts[:0]
	for _, a := range alts {
		if strings.TrimSpace(a.Transcript) == "" {
			continue
		}
		out = append(out, a)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

// classifyDeepgramError maps a Deepgram error code and message to a Code.
func classifyDeepgramError(code, msg string) Code {
	s := strings.ToLower(code + " " + msg)
	switch {
	case strings.Contains(s, "401"), strings.Contains(s, "403"),
		strings.Contains(s, "auth"), strings.Contains(s, "credential"):
		return CodeUnauthorized
	case strings.Contains(s, "timeout"):
		return CodeNetworkTimeout
	case strings.Contains(s, "429"), strings.Contains(s, "too many"), strings.Contains(s, "busy"):
		return CodeBusy
	case strings.Contains(s, "500"), strings.Contains(s, "502"), strings.Contains(s, "503"),
		strings.Contains(s, "server"):
		return CodeServer
	default:
		return CodeNetwork
	}
}
