package bridge

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/chaz8081/speechbridge/internal/metrics"
	"github.com/chaz8081/speechbridge/internal/recognize"
)

// DefaultMatches is the number of matches returned when a request does not
// specify a limit.
const DefaultMatches = 5

// StartOptions configures one listening session.
type StartOptions struct {
	// Language is a BCP-47 tag. Empty or "null" selects the default.
	Language string
	// Matches limits the number of alternatives per result. Zero or less
	// means DefaultMatches.
	Matches int
	// Prompt is shown to the user while listening. Empty or "null" means none.
	Prompt string
	// ShowPartial enables streaming of intermediate results.
	ShowPartial bool
	ShowPopup   bool
}

// Result is one recognition update delivered to the client.
type Result struct {
	SessionID  string   `json:"sessionId"`
	Matches    []string `json:"matches"`
	IsPartial  bool     `json:"isPartial"`
	IsFinal    bool     `json:"isFinal"`
	Confidence float64  `json:"confidence,omitempty"`
	AudioURI   string   `json:"audioUri,omitempty"`
}

// Best returns the top match, or "" when there is none.
func (r Result) Best() string {
	if len(r.Matches) == 0 {
		return ""
	}
	return r.Matches[0]
}

// Event is one item on a session's event stream. Exactly one terminal event
// (a final Result or an error) ends the stream.
type Event struct {
	Result Result
	Err    error
}

// Options configures a Bridge.
type Options struct {
	// DefaultLanguage is used when a request omits the language.
	DefaultLanguage string
	// MaxMatches replaces DefaultMatches when a request omits the limit.
	MaxMatches int
	SampleRate int
	Channels   int
	// RecordDir, when set, receives a WAV file of every completed session.
	RecordDir string
	// FlushTimeout bounds how long a stop waits for the recognizer's last
	// results.
	FlushTimeout time.Duration
	// StopOnUtteranceEnd ends the session when the speaker pauses.
	StopOnUtteranceEnd bool

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxMatches <= 0 {
		o.MaxMatches = DefaultMatches
	}
	if o.SampleRate <= 0 {
		o.SampleRate = 16000
	}
	if o.Channels <= 0 {
		o.Channels = 1
	}
	if o.FlushTimeout <= 0 {
		o.FlushTimeout = 2 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

func isNull(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == "null"
}

// resolveLanguage applies the fallback chain: request, configured default,
// process locale, en-US.
func (o Options) resolveLanguage(lang string) string {
	if !isNull(lang) {
		return strings.TrimSpace(lang)
	}
	if !isNull(o.DefaultLanguage) {
		return o.DefaultLanguage
	}
	if tag := localeLanguage(); tag != "" {
		return tag
	}
	return "en-US"
}

func localeLanguage() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if tag := recognize.NormalizeTag(os.Getenv(key)); tag != "" {
			return tag
		}
	}
	return ""
}
