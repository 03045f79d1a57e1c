package bridge

import (
	"errors"
	"fmt"

	"github.com/chaz8081/speechbridge/internal/recognize"
)

// Kind classifies a bridge failure. Kinds are stable strings that travel to
// host clients as error codes.
type Kind string

const (
	KindUnknown                Kind = "unknown"
	KindPermissionDenied       Kind = "permission_denied"
	KindRecognitionUnavailable Kind = "recognition_unavailable"
	KindAudioSession           Kind = "audio_session_error"
	KindNoActiveSession        Kind = "no_active_session"
	KindNotAuthorized          Kind = "not_authorized"
	KindRecognition            Kind = "recognition_error"
)

var kindMessages = map[Kind]string{
	KindPermissionDenied:       "Missing permission",
	KindRecognitionUnavailable: "Speech recognition service is not available on the system.",
	KindAudioSession:           "Audio recording error",
	KindNoActiveSession:        "No active listening session",
	KindNotAuthorized:          "Not authorized",
}

// Error is a classified bridge failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrPermissionDenied       = &Error{Kind: KindPermissionDenied}
	ErrRecognitionUnavailable = &Error{Kind: KindRecognitionUnavailable}
	ErrAudioSession           = &Error{Kind: KindAudioSession}
	ErrNoActiveSession        = &Error{Kind: KindNoActiveSession}
	ErrNotAuthorized          = &Error{Kind: KindNotAuthorized}
	ErrRecognition            = &Error{Kind: KindRecognition}
)

func (e *Error) Error() string {
	msg := e.Message()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Message returns the user-facing text for the failure. Recognition errors use
// the recognizer's message for the underlying code.
func (e *Error) Message() string {
	if e.Kind == KindRecognition {
		return recognize.CodeOf(e.Err).Message()
	}
	if msg, ok := kindMessages[e.Kind]; ok {
		return msg
	}
	return "Unknown error"
}

// KindOf returns the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindUnknown
}

// recognizerError classifies a failure reported by the recognizer backend.
func recognizerError(op string, err error) error {
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	switch {
	case errors.Is(err, recognize.ErrUnavailable):
		return &Error{Kind: KindRecognitionUnavailable, Op: op, Err: err}
	case recognize.CodeOf(err) == recognize.CodeUnauthorized:
		return &Error{Kind: KindNotAuthorized, Op: op, Err: err}
	case recognize.CodeOf(err) == recognize.CodeInsufficientPermissions:
		return &Error{Kind: KindPermissionDenied, Op: op, Err: err}
	default:
		return &Error{Kind: KindRecognition, Op: op, Err: err}
	}
}
