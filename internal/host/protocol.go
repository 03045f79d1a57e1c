// Package host serves the bridge operations to client applications over a
// WebSocket command channel.
//
// Each request names an action and carries an id. Every request receives
// exactly one terminal reply with that id; long-running actions may send
// keep-alive replies (keep=true) first, such as partial recognition results.
package host

import (
	"encoding/json"
	"errors"

	"github.com/chaz8081/speechbridge/internal/bridge"
)

// Action names accepted on the command channel.
const (
	ActionInitialize             = "initialize"
	ActionIsRecognitionAvailable = "isRecognitionAvailable"
	ActionStartListening         = "startListening"
	ActionStopListening          = "stopListening"
	ActionGetSupportedLanguages  = "getSupportedLanguages"
	ActionHasPermission          = "hasPermission"
	ActionRequestPermission      = "requestPermission"
)

// Error codes beyond the bridge error kinds.
const (
	CodeInvalidRequest  = "invalid_request"
	CodeInvalidAction   = "invalid_action"
	CodeInvalidArgument = "invalid_argument"
	CodeNotAuthorized   = string(bridge.KindNotAuthorized)
)

// Request is one command from the client.
type Request struct {
	ID     string          `json:"id"`
	Action string          `json:"action"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// Reply answers a Request.
type Reply struct {
	ID      string     `json:"id"`
	Status  string     `json:"status"` // "ok" or "error"
	Keep    bool       `json:"keep"`
	Payload any        `json:"payload,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Notice is a keep-alive payload announcing session state to the client.
type Notice struct {
	Event     string `json:"event"` // "started", "prompt" or "permission"
	SessionID string `json:"sessionId"`
	Language  string `json:"language,omitempty"`
	Prompt    string `json:"prompt,omitempty"`
	ShowPopup bool   `json:"showPopup,omitempty"`
}

// requestError is a failure detected by the host before reaching the bridge.
type requestError struct {
	code string
	msg  string
}

func (e *requestError) Error() string { return e.msg }

func invalidArgument(msg string) error {
	return &requestError{code: CodeInvalidArgument, msg: msg}
}

// errorBody converts err into its wire form.
func errorBody(err error) *ErrorBody {
	var re *requestError
	if errors.As(err, &re) {
		return &ErrorBody{Code: re.code, Message: re.msg}
	}
	var be *bridge.Error
	if errors.As(err, &be) {
		return &ErrorBody{Code: string(be.Kind), Message: be.Message()}
	}
	return &ErrorBody{Code: string(bridge.KindUnknown), Message: err.Error()}
}
