package recognize

import (
	"errors"
	"fmt"
)

// Code classifies a recognizer failure.
type Code int

const (
	CodeUnknown Code = iota
	CodeAudio
	CodeClient
	CodeInsufficientPermissions
	CodeNetwork
	CodeNetworkTimeout
	CodeNoMatch
	CodeBusy
	CodeServer
	CodeSpeechTimeout
	CodeUnauthorized
)

var codeMessages = map[Code]string{
	CodeAudio:                   "Audio recording error",
	CodeClient:                  "Client side error",
	CodeInsufficientPermissions: "Insufficient permissions",
	CodeNetwork:                 "Network error",
	CodeNetworkTimeout:          "Network timeout",
	CodeNoMatch:                 "No match",
	CodeBusy:                    "RecognitionService busy",
	CodeServer:                  "error from server",
	CodeSpeechTimeout:           "No speech input",
	CodeUnauthorized:            "Not authorized",
}

// Message returns the user-facing text for the code.
func (c Code) Message() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return "Didn't understand, please try again."
}

// Error is a classified recognizer failure.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Code.Message()
	}
	return fmt.Sprintf("%s: %v", e.Code.Message(), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf extracts the failure code from err, or CodeUnknown.
func CodeOf(err error) Code {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	return CodeUnknown
}
