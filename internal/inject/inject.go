// Package inject delivers recognized text to the user: typed into the active
// application with robotgo, pasted through the clipboard, or printed.
package inject

import (
	"fmt"
	"io"
	"runtime"

	"github.com/go-vgo/robotgo"
)

// Method selects how text is delivered.
type Method string

const (
	MethodType  Method = "type"
	MethodPaste Method = "paste"
	MethodPrint Method = "print"
)

// TextInjector delivers text.
type TextInjector interface {
	Inject(text string) error
}

// Compile-time interface satisfaction check.
var _ TextInjector = (*Injector)(nil)

// keyboard is the slice of robotgo the injector uses.
type keyboard interface {
	Type(text string)
	ReadClipboard() (string, error)
	WriteClipboard(text string) error
	KeyTap(key string, modifier string) error
}

type robotgoKeyboard struct{}

func (robotgoKeyboard) Type(text string)                 { robotgo.TypeStr(text) }
func (robotgoKeyboard) ReadClipboard() (string, error)   { return robotgo.ReadAll() }
func (robotgoKeyboard) WriteClipboard(text string) error { return robotgo.WriteAll(text) }
func (robotgoKeyboard) KeyTap(key, modifier string) error {
	return robotgo.KeyTap(key, modifier)
}

// Injector delivers text with the configured method.
type Injector struct {
	method Method
	out    io.Writer
	kb     keyboard
}

// NewInjector creates an Injector. out receives text in print mode.
func NewInjector(method Method, out io.Writer) (*Injector, error) {
	switch method {
	case MethodType, MethodPaste, MethodPrint:
	case "":
		method = MethodType
	default:
		return nil, fmt.Errorf("inject: unknown method %q", method)
	}
	if out == nil {
		out = io.Discard
	}
	return &Injector{method: method, out: out, kb: robotgoKeyboard{}}, nil
}

// Method returns the delivery method.
func (inj *Injector) Method() Method { return inj.method }

// Inject delivers text. Empty text is ignored.
func (inj *Injector) Inject(text string) error {
	if text == "" {
		return nil
	}

	switch inj.method {
	case MethodPrint:
		if _, err := fmt.Fprintln(inj.out, text); err != nil {
			return fmt.Errorf("inject: print: %w", err)
		}
		return nil
	case MethodPaste:
		return inj.paste(text)
	default:
		inj.kb.Type(text)
		return nil
	}
}

// paste copies text to the clipboard and pastes it. The previous clipboard
// contents are restored afterwards.
func (inj *Injector) paste(text string) error {
	prev, _ := inj.kb.ReadClipboard()

	if err := inj.kb.WriteClipboard(text); err != nil {
		return fmt.Errorf("inject: write to clipboard: %w", err)
	}

	mod := pasteModifier(runtime.GOOS)
	if err := inj.kb.KeyTap("v", mod); err != nil {
		return fmt.Errorf("inject: key tap %s+v: %w", mod, err)
	}

	_ = inj.kb.WriteClipboard(prev)
	return nil
}

func pasteModifier(goos string) string {
	if goos == "darwin" {
		return "cmd"
	}
	return "ctrl"
}
