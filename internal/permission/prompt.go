package permission

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// StaticPrompter answers every prompt with the same value.
type StaticPrompter bool

func (p StaticPrompter) Prompt(ctx context.Context) (bool, error) {
	return bool(p), nil
}

// TerminalPrompter asks a y/N question on a terminal.
type TerminalPrompter struct {
	In  io.Reader
	Out io.Writer
}

const promptText = "speechbridge wants to use the microphone. Allow? [y/N] "

// Prompt writes the question and waits for one line of input. Anything other
// than y or yes is a refusal.
func (p *TerminalPrompter) Prompt(ctx context.Context) (bool, error) {
	if _, err := fmt.Fprint(p.Out, promptText); err != nil {
		return false, fmt.Errorf("writing prompt: %w", err)
	}

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := bufio.NewReader(p.In).ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
		ch <- answer{line, err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-ch:
		if a.err == io.EOF {
			return false, nil
		}
		if a.err != nil {
			return false, fmt.Errorf("reading answer: %w", a.err)
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}

// NewPrompter returns the prompter for a config prompt mode.
func NewPrompter(mode string, in io.Reader, out io.Writer) (Prompter, error) {
	switch mode {
	case "terminal", "":
		return &TerminalPrompter{In: in, Out: out}, nil
	case "grant":
		return StaticPrompter(true), nil
	case "deny":
		return StaticPrompter(false), nil
	default:
		return nil, fmt.Errorf("unknown prompt mode %q", mode)
	}
}
