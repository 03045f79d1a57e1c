package host

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/chaz8081/speechbridge/internal/bridge"
	"github.com/chaz8081/speechbridge/internal/metrics"
)

// Surface is the set of bridge operations the host exposes.
type Surface interface {
	Initialize(ctx context.Context)
	IsRecognitionAvailable(ctx context.Context) bool
	StartListening(ctx context.Context, opts bridge.StartOptions) (*bridge.Session, error)
	StopListening(ctx context.Context) (bridge.Result, error)
	GetSupportedLanguages(ctx context.Context) []string
	HasPermission() bool
	RequestPermission(ctx context.Context) bool
}

// Dispatcher routes requests to bridge operations.
type Dispatcher struct {
	bridge  Surface
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewDispatcher creates a Dispatcher for b.
func NewDispatcher(b Surface, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		bridge:  b,
		logger:  logger.With("component", "dispatcher"),
		metrics: m,
	}
}

// Dispatch runs req to completion and answers it through send. Sessions
// started by the request are reported to track so their owner can stop them.
// startListening blocks until its session ends.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, send Sender, track func(*bridge.Session)) *Invocation {
	inv := newInvocation(req, send, d.logger, d.metrics)

	switch req.Action {
	case ActionInitialize:
		d.bridge.Initialize(ctx)
		_ = inv.Resolve(nil)
	case ActionIsRecognitionAvailable:
		_ = inv.Resolve(d.bridge.IsRecognitionAvailable(ctx))
	case ActionGetSupportedLanguages:
		_ = inv.Resolve(d.bridge.GetSupportedLanguages(ctx))
	case ActionHasPermission:
		_ = inv.Resolve(d.bridge.HasPermission())
	case ActionRequestPermission:
		if !d.bridge.HasPermission() {
			// The prompt may wait on the operator's terminal.
			_ = inv.Emit(Notice{Event: "permission", Prompt: "waiting for microphone consent"})
		}
		_ = inv.Resolve(d.bridge.RequestPermission(ctx))
	case ActionStopListening:
		res, err := d.bridge.StopListening(ctx)
		if err != nil {
			_ = inv.Reject(err)
			break
		}
		_ = inv.Resolve(res)
	case ActionStartListening:
		d.startListening(ctx, inv, req.Args, track)
	default:
		_ = inv.Reject(&requestError{code: CodeInvalidAction, msg: fmt.Sprintf("unknown action %q", req.Action)})
	}
	return inv
}

func (d *Dispatcher) startListening(ctx context.Context, inv *Invocation, raw json.RawMessage, track func(*bridge.Session)) {
	opts, err := decodeStartArgs(raw)
	if err != nil {
		_ = inv.Reject(err)
		return
	}
	sess, err := d.bridge.StartListening(ctx, opts)
	if err != nil {
		_ = inv.Reject(err)
		return
	}
	if track != nil {
		track(sess)
	}

	resolved := sess.Options()
	_ = inv.Emit(Notice{
		Event:     "started",
		SessionID: sess.ID,
		Language:  sess.Language,
		ShowPopup: resolved.ShowPopup,
	})
	if resolved.Prompt != "" && resolved.ShowPopup {
		_ = inv.Emit(Notice{Event: "prompt", SessionID: sess.ID, Prompt: resolved.Prompt})
	}

	for ev := range sess.Events() {
		switch {
		case ev.Err != nil:
			_ = inv.Reject(ev.Err)
			return
		case ev.Result.IsFinal:
			_ = inv.Resolve(ev.Result)
			return
		default:
			if err := inv.Emit(ev.Result); err != nil {
				d.logger.Debug("partial result not delivered", "error", err)
			}
		}
	}
	if !inv.Resolved() {
		_ = inv.Reject(&bridge.Error{Kind: bridge.KindUnknown, Op: ActionStartListening,
			Err: fmt.Errorf("session %s ended without a result", sess.ID)})
	}
}

// startArgs mirrors bridge.StartOptions with an optional popup flag, which
// defaults to true.
type startArgs struct {
	Language    string `mapstructure:"language"`
	Matches     int    `mapstructure:"matches"`
	Prompt      string `mapstructure:"prompt"`
	ShowPartial bool   `mapstructure:"showPartial"`
	ShowPopup   *bool  `mapstructure:"showPopup"`
}

// positionalStartArgs is the argument order of the array form.
var positionalStartArgs = []string{"language", "matches", "prompt", "showPartial", "showPopup"}

// decodeStartArgs accepts no arguments, a positional array or an object.
func decodeStartArgs(raw json.RawMessage) (bridge.StartOptions, error) {
	input := map[string]any{}
	trimmed := bytes.TrimSpace(raw)

	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
	case trimmed[0] == '[':
		var list []any
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return bridge.StartOptions{}, invalidArgument("args: " + err.Error())
		}
		if len(list) > len(positionalStartArgs) {
			return bridge.StartOptions{}, invalidArgument(fmt.Sprintf("args: expected at most %d values, got %d",
				len(positionalStartArgs), len(list)))
		}
		for i, v := range list {
			if v != nil {
				input[positionalStartArgs[i]] = v
			}
		}
	case trimmed[0] == '{':
		if err := json.Unmarshal(trimmed, &input); err != nil {
			return bridge.StartOptions{}, invalidArgument("args: " + err.Error())
		}
		for k, v := range input {
			if v == nil {
				delete(input, k)
			}
		}
	default:
		return bridge.StartOptions{}, invalidArgument("args must be an array or an object")
	}

	var args startArgs
	if err := decodeSettings(input, &args); err != nil {
		return bridge.StartOptions{}, invalidArgument("args: " + err.Error())
	}
	if args.Matches < 0 {
		return bridge.StartOptions{}, invalidArgument("args: matches must not be negative")
	}
	showPopup := true
	if args.ShowPopup != nil {
		showPopup = *args.ShowPopup
	}
	return bridge.StartOptions{
		Language:    args.Language,
		Matches:     args.Matches,
		Prompt:      args.Prompt,
		ShowPartial: args.ShowPartial,
		ShowPopup:   showPopup,
	}, nil
}

// decodeSettings decodes a loosely typed map into out. Keys match field
// names regardless of case, underscores and hyphens.
func decodeSettings(input map[string]any, out any) error {
	if len(input) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		MatchName: func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		},
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

func normalizeKey(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", "")
	return strings.ReplaceAll(s, "-", "")
}
