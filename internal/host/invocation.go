package host

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/speechbridge/internal/metrics"
)

// ErrAlreadyResolved is returned when an invocation is answered twice.
var ErrAlreadyResolved = errors.New("invocation already resolved")

// Sender writes one reply to the client.
type Sender func(Reply) error

// Invocation is the handle for one request. It is resolved or rejected
// exactly once; Emit may be called any number of times before that.
type Invocation struct {
	ID     string
	Action string

	send    Sender
	logger  *slog.Logger
	metrics *metrics.Metrics
	started time.Time

	mu       sync.Mutex
	resolved bool
}

func newInvocation(req Request, send Sender, logger *slog.Logger, m *metrics.Metrics) *Invocation {
	return &Invocation{
		ID:      req.ID,
		Action:  req.Action,
		send:    send,
		logger:  logger.With("request_id", req.ID, "action", req.Action),
		metrics: m,
		started: time.Now(),
	}
}

// Emit sends a keep-alive reply.
func (inv *Invocation) Emit(payload any) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.resolved {
		inv.logger.Debug("dropping emission after resolution")
		return ErrAlreadyResolved
	}
	return inv.send(Reply{ID: inv.ID, Status: "ok", Keep: true, Payload: payload})
}

// Resolve sends the successful terminal reply.
func (inv *Invocation) Resolve(payload any) error {
	return inv.finish(Reply{ID: inv.ID, Status: "ok", Payload: payload}, nil)
}

// Reject sends the failed terminal reply.
func (inv *Invocation) Reject(err error) error {
	return inv.finish(Reply{ID: inv.ID, Status: "error", Error: errorBody(err)}, err)
}

// Resolved reports whether a terminal reply was sent.
func (inv *Invocation) Resolved() bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.resolved
}

func (inv *Invocation) finish(r Reply, cause error) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.resolved {
		inv.logger.Warn("dropping late resolution", "status", r.Status)
		return ErrAlreadyResolved
	}
	inv.resolved = true

	d := time.Since(inv.started)
	inv.metrics.RecordCommand(inv.Action, cause, d)
	if cause != nil {
		inv.logger.Info("request failed", "error", cause, "duration", d)
	} else {
		inv.logger.Debug("request resolved", "duration", d)
	}
	return inv.send(r)
}
