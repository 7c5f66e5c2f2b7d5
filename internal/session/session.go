// Package session implements the client-side session adapter: a small
// stateful wrapper around a Temporal client connection that turns the
// workflow's signal/query protocol into two operations a CLI or TUI can
// build on — Submit an operation, and poll for the next event.
//
// Polling uses adaptive exponential backoff rather than a fixed interval:
// a busy session (the workflow is mid-turn, producing events continuously)
// gets polled near-instantly, while an idle session backs off to a gentle
// ceiling interval instead of hammering the Temporal frontend.
package session

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/mfateev/agentharness/internal/events"
	"github.com/mfateev/agentharness/internal/workflow"
)

// MinPollInterval is the backoff floor: the delay used immediately after an
// event was found, on the assumption more may follow soon.
const MinPollInterval = 50 * time.Millisecond

// MaxPollInterval is the backoff ceiling reached after repeated empty polls.
const MaxPollInterval = time.Second

// nextBackoff doubles the current interval, capped at MaxPollInterval.
func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > MaxPollInterval {
		return MaxPollInterval
	}
	return next
}

// OpKind identifies which signal an Op should be submitted as.
type OpKind string

const (
	OpUserInput OpKind = "user_input"
	OpApproval  OpKind = "approval"
	OpCancel    OpKind = "cancel"
	OpShutdown  OpKind = "shutdown"
)

// Op is a client-to-workflow operation. Exactly the fields relevant to Kind
// are read.
type Op struct {
	Kind OpKind

	// UserInput
	Content string

	// Approval
	Approval workflow.ApprovalResponse

	// Shutdown
	Reason string
}

// Session wraps a Temporal client connection scoped to one workflow run.
// Not safe for concurrent use from multiple goroutines — a single session
// is meant to be driven by one reader loop.
type Session struct {
	client     client.Client
	workflowID string

	cursor  int64
	pending []events.IndexedEvent
	backoff time.Duration
}

// New creates a Session for workflowID over an existing Temporal client
// connection. The caller owns the client's lifecycle (Close it when done).
func New(c client.Client, workflowID string) *Session {
	return &Session{
		client:     c,
		workflowID: workflowID,
		cursor:     -1,
		backoff:    MinPollInterval,
	}
}

// Submit delivers op to the workflow as the matching signal.
func (s *Session) Submit(ctx context.Context, op Op) error {
	switch op.Kind {
	case OpUserInput:
		return s.client.SignalWorkflow(ctx, s.workflowID, "", workflow.SignalReceiveUserTurn, workflow.UserTurn{Content: op.Content})
	case OpApproval:
		return s.client.SignalWorkflow(ctx, s.workflowID, "", workflow.SignalReceiveApproval, op.Approval)
	case OpCancel:
		return s.client.SignalWorkflow(ctx, s.workflowID, "", workflow.SignalRequestCancel, workflow.CancelRequest{})
	case OpShutdown:
		return s.client.SignalWorkflow(ctx, s.workflowID, "", workflow.SignalRequestShutdown, workflow.ShutdownRequest{Reason: op.Reason})
	default:
		return fmt.Errorf("session: unknown op kind %q", op.Kind)
	}
}

// GetState fetches the workflow's current phase and stats via the get_state
// query.
func (s *Session) GetState(ctx context.Context) (workflow.GetStateResponse, error) {
	resp, err := s.client.QueryWorkflow(ctx, s.workflowID, "", workflow.QueryGetState)
	if err != nil {
		return workflow.GetStateResponse{}, err
	}
	var state workflow.GetStateResponse
	if err := resp.Get(&state); err != nil {
		return workflow.GetStateResponse{}, err
	}
	return state, nil
}

// NextEvent blocks until the next event is available, ctx is cancelled, or
// a query fails. ok is false in both of the latter cases; err is nil when
// ctx ended the wait and carries the query error otherwise.
//
// compacted reports that the sink discarded events between the client's
// last-seen index and what it now holds; the caller should treat this as a
// resync point (e.g. re-render from the event's state) rather than assume
// an unbroken stream.
func (s *Session) NextEvent(ctx context.Context) (event events.IndexedEvent, compacted bool, ok bool, err error) {
	for {
		if len(s.pending) > 0 {
			event = s.pending[0]
			s.pending = s.pending[1:]
			s.cursor = event.Index
			s.backoff = MinPollInterval
			return event, false, true, nil
		}

		if ctx.Err() != nil {
			return events.IndexedEvent{}, false, false, nil
		}

		resp, qErr := s.client.QueryWorkflow(ctx, s.workflowID, "", workflow.QueryGetEventsSince, workflow.GetEventsSinceRequest{Since: s.cursor})
		if qErr != nil {
			return events.IndexedEvent{}, false, false, qErr
		}

		var result workflow.GetEventsSinceResponse
		if err := resp.Get(&result); err != nil {
			return events.IndexedEvent{}, false, false, err
		}

		if len(result.Events) > 0 {
			first := result.Events[0]
			s.pending = result.Events[1:]
			s.cursor = first.Index
			s.backoff = MinPollInterval
			return first, result.Compacted, true, nil
		}

		timer := time.NewTimer(s.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return events.IndexedEvent{}, false, false, nil
		case <-timer.C:
		}

		s.backoff = nextBackoff(s.backoff)
	}
}
