package magiclink

import (
	"context"
	"time"
)

// Event types emitted by the challenge stages.
const (
	EventChallengeIssued   = "challenge.issued"
	EventChallengeVerified = "challenge.verified"
	EventChallengeRejected = "challenge.rejected"
)

// Event describes a challenge lifecycle step. It never carries codes or
// tokens.
type Event struct {
	Type     string    `json:"type"`
	Username string    `json:"username"`
	Outcome  string    `json:"outcome,omitempty"`
	Time     time.Time `json:"time"`
}

// EventSink receives audit events. Emission is best effort: a failing sink
// is logged and does not change the outcome of a stage.
type EventSink interface {
	Emit(ctx context.Context, e Event) error
}

type nopSink struct{}

func (nopSink) Emit(context.Context, Event) error { return nil }
