package magiclink

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// VerifyRequest carries the user's answer and the current round's private
// answer, which may be empty if the pipeline did not retain it.
type VerifyRequest struct {
	Answer         string
	ExpectedAnswer string
	Username       string
}

// VerifyResult reports whether the answer was accepted.
type VerifyResult struct {
	AnswerCorrect bool `json:"answerCorrect"`
}

// Verifier accepts either the current round's short code or any unexpired
// code or link token stored for the user.
type Verifier struct {
	store  CodeStore
	sink   EventSink
	logger *zap.Logger
	now    func() time.Time
}

// NewVerifier returns a Verifier consulting store.
func NewVerifier(store CodeStore, opts ...Option) *Verifier {
	return newVerifier(store, buildOptions(opts))
}

func newVerifier(store CodeStore, o settings) *Verifier {
	return &Verifier{
		store:  store,
		sink:   o.sink,
		logger: o.logger,
		now:    o.now,
	}
}

// Verify checks req.Answer. Invalid, expired, foreign or reused codes are a
// negative result, not an error; store failures are returned.
func (v *Verifier) Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	answer := strings.TrimSpace(req.Answer)
	if answer == "" {
		return v.result(ctx, req.Username, false, "empty"), nil
	}

	if req.ExpectedAnswer != "" &&
		subtle.ConstantTimeCompare([]byte(answer), []byte(req.ExpectedAnswer)) == 1 {
		return v.result(ctx, req.Username, true, "challenge"), nil
	}

	if v.store == nil {
		return VerifyResult{}, ErrNoStore
	}
	entry, err := v.store.GetAndDelete(ctx, answer)
	if errors.Is(err, ErrCodeNotFound) {
		return v.result(ctx, req.Username, false, "unknown"), nil
	} else if err != nil {
		return VerifyResult{}, fmt.Errorf("consume code: %w", err)
	}

	switch {
	case entry.Username != req.Username:
		return v.result(ctx, req.Username, false, "foreign"), nil
	case !entry.ValidAt(v.now()):
		return v.result(ctx, req.Username, false, "expired"), nil
	}
	return v.result(ctx, req.Username, true, "store"), nil
}

func (v *Verifier) result(ctx context.Context, username string, ok bool, outcome string) VerifyResult {
	typ := EventChallengeRejected
	if ok {
		typ = EventChallengeVerified
	}
	v.logger.Debug("challenge answer checked",
		zap.String("username", username),
		zap.Bool("correct", ok),
		zap.String("outcome", outcome),
	)
	emit(ctx, v.sink, v.logger, Event{
		Type:     typ,
		Username: username,
		Outcome:  outcome,
		Time:     v.now(),
	})
	return VerifyResult{AnswerCorrect: ok}
}
