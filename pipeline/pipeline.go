// Package pipeline is a self-hosted identity pipeline driving the magic link
// challenge. It plays the part a cloud identity provider plays in
// production: it owns the attempt history, calls the challenge stages in
// order and mints tokens once the user passes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cardinal-app/magiclink"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrAuthFailed = errors.New("authentication failed")

// Step is the pipeline's answer to the client: either another challenge or
// tokens.
type Step struct {
	ChallengeName string            `json:"challengeName,omitempty"`
	Parameters    map[string]string `json:"challengeParameters,omitempty"`
	Tokens        *Tokens           `json:"tokens,omitempty"`
}

// Pipeline runs pre-authentication, the define/create/verify loop and token
// generation.
type Pipeline struct {
	ml     *magiclink.MagicLink
	dir    Directory
	flows  FlowStore
	signer *TokenSigner
	logger *zap.Logger
	now    func() time.Time
}

func New(ml *magiclink.MagicLink, dir Directory, flows FlowStore, signer *TokenSigner, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		ml:     ml,
		dir:    dir,
		flows:  flows,
		signer: signer,
		logger: logger,
		now:    time.Now,
	}
}

// Start begins a sign-in for username and issues the first challenge.
func (p *Pipeline) Start(ctx context.Context, username string) (*Step, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUserNotFound
	}
	user, err := p.dir.Lookup(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := magiclink.CheckPreAuthentication(user.Attributes); err != nil {
		p.logger.Info("pre-authentication rejected", zap.String("username", user.Username), zap.Error(err))
		return nil, err
	}
	f := &Flow{
		ID:        uuid.NewString(),
		Username:  user.Username,
		StartedAt: p.now(),
	}
	return p.advance(ctx, f, user)
}

// Respond answers the current challenge of the flow in progress. The flow
// is consumed by this call; a replayed request finds no flow.
func (p *Pipeline) Respond(ctx context.Context, answer string) (*Step, error) {
	f, err := p.flows.Load(ctx)
	if err != nil {
		return nil, err
	}
	user, err := p.dir.Lookup(ctx, f.Username)
	if err != nil {
		return nil, err
	}
	expected := f.Answer
	if p.now().Unix() >= f.AnswerExpiresAt {
		expected = ""
	}
	res, err := p.ml.Verify(ctx, magiclink.VerifyRequest{
		Answer:         answer,
		ExpectedAnswer: expected,
		Username:       f.Username,
	})
	if err != nil {
		return nil, err
	}
	f.Session = append(f.Session, &magiclink.Attempt{
		ChallengeName:     magiclink.CustomChallenge,
		ChallengeResult:   res.AnswerCorrect,
		ChallengeMetadata: f.Metadata,
	})
	return p.advance(ctx, f, user)
}

func (p *Pipeline) advance(ctx context.Context, f *Flow, user *User) (*Step, error) {
	d := p.ml.Define(f.Session)
	switch {
	case d.IssueTokens:
		if err := p.flows.Clear(ctx); err != nil {
			return nil, err
		}
		toks, err := p.signer.Sign(user.Username, magiclink.TokenClaims(user.Attributes))
		if err != nil {
			return nil, fmt.Errorf("sign token: %w", err)
		}
		p.logger.Info("sign-in succeeded", zap.String("username", user.Username), zap.String("flow", f.ID))
		return &Step{Tokens: toks}, nil
	case d.FailAuthentication:
		if err := p.flows.Clear(ctx); err != nil {
			return nil, err
		}
		p.logger.Info("sign-in failed", zap.String("username", user.Username), zap.String("flow", f.ID))
		return nil, ErrAuthFailed
	}

	ch, err := p.ml.Create(ctx, magiclink.CreateRequest{
		Username: user.Username,
		Email:    magiclink.RecipientFor(user.Username, user.Attributes),
	})
	if err != nil {
		return nil, err
	}
	f.Answer = ch.PrivateParameters[magiclink.ParamAnswer]
	f.AnswerExpiresAt = p.now().Add(p.ml.Config().CodeTTL).Unix()
	f.Metadata = ch.Metadata
	if err := p.flows.Save(ctx, f); err != nil {
		return nil, err
	}
	return &Step{ChallengeName: d.ChallengeName, Parameters: ch.PublicParameters}, nil
}
