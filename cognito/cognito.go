// Package cognito adapts the magic link challenge to Amazon Cognito user
// pool Lambda triggers.
package cognito

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/cardinal-app/magiclink"
	"go.uber.org/zap"
)

// Trigger names accepted by Handler.
const (
	TriggerDefine   = "define"
	TriggerCreate   = "create"
	TriggerVerify   = "verify"
	TriggerPreAuth  = "pre-auth"
	TriggerPreToken = "pre-token"
)

// Triggers holds the handlers for each Cognito trigger.
type Triggers struct {
	ml     *magiclink.MagicLink
	logger *zap.Logger
}

// New returns trigger handlers backed by ml.
func New(ml *magiclink.MagicLink, logger *zap.Logger) *Triggers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Triggers{ml: ml, logger: logger}
}

// Handler returns the handler for the named trigger, suitable for
// lambda.Start.
func (t *Triggers) Handler(name string) (interface{}, error) {
	switch name {
	case TriggerDefine:
		return t.DefineAuthChallenge, nil
	case TriggerCreate:
		return t.CreateAuthChallenge, nil
	case TriggerVerify:
		return t.VerifyAuthChallenge, nil
	case TriggerPreAuth:
		return t.PreAuthentication, nil
	case TriggerPreToken:
		return t.PreTokenGeneration, nil
	}
	return nil, fmt.Errorf("unknown trigger %q", name)
}

func (t *Triggers) DefineAuthChallenge(ctx context.Context, e events.CognitoEventUserPoolsDefineAuthChallenge) (events.CognitoEventUserPoolsDefineAuthChallenge, error) {
	d := t.ml.Define(attempts(e.Request.Session))
	e.Response.IssueTokens = d.IssueTokens
	e.Response.FailAuthentication = d.FailAuthentication
	e.Response.ChallengeName = d.ChallengeName
	t.logger.Debug("define auth challenge",
		zap.String("username", e.UserName),
		zap.Int("attempts", len(e.Request.Session)),
		zap.Bool("issueTokens", d.IssueTokens),
		zap.Bool("fail", d.FailAuthentication),
	)
	return e, nil
}

func (t *Triggers) CreateAuthChallenge(ctx context.Context, e events.CognitoEventUserPoolsCreateAuthChallenge) (events.CognitoEventUserPoolsCreateAuthChallenge, error) {
	if e.Request.ChallengeName != magiclink.CustomChallenge {
		return e, nil
	}
	ch, err := t.ml.Create(ctx, magiclink.CreateRequest{
		Username: e.UserName,
		Email:    magiclink.RecipientFor(e.UserName, e.Request.UserAttributes),
	})
	if err != nil {
		return e, err
	}
	e.Response.PublicChallengeParameters = ch.PublicParameters
	e.Response.PrivateChallengeParameters = ch.PrivateParameters
	e.Response.ChallengeMetadata = ch.Metadata
	return e, nil
}

func (t *Triggers) VerifyAuthChallenge(ctx context.Context, e events.CognitoEventUserPoolsVerifyAuthChallenge) (events.CognitoEventUserPoolsVerifyAuthChallenge, error) {
	res, err := t.ml.Verify(ctx, magiclink.VerifyRequest{
		Answer:         answerString(e.Request.ChallengeAnswer),
		ExpectedAnswer: e.Request.PrivateChallengeParameters[magiclink.ParamAnswer],
		Username:       e.UserName,
	})
	if err != nil {
		return e, err
	}
	e.Response.AnswerCorrect = res.AnswerCorrect
	return e, nil
}

// PreAuthentication rejects users whose email is not verified.
func (t *Triggers) PreAuthentication(ctx context.Context, e events.CognitoEventUserPoolsPreAuthentication) (events.CognitoEventUserPoolsPreAuthentication, error) {
	if err := magiclink.CheckPreAuthentication(e.Request.UserAttributes); err != nil {
		t.logger.Info("pre-authentication rejected", zap.String("username", e.UserName), zap.Error(err))
		return e, err
	}
	return e, nil
}

// PreTokenGeneration adds the tenant and role claims to the ID token.
func (t *Triggers) PreTokenGeneration(ctx context.Context, e events.CognitoEventUserPoolsPreTokenGen) (events.CognitoEventUserPoolsPreTokenGen, error) {
	claims := magiclink.TokenClaims(e.Request.UserAttributes)
	if e.Response.ClaimsOverrideDetails.ClaimsToAddOrOverride == nil {
		e.Response.ClaimsOverrideDetails.ClaimsToAddOrOverride = make(map[string]string, len(claims))
	}
	for k, v := range claims {
		e.Response.ClaimsOverrideDetails.ClaimsToAddOrOverride[k] = v
	}
	return e, nil
}

func attempts(session []*events.CognitoEventUserPoolsChallengeResult) []*magiclink.Attempt {
	if session == nil {
		return nil
	}
	out := make([]*magiclink.Attempt, len(session))
	for i, s := range session {
		if s == nil {
			continue
		}
		out[i] = &magiclink.Attempt{
			ChallengeName:     s.ChallengeName,
			ChallengeResult:   s.ChallengeResult,
			ChallengeMetadata: s.ChallengeMetadata,
		}
	}
	return out
}

// answerString accepts the answer as a string or any JSON scalar.
func answerString(v interface{}) string {
	switch a := v.(type) {
	case nil:
		return ""
	case string:
		return a
	case float64:
		return strconv.FormatFloat(a, 'f', -1, 64)
	case json.Number:
		return a.String()
	case bool:
		return strconv.FormatBool(a)
	}
	return fmt.Sprint(v)
}
