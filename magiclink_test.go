package magiclink

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type testTransport struct {
	recipient string
	link      string
	code      string
	err       error
}

func (t *testTransport) Send(ctx context.Context, recipient, linkURL, code string) error {
	t.recipient = recipient
	t.link = linkURL
	t.code = code
	return t.err
}

type testGenerator struct {
	token string
	err   error
}

func (g testGenerator) Generate(ctx context.Context) (string, error) {
	return g.token, g.err
}

type failingStore struct {
	putErr, takeErr error
}

func (s failingStore) Put(ctx context.Context, code, username string, ttl time.Duration) error {
	return s.putErr
}

func (s failingStore) GetAndDelete(ctx context.Context, code string) (*CodeEntry, error) {
	return nil, s.takeErr
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Emit(ctx context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time {
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestMagicLink(t *testing.T, tt *testTransport, opts ...Option) (*MagicLink, *MemStore, *clock) {
	c := &clock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	ms := newMemStore(c.now, time.Hour)
	t.Cleanup(ms.Release)
	opts = append([]Option{WithClock(c.now)}, opts...)
	return New(ms, tt, opts...), ms, c
}

func TestCreateChallenge(t *testing.T) {
	tt := &testTransport{}
	ml, ms, c := newTestMagicLink(t, tt)

	ch, err := ml.Create(context.Background(), CreateRequest{Username: "alice", Email: "alice@example.com"})
	require.NoError(t, err)

	code := ch.PrivateParameters[ParamAnswer]
	token := ch.PrivateParameters[ParamLinkToken]
	assert.Regexp(t, regexp.MustCompile(`^[1-9][0-9]{5}$`), code)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{48}$`), token)
	assert.Equal(t, map[string]string{ParamDelivery: DeliveryEmail}, ch.PublicParameters)
	assert.Equal(t, ChallengeMetadata, ch.Metadata)

	assert.Equal(t, "alice@example.com", tt.recipient)
	assert.Equal(t, code, tt.code)
	assert.Equal(t, "myapp://magic?code="+token, tt.link)
	assert.Equal(t, tt.link, ch.LinkURL)

	// Both values are stored for the user with the same TTL.
	assert.Equal(t, 2, ms.Len())
	for _, k := range []string{code, token} {
		e, err := ms.GetAndDelete(context.Background(), k)
		require.NoError(t, err)
		assert.Equal(t, "alice", e.Username)
		assert.Equal(t, c.t.Unix()+600, e.ExpiresAt)
	}
}

func TestCreateChallengeEmailFallback(t *testing.T) {
	tt := &testTransport{}
	ml, _, _ := newTestMagicLink(t, tt)
	_, err := ml.Create(context.Background(), CreateRequest{Username: "bob@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", tt.recipient)
}

func TestCreateChallengeHTTPBase(t *testing.T) {
	tt := &testTransport{}
	ml, _, _ := newTestMagicLink(t, tt,
		WithConfig(Config{DeepLinkBase: "https://auth.example.com/"}),
		WithGenerators(testGenerator{token: "123456"}, testGenerator{token: "abc def"}))
	ch, err := ml.Create(context.Background(), CreateRequest{Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "https://auth.example.com/auth/magic/consume?code=abc+def", ch.LinkURL)
}

func TestCreateChallengeErrors(t *testing.T) {
	ctx := context.Background()
	req := CreateRequest{Username: "alice"}

	_, err := New(nil, &testTransport{}).Create(ctx, req)
	assert.Equal(t, ErrNoStore, err)
	_, err = New(NewMemStore(), nil).Create(ctx, req)
	assert.Equal(t, ErrNoTransport, err)

	storeErr := errors.New("table unavailable")
	_, err = New(failingStore{putErr: storeErr}, &testTransport{}).Create(ctx, req)
	assert.ErrorIs(t, err, storeErr)

	sendErr := errors.New("mailbox unavailable")
	_, err = New(NewMemStore(), &testTransport{err: sendErr}).Create(ctx, req)
	assert.ErrorIs(t, err, sendErr)

	genErr := errors.New("no entropy")
	_, err = New(NewMemStore(), &testTransport{}, WithGenerators(testGenerator{err: genErr}, nil)).Create(ctx, req)
	assert.ErrorIs(t, err, genErr)
}

func TestVerifyFastPath(t *testing.T) {
	tt := &testTransport{}
	ml, ms, _ := newTestMagicLink(t, tt)
	ctx := context.Background()

	ch, err := ml.Create(ctx, CreateRequest{Username: "alice", Email: "alice@example.com"})
	require.NoError(t, err)

	code := ch.PrivateParameters[ParamAnswer]
	res, err := ml.Verify(ctx, VerifyRequest{Answer: " " + code + "\n", ExpectedAnswer: code, Username: "alice"})
	require.NoError(t, err)
	assert.True(t, res.AnswerCorrect)
	// No store access on the fast path.
	assert.Equal(t, 2, ms.Len())
}

func TestVerifyStorePathSingleUse(t *testing.T) {
	tt := &testTransport{}
	ml, _, _ := newTestMagicLink(t, tt)
	ctx := context.Background()

	ch, err := ml.Create(ctx, CreateRequest{Username: "alice"})
	require.NoError(t, err)

	for _, key := range []string{ParamLinkToken, ParamAnswer} {
		answer := ch.PrivateParameters[key]
		res, err := ml.Verify(ctx, VerifyRequest{Answer: answer, Username: "alice"})
		require.NoError(t, err)
		assert.True(t, res.AnswerCorrect, key)

		res, err = ml.Verify(ctx, VerifyRequest{Answer: answer, Username: "alice"})
		require.NoError(t, err)
		assert.False(t, res.AnswerCorrect, key+" reused")
	}
}

func TestVerifyMismatchedExpectedFallsBackToStore(t *testing.T) {
	tt := &testTransport{}
	ml, _, _ := newTestMagicLink(t, tt)
	ctx := context.Background()

	ch, err := ml.Create(ctx, CreateRequest{Username: "alice"})
	require.NoError(t, err)

	res, err := ml.Verify(ctx, VerifyRequest{
		Answer:         ch.PrivateParameters[ParamLinkToken],
		ExpectedAnswer: ch.PrivateParameters[ParamAnswer],
		Username:       "alice",
	})
	require.NoError(t, err)
	assert.True(t, res.AnswerCorrect)
}

func TestVerifyExpired(t *testing.T) {
	tt := &testTransport{}
	ml, _, c := newTestMagicLink(t, tt)
	ctx := context.Background()

	ch, err := ml.Create(ctx, CreateRequest{Username: "alice"})
	require.NoError(t, err)

	c.advance(599 * time.Second)
	res, err := ml.Verify(ctx, VerifyRequest{Answer: ch.PrivateParameters[ParamAnswer], Username: "alice"})
	require.NoError(t, err)
	assert.True(t, res.AnswerCorrect)

	c.advance(time.Second)
	res, err = ml.Verify(ctx, VerifyRequest{Answer: ch.PrivateParameters[ParamLinkToken], Username: "alice"})
	require.NoError(t, err)
	assert.False(t, res.AnswerCorrect)
}

func TestVerifyCrossUser(t *testing.T) {
	tt := &testTransport{}
	ml, _, _ := newTestMagicLink(t, tt)
	ctx := context.Background()

	ch, err := ml.Create(ctx, CreateRequest{Username: "userA"})
	require.NoError(t, err)

	res, err := ml.Verify(ctx, VerifyRequest{Answer: ch.PrivateParameters[ParamLinkToken], Username: "userB"})
	require.NoError(t, err)
	assert.False(t, res.AnswerCorrect)
}

func TestVerifyEmptyAnswer(t *testing.T) {
	ml := New(failingStore{takeErr: errors.New("must not be called")}, &testTransport{})
	for _, a := range []string{"", "   "} {
		res, err := ml.Verify(context.Background(), VerifyRequest{Answer: a, ExpectedAnswer: "", Username: "alice"})
		assert.NoError(t, err)
		assert.False(t, res.AnswerCorrect)
	}
}

func TestVerifyStoreError(t *testing.T) {
	storeErr := errors.New("connection reset")
	ml := New(failingStore{takeErr: storeErr}, &testTransport{})
	_, err := ml.Verify(context.Background(), VerifyRequest{Answer: "123456", Username: "alice"})
	assert.ErrorIs(t, err, storeErr)
}

func TestPreviousRoundCodesStayValid(t *testing.T) {
	tt := &testTransport{}
	ml, _, _ := newTestMagicLink(t, tt)
	ctx := context.Background()

	first, err := ml.Create(ctx, CreateRequest{Username: "alice"})
	require.NoError(t, err)
	second, err := ml.Create(ctx, CreateRequest{Username: "alice"})
	require.NoError(t, err)

	res, err := ml.Verify(ctx, VerifyRequest{
		Answer:         first.PrivateParameters[ParamLinkToken],
		ExpectedAnswer: second.PrivateParameters[ParamAnswer],
		Username:       "alice",
	})
	require.NoError(t, err)
	assert.True(t, res.AnswerCorrect)
}

func TestEventsEmitted(t *testing.T) {
	sink := &recordingSink{err: errors.New("broker down")}
	tt := &testTransport{}
	ml, _, _ := newTestMagicLink(t, tt, WithEventSink(sink))
	ctx := context.Background()

	ch, err := ml.Create(ctx, CreateRequest{Username: "alice"})
	require.NoError(t, err)
	res, err := ml.Verify(ctx, VerifyRequest{Answer: "nope", Username: "alice"})
	require.NoError(t, err)
	assert.False(t, res.AnswerCorrect)
	res, err = ml.Verify(ctx, VerifyRequest{Answer: ch.PrivateParameters[ParamAnswer], Username: "alice"})
	require.NoError(t, err)
	assert.True(t, res.AnswerCorrect)

	require.Len(t, sink.events, 3)
	assert.Equal(t, EventChallengeIssued, sink.events[0].Type)
	assert.Equal(t, EventChallengeRejected, sink.events[1].Type)
	assert.Equal(t, "unknown", sink.events[1].Outcome)
	assert.Equal(t, EventChallengeVerified, sink.events[2].Type)
	for _, e := range sink.events {
		assert.Equal(t, "alice", e.Username)
		assert.False(t, strings.Contains(e.Outcome, ch.PrivateParameters[ParamAnswer]))
	}
}

func TestConfigDefaults(t *testing.T) {
	ml := New(NewMemStore(), &testTransport{}, WithConfig(Config{CodeTTL: time.Minute}))
	cfg := ml.Config()
	assert.Equal(t, DefaultDeepLinkBase, cfg.DeepLinkBase)
	assert.Equal(t, time.Minute, cfg.CodeTTL)
	assert.Equal(t, DefaultRetryCeiling, cfg.RetryCeiling)
	assert.True(t, ml.Define(attempts(false, false, false)).FailAuthentication)
}

func TestEventSinkFailureLoggedOnce(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sink := &recordingSink{err: errors.New("broker down")}
	ml, _, _ := newTestMagicLink(t, &testTransport{}, WithEventSink(sink), WithLogger(zap.New(core)))

	_, err := ml.Create(context.Background(), CreateRequest{Username: "alice"})
	require.NoError(t, err)

	entries := logs.FilterMessage("failed to emit event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, EventChallengeIssued, entries[0].ContextMap()["type"])
	assert.Equal(t, 1, logs.Len())
}
