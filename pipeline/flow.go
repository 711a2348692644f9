package pipeline

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cardinal-app/magiclink"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

var (
	ErrNoFlow           = errors.New("no sign-in in progress")
	ErrNoResponseWriter = errors.New("context does not contain a ResponseWriter")
	ErrNoRequest        = errors.New("context does not contain a Request")
)

// Flow is the pipeline's record of one sign-in attempt: the attempt
// history and the current round's private challenge parameters.
type Flow struct {
	ID       string               `json:"id"`
	Username string               `json:"username"`
	Session  []*magiclink.Attempt `json:"session"`
	Answer   string               `json:"answer,omitempty"`
	// AnswerExpiresAt is the epoch second after which Answer is no longer
	// accepted.
	AnswerExpiresAt int64     `json:"answerExpiresAt,omitempty"`
	Metadata        string    `json:"metadata,omitempty"`
	StartedAt       time.Time `json:"startedAt"`
}

// FlowStore persists the Flow between requests. Load hands out the flow at
// most once; it must be saved again to continue.
type FlowStore interface {
	Load(ctx context.Context) (*Flow, error)
	Save(ctx context.Context, f *Flow) error
	Clear(ctx context.Context) error
}

const (
	handleValueKey = "handle"
	// DefaultFlowCookie is the cookie name used by CookieFlowStore.
	DefaultFlowCookie = "magiclink-flow"
)

// CookieFlowStore keeps the Flow in a FlowBackend and gives the browser a
// signed and encrypted cookie holding a handle to it. Every Save issues a
// fresh handle and every Load redeems one, so a cookie is good for a single
// request.
//
// It requires the request and ResponseWriter to be present in the context
// (see SetContext).
type CookieFlowStore struct {
	store   *sessions.CookieStore
	backend FlowBackend
	maxAge  time.Duration
	Name    string
}

// NewCookieFlowStore creates a CookieFlowStore. Missing keys are replaced
// by random ones, which invalidates flows when the process restarts.
func NewCookieFlowStore(backend FlowBackend, authKey, encrKey []byte, maxAge time.Duration) *CookieFlowStore {
	if len(authKey) == 0 {
		authKey = securecookie.GenerateRandomKey(64)
	}
	if len(encrKey) == 0 {
		encrKey = securecookie.GenerateRandomKey(32)
	}
	cs := sessions.NewCookieStore(authKey, encrKey)
	cs.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	cs.MaxAge(int(maxAge / time.Second))
	return &CookieFlowStore{
		store:   cs,
		backend: backend,
		maxAge:  maxAge,
		Name:    DefaultFlowCookie,
	}
}

func (s *CookieFlowStore) session(ctx context.Context) (http.ResponseWriter, *http.Request, *sessions.Session, error) {
	rw, r := fromContext(ctx)
	if r == nil {
		return nil, nil, nil, ErrNoRequest
	}
	// A cookie that fails to decode yields a fresh session.
	sess, _ := s.store.Get(r, s.Name)
	return rw, r, sess, nil
}

func handleOf(sess *sessions.Session) string {
	h, _ := sess.Values[handleValueKey].(string)
	return h
}

func (s *CookieFlowStore) Load(ctx context.Context) (*Flow, error) {
	_, _, sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	h := handleOf(sess)
	if h == "" {
		return nil, ErrNoFlow
	}
	return s.backend.Take(ctx, h)
}

func (s *CookieFlowStore) Save(ctx context.Context, f *Flow) error {
	rw, r, sess, err := s.session(ctx)
	if err != nil {
		return err
	}
	if rw == nil {
		return ErrNoResponseWriter
	}
	if old := handleOf(sess); old != "" {
		if err := s.backend.Delete(ctx, old); err != nil {
			return err
		}
	}
	h, err := uuid.NewRandom()
	if err != nil {
		return err
	}
	if err := s.backend.Put(ctx, h.String(), f, s.maxAge); err != nil {
		return err
	}
	sess.Values[handleValueKey] = h.String()
	return sess.Save(r, rw)
}

func (s *CookieFlowStore) Clear(ctx context.Context) error {
	rw, r, sess, err := s.session(ctx)
	if err != nil {
		return err
	}
	if rw == nil {
		return ErrNoResponseWriter
	}
	if h := handleOf(sess); h != "" {
		if err := s.backend.Delete(ctx, h); err != nil {
			return err
		}
	}
	delete(sess.Values, handleValueKey)
	sess.Options.MaxAge = -1
	return sess.Save(r, rw)
}
