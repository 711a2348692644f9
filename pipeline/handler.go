package pipeline

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cardinal-app/magiclink"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type startRequest struct {
	Username string `json:"username"`
}

type respondRequest struct {
	Answer string `json:"answer"`
}

type errorBody struct {
	Error string `json:"error"`
}

// RegisterRoutes mounts POST /start and POST /respond on r.
func (p *Pipeline) RegisterRoutes(r chi.Router) {
	r.Post("/start", p.handleStart)
	r.Post("/respond", p.handleRespond)
}

func (p *Pipeline) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	step, err := p.Start(SetContext(r.Context(), w, r), req.Username)
	p.reply(w, step, err)
}

func (p *Pipeline) handleRespond(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	step, err := p.Respond(SetContext(r.Context(), w, r), req.Answer)
	p.reply(w, step, err)
}

func (p *Pipeline) reply(w http.ResponseWriter, step *Step, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, step)
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrAuthFailed):
		// Unknown users and failed sign-ins look the same.
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: ErrAuthFailed.Error()})
	case errors.Is(err, magiclink.ErrEmailNotVerified):
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error()})
	case errors.Is(err, ErrNoFlow):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		p.logger.Error("sign-in step failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
