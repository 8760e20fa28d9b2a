// Package sessions implements the /sessions resource (spec.md §6):
// create, list-by-user, get, and end.
package sessions

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/devicelab/controller/internal/adapter/httpapi/common"
	"github.com/devicelab/controller/internal/core/domain"
)

// Manager is the slice of the reservation/session manager this resource
// depends on.
type Manager interface {
	CreateSession(ctx context.Context, deviceID, userID string) (*domain.Session, error)
	EndSession(ctx context.Context, sessionID string) error
	Session(id string) (*domain.Session, error)
	SessionsForUser(userID string) []*domain.Session
	AllSessions() []*domain.Session
}

// Handler implements the /sessions HTTP resource.
type Handler struct {
	manager Manager
}

// New builds a sessions Handler.
func New(manager Manager) *Handler {
	return &Handler{manager: manager}
}

// Routes mounts the /sessions resource onto r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/user/{userID}", h.forUser)
	r.Route("/{sessionID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Post("/end", h.end)
	})
}

type createSessionRequest struct {
	DeviceID string `json:"deviceId"`
	UserID   string `json:"userId"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RenderError(w, r, common.ErrorInvalidRequest(err))
		return
	}
	if req.DeviceID == "" || req.UserID == "" {
		common.RenderError(w, r, common.ErrorInvalidRequest(errMissingField("deviceId/userId")))
		return
	}
	session, err := h.manager.CreateSession(r.Context(), req.DeviceID, req.UserID)
	if err != nil {
		common.RenderError(w, r, common.ErrorFromErr(err))
		return
	}
	common.Respond(w, r, http.StatusCreated, session, "")
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	common.Respond(w, r, http.StatusOK, h.manager.AllSessions(), "")
}

func (h *Handler) forUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	common.Respond(w, r, http.StatusOK, h.manager.SessionsForUser(userID), "")
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	session, err := h.manager.Session(id)
	if err != nil {
		common.RenderError(w, r, common.ErrorFromErr(err))
		return
	}
	common.Respond(w, r, http.StatusOK, session, "")
}

func (h *Handler) end(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := h.manager.EndSession(r.Context(), id); err != nil {
		common.RenderError(w, r, common.ErrorFromErr(err))
		return
	}
	common.Respond(w, r, http.StatusOK, nil, "session ended")
}

type missingFieldError struct{ field string }

func (e *missingFieldError) Error() string { return e.field + " is required" }

func errMissingField(field string) error { return &missingFieldError{field: field} }
