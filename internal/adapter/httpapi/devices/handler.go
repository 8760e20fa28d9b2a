// Package devices implements the /devices resource (spec.md §6): list,
// get, refresh, reserve/release, generic + typed command shortcuts,
// install-app, and per-device session/reservation listings.
package devices

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/devicelab/controller/internal/adapter/httpapi/common"
	"github.com/devicelab/controller/internal/core/domain"
)

// Registry is the slice of the device registry this resource depends on.
type Registry interface {
	List() []*domain.Device
	Get(id string) (*domain.Device, error)
	Discover(ctx context.Context)
	Dispatch(ctx context.Context, deviceID string, payload domain.Payload) (string, error)
}

// ReservationManager is the slice of the reservation manager this
// resource depends on directly (reserve/release themselves are routed
// here rather than through the realtime hub, matching spec.md §6's HTTP
// surface, which exposes them as ordinary request-response endpoints).
type ReservationManager interface {
	Reserve(ctx context.Context, deviceID, userID string, duration time.Duration, purpose string) (*domain.Reservation, error)
	Release(ctx context.Context, deviceID string) error
	SessionsForDevice(deviceID string) []*domain.Session
	ActiveReservationsForDevice(deviceID string) []*domain.Reservation
}

// Handler implements the /devices HTTP resource.
type Handler struct {
	registry    Registry
	reservation ReservationManager
	uploadDir   string
}

// New builds a devices Handler. uploadDir is the staging directory for
// install-app multipart uploads (spec.md §6 "File system layout").
func New(registry Registry, reservation ReservationManager, uploadDir string) *Handler {
	return &Handler{registry: registry, reservation: reservation, uploadDir: uploadDir}
}

// DeviceRoutes mounts the per-device routes under a /{deviceID} scope.
// List and Refresh are mounted separately by router.go so it can
// interleave the appium resource's routes under the same scope.
func (h *Handler) DeviceRoutes(r chi.Router) {
	r.Get("/", h.get)
	r.Post("/reserve", h.reserve)
	r.Post("/release", h.release)
	r.Post("/command", h.command)
	r.Post("/tap", h.tap)
	r.Post("/swipe", h.swipe)
	r.Post("/drag", h.drag)
	r.Post("/key", h.key)
	r.Post("/text", h.text)
	r.Post("/shell", h.shell)
	r.Post("/install-app", h.installApp)
	r.Get("/sessions", h.sessions)
	r.Get("/reservations", h.reservations)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	common.Respond(w, r, http.StatusOK, h.registry.List(), "")
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deviceID")
	d, err := h.registry.Get(id)
	if err != nil {
		common.RenderError(w, r, common.ErrorFromErr(err))
		return
	}
	common.Respond(w, r, http.StatusOK, d, "")
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.registry.Discover(r.Context())
	common.Respond(w, r, http.StatusOK, h.registry.List(), "discovery triggered")
}

func (h *Handler) sessions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deviceID")
	common.Respond(w, r, http.StatusOK, h.reservation.SessionsForDevice(id), "")
}

func (h *Handler) reservations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deviceID")
	common.Respond(w, r, http.StatusOK, h.reservation.ActiveReservationsForDevice(id), "")
}
