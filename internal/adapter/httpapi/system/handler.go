// Package system implements the controller-wide /system resource
// (spec.md §6): aggregate health, registry/session statistics, and a
// filterable reservation listing.
package system

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/devicelab/controller/internal/adapter/httpapi/common"
	"github.com/devicelab/controller/internal/core/domain"
)

// Registry is the slice of the device registry this resource depends on.
type Registry interface {
	Snapshot() (total, online int)
}

// Supervisor is the slice of the supervisor this resource depends on.
type Supervisor interface {
	AllServers() []domain.DriverServerInfo
}

// Hub is the slice of the realtime hub this resource depends on.
type Hub interface {
	SubscriberCount() int
}

// ReservationManager is the slice of the reservation manager this
// resource depends on.
type ReservationManager interface {
	AllSessions() []*domain.Session
	Reservations(status domain.ReservationStatus, userID, deviceID string) []*domain.Reservation
}

// Handler implements the /system HTTP resource.
type Handler struct {
	registry    Registry
	supervisor  Supervisor
	hub         Hub
	reservation ReservationManager
}

// New builds a system Handler.
func New(registry Registry, supervisor Supervisor, hub Hub, reservation ReservationManager) *Handler {
	return &Handler{registry: registry, supervisor: supervisor, hub: hub, reservation: reservation}
}

// Routes mounts the /system resource onto r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.health)
	r.Get("/stats", h.stats)
	r.Get("/reservations", h.reservations)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	total, online := h.registry.Snapshot()
	snapshot := map[string]interface{}{
		"device_count":        total,
		"online_count":        online,
		"driver_server_count": len(h.supervisor.AllServers()),
		"subscriber_count":    h.hub.SubscriberCount(),
	}
	common.Respond(w, r, http.StatusOK, snapshot, "")
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	total, online := h.registry.Snapshot()
	sessions := h.reservation.AllSessions()

	active := 0
	for _, s := range sessions {
		if s.IsActive() {
			active++
		}
	}

	stats := map[string]interface{}{
		"device_count":    total,
		"online_count":    online,
		"session_count":   len(sessions),
		"active_sessions": active,
		"driver_servers":  h.supervisor.AllServers(),
	}
	common.Respond(w, r, http.StatusOK, stats, "")
}

func (h *Handler) reservations(w http.ResponseWriter, r *http.Request) {
	status := domain.ReservationStatus(r.URL.Query().Get("status"))
	userID := r.URL.Query().Get("userId")
	deviceID := r.URL.Query().Get("deviceId")
	common.Respond(w, r, http.StatusOK, h.reservation.Reservations(status, userID, deviceID), "")
}
