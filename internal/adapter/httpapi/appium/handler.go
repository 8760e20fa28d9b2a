// Package appium implements the driver-server supervisor's HTTP surface
// (spec.md §6): per-device start/stop/status/logs, and the all-servers
// listing.
package appium

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/devicelab/controller/internal/adapter/httpapi/common"
	"github.com/devicelab/controller/internal/core/domain"
)

// Supervisor is the slice of the driver-server supervisor this resource
// depends on.
type Supervisor interface {
	Start(ctx context.Context, deviceID string) (int, error)
	Stop(deviceID string)
	Status(deviceID string) (domain.DriverServerInfo, bool)
	AllServers() []domain.DriverServerInfo
	Logs(deviceID string) []*domain.LogEntry
	ClearLogs(deviceID string)
	DefaultCapabilities(deviceID string) (map[string]any, error)
}

// ReservationManager is the slice of the reservation/session manager
// auto-start needs to fold "reserve + start driver + open session" into
// one call (spec.md §6, §8 Scenario 1).
type ReservationManager interface {
	Reserve(ctx context.Context, deviceID, userID string, duration time.Duration, purpose string) (*domain.Reservation, error)
	Release(ctx context.Context, deviceID string) error
	CreateSession(ctx context.Context, deviceID, userID string) (*domain.Session, error)
}

// Handler implements the /devices/{id}/appium and /appium/servers
// resources.
type Handler struct {
	supervisor  Supervisor
	reservation ReservationManager
}

// New builds an appium Handler.
func New(supervisor Supervisor, reservation ReservationManager) *Handler {
	return &Handler{supervisor: supervisor, reservation: reservation}
}

// DeviceRoutes mounts the per-device appium routes under a devices
// resource's /{deviceID} scope.
func (h *Handler) DeviceRoutes(r chi.Router) {
	r.Route("/appium", func(r chi.Router) {
		r.Post("/start", h.start)
		r.Post("/auto-start", h.autoStart)
		r.Post("/stop", h.stop)
		r.Get("/status", h.status)
		r.Get("/logs", h.logs)
		r.Delete("/logs", h.clearLogs)
	})
}

// ServerRoutes mounts the all-servers listing at the top level.
func (h *Handler) ServerRoutes(r chi.Router) {
	r.Get("/servers", h.servers)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deviceID")
	port, err := h.supervisor.Start(r.Context(), id)
	if err != nil {
		common.RenderError(w, r, common.ErrorFromErr(err))
		return
	}
	common.Respond(w, r, http.StatusOK, map[string]int{"port": port}, "driver server ready")
}

// autoStartRequest is the /devices/{id}/appium/auto-start request body
// (spec.md §6, §8 Scenario 1).
type autoStartRequest struct {
	UserID   string `json:"userId"`
	Duration int    `json:"duration"` // minutes, defaults to 120
	Purpose  string `json:"purpose"`
}

func (req autoStartRequest) Validate() error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.UserID, validation.Required),
		validation.Field(&req.Duration, validation.Min(0)),
	)
}

// autoStartResponse bundles everything a caller needs to drive the
// device over WebDriver in one round trip (spec.md §6, §8 Scenario 1).
type autoStartResponse struct {
	Port         int                 `json:"port"`
	URL          string              `json:"url"`
	Capabilities map[string]any      `json:"capabilities"`
	Reservation  *domain.Reservation `json:"reservation"`
	Session      *domain.Session     `json:"session"`
}

// autoStart folds reserve + start driver + open session into one call
// (spec.md §6 "reserve + start driver + open session, one call"; §8
// Scenario 1). On partial failure it compensates so the device is never
// left reserved/started without the caller knowing.
func (h *Handler) autoStart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deviceID")

	var req autoStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		common.RenderError(w, r, common.ErrorInvalidRequest(err))
		return
	}
	if req.Duration <= 0 {
		req.Duration = 120
	}
	if err := req.Validate(); err != nil {
		common.RenderError(w, r, common.ErrorInvalidRequest(err))
		return
	}

	ctx := r.Context()

	resv, err := h.reservation.Reserve(ctx, id, req.UserID, time.Duration(req.Duration)*time.Minute, req.Purpose)
	if err != nil {
		common.RenderError(w, r, common.ErrorFromErr(err))
		return
	}

	port, err := h.supervisor.Start(ctx, id)
	if err != nil {
		if relErr := h.reservation.Release(ctx, id); relErr != nil {
			common.RenderError(w, r, common.ErrorFromErr(relErr))
			return
		}
		common.RenderError(w, r, common.ErrorFromErr(err))
		return
	}

	session, err := h.reservation.CreateSession(ctx, id, req.UserID)
	if err != nil {
		h.supervisor.Stop(id)
		if relErr := h.reservation.Release(ctx, id); relErr != nil {
			common.RenderError(w, r, common.ErrorFromErr(relErr))
			return
		}
		common.RenderError(w, r, common.ErrorFromErr(err))
		return
	}

	caps, err := h.supervisor.DefaultCapabilities(id)
	if err != nil {
		caps = map[string]any{}
	}

	common.Respond(w, r, http.StatusOK, autoStartResponse{
		Port:         port,
		URL:          fmt.Sprintf("http://%s:%d/wd/hub", hostOnly(r.Host), port),
		Capabilities: caps,
		Reservation:  resv,
		Session:      session,
	}, "device reserved and driver ready")
}

// hostOnly strips any port from r.Host, since the driver server's own
// port (not the API's) belongs in the returned WebDriver URL.
func hostOnly(host string) string {
	for i := 0; i < len(host); i++ {
		if host[i] == ':' {
			return host[:i]
		}
	}
	return host
}

func (h *Handler) stop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deviceID")
	h.supervisor.Stop(id)
	common.Respond(w, r, http.StatusOK, nil, "driver server stopped")
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deviceID")
	info, ok := h.supervisor.Status(id)
	if !ok {
		common.Respond(w, r, http.StatusOK, map[string]bool{"running": false}, "")
		return
	}
	common.Respond(w, r, http.StatusOK, info, "")
}

func (h *Handler) logs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deviceID")
	common.Respond(w, r, http.StatusOK, h.supervisor.Logs(id), "")
}

func (h *Handler) clearLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "deviceID")
	h.supervisor.ClearLogs(id)
	common.Respond(w, r, http.StatusOK, nil, "logs cleared")
}

func (h *Handler) servers(w http.ResponseWriter, r *http.Request) {
	common.Respond(w, r, http.StatusOK, h.supervisor.AllServers(), "")
}
