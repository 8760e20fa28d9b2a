// Package analytics implements the supplemented /analytics resource:
// richer aggregate breakdowns over the in-memory registry and
// reservation state than /system/stats provides (counts by platform,
// by status, reservation-duration histogram, hourly reservation
// counts). There is no persisted history to query — every figure here
// is derived from the live registry/reservation snapshot, mirroring
// the dashboard-aggregation style of the teacher's active-group
// analytics service, adapted from a database-backed read to an
// in-memory one.
package analytics

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/devicelab/controller/internal/adapter/httpapi/common"
	"github.com/devicelab/controller/internal/core/domain"
)

// Registry is the slice of the device registry this resource depends on.
type Registry interface {
	List() []*domain.Device
}

// ReservationManager is the slice of the reservation manager this
// resource depends on.
type ReservationManager interface {
	Reservations(status domain.ReservationStatus, userID, deviceID string) []*domain.Reservation
}

// Handler implements the /analytics HTTP resource.
type Handler struct {
	registry    Registry
	reservation ReservationManager
}

// New builds an analytics Handler.
func New(registry Registry, reservation ReservationManager) *Handler {
	return &Handler{registry: registry, reservation: reservation}
}

// Routes mounts the /analytics resource onto r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.overview)
	r.Get("/devices", h.devices)
	r.Get("/hourly", h.hourly)
}

type overviewResponse struct {
	DeviceCount       int             `json:"device_count"`
	DevicesByPlatform map[string]int  `json:"devices_by_platform"`
	DevicesByStatus   map[string]int  `json:"devices_by_status"`
	ReservationCount  int             `json:"reservation_count"`
	DurationHistogram map[string]int  `json:"duration_histogram_minutes"`
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	devices := h.registry.List()
	reservations := h.reservation.Reservations("", "", "")

	resp := overviewResponse{
		DeviceCount:       len(devices),
		DevicesByPlatform: countByPlatform(devices),
		DevicesByStatus:   countByStatus(devices),
		ReservationCount:  len(reservations),
		DurationHistogram: durationHistogram(reservations),
	}
	common.Respond(w, r, http.StatusOK, resp, "")
}

func (h *Handler) devices(w http.ResponseWriter, r *http.Request) {
	devices := h.registry.List()
	resp := map[string]interface{}{
		"by_platform": countByPlatform(devices),
		"by_status":   countByStatus(devices),
		"total":       len(devices),
	}
	common.Respond(w, r, http.StatusOK, resp, "")
}

func (h *Handler) hourly(w http.ResponseWriter, r *http.Request) {
	reservations := h.reservation.Reservations("", "", "")
	common.Respond(w, r, http.StatusOK, hourlyCounts(reservations), "")
}

func countByPlatform(devices []*domain.Device) map[string]int {
	counts := make(map[string]int)
	for _, d := range devices {
		counts[string(d.Platform)]++
	}
	return counts
}

func countByStatus(devices []*domain.Device) map[string]int {
	counts := make(map[string]int)
	for _, d := range devices {
		counts[string(d.Status)]++
	}
	return counts
}

// durationHistogram buckets reservations by EndTime minus StartTime (the
// requested duration while active, the held time once released) in
// 30-minute-wide bands labelled "lower-upper" in minutes.
func durationHistogram(reservations []*domain.Reservation) map[string]int {
	buckets := make(map[string]int)
	for _, res := range reservations {
		minutes := int(res.EndTime.Sub(res.StartTime).Minutes())
		bucket := (minutes / 30) * 30
		label := strconv.Itoa(bucket) + "-" + strconv.Itoa(bucket+30)
		buckets[label]++
	}
	return buckets
}

// hourlyCounts tallies reservations by the hour-of-day they started,
// returned as a dense 0-23 slice for easy charting.
func hourlyCounts(reservations []*domain.Reservation) []int {
	counts := make([]int, 24)
	for _, res := range reservations {
		hour := res.StartTime.Hour()
		counts[hour]++
	}
	return counts
}

