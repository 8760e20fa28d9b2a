// Package reservation implements the Reservation & Session Manager
// (spec.md §4.3): reserve/release a device and start/end sessions nested
// within a reservation, mutating device status under the registry lock.
package reservation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/uuid"

	"github.com/devicelab/controller/internal/core/controllererr"
	"github.com/devicelab/controller/internal/core/domain"
	"github.com/devicelab/controller/internal/core/port"
)

// DeviceRegistry is the slice of the registry this manager depends on.
// Defined locally (rather than in port) since only this package and its
// tests need it — the registry itself has no reservation-manager
// dependency, keeping the construction order registry -> reservation
// manager -> hub free of cycles (spec.md §9).
type DeviceRegistry interface {
	Get(id string) (*domain.Device, error)
	Transition(id string, to domain.DeviceStatus, mutate func(d *domain.Device)) error
}

// Manager arbitrates exclusive device access via reservations and
// sessions (spec.md §3, §4.3). All state lives in memory; it is wiped on
// restart (Non-goal: no durable storage across restarts).
type Manager struct {
	mu sync.Mutex

	reservations map[string]*domain.Reservation
	sessions     map[string]*domain.Session

	// activeReservationByDevice / activeSessionByDevice enforce spec.md
	// §8's "at most one active X per device" invariants in O(1).
	activeReservationByDevice map[string]string
	activeSessionByDevice     map[string]string

	registry    DeviceRegistry
	broadcaster port.Broadcaster
	clock       port.Clock
	logger      *slog.Logger
}

// New builds a Manager bound to registry. broadcaster may be nil at
// construction and wired later via SetBroadcaster.
func New(registry DeviceRegistry, clock port.Clock, logger *slog.Logger) *Manager {
	if clock == nil {
		clock = port.SystemClock{}
	}
	return &Manager{
		reservations:              make(map[string]*domain.Reservation),
		sessions:                  make(map[string]*domain.Session),
		activeReservationByDevice: make(map[string]string),
		activeSessionByDevice:     make(map[string]string),
		registry:                  registry,
		clock:                     clock,
		logger:                    logger,
	}
}

// SetBroadcaster wires the realtime hub's broadcast sink.
func (m *Manager) SetBroadcaster(b port.Broadcaster) { m.broadcaster = b }

// Reserve grants a reservation for deviceID to userID (spec.md §4.3).
func (m *Manager) Reserve(ctx context.Context, deviceID, userID string, duration time.Duration, purpose string) (*domain.Reservation, error) {
	device, err := m.registry.Get(deviceID)
	if err != nil {
		return nil, err
	}
	if !device.IsAvailableForReservation() {
		return nil, controllererr.Wrap("reservation.Reserve", controllererr.KindInvalidState,
			"device not available: current status %s", device.Status)
	}

	now := m.clock.Now()
	r := &domain.Reservation{
		ID:        newID(),
		DeviceID:  deviceID,
		UserID:    userID,
		StartTime: now,
		EndTime:   now.Add(duration),
		Status:    domain.ReservationActive,
		Purpose:   purpose,
	}

	err = m.registry.Transition(deviceID, domain.DeviceStatusReserved, func(d *domain.Device) {
		reservedAt := now
		d.ReservedBy = userID
		d.ReservedAt = &reservedAt
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.reservations[r.ID] = r
	m.activeReservationByDevice[deviceID] = r.ID
	m.mu.Unlock()

	m.broadcastDevice(deviceID)
	return r, nil
}

// Release ends any active reservation for deviceID and unconditionally
// returns the device to online (spec.md §4.3).
func (m *Manager) Release(ctx context.Context, deviceID string) error {
	now := m.clock.Now()

	m.mu.Lock()
	if resID, ok := m.activeReservationByDevice[deviceID]; ok {
		r := m.reservations[resID]
		r.Status = domain.ReservationCompleted
		r.EndTime = now
		delete(m.activeReservationByDevice, deviceID)
	}
	m.mu.Unlock()

	err := m.registry.Transition(deviceID, domain.DeviceStatusOnline, func(d *domain.Device) {
		d.ReservedBy = ""
		d.ReservedAt = nil
	})
	if err != nil {
		return err
	}

	m.broadcastDevice(deviceID)
	return nil
}

// CreateSession starts a session on deviceID, transitioning it to in-use
// (spec.md §4.3). The reservation, if any, remains active.
func (m *Manager) CreateSession(ctx context.Context, deviceID, userID string) (*domain.Session, error) {
	s := &domain.Session{
		ID:        newID(),
		DeviceID:  deviceID,
		UserID:    userID,
		StartTime: m.clock.Now(),
		Status:    domain.SessionActive,
	}

	if err := m.registry.Transition(deviceID, domain.DeviceStatusInUse, nil); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.activeSessionByDevice[deviceID] = s.ID
	m.mu.Unlock()

	m.broadcastDevice(deviceID)
	return s, nil
}

// EndSession marks sessionID completed and returns its device to
// reserved (if a reservation still holds) or online (spec.md §4.3).
func (m *Manager) EndSession(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return controllererr.New("reservation.EndSession", controllererr.KindNotFound, errNotFound(sessionID))
	}
	now := m.clock.Now()
	s.Status = domain.SessionCompleted
	s.EndTime = &now
	delete(m.activeSessionByDevice, s.DeviceID)
	deviceID := s.DeviceID
	m.mu.Unlock()

	device, err := m.registry.Get(deviceID)
	if err != nil {
		return err
	}

	target := domain.DeviceStatusOnline
	if device.ReservedBy != "" {
		target = domain.DeviceStatusReserved
	}
	if err := m.registry.Transition(deviceID, target, nil); err != nil {
		return err
	}

	m.broadcastDevice(deviceID)
	return nil
}

// Session returns a copy of one session by id.
func (m *Manager) Session(id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, controllererr.New("reservation.Session", controllererr.KindNotFound, errNotFound(id))
	}
	cp := *s
	return &cp, nil
}

// SessionsForDevice returns every session recorded for deviceID.
func (m *Manager) SessionsForDevice(deviceID string) []*domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Session
	for _, s := range m.sessions {
		if s.DeviceID == deviceID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out
}

// SessionsForUser returns every session recorded for userID.
func (m *Manager) SessionsForUser(userID string) []*domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out
}

// AllSessions returns every recorded session, used by the /sessions list
// endpoint.
func (m *Manager) AllSessions() []*domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		cp := *s
		out = append(out, &cp)
	}
	return out
}

// ActiveReservationsForDevice returns the device's active reservation, if
// any (spec.md §8: at most one active reservation per device).
func (m *Manager) ActiveReservationsForDevice(deviceID string) []*domain.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.activeReservationByDevice[deviceID]
	if !ok {
		return nil
	}
	cp := *m.reservations[id]
	return []*domain.Reservation{&cp}
}

// Reservations returns every recorded reservation matching the supplied
// filters (empty string/nil means "no filter"), supporting
// /system/reservations (SPEC_FULL.md §C).
func (m *Manager) Reservations(status domain.ReservationStatus, userID, deviceID string) []*domain.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Reservation
	for _, r := range m.reservations {
		if status != "" && r.Status != status {
			continue
		}
		if userID != "" && r.UserID != userID {
			continue
		}
		if deviceID != "" && r.DeviceID != deviceID {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out
}

func (m *Manager) broadcastDevice(deviceID string) {
	if m.broadcaster == nil {
		return
	}
	d, err := m.registry.Get(deviceID)
	if err != nil {
		return
	}
	m.broadcaster.BroadcastAll(port.NewEvent(port.EventDeviceUpdated, port.EventData{Device: d}))
}

func newID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return "res-" + time.Now().UTC().Format("150405.000000000")
	}
	return id.String()
}

func errNotFound(id string) error { return &notFoundError{id: id} }

type notFoundError struct{ id string }

func (e *notFoundError) Error() string { return "not found: " + e.id }
