// Package realtimehub implements the Realtime Hub (spec.md §4.5): the
// fan-out/fan-in broker between subscribers and the registry,
// reservation manager, supervisor, and mirror pump. It is the Broadcaster
// every other component depends on through the thin port.Broadcaster
// interface (spec.md §9 "Service wiring"), adapted from this codebase's
// SSE hub (internal/adapter/realtime's pre-rewrite Hub).
package realtimehub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/devicelab/controller/internal/core/controllererr"
	"github.com/devicelab/controller/internal/core/domain"
	"github.com/devicelab/controller/internal/core/port"
)

// DeviceRegistry is the slice of the registry the hub needs to route
// inbound commands and refresh requests.
type DeviceRegistry interface {
	List() []*domain.Device
	Get(id string) (*domain.Device, error)
	Discover(ctx context.Context)
	Dispatch(ctx context.Context, deviceID string, payload domain.Payload) (string, error)
	Snapshot() (total, online int)
}

// ReservationManager is the slice of the reservation manager the hub
// routes reserve/release/session messages to.
type ReservationManager interface {
	Reserve(ctx context.Context, deviceID, userID string, duration time.Duration, purpose string) (*domain.Reservation, error)
	Release(ctx context.Context, deviceID string) error
	CreateSession(ctx context.Context, deviceID, userID string) (*domain.Session, error)
	EndSession(ctx context.Context, sessionID string) error
}

// MirrorPump is the slice of the mirror pump the hub routes
// start/stop-mirror messages to and notifies on disconnect.
type MirrorPump interface {
	StartMirror(deviceID, subscriberID string, requestedFPS float64) error
	StopMirror(deviceID, subscriberID string)
	StopSubscriber(subscriberID string)
}

// Supervisor is used only to report counts in the system-health snapshot;
// start/stop/appium routing happens over the HTTP surface, not the
// realtime channel (spec.md §4.5 lists the inbound kinds exhaustively and
// appium lifecycle is not among them).
type Supervisor interface {
	AllServers() []domain.DriverServerInfo
}

// Client represents one connected realtime subscriber (spec.md §3
// "Subscriber").
type Client struct {
	ID      string
	Channel chan port.Event

	mu                sync.Mutex
	currentMirrorDevice string
}

// Hub fans events out to subscribers and routes inbound control messages
// back into the registry, reservation manager, and mirror pump. It
// implements port.Broadcaster.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client

	registry    DeviceRegistry
	reservation ReservationManager
	mirror      MirrorPump
	supervisor  Supervisor
	logger      *slog.Logger
}

var _ port.Broadcaster = (*Hub)(nil)

// New builds a Hub. Dependencies are wired after construction via the
// Setters below, the same mutable-injection-broken-by-interfaces pattern
// spec.md §9 calls for to avoid a construction cycle: the services are
// built first without a broadcaster, the hub is built and wired to them,
// and each service then receives the hub as its port.Broadcaster through
// its SetBroadcaster method.
func New(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

func (h *Hub) SetRegistry(r DeviceRegistry)             { h.registry = r }
func (h *Hub) SetReservationManager(m ReservationManager) { h.reservation = m }
func (h *Hub) SetMirrorPump(m MirrorPump)               { h.mirror = m }
func (h *Hub) SetSupervisor(s Supervisor)               { h.supervisor = s }

// Register connects a new subscriber and pushes the current device-list
// snapshot (spec.md §4.5 "Hub model").
func (h *Hub) Register(clientID string, bufferSize int) *Client {
	c := &Client{ID: clientID, Channel: make(chan port.Event, bufferSize)}

	h.mu.Lock()
	h.clients[clientID] = c
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("subscriber connected", "subscriber_id", clientID, "total_subscribers", total)

	if h.registry != nil {
		h.BroadcastToSubscriber(clientID, port.NewEvent(port.EventDeviceList, port.EventData{Devices: h.registry.List()}))
	}
	return c
}

// Unregister disconnects a subscriber, stopping any mirror it owns
// (spec.md §4.5 "On disconnect, any active mirror is stopped").
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	c, ok := h.clients[clientID]
	if ok {
		delete(h.clients, clientID)
	}
	total := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}

	if h.mirror != nil {
		h.mirror.StopSubscriber(clientID)
	}
	close(c.Channel)

	h.logger.Info("subscriber disconnected", "subscriber_id", clientID, "total_subscribers", total)
}

// BroadcastAll sends event to every connected subscriber, skipping (not
// blocking on) any whose channel is full.
func (h *Hub) BroadcastAll(event port.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.Channel <- event:
		default:
			h.logger.Warn("subscriber channel full, dropping event", "subscriber_id", c.ID, "event_type", event.Type)
		}
	}
}

// BroadcastToSubscriber sends event to exactly one subscriber.
func (h *Hub) BroadcastToSubscriber(subscriberID string, event port.Event) error {
	h.mu.RLock()
	c, ok := h.clients[subscriberID]
	h.mu.RUnlock()
	if !ok {
		return controllererr.New("hub.BroadcastToSubscriber", controllererr.KindNotFound, errUnknownSubscriber(subscriberID))
	}
	select {
	case c.Channel <- event:
	default:
		h.logger.Warn("subscriber channel full, dropping event", "subscriber_id", subscriberID, "event_type", event.Type)
	}
	return nil
}

// SubscriberCount reports the number of connected subscribers, used in
// the health snapshot.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastHealth emits a system-health snapshot (spec.md §4.5/§4.6),
// called by the periodic health-broadcast ticker.
func (h *Hub) BroadcastHealth(ctx context.Context) {
	total, online := h.registry.Snapshot()
	servers := 0
	if h.supervisor != nil {
		servers = len(h.supervisor.AllServers())
	}
	snapshot := &port.HealthSnapshot{
		DeviceCount:       total,
		OnlineCount:       online,
		DriverServerCount: servers,
		SubscriberCount:   h.SubscriberCount(),
	}
	h.BroadcastAll(port.NewEvent(port.EventSystemHealth, port.EventData{Health: snapshot}))
}

func errUnknownSubscriber(id string) error { return &unknownSubscriberError{id: id} }

type unknownSubscriberError struct{ id string }

func (e *unknownSubscriberError) Error() string { return "unknown subscriber: " + e.id }
