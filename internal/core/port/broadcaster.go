package port

import (
	"time"

	"github.com/devicelab/controller/internal/core/domain"
)

// EventType identifies the kind of realtime event being broadcast
// (spec.md §4.5/§4.6).
type EventType string

const (
	EventDeviceUpdated EventType = "device-updated"
	EventDeviceList    EventType = "device-list"
	EventDeviceLog     EventType = "device-log"
	EventSystemHealth  EventType = "system-health"
	EventScreenUpdate  EventType = "screen-update"
	EventCommandReply  EventType = "command-reply"
	EventError         EventType = "error"
)

// Event is a realtime message pushed to one or all subscribers. This is
// a domain concept independent of the transport mechanism (SSE,
// WebSocket, or any other reliable ordered channel — spec.md treats the
// transport itself as out of scope and specified only at this
// interface).
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data"`
}

// EventData is the union of payload shapes an Event can carry. Only the
// field matching Type is populated.
type EventData struct {
	Device      *domain.Device   `json:"device,omitempty"`
	Devices     []*domain.Device `json:"devices,omitempty"`
	Log         *domain.LogEntry `json:"log,omitempty"`
	Health      *HealthSnapshot  `json:"health,omitempty"`
	ScreenFrame *ScreenFrame     `json:"screen_frame,omitempty"`
	CommandID   string           `json:"command_id,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// HealthSnapshot is the periodic system-health broadcast payload.
type HealthSnapshot struct {
	DeviceCount       int `json:"device_count"`
	OnlineCount       int `json:"online_count"`
	DriverServerCount int `json:"driver_server_count"`
	SubscriberCount   int `json:"subscriber_count"`
}

// ScreenFrame is one mirror-pump capture delivered to a subscriber
// (spec.md §4.5).
type ScreenFrame struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   string    `json:"payload"` // base64
	MimeType  string    `json:"mime_type"`
}

// NewEvent stamps an Event with the current time.
func NewEvent(eventType EventType, data EventData) Event {
	return Event{Type: eventType, Timestamp: time.Now(), Data: data}
}

// Broadcaster is the interface services use to emit realtime events
// without depending on the hub's implementation — the "thin
// broadcast-sink interface" spec.md §9's wiring design note calls for.
// BroadcastAll is fire-and-forget: an event that cannot be queued for a
// subscriber is dropped by the hub. BroadcastToSubscriber reports an
// error when the subscriber is unknown.
type Broadcaster interface {
	// BroadcastAll sends event to every connected subscriber.
	BroadcastAll(event Event)

	// BroadcastToSubscriber sends event to one specific subscriber, used
	// for mirror frames and command replies.
	BroadcastToSubscriber(subscriberID string, event Event) error
}
