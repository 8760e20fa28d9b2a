package realtimehub

import (
	"context"
	"time"

	"github.com/gofrs/uuid"

	"github.com/devicelab/controller/internal/core/controllererr"
	"github.com/devicelab/controller/internal/core/domain"
	"github.com/devicelab/controller/internal/core/port"
)

// InboundKind enumerates the message kinds the hub accepts from a
// subscriber (spec.md §4.5 "Hub model").
type InboundKind string

const (
	InboundReserve        InboundKind = "reserve"
	InboundRelease        InboundKind = "release"
	InboundStartSession   InboundKind = "start-session"
	InboundEndSession     InboundKind = "end-session"
	InboundCommand        InboundKind = "command"
	InboundRefreshDevices InboundKind = "refresh-devices"
	InboundStartMirror    InboundKind = "start-mirror"
	InboundStopMirror     InboundKind = "stop-mirror"
)

// InboundMessage is one message received from a subscriber's push
// channel. Only the fields relevant to Kind are populated; transport
// decoding (JSON, etc.) happens above this package since the transport
// itself is out of scope (spec.md §1).
type InboundMessage struct {
	Kind     InboundKind
	DeviceID string

	// reserve
	UserID          string
	DurationMinutes int
	Purpose         string

	// start-session / end-session
	SessionID string

	// command
	CommandType domain.CommandType
	Payload     domain.Payload

	// start-mirror
	FPS float64
}

// CommandReply is the response sent back to the originating subscriber
// after a command dispatch (spec.md §4.5).
type CommandReply struct {
	CommandID string `json:"command_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// HandleMessage processes one inbound message from subscriberID. Callers
// must invoke this sequentially per subscriber (spec.md §5 "Messages
// from a single subscriber are processed in receive order per
// subscriber") — e.g. from the single goroutine reading that
// subscriber's inbound transport stream.
func (h *Hub) HandleMessage(ctx context.Context, subscriberID string, msg InboundMessage) {
	switch msg.Kind {
	case InboundReserve:
		h.handleReserve(ctx, msg)
	case InboundRelease:
		h.handleRelease(ctx, msg)
	case InboundStartSession:
		h.handleStartSession(ctx, msg)
	case InboundEndSession:
		h.handleEndSession(ctx, msg)
	case InboundCommand:
		h.handleCommand(ctx, subscriberID, msg)
	case InboundRefreshDevices:
		h.handleRefresh(ctx)
	case InboundStartMirror:
		h.handleStartMirror(subscriberID, msg)
	case InboundStopMirror:
		h.handleStopMirror(subscriberID, msg)
	default:
		h.sendError(subscriberID, "", controllererr.Wrap("hub.HandleMessage", controllererr.KindValidation, "unknown message kind %q", msg.Kind))
	}
}

func (h *Hub) handleReserve(ctx context.Context, msg InboundMessage) {
	duration := time.Duration(msg.DurationMinutes) * time.Minute
	if _, err := h.reservation.Reserve(ctx, msg.DeviceID, msg.UserID, duration, msg.Purpose); err != nil {
		h.logger.Warn("reserve failed", "device_id", msg.DeviceID, "error", err)
	}
}

func (h *Hub) handleRelease(ctx context.Context, msg InboundMessage) {
	if err := h.reservation.Release(ctx, msg.DeviceID); err != nil {
		h.logger.Warn("release failed", "device_id", msg.DeviceID, "error", err)
	}
}

func (h *Hub) handleStartSession(ctx context.Context, msg InboundMessage) {
	if _, err := h.reservation.CreateSession(ctx, msg.DeviceID, msg.UserID); err != nil {
		h.logger.Warn("start-session failed", "device_id", msg.DeviceID, "error", err)
	}
}

func (h *Hub) handleEndSession(ctx context.Context, msg InboundMessage) {
	if err := h.reservation.EndSession(ctx, msg.SessionID); err != nil {
		h.logger.Warn("end-session failed", "session_id", msg.SessionID, "error", err)
	}
}

// handleCommand synthesizes and dispatches a Command record (spec.md
// §4.5 "Command dispatch").
func (h *Hub) handleCommand(ctx context.Context, subscriberID string, msg InboundMessage) {
	cmd := &domain.Command{
		ID:        newCommandID(),
		DeviceID:  msg.DeviceID,
		Type:      msg.CommandType,
		Payload:   msg.Payload,
		Timestamp: time.Now(),
		Status:    domain.CommandExecuting,
	}

	result, err := h.registry.Dispatch(ctx, msg.DeviceID, msg.Payload)
	if err != nil {
		cmd.Status = domain.CommandFailed
		cmd.Error = err.Error()
		h.replyCommand(subscriberID, cmd)
		return
	}

	cmd.Status = domain.CommandCompleted
	cmd.Result = result
	h.replyCommand(subscriberID, cmd)
}

func (h *Hub) replyCommand(subscriberID string, cmd *domain.Command) {
	reply := CommandReply{CommandID: cmd.ID, Success: cmd.Status == domain.CommandCompleted, Error: cmd.Error}
	_ = h.BroadcastToSubscriber(subscriberID, port.NewEvent(port.EventCommandReply, port.EventData{
		CommandID: reply.CommandID,
		Error:     reply.Error,
	}))
}

func (h *Hub) handleRefresh(ctx context.Context) {
	h.registry.Discover(ctx)
}

func (h *Hub) handleStartMirror(subscriberID string, msg InboundMessage) {
	h.mu.RLock()
	c, ok := h.clients[subscriberID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	c.mu.Lock()
	previous := c.currentMirrorDevice
	if previous == msg.DeviceID {
		c.mu.Unlock()
		return // same device: confirm and reuse (spec.md §4.5)
	}
	c.mu.Unlock()

	if previous != "" {
		h.mirror.StopMirror(previous, subscriberID)
	}

	fps := msg.FPS
	if fps <= 0 {
		fps = 1
	}
	if err := h.mirror.StartMirror(msg.DeviceID, subscriberID, fps); err != nil {
		h.sendError(subscriberID, "", err)
		return
	}

	// Only record the new mirror device once StartMirror has actually
	// succeeded, so a failed start never leaves bookkeeping claiming a
	// mirror is active when it isn't.
	c.mu.Lock()
	c.currentMirrorDevice = msg.DeviceID
	c.mu.Unlock()
}

func (h *Hub) handleStopMirror(subscriberID string, msg InboundMessage) {
	h.mirror.StopMirror(msg.DeviceID, subscriberID)

	h.mu.RLock()
	c, ok := h.clients[subscriberID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	c.mu.Lock()
	if c.currentMirrorDevice == msg.DeviceID {
		c.currentMirrorDevice = ""
	}
	c.mu.Unlock()
}

func (h *Hub) sendError(subscriberID, commandID string, err error) {
	_ = h.BroadcastToSubscriber(subscriberID, port.NewEvent(port.EventError, port.EventData{
		CommandID: commandID,
		Error:     err.Error(),
	}))
}

func newCommandID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return time.Now().UTC().Format("150405.000000000")
	}
	return id.String()
}
