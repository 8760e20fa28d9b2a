// Package mirror implements the Screen-Mirror Pump (spec.md §4.5): one
// paced, single-in-flight capture loop per device, shared by every
// subscriber currently mirroring that device, with backpressure and
// resource-exhaustion shedding.
package mirror

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/uuid"

	"github.com/devicelab/controller/internal/core/controllererr"
	"github.com/devicelab/controller/internal/core/domain"
	"github.com/devicelab/controller/internal/core/port"
)

// DeviceGetter is the slice of the registry the pump needs to resolve a
// device's platform/serial at mirror-start time.
type DeviceGetter interface {
	Get(id string) (*domain.Device, error)
}

// Pump runs the per-device capture loops described in spec.md §4.5. FPS
// is requested by the client but capped at a single uniform ceiling
// (DESIGN.md records the Open Question resolution: 1 FPS, matching the
// physical-device figure from spec.md §4.5 rather than the simulator
// figure, since a uniform conservative ceiling is explicitly permitted).
type Pump struct {
	mu      sync.Mutex
	devices map[string]*devicePump

	android port.PlatformAdapter
	ios     port.PlatformAdapter

	registry    DeviceGetter
	broadcaster port.Broadcaster
	clock       port.Clock
	logger      *slog.Logger
	interval    time.Duration
}

// devicePump is the single capture loop shared by every subscriber
// currently mirroring one device (spec.md §4.5: "device-level sharing is
// allowed").
type devicePump struct {
	deviceID    string
	mu          sync.Mutex
	subscribers map[string]bool
	inFlight    bool
	cancel      context.CancelFunc
}

// New builds a Pump. ceilingFPS is the single uniform cap applied to
// every mirror regardless of the fps the client requests.
func New(ceilingFPS float64, android, ios port.PlatformAdapter, registry DeviceGetter, clock port.Clock, logger *slog.Logger) *Pump {
	if clock == nil {
		clock = port.SystemClock{}
	}
	if ceilingFPS <= 0 {
		ceilingFPS = 1
	}
	return &Pump{
		devices:  make(map[string]*devicePump),
		android:  android,
		ios:      ios,
		registry: registry,
		clock:    clock,
		logger:   logger,
		interval: time.Duration(float64(time.Second) / ceilingFPS),
	}
}

// SetBroadcaster wires the realtime hub's broadcast sink.
func (p *Pump) SetBroadcaster(b port.Broadcaster) { p.broadcaster = b }

// StartMirror registers subscriberID as a mirror consumer of deviceID,
// starting the device's capture loop if this is its first subscriber
// (spec.md §4.5). requestedFPS is accepted but has no effect beyond the
// uniform ceiling documented above.
func (p *Pump) StartMirror(deviceID, subscriberID string, requestedFPS float64) error {
	if _, err := p.registry.Get(deviceID); err != nil {
		return err
	}

	p.mu.Lock()
	dp, exists := p.devices[deviceID]
	if !exists {
		dp = &devicePump{deviceID: deviceID, subscribers: make(map[string]bool)}
		p.devices[deviceID] = dp
	}
	p.mu.Unlock()

	dp.mu.Lock()
	_, already := dp.subscribers[subscriberID]
	dp.subscribers[subscriberID] = true
	starting := !exists
	dp.mu.Unlock()

	if already {
		return nil
	}

	if starting {
		ctx, cancel := context.WithCancel(context.Background())
		dp.mu.Lock()
		dp.cancel = cancel
		dp.mu.Unlock()
		go p.run(ctx, dp)
	}
	return nil
}

// StopMirror removes subscriberID from deviceID's mirror; if it was the
// last subscriber, the pump and its ticker are released.
func (p *Pump) StopMirror(deviceID, subscriberID string) {
	p.mu.Lock()
	dp, ok := p.devices[deviceID]
	p.mu.Unlock()
	if !ok {
		return
	}

	dp.mu.Lock()
	delete(dp.subscribers, subscriberID)
	empty := len(dp.subscribers) == 0
	cancel := dp.cancel
	dp.mu.Unlock()

	if empty {
		if cancel != nil {
			cancel()
		}
		p.mu.Lock()
		delete(p.devices, deviceID)
		p.mu.Unlock()
	}
}

// StopSubscriber removes subscriberID from every device it is currently
// mirroring, used on disconnect (spec.md §4.5).
func (p *Pump) StopSubscriber(subscriberID string) {
	p.mu.Lock()
	ids := make([]string, 0, len(p.devices))
	for id := range p.devices {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		p.StopMirror(id, subscriberID)
	}
}

// run is the paced capture loop for one device (spec.md §4.5).
func (p *Pump) run(ctx context.Context, dp *devicePump) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dp.mu.Lock()
			if dp.inFlight {
				dp.mu.Unlock()
				continue // tick skipped: capture already in flight (no queueing)
			}
			dp.inFlight = true
			dp.mu.Unlock()

			go p.capture(ctx, dp)
		}
	}
}

// capture performs one screenshot for dp's device and fans it out to
// every current subscriber (spec.md §4.5).
func (p *Pump) capture(ctx context.Context, dp *devicePump) {
	defer func() {
		dp.mu.Lock()
		dp.inFlight = false
		dp.mu.Unlock()
	}()

	device, err := p.registry.Get(dp.deviceID)
	if err != nil {
		p.shed(dp, err)
		return
	}

	adapter := p.android
	if device.Platform == domain.PlatformIOS {
		adapter = p.ios
	}
	if adapter == nil {
		return
	}

	data, err := adapter.Screenshot(ctx, device.Serial)
	if err != nil {
		if isTransient(err) {
			p.shed(dp, err)
			return
		}
		p.logger.Warn("mirror capture failed", "device_id", dp.deviceID, "error", err)
		return
	}

	frame := &port.ScreenFrame{
		ID:        newFrameID(),
		DeviceID:  dp.deviceID,
		Timestamp: p.clock.Now(),
		Payload:   base64.StdEncoding.EncodeToString(data),
		MimeType:  "image/png",
	}

	dp.mu.Lock()
	subscribers := make([]string, 0, len(dp.subscribers))
	for id := range dp.subscribers {
		subscribers = append(subscribers, id)
	}
	dp.mu.Unlock()

	if p.broadcaster == nil {
		return
	}
	for _, subscriberID := range subscribers {
		event := port.NewEvent(port.EventScreenUpdate, port.EventData{ScreenFrame: frame})
		_ = p.broadcaster.BroadcastToSubscriber(subscriberID, event)
	}
}

// shed terminates dp's pump to shed load when the adapter surfaces a
// resource-exhaustion signal (spec.md §4.5), notifying every current
// subscriber with an error event.
func (p *Pump) shed(dp *devicePump, cause error) {
	p.logger.Warn("mirror pump shedding load", "device_id", dp.deviceID, "error", cause)

	dp.mu.Lock()
	subscribers := make([]string, 0, len(dp.subscribers))
	for id := range dp.subscribers {
		subscribers = append(subscribers, id)
	}
	cancel := dp.cancel
	dp.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	p.mu.Lock()
	delete(p.devices, dp.deviceID)
	p.mu.Unlock()

	if p.broadcaster == nil {
		return
	}
	for _, subscriberID := range subscribers {
		event := port.NewEvent(port.EventError, port.EventData{Error: cause.Error()})
		_ = p.broadcaster.BroadcastToSubscriber(subscriberID, event)
	}
}

func isTransient(err error) bool {
	var te *port.TransientError
	if errors.As(err, &te) {
		return true
	}
	return controllererr.KindOf(err) == controllererr.KindResourceExhaustion
}

func newFrameID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return time.Now().UTC().Format("150405.000000000")
	}
	return id.String()
}
