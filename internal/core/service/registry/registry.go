// Package registry implements the Device Registry (spec.md §4.2): an
// in-memory keyed store of device records, reconciled against the two
// platform adapters on a periodic discovery cycle and mutated under a
// single registry-wide lock.
package registry

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid"

	"github.com/devicelab/controller/internal/core/controllererr"
	"github.com/devicelab/controller/internal/core/domain"
	"github.com/devicelab/controller/internal/core/port"
)

// SupervisorStopper is the thin slice of the supervisor the registry
// needs: stopping any driver server for a device that has disappeared
// (spec.md §4.2 step 3). Defined here, not in port, because it is
// consumed only by this package — the supervisor reads devices from the
// registry only through its own DeviceGetter interface.
type SupervisorStopper interface {
	Stop(deviceID string)
}

// Registry is the in-memory device store described by spec.md §3/§4.2.
type Registry struct {
	mu      sync.Mutex
	devices map[string]*domain.Device // keyed by synthetic id
	bySerial map[string]string        // serial -> id

	logTails map[string]port.StopFunc // id -> active log-tail stop func

	android port.PlatformAdapter
	ios     port.PlatformAdapter

	supervisor  SupervisorStopper
	broadcaster port.Broadcaster
	clock       port.Clock
	logger      *slog.Logger
}

// New builds a Registry. supervisor and broadcaster may be nil at
// construction and wired later via SetSupervisor/SetBroadcaster to break
// the construction cycle described in spec.md §9 ("Service wiring").
func New(android, ios port.PlatformAdapter, clock port.Clock, logger *slog.Logger) *Registry {
	if clock == nil {
		clock = port.SystemClock{}
	}
	return &Registry{
		devices:  make(map[string]*domain.Device),
		bySerial: make(map[string]string),
		logTails: make(map[string]port.StopFunc),
		android:  android,
		ios:      ios,
		clock:    clock,
		logger:   logger,
	}
}

// SetSupervisor wires the supervisor used to stop driver servers for
// devices that disappear from discovery.
func (r *Registry) SetSupervisor(s SupervisorStopper) { r.supervisor = s }

// SetBroadcaster wires the realtime hub's broadcast sink.
func (r *Registry) SetBroadcaster(b port.Broadcaster) { r.broadcaster = b }

// SeedOffline inserts a synthetic offline device record, used only by the
// opt-in SEED_MOCK_DEVICES demo flag (spec.md §9 "Mock offline devices").
func (r *Registry) SeedOffline(d *domain.Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == "" {
		d.ID = newID()
	}
	d.Status = domain.DeviceStatusOffline
	d.LastSeen = r.clock.Now()
	r.devices[d.ID] = d
	r.bySerial[d.Serial] = d.ID
}

// List returns a snapshot of every device, sorted by no particular order
// (callers needing stable order sort themselves).
func (r *Registry) List() []*domain.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Device, 0, len(r.devices))
	for _, d := range r.devices {
		cp := *d
		out = append(out, &cp)
	}
	return out
}

// Get returns a copy of one device by id.
func (r *Registry) Get(id string) (*domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return nil, controllererr.New("registry.Get", controllererr.KindNotFound, errNotFound(id))
	}
	cp := *d
	return &cp, nil
}

// adapterFor returns the platform adapter for a device's platform.
func (r *Registry) adapterFor(p domain.Platform) port.PlatformAdapter {
	if p == domain.PlatformIOS {
		return r.ios
	}
	return r.android
}

// Dispatch executes payload against deviceID's platform adapter (spec.md
// §4.5 "command routed to the adapter via the registry"). Unsupported
// (kind, platform) pairs — shell on iOS — fail with KindUnsupported
// without invoking the adapter at all.
func (r *Registry) Dispatch(ctx context.Context, deviceID string, payload domain.Payload) (string, error) {
	device, err := r.Get(deviceID)
	if err != nil {
		return "", err
	}
	adapter := r.adapterFor(device.Platform)
	if adapter == nil {
		return "", controllererr.Wrap("registry.Dispatch", controllererr.KindUnsupported, "no adapter configured for platform %s", device.Platform)
	}

	switch p := payload.(type) {
	case domain.TapPayload:
		return "", adapter.Tap(ctx, device.Serial, p.X, p.Y)
	case domain.SwipePayload:
		return "", adapter.Swipe(ctx, device.Serial, p.StartX, p.StartY, p.EndX, p.EndY, p.DurationMS)
	case domain.DragPayload:
		return "", adapter.Drag(ctx, device.Serial, p.StartX, p.StartY, p.EndX, p.EndY, p.DurationMS)
	case domain.KeyPayload:
		return "", adapter.Key(ctx, device.Serial, p.KeyCode)
	case domain.TextPayload:
		return "", adapter.Text(ctx, device.Serial, p.Text)
	case domain.InstallPayload:
		return "", adapter.Install(ctx, device.Serial, p.ArtifactPath)
	case domain.UninstallPayload:
		return "", adapter.Uninstall(ctx, device.Serial, p.PackageID)
	case domain.ShellPayload:
		if device.Platform != domain.PlatformAndroid {
			return "", controllererr.Wrap("registry.Dispatch", controllererr.KindUnsupported,
				"shell command not supported for %s", device.Platform)
		}
		return adapter.Shell(ctx, device.Serial, p.Command)
	default:
		return "", controllererr.Wrap("registry.Dispatch", controllererr.KindValidation, "unknown command payload type %T", payload)
	}
}

// Discover runs one full discovery cycle (spec.md §4.2): enumerate both
// adapters in parallel, reconcile against the registry, and broadcast the
// post-cycle device list. Discovery failures are logged and never fail
// the outer loop (spec.md §4.2 Failure semantics, §4.6).
func (r *Registry) Discover(ctx context.Context) {
	var androidSerials, iosSerials []string
	var androidErr, iosErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); androidSerials, androidErr = r.enumerate(ctx, r.android) }()
	go func() { defer wg.Done(); iosSerials, iosErr = r.enumerate(ctx, r.ios) }()
	wg.Wait()
	if androidErr != nil {
		r.logger.Warn("discovery: android enumerate failed", "error", androidErr)
	}
	if iosErr != nil {
		r.logger.Warn("discovery: ios enumerate failed", "error", iosErr)
	}

	observed := make(map[string]domain.Platform, len(androidSerials)+len(iosSerials))
	for _, s := range androidSerials {
		observed[s] = domain.PlatformAndroid
	}
	for _, s := range iosSerials {
		observed[s] = domain.PlatformIOS
	}

	r.reconcile(ctx, observed)
	r.broadcastDeviceList()
}

func (r *Registry) enumerate(ctx context.Context, adapter port.PlatformAdapter) ([]string, error) {
	if adapter == nil {
		return nil, nil
	}
	return adapter.Enumerate(ctx)
}

// reconcile applies spec.md §4.2 steps 2-3 against the observed serial
// set.
func (r *Registry) reconcile(ctx context.Context, observed map[string]domain.Platform) {
	now := r.clock.Now()

	for serial, platform := range observed {
		r.mu.Lock()
		id, known := r.bySerial[serial]
		if known {
			d := r.devices[id]
			d.LastSeen = now
			if d.Status == domain.DeviceStatusOffline {
				d.Status = domain.DeviceStatusOnline
			}
			r.mu.Unlock()
			r.broadcastDevice(id)
			continue
		}
		r.mu.Unlock()

		d, err := r.buildNewDevice(ctx, serial, platform, now)
		if err != nil {
			r.logger.Warn("discovery: enrichment failed, retrying next cycle", "serial", serial, "error", err)
			continue
		}

		r.mu.Lock()
		r.devices[d.ID] = d
		r.bySerial[serial] = d.ID
		r.mu.Unlock()

		r.startLogTailIfSupported(d)
		r.broadcastDevice(d.ID)
	}

	var disappeared []*domain.Device
	r.mu.Lock()
	for serial, id := range r.bySerial {
		if _, stillObserved := observed[serial]; stillObserved {
			continue
		}
		d := r.devices[id]
		if d.Status == domain.DeviceStatusOffline {
			continue
		}
		d.Status = domain.DeviceStatusOffline
		d.LastSeen = now
		disappeared = append(disappeared, d)
	}
	r.mu.Unlock()

	for _, d := range disappeared {
		r.stopLogTail(d.ID)
		if r.supervisor != nil {
			r.supervisor.Stop(d.ID)
		}
		r.broadcastDevice(d.ID)
	}
}

// buildNewDevice queries the adapter for a brand new serial's properties,
// battery, resolution and orientation, and constructs the record. This is
// the one place the registry performs adapter I/O before taking the lock
// (spec.md §5: "never held across subprocess calls except the cheap
// property refresh during new-device creation, which is performed before
// insertion").
func (r *Registry) buildNewDevice(ctx context.Context, serial string, platform domain.Platform, now time.Time) (*domain.Device, error) {
	adapter := r.adapterFor(platform)
	if adapter == nil {
		return nil, controllererr.Wrap("registry.buildNewDevice", controllererr.KindUnsupported, "no adapter configured for platform %s", platform)
	}

	props, err := adapter.Properties(ctx, serial)
	if err != nil {
		return nil, err
	}
	battery, err := adapter.Battery(ctx, serial)
	if err != nil {
		return nil, err
	}

	d := &domain.Device{
		ID:           newID(),
		Serial:       serial,
		Platform:     platform,
		DeviceType:   props.DeviceType,
		Name:         deriveName(platform, props),
		Model:        props.Model,
		Manufacturer: props.Manufacturer,
		OSVersion:    props.OSVersion,
		APILevel:     props.APILevel,
		ScreenWidth:  props.ScreenWidth,
		ScreenHeight: props.ScreenHeight,
		Orientation:  props.Orientation,
		Capabilities: props.Capabilities,
		Properties:   props.Raw,
		Status:       domain.DeviceStatusOnline,
		Battery:      battery,
		ConnectedAt:  now,
		LastSeen:     now,
	}
	return d, nil
}

// deriveName applies spec.md §4.2's Android naming rule; for iOS the
// adapter-reported Name is authoritative (simctl/idevice already supply
// a friendly name).
func deriveName(platform domain.Platform, props port.Properties) string {
	if platform != domain.PlatformAndroid {
		return props.Name
	}

	if avd := props.Raw["ro.boot.qemu.avd_name"]; avd != "" {
		return strings.ReplaceAll(avd, "_", " ")
	}

	model := props.Raw["ro.product.model"]
	if model != "" && !strings.HasPrefix(model, "sdk_") && !isKnownEmulatorPlaceholder(model) {
		return model
	}

	if model != "" && strings.HasPrefix(model, "sdk_") {
		return friendlySDKName(model)
	}

	manufacturer := props.Manufacturer
	if manufacturer == "" {
		manufacturer = props.Raw["ro.product.manufacturer"]
	}
	return strings.TrimSpace(manufacturer + " " + model)
}

func isKnownEmulatorPlaceholder(model string) bool {
	switch model {
	case "sdk", "google_sdk", "Android SDK built for x86", "Android SDK built for x86_64":
		return true
	default:
		return false
	}
}

// friendlySDKName turns an "sdk_gphone64_x86_64"-style model string into
// a readable emulator name.
func friendlySDKName(model string) string {
	name := strings.TrimPrefix(model, "sdk_")
	name = strings.ReplaceAll(name, "_", " ")
	return "Android Emulator (" + strings.TrimSpace(name) + ")"
}

func (r *Registry) startLogTailIfSupported(d *domain.Device) {
	adapter := r.adapterFor(d.Platform)
	if adapter == nil || !adapter.SupportsLogTail() {
		return
	}
	sink := func(line string) {
		r.broadcastLog(d.ID, line)
	}
	stop, err := adapter.TailLogs(context.Background(), d.Serial, sink)
	if err != nil {
		r.logger.Warn("failed to start log tail", "device_id", d.ID, "error", err)
		return
	}
	r.mu.Lock()
	r.logTails[d.ID] = stop
	r.mu.Unlock()
}

func (r *Registry) stopLogTail(id string) {
	r.mu.Lock()
	stop, ok := r.logTails[id]
	delete(r.logTails, id)
	r.mu.Unlock()
	if ok && stop != nil {
		stop()
	}
}

// Transition applies a status change under the registry lock, enforcing
// the legal-transition table (spec.md §4.2). Used by the reservation
// manager.
func (r *Registry) Transition(id string, to domain.DeviceStatus, mutate func(d *domain.Device)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		return controllererr.New("registry.Transition", controllererr.KindNotFound, errNotFound(id))
	}
	if !domain.CanTransition(d.Status, to) {
		return controllererr.Wrap("registry.Transition", controllererr.KindInvalidState,
			"illegal transition from %s to %s", d.Status, to)
	}
	d.Status = to
	if mutate != nil {
		mutate(d)
	}
	return nil
}

// WithDevice runs fn with the live (not copied) device record under the
// registry lock, for callers (reservation manager) that need to read and
// mutate atomically without a status transition.
func (r *Registry) WithDevice(id string, fn func(d *domain.Device) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return controllererr.New("registry.WithDevice", controllererr.KindNotFound, errNotFound(id))
	}
	return fn(d)
}

func (r *Registry) snapshot(id string) *domain.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return nil
	}
	cp := *d
	return &cp
}

func (r *Registry) broadcastDevice(id string) {
	if r.broadcaster == nil {
		return
	}
	d := r.snapshot(id)
	if d == nil {
		return
	}
	r.broadcaster.BroadcastAll(port.NewEvent(port.EventDeviceUpdated, port.EventData{Device: d}))
}

func (r *Registry) broadcastDeviceList() {
	if r.broadcaster == nil {
		return
	}
	r.broadcaster.BroadcastAll(port.NewEvent(port.EventDeviceList, port.EventData{Devices: r.List()}))
}

func (r *Registry) broadcastLog(deviceID, line string) {
	if r.broadcaster == nil {
		return
	}
	entry := &domain.LogEntry{
		ID:        newID(),
		DeviceID:  deviceID,
		Timestamp: r.clock.Now(),
		Level:     domain.LogInfo,
		Tag:       "logcat",
		Message:   line,
	}
	r.broadcaster.BroadcastAll(port.NewEvent(port.EventDeviceLog, port.EventData{Log: entry}))
}

// Snapshot exposes counts used by the system-health broadcast and the
// /system/stats endpoint.
func (r *Registry) Snapshot() (total, online int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total = len(r.devices)
	for _, d := range r.devices {
		if d.Status == domain.DeviceStatusOnline || d.Status == domain.DeviceStatusReserved || d.Status == domain.DeviceStatusInUse {
			online++
		}
	}
	return total, online
}

func newID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return "dev-" + time.Now().UTC().Format("150405.000000000")
	}
	return id.String()
}

func errNotFound(id string) error {
	return &notFoundError{id: id}
}

type notFoundError struct{ id string }

func (e *notFoundError) Error() string { return "device not found: " + e.id }
