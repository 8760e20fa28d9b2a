// Package ios implements the iOS platform adapter (spec.md §4.1) over
// the simulator controller (xcrun simctl) for simulators and the iOS
// device bridge (libimobiledevice's idevice* tools) for physical
// handsets.
package ios

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/devicelab/controller/internal/core/controllererr"
	"github.com/devicelab/controller/internal/core/domain"
	"github.com/devicelab/controller/internal/core/port"
)

// Config holds the external binary paths, overridable for tests.
type Config struct {
	SimctlPath        string
	IdeviceIDPath     string
	IdeviceInfoPath   string
	IdeviceScreenshot string
	IdeviceInstaller  string
	PymobiledevicePath string // alternative Python-based screenshot tool
	DeveloperDiskMountPath string
	CfgutilPath       string // Apple Configurator CLI fallback
	DriverToolPath    string // point-coordinate automation driver
}

// DefaultConfig returns the conventional tool names on PATH.
func DefaultConfig() Config {
	return Config{
		SimctlPath:             "xcrun",
		IdeviceIDPath:          "idevice_id",
		IdeviceInfoPath:        "ideviceinfo",
		IdeviceScreenshot:      "idevicescreenshot",
		IdeviceInstaller:       "ideviceinstaller",
		PymobiledevicePath:     "pymobiledevice3",
		DeveloperDiskMountPath: "ideviceimagemounter",
		CfgutilPath:            "cfgutil",
		DriverToolPath:         "ios-deploy",
	}
}

// Adapter wraps the iOS simulator controller and device bridge.
type Adapter struct {
	cfg   Config
	clock port.Clock
	scale *scaleCache

	mu         sync.Mutex
	simulators map[string]bool
}

// New builds an iOS Adapter.
func New(cfg Config, clock port.Clock) *Adapter {
	if clock == nil {
		clock = port.SystemClock{}
	}
	return &Adapter{cfg: cfg, clock: clock, scale: newScaleCache(), simulators: make(map[string]bool)}
}

var _ port.PlatformAdapter = (*Adapter)(nil)

func (a *Adapter) Platform() domain.Platform { return domain.PlatformIOS }

type simctlDevice struct {
	UDID  string `json:"udid"`
	Name  string `json:"name"`
	State string `json:"state"`
}

type simctlList struct {
	Devices map[string][]simctlDevice `json:"devices"`
}

// Enumerate keeps simulator entries with state=Booted, then appends the
// physical-device bridge's identifier list (spec.md §4.1). Failures in
// one sub-source do not fail the call.
func (a *Adapter) Enumerate(ctx context.Context) ([]string, error) {
	var serials []string
	simulators := make(map[string]bool)

	if out, err := a.runSimctl(ctx, "list", "devices", "--json"); err == nil {
		var parsed simctlList
		if jsonErr := json.Unmarshal([]byte(out), &parsed); jsonErr == nil {
			for _, group := range parsed.Devices {
				for _, d := range group {
					if d.State == "Booted" {
						serials = append(serials, d.UDID)
						simulators[d.UDID] = true
					}
				}
			}
		}
	}

	if out, err := a.run(ctx, a.cfg.IdeviceIDPath, "-l"); err == nil {
		scanner := bufio.NewScanner(strings.NewReader(out))
		for scanner.Scan() {
			udid := strings.TrimSpace(scanner.Text())
			if udid != "" {
				serials = append(serials, udid)
			}
		}
	}

	a.mu.Lock()
	a.simulators = simulators
	a.mu.Unlock()

	return serials, nil
}

func (a *Adapter) isSimulator(serial string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.simulators[serial]
}

// Properties reads simulator info from the JSON listing, or physical
// device info parsed from "key: value" lines (spec.md §4.1).
func (a *Adapter) Properties(ctx context.Context, serial string) (port.Properties, error) {
	if a.isSimulator(serial) {
		return a.simulatorProperties(ctx, serial)
	}
	return a.physicalProperties(ctx, serial)
}

func (a *Adapter) simulatorProperties(ctx context.Context, serial string) (port.Properties, error) {
	out, err := a.runSimctl(ctx, "list", "devices", "--json")
	if err != nil {
		return port.Properties{}, wrapTool("ios.Properties", serial, err)
	}
	var parsed simctlList
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		return port.Properties{}, wrapTool("ios.Properties", serial, err)
	}
	for _, group := range parsed.Devices {
		for _, d := range group {
			if d.UDID == serial {
				return port.Properties{
					Name:         d.Name,
					Model:        d.Name,
					Manufacturer: "Apple",
					DeviceType:   domain.DeviceTypeSimulator,
					Orientation:  domain.OrientationPortrait,
					Capabilities: simulatorCapabilities(),
					Raw:          map[string]string{"state": d.State},
				}, nil
			}
		}
	}
	return port.Properties{}, controllererr.New("ios.Properties", controllererr.KindNotFound, fmt.Errorf("simulator %s not found", serial))
}

func (a *Adapter) physicalProperties(ctx context.Context, serial string) (port.Properties, error) {
	out, err := a.run(ctx, a.cfg.IdeviceInfoPath, "-u", serial)
	if err != nil {
		return port.Properties{}, wrapTool("ios.Properties", serial, err)
	}
	raw := parseKeyValue(out)
	return port.Properties{
		Name:         raw["DeviceName"],
		Model:        raw["ProductType"],
		Manufacturer: "Apple",
		OSVersion:    raw["ProductVersion"],
		DeviceType:   domain.DeviceTypePhysical,
		Orientation:  domain.OrientationPortrait,
		Capabilities: physicalCapabilities(),
		Raw:          raw,
	}, nil
}

func parseKeyValue(out string) map[string]string {
	props := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		props[key] = value
	}
	return props
}

func simulatorCapabilities() domain.Capabilities {
	return domain.Capabilities{Touchscreen: true, Camera: true, WiFi: true, Bluetooth: true, Accelerometer: true, Gyroscope: true}
}

func physicalCapabilities() domain.Capabilities {
	c := simulatorCapabilities()
	c.GPS = true
	c.Fingerprint = true
	return c
}

// Battery: physical devices read BatteryCurrentCapacity; simulators
// report 100 (spec.md §4.1).
func (a *Adapter) Battery(ctx context.Context, serial string) (int, error) {
	if a.isSimulator(serial) {
		return 100, nil
	}
	out, err := a.run(ctx, a.cfg.IdeviceInfoPath, "-u", serial, "-k", "BatteryCurrentCapacity")
	if err != nil {
		return 0, wrapTool("ios.Battery", serial, err)
	}
	level, convErr := strconv.Atoi(strings.TrimSpace(out))
	if convErr != nil {
		return 0, nil
	}
	return level, nil
}

func (a *Adapter) Install(ctx context.Context, serial string, path string) error {
	if a.isSimulator(serial) {
		_, err := a.runSimctl(ctx, "install", serial, path)
		return wrapToolIfErr("ios.Install", serial, err)
	}
	_, err := a.run(ctx, a.cfg.IdeviceInstaller, "-u", serial, "-i", path)
	return wrapToolIfErr("ios.Install", serial, err)
}

func (a *Adapter) Uninstall(ctx context.Context, serial string, packageID string) error {
	if a.isSimulator(serial) {
		_, err := a.runSimctl(ctx, "uninstall", serial, packageID)
		return wrapToolIfErr("ios.Uninstall", serial, err)
	}
	_, err := a.run(ctx, a.cfg.IdeviceInstaller, "-u", serial, "-U", packageID)
	return wrapToolIfErr("ios.Uninstall", serial, err)
}

// Shell has no iOS equivalent; callers should reject before reaching the
// adapter (spec.md §4.1), but the adapter itself also refuses
// defensively.
func (a *Adapter) Shell(ctx context.Context, serial string, command string) (string, error) {
	return "", controllererr.Wrap("ios.Shell", controllererr.KindUnsupported, "shell not supported for iOS device %s", serial)
}

// TailLogs is Android-only (spec.md §4.1).
func (a *Adapter) TailLogs(ctx context.Context, serial string, sink port.LogSink) (port.StopFunc, error) {
	return nil, controllererr.Wrap("ios.TailLogs", controllererr.KindUnsupported, "log tail not supported for iOS device %s", serial)
}

func (a *Adapter) SupportsLogTail() bool { return false }

func (a *Adapter) runSimctl(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"simctl"}, args...)
	return a.run(ctx, a.cfg.SimctlPath, full...)
}

func (a *Adapter) run(ctx context.Context, binary string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return "", err
	}
	return stdout.String(), nil
}

func wrapTool(op, serial string, err error) error {
	return controllererr.Wrap(op, controllererr.KindExternalToolFailure, "%s: %v", serial, err)
}

func wrapToolIfErr(op, serial string, err error) error {
	if err == nil {
		return nil
	}
	return wrapTool(op, serial, err)
}
