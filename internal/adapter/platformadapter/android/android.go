// Package android implements the Android platform adapter (spec.md §4.1)
// over the Android debug bridge, invoked by name as an external process
// (the "adb" binary) the same way this codebase's reference adb tooling
// shells out to the bridge rather than linking against it.
package android

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/devicelab/controller/internal/core/controllererr"
	"github.com/devicelab/controller/internal/core/domain"
	"github.com/devicelab/controller/internal/core/port"
)

// Config holds the external binary path, overridable for tests.
type Config struct {
	ADBPath string
}

// DefaultConfig returns the config pointing at "adb" on PATH.
func DefaultConfig() Config {
	return Config{ADBPath: "adb"}
}

// Adapter wraps the Android debug bridge (spec.md §4.1).
type Adapter struct {
	cfg Config
}

// New builds an Android Adapter.
func New(cfg Config) *Adapter {
	return &Adapter{cfg: cfg}
}

var _ port.PlatformAdapter = (*Adapter)(nil)

func (a *Adapter) Platform() domain.Platform { return domain.PlatformAndroid }

// Enumerate invokes `adb devices -l` and excludes entries marked offline
// or unauthorized (spec.md §4.1).
func (a *Adapter) Enumerate(ctx context.Context) ([]string, error) {
	out, err := a.run(ctx, "devices", "-l")
	if err != nil {
		return nil, wrapTool("android.Enumerate", "", err)
	}

	var serials []string
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "List of devices") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		serial, state := fields[0], fields[1]
		if state == "offline" || state == "unauthorized" {
			continue
		}
		serials = append(serials, serial)
	}
	return serials, nil
}

// Properties reads getprop output, parsed from "[key]: [value]" lines
// (spec.md §4.1).
func (a *Adapter) Properties(ctx context.Context, serial string) (port.Properties, error) {
	out, err := a.run(ctx, "-s", serial, "shell", "getprop")
	if err != nil {
		return port.Properties{}, wrapTool("android.Properties", serial, err)
	}

	raw := parseGetprop(out)

	width, height, orientation := a.screenGeometry(ctx, serial)

	return port.Properties{
		Name:         raw["ro.product.model"],
		Model:        raw["ro.product.model"],
		Manufacturer: raw["ro.product.manufacturer"],
		OSVersion:    raw["ro.build.version.release"],
		APILevel:     atoiOr(raw["ro.build.version.sdk"], 0),
		ScreenWidth:  width,
		ScreenHeight: height,
		Orientation:  orientation,
		DeviceType:   domain.DeviceTypePhysical,
		Capabilities: defaultCapabilities(),
		Raw:          raw,
	}, nil
}

func defaultCapabilities() domain.Capabilities {
	return domain.Capabilities{
		Touchscreen: true,
		Camera:      true,
		WiFi:        true,
		Bluetooth:   true,
		GPS:         true,
		Accelerometer: true,
		Gyroscope:   true,
	}
}

var getpropLine = func(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "[") {
		return "", "", false
	}
	closeKey := strings.Index(line, "]")
	if closeKey < 0 {
		return "", "", false
	}
	key = line[1:closeKey]
	rest := line[closeKey+1:]
	openVal := strings.Index(rest, "[")
	closeVal := strings.LastIndex(rest, "]")
	if openVal < 0 || closeVal < 0 || closeVal < openVal {
		return "", "", false
	}
	return key, rest[openVal+1 : closeVal], true
}

func parseGetprop(out string) map[string]string {
	props := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		key, value, ok := getpropLine(scanner.Text())
		if ok {
			props[key] = value
		}
	}
	return props
}

// screenGeometry reads `adb shell wm size` for resolution and derives
// orientation from the aspect ratio. Failures degrade to zero values
// rather than failing Properties outright (spec.md §4.1's adapters
// never panic, and a missing secondary reading shouldn't fail discovery
// of the primary property set).
func (a *Adapter) screenGeometry(ctx context.Context, serial string) (width, height int, orientation domain.Orientation) {
	out, err := a.run(ctx, "-s", serial, "shell", "wm", "size")
	if err != nil {
		return 0, 0, domain.OrientationPortrait
	}
	idx := strings.LastIndex(out, ":")
	if idx < 0 {
		return 0, 0, domain.OrientationPortrait
	}
	dims := strings.Split(strings.TrimSpace(out[idx+1:]), "x")
	if len(dims) != 2 {
		return 0, 0, domain.OrientationPortrait
	}
	w := atoiOr(dims[0], 0)
	h := atoiOr(dims[1], 0)
	orientation = domain.OrientationPortrait
	if w > h {
		orientation = domain.OrientationLandscape
	}
	return w, h, orientation
}

// Battery parses "level: N" from the battery dump (spec.md §4.1).
func (a *Adapter) Battery(ctx context.Context, serial string) (int, error) {
	out, err := a.run(ctx, "-s", serial, "shell", "dumpsys", "battery")
	if err != nil {
		return 0, wrapTool("android.Battery", serial, err)
	}
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "level:") {
			return atoiOr(strings.TrimSpace(strings.TrimPrefix(line, "level:")), 0), nil
		}
	}
	return 0, nil
}

// Screenshot captures a PNG via `adb exec-out screencap -p` with a
// 10-second wall-clock timeout (spec.md §4.1). Stderr mentions of
// transient resource-unavailable are suppressed.
func (a *Adapter) Screenshot(ctx context.Context, serial string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, a.cfg.ADBPath, "-s", serial, "exec-out", "screencap", "-p")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, controllererr.Wrap("android.Screenshot", controllererr.KindTimeout, "screenshot timed out for %s", serial)
	}
	if err != nil {
		msg := stderr.String()
		if strings.Contains(msg, "resource temporarily unavailable") {
			return nil, &port.TransientError{Serial: serial, Err: fmt.Errorf("screenshot transiently unavailable: %s", msg)}
		}
		return nil, wrapTool("android.Screenshot", serial, err)
	}
	if stdout.Len() == 0 {
		return nil, controllererr.Wrap("android.Screenshot", controllererr.KindExternalToolFailure, "empty screenshot for %s", serial)
	}
	return stdout.Bytes(), nil
}

func (a *Adapter) Tap(ctx context.Context, serial string, x, y int) error {
	_, err := a.run(ctx, "-s", serial, "shell", "input", "tap", itoa(x), itoa(y))
	return wrapToolIfErr("android.Tap", serial, err)
}

func (a *Adapter) Swipe(ctx context.Context, serial string, x1, y1, x2, y2, durationMS int) error {
	_, err := a.run(ctx, "-s", serial, "shell", "input", "swipe", itoa(x1), itoa(y1), itoa(x2), itoa(y2), itoa(durationMS))
	return wrapToolIfErr("android.Swipe", serial, err)
}

// Drag is a swipe whose duration is raised to at least 1000ms; longer
// durations are passed through unchanged.
func (a *Adapter) Drag(ctx context.Context, serial string, x1, y1, x2, y2, durationMS int) error {
	if durationMS < 1000 {
		durationMS = 1000
	}
	_, err := a.run(ctx, "-s", serial, "shell", "input", "swipe", itoa(x1), itoa(y1), itoa(x2), itoa(y2), itoa(durationMS))
	return wrapToolIfErr("android.Drag", serial, err)
}

func (a *Adapter) Key(ctx context.Context, serial string, keyCode string) error {
	_, err := a.run(ctx, "-s", serial, "shell", "input", "keyevent", keyCode)
	return wrapToolIfErr("android.Key", serial, err)
}

func (a *Adapter) Text(ctx context.Context, serial string, text string) error {
	_, err := a.run(ctx, "-s", serial, "shell", "input", "text", shellQuote(text))
	return wrapToolIfErr("android.Text", serial, err)
}

func (a *Adapter) Install(ctx context.Context, serial string, path string) error {
	_, err := a.run(ctx, "-s", serial, "install", "-r", path)
	return wrapToolIfErr("android.Install", serial, err)
}

func (a *Adapter) Uninstall(ctx context.Context, serial string, packageID string) error {
	_, err := a.run(ctx, "-s", serial, "uninstall", packageID)
	return wrapToolIfErr("android.Uninstall", serial, err)
}

func (a *Adapter) Shell(ctx context.Context, serial string, command string) (string, error) {
	out, err := a.run(ctx, "-s", serial, "shell", command)
	if err != nil {
		return "", wrapTool("android.Shell", serial, err)
	}
	return out, nil
}

// TailLogs spawns `adb logcat`, invoking sink for each line (spec.md
// §4.1 "Log tail (Android only)").
func (a *Adapter) TailLogs(ctx context.Context, serial string, sink port.LogSink) (port.StopFunc, error) {
	cmd := exec.Command(a.cfg.ADBPath, "-s", serial, "logcat")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, wrapTool("android.TailLogs", serial, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, wrapTool("android.TailLogs", serial, err)
	}

	done := make(chan struct{})
	go func() {
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			sink(scanner.Text())
		}
		close(done)
	}()

	stop := func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
	}
	return stop, nil
}

func (a *Adapter) SupportsLogTail() bool { return true }

func (a *Adapter) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, a.cfg.ADBPath, args...)
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
	if serial != "" {
		return controllererr.Wrap(op, controllererr.KindExternalToolFailure, "%s: %v", serial, err)
	}
	return controllererr.Wrap(op, controllererr.KindExternalToolFailure, "%v", err)
}

func wrapToolIfErr(op, serial string, err error) error {
	if err == nil {
		return nil
	}
	return wrapTool(op, serial, err)
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return n
}

func itoa(n int) string { return strconv.Itoa(n) }

func shellQuote(text string) string {
	return strings.ReplaceAll(text, " ", "%s")
}
