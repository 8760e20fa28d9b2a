// Package port defines the interfaces the domain/service layer needs
// from its collaborators, following the dependency inversion used
// throughout this codebase's hexagonal core (see internal/core/port).
package port

import (
	"context"
	"time"

	"github.com/devicelab/controller/internal/core/domain"
)

// Properties is the adapter-reported property/metadata bag for a newly
// discovered device, queried once at creation time (spec.md §4.2 step 2).
type Properties struct {
	Name         string
	Model        string
	Manufacturer string
	OSVersion    string
	APILevel     int
	ScreenWidth  int
	ScreenHeight int
	Orientation  domain.Orientation
	DeviceType   domain.DeviceType
	Capabilities domain.Capabilities
	Raw          map[string]string
}

// LogSink receives one raw log line at a time from a log tail.
type LogSink func(line string)

// StopFunc terminates a running background operation (e.g. a log tail)
// and releases everything it owns.
type StopFunc func()

// PlatformAdapter is the uniform capability surface both the Android and
// iOS adapters expose (spec.md §4.1). Callers never branch on platform
// except when selecting which PlatformAdapter to invoke.
type PlatformAdapter interface {
	// Platform identifies which platform this adapter serves.
	Platform() domain.Platform

	// Enumerate returns the vendor identifiers (serial/UDID) of every
	// currently reachable device. An empty result is not an error.
	Enumerate(ctx context.Context) ([]string, error)

	// Properties reads the descriptive/static properties of a device.
	Properties(ctx context.Context, serial string) (Properties, error)

	// Battery reads the current battery level, 0-100.
	Battery(ctx context.Context, serial string) (int, error)

	// Screenshot captures a single PNG frame. Implementations enforce
	// their own wall-clock timeout internally (10s per spec.md §4.1).
	Screenshot(ctx context.Context, serial string) ([]byte, error)

	// Tap, Swipe, Drag, Key, Text execute the named gesture/input.
	Tap(ctx context.Context, serial string, x, y int) error
	Swipe(ctx context.Context, serial string, x1, y1, x2, y2, durationMS int) error
	Drag(ctx context.Context, serial string, x1, y1, x2, y2, durationMS int) error
	Key(ctx context.Context, serial string, keyCode string) error
	Text(ctx context.Context, serial string, text string) error

	// Install/Uninstall manage an application artifact already staged on
	// disk at path (install) or by package/bundle id (uninstall).
	Install(ctx context.Context, serial string, path string) error
	Uninstall(ctx context.Context, serial string, packageID string) error

	// Shell executes a raw shell command. Only implemented by the
	// Android adapter; the iOS adapter always returns an Unsupported
	// controller error.
	Shell(ctx context.Context, serial string, command string) (string, error)

	// TailLogs starts streaming device logs to sink, returning a
	// StopFunc that terminates the tail. Only implemented by the
	// Android adapter.
	TailLogs(ctx context.Context, serial string, sink LogSink) (StopFunc, error)

	// SupportsLogTail reports whether TailLogs is meaningful for this
	// adapter, so the registry can skip starting a tail it knows will
	// fail.
	SupportsLogTail() bool
}

// TransientError marks adapter errors caused by a device being
// momentarily unreachable (e.g. "device offline", spawn failures under
// load) rather than a real protocol/programming error. The mirror pump
// uses this to decide whether to shed load (spec.md §4.5,
// §7 ResourceExhaustion).
type TransientError struct {
	Serial string
	Err    error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Clock abstracts time.Now for testability of time-driven components
// (discovery tickers, reservation deadlines, mirror pacing).
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
