package registry

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab/controller/internal/core/controllererr"
	"github.com/devicelab/controller/internal/core/domain"
	"github.com/devicelab/controller/internal/core/port"
)

// fakeAdapter is a scriptable stand-in for a platform adapter: tests
// control exactly which serials Enumerate reports and what Properties
// returns, without spawning any real device tooling.
type fakeAdapter struct {
	platform domain.Platform
	serials  []string
	props    port.Properties
	battery  int

	shellCalls int
}

func (a *fakeAdapter) Platform() domain.Platform { return a.platform }
func (a *fakeAdapter) Enumerate(ctx context.Context) ([]string, error) { return a.serials, nil }
func (a *fakeAdapter) Properties(ctx context.Context, serial string) (port.Properties, error) {
	return a.props, nil
}
func (a *fakeAdapter) Battery(ctx context.Context, serial string) (int, error) { return a.battery, nil }
func (a *fakeAdapter) Screenshot(ctx context.Context, serial string) ([]byte, error) {
	return nil, nil
}
func (a *fakeAdapter) Tap(ctx context.Context, serial string, x, y int) error { return nil }
func (a *fakeAdapter) Swipe(ctx context.Context, serial string, x1, y1, x2, y2, durationMS int) error {
	return nil
}
func (a *fakeAdapter) Drag(ctx context.Context, serial string, x1, y1, x2, y2, durationMS int) error {
	return nil
}
func (a *fakeAdapter) Key(ctx context.Context, serial string, keyCode string) error  { return nil }
func (a *fakeAdapter) Text(ctx context.Context, serial string, text string) error    { return nil }
func (a *fakeAdapter) Install(ctx context.Context, serial, path string) error        { return nil }
func (a *fakeAdapter) Uninstall(ctx context.Context, serial, packageID string) error { return nil }
func (a *fakeAdapter) Shell(ctx context.Context, serial, command string) (string, error) {
	a.shellCalls++
	return "ok", nil
}
func (a *fakeAdapter) TailLogs(ctx context.Context, serial string, sink port.LogSink) (port.StopFunc, error) {
	return func() {}, nil
}
func (a *fakeAdapter) SupportsLogTail() bool { return false }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(android, ios port.PlatformAdapter) *Registry {
	return New(android, ios, port.SystemClock{}, testLogger())
}

func TestDiscover_NewSerialCreatesOnlineDevice(t *testing.T) {
	android := &fakeAdapter{platform: domain.PlatformAndroid, serials: []string{"SERIAL1"}, props: port.Properties{Name: "Pixel"}}
	reg := newTestRegistry(android, &fakeAdapter{platform: domain.PlatformIOS})

	reg.Discover(context.Background())

	devices := reg.List()
	require.Len(t, devices, 1)
	assert.Equal(t, "SERIAL1", devices[0].Serial)
	assert.Equal(t, domain.DeviceStatusOnline, devices[0].Status)
}

func TestDiscover_SecondIdenticalCycleIsIdempotent(t *testing.T) {
	android := &fakeAdapter{platform: domain.PlatformAndroid, serials: []string{"SERIAL1"}, props: port.Properties{Name: "Pixel"}}
	reg := newTestRegistry(android, &fakeAdapter{platform: domain.PlatformIOS})

	reg.Discover(context.Background())
	first := reg.List()
	require.Len(t, first, 1)
	firstID := first[0].ID

	reg.Discover(context.Background())
	second := reg.List()

	require.Len(t, second, 1, "a repeated cycle over the same serial must not create a duplicate device")
	assert.Equal(t, firstID, second[0].ID)
	assert.Equal(t, domain.DeviceStatusOnline, second[0].Status)
}

func TestDiscover_DisappearedDeviceGoesOffline(t *testing.T) {
	android := &fakeAdapter{platform: domain.PlatformAndroid, serials: []string{"SERIAL1"}, props: port.Properties{Name: "Pixel"}}
	reg := newTestRegistry(android, &fakeAdapter{platform: domain.PlatformIOS})

	reg.Discover(context.Background())
	require.Len(t, reg.List(), 1)

	android.serials = nil
	reg.Discover(context.Background())

	devices := reg.List()
	require.Len(t, devices, 1)
	assert.Equal(t, domain.DeviceStatusOffline, devices[0].Status)
}

func TestDiscover_ReappearedOfflineDeviceGoesOnlineWithoutDuplication(t *testing.T) {
	android := &fakeAdapter{platform: domain.PlatformAndroid, serials: []string{"SERIAL1"}, props: port.Properties{Name: "Pixel"}}
	reg := newTestRegistry(android, &fakeAdapter{platform: domain.PlatformIOS})

	reg.Discover(context.Background())
	android.serials = nil
	reg.Discover(context.Background())
	require.Equal(t, domain.DeviceStatusOffline, reg.List()[0].Status)

	android.serials = []string{"SERIAL1"}
	reg.Discover(context.Background())

	devices := reg.List()
	require.Len(t, devices, 1)
	assert.Equal(t, domain.DeviceStatusOnline, devices[0].Status)
}

func TestDispatch_ShellRejectedOnIOS(t *testing.T) {
	ios := &fakeAdapter{platform: domain.PlatformIOS, serials: []string{"UDID1"}, props: port.Properties{Name: "iPhone"}}
	reg := newTestRegistry(&fakeAdapter{platform: domain.PlatformAndroid}, ios)
	reg.Discover(context.Background())

	d := reg.List()[0]
	_, err := reg.Dispatch(context.Background(), d.ID, domain.ShellPayload{Command: "ls"})

	require.Error(t, err)
	assert.Equal(t, controllererr.KindUnsupported, controllererr.KindOf(err))
	assert.Zero(t, ios.shellCalls)
}

func TestDispatch_ShellAllowedOnAndroid(t *testing.T) {
	android := &fakeAdapter{platform: domain.PlatformAndroid, serials: []string{"SERIAL1"}, props: port.Properties{Name: "Pixel"}}
	reg := newTestRegistry(android, &fakeAdapter{platform: domain.PlatformIOS})
	reg.Discover(context.Background())

	d := reg.List()[0]
	out, err := reg.Dispatch(context.Background(), d.ID, domain.ShellPayload{Command: "ls"})

	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 1, android.shellCalls)
}

func TestDispatch_UnknownDeviceIsNotFound(t *testing.T) {
	reg := newTestRegistry(&fakeAdapter{platform: domain.PlatformAndroid}, &fakeAdapter{platform: domain.PlatformIOS})

	_, err := reg.Dispatch(context.Background(), "missing", domain.TapPayload{X: 1, Y: 1})

	require.Error(t, err)
	assert.Equal(t, controllererr.KindNotFound, controllererr.KindOf(err))
}

func TestTransition_RejectsIllegalMove(t *testing.T) {
	android := &fakeAdapter{platform: domain.PlatformAndroid, serials: []string{"SERIAL1"}, props: port.Properties{Name: "Pixel"}}
	reg := newTestRegistry(android, &fakeAdapter{platform: domain.PlatformIOS})
	reg.Discover(context.Background())
	d := reg.List()[0]

	err := reg.Transition(d.ID, domain.DeviceStatusInUse, nil)

	require.Error(t, err)
	assert.Equal(t, controllererr.KindInvalidState, controllererr.KindOf(err))
}

func TestDeriveName_AndroidEmulatorAVDName(t *testing.T) {
	props := port.Properties{Raw: map[string]string{"ro.boot.qemu.avd_name": "Pixel_8_API_34"}}
	assert.Equal(t, "Pixel 8 API 34", deriveName(domain.PlatformAndroid, props))
}

func TestDeriveName_AndroidSDKModelFallsBackToFriendlyName(t *testing.T) {
	props := port.Properties{Raw: map[string]string{"ro.product.model": "sdk_gphone64_x86_64"}}
	assert.Equal(t, "Android Emulator (gphone64 x86 64)", deriveName(domain.PlatformAndroid, props))
}

func TestDeriveName_AndroidPhysicalDeviceUsesModel(t *testing.T) {
	props := port.Properties{Raw: map[string]string{"ro.product.model": "Pixel 8"}}
	assert.Equal(t, "Pixel 8", deriveName(domain.PlatformAndroid, props))
}

func TestDeriveName_IOSUsesReportedNameVerbatim(t *testing.T) {
	props := port.Properties{Name: "Alice's iPhone"}
	assert.Equal(t, "Alice's iPhone", deriveName(domain.PlatformIOS, props))
}
