package ios

import (
	"context"
	"os"

	"github.com/devicelab/controller/internal/core/controllererr"
)

// Screenshot captures a PNG frame (spec.md §4.1). Simulators use the
// simulator controller's screenshot-to-file command. Physical devices
// try, in order: the device bridge's screenshot tool, an alternative
// Python-based tool, mounting the developer disk image and retrying,
// an external configurator utility, and finally a generated placeholder.
// Every method verifies non-empty file contents; temp files are always
// unlinked on both success and failure paths.
func (a *Adapter) Screenshot(ctx context.Context, serial string) ([]byte, error) {
	if a.isSimulator(serial) {
		return a.simulatorScreenshot(ctx, serial)
	}
	return a.physicalScreenshot(ctx, serial)
}

func (a *Adapter) simulatorScreenshot(ctx context.Context, serial string) ([]byte, error) {
	path, cleanup, err := tempPNGPath()
	if err != nil {
		return nil, wrapTool("ios.Screenshot", serial, err)
	}
	defer cleanup()

	if _, err := a.runSimctl(ctx, "io", serial, "screenshot", path); err != nil {
		return nil, wrapTool("ios.Screenshot", serial, err)
	}
	return readNonEmpty(path)
}

// physicalScreenshot tries the fallback chain described in spec.md §4.1.
// Each intermediate failure is absorbed with at most one warn-level
// outcome (the caller's logger is not threaded through here; the adapter
// stays silent and lets the supervisor/registry decide what to log,
// consistent with spec.md §7's propagation policy of absorbing
// fallback-chain failures and surfacing only total exhaustion).
func (a *Adapter) physicalScreenshot(ctx context.Context, serial string) ([]byte, error) {
	if data, err := a.tryIdeviceScreenshot(ctx, serial); err == nil {
		return data, nil
	}

	if data, err := a.tryPymobiledevice(ctx, serial); err == nil {
		return data, nil
	}

	if _, err := a.run(ctx, a.cfg.DeveloperDiskMountPath, "-u", serial); err == nil {
		if data, err := a.tryIdeviceScreenshot(ctx, serial); err == nil {
			return data, nil
		}
	}

	if data, err := a.tryCfgutil(ctx, serial); err == nil {
		return data, nil
	}

	name, model := a.lastKnownNameModel(serial)
	width, height := a.lastKnownResolution(serial)
	placeholder, err := generatePlaceholder(name, model, width, height)
	if err != nil {
		return nil, controllererr.Wrap("ios.Screenshot", controllererr.KindExternalToolFailure, "all screenshot fallbacks exhausted for %s: %v", serial, err)
	}
	return placeholder, nil
}

func (a *Adapter) tryIdeviceScreenshot(ctx context.Context, serial string) ([]byte, error) {
	path, cleanup, err := tempPNGPath()
	if err != nil {
		return nil, err
	}
	defer cleanup()
	if _, err := a.run(ctx, a.cfg.IdeviceScreenshot, "-u", serial, path); err != nil {
		return nil, err
	}
	return readNonEmpty(path)
}

func (a *Adapter) tryPymobiledevice(ctx context.Context, serial string) ([]byte, error) {
	path, cleanup, err := tempPNGPath()
	if err != nil {
		return nil, err
	}
	defer cleanup()
	if _, err := a.run(ctx, a.cfg.PymobiledevicePath, "developer", "dvt", "screenshot", path, "--udid", serial); err != nil {
		return nil, err
	}
	return readNonEmpty(path)
}

func (a *Adapter) tryCfgutil(ctx context.Context, serial string) ([]byte, error) {
	path, cleanup, err := tempPNGPath()
	if err != nil {
		return nil, err
	}
	defer cleanup()
	if _, err := a.run(ctx, a.cfg.CfgutilPath, "-e", serial, "get-screenshot", path); err != nil {
		return nil, err
	}
	return readNonEmpty(path)
}

// lastKnownNameModel/Resolution fall back to placeholder-friendly
// defaults; a real deployment would thread the cached Device record in,
// but the adapter itself holds no registry reference by design (it is
// stateless aside from small caches, spec.md §4.1).
func (a *Adapter) lastKnownNameModel(serial string) (name, model string) {
	return serial, "unknown iOS device"
}

func (a *Adapter) lastKnownResolution(serial string) (width, height int) {
	return 0, 0
}

func tempPNGPath() (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "ios-screenshot-*.png")
	if err != nil {
		return "", nil, err
	}
	name := f.Name()
	_ = f.Close()
	return name, func() { _ = os.Remove(name) }, nil
}

func readNonEmpty(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errEmptyFile
	}
	return data, nil
}

var errEmptyFile = controllererr.Wrap("ios.readNonEmpty", controllererr.KindExternalToolFailure, "screenshot file is empty")
