package ios

import (
	"context"
	"fmt"
	"strconv"

	"github.com/devicelab/controller/internal/core/controllererr"
)

// pointScale converts a pixel coordinate into the point coordinate the
// driver tool expects, using the cached scale factor (spec.md §4.1). A
// cache miss triggers a fresh screenshot purely to infer the scale from
// its width.
func (a *Adapter) pointScale(ctx context.Context, serial string) int {
	now := a.clock.Now()
	if scale, ok := a.scale.get(serial, now); ok {
		return scale
	}

	scale := defaultScale
	if data, err := a.Screenshot(ctx, serial); err == nil {
		scale = inferScale(data)
	}
	a.scale.set(serial, scale, now)
	return scale
}

func (a *Adapter) toPoint(ctx context.Context, serial string, px int) int {
	scale := a.pointScale(ctx, serial)
	if scale == 0 {
		scale = defaultScale
	}
	return px / scale
}

func (a *Adapter) Tap(ctx context.Context, serial string, x, y int) error {
	if !a.isSimulator(serial) {
		return errPhysicalUnsupported("ios.Tap", serial)
	}
	px, py := a.toPoint(ctx, serial, x), a.toPoint(ctx, serial, y)
	_, err := a.run(ctx, a.cfg.DriverToolPath, "ui", "tap", "--udid", serial, strconv.Itoa(px), strconv.Itoa(py))
	if err == nil {
		return nil
	}
	if legacyErr := a.legacyClick(ctx, px, py); legacyErr == nil {
		return nil
	}
	return wrapToolIfErr("ios.Tap", serial, err)
}

// Swipe defaults to 500ms, per spec.md §4.1's swipe/drag duration
// convention.
func (a *Adapter) Swipe(ctx context.Context, serial string, x1, y1, x2, y2, durationMS int) error {
	if !a.isSimulator(serial) {
		return errPhysicalUnsupported("ios.Swipe", serial)
	}
	if durationMS <= 0 {
		durationMS = 500
	}
	return a.swipe(ctx, serial, x1, y1, x2, y2, durationMS)
}

// Drag is a swipe whose duration is raised to at least 1000ms, twice the
// 500ms swipe default; longer durations are passed through unchanged.
func (a *Adapter) Drag(ctx context.Context, serial string, x1, y1, x2, y2, durationMS int) error {
	if !a.isSimulator(serial) {
		return errPhysicalUnsupported("ios.Drag", serial)
	}
	if durationMS < 1000 {
		durationMS = 1000
	}
	return a.swipe(ctx, serial, x1, y1, x2, y2, durationMS)
}

func (a *Adapter) swipe(ctx context.Context, serial string, x1, y1, x2, y2, durationMS int) error {
	p1x, p1y := a.toPoint(ctx, serial, x1), a.toPoint(ctx, serial, y1)
	p2x, p2y := a.toPoint(ctx, serial, x2), a.toPoint(ctx, serial, y2)
	_, err := a.run(ctx, a.cfg.DriverToolPath, "ui", "swipe", "--udid", serial,
		strconv.Itoa(p1x), strconv.Itoa(p1y), strconv.Itoa(p2x), strconv.Itoa(p2y),
		"--duration", strconv.Itoa(durationMS))
	if err == nil {
		return nil
	}
	if legacyErr := a.legacyDrag(ctx, p1x, p1y, p2x, p2y, durationMS); legacyErr == nil {
		return nil
	}
	return wrapToolIfErr("ios.Drag", serial, err)
}

func (a *Adapter) Key(ctx context.Context, serial string, keyCode string) error {
	if !a.isSimulator(serial) {
		return errPhysicalUnsupported("ios.Key", serial)
	}
	_, err := a.run(ctx, a.cfg.DriverToolPath, "ui", "key", "--udid", serial, keyCode)
	if err == nil {
		return nil
	}
	if legacyErr := a.legacyKey(ctx, keyCode); legacyErr == nil {
		return nil
	}
	return wrapToolIfErr("ios.Key", serial, err)
}

func (a *Adapter) Text(ctx context.Context, serial string, text string) error {
	if !a.isSimulator(serial) {
		return errPhysicalUnsupported("ios.Text", serial)
	}
	_, err := a.run(ctx, a.cfg.DriverToolPath, "ui", "text", "--udid", serial, text)
	if err == nil {
		return nil
	}
	if legacyErr := a.legacyText(ctx, text); legacyErr == nil {
		return nil
	}
	return wrapToolIfErr("ios.Text", serial, err)
}

// --- legacy window-relative fallback (spec.md §4.1's "a legacy fallback
// synthesizes window-relative mouse events") ---
//
// When the point-coordinate driver tool is missing or fails, these
// synthesize the same gesture against the frontmost Simulator window via
// System Events, the same osascript-driven UI automation pattern used
// elsewhere in this codebase's external tool integrations.

// legacyClick synthesizes a tap by clicking at (px, py) relative to the
// Simulator app's frontmost window origin.
func (a *Adapter) legacyClick(ctx context.Context, px, py int) error {
	script := fmt.Sprintf(`tell application "System Events"
	tell process "Simulator"
		set frontmost to true
		set winPos to position of front window
		click at {(item 1 of winPos) + %d, (item 2 of winPos) + %d}
	end tell
end tell`, px, py)
	_, err := a.run(ctx, "osascript", "-e", script)
	return err
}

// legacyDrag synthesizes a swipe/drag relative to the Simulator window
// origin by clicking at p1, waiting durationMS, then clicking at p2. No
// button is held between the two clicks, so no continuous press-and-move
// gesture is produced.
func (a *Adapter) legacyDrag(ctx context.Context, p1x, p1y, p2x, p2y, durationMS int) error {
	delaySec := float64(durationMS) / 1000
	script := fmt.Sprintf(`tell application "System Events"
	tell process "Simulator"
		set frontmost to true
		set winPos to position of front window
		set p1 to {(item 1 of winPos) + %d, (item 2 of winPos) + %d}
		set p2 to {(item 1 of winPos) + %d, (item 2 of winPos) + %d}
		click at p1
		delay %.3f
		click at p2
	end tell
end tell`, p1x, p1y, p2x, p2y, delaySec)
	_, err := a.run(ctx, "osascript", "-e", script)
	return err
}

// legacyKey synthesizes a key press via System Events' numeric key code
// table, falling back to a literal keystroke when keyCode isn't numeric.
func (a *Adapter) legacyKey(ctx context.Context, keyCode string) error {
	var script string
	if _, err := strconv.Atoi(keyCode); err == nil {
		script = fmt.Sprintf(`tell application "System Events" to key code %s`, keyCode)
	} else {
		script = fmt.Sprintf(`tell application "System Events" to keystroke %q`, keyCode)
	}
	_, err := a.run(ctx, "osascript", "-e", script)
	return err
}

// legacyText synthesizes typed text via System Events' keystroke command.
func (a *Adapter) legacyText(ctx context.Context, text string) error {
	script := fmt.Sprintf(`tell application "System Events" to keystroke %q`, text)
	_, err := a.run(ctx, "osascript", "-e", script)
	return err
}

// errPhysicalUnsupported implements spec.md §9's preserved limitation:
// "Physical-iOS swipe/key/text are unimplemented in the source (returns
// an error)." Tap is held to the same conservative reading here since no
// physical-device gesture tool is among the external tools spec.md §6
// enumerates for iOS.
func errPhysicalUnsupported(op, serial string) error {
	return controllererr.Wrap(op, controllererr.KindUnsupported, "gesture input not supported for physical iOS device %s", serial)
}
