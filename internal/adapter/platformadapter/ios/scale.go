package ios

import (
	"bytes"
	"image"
	_ "image/png" // decode header only, to read screenshot width
	"sync"
	"time"
)

// scaleCacheTTL is the validity window for an inferred pixels-per-point
// scale factor (spec.md §4.1: "valid 5 minutes").
const scaleCacheTTL = 5 * time.Minute

// defaultScale is used when detection fails.
const defaultScale = 3

type scaleEntry struct {
	scale     int
	expiresAt time.Time
}

// scaleCache maintains the per-device pixel-to-point scale factor used
// to convert screenshot (pixel) coordinates into the point coordinates
// the driver tool expects (spec.md §4.1 "Coordinate-space conversion").
// Treated as the single source of truth per SPEC_FULL.md/spec.md §9.
type scaleCache struct {
	mu      sync.Mutex
	entries map[string]scaleEntry
}

func newScaleCache() *scaleCache {
	return &scaleCache{entries: make(map[string]scaleEntry)}
}

// get returns the cached scale for serial if still valid.
func (c *scaleCache) get(serial string, now time.Time) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[serial]
	if !ok || now.After(e.expiresAt) {
		return 0, false
	}
	return e.scale, true
}

// set stores a freshly inferred scale for serial.
func (c *scaleCache) set(serial string, scale int, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[serial] = scaleEntry{scale: scale, expiresAt: now.Add(scaleCacheTTL)}
}

// invalidate drops serial's cached scale, exposed for device-disconnect
// handling (spec.md §9 "expose its invalidation on device disconnect").
func (c *scaleCache) invalidate(serial string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, serial)
}

// inferScale decodes a screenshot's width and applies spec.md §4.1's
// rule: width > 800 => x3, else x2; default x3 if detection fails.
func inferScale(png []byte) int {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(png))
	if err != nil {
		return defaultScale
	}
	if cfg.Width > 800 {
		return 3
	}
	return 2
}
