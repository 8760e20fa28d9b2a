package mirror

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab/controller/internal/core/controllererr"
	"github.com/devicelab/controller/internal/core/domain"
	"github.com/devicelab/controller/internal/core/port"
)

type fakeGetter struct {
	devices map[string]*domain.Device
}

func (g *fakeGetter) Get(id string) (*domain.Device, error) {
	d, ok := g.devices[id]
	if !ok {
		return nil, controllererr.Wrap("fakeGetter.Get", controllererr.KindNotFound, "device %q not found", id)
	}
	return d, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_DefaultsCeilingWhenNonPositive(t *testing.T) {
	p := New(0, nil, nil, &fakeGetter{devices: map[string]*domain.Device{}}, port.SystemClock{}, testLogger())
	assert.Equal(t, float64(1), float64(1e9)/float64(p.interval))
}

func TestStartMirror_UnknownDeviceFails(t *testing.T) {
	p := New(1, nil, nil, &fakeGetter{devices: map[string]*domain.Device{}}, port.SystemClock{}, testLogger())

	err := p.StartMirror("missing", "sub1", 1)

	require.Error(t, err)
	assert.Equal(t, controllererr.KindNotFound, controllererr.KindOf(err))
}

func TestStartMirror_SameSubscriberTwiceIsNoop(t *testing.T) {
	getter := &fakeGetter{devices: map[string]*domain.Device{"d1": {ID: "d1", Platform: domain.PlatformAndroid, Serial: "S1"}}}
	p := New(1, nil, nil, getter, port.SystemClock{}, testLogger())

	require.NoError(t, p.StartMirror("d1", "sub1", 1))
	require.NoError(t, p.StartMirror("d1", "sub1", 1))

	p.mu.Lock()
	dp := p.devices["d1"]
	p.mu.Unlock()
	require.NotNil(t, dp)
	dp.mu.Lock()
	defer dp.mu.Unlock()
	assert.Len(t, dp.subscribers, 1)

	p.StopSubscriber("sub1")
}

func TestStartMirror_SharesOnePumpAcrossSubscribers(t *testing.T) {
	getter := &fakeGetter{devices: map[string]*domain.Device{"d1": {ID: "d1", Platform: domain.PlatformAndroid, Serial: "S1"}}}
	p := New(1, nil, nil, getter, port.SystemClock{}, testLogger())

	require.NoError(t, p.StartMirror("d1", "sub1", 1))
	require.NoError(t, p.StartMirror("d1", "sub2", 1))

	p.mu.Lock()
	count := len(p.devices)
	dp := p.devices["d1"]
	p.mu.Unlock()
	assert.Equal(t, 1, count, "two subscribers of the same device share one pump")

	dp.mu.Lock()
	assert.Len(t, dp.subscribers, 2)
	dp.mu.Unlock()

	p.StopSubscriber("sub1")
	p.mu.Lock()
	_, stillTracked := p.devices["d1"]
	p.mu.Unlock()
	assert.True(t, stillTracked, "pump stays alive while sub2 remains")

	p.StopSubscriber("sub2")
	p.mu.Lock()
	_, stillTracked = p.devices["d1"]
	p.mu.Unlock()
	assert.False(t, stillTracked, "pump is released once the last subscriber leaves")
}

func TestStopMirror_UnknownDeviceIsANoop(t *testing.T) {
	p := New(1, nil, nil, &fakeGetter{devices: map[string]*domain.Device{}}, port.SystemClock{}, testLogger())
	assert.NotPanics(t, func() { p.StopMirror("missing", "sub1") })
}

func TestIsTransient_RecognizesTransientErrorAndResourceExhaustionKind(t *testing.T) {
	assert.True(t, isTransient(&port.TransientError{Serial: "S1", Err: errors.New("busy")}))
	assert.True(t, isTransient(controllererr.Wrap("x", controllererr.KindResourceExhaustion, "exhausted")))
	assert.False(t, isTransient(controllererr.Wrap("x", controllererr.KindTimeout, "slow")))
	assert.False(t, isTransient(errors.New("plain")))
}
