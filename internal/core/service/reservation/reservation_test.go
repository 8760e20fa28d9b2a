package reservation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab/controller/internal/core/controllererr"
	"github.com/devicelab/controller/internal/core/domain"
	"github.com/devicelab/controller/internal/core/port"
)

// fakeRegistry is a minimal in-memory stand-in for the device registry,
// just enough surface to exercise Manager without pulling in the real
// registry package (avoiding an import cycle between the two service
// packages' tests).
type fakeRegistry struct {
	devices map[string]*domain.Device
}

func newFakeRegistry(devices ...*domain.Device) *fakeRegistry {
	r := &fakeRegistry{devices: make(map[string]*domain.Device)}
	for _, d := range devices {
		r.devices[d.ID] = d
	}
	return r
}

func (r *fakeRegistry) Get(id string) (*domain.Device, error) {
	d, ok := r.devices[id]
	if !ok {
		return nil, controllererr.Wrap("fakeRegistry.Get", controllererr.KindNotFound, "device %q not found", id)
	}
	cp := *d
	return &cp, nil
}

func (r *fakeRegistry) Transition(id string, to domain.DeviceStatus, mutate func(d *domain.Device)) error {
	d, ok := r.devices[id]
	if !ok {
		return controllererr.Wrap("fakeRegistry.Transition", controllererr.KindNotFound, "device %q not found", id)
	}
	if !domain.CanTransition(d.Status, to) {
		return controllererr.Wrap("fakeRegistry.Transition", controllererr.KindInvalidState, "illegal transition %s -> %s", d.Status, to)
	}
	d.Status = to
	if mutate != nil {
		mutate(d)
	}
	return nil
}

func onlineDevice(id string) *domain.Device {
	return &domain.Device{ID: id, Status: domain.DeviceStatusOnline}
}

func TestReserve_TransitionsDeviceAndRecordsReservation(t *testing.T) {
	reg := newFakeRegistry(onlineDevice("d1"))
	m := New(reg, port.SystemClock{}, nil)

	r, err := m.Reserve(context.Background(), "d1", "alice", time.Hour, "debugging")
	require.NoError(t, err)
	assert.Equal(t, "d1", r.DeviceID)
	assert.Equal(t, domain.ReservationActive, r.Status)

	d, err := reg.Get("d1")
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceStatusReserved, d.Status)
	assert.Equal(t, "alice", d.ReservedBy)

	active := m.ActiveReservationsForDevice("d1")
	require.Len(t, active, 1)
	assert.Equal(t, r.ID, active[0].ID)
}

func TestReserve_RejectsAlreadyReservedDevice(t *testing.T) {
	reg := newFakeRegistry(onlineDevice("d1"))
	m := New(reg, port.SystemClock{}, nil)

	_, err := m.Reserve(context.Background(), "d1", "alice", time.Hour, "")
	require.NoError(t, err)

	_, err = m.Reserve(context.Background(), "d1", "bob", time.Hour, "")
	require.Error(t, err)
	assert.Equal(t, controllererr.KindInvalidState, controllererr.KindOf(err))
}

func TestRelease_ReturnsDeviceOnlineAndClearsActiveReservation(t *testing.T) {
	reg := newFakeRegistry(onlineDevice("d1"))
	m := New(reg, port.SystemClock{}, nil)

	_, err := m.Reserve(context.Background(), "d1", "alice", time.Hour, "")
	require.NoError(t, err)

	err = m.Release(context.Background(), "d1")
	require.NoError(t, err)

	d, err := reg.Get("d1")
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceStatusOnline, d.Status)
	assert.Empty(t, d.ReservedBy)
	assert.Empty(t, m.ActiveReservationsForDevice("d1"))
}

func TestCreateSessionThenEndSession_ReturnsToReservedWhenReservationHeld(t *testing.T) {
	reg := newFakeRegistry(onlineDevice("d1"))
	m := New(reg, port.SystemClock{}, nil)

	_, err := m.Reserve(context.Background(), "d1", "alice", time.Hour, "")
	require.NoError(t, err)

	s, err := m.CreateSession(context.Background(), "d1", "alice")
	require.NoError(t, err)

	d, err := reg.Get("d1")
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceStatusInUse, d.Status)

	err = m.EndSession(context.Background(), s.ID)
	require.NoError(t, err)

	d, err = reg.Get("d1")
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceStatusReserved, d.Status, "reservation still active so device returns to reserved, not online")

	got, err := m.Session(s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, got.Status)
	assert.NotNil(t, got.EndTime)
}

func TestEndSession_ReturnsOnlineWhenNoReservationHeld(t *testing.T) {
	reg := newFakeRegistry(&domain.Device{ID: "d1", Status: domain.DeviceStatusInUse})
	m := New(reg, port.SystemClock{}, nil)

	s, err := m.CreateSession(context.Background(), "d1", "alice")
	require.NoError(t, err)

	err = m.EndSession(context.Background(), s.ID)
	require.NoError(t, err)

	d, err := reg.Get("d1")
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceStatusOnline, d.Status)
}

func TestEndSession_UnknownIDIsNotFound(t *testing.T) {
	reg := newFakeRegistry(onlineDevice("d1"))
	m := New(reg, port.SystemClock{}, nil)

	err := m.EndSession(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.Equal(t, controllererr.KindNotFound, controllererr.KindOf(err))
}

