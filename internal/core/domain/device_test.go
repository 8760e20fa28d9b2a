package domain

import "testing"

func TestCanTransition_InitialDiscoveryIsOnline(t *testing.T) {
	if !CanTransition("", DeviceStatusOnline) {
		t.Error("expected \"\" -> online to be legal")
	}
	if CanTransition("", DeviceStatusOffline) {
		t.Error("expected \"\" -> offline to be illegal")
	}
}

func TestCanTransition_SameStatusAlwaysLegal(t *testing.T) {
	for _, s := range []DeviceStatus{DeviceStatusOnline, DeviceStatusOffline, DeviceStatusReserved, DeviceStatusInUse, DeviceStatusUnauthorized} {
		if !CanTransition(s, s) {
			t.Errorf("expected %s -> %s (no-op) to be legal", s, s)
		}
	}
}

func TestCanTransition_LegalPaths(t *testing.T) {
	cases := []struct{ from, to DeviceStatus }{
		{DeviceStatusOnline, DeviceStatusReserved},
		{DeviceStatusOnline, DeviceStatusOffline},
		{DeviceStatusReserved, DeviceStatusInUse},
		{DeviceStatusReserved, DeviceStatusOnline},
		{DeviceStatusReserved, DeviceStatusOffline},
		{DeviceStatusInUse, DeviceStatusReserved},
		{DeviceStatusInUse, DeviceStatusOnline},
		{DeviceStatusInUse, DeviceStatusOffline},
		{DeviceStatusOffline, DeviceStatusOnline},
	}
	for _, c := range cases {
		if !CanTransition(c.from, c.to) {
			t.Errorf("expected %s -> %s to be legal", c.from, c.to)
		}
	}
}

func TestCanTransition_IllegalPaths(t *testing.T) {
	cases := []struct{ from, to DeviceStatus }{
		{DeviceStatusOnline, DeviceStatusInUse},
		{DeviceStatusOffline, DeviceStatusReserved},
		{DeviceStatusOffline, DeviceStatusInUse},
		{DeviceStatusUnauthorized, DeviceStatusOnline},
	}
	for _, c := range cases {
		if CanTransition(c.from, c.to) {
			t.Errorf("expected %s -> %s to be illegal", c.from, c.to)
		}
	}
}

func TestReservedInvariantHolds(t *testing.T) {
	d := &Device{Status: DeviceStatusReserved, ReservedBy: "alice"}
	if !d.ReservedInvariantHolds() {
		t.Error("expected reserved device with ReservedBy set to hold the invariant")
	}

	d = &Device{Status: DeviceStatusReserved, ReservedBy: ""}
	if d.ReservedInvariantHolds() {
		t.Error("expected reserved device without ReservedBy to violate the invariant")
	}

	d = &Device{Status: DeviceStatusOnline, ReservedBy: ""}
	if !d.ReservedInvariantHolds() {
		t.Error("expected online device without ReservedBy to hold the invariant")
	}

	d = &Device{Status: DeviceStatusOnline, ReservedBy: "alice"}
	if d.ReservedInvariantHolds() {
		t.Error("expected online device with stale ReservedBy to violate the invariant")
	}
}

func TestIsAvailableForReservation(t *testing.T) {
	if !(&Device{Status: DeviceStatusOnline}).IsAvailableForReservation() {
		t.Error("expected online device to be available for reservation")
	}
	if (&Device{Status: DeviceStatusReserved}).IsAvailableForReservation() {
		t.Error("expected reserved device to be unavailable for reservation")
	}
}
