// Package domain holds the controller's core entities: Device,
// Reservation, Session, Command, DriverServer, LogEntry and Subscriber.
// These types carry no persistence or transport concerns — they are the
// shapes the registry, reservation manager, supervisor and hub operate on.
package domain

import "time"

// Platform identifies which adapter produced a device.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// DeviceType distinguishes a physical handset from a simulator. Only
// meaningful for iOS; Android devices are always DeviceTypePhysical.
type DeviceType string

const (
	DeviceTypePhysical  DeviceType = "physical"
	DeviceTypeSimulator DeviceType = "simulator"
)

// Orientation is the device's current screen orientation.
type Orientation string

const (
	OrientationPortrait  Orientation = "portrait"
	OrientationLandscape Orientation = "landscape"
)

// DeviceStatus is the device's live status in the registry's status
// machine (spec.md §4.2).
type DeviceStatus string

const (
	DeviceStatusOnline       DeviceStatus = "online"
	DeviceStatusOffline      DeviceStatus = "offline"
	DeviceStatusUnauthorized DeviceStatus = "unauthorized"
	DeviceStatusReserved     DeviceStatus = "reserved"
	DeviceStatusInUse        DeviceStatus = "in-use"
)

// Capabilities is a fixed set of hardware capability flags reported by
// the adapter at discovery time.
type Capabilities struct {
	Touchscreen  bool
	Camera       bool
	WiFi         bool
	Bluetooth    bool
	GPS          bool
	NFC          bool
	Fingerprint  bool
	Accelerometer bool
	Gyroscope    bool
}

// Device is the identity and live state of a connected or previously-seen
// handset/simulator. See spec.md §3 for the full field contract.
type Device struct {
	ID           string
	Serial       string
	Platform     Platform
	DeviceType   DeviceType

	Name         string
	Model        string
	Manufacturer string
	OSVersion    string
	APILevel     int
	ScreenWidth  int
	ScreenHeight int
	Orientation  Orientation
	Capabilities Capabilities
	Properties   map[string]string

	Status      DeviceStatus
	Battery     int
	ReservedBy  string
	ReservedAt  *time.Time
	ConnectedAt time.Time
	LastSeen    time.Time
}

// ReservedInvariantHolds reports whether the device satisfies spec.md's
// core invariant: ReservedBy is non-empty iff Status is reserved/in-use.
func (d *Device) ReservedInvariantHolds() bool {
	held := d.Status == DeviceStatusReserved || d.Status == DeviceStatusInUse
	return held == (d.ReservedBy != "")
}

// IsAvailableForReservation reports whether the device can currently be
// reserved (spec.md §4.3 Reserve precondition).
func (d *Device) IsAvailableForReservation() bool {
	return d.Status == DeviceStatusOnline
}

// legalTransitions enumerates every status transition the registry and
// reservation manager are allowed to perform (spec.md §4.2). Any
// transition not listed here is rejected.
var legalTransitions = map[DeviceStatus]map[DeviceStatus]bool{
	DeviceStatusOnline:   {DeviceStatusReserved: true, DeviceStatusOffline: true},
	DeviceStatusReserved: {DeviceStatusInUse: true, DeviceStatusOnline: true, DeviceStatusOffline: true},
	DeviceStatusInUse:    {DeviceStatusReserved: true, DeviceStatusOnline: true, DeviceStatusOffline: true},
	DeviceStatusOffline:  {DeviceStatusOnline: true},
}

// CanTransition reports whether moving from 'from' to 'to' is a legal
// status transition. The initial "" -> online transition (first
// discovery of a brand new device) is always legal.
func CanTransition(from, to DeviceStatus) bool {
	if from == "" && to == DeviceStatusOnline {
		return true
	}
	if from == to {
		return true
	}
	targets, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}
