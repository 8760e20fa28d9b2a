package domain

import "time"

// CommandType enumerates the supported remote-control operations
// (spec.md §3).
type CommandType string

const (
	CommandTap       CommandType = "tap"
	CommandSwipe     CommandType = "swipe"
	CommandDrag      CommandType = "drag"
	CommandKey       CommandType = "key"
	CommandText      CommandType = "text"
	CommandInstall   CommandType = "install"
	CommandUninstall CommandType = "uninstall"
	CommandShell     CommandType = "shell"
)

// CommandStatus is the lifecycle state of a Command.
type CommandStatus string

const (
	CommandPending    CommandStatus = "pending"
	CommandExecuting  CommandStatus = "executing"
	CommandCompleted  CommandStatus = "completed"
	CommandFailed     CommandStatus = "failed"
)

// Payload is a tagged variant: every concrete payload type identifies
// its own CommandType so dispatch never needs a second source of truth
// for "what kind of command is this" (spec.md §9 design note on dynamic
// payloads). Unknown payload shapes are rejected at the HTTP boundary,
// never passed through to an adapter.
type Payload interface {
	CommandType() CommandType
}

// TapPayload taps a single point.
type TapPayload struct {
	X, Y int
}

func (TapPayload) CommandType() CommandType { return CommandTap }

// SwipePayload swipes from one point to another over DurationMS.
type SwipePayload struct {
	StartX, StartY int
	EndX, EndY     int
	DurationMS     int
}

func (SwipePayload) CommandType() CommandType { return CommandSwipe }

// DragPayload is a SwipePayload whose duration the adapter raises to at
// least 1000ms.
type DragPayload struct {
	StartX, StartY int
	EndX, EndY     int
	DurationMS     int
}

func (DragPayload) CommandType() CommandType { return CommandDrag }

// KeyPayload sends a single key event (e.g. an Android keycode).
type KeyPayload struct {
	KeyCode string
}

func (KeyPayload) CommandType() CommandType { return CommandKey }

// TextPayload types literal text into the focused field.
type TextPayload struct {
	Text string
}

func (TextPayload) CommandType() CommandType { return CommandText }

// InstallPayload installs an application artifact already staged on
// disk by the caller.
type InstallPayload struct {
	ArtifactPath string
}

func (InstallPayload) CommandType() CommandType { return CommandInstall }

// UninstallPayload removes an installed application by package/bundle id.
type UninstallPayload struct {
	PackageID string
}

func (UninstallPayload) CommandType() CommandType { return CommandUninstall }

// ShellPayload runs a raw shell command. Android only (spec.md §4.1);
// dispatch on iOS rejects it with KindUnsupported before it reaches an
// adapter.
type ShellPayload struct {
	Command string
}

func (ShellPayload) CommandType() CommandType { return CommandShell }

// Command is a transient record for a control request (spec.md §3).
type Command struct {
	ID        string
	DeviceID  string
	Type      CommandType
	Payload   Payload
	Timestamp time.Time
	Status    CommandStatus
	Result    string
	Error     string
}
