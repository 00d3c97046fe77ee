package session

import (
	"maps"
	"time"

	"github.com/srg/blecmd/internal/command"
	"github.com/srg/blecmd/internal/device"
)

// Status is the connection status of the session.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// SourceKind tags what backs the active session.
type SourceKind int

const (
	SourceNone SourceKind = iota
	SourceLive
	SourceDemo
)

func (k SourceKind) String() string {
	switch k {
	case SourceLive:
		return "live"
	case SourceDemo:
		return "demo"
	default:
		return "none"
	}
}

// Source is None, Live(peripheral) or Demo. A single field makes a live
// connection and demo mode mutually exclusive.
type Source struct {
	Kind       SourceKind
	Peripheral device.PeripheralRef
}

// DemoPeripheral is the synthetic identity bound to demo sessions.
var DemoPeripheral = device.PeripheralRef{ID: "demo-device", Name: "Arduino-Sim"}

// AcquireState tracks notification negotiation for a live session.
type AcquireState int

const (
	AcquireIdle AcquireState = iota
	AcquireNegotiating
	AcquireSubscribed
	AcquireFallback
)

func (a AcquireState) String() string {
	switch a {
	case AcquireNegotiating:
		return "negotiating"
	case AcquireSubscribed:
		return "subscribed"
	case AcquireFallback:
		return "fallback"
	default:
		return "idle"
	}
}

// Stats counts commands received during the current session.
type Stats struct {
	Total    int            `json:"total"`
	PerToken map[string]int `json:"per_token"`
	LastAt   time.Time      `json:"last_at"`
}

func (s *Stats) record(ev command.Event) {
	if s.PerToken == nil {
		s.PerToken = make(map[string]int)
	}
	s.Total++
	s.PerToken[ev.Token]++
	s.LastAt = ev.ArrivedAt
}

func (s Stats) clone() Stats {
	out := s
	out.PerToken = maps.Clone(s.PerToken)
	return out
}

// State is a point-in-time copy of everything the renderer needs.
type State struct {
	Power      device.PowerState
	Status     Status
	Source     Source
	Acquire    AcquireState
	NotifyPair *device.Pair
	Writable   bool
	Scanning   bool
	Display    *command.Display
	Stats      Stats
}

// Connected reports whether a live or demo session is up.
func (s State) Connected() bool {
	return s.Status == StatusConnected
}

// UpdateKind says why an Update was published.
type UpdateKind int

const (
	UpdateStatus UpdateKind = iota
	UpdatePower
	UpdateScan
	UpdateDevice
	UpdateAcquire
	UpdateCommand
	UpdateCleared
)

func (k UpdateKind) String() string {
	switch k {
	case UpdatePower:
		return "power"
	case UpdateScan:
		return "scan"
	case UpdateDevice:
		return "device"
	case UpdateAcquire:
		return "acquire"
	case UpdateCommand:
		return "command"
	case UpdateCleared:
		return "cleared"
	default:
		return "status"
	}
}

// Update is published on every state change.
type Update struct {
	Kind   UpdateKind
	State  State
	Event  *command.Event        // set for UpdateCommand
	Device *device.PeripheralRef // set for UpdateDevice
}
