package node

import (
	"sync/atomic"
)

// Status captures the registration status of a relay node with respect to
// the seed node: NotRegistered, Registering, Registered, or
// RegistrationFailed.
type Status uint32

const (
	// NotRegistered is the initial status, before any contact with the seed
	// node.
	NotRegistered Status = iota

	// Registering is the status while a registration request is in flight.
	Registering

	// Registered means the seed node acknowledged the registration, either
	// as newly created or as already known.
	Registered

	// RegistrationFailed means the last registration attempt was refused or
	// never reached the seed node.
	RegistrationFailed
)

// String returns the string representation of a Status.
func (s Status) String() string {
	switch s {
	case NotRegistered:
		return "NotRegistered"
	case Registering:
		return "Registering"
	case Registered:
		return "Registered"
	case RegistrationFailed:
		return "RegistrationFailed"
	default:
		return "Unknown"
	}
}

type state struct {
	status uint32
}

func (b *state) getStatus() Status {
	return Status(atomic.LoadUint32(&b.status))
}

func (b *state) setStatus(s Status) {
	atomic.StoreUint32(&b.status, uint32(s))
}
