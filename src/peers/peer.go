package peers

import (
	"time"
)

// NodeTypeValidator marks the only kind of peer retained by the Directory.
// Seed nodes also track observers and other relays; those are discarded at
// load time.
const NodeTypeValidator = "validator"

// Peer is the record kept for one validator, keyed by address. The JSON
// shape matches the seed node's /nodes descriptors.
type Peer struct {
	// Address is the host:port the peer serves on. Unique within a Directory.
	Address string `json:"address"`

	// NodeType is the role the peer registered under.
	NodeType string `json:"nodeType"`

	// LastSeen is the time of the last successful liveness probe. The zero
	// value means the peer has never answered a probe from this node.
	LastSeen time.Time `json:"lastSeen"`

	// IsResponding is the peer's current liveness flag.
	IsResponding bool `json:"isResponding"`

	// Version is the software version the peer advertises, when known.
	Version *string `json:"version,omitempty"`
}

// IsValidator reports whether the record describes a validator.
func (p *Peer) IsValidator() bool {
	return p.NodeType == NodeTypeValidator
}

// Copy returns a detached copy of the record, safe to hand to callers while
// the health sweep keeps mutating the original.
func (p *Peer) Copy() *Peer {
	cp := *p
	return &cp
}

// ExcludePeer is used to exclude a single peer from a list of peers.
func ExcludePeer(peers []*Peer, addr string) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.Address != addr {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
