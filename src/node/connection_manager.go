package node

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meshnetworks/relay/src/common"
	"github.com/meshnetworks/relay/src/net"
)

// ConnectionManager owns this node's identity and its connection to the
// seed node: the registration state machine, the recurring liveness ping,
// and the bounded reconnection loop. Network failures never propagate out
// of it; they are converted to state transitions and boolean outcomes.
type ConnectionManager struct {
	state

	addr string
	seed *net.SeedClient

	pingInterval         time.Duration
	reconnectInterval    time.Duration
	maxReconnectAttempts int

	mu                sync.Mutex
	connected         bool
	lastPing          time.Time
	reconnectAttempts int
	reconnecting      bool
	pingTimer         *common.ControlTimer
	reconnectTimer    *common.ControlTimer

	logger *logrus.Entry
}

// NewConnectionManager returns a manager in the NotRegistered, disconnected
// state. addr is this node's externally visible host:port.
func NewConnectionManager(
	addr string,
	seed *net.SeedClient,
	pingInterval time.Duration,
	reconnectInterval time.Duration,
	maxReconnectAttempts int,
	logger *logrus.Entry,
) *ConnectionManager {
	return &ConnectionManager{
		addr:                 addr,
		seed:                 seed,
		pingInterval:         pingInterval,
		reconnectInterval:    reconnectInterval,
		maxReconnectAttempts: maxReconnectAttempts,
		logger:               logger.WithField("prefix", "node"),
	}
}

// Start performs the initial connect against the seed node and starts the
// recurring ping. The boolean result of the initial connect is deliberately
// ignored: a failed connect has already armed the reconnection loop.
func (m *ConnectionManager) Start() {
	m.Connect()
	m.StartPingTimer()
}

// Connect pings the seed node and, if that succeeds, registers this node's
// address with it. Both a fresh registration (201) and an already-existing
// one (200) count as success. Any failure arms the reconnection loop and
// returns false.
func (m *ConnectionManager) Connect() bool {
	if err := m.seed.Ping(); err != nil {
		m.logger.WithError(err).Warn("Seed node unreachable")
		m.handleFailure()
		return false
	}

	m.mu.Lock()
	m.connected = true
	m.lastPing = time.Now()
	m.mu.Unlock()

	m.setStatus(Registering)

	if err := m.seed.Register(m.addr); err != nil {
		m.logger.WithError(err).Error("Registration refused by seed node")
		m.setStatus(RegistrationFailed)
		m.handleFailure()
		return false
	}

	m.setStatus(Registered)

	// reconnection has succeeded and should not keep running in the
	// background
	m.mu.Lock()
	m.reconnectAttempts = 0
	m.reconnecting = false
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
	}
	m.mu.Unlock()

	m.logger.WithField("seed", m.seed.Addr()).Info("Registered with seed node")

	return true
}

// Ping issues a liveness check against the seed node. Success refreshes the
// connected flag and the last-ping time; a failure that transitions the
// node from connected to not-connected arms the reconnection loop.
func (m *ConnectionManager) Ping() bool {
	if err := m.seed.Ping(); err != nil {
		m.mu.Lock()
		wasConnected := m.connected
		m.connected = false
		m.mu.Unlock()

		if wasConnected {
			m.logger.WithError(err).Warn("Lost connection to seed node")
			m.handleFailure()
		}

		return false
	}

	m.mu.Lock()
	m.connected = true
	m.lastPing = time.Now()
	m.mu.Unlock()

	return true
}

// handleFailure marks the node disconnected and arms the reconnection timer
// unless one is already running.
func (m *ConnectionManager) handleFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connected = false

	if m.reconnecting {
		return
	}

	m.reconnecting = true

	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
	}

	timer := common.NewControlTimer(m.reconnectInterval)
	m.reconnectTimer = timer

	m.logger.WithField("interval", m.reconnectInterval).Debug("Starting reconnection loop")

	go timer.Run(m.reconnectTick)
}

// reconnectTick is one round of the reconnection loop. It stops the loop
// when the attempt budget is exhausted, or when a connect succeeds.
func (m *ConnectionManager) reconnectTick() bool {
	m.mu.Lock()

	if !m.reconnecting {
		m.mu.Unlock()
		return false
	}

	if m.reconnectAttempts >= m.maxReconnectAttempts {
		m.logger.WithField("attempts", m.reconnectAttempts).Warn("Max reconnection attempts reached, giving up")
		m.reconnecting = false
		m.reconnectAttempts = 0
		m.mu.Unlock()
		return false
	}

	m.reconnectAttempts++
	attempt := m.reconnectAttempts
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"attempt": attempt,
		"max":     m.maxReconnectAttempts,
	}).Debug("Reconnecting to seed node")

	// a successful Connect resets the attempt counter and clears the
	// reconnecting flag itself
	return !m.Connect()
}

// StartPingTimer starts the recurring liveness ping, cancelling and
// replacing any previously running ping timer. Each tick calls Ping,
// ignoring the boolean result: the side effects on state are what matter.
func (m *ConnectionManager) StartPingTimer() {
	m.mu.Lock()
	if m.pingTimer != nil {
		m.pingTimer.Stop()
	}
	timer := common.NewControlTimer(m.pingInterval)
	m.pingTimer = timer
	m.mu.Unlock()

	go timer.Run(func() bool {
		m.Ping()
		return true
	})
}

// Shutdown stops both timers. In-flight calls to the seed node drain
// naturally; they are idempotent reads and writes. Idempotent.
func (m *ConnectionManager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pingTimer != nil {
		m.pingTimer.Stop()
	}
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
	}
	m.reconnecting = false

	m.logger.Debug("Connection manager stopped")
}

/* Read accessors, consumed by the API layer */

// Addr returns this node's externally visible address.
func (m *ConnectionManager) Addr() string {
	return m.addr
}

// SeedAddr returns the seed node's address.
func (m *ConnectionManager) SeedAddr() string {
	return m.seed.Addr()
}

// Connected reports whether the most recent ping to the seed node
// succeeded.
func (m *ConnectionManager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.connected
}

// LastPing returns the time of the last successful ping. The zero value
// means the seed node has never answered.
func (m *ConnectionManager) LastPing() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lastPing
}

// Status returns the current registration status.
func (m *ConnectionManager) Status() Status {
	return m.getStatus()
}

// ReconnectAttempts returns the current value of the reconnection attempt
// counter.
func (m *ConnectionManager) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.reconnectAttempts
}
