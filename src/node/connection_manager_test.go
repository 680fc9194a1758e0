package node

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/meshnetworks/relay/src/common"
	"github.com/meshnetworks/relay/src/net"
)

// testSeed is a scriptable stand-in for the seed node.
type testSeed struct {
	sync.Mutex
	pingOK         bool
	registerStatus int
	pings          int
	registrations  int

	server *httptest.Server
}

func newTestSeed(pingOK bool, registerStatus int) *testSeed {
	s := &testSeed{
		pingOK:         pingOK,
		registerStatus: registerStatus,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		s.pings++
		ok := s.pingOK
		s.Unlock()

		if !ok {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/register", func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		s.registrations++
		status := s.registerStatus
		s.Unlock()

		w.WriteHeader(status)
	})

	s.server = httptest.NewServer(mux)

	return s
}

func (s *testSeed) addr() string {
	return strings.TrimPrefix(s.server.URL, "http://")
}

func (s *testSeed) set(pingOK bool, registerStatus int) {
	s.Lock()
	defer s.Unlock()
	s.pingOK = pingOK
	s.registerStatus = registerStatus
}

func (s *testSeed) pingCount() int {
	s.Lock()
	defer s.Unlock()
	return s.pings
}

func (s *testSeed) registrationCount() int {
	s.Lock()
	defer s.Unlock()
	return s.registrations
}

func newTestManager(t *testing.T, seed *testSeed, reconnectInterval time.Duration, maxAttempts int) *ConnectionManager {
	logger := common.NewTestEntry(t)
	client := net.NewClient(logger)
	seedClient := net.NewSeedClient(seed.addr(), time.Second, client)

	return NewConnectionManager(
		"127.0.0.1:3000",
		seedClient,
		time.Hour, // ping timer driven manually in tests
		reconnectInterval,
		maxAttempts,
		logger,
	)
}

func waitFor(t *testing.T, timeout time.Duration, msg string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestConnectRegisters(t *testing.T) {
	seed := newTestSeed(true, http.StatusCreated)
	defer seed.server.Close()

	m := newTestManager(t, seed, time.Hour, 3)
	defer m.Shutdown()

	if !m.Connect() {
		t.Fatal("Connect() should succeed")
	}

	if s := m.Status(); s != Registered {
		t.Fatalf("status should be Registered, not %s", s)
	}
	if !m.Connected() {
		t.Fatal("node should be connected")
	}
	if m.LastPing().IsZero() {
		t.Fatal("LastPing should be set")
	}
}

func TestConnectAlreadyRegistered(t *testing.T) {
	// 200 means the seed node already knows us. That is still success.
	seed := newTestSeed(true, http.StatusOK)
	defer seed.server.Close()

	m := newTestManager(t, seed, time.Hour, 3)
	defer m.Shutdown()

	if !m.Connect() {
		t.Fatal("Connect() should succeed")
	}
	if s := m.Status(); s != Registered {
		t.Fatalf("status should be Registered, not %s", s)
	}
}

func TestConnectRegistrationRefused(t *testing.T) {
	seed := newTestSeed(true, http.StatusConflict)
	defer seed.server.Close()

	m := newTestManager(t, seed, 10*time.Millisecond, 3)
	defer m.Shutdown()

	if m.Connect() {
		t.Fatal("Connect() should fail")
	}

	if s := m.Status(); s != RegistrationFailed {
		t.Fatalf("status should be RegistrationFailed, not %s", s)
	}
	if m.Connected() {
		t.Fatal("node should not be connected")
	}

	// the reconnection loop keeps retrying registration
	waitFor(t, time.Second, "reconnection loop never retried", func() bool {
		return seed.registrationCount() >= 2
	})
}

func TestConnectSeedUnreachable(t *testing.T) {
	seed := newTestSeed(true, http.StatusCreated)
	seed.server.Close()

	m := newTestManager(t, seed, time.Hour, 3)
	defer m.Shutdown()

	if m.Connect() {
		t.Fatal("Connect() should fail")
	}

	// registration was never attempted
	if s := m.Status(); s != NotRegistered {
		t.Fatalf("status should be NotRegistered, not %s", s)
	}
	if c := seed.registrationCount(); c != 0 {
		t.Fatalf("no registration should have been attempted, got %d", c)
	}
}

func TestPingFailureTriggersReconnect(t *testing.T) {
	seed := newTestSeed(true, http.StatusCreated)
	defer seed.server.Close()

	m := newTestManager(t, seed, 10*time.Millisecond, 10)
	defer m.Shutdown()

	if !m.Connect() {
		t.Fatal("Connect() should succeed")
	}

	seed.set(false, http.StatusCreated)

	if m.Ping() {
		t.Fatal("Ping() should fail")
	}
	if m.Connected() {
		t.Fatal("node should not be connected")
	}

	// recovery: the reconnection loop re-registers once the seed node is
	// back, stops itself, and resets the attempt counter
	seed.set(true, http.StatusCreated)

	waitFor(t, time.Second, "node never re-registered", func() bool {
		return m.Connected() && m.Status() == Registered
	})

	if a := m.ReconnectAttempts(); a != 0 {
		t.Fatalf("reconnectAttempts should be reset to 0, not %d", a)
	}
}

func TestReconnectGivesUpAfterMaxAttempts(t *testing.T) {
	maxAttempts := 3

	seed := newTestSeed(true, http.StatusCreated)
	defer seed.server.Close()

	m := newTestManager(t, seed, 10*time.Millisecond, maxAttempts)
	defer m.Shutdown()

	if !m.Connect() {
		t.Fatal("Connect() should succeed")
	}

	seed.set(false, http.StatusCreated)
	m.Ping() // transition to not-connected arms the loop

	// each reconnection attempt pings the seed node once
	waitFor(t, time.Second, "reconnection attempts never exhausted", func() bool {
		return seed.pingCount() >= 2+maxAttempts
	})

	// after giving up, no further attempts occur
	settled := seed.pingCount()
	time.Sleep(100 * time.Millisecond)
	if c := seed.pingCount(); c != settled {
		t.Fatalf("reconnection loop kept running after giving up: %d -> %d", settled, c)
	}

	// a new failure re-arms the loop
	seed.set(true, http.StatusCreated)
	m.Ping()
	seed.set(false, http.StatusCreated)
	m.Ping()

	waitFor(t, time.Second, "new failure did not re-arm the loop", func() bool {
		return seed.pingCount() > settled+2
	})
}

func TestPingTimer(t *testing.T) {
	seed := newTestSeed(true, http.StatusCreated)
	defer seed.server.Close()

	logger := common.NewTestEntry(t)
	client := net.NewClient(logger)
	seedClient := net.NewSeedClient(seed.addr(), time.Second, client)

	m := NewConnectionManager("127.0.0.1:3000", seedClient, 10*time.Millisecond, time.Hour, 3, logger)
	defer m.Shutdown()

	m.StartPingTimer()

	waitFor(t, time.Second, "ping timer never fired", func() bool {
		return seed.pingCount() >= 3
	})

	if !m.Connected() {
		t.Fatal("node should be connected after successful pings")
	}

	m.Shutdown()

	settled := seed.pingCount()
	time.Sleep(50 * time.Millisecond)
	if c := seed.pingCount(); c != settled {
		t.Fatalf("ping timer kept running after Shutdown: %d -> %d", settled, c)
	}
}

func TestShutdownIdempotent(t *testing.T) {
	seed := newTestSeed(true, http.StatusCreated)
	defer seed.server.Close()

	m := newTestManager(t, seed, 10*time.Millisecond, 3)

	m.StartPingTimer()
	m.Shutdown()
	m.Shutdown()
}
