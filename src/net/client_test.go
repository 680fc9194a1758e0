package net

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/meshnetworks/relay/src/common"
	"github.com/meshnetworks/relay/src/peers"
)

func testAddr(server *httptest.Server) string {
	return strings.TrimPrefix(server.URL, "http://")
}

func TestClientPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != PingPath {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewClient(common.NewTestEntry(t))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := c.Ping(ctx, testAddr(server)); err != nil {
		t.Fatalf("err: %v", err)
	}
}

func TestClientPingNonOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(common.NewTestEntry(t))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := c.Ping(ctx, testAddr(server)); err == nil {
		t.Fatal("non-200 ping should be an error")
	}
}

func TestSeedClientRegister(t *testing.T) {
	tests := []struct {
		status  int
		success bool
	}{
		{http.StatusCreated, true},
		{http.StatusOK, true},
		{http.StatusConflict, false},
		{http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		var gotBody string

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != RegisterPath {
				http.NotFound(w, r)
				return
			}
			body, _ := io.ReadAll(r.Body)
			gotBody = string(body)
			w.WriteHeader(tt.status)
		}))

		seed := NewSeedClient(testAddr(server), time.Second, NewClient(common.NewTestEntry(t)))

		err := seed.Register("127.0.0.1:3000")
		if tt.success && err != nil {
			t.Fatalf("status %d: err: %v", tt.status, err)
		}
		if !tt.success && err == nil {
			t.Fatalf("status %d should be an error", tt.status)
		}

		// the body is this node's address as a JSON string
		if gotBody != `"127.0.0.1:3000"` {
			t.Fatalf("unexpected register body: %s", gotBody)
		}

		server.Close()
	}
}

func TestSeedClientFetchPeers(t *testing.T) {
	list := []*peers.Peer{
		{Address: "127.0.0.1:5001", NodeType: peers.NodeTypeValidator, IsResponding: true},
		{Address: "127.0.0.1:5002", NodeType: "observer"},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != NodesPath {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(list)
	}))
	defer server.Close()

	seed := NewSeedClient(testAddr(server), time.Second, NewClient(common.NewTestEntry(t)))

	fetched, err := seed.FetchPeers()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if len(fetched) != 2 {
		t.Fatalf("2 peers expected, got %d", len(fetched))
	}
	if fetched[0].Address != list[0].Address || fetched[1].NodeType != "observer" {
		t.Fatalf("peer list mangled in transit: %v", fetched)
	}
}

func TestSeedClientFetchActivePeers(t *testing.T) {
	list := []*peers.Peer{
		{Address: "127.0.0.1:5001", NodeType: peers.NodeTypeValidator, IsResponding: true},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ActiveNodesPath {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(list)
	}))
	defer server.Close()

	seed := NewSeedClient(testAddr(server), time.Second, NewClient(common.NewTestEntry(t)))

	fetched, err := seed.FetchActivePeers()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(fetched) != 1 || !fetched[0].IsResponding {
		t.Fatalf("active peer list mangled in transit: %v", fetched)
	}
}

func TestSeedClientFetchPeersUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	seed := NewSeedClient(testAddr(server), 100*time.Millisecond, NewClient(common.NewTestEntry(t)))

	if _, err := seed.FetchPeers(); err == nil {
		t.Fatal("unreachable seed node should be an error")
	}
}
