package net

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/meshnetworks/relay/src/peers"
)

// SeedClient talks to the one well-known seed node. All calls share the
// same bounded timeout since the seed node only serves directory lookups.
type SeedClient struct {
	addr    string
	timeout time.Duration
	client  *Client
}

// NewSeedClient returns a SeedClient for the seed node at addr.
func NewSeedClient(addr string, timeout time.Duration, client *Client) *SeedClient {
	return &SeedClient{
		addr:    addr,
		timeout: timeout,
		client:  client,
	}
}

// Addr returns the seed node's address.
func (s *SeedClient) Addr() string {
	return s.addr
}

// Ping issues a liveness check against the seed node.
func (s *SeedClient) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	return s.client.Ping(ctx, s.addr)
}

// Register submits this node's address to the seed node. 201 means newly
// registered, 200 means the seed node already knew us; both are success.
func (s *SeedClient) Register(nodeAddr string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, status, err := s.client.Post(ctx, s.addr, RegisterPath, nodeAddr)
	if err != nil {
		return err
	}

	if status != http.StatusCreated && status != http.StatusOK {
		return fmt.Errorf("register %s: unexpected status %d", nodeAddr, status)
	}

	return nil
}

// FetchPeers retrieves the full peer list from the seed node.
func (s *SeedClient) FetchPeers() ([]*peers.Peer, error) {
	return s.fetch(NodesPath)
}

// FetchActivePeers retrieves the peer list pre-filtered by the seed node to
// currently-responding peers.
func (s *SeedClient) FetchActivePeers() ([]*peers.Peer, error) {
	return s.fetch(ActiveNodesPath)
}

func (s *SeedClient) fetch(path string) ([]*peers.Peer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	body, status, err := s.client.Get(ctx, s.addr, path)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", path, status)
	}

	var list []*peers.Peer
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, err
	}

	return list, nil
}
