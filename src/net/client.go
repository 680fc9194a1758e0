package net

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Endpoint paths exposed by seed nodes and validators.
const (
	PingPath        = "/ping"
	RegisterPath    = "/register"
	NodesPath       = "/nodes"
	ActiveNodesPath = "/nodes/active"
)

// Client is the shared outbound HTTP client. Its configuration (redirect
// policy, connection pool) is read-only after construction; deadlines are
// set per call through contexts, because different request classes carry
// different timeouts.
type Client struct {
	http   *http.Client
	logger *logrus.Entry
}

// NewClient returns a Client logging through the provided entry.
func NewClient(logger *logrus.Entry) *Client {
	return &Client{
		http: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

// Ping issues a liveness probe against a peer address. It returns nil iff
// the peer answered 200 within the context deadline.
func (c *Client) Ping(ctx context.Context, addr string) error {
	_, status, err := c.Get(ctx, addr, PingPath)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("ping %s: unexpected status %d", addr, status)
	}
	return nil
}

// Get issues a GET against http://addr/path. The error return covers
// transport failures only; HTTP-level status is returned for the caller to
// judge.
func (c *Client) Get(ctx context.Context, addr, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+path, nil)
	if err != nil {
		return nil, 0, err
	}
	return c.do(req)
}

// Post marshals payload as JSON and issues a POST against http://addr/path.
func (c *Client) Post(ctx context.Context, addr, path string, payload interface{}) ([]byte, int, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://"+addr+path, bytes.NewReader(buf))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	c.logger.WithFields(logrus.Fields{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("HTTP call")

	return body, resp.StatusCode, nil
}
