package service

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meshnetworks/relay/src/broadcast"
	"github.com/meshnetworks/relay/src/node"
	"github.com/meshnetworks/relay/src/peers"
)

// Service is the HTTP API over the relay node: connection status, the peer
// directory, and the broadcast operations.
type Service struct {
	bindAddress string
	node        *node.ConnectionManager
	directory   *peers.Directory
	engine      *broadcast.Engine
	mux         *http.ServeMux
	logger      *logrus.Entry
}

// NodeStatus is the JSON shape served by GET /status.
type NodeStatus struct {
	Address            string     `json:"address"`
	SeedAddress        string     `json:"seedAddress"`
	Connected          bool       `json:"connected"`
	RegistrationStatus string     `json:"registrationStatus"`
	LastPing           *time.Time `json:"lastPing,omitempty"`
	ReconnectAttempts  int        `json:"reconnectAttempts"`
}

// NewService returns a Service with all handlers registered on its own mux.
func NewService(
	bindAddress string,
	cm *node.ConnectionManager,
	directory *peers.Directory,
	engine *broadcast.Engine,
	logger *logrus.Entry,
) *Service {
	service := &Service{
		bindAddress: bindAddress,
		node:        cm,
		directory:   directory,
		engine:      engine,
		mux:         http.NewServeMux(),
		logger:      logger.WithField("prefix", "service"),
	}

	service.registerHandlers()

	return service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering API handlers")
	s.mux.HandleFunc("/status", s.makeHandler(s.GetStatus))
	s.mux.HandleFunc("/peers", s.makeHandler(s.GetPeers))
	s.mux.HandleFunc("/peers/active", s.makeHandler(s.GetActivePeers))
	s.mux.HandleFunc("/peers/refresh", s.makeHandler(s.RefreshPeers))
	s.mux.HandleFunc("/peers/ping", s.makeHandler(s.PingPeer))
	s.mux.HandleFunc("/tx", s.makeHandler(s.BroadcastTx))
	s.mux.HandleFunc("/tx/batch", s.makeHandler(s.BroadcastBatch))
	s.mux.HandleFunc("/critical", s.makeHandler(s.BroadcastCritical))
	s.mux.HandleFunc("/status/tx", s.makeQueryHandler(s.engine.QueryStatus, broadcast.ClassTx))
	s.mux.HandleFunc("/status/critical", s.makeQueryHandler(s.engine.QueryStatus, broadcast.ClassCritical))
	s.mux.HandleFunc("/mempool/tx", s.makeQueryHandler(s.engine.QueryMempool, broadcast.ClassTx))
	s.mux.HandleFunc("/mempool/critical", s.makeQueryHandler(s.engine.QueryMempool, broadcast.ClassCritical))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

func (s *Service) makeQueryHandler(
	query func([]*peers.Peer, broadcast.Class) *broadcast.Result,
	class broadcast.Class,
) http.HandlerFunc {
	return s.makeHandler(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, query(s.directory.ActivePeers(), class))
	})
}

// Mux exposes the handler mux, so the service can be embedded in another
// server or exercised in tests.
func (s *Service) Mux() *http.ServeMux {
	return s.mux
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving relay API")

	err := http.ListenAndServe(s.bindAddress, s.mux)
	if err != nil {
		s.logger.Error(err)
	}
}

// GetStatus serves the connection state accessors in one document.
func (s *Service) GetStatus(w http.ResponseWriter, r *http.Request) {
	status := NodeStatus{
		Address:            s.node.Addr(),
		SeedAddress:        s.node.SeedAddr(),
		Connected:          s.node.Connected(),
		RegistrationStatus: s.node.Status().String(),
		ReconnectAttempts:  s.node.ReconnectAttempts(),
	}

	if last := s.node.LastPing(); !last.IsZero() {
		status.LastPing = &last
	}

	writeJSON(w, status)
}

// GetPeers serves the full peer collection.
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.directory.All())
}

// GetActivePeers serves the currently-responding subset.
func (s *Service) GetActivePeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.directory.ActivePeers())
}

// RefreshPeers triggers an explicit reload of the peer list.
func (s *Service) RefreshPeers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	refreshed, err := s.directory.Refresh()
	if err != nil {
		s.logger.WithError(err).Error("Refreshing peer list")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, refreshed)
}

// PingPeer probes an arbitrary peer address passed as ?addr=. The probe is
// a side channel: it does not touch the directory.
func (s *Service) PingPeer(w http.ResponseWriter, r *http.Request) {
	addr := r.URL.Query().Get("addr")
	if addr == "" {
		http.Error(w, "missing addr parameter", http.StatusBadRequest)
		return
	}

	writeJSON(w, s.directory.PingPeer(addr))
}

// BroadcastTx fans a single transaction out to the active peers.
func (s *Service) BroadcastTx(w http.ResponseWriter, r *http.Request) {
	var tx broadcast.Transaction
	if !decodeBody(w, r, &tx) {
		return
	}

	writeJSON(w, s.engine.SendTransaction(s.directory.ActivePeers(), tx))
}

// BroadcastBatch fans a batch of transactions out to the active peers.
func (s *Service) BroadcastBatch(w http.ResponseWriter, r *http.Request) {
	var batch broadcast.Batch
	if !decodeBody(w, r, &batch) {
		return
	}

	writeJSON(w, s.engine.SendBatch(s.directory.ActivePeers(), batch))
}

// BroadcastCritical fans a priority process out to the active peers.
func (s *Service) BroadcastCritical(w http.ResponseWriter, r *http.Request) {
	var cp broadcast.CriticalProcess
	if !decodeBody(w, r, &cp) {
		return
	}

	writeJSON(w, s.engine.SendCritical(s.directory.ActivePeers(), cp))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(v)
}
