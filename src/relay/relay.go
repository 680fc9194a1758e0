package relay

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/meshnetworks/relay/src/broadcast"
	"github.com/meshnetworks/relay/src/config"
	"github.com/meshnetworks/relay/src/net"
	"github.com/meshnetworks/relay/src/node"
	"github.com/meshnetworks/relay/src/peers"
	"github.com/meshnetworks/relay/src/service"
)

// Relay wires the components of a relay node together: the seed-node
// connection manager, the peer directory, the broadcast engine, and the
// HTTP API service.
type Relay struct {
	Config    *config.Config
	Node      *node.ConnectionManager
	Directory *peers.Directory
	Engine    *broadcast.Engine
	Service   *service.Service

	client *net.Client
	seed   *net.SeedClient
}

// New returns an uninitialised Relay for the given configuration.
func New(config *config.Config) *Relay {
	return &Relay{
		Config: config,
	}
}

// Init builds the components in dependency order.
func (r *Relay) Init() error {
	logger := r.Config.Logger()

	r.client = net.NewClient(logger)
	r.seed = net.NewSeedClient(r.Config.SeedAddr, r.Config.SeedTimeout, r.client)

	if err := r.initPeers(); err != nil {
		return err
	}

	r.initNode()
	r.initBroadcast()
	r.initService()

	return nil
}

// initPeers builds the directory and seeds it from the optional peers.json
// bootstrap file. A missing file is not an error; anything else in the file
// is.
func (r *Relay) initPeers() error {
	r.Directory = peers.NewDirectory(
		r.seed,
		r.client,
		r.Config.HealthCheckInterval,
		r.Config.SeedTimeout,
		r.Config.ProbeLimit,
		r.Config.Logger(),
	)

	peerStore := peers.NewJSONPeerSet(r.Config.DataDir)

	bootstrap, err := peerStore.Peers()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if len(bootstrap) > 0 {
		r.Config.Logger().WithField("peers", len(bootstrap)).Debug("Bootstrapping directory from peers.json")
		r.Directory.SetPeers(bootstrap)
	}

	return nil
}

func (r *Relay) initNode() {
	r.Node = node.NewConnectionManager(
		r.Config.Addr(),
		r.seed,
		r.Config.PingInterval,
		r.Config.ReconnectInterval,
		r.Config.MaxReconnectAttempts,
		r.Config.Logger(),
	)
}

func (r *Relay) initBroadcast() {
	r.Engine = broadcast.NewEngine(
		r.client,
		r.Config.TxTimeout,
		r.Config.CriticalTimeout,
		r.Config.QueryTimeout,
		r.Config.Logger(),
	)
}

func (r *Relay) initService() {
	r.Service = service.NewService(
		r.Config.ServiceAddr,
		r.Node,
		r.Directory,
		r.Engine,
		r.Config.Logger(),
	)
}

// Run starts the timers and the API service, then blocks until SIGINT or
// SIGTERM. Timers are stopped before returning; in-flight network calls
// drain naturally.
func (r *Relay) Run() {
	go r.Service.Serve()

	r.Node.Start()

	// the directory loads independently of the registration state machine;
	// a failed initial load just leaves the bootstrap set in place
	if _, err := r.Directory.Load(); err != nil {
		r.Config.Logger().WithError(err).Warn("Initial peer load failed")
	}
	r.Directory.StartHealthCheck()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	r.Shutdown()
}

// Shutdown stops all timers. Idempotent.
func (r *Relay) Shutdown() {
	r.Config.Logger().Info("Shutting down")

	r.Node.Shutdown()
	r.Directory.StopHealthCheck()
}
