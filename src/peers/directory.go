package peers

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/meshnetworks/relay/src/common"
)

// adhocCacheSize and adhocCacheTTL bound the side-channel cache of ad hoc
// probe results, so the API layer can poll a peer without hammering it.
const (
	adhocCacheSize = 128
	adhocCacheTTL  = 10 * time.Second
)

// Loader fetches the full peer list from the seed node.
type Loader interface {
	FetchPeers() ([]*Peer, error)
}

// Prober issues a liveness probe against a single peer address.
type Prober interface {
	Ping(ctx context.Context, addr string) error
}

// ProbeResult is the outcome of an ad hoc single-peer probe. It is a
// side-channel query: it never touches the Directory's records.
type ProbeResult struct {
	Address    string    `json:"address"`
	Responding bool      `json:"responding"`
	CheckedAt  time.Time `json:"checkedAt"`
}

// Directory owns the locally cached list of validator peers. Records are
// created in bulk by Load/Refresh, mutated in place by the health sweep, and
// replaced wholesale on the next load. The Directory is the only writer.
type Directory struct {
	sync.RWMutex
	sorted    []*Peer
	byAddress map[string]*Peer

	loader Loader
	prober Prober

	probeTimeout time.Duration
	probeLimit   int64
	interval     time.Duration

	sweepTimer *common.ControlTimer
	adhoc      *expirable.LRU[string, ProbeResult]

	logger *logrus.Entry
}

// NewDirectory returns an empty Directory. interval is the health-sweep
// period, probeTimeout the per-probe deadline, and probeLimit the maximum
// number of concurrent probes during a sweep.
func NewDirectory(
	loader Loader,
	prober Prober,
	interval time.Duration,
	probeTimeout time.Duration,
	probeLimit int,
	logger *logrus.Entry,
) *Directory {
	return &Directory{
		byAddress:    make(map[string]*Peer),
		loader:       loader,
		prober:       prober,
		interval:     interval,
		probeTimeout: probeTimeout,
		probeLimit:   int64(probeLimit),
		adhoc:        expirable.NewLRU[string, ProbeResult](adhocCacheSize, nil, adhocCacheTTL),
		logger:       logger.WithField("prefix", "peers"),
	}
}

// Load fetches the full peer list from the seed node, keeps only the
// validators, and replaces the cached collection atomically. A failed load
// leaves the previous collection untouched; callers distinguish failure
// from "zero validators known" by the error, never by list length.
func (d *Directory) Load() ([]*Peer, error) {
	fetched, err := d.loader.FetchPeers()
	if err != nil {
		d.logger.WithError(err).Error("Failed to load peers from seed node")
		return nil, err
	}

	validators := make([]*Peer, 0, len(fetched))
	for _, p := range fetched {
		if p.IsValidator() {
			validators = append(validators, p)
		}
	}

	d.Lock()
	d.sorted = validators
	d.byAddress = make(map[string]*Peer, len(validators))
	for _, p := range validators {
		d.byAddress[p.Address] = p
	}
	d.Unlock()

	d.logger.WithFields(logrus.Fields{
		"validators": len(validators),
		"discarded":  len(fetched) - len(validators),
	}).Info("Loaded peer list")

	return copySlice(validators), nil
}

// Refresh is the externally-triggered equivalent of Load, callable at any
// time when the directory is suspected stale.
func (d *Directory) Refresh() ([]*Peer, error) {
	d.logger.Debug("Refreshing peer list")
	return d.Load()
}

// SetPeers seeds the collection directly, bypassing the seed node. Used to
// bootstrap from a peers.json file before the first successful load.
// Non-validator records are discarded like everywhere else.
func (d *Directory) SetPeers(list []*Peer) {
	validators := make([]*Peer, 0, len(list))
	for _, p := range list {
		if p.IsValidator() {
			validators = append(validators, p)
		}
	}

	d.Lock()
	defer d.Unlock()

	d.sorted = validators
	d.byAddress = make(map[string]*Peer, len(validators))
	for _, p := range validators {
		d.byAddress[p.Address] = p
	}
}

// All returns a detached copy of the full collection, in insertion order.
func (d *Directory) All() []*Peer {
	d.RLock()
	defer d.RUnlock()

	return copySlice(d.sorted)
}

// ActivePeers returns the subset of the collection currently marked
// responding, in insertion order.
func (d *Directory) ActivePeers() []*Peer {
	d.RLock()
	defer d.RUnlock()

	res := make([]*Peer, 0, len(d.sorted))
	for _, p := range d.sorted {
		if p.IsResponding {
			res = append(res, p.Copy())
		}
	}

	return res
}

// Len returns the number of known validators.
func (d *Directory) Len() int {
	d.RLock()
	defer d.RUnlock()

	return len(d.sorted)
}

// StartHealthCheck starts the recurring health sweep. Starting it again
// cancels and replaces any previous timer.
func (d *Directory) StartHealthCheck() {
	d.Lock()
	if d.sweepTimer != nil {
		d.sweepTimer.Stop()
	}
	timer := common.NewControlTimer(d.interval)
	d.sweepTimer = timer
	d.Unlock()

	go timer.Run(func() bool {
		d.HealthSweep()
		return true
	})
}

// StopHealthCheck stops the health sweep. Idempotent.
func (d *Directory) StopHealthCheck() {
	d.Lock()
	defer d.Unlock()

	if d.sweepTimer != nil {
		d.sweepTimer.Stop()
	}
}

// HealthSweep probes every known peer concurrently and applies each result
// to that peer's record independently. A probe failure marks its peer
// not-responding without touching LastSeen and without affecting any other
// record; the sweep itself always completes.
func (d *Directory) HealthSweep() {
	d.RLock()
	targets := make([]*Peer, len(d.sorted))
	copy(targets, d.sorted)
	d.RUnlock()

	if len(targets) == 0 {
		return
	}

	sem := semaphore.NewWeighted(d.probeLimit)

	var wg sync.WaitGroup
	responding := 0
	var respondingMu sync.Mutex

	for _, p := range targets {
		wg.Add(1)
		go func(p *Peer) {
			defer wg.Done()

			if err := sem.Acquire(context.Background(), 1); err != nil {
				return
			}
			defer sem.Release(1)

			ctx, cancel := context.WithTimeout(context.Background(), d.probeTimeout)
			defer cancel()

			err := d.prober.Ping(ctx, p.Address)

			d.Lock()
			if err != nil {
				p.IsResponding = false
			} else {
				p.IsResponding = true
				p.LastSeen = time.Now()
			}
			d.Unlock()

			if err == nil {
				respondingMu.Lock()
				responding++
				respondingMu.Unlock()
			}
		}(p)
	}

	wg.Wait()

	d.logger.WithFields(logrus.Fields{
		"responding": responding,
		"total":      len(targets),
	}).Info("Health check complete")
}

// PingPeer probes an arbitrary address on demand. The result is cached
// briefly and is never written into the peer records, even when the address
// belongs to a known peer.
func (d *Directory) PingPeer(addr string) ProbeResult {
	if cached, ok := d.adhoc.Get(addr); ok {
		return cached
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.probeTimeout)
	defer cancel()

	err := d.prober.Ping(ctx, addr)

	res := ProbeResult{
		Address:    addr,
		Responding: err == nil,
		CheckedAt:  time.Now(),
	}

	d.adhoc.Add(addr, res)

	return res
}

func copySlice(src []*Peer) []*Peer {
	res := make([]*Peer, 0, len(src))
	for _, p := range src {
		res = append(res, p.Copy())
	}
	return res
}
