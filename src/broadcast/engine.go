package broadcast

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/meshnetworks/relay/src/peers"
)

// Validator endpoint paths.
const (
	TxPath       = "/tx"
	BatchPath    = "/tx/batch"
	CriticalPath = "/critical"
	StatusPath   = "/status/"
	MempoolPath  = "/mempool/"
)

// Dispatcher issues a single HTTP request against one peer. The error
// return covers transport failures; the status code is judged by the
// engine.
type Dispatcher interface {
	Get(ctx context.Context, addr, path string) ([]byte, int, error)
	Post(ctx context.Context, addr, path string, payload interface{}) ([]byte, int, error)
}

// Engine fans a request out to every target peer concurrently and settles
// on all outcomes, successful or not. It keeps no state between calls: it
// receives a peer list and returns outcomes.
//
// Four request shapes ride on the same fan-out: single transactions,
// batches, critical processes, and pull-style status/mempool queries. The
// only variation between them is endpoint path, payload, and timeout.
type Engine struct {
	client Dispatcher

	txTimeout       time.Duration
	criticalTimeout time.Duration
	queryTimeout    time.Duration

	logger *logrus.Entry
}

// NewEngine returns an Engine dispatching through client.
func NewEngine(
	client Dispatcher,
	txTimeout time.Duration,
	criticalTimeout time.Duration,
	queryTimeout time.Duration,
	logger *logrus.Entry,
) *Engine {
	return &Engine{
		client:          client,
		txTimeout:       txTimeout,
		criticalTimeout: criticalTimeout,
		queryTimeout:    queryTimeout,
		logger:          logger.WithField("prefix", "broadcast"),
	}
}

// SendTransaction broadcasts a single transaction to the target peers.
func (e *Engine) SendTransaction(targets []*peers.Peer, tx Transaction) *Result {
	return e.fanOut(targets, request{
		method:  http.MethodPost,
		path:    TxPath,
		payload: tx,
		timeout: e.txTimeout,
	})
}

// SendBatch broadcasts a batch of transactions to the target peers.
func (e *Engine) SendBatch(targets []*peers.Peer, batch Batch) *Result {
	return e.fanOut(targets, request{
		method:  http.MethodPost,
		path:    BatchPath,
		payload: batch,
		timeout: e.txTimeout,
	})
}

// SendCritical broadcasts a priority process to the target peers. A missing
// ProcessID is filled in before dispatch so every validator sees the same
// id.
func (e *Engine) SendCritical(targets []*peers.Peer, cp CriticalProcess) *Result {
	if cp.ProcessID == "" {
		cp.ProcessID = uuid.New().String()
	}

	return e.fanOut(targets, request{
		method:  http.MethodPost,
		path:    CriticalPath,
		payload: cp,
		timeout: e.criticalTimeout,
	})
}

// QueryStatus pulls the chain status of the given class from the target
// peers.
func (e *Engine) QueryStatus(targets []*peers.Peer, class Class) *Result {
	return e.fanOut(targets, request{
		method:  http.MethodGet,
		path:    StatusPath + string(class),
		timeout: e.queryTimeout,
	})
}

// QueryMempool pulls the pending-work summary of the given class from the
// target peers.
func (e *Engine) QueryMempool(targets []*peers.Peer, class Class) *Result {
	return e.fanOut(targets, request{
		method:  http.MethodGet,
		path:    MempoolPath + string(class),
		timeout: e.queryTimeout,
	})
}

type request struct {
	method  string
	path    string
	payload interface{}
	timeout time.Duration
}

// fanOut dispatches one request per peer concurrently, waits for every
// dispatch to finish, and returns one outcome per peer in input order. An
// empty target set returns an empty result immediately.
func (e *Engine) fanOut(targets []*peers.Peer, req request) *Result {
	if len(targets) == 0 {
		e.logger.WithField("path", req.path).Debug("No active peers, nothing to broadcast to")
		return &Result{Outcomes: []Outcome{}}
	}

	broadcastID := uuid.New().String()

	outcomes := make([]Outcome, len(targets))

	var wg sync.WaitGroup
	for i, p := range targets {
		wg.Add(1)
		go func(i int, addr string) {
			defer wg.Done()
			outcomes[i] = e.dispatch(addr, req)
		}(i, p.Address)
	}
	wg.Wait()

	success := 0
	for _, o := range outcomes {
		if o.Success {
			success++
		}
	}

	e.logger.WithFields(logrus.Fields{
		"broadcast_id": broadcastID,
		"path":         req.path,
		"success":      success,
		"total":        len(targets),
	}).Info("Broadcast complete")

	return &Result{
		Outcomes:     outcomes,
		SuccessCount: success,
		Total:        len(targets),
	}
}

// dispatch resolves one peer's call to exactly one Outcome, whatever
// happens on the wire.
func (e *Engine) dispatch(addr string, req request) Outcome {
	ctx, cancel := context.WithTimeout(context.Background(), req.timeout)
	defer cancel()

	var (
		body   []byte
		status int
		err    error
	)

	if req.method == http.MethodGet {
		body, status, err = e.client.Get(ctx, addr, req.path)
	} else {
		body, status, err = e.client.Post(ctx, addr, req.path, req.payload)
	}

	out := Outcome{
		PeerAddress: addr,
		Timestamp:   time.Now(),
	}

	if err != nil {
		out.Error = err.Error()
		return out
	}

	if status != http.StatusOK && status != http.StatusCreated {
		out.Error = fmt.Sprintf("unexpected status %d", status)
		return out
	}

	out.Success = true
	out.Data = body

	return out
}
