package broadcast

import (
	"encoding/json"
	"time"
)

// Class selects which work-item pipeline a pull-style query addresses.
type Class string

const (
	// ClassTx addresses the regular transaction pipeline.
	ClassTx Class = "tx"

	// ClassCritical addresses the priority process pipeline.
	ClassCritical Class = "critical"
)

// Transaction is a single work item submitted to validators.
type Transaction struct {
	From      string     `json:"from"`
	To        string     `json:"to"`
	Amount    float64    `json:"amount"`
	Signature string     `json:"signature,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Batch is a group of transactions submitted in one dispatch.
type Batch struct {
	Transactions []Transaction `json:"transactions"`
}

// CriticalProcess is a priority work item. Data is an opaque caller-supplied
// blob: the engine passes it through without interpretation.
type CriticalProcess struct {
	ProcessID string          `json:"processId"`
	Data      json.RawMessage `json:"data"`
	Priority  string          `json:"priority"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
}

// StatusInfo is the chain status reported by a validator.
type StatusInfo struct {
	Height            int    `json:"height"`
	LastBlockHash     string `json:"lastBlockHash"`
	Difficulty        int    `json:"difficulty"`
	TotalTransactions int    `json:"totalTransactions"`
}

// MempoolInfo is the pending-work summary reported by a validator.
type MempoolInfo struct {
	PendingTransactions int        `json:"pendingTransactions"`
	TotalSize           int        `json:"totalSize"`
	OldestTransaction   *time.Time `json:"oldestTransaction,omitempty"`
}

// Outcome is the result of one dispatch to one peer. It exists only for the
// duration of a fan-out call and its return to the caller.
type Outcome struct {
	PeerAddress string          `json:"peerAddress"`
	Success     bool            `json:"success"`
	Data        json.RawMessage `json:"data,omitempty"`
	Error       string          `json:"error,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Result aggregates the outcomes of one fan-out, in the order of the input
// peer list. An empty Result with zero counts means there was nothing to
// broadcast to; it is not an error.
type Result struct {
	Outcomes     []Outcome `json:"outcomes"`
	SuccessCount int       `json:"successCount"`
	Total        int       `json:"total"`
}
