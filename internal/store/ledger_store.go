package store

import "context"

// Keys used in the StateStore.
const (
	StateKeyGenesisHash = "genesis_hash"
	StateKeyNetwork     = "network"
)

// LedgerStore records every response sent to a dApp. It is the durable
// guard against answering the same (topic, request id) twice.
type LedgerStore interface {
	// RecordResponse stores rec. It returns false, without error, when a
	// record for the same (topic, request id) already exists.
	RecordResponse(ctx context.Context, rec ResponseRecord) (bool, error)
	HasResponded(ctx context.Context, topic string, requestID int64) (bool, error)
	// ForgetResponse removes the record for (topic, request id), if any.
	ForgetResponse(ctx context.Context, topic string, requestID int64) error
	// ListResponses returns up to limit records, newest first. limit <= 0 means all.
	ListResponses(ctx context.Context, limit int) ([]ResponseRecord, error)
}

// StateStore is a small key/value store for values that must survive restarts.
type StateStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}
