// Package relay describes the session transport walletbridge rides on.
//
// The transport itself (pairing, session encryption, relay networking) is
// owned by an external library. This package only defines the interface the
// coordinator consumes, plus two adapters: an in-process Memory relay and a
// websocket sidecar client (relay/sidecar).
package relay

import (
	"context"
	"encoding/json"

	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

// Listener receives the raw payload of one relay event.
type Listener func(data json.RawMessage)

// Emitter is the push side of the transport.
// Subscribe returns a function that removes exactly the registered listener.
type Emitter interface {
	Subscribe(event string, fn Listener) (unsubscribe func(), err error)
}

// Client is the full session transport used by the coordinator.
type Client interface {
	Emitter

	ApproveSession(ctx context.Context, params ApproveParams) (Session, error)
	RejectSession(ctx context.Context, id int64, reason Reason) error
	RespondSessionRequest(ctx context.Context, topic string, resp protocol.RPCResponse) error
	GetActiveSessions(ctx context.Context) (map[string]Session, error)
	ExtendSession(ctx context.Context, topic string) error
	DisconnectSession(ctx context.Context, topic string, reason Reason) error
	Pair(ctx context.Context, uri string) error
	PendingSessionRequests(ctx context.Context) ([]SessionRequest, error)
	Close() error
}
