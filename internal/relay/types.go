package relay

import (
	"encoding/json"

	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

// Metadata describes a peer (dApp or wallet) as advertised on the relay.
type Metadata struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons,omitempty"`
}

// Icon returns the first advertised icon, or "" when none.
func (m Metadata) Icon() string {
	if len(m.Icons) == 0 {
		return ""
	}
	return m.Icons[0]
}

// Peer is one side of a session.
type Peer struct {
	PublicKey string   `json:"publicKey,omitempty"`
	Metadata  Metadata `json:"metadata"`
}

// Namespace lists what a session may do on one chain family.
type Namespace struct {
	Accounts []string `json:"accounts,omitempty"`
	Chains   []string `json:"chains,omitempty"`
	Methods  []string `json:"methods"`
	Events   []string `json:"events"`
}

// Session is an established dApp session, keyed by Topic.
type Session struct {
	Topic      string               `json:"topic"`
	Peer       Peer                 `json:"peer"`
	Namespaces map[string]Namespace `json:"namespaces"`
	Expiry     int64                `json:"expiry"` // unix seconds
}

// FirstChain returns the first chain of the given namespace, or "".
func (s Session) FirstChain(ns string) string {
	n, ok := s.Namespaces[ns]
	if !ok || len(n.Chains) == 0 {
		return ""
	}
	return n.Chains[0]
}

// RelayProtocol names the transport a proposal wants to use.
type RelayProtocol struct {
	Protocol string `json:"protocol"`
}

// ProposalParams is the body of a session proposal.
type ProposalParams struct {
	Proposer           Peer                 `json:"proposer"`
	RequiredNamespaces map[string]Namespace `json:"requiredNamespaces"`
	OptionalNamespaces map[string]Namespace `json:"optionalNamespaces,omitempty"`
	Relays             []RelayProtocol      `json:"relays"`
}

// Proposal is a dApp asking to open a session.
type Proposal struct {
	ID     int64          `json:"id"`
	Params ProposalParams `json:"params"`
}

// RelayProtocolName returns the first relay protocol requested, defaulting to "irn".
func (p Proposal) RelayProtocolName() string {
	if len(p.Params.Relays) == 0 || p.Params.Relays[0].Protocol == "" {
		return "irn"
	}
	return p.Params.Relays[0].Protocol
}

// RequestParams is the body of a session request.
type RequestParams struct {
	Request protocol.RPCRequest `json:"request"`
	ChainID string              `json:"chainId,omitempty"`
}

// SessionRequest is a JSON-RPC call from a dApp over an established session.
type SessionRequest struct {
	ID     int64         `json:"id"`
	Topic  string        `json:"topic"`
	Params RequestParams `json:"params"`
}

// SessionDelete is emitted when the dApp or the relay drops a session.
type SessionDelete struct {
	ID    int64  `json:"id"`
	Topic string `json:"topic"`
}

// Reason accompanies reject and disconnect calls.
type Reason struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ApproveParams is passed to ApproveSession.
type ApproveParams struct {
	ID            int64                `json:"id"`
	RelayProtocol string               `json:"relayProtocol"`
	Namespaces    map[string]Namespace `json:"namespaces"`
}

// DecodeProposal parses a session_proposal payload.
func DecodeProposal(data json.RawMessage) (Proposal, error) {
	var p Proposal
	err := json.Unmarshal(data, &p)
	return p, err
}

// DecodeRequest parses a session_request payload.
func DecodeRequest(data json.RawMessage) (SessionRequest, error) {
	var r SessionRequest
	err := json.Unmarshal(data, &r)
	return r, err
}

// DecodeDelete parses a session_delete or disconnect payload.
func DecodeDelete(data json.RawMessage) (SessionDelete, error) {
	var d SessionDelete
	err := json.Unmarshal(data, &d)
	return d, err
}
