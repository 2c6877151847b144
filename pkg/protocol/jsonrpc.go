package protocol

import "encoding/json"

// JSONRPCVersion is the only version the relay accepts.
const JSONRPCVersion = "2.0"

// RPCError is the error member of a JSON-RPC response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RPCResponse is the envelope sent back to a dApp for a session request.
// Exactly one of Result and Error is set.
type RPCResponse struct {
	ID      int64       `json:"id"`
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// NewRPCResult builds a success envelope.
func NewRPCResult(id int64, result interface{}) RPCResponse {
	return RPCResponse{ID: id, JSONRPC: JSONRPCVersion, Result: result}
}

// NewRPCError builds an error envelope.
func NewRPCError(id int64, code int, message string) RPCResponse {
	return RPCResponse{
		ID:      id,
		JSONRPC: JSONRPCVersion,
		Error:   &RPCError{Code: code, Message: message},
	}
}

// IsError reports whether the envelope carries an error.
func (r RPCResponse) IsError() bool { return r.Error != nil }

// RPCRequest is a dApp JSON-RPC call carried inside a session request.
type RPCRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}
