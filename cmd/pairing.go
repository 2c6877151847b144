package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/walletbridge/internal/config"
	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

func pairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pair [uri]",
		Short: "Pair with a dApp using its wc: URI (prompted if omitted)",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var uri string
			if len(args) == 1 {
				uri = args[0]
			} else {
				var err error
				uri, err = promptInput("Pairing URI", "Paste the wc: URI shown by the dApp", "", validatePairURI)
				if err != nil {
					fmt.Println("Cancelled.")
					return
				}
			}
			runPair(strings.TrimSpace(uri))
		},
	}
}

func validatePairURI(uri string) error {
	if !strings.HasPrefix(strings.TrimSpace(uri), "wc:") {
		return errors.New("pairing URI must start with wc:")
	}
	return nil
}

func runPair(uri string) {
	if err := validatePairURI(uri); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	requireGateway()

	params, _ := json.Marshal(map[string]string{"uri": uri})
	resp := mustRPC(protocol.MethodPair, params)

	var result struct {
		State string `json:"state"`
	}
	decodePayload(resp, &result)
	fmt.Printf("Paired (%s). Approve the session proposal when it shows up.\n", result.State)
}

// mustRPC calls the gateway and exits on transport or method errors.
func mustRPC(method string, params json.RawMessage) *protocol.ResponseFrame {
	resp, err := gatewayRPC(method, params)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if !resp.OK {
		msg := "unknown error"
		if resp.Error != nil {
			msg = resp.Error.Message
		}
		fmt.Fprintf(os.Stderr, "Failed: %s\n", msg)
		os.Exit(1)
	}
	return resp
}

// decodePayload re-decodes the generic payload into out.
func decodePayload(resp *protocol.ResponseFrame, out interface{}) {
	raw, err := json.Marshal(resp.Payload)
	if err == nil {
		err = json.Unmarshal(raw, out)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing response: %v\n", err)
		os.Exit(1)
	}
}

// gatewayURL returns the websocket URL of the local gateway.
func gatewayURL(cfg *config.Config, scheme, path string) string {
	host := cfg.Gateway.Host
	if host == "0.0.0.0" || host == "" {
		host = "127.0.0.1"
	}
	u := url.URL{Scheme: scheme, Host: fmt.Sprintf("%s:%d", host, cfg.Gateway.Port), Path: path}
	return u.String()
}

// gatewayRPC connects to the running gateway, authenticates, sends an RPC call, and returns the response.
func gatewayRPC(method string, params json.RawMessage) (*protocol.ResponseFrame, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	wsURL := gatewayURL(cfg, "ws", "/ws")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to gateway at %s: %w", wsURL, err)
	}
	defer conn.Close()

	connectParams, _ := json.Marshal(map[string]interface{}{
		"token":    cfg.Gateway.Token,
		"protocol": protocol.ProtocolVersion,
	})
	connectReq := protocol.RequestFrame{
		Type:   protocol.FrameTypeRequest,
		ID:     "cli-connect",
		Method: protocol.MethodConnect,
		Params: connectParams,
	}
	if err := conn.WriteJSON(connectReq); err != nil {
		return nil, fmt.Errorf("send connect: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	connectResp, err := readResponse(conn, connectReq.ID)
	if err != nil {
		return nil, fmt.Errorf("read connect response: %w", err)
	}
	if !connectResp.OK {
		msg := "unknown error"
		if connectResp.Error != nil {
			msg = connectResp.Error.Message
		}
		return nil, fmt.Errorf("connect failed: %s", msg)
	}

	rpcReq := protocol.RequestFrame{
		Type:   protocol.FrameTypeRequest,
		ID:     "cli-rpc",
		Method: method,
		Params: params,
	}
	if err := conn.WriteJSON(rpcReq); err != nil {
		return nil, fmt.Errorf("send RPC: %w", err)
	}

	// Pairing waits on the relay, allow for its timeout.
	conn.SetReadDeadline(time.Now().Add(cfg.PairTimeout() + 10*time.Second))
	return readResponse(conn, rpcReq.ID)
}

// readResponse skips event frames until the response with id arrives.
func readResponse(conn *websocket.Conn, id string) (*protocol.ResponseFrame, error) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		frameType, _ := protocol.ParseFrameType(msg)
		if frameType != protocol.FrameTypeResponse {
			continue
		}
		var resp protocol.ResponseFrame
		if err := json.Unmarshal(msg, &resp); err != nil {
			return nil, fmt.Errorf("parse response: %w", err)
		}
		if resp.ID == id {
			return &resp, nil
		}
	}
}
