package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/nextlevelbuilder/walletbridge/internal/relay"
	"github.com/nextlevelbuilder/walletbridge/internal/store"
	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

// RefreshSessions syncs the session store with the relay. With extend set,
// every session's expiry is renewed; a session that cannot be extended is
// disconnected on its own without affecting the others.
func (c *Coordinator) RefreshSessions(ctx context.Context, extend bool) error {
	active, err := c.relay.GetActiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("get active sessions: %w", err)
	}
	c.sessions.Replace(active)
	if !extend || len(active) == 0 {
		return nil
	}

	for _, topic := range sortedTopics(active) {
		if err := c.relay.ExtendSession(ctx, topic); err != nil {
			slog.Error("error extending session, attempting to remove", "topic", topic, "error", err)
			reason := relay.Reason{Code: protocol.CodeUserDisconnected, Message: protocol.MsgUnableToExtendSession}
			if derr := c.relay.DisconnectSession(ctx, topic, reason); derr != nil {
				slog.Error("unable to remove session after extend failed", "topic", topic, "error", derr)
			}
			continue
		}
		slog.Debug("session extended", "topic", topic)
	}

	active, err = c.relay.GetActiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("get active sessions after extend: %w", err)
	}
	c.sessions.Replace(active)
	return nil
}

// CancelSession disconnects topic if the relay still knows it, then refreshes.
func (c *Coordinator) CancelSession(ctx context.Context, topic string) error {
	c.prompts.CancelTopic(topic)
	if err := c.disconnectIfActive(ctx, topic, protocol.MsgUserCancelledSession); err != nil {
		return err
	}
	return c.RefreshSessions(ctx, false)
}

func (c *Coordinator) disconnectIfActive(ctx context.Context, topic, message string) error {
	active, err := c.relay.GetActiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("get active sessions: %w", err)
	}
	if _, ok := active[topic]; !ok {
		return nil
	}
	err = c.relay.DisconnectSession(ctx, topic, relay.Reason{Code: protocol.CodeUserDisconnected, Message: message})
	if err != nil {
		return fmt.Errorf("disconnect session %s: %w", topic, err)
	}
	slog.Info("session disconnected", "topic", topic, "reason", message)
	return nil
}

// ClearSessions disconnects every active session, then refreshes.
// Individual disconnect failures are logged and do not stop the sweep.
func (c *Coordinator) ClearSessions(ctx context.Context) error {
	active, err := c.relay.GetActiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("get active sessions: %w", err)
	}
	for _, topic := range sortedTopics(active) {
		c.prompts.CancelTopic(topic)
		if err := c.relay.DisconnectSession(ctx, topic, relay.Reason{Code: protocol.CodeUserDisconnected}); err != nil {
			slog.Error("failed to disconnect session", "topic", topic, "error", err)
		}
	}
	slog.Info("sessions cleared", "count", len(active))
	return c.RefreshSessions(ctx, false)
}

// NetworkChanged compares the network identity (genesis hash, or the network
// name when no hash is configured) with the persisted one. On a change every
// session is cleared. The new identity is persisted either way.
func (c *Coordinator) NetworkChanged(ctx context.Context, network, genesisHash string) error {
	if network != "" {
		c.setNetwork(network)
	}
	if c.state == nil {
		return nil
	}
	identity := genesisHash
	if identity == "" {
		identity = "network:" + c.Network()
	}

	prev, ok, err := c.state.Get(ctx, store.StateKeyGenesisHash)
	if err != nil {
		return fmt.Errorf("read genesis hash: %w", err)
	}
	if ok && prev == identity {
		return nil
	}
	if ok {
		slog.Info("network changed, clearing sessions", "network", c.Network())
		if err := c.ClearSessions(ctx); err != nil {
			return fmt.Errorf("clear sessions: %w", err)
		}
	}
	if err := c.state.Set(ctx, store.StateKeyGenesisHash, identity); err != nil {
		return fmt.Errorf("persist genesis hash: %w", err)
	}
	if err := c.state.Set(ctx, store.StateKeyNetwork, c.Network()); err != nil {
		return fmt.Errorf("persist network: %w", err)
	}
	return nil
}

// CheckPending re-fetches requests the relay still holds (e.g. after a
// restart) and queues the ones not seen yet. It needs the worker running.
func (c *Coordinator) CheckPending(ctx context.Context) {
	reqs, err := c.relay.PendingSessionRequests(ctx)
	if err != nil {
		slog.Warn("get pending session requests failed", "error", err)
		return
	}
	if len(reqs) > 0 {
		slog.Info("pending session requests found", "count", len(reqs))
	}
	for _, r := range reqs {
		c.enqueueRequest(ctx, r)
	}
}

func sortedTopics(active map[string]relay.Session) []string {
	topics := make([]string, 0, len(active))
	for t := range active {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}
