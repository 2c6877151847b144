package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/walletbridge/internal/bus"
	"github.com/nextlevelbuilder/walletbridge/internal/prompt"
	"github.com/nextlevelbuilder/walletbridge/internal/relay"
	"github.com/nextlevelbuilder/walletbridge/internal/rpc"
	"github.com/nextlevelbuilder/walletbridge/internal/sessions"
	"github.com/nextlevelbuilder/walletbridge/internal/store"
	"github.com/nextlevelbuilder/walletbridge/internal/tracing"
	"github.com/nextlevelbuilder/walletbridge/internal/ui"
	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

const outcomeDropped = "dropped"

// ProcessRequest runs one dApp request through the handler and answers it
// over the relay exactly once. Requests for unknown sessions, or arriving
// while the wallet is not ready, are dropped without an answer.
func (c *Coordinator) ProcessRequest(ctx context.Context, req relay.SessionRequest) {
	span := tracing.RequestSpan{
		Topic:     req.Topic,
		RequestID: req.ID,
		Method:    req.Params.Request.Method,
		Start:     time.Now(),
	}
	log := slog.With("topic", req.Topic, "request_id", req.ID, "method", req.Params.Request.Method)

	sess, ok := c.lookupSession(ctx, req.Topic)
	if !ok {
		log.Error("could not identify the request session, ignoring request")
		c.emit(span, outcomeDropped, 0, "unknown session")
		return
	}
	if !c.wallet.IsReady(ctx) {
		log.Error("got a session request but wallet is not ready, ignoring")
		// Let a later CheckPending pick it up again.
		c.dedupe.Forget(bus.RequestKey(req.Topic, req.ID))
		c.emit(span, outcomeDropped, 0, "wallet not ready")
		return
	}
	if c.ledger != nil {
		done, err := c.ledger.HasResponded(ctx, req.Topic, req.ID)
		if err != nil {
			log.Warn("ledger lookup failed", "error", err)
		} else if done {
			log.Warn("request already answered, ignoring")
			c.emit(span, outcomeDropped, 0, "already answered")
			return
		}
	}

	meta := requestMetadata(sess)
	for attempt := 1; ; attempt++ {
		if attempt > 1 && !c.sessions.Has(req.Topic) {
			log.Info("session destroyed before retry, discarding request")
			c.emit(span, outcomeDropped, attempt-1, "session destroyed")
			return
		}
		resp, err := c.handler.Handle(ctx, req.Params.Request, c.wallet, meta, c.prompts.Prompt)
		if err == nil {
			if !c.respond(ctx, req, protocol.NewRPCResult(req.ID, resp), store.OutcomeSuccess, attempt) {
				c.emit(span, outcomeDropped, attempt, "response not sent")
				return
			}
			c.markSuccess(resp)
			log.Info("session request handled", "response_type", resp.Type, "attempts", attempt)
			c.emit(span, string(store.OutcomeSuccess), attempt, "")
			return
		}

		flow, retryable := failedFlow(err)
		if retryable {
			c.ui.Dispatch(ui.SetStatus{Flow: flow, Status: ui.StatusFailure})
			log.Warn("wallet operation failed", "flow", flow, "attempt", attempt, "error", err)
			if !c.sessions.Has(req.Topic) {
				log.Info("session destroyed while processing, not offering retry")
				c.emit(span, outcomeDropped, attempt, "session destroyed")
				return
			}
			if c.governor.Ask(ctx, meta, flow, attempt) {
				continue
			}
		} else {
			log.Info("session request rejected", "error", err)
		}

		if ctx.Err() != nil {
			log.Info("shutting down, request left unanswered")
			c.emit(span, outcomeDropped, attempt, "shutdown")
			return
		}
		if !c.respond(ctx, req, protocol.NewRPCError(req.ID, protocol.CodeUserRejectedMethod, protocol.MsgRejectedByUser), store.OutcomeRejected, attempt) {
			c.emit(span, outcomeDropped, attempt, err.Error())
			return
		}
		c.emit(span, string(store.OutcomeRejected), attempt, err.Error())
		return
	}
}

// lookupSession prefers the store and falls back to the relay, which may know
// a session the store has not been refreshed with yet.
func (c *Coordinator) lookupSession(ctx context.Context, topic string) (relay.Session, bool) {
	if e, ok := c.sessions.Get(topic); ok && e.State != sessions.StateProposed {
		return e.Session, true
	}
	active, err := c.relay.GetActiveSessions(ctx)
	if err != nil {
		slog.Warn("get active sessions failed", "error", err)
		return relay.Session{}, false
	}
	c.sessions.Replace(active)
	s, ok := active[topic]
	return s, ok
}

func requestMetadata(s relay.Session) prompt.Metadata {
	md := s.Peer.Metadata
	return prompt.Metadata{
		Topic: s.Topic,
		Dapp: ui.Dapp{
			Icon:        md.Icon(),
			Proposer:    md.Name,
			URL:         md.URL,
			Description: md.Description,
			Chain:       s.FirstChain(protocol.HathorNamespace),
		},
	}
}

func (c *Coordinator) markSuccess(resp *rpc.Response) {
	switch resp.Type {
	case rpc.SendNanoContractTxResponse:
		c.ui.Dispatch(ui.SetStatus{Flow: ui.FlowNanoContract, Status: ui.StatusSuccess})
	case rpc.CreateTokenResponse:
		c.ui.Dispatch(ui.SetStatus{Flow: ui.FlowCreateToken, Status: ui.StatusSuccess})
	}
}

// failedFlow reports whether err is a wallet failure the user may retry.
func failedFlow(err error) (ui.Flow, bool) {
	var nanoErr *rpc.SendNanoContractTxError
	var tokenErr *rpc.CreateTokenError
	switch {
	case errors.As(err, &nanoErr):
		return ui.FlowNanoContract, true
	case errors.As(err, &tokenErr):
		return ui.FlowCreateToken, true
	}
	return "", false
}

// respond sends resp unless the session is gone or the ledger already holds
// an answer for (topic, id), and reports whether it went out.
// The ledger row is written before the send. When the send fails the row and
// the dedupe entry are removed so CheckPending can answer the request later.
func (c *Coordinator) respond(ctx context.Context, req relay.SessionRequest, resp protocol.RPCResponse, outcome store.Outcome, attempts int) bool {
	log := slog.With("topic", req.Topic, "request_id", req.ID)
	if !c.sessions.Has(req.Topic) {
		log.Info("session destroyed while processing, discarding response")
		return false
	}
	recorded := false
	if c.ledger != nil {
		ok, err := c.ledger.RecordResponse(ctx, store.ResponseRecord{
			Topic:     req.Topic,
			RequestID: req.ID,
			Method:    req.Params.Request.Method,
			Outcome:   outcome,
			Attempts:  attempts,
		})
		switch {
		case err != nil:
			log.Warn("failed to record response", "error", err)
		case !ok:
			log.Warn("response already recorded, not sending again")
			return false
		default:
			recorded = true
		}
	}
	if err := c.relay.RespondSessionRequest(ctx, req.Topic, resp); err != nil {
		if resp.IsError() {
			log.Error("error rejecting response on session request", "error", err)
		} else {
			log.Error("error responding to session request", "error", err)
		}
		if recorded {
			if err := c.ledger.ForgetResponse(ctx, req.Topic, req.ID); err != nil {
				log.Warn("failed to forget unsent response", "error", err)
			}
		}
		c.dedupe.Forget(bus.RequestKey(req.Topic, req.ID))
		return false
	}
	log.Debug("response sent", "outcome", outcome)
	return true
}

func (c *Coordinator) emit(span tracing.RequestSpan, outcome string, attempts int, errMsg string) {
	if c.tracer == nil {
		return
	}
	span.Outcome = outcome
	span.Attempts = attempts
	span.Error = errMsg
	span.End = time.Now()
	c.tracer.Emit(span)
}
