package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/walletbridge/internal/prompt"
	"github.com/nextlevelbuilder/walletbridge/internal/relay"
	"github.com/nextlevelbuilder/walletbridge/internal/sessions"
	"github.com/nextlevelbuilder/walletbridge/internal/ui"
	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

// ProposalRequest is what the CONNECT modal shows.
type ProposalRequest struct {
	Icon               string                     `json:"icon"`
	Proposer           string                     `json:"proposer"`
	URL                string                     `json:"url"`
	Description        string                     `json:"description"`
	RequiredNamespaces map[string]relay.Namespace `json:"requiredNamespaces"`
}

// HandleProposal asks the user whether to connect to the proposing dApp and
// approves or rejects the proposal accordingly.
func (c *Coordinator) HandleProposal(ctx context.Context, p relay.Proposal) {
	key := sessions.ProposalKey(p.ID)
	log := slog.With("proposal_id", p.ID, "dapp", p.Params.Proposer.Metadata.Name)

	if err := c.sessions.Propose(key); err != nil {
		log.Warn("duplicate session proposal ignored", "error", err)
		return
	}

	md := p.Params.Proposer.Metadata
	req := ProposalRequest{
		Icon:               md.Icon(),
		Proposer:           md.Name,
		URL:                md.URL,
		Description:        md.Description,
		RequiredNamespaces: p.Params.RequiredNamespaces,
	}
	if req.RequiredNamespaces == nil {
		req.RequiredNamespaces = map[string]relay.Namespace{}
	}
	dapp := ui.Dapp{Icon: req.Icon, Proposer: req.Proposer, URL: req.URL, Description: req.Description}

	resp, err := c.prompts.Prompt(ctx, prompt.Trigger{Type: prompt.SessionProposalPrompt, Data: req}, prompt.Metadata{Dapp: dapp})
	if err != nil {
		log.Warn("session proposal prompt failed", "error", err)
		c.rejectProposal(ctx, p.ID, key)
		return
	}
	if !resp.Accepted() {
		log.Info("session proposal rejected by user")
		c.rejectProposal(ctx, p.ID, key)
		return
	}

	sess, err := c.approve(ctx, p)
	if err != nil {
		log.Error("error on session proposal", "error", err)
		c.rejectProposal(ctx, p.ID, key)
		return
	}
	if sess.Peer.Metadata.Name == "" {
		sess.Peer = p.Params.Proposer
	}
	if err := c.sessions.Promote(key, sess); err != nil {
		log.Warn("could not promote proposal", "error", err)
	}
	log.Info("session approved", "topic", sess.Topic)

	if err := c.RefreshSessions(ctx, false); err != nil {
		log.Warn("session refresh after approval failed", "error", err)
	}
}

func (c *Coordinator) approve(ctx context.Context, p relay.Proposal) (relay.Session, error) {
	address, err := c.wallet.AddressAtIndex(ctx, 0)
	if err != nil {
		return relay.Session{}, fmt.Errorf("get first address: %w", err)
	}
	network := c.Network()
	methods := make([]string, len(protocol.HathorMethods))
	copy(methods, protocol.HathorMethods)

	return c.relay.ApproveSession(ctx, relay.ApproveParams{
		ID:            p.ID,
		RelayProtocol: p.RelayProtocolName(),
		Namespaces: map[string]relay.Namespace{
			protocol.HathorNamespace: {
				Accounts: []string{fmt.Sprintf("%s:%s:%s", protocol.HathorNamespace, network, address)},
				Chains:   []string{fmt.Sprintf("%s:%s", protocol.HathorNamespace, network)},
				Methods:  methods,
				Events:   append([]string{}, protocol.HathorEvents...),
			},
		},
	})
}

// rejectProposal answers the proposal negatively. A reject failure is logged only.
func (c *Coordinator) rejectProposal(ctx context.Context, id int64, key string) {
	if ctx.Err() == nil {
		err := c.relay.RejectSession(ctx, id, relay.Reason{
			Code:    protocol.CodeUserRejected,
			Message: protocol.MsgUserRejectedSession,
		})
		if err != nil {
			slog.Error("error rejecting session on session proposal", "proposal_id", id, "error", err)
		}
	}
	if err := c.sessions.Transition(key, sessions.StateNone); err != nil {
		slog.Debug("proposal already cleared", "proposal_id", id, "error", err)
	}
}
