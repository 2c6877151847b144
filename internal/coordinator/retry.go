package coordinator

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/walletbridge/internal/prompt"
	"github.com/nextlevelbuilder/walletbridge/internal/ui"
)

// RetryRequest is the payload of a RetryPrompt.
type RetryRequest struct {
	Flow    ui.Flow `json:"flow"`
	Attempt int     `json:"attempt"`
}

// Governor decides whether a failed wallet operation is attempted again.
// The user decides; MaxRetries (when > 0) turns the answer into dismiss once
// that many retries were granted.
type Governor struct {
	prompts    Prompter
	maxRetries int
}

// NewGovernor creates a governor. maxRetries <= 0 leaves it to the user.
func NewGovernor(p Prompter, maxRetries int) *Governor {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Governor{prompts: p, maxRetries: maxRetries}
}

// Ask is called after attempt number attempt (1-based) failed.
// A prompt error or ctx end counts as dismiss.
func (g *Governor) Ask(ctx context.Context, meta prompt.Metadata, flow ui.Flow, attempt int) bool {
	if g.maxRetries > 0 && attempt > g.maxRetries {
		slog.Info("retry limit reached, dismissing", "flow", flow, "attempts", attempt, "max_retries", g.maxRetries)
		return false
	}
	if ctx.Err() != nil {
		return false
	}

	resp, err := g.prompts.Prompt(ctx, prompt.Trigger{
		Type: prompt.RetryPrompt,
		Data: RetryRequest{Flow: flow, Attempt: attempt},
	}, meta)
	if err != nil {
		slog.Warn("retry prompt failed, dismissing", "flow", flow, "error", err)
		return false
	}
	retry := resp.Accepted()
	slog.Info("retry decision", "flow", flow, "attempt", attempt, "retry", retry)
	return retry
}
