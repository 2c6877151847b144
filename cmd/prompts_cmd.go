package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/walletbridge/internal/prompt"
	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

func promptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "prompts",
		Aliases: []string{"prompt"},
		Short:   "Show and answer the pending wallet prompt",
	}
	cmd.AddCommand(promptShowCmd())
	cmd.AddCommand(promptAnswerCmd())
	cmd.AddCommand(promptRejectCmd())
	return cmd
}

func promptShowCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the prompt awaiting an answer",
		Run: func(cmd *cobra.Command, args []string) {
			requireGateway()
			p := fetchActivePrompt()
			if p == nil {
				fmt.Println("No pending prompt.")
				return
			}
			if jsonOutput {
				data, _ := json.MarshalIndent(p, "", "  ")
				fmt.Println(string(data))
				return
			}
			printPrompt(p)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func promptAnswerCmd() *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "answer",
		Short: "Answer the pending prompt interactively",
		Run: func(cmd *cobra.Command, args []string) {
			requireGateway()
			p := waitActivePrompt(wait)
			if p == nil {
				fmt.Println("No pending prompt.")
				return
			}
			printPrompt(p)
			fmt.Println()
			answerPrompt(p)
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "poll this long for a prompt to show up")
	return cmd
}

func promptRejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a prompt by id",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			requireGateway()
			params, _ := json.Marshal(map[string]string{"id": args[0]})
			mustRPC(protocol.MethodPromptReject, params)
			fmt.Printf("Rejected prompt %s\n", args[0])
		},
	}
}

func fetchActivePrompt() *prompt.Pending {
	resp := mustRPC(protocol.MethodPromptActive, nil)
	var result struct {
		Pending *prompt.Pending `json:"pending"`
	}
	decodePayload(resp, &result)
	return result.Pending
}

func waitActivePrompt(wait time.Duration) *prompt.Pending {
	deadline := time.Now().Add(wait)
	for {
		if p := fetchActivePrompt(); p != nil {
			return p
		}
		if time.Now().After(deadline) {
			return nil
		}
		time.Sleep(time.Second)
	}
}

func answerPrompt(p *prompt.Pending) {
	params := map[string]interface{}{"id": p.ID}

	if p.Trigger == prompt.PinConfirmationPrompt {
		pin, err := promptPassword("Wallet PIN", "Leave empty to cancel")
		if err != nil || pin == "" {
			rejectPrompt(p.ID)
			return
		}
		params["pinCode"] = pin
		sendAccept(p.ID, params)
		return
	}

	ok, err := promptConfirm(confirmTitle(p), false)
	if err != nil || !ok {
		rejectPrompt(p.ID)
		return
	}
	sendAccept(p.ID, params)
}

func sendAccept(id string, params map[string]interface{}) {
	raw, _ := json.Marshal(params)
	mustRPC(protocol.MethodPromptAccept, raw)
	fmt.Printf("Accepted prompt %s\n", id)
}

func rejectPrompt(id string) {
	raw, _ := json.Marshal(map[string]string{"id": id})
	mustRPC(protocol.MethodPromptReject, raw)
	fmt.Printf("Rejected prompt %s\n", id)
}

func confirmTitle(p *prompt.Pending) string {
	name := p.Dapp.Proposer
	if name == "" {
		name = "The dApp"
	}
	switch p.Trigger {
	case prompt.SessionProposalPrompt:
		return fmt.Sprintf("Connect to %s?", name)
	case prompt.SignMessageWithAddressConfirmationPrompt:
		return fmt.Sprintf("%s wants you to sign a message. Sign?", name)
	case prompt.SignOracleDataConfirmationPrompt:
		return fmt.Sprintf("%s wants you to sign oracle data. Sign?", name)
	case prompt.SendNanoContractTxConfirmationPrompt:
		return fmt.Sprintf("%s wants to send a nano contract transaction. Send?", name)
	case prompt.CreateTokenConfirmationPrompt:
		return fmt.Sprintf("%s wants to create a token. Create?", name)
	case prompt.RetryPrompt:
		return "The operation failed. Try again?"
	}
	return fmt.Sprintf("Accept %s?", p.Trigger)
}

func printPrompt(p *prompt.Pending) {
	fmt.Printf("Prompt:   %s\n", p.ID)
	fmt.Printf("Type:     %s\n", p.Trigger)
	if p.Dapp.Proposer != "" {
		fmt.Printf("dApp:     %s (%s)\n", p.Dapp.Proposer, p.Dapp.URL)
	}
	if p.Dapp.Chain != "" {
		fmt.Printf("Chain:    %s\n", p.Dapp.Chain)
	}
	if p.Topic != "" {
		fmt.Printf("Session:  %s\n", p.Topic)
	}
	fmt.Printf("Waiting:  %s\n", time.Since(p.CreatedAt).Round(time.Second))
	if p.Data != nil {
		data, err := json.MarshalIndent(p.Data, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error rendering prompt data: %v\n", err)
			return
		}
		fmt.Println("Data:")
		fmt.Println(string(data))
	}
}
