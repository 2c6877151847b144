package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/walletbridge/internal/sessions"
	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List and disconnect dApp sessions",
	}
	cmd.AddCommand(sessionsListCmd())
	cmd.AddCommand(sessionsDisconnectCmd())
	cmd.AddCommand(sessionsRefreshCmd())
	return cmd
}

func sessionsListCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active sessions",
		Run: func(cmd *cobra.Command, args []string) {
			requireGateway()
			resp := mustRPC(protocol.MethodSessionsList, nil)
			var result struct {
				Sessions []sessions.Entry `json:"sessions"`
			}
			decodePayload(resp, &result)
			printSessions(result.Sessions, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func sessionsDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect [topic]",
		Short: "Disconnect a session (interactive if no topic given)",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			requireGateway()
			var topic string
			if len(args) == 1 {
				topic = args[0]
			} else {
				topic = sessionsInteractiveSelect()
				if topic == "" {
					return
				}
			}

			params, _ := json.Marshal(map[string]string{"topic": topic})
			mustRPC(protocol.MethodSessionsCancel, params)
			fmt.Printf("Disconnected session: %s\n", topic)
		},
	}
}

func sessionsRefreshCmd() *cobra.Command {
	var extend bool
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Re-read sessions from the relay",
		Run: func(cmd *cobra.Command, args []string) {
			requireGateway()
			params, _ := json.Marshal(map[string]bool{"extend": extend})
			resp := mustRPC(protocol.MethodSessionsRefresh, params)
			var result struct {
				Sessions []sessions.Entry `json:"sessions"`
			}
			decodePayload(resp, &result)
			printSessions(result.Sessions, false)
		},
	}
	cmd.Flags().BoolVar(&extend, "extend", false, "also extend every session's expiry")
	return cmd
}

// sessionsInteractiveSelect lets the user pick one active session.
func sessionsInteractiveSelect() string {
	resp := mustRPC(protocol.MethodSessionsList, nil)
	var result struct {
		Sessions []sessions.Entry `json:"sessions"`
	}
	decodePayload(resp, &result)
	if len(result.Sessions) == 0 {
		fmt.Println("No sessions found.")
		return ""
	}

	options := make([]SelectOption[string], 0, len(result.Sessions))
	for _, s := range result.Sessions {
		label := fmt.Sprintf("%s  %s", truncateStr(s.Topic, 16), s.Peer.Metadata.Name)
		options = append(options, SelectOption[string]{Label: label, Value: s.Topic})
	}
	topic, err := promptSelect("Disconnect which session?", options, 0)
	if err != nil {
		fmt.Println("Cancelled.")
		return ""
	}
	return topic
}

func printSessions(entries []sessions.Entry, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.MarshalIndent(entries, "", "  ")
		fmt.Println(string(data))
		return
	}

	if len(entries) == 0 {
		fmt.Println("No sessions found.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "TOPIC\tDAPP\tCHAIN\tSTATE\tEXPIRES\n")
	for _, s := range entries {
		expires := "-"
		if s.Expiry > 0 {
			expires = time.Unix(s.Expiry, 0).Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			truncateStr(s.Topic, 20),
			truncateStr(s.Peer.Metadata.Name, 30),
			s.FirstChain(protocol.HathorNamespace),
			s.State,
			expires,
		)
	}
	tw.Flush()
}

func truncateStr(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
