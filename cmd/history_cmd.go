package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/walletbridge/internal/store"
	"github.com/nextlevelbuilder/walletbridge/pkg/protocol"
)

func historyCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show answered dApp requests, newest first",
		Run: func(cmd *cobra.Command, args []string) {
			requireGateway()
			params, _ := json.Marshal(map[string]int{"limit": limit})
			resp := mustRPC(protocol.MethodRequestsHistory, params)
			var result struct {
				Responses []store.ResponseRecord `json:"responses"`
			}
			decodePayload(resp, &result)
			printHistory(result.Responses, jsonOutput)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "number of records")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func printHistory(records []store.ResponseRecord, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.MarshalIndent(records, "", "  ")
		fmt.Println(string(data))
		return
	}
	if len(records) == 0 {
		fmt.Println("No answered requests.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "TIME\tTOPIC\tID\tMETHOD\tOUTCOME\tATTEMPTS\n")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%d\n",
			r.RespondedAt.Local().Format(time.DateTime),
			truncateStr(r.Topic, 20),
			r.RequestID,
			r.Method,
			r.Outcome,
			r.Attempts,
		)
	}
	tw.Flush()
}
