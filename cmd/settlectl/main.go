// Package main implements settlectl, a CLI for the settlement server.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"connectrpc.com/connect"
	"github.com/spf13/cobra"

	"github.com/mmynk/tripsettle/pkg/api/apiconnect"
)

// version information
var version = "dev"

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

// cli carries the flags and clients shared by every command.
type cli struct {
	out        io.Writer
	serverURL  string
	timeout    time.Duration
	outputJSON bool

	settlement apiconnect.SettlementServiceClient
	trip       apiconnect.TripServiceClient
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:   "settlectl",
		Short: "CLI for the trip settlement server",
		Long: `settlectl creates trips, records expenses and settles up against a
running settlement server.

Examples:
  # Create a trip and record a dinner
  settlectl trip create --name Lisbon --currency EUR --participant ana --participant bo
  settlectl expense add-equal <trip-id> --payer ana --amount 42.50 --participant ana --participant bo

  # See who owes whom, then mark a transfer paid
  settlectl show <trip-id>
  settlectl settle <trip-id> <transfer-id>`,
		Version:       version,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			httpClient := &http.Client{Timeout: c.timeout}
			c.settlement = apiconnect.NewSettlementServiceClient(httpClient, c.serverURL)
			c.trip = apiconnect.NewTripServiceClient(httpClient, c.serverURL)
		},
	}
	root.SetOut(out)

	root.PersistentFlags().StringVar(&c.serverURL, "server", "http://localhost:8080", "settlement server URL")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 30*time.Second, "request timeout")
	root.PersistentFlags().BoolVar(&c.outputJSON, "json", false, "Output results as JSON")

	root.AddCommand(c.tripCmd(), c.expenseCmd(), c.computeCmd(), c.showCmd(), c.settleCmd())
	return root
}

// printJSON writes v as indented JSON.
func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// rpcError turns a Connect error into a short CLI message.
func rpcError(err error) error {
	var ce *connect.Error
	if errors.As(err, &ce) {
		return fmt.Errorf("%s: %s", ce.Code(), ce.Message())
	}
	return err
}
