package main

import (
	"fmt"
	"text/tabwriter"

	"connectrpc.com/connect"
	"github.com/spf13/cobra"

	"github.com/mmynk/tripsettle/pkg/api"
)

func (c *cli) computeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compute <trip-id>",
		Short: "Recompute a trip's settlement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.settlement.ComputeSettlement(cmd.Context(), connect.NewRequest(&api.ComputeSettlementRequest{TripID: args[0]}))
			if err != nil {
				return rpcError(err)
			}
			return c.printSettlement(resp.Msg.Settlement)
		},
	}
}

func (c *cli) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <trip-id>",
		Short: "Show balances and open transfers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.settlement.GetSettlement(cmd.Context(), connect.NewRequest(&api.GetSettlementRequest{TripID: args[0]}))
			if err != nil {
				return rpcError(err)
			}
			return c.printSettlement(resp.Msg.Settlement)
		},
	}
}

func (c *cli) settleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settle <trip-id> <transfer-id>",
		Short: "Mark a transfer as paid",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := c.settlement.MarkTransferSettled(cmd.Context(), connect.NewRequest(&api.MarkTransferSettledRequest{
				TripID:     args[0],
				TransferID: args[1],
			}))
			if err != nil {
				return rpcError(err)
			}
			fmt.Fprintf(c.out, "Transfer %s marked settled\n", args[1])
			return nil
		},
	}
}

func (c *cli) printSettlement(s api.Settlement) error {
	if c.outputJSON {
		return c.printJSON(s)
	}

	fmt.Fprintf(c.out, "Trip %s (%s), computed %s\n\n", s.TripID, s.BaseCurrency, s.LastComputedAt.Local().Format("Jan 2 15:04"))

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PERSON\tPAID\tOWED\tNET")
	for _, p := range s.People {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.UserID, p.TotalPaid.StringFixed(2), p.TotalOwed.StringFixed(2), p.Net.StringFixed(2))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(c.out)
	w = tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TRANSFER\tFROM\tTO\tAMOUNT\tSTATUS")
	for _, t := range s.Transfers {
		status := "open"
		if t.IsSettled {
			status = "settled"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.FromUserID, t.ToUserID, t.Amount.StringFixed(2), status)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, f := range s.Failures {
		fmt.Fprintf(c.out, "warning: expense %s left out: %s\n", f.ExpenseID, f.Reason)
	}
	for _, id := range s.SkippedExpenseIDs {
		fmt.Fprintf(c.out, "warning: expense %s is not in %s and was skipped\n", id, s.BaseCurrency)
	}
	return nil
}
