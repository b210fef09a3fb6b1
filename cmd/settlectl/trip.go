package main

import (
	"errors"
	"fmt"
	"strings"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/mmynk/tripsettle/pkg/api"
)

func (c *cli) tripCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trip",
		Short: "Manage trips",
	}

	var (
		name         string
		currency     string
		participants []string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a trip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.trip.CreateTrip(cmd.Context(), connect.NewRequest(&api.CreateTripRequest{
				Name:         name,
				BaseCurrency: currency,
				Participants: participants,
			}))
			if err != nil {
				return rpcError(err)
			}
			if c.outputJSON {
				return c.printJSON(resp.Msg.Trip)
			}
			fmt.Fprintf(c.out, "Created trip %s (%s, %s): %s\n",
				resp.Msg.Trip.ID, resp.Msg.Trip.Name, resp.Msg.Trip.BaseCurrency,
				strings.Join(resp.Msg.Trip.Participants, ", "))
			return nil
		},
	}
	create.Flags().StringVar(&name, "name", "", "Trip name (required)")
	create.Flags().StringVar(&currency, "currency", "USD", "Base currency code")
	create.Flags().StringArrayVar(&participants, "participant", nil, "Participant ID, repeatable (required)")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("participant")

	cmd.AddCommand(create)
	return cmd
}

func (c *cli) expenseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expense",
		Short: "Record trip expenses",
	}

	var (
		description  string
		payer        string
		amount       string
		currency     string
		participants []string
	)
	addEqual := &cobra.Command{
		Use:   "add-equal <trip-id>",
		Short: "Record an expense split equally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", amount, err)
			}
			if len(participants) == 0 {
				return errors.New("at least one --participant is required")
			}
			resp, err := c.trip.AddExpense(cmd.Context(), connect.NewRequest(&api.AddExpenseRequest{
				TripID: args[0],
				Expense: api.Expense{
					Description:    description,
					PayerID:        payer,
					Amount:         amt,
					Currency:       currency,
					ParticipantIDs: participants,
					SplitKind:      "equal",
				},
			}))
			if err != nil {
				return rpcError(err)
			}
			if c.outputJSON {
				return c.printJSON(resp.Msg.Expense)
			}
			e := resp.Msg.Expense
			fmt.Fprintf(c.out, "Added expense %s: %s paid %s %s for %s\n",
				e.ID, e.PayerID, e.Amount.String(), e.Currency, strings.Join(e.ParticipantIDs, ", "))
			return nil
		},
	}
	addEqual.Flags().StringVar(&description, "description", "", "What the expense was for")
	addEqual.Flags().StringVar(&payer, "payer", "", "Participant who paid (required)")
	addEqual.Flags().StringVar(&amount, "amount", "", "Amount paid, e.g. 42.50 (required)")
	addEqual.Flags().StringVar(&currency, "currency", "", "Currency code (defaults to the trip's)")
	addEqual.Flags().StringArrayVar(&participants, "participant", nil, "Participant sharing the expense, repeatable")
	_ = addEqual.MarkFlagRequired("payer")
	_ = addEqual.MarkFlagRequired("amount")

	cmd.AddCommand(addEqual)
	return cmd
}
