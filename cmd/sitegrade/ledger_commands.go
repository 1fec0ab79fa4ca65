package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sitegrade/internal/daemon"
	"sitegrade/internal/ledger"
)

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and manage credit balances",
	}
	cmd.AddCommand(newLedgerBalanceCommand(ctx))
	cmd.AddCommand(newLedgerTopUpCommand(ctx))
	cmd.AddCommand(newLedgerHistoryCommand(ctx))
	cmd.AddCommand(newLedgerPayAsYouGoCommand(ctx))
	return cmd
}

func newLedgerBalanceCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show the acting user's balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := ctx.userID()
			if err != nil {
				return err
			}
			return ctx.withRuntime(func(rt *daemon.Runtime) error {
				account, err := rt.Ledger.Balance(cmd.Context(), user)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, account)
				}
				printAccount(cmd, account)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newLedgerTopUpCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "topup <amount>",
		Short: "Add credits to the acting user's account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := ctx.userID()
			if err != nil {
				return err
			}
			amount, err := ledger.ParseCredits(args[0])
			if err != nil {
				return fmt.Errorf("invalid amount: %w", err)
			}
			return ctx.withRuntime(func(rt *daemon.Runtime) error {
				account, err := rt.Ledger.TopUp(cmd.Context(), user, amount)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s credits; balance %s\n", amount, account.Balance)
				return nil
			})
		},
	}
}

func newLedgerHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var evaluation string
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List ledger transactions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := ctx.userID()
			if err != nil {
				return err
			}
			return ctx.withRuntime(func(rt *daemon.Runtime) error {
				txs, err := rt.Ledger.Transactions(cmd.Context(), ledger.TransactionQuery{
					AccountID:    user,
					EvaluationID: strings.TrimSpace(evaluation),
					Limit:        limit,
				})
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, txs)
				}
				if len(txs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No transactions")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTransactions(txs))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum transactions to show")
	cmd.Flags().StringVar(&evaluation, "evaluation", "", "Only show transactions for this evaluation")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newLedgerPayAsYouGoCommand(ctx *commandContext) *cobra.Command {
	var paymentMethod bool
	cmd := &cobra.Command{
		Use:   "payg <on|off>",
		Short: "Toggle pay-as-you-go metering",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := ctx.userID()
			if err != nil {
				return err
			}
			var enabled bool
			switch strings.ToLower(strings.TrimSpace(args[0])) {
			case "on", "true", "yes":
				enabled = true
			case "off", "false", "no":
				enabled = false
			default:
				return fmt.Errorf("expected on or off, got %q", args[0])
			}
			return ctx.withRuntime(func(rt *daemon.Runtime) error {
				account, err := rt.Ledger.SetPayAsYouGo(cmd.Context(), user, enabled, paymentMethod)
				if err != nil {
					return err
				}
				printAccount(cmd, account)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&paymentMethod, "payment-method", false, "Record that a payment method is on file")
	return cmd
}

func printAccount(cmd *cobra.Command, account ledger.Account) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Account:         %s\n", account.ID)
	fmt.Fprintf(out, "Balance:         %s\n", account.Balance)
	fmt.Fprintf(out, "Pay-as-you-go:   %s\n", yesNo(account.PayAsYouGo))
	fmt.Fprintf(out, "Payment method:  %s\n", yesNo(account.HasPaymentMethod))
}

func renderTransactions(txs []ledger.Transaction) string {
	rows := make([][]string, 0, len(txs))
	for _, tx := range txs {
		amount := tx.Amount.String()
		if tx.Kind == ledger.KindReserve {
			amount = "-" + amount
		}
		note := string(tx.Action)
		if tx.Metered > 0 {
			note = fmt.Sprintf("%s (%s metered)", note, tx.Metered)
		}
		rows = append(rows, []string{
			tx.CreatedAt.Local().Format("2006-01-02 15:04"),
			string(tx.Kind),
			note,
			amount,
			tx.BalanceAfter.String(),
			shortID(tx.EvaluationID),
		})
	}
	return tableSpec{
		headers: []string{"When", "Kind", "Action", "Amount", "Balance", "Evaluation"},
		aligns:  []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
		rows:    rows,
	}.render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
