package main

import (
	"context"
	"fmt"
	"io"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/code-payments/flash-fill/pkg/database/query"
	"github.com/code-payments/flash-fill/pkg/flashfill/attempt"
	"github.com/code-payments/flash-fill/pkg/flashfill/swap"
	"github.com/code-payments/flash-fill/pkg/solana"
	flash_fill "github.com/code-payments/flash-fill/pkg/solana/flashfill"
	"github.com/code-payments/flash-fill/pkg/solana/token"
)

const (
	defaultOutputMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v" // USDC

	defaultAttemptsLimit = 25
)

func InitRootCmd(rootCmd *cobra.Command) {
	rootCmd.AddCommand(swapCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(attemptsCmd())
	rootCmd.AddCommand(authorityCmd())
}

func swapCmd() *cobra.Command {
	var req swap.Request

	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Borrow, swap through Jupiter and repay in one transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, "swap", func(ctx context.Context, a *app) error {
				svc, err := a.newSwapService(a.attempts())
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "borrower:  %s\n", base58.Encode(svc.Borrower()))

				res, err := svc.Swap(ctx, &req)
				if res != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "attempt:   %s\n", res.AttemptId)
					fmt.Fprintf(cmd.OutOrStdout(), "signature: %s\n", res.Signature)
				}
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "quote:     %d -> %d (min %d)\n", res.Quote.InAmount, res.Quote.OutAmount, res.Quote.OtherAmountThreshold)
				fmt.Fprintf(cmd.OutOrStdout(), "slot:      %d\n", res.Confirmation.Slot)
				fmt.Fprintf(cmd.OutOrStdout(), "units:     %d\n", res.Confirmation.UnitsConsumed)
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&req.InputMint, "input-mint", base58.Encode(token.NativeMint), "Mint of the borrowed asset")
	flags.StringVar(&req.OutputMint, "output-mint", defaultOutputMint, "Mint to swap into")
	flags.Uint64Var(&req.Amount, "amount", 0, "Amount to borrow, the configured borrow amount when 0")

	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <signature>",
		Short: "Print the status of a submitted transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sig, err := decodeSignature(args[0])
			if err != nil {
				return err
			}

			return withApp(cmd, "status", func(ctx context.Context, a *app) error {
				status, err := a.ledger.GetSignatureStatus(ctx, sig)
				if err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), status)
				return nil
			})
		},
	}
}

func resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <attempt-id>",
		Short: "Resolve an unconfirmed attempt by looking up its signature status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, "resolve", func(ctx context.Context, a *app) error {
				attempts, err := a.persistentAttempts()
				if err != nil {
					return err
				}

				svc, err := a.newSwapService(attempts)
				if err != nil {
					return err
				}

				record, err := svc.Resolve(ctx, args[0])
				if err != nil {
					return err
				}
				printAttempt(cmd.OutOrStdout(), record)
				return nil
			})
		},
	}
}

func attemptsCmd() *cobra.Command {
	var state, cursor, order string
	var limit uint64

	cmd := &cobra.Command{
		Use:   "attempts",
		Short: "List journaled attempts in a state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedState, err := attempt.ToState(state)
			if err != nil {
				return err
			}

			direction, err := query.ToOrdering(order)
			if err != nil {
				return errors.Wrap(err, "invalid order")
			}

			var parsedCursor query.Cursor
			if len(cursor) > 0 {
				parsedCursor, err = base58.Decode(cursor)
				if err != nil || len(parsedCursor) != 8 {
					return errors.New("invalid cursor")
				}
			}

			return withApp(cmd, "attempts", func(ctx context.Context, a *app) error {
				attempts, err := a.persistentAttempts()
				if err != nil {
					return err
				}

				records, err := attempts.GetAllByState(ctx, parsedState, parsedCursor, limit, direction)
				if err == attempt.ErrNotFound {
					fmt.Fprintln(cmd.OutOrStdout(), "no attempts")
					return nil
				} else if err != nil {
					return err
				}

				for _, record := range records {
					printAttempt(cmd.OutOrStdout(), record)
					fmt.Fprintln(cmd.OutOrStdout())
				}
				fmt.Fprintf(cmd.OutOrStdout(), "next cursor: %s\n", query.ToCursor(records[len(records)-1].Id).ToBase58())
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&state, "state", attempt.StateTimedOut.String(), "Attempt state to list")
	flags.StringVar(&cursor, "cursor", "", "Cursor returned by a previous listing")
	flags.StringVar(&order, "order", "asc", "Listing order, asc or desc")
	flags.Uint64Var(&limit, "limit", defaultAttemptsLimit, "Maximum number of attempts to list")

	return cmd
}

func authorityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "authority",
		Short: "Print the program authority holding the lendable funds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			program, err := decodeKey(viper.GetString(programIdFlag))
			if err != nil {
				return errors.Wrap(err, "invalid program id")
			}

			authority, bump, err := flash_fill.GetProgramAuthorityAddress(program)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "program:   %s\n", base58.Encode(program))
			fmt.Fprintf(cmd.OutOrStdout(), "authority: %s\n", base58.Encode(authority))
			fmt.Fprintf(cmd.OutOrStdout(), "bump:      %d\n", bump)
			return nil
		},
	}
}

func withApp(cmd *cobra.Command, command string, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, end := a.newContext(cmd.Context(), command)
	defer end()

	return fn(ctx, a)
}

func decodeSignature(value string) (solana.Signature, error) {
	var sig solana.Signature

	decoded, err := base58.Decode(value)
	if err != nil || len(decoded) != len(sig) {
		return sig, errors.New("invalid signature")
	}
	copy(sig[:], decoded)
	return sig, nil
}

func printStatus(w io.Writer, status *solana.SignatureStatus) {
	if status == nil {
		fmt.Fprintln(w, "status:    not found")
		return
	}

	commitment := "processed"
	switch {
	case status.Finalized():
		commitment = "finalized"
	case status.Confirmed():
		commitment = "confirmed"
	}

	fmt.Fprintf(w, "slot:      %d\n", status.Slot)
	fmt.Fprintf(w, "status:    %s\n", commitment)
	if status.ErrorResult != nil {
		fmt.Fprintf(w, "error:     %s\n", status.ErrorResult.Error())
	}
}

func printAttempt(w io.Writer, record *attempt.Record) {
	fmt.Fprintf(w, "attempt:   %s\n", record.AttemptId)
	fmt.Fprintf(w, "signature: %s\n", record.Signature)
	fmt.Fprintf(w, "borrower:  %s\n", record.Borrower)
	fmt.Fprintf(w, "amount:    %d\n", record.Amount)
	fmt.Fprintf(w, "state:     %s\n", record.State)
	if record.Slot > 0 {
		fmt.Fprintf(w, "slot:      %d\n", record.Slot)
	}
	if record.ErrorMessage != nil {
		fmt.Fprintf(w, "error:     %s\n", *record.ErrorMessage)
	}
}
