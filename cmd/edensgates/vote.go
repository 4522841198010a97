package main

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/Oshkosh1922/edens-gates/internal/votes"
)

func newVoteCommand(flags *globalFlags) *cobra.Command {
	var adapter string
	cmd := &cobra.Command{
		Use:   "vote <founder-id>",
		Short: "Cast one vote, paying the fee from a wallet when wallets are enabled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := flags.application(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			if a.Session.Status().Enabled {
				<-a.Discover(ctx)
				if adapter != "" {
					if err := a.Session.Select(ctx, adapter); err != nil {
						return err
					}
				}
				if err := a.Session.Connect(ctx); err != nil {
					return err
				}
			}

			receipt, err := a.Votes.CastVote(ctx, args[0])
			if err != nil {
				var unrecorded *votes.UnrecordedFeeError
				var indeterminate *votes.IndeterminateError
				switch {
				case errors.As(err, &unrecorded):
					printf(cmd.ErrOrStderr(), "fee %s was paid but the vote is not stored yet; it will be retried by the reconciler\n", unrecorded.Signature)
				case errors.As(err, &indeterminate):
					printf(cmd.ErrOrStderr(), "fee %s is unconfirmed; run `edensgates reconcile` later to settle it\n", indeterminate.Signature)
				}
				return err
			}
			return flags.print(cmd.OutOrStdout(), receipt, func(w io.Writer) {
				printf(w, "%s\n", receipt.Message)
				printf(w, "founder %s now has %d votes\n", receipt.FounderID, receipt.VoteCount)
				if receipt.Signature != "" {
					printf(w, "signature %s\n", receipt.Signature)
				}
			})
		},
	}
	cmd.Flags().StringVar(&adapter, "adapter", "", "wallet adapter to connect (defaults to WALLET_DEFAULT_ADAPTER)")
	return cmd
}
