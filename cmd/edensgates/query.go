package main

import (
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Oshkosh1922/edens-gates/internal/database"
)

func newFoundersCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "founders",
		Short: "List approved active founders by vote count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := flags.application(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			tally := a.Votes.Tally()
			if err := tally.Refresh(cmd.Context(), a.Repo); err != nil {
				return err
			}
			founders := tally.Snapshot()
			return flags.print(cmd.OutOrStdout(), founders, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				printf(tw, "ID\tNAME\tVOTES\n")
				for _, f := range founders {
					printf(tw, "%s\t%s\t%d\n", f.ID, f.Name, f.VoteCount)
				}
				_ = tw.Flush()
			})
		},
	}
}

func newWinnersCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "winners",
		Short: "List published weekly winners",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := flags.application(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			winners, err := a.Repo.ListWinners(cmd.Context())
			if err != nil {
				return err
			}
			if winners == nil {
				winners = []database.Winner{}
			}
			return flags.print(cmd.OutOrStdout(), winners, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				printf(tw, "WEEK\tFOUNDER\n")
				for _, win := range winners {
					name := win.FounderID
					if win.Founder != nil {
						name = win.Founder.Name
					}
					printf(tw, "%d\t%s\n", win.WeekNumber, name)
				}
				_ = tw.Flush()
			})
		},
	}
}
