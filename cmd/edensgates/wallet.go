package main

import (
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Oshkosh1922/edens-gates/internal/wallet"
)

type adapterRow struct {
	Name       string            `json:"name"`
	Kind       wallet.Kind       `json:"kind"`
	ReadyState wallet.ReadyState `json:"readyState"`
}

func newWalletCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Inspect wallet adapters",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "adapters",
		Short: "Discover and list wallet adapters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := flags.application(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Registry == nil {
				return wallet.ErrFeatureDisabled
			}
			<-a.Discover(cmd.Context())

			rows := []adapterRow{}
			for _, ad := range a.Registry.Adapters() {
				rows = append(rows, adapterRow{Name: ad.Name(), Kind: ad.Kind(), ReadyState: ad.ReadyState()})
			}
			return flags.print(cmd.OutOrStdout(), rows, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				printf(tw, "NAME\tKIND\tREADY\n")
				for _, r := range rows {
					printf(tw, "%s\t%s\t%s\n", r.Name, r.Kind, r.ReadyState)
				}
				_ = tw.Flush()
			})
		},
	})

	var adapter string
	status := &cobra.Command{
		Use:   "status",
		Short: "Connect the selected adapter and show the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := flags.application(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			st := a.Session.Status()
			if st.Enabled {
				<-a.Discover(ctx)
				if adapter != "" {
					if err := a.Session.Select(ctx, adapter); err != nil {
						return err
					}
				}
				if err := a.Session.Connect(ctx); err != nil {
					return err
				}
				st = a.Session.Status()
			}
			return flags.print(cmd.OutOrStdout(), st, func(w io.Writer) {
				if !st.Enabled {
					printf(w, "wallets are disabled\n")
					return
				}
				printf(w, "adapter  %s\n", st.Adapter)
				printf(w, "state    %s\n", st.State)
				printf(w, "address  %s\n", wallet.ShortAddress(st.Address))
			})
		},
	}
	status.Flags().StringVar(&adapter, "adapter", "", "wallet adapter to connect")
	cmd.AddCommand(status)
	return cmd
}
