package main

import (
	"github.com/campus/portal/internal/dashboard"
	"github.com/campus/portal/internal/endpoint"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newSummaryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Dashboard totals computed from fetched records",
	}

	var goal string
	donations := &cobra.Command{
		Use:   "donations",
		Short: "Total donations, per campaign and against a goal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, err := decimal.NewFromString(goal)
			if err != nil {
				return err
			}
			store, err := a.store(cmd.Context(), string(endpoint.Donations))
			if err != nil {
				return err
			}
			items, err := store.List(cmd.Context(), nil)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), dashboard.Donations(items, target))
		},
	}
	donations.Flags().StringVar(&goal, "goal", "0", "Fundraising goal used for the percentage")

	finances := &cobra.Command{
		Use:   "finances",
		Short: "Income, expense and balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.store(cmd.Context(), string(endpoint.Finances))
			if err != nil {
				return err
			}
			items, err := store.List(cmd.Context(), nil)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), dashboard.Finances(items))
		},
	}

	cmd.AddCommand(donations, finances)
	return cmd
}
