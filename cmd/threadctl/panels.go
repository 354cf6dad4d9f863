package main

import (
	"fmt"

	"github.com/kiranshivaraju/threadlens/internal/config"
	"github.com/kiranshivaraju/threadlens/internal/dashboard"
	"github.com/spf13/cobra"
)

func newThreadsCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "List reconciled threads, most recently active first",
		RunE: func(cmd *cobra.Command, args []string) error {
			view := dashboard.NewView(opts.newClient(opts))
			if err := view.LoadThreads(cmd.Context(), limit); err != nil {
				return fmt.Errorf("load threads: %w", err)
			}
			return dashboard.RenderThreads(cmd.OutOrStdout(), view.Snapshot().Threads)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, fmt.Sprintf("maximum threads to show, 1-%d (default: server default)", config.MaxThreadListLimit))
	return cmd
}

func newAggregatesCmd(opts *options) *cobra.Command {
	var months int
	cmd := &cobra.Command{
		Use:   "aggregates",
		Short: "Show monthly sentiment distribution",
		RunE: func(cmd *cobra.Command, args []string) error {
			view := dashboard.NewView(opts.newClient(opts))
			if err := view.LoadAggregates(cmd.Context(), months); err != nil {
				return fmt.Errorf("load aggregates: %w", err)
			}
			return dashboard.RenderAggregates(cmd.OutOrStdout(), view.Snapshot().Aggregates)
		},
	}
	cmd.Flags().IntVar(&months, "months", 6, fmt.Sprintf("window size in calendar months, 1-%d", config.MaxAggregateMonths))
	return cmd
}

// newDashboardCmd loads both panels at once. A panel that fails prints its
// error; the other still renders.
func newDashboardCmd(opts *options) *cobra.Command {
	var (
		limit  int
		months int
	)
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show the thread list and monthly sentiment together",
		RunE: func(cmd *cobra.Command, args []string) error {
			view := dashboard.NewView(opts.newClient(opts))
			refreshErr := view.Refresh(cmd.Context(), limit, months)

			snap := view.Snapshot()
			out := cmd.OutOrStdout()
			if err := dashboard.RenderAggregates(out, snap.Aggregates); err != nil {
				return err
			}
			fmt.Fprintln(out)
			if err := dashboard.RenderThreads(out, snap.Threads); err != nil {
				return err
			}

			if refreshErr != nil {
				return fmt.Errorf("refresh: %w", refreshErr)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum threads to show")
	cmd.Flags().IntVar(&months, "months", 6, "window size in calendar months")
	return cmd
}
