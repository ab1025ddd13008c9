package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	aggregateType string
	staleAfter    time.Duration
	batchSize     int
)

var historyCmd = &cobra.Command{
	Use:   "history <aggregate-id>",
	Short: "Print the event history of an aggregate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := open(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		evts, err := a.Bus.GetEventHistory(cmd.Context(), args[0], aggregateType)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(evts)
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay <aggregate-id>",
	Short: "Dispatch an aggregate's history to the current handlers again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openWithHandlers(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Bus.Replay(cmd.Context(), args[0], aggregateType)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "replayed %d events\n", n)
		return nil
	},
}

var handlersCmd = &cobra.Command{
	Use:   "handlers",
	Short: "List handler registrations and their statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := open(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		hs, err := a.Bus.Handlers(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tEVENT TYPE\tPRIORITY\tENABLED\tOK\tFAILED\tLAST RUN")
		for _, h := range hs {
			last := "-"
			if h.LastExecutedAt != nil {
				last = h.LastExecutedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%d\t%d\t%s\n",
				h.HandlerName, h.EventType, h.Priority, h.IsEnabled, h.SuccessCount, h.FailureCount, last)
		}
		return w.Flush()
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Mark events pending for too long as failed",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := open(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if staleAfter == 0 {
			staleAfter = a.Cfg.Sweeper.StaleAfter
		}
		if batchSize == 0 {
			batchSize = a.Cfg.Sweeper.BatchSize
		}
		n, err := a.Bus.SweepStale(cmd.Context(), staleAfter, batchSize)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d events marked failed\n", n)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{historyCmd, replayCmd} {
		c.Flags().StringVarP(&aggregateType, "type", "t", "", "aggregate type (recommended: ids may repeat across types)")
	}
	sweepCmd.Flags().DurationVar(&staleAfter, "stale-after", 0, "pending age considered stale (default from config)")
	sweepCmd.Flags().IntVar(&batchSize, "batch", 0, "max events per sweep (default from config)")
}
