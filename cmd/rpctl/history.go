package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/remoteplay/rpctl/internal/history"
)

func newHistoryCommand() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show past sessions",
		Args:  cobra.NoArgs,
		RunE:  historyList,
	}
	historyCmd.Flags().String("host", "", "Only show runs against this host")
	historyCmd.Flags().Int("limit", 20, "Maximum number of runs")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one run (id prefixes are accepted)",
		Args:  cobra.ExactArgs(1),
		RunE:  historyShow,
	}

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete finished runs older than a cutoff",
		Args:  cobra.NoArgs,
		RunE:  historyPrune,
	}
	pruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "Age of the oldest run to keep")

	historyCmd.AddCommand(showCmd, pruneCmd)
	return historyCmd
}

func openHistory() (*history.Store, error) {
	return history.Open(cfg.History.Path)
}

func historyList(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	host, _ := cmd.Flags().GetString("host")
	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.List(context.Background(), history.ListOptions{Host: host, Limit: limit})
	if err != nil {
		return err
	}
	if out.jsonMode {
		return out.Print(runs)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tHOST\tKIND\tSTARTED\tDURATION\tFRAMES\tDATA\tOUTCOME")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			shortID(r.ID), r.Host, r.Kind, humanize.Time(r.Started), formatDuration(r),
			r.Sent, humanize.Bytes(r.Bytes), r.Outcome)
	}
	return w.Flush()
}

func formatDuration(r history.Run) string {
	if r.Ended.IsZero() {
		return "-"
	}
	return r.Duration().Round(time.Second).String()
}

func historyShow(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	r, err := store.Get(context.Background(), args[0])
	if err != nil {
		return err
	}
	if out.jsonMode {
		return out.Print(r)
	}
	fmt.Printf("ID:       %s\n", r.ID)
	fmt.Printf("Host:     %s (%s)\n", r.Host, r.Address)
	fmt.Printf("Kind:     %s\n", r.Kind)
	fmt.Printf("Started:  %s (%s)\n", r.Started.Format(time.RFC3339), humanize.Time(r.Started))
	fmt.Printf("Duration: %s\n", formatDuration(r))
	fmt.Printf("Frames:   %s sent, %s missed\n", humanize.Comma(int64(r.Sent)), humanize.Comma(int64(r.Missed)))
	fmt.Printf("Data:     %s\n", humanize.Bytes(r.Bytes))
	fmt.Printf("Outcome:  %s\n", r.Outcome)
	if r.Error != "" {
		fmt.Printf("Error:    %s\n", r.Error)
	}
	return nil
}

func historyPrune(cmd *cobra.Command, _ []string) error {
	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	age, _ := cmd.Flags().GetDuration("older-than")
	n, err := store.Prune(context.Background(), time.Now().Add(-age))
	if err != nil {
		return err
	}
	return newOutputFormatter(cmd).Success(fmt.Sprintf("Removed %d runs", n), map[string]interface{}{"removed": n})
}
