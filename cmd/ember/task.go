package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/cuemby/ember/pkg/api"
	"github.com/cuemby/ember/pkg/types"
	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Place a snippet run on a worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetString("target")
		settings, _ := cmd.Flags().GetString("settings")
		origin, _ := cmd.Flags().GetString("origin")
		id, _ := cmd.Flags().GetString("id")
		weight, _ := cmd.Flags().GetInt("weight")

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := requestContext(cmd)
		defer cancel()

		a, err := c.Submit(ctx, api.SubmitRequest{
			Environment: types.Environment{Target: target, Settings: settings},
			Origin:      origin,
			ID:          id,
			Weight:      weight,
		})
		if err != nil {
			return err
		}

		reload := ""
		if a.Reload {
			reload = ", reload"
		}
		fmt.Printf("✓ Task %s assigned to %s (%s%s, wait %s)\n",
			a.TaskID, a.WorkerID, a.Reason, reload, a.ProjectedWait)
		return nil
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete WORKER TASK",
	Short: "Mark a task finished and drop it from its worker's backlog",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := requestContext(cmd)
		defer cancel()

		if err := c.Complete(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("✓ Task %s completed on %s\n", args[1], args[0])
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel WORKER TASK",
	Short: "Withdraw a queued task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := requestContext(cmd)
		defer cancel()

		if err := c.Cancel(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("✓ Task %s cancelled on %s\n", args[1], args[0])
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the recent request history used for affinity",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := requestContext(cmd)
		defer cancel()

		h, err := c.History(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("%d of %d records, oldest first\n", len(h.Records), h.Capacity)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ORIGIN\tENVIRONMENT")
		for _, r := range h.Records {
			fmt.Fprintf(w, "%s\t%s\n", r.Origin, r.Environment)
		}
		return w.Flush()
	},
}

func init() {
	submitCmd.Flags().String("target", "", "Toolchain target of the snippet")
	submitCmd.Flags().String("settings", "", "Canonical build settings")
	submitCmd.Flags().String("origin", "", "Client address (defaults to the caller's address)")
	submitCmd.Flags().String("id", "", "Task id (generated when empty)")
	submitCmd.Flags().Int("weight", 0, "Cost weight; zero submits an ordinary run")
	_ = submitCmd.MarkFlagRequired("target")
}
