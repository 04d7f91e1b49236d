package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/cuemby/ember/pkg/api"
	"github.com/cuemby/ember/pkg/types"
	"github.com/spf13/cobra"
)

// Worker commands
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Manage the worker pool",
}

var workerListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List workers and their backlogs",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := requestContext(cmd)
		defer cancel()

		workers, err := c.ListWorkers(ctx)
		if err != nil {
			return err
		}
		if len(workers) == 0 {
			fmt.Println("No workers registered.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tENVIRONMENT\tSTATE\tREADY\tBACKLOG\tLOAD")
		for _, wr := range workers {
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\t%s\n",
				wr.ID,
				wr.Environment,
				stateLabel(wr.State),
				wr.Ready,
				len(wr.Backlog),
				wr.BacklogLoad,
			)
		}
		return w.Flush()
	},
}

var workerAddCmd = &cobra.Command{
	Use:   "add ID",
	Short: "Register a worker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetString("target")
		settings, _ := cmd.Flags().GetString("settings")
		status, _ := cmd.Flags().GetString("state")

		req := api.AddWorkerRequest{
			ID:          args[0],
			Environment: types.Environment{Target: target, Settings: settings},
		}
		if status != "" {
			req.State = &types.StateRef{Kind: types.StateKindStatus, Status: status}
		}

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := requestContext(cmd)
		defer cancel()

		wr, err := c.AddWorker(ctx, req)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Worker %s added (%s, %s)\n", wr.ID, wr.Environment, stateLabel(wr.State))
		return nil
	},
}

var workerRemoveCmd = &cobra.Command{
	Use:     "remove ID",
	Aliases: []string{"rm"},
	Short:   "Remove a worker and reassign its backlog",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := requestContext(cmd)
		defer cancel()

		res, err := c.RemoveWorker(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("✓ Worker %s removed (%d orphaned tasks)\n", res.WorkerID, res.Orphans)
		for _, a := range res.Placed {
			fmt.Printf("  %s -> %s (%s)\n", a.TaskID, a.WorkerID, a.Reason)
		}
		for _, t := range res.Dropped {
			fmt.Printf("  %s dropped\n", t.ID)
		}
		return nil
	},
}

var workerStateCmd = &cobra.Command{
	Use:   "state ID STATUS",
	Short: "Set a worker's status (starting, ready, draining, down)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := types.ParseWorkerStatus(args[1]); err != nil {
			return err
		}

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := requestContext(cmd)
		defer cancel()

		ref := types.StateRef{Kind: types.StateKindStatus, Status: args[1]}
		if err := c.UpdateState(ctx, args[0], ref); err != nil {
			return err
		}
		fmt.Printf("✓ Worker %s is %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	workerCmd.AddCommand(workerListCmd)
	workerCmd.AddCommand(workerAddCmd)
	workerCmd.AddCommand(workerRemoveCmd)
	workerCmd.AddCommand(workerStateCmd)

	workerAddCmd.Flags().String("target", "", "Toolchain target the worker is warmed with")
	workerAddCmd.Flags().String("settings", "", "Canonical build settings")
	workerAddCmd.Flags().String("state", "", "Initial status (default starting)")
	_ = workerAddCmd.MarkFlagRequired("target")
}

func stateLabel(ref types.StateRef) string {
	st, err := ref.WorkerState()
	if err != nil {
		return "unknown"
	}
	return st.String()
}
