package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/ember/pkg/events"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Stream scheduling events until interrupted",
	Long: `Stream scheduling events from the dispatcher.

Examples:
  # Every event
  ember events

  # Only assignments and rejections, as JSON lines
  ember events --type task.assigned --type task.rejected --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, _ := cmd.Flags().GetStringSlice("type")
		asJSON, _ := cmd.Flags().GetBool("json")

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		types := make([]events.EventType, 0, len(filter))
		for _, f := range filter {
			types = append(types, events.EventType(f))
		}

		enc := json.NewEncoder(os.Stdout)
		err = c.Events(ctx, func(e events.Event) error {
			if asJSON {
				return enc.Encode(e)
			}
			fmt.Printf("%s  %-16s %-8s %-24s %s\n",
				e.Timestamp.Format("15:04:05.000"), e.Type, e.WorkerID, e.TaskID, e.Message)
			return nil
		}, types...)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	eventsCmd.Flags().StringSlice("type", nil, "Only stream these event types")
	eventsCmd.Flags().Bool("json", false, "Print events as JSON lines")
}
