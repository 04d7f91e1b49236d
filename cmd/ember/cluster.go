package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// Cluster commands
var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Inspect and manage a replicated deployment",
}

var clusterInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show Raft membership as seen by the node at --addr",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := requestContext(cmd)
		defer cancel()

		info, err := c.ClusterInfo(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Node ID: %s\n", info.NodeID)
		fmt.Printf("Leader: %s (this node: %t)\n", info.Leader, info.IsLeader)
		fmt.Println()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tADDRESS\tSUFFRAGE")
		for _, s := range info.Servers {
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.Address, s.Suffrage)
		}
		return w.Flush()
	},
}

var clusterTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a join token from the leader",
	Long: `Issue a join token from the leader. A token is valid for 24 hours and
admits a single node. Use --list to show the tokens not yet used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := requestContext(cmd)
		defer cancel()

		if list, _ := cmd.Flags().GetBool("list"); list {
			tokens, err := c.JoinTokens(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TOKEN	CREATED	EXPIRES")
			for _, jt := range tokens {
				fmt.Fprintf(w, "%s	%s	%s\n", jt.Token[:12]+"...",
					jt.CreatedAt.Format(time.RFC3339), jt.ExpiresAt.Format(time.RFC3339))
			}
			return w.Flush()
		}

		jt, err := c.GenerateJoinToken(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Join token: %s\n", jt.Token)
		fmt.Printf("Expires: %s\n", jt.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
		fmt.Println()
		fmt.Println("Start a new node with:")
		fmt.Printf("  ember serve --config <file> --join %s --token %s\n", cmd.Flag("addr").Value, jt.Token)
		return nil
	},
}

var clusterRemoveCmd = &cobra.Command{
	Use:     "remove NODE_ID",
	Aliases: []string{"rm"},
	Short:   "Remove a node from the cluster",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := requestContext(cmd)
		defer cancel()

		if err := c.RemoveServer(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ Node %s removed\n", args[0])
		return nil
	},
}

func init() {
	clusterTokenCmd.Flags().Bool("list", false, "List unused tokens instead of issuing one")

	clusterCmd.AddCommand(clusterInfoCmd)
	clusterCmd.AddCommand(clusterTokenCmd)
	clusterCmd.AddCommand(clusterRemoveCmd)
}
