package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/cuemby/ember/pkg/config"
	"github.com/cuemby/ember/pkg/replay"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate TRACE",
	Short: "Replay a request trace offline and compare policies",
	Long: `Replay a YAML request trace against a fresh scheduler, once per policy,
and report where every request would have been placed.

Examples:
  # Compare every policy
  ember simulate trace.yaml

  # One policy, with each decision
  ember simulate trace.yaml --policy least-cost --decisions

  # Machine readable output using the cost model of a server config
  ember simulate trace.yaml --config ember.yaml -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringSlice("policy", nil, "Policies to replay (default all)")
	simulateCmd.Flags().StringP("config", "c", "", "Take the cost model from this server config")
	simulateCmd.Flags().Bool("decisions", false, "Print every placement")
	simulateCmd.Flags().StringP("output", "o", "table", "Output format: table, yaml or json")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	policies, _ := cmd.Flags().GetStringSlice("policy")
	cfgPath, _ := cmd.Flags().GetString("config")
	decisions, _ := cmd.Flags().GetBool("decisions")
	output, _ := cmd.Flags().GetString("output")

	cfg := config.Default()
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	base, err := cfg.BalancerConfig()
	if err != nil {
		return err
	}

	trace, err := replay.Load(args[0])
	if err != nil {
		return err
	}

	reports, err := replay.Compare(trace, base, policies...)
	if err != nil {
		return err
	}

	switch output {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		return enc.Encode(reports)
	case "table":
	default:
		return fmt.Errorf("unknown output format %q", output)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "POLICY\tPLACED\tREJECTED\tRELOADS\tTOTAL WAIT\tMEAN WAIT\tMAX WAIT")
	for _, r := range reports {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t%s\t%s\n",
			r.Policy,
			len(r.Decisions),
			len(r.Rejected),
			r.Reloads,
			r.TotalWait,
			r.MeanWait(),
			r.MaxWait,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if !decisions {
		return nil
	}
	for _, r := range reports {
		fmt.Printf("\n%s:\n", r.Policy)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STEP\tTASK\tORIGIN\tENVIRONMENT\tWORKER\tREASON\tRELOAD\tWAIT")
		for _, d := range r.Decisions {
			task := d.TaskID
			if d.Orphan {
				task += " (orphan)"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
				d.Step, task, d.Origin, d.Environment, d.Worker, d.Reason, d.Reload, d.Wait)
		}
		for _, rej := range r.Rejected {
			fmt.Fprintf(w, "%d\t%s\t\t\t-\trejected: %s\t\t\n", rej.Step, rej.TaskID, rej.Error)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}
