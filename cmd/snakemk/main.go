// Command snakemk is the CLI front end of §6: it loads a rules file, resolves
// the requested targets, and either schedules them, dry-runs them, touches
// them, or prints their dependency graph as DOT, depending on the flags
// below. Grounded on handleui-detent's cobra root command, trimmed to a
// single-command surface since this driver has no subcommands.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tstannius/snakemake"
	"github.com/tstannius/snakemake/internal/buildlog"
	"github.com/tstannius/snakemake/internal/config"
	"github.com/tstannius/snakemake/internal/ruleparser"
)

var (
	flagRulesFile  string
	flagCores      int
	flagDryrun     bool
	flagTouch      bool
	flagDag        bool
	flagForceAll   bool
	flagForceThis  []string
	flagCluster    string
	flagReason     bool
	flagVerbose    bool
	flagConfigFile string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snakemk [targets...]",
		Short: "Resolve and run a rule-based build graph",
		RunE:  runRoot,
	}

	cmd.Flags().StringVarP(&flagRulesFile, "rules", "f", "rules.toml", "rules file to load")
	cmd.Flags().IntVar(&flagCores, "cores", 0, "maximum total thread budget (0: resolve from config/env/default)")
	cmd.Flags().BoolVar(&flagDryrun, "dryrun", false, "print what would run without running it")
	cmd.Flags().BoolVar(&flagTouch, "touch", false, "mark outputs up to date without running recipes")
	cmd.Flags().BoolVar(&flagDag, "dag", false, "print the resolved dependency graph as DOT and exit")
	cmd.Flags().BoolVar(&flagForceAll, "forceall", false, "rerun every resolved job regardless of staleness")
	cmd.Flags().StringSliceVar(&flagForceThis, "forcethis", nil, "rerun these rules regardless of staleness")
	cmd.Flags().StringVar(&flagCluster, "cluster", "", "submit command template for cluster-mode scheduling")
	cmd.Flags().BoolVar(&flagReason, "reason", false, "print why each job needs to run")
	cmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.Flags().StringVar(&flagConfigFile, "config", "snakemkfile.toml", "project config file")

	return cmd
}

func runRoot(cmd *cobra.Command, targets []string) error {
	ctx := context.Background()
	logger := buildlog.New(flagVerbose)

	cfgFile, err := config.Load(flagConfigFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	w := snakemake.NewWorkflow()
	if _, err := w.Include(flagRulesFile, ruleparser.TOMLParser{}); err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}

	cores := config.ResolveCores(flagCores, cfgFile)
	w.SetCores(cores)
	cluster := config.ResolveCluster(flagCluster, cfgFile)

	forceThis := map[string]bool{}
	for _, name := range flagForceThis {
		forceThis[name] = true
	}
	flags := snakemake.Flags{ForceAll: flagForceAll, ForceThis: forceThis}

	resolved, err := w.RunRules(targets, flags)
	if err != nil {
		return err
	}

	if flagDag {
		return snakemake.PrintDAG(os.Stdout, resolved)
	}

	kind := snakemake.Local
	if cluster != "" {
		kind = snakemake.Cluster
	}
	sched := snakemake.NewScheduler(kind, cores, cluster, logger, w)
	sched.Reason = flagReason

	mode := snakemake.Normal
	switch {
	case flagDryrun:
		mode = snakemake.Dryrun
	case flagTouch:
		mode = snakemake.Touch
	}

	summary, err := sched.Run(ctx, resolved, mode)
	if err != nil {
		if len(summary.Failed) > 0 {
			for _, j := range summary.Failed {
				logger.Errorf("rule %q (job %d) did not complete", j.Rule.Name, j.Seq)
			}
		}
		return err
	}

	done, total, percent := w.Counter().Snapshot()
	logger.Infof("%d/%d jobs complete (%.0f%%)", done, total, percent)
	return nil
}
