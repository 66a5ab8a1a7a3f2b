package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/acolita/appliance-shell/internal/config"
	"github.com/acolita/appliance-shell/internal/session"
)

var parallel int

var promptCmd = &cobra.Command{
	Use:   "prompt <pattern>",
	Short: "Print the base prompt of matching appliances",
	Long: `Connect to every appliance whose name matches a glob, prepare the
session and print the discovered base prompt.

Examples:
  appliance-shell prompt lobby-ap
  appliance-shell prompt 'site1/**'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPrepare(args[0], false)
	},
}

var prepareCmd = &cobra.Command{
	Use:   "prepare <pattern>",
	Short: "Prepare matching appliances and report their mode",
	Long: `Connect to every appliance whose name matches a glob, disable paging,
discover the prompt and probe whether the shell sits in configuration
mode. Appliances are handled in parallel.

Examples:
  appliance-shell prepare '*'
  appliance-shell prepare 'lobby-*' --parallel 4`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPrepare(args[0], true)
	},
}

func init() {
	for _, c := range []*cobra.Command{promptCmd, prepareCmd} {
		c.Flags().IntVarP(&parallel, "parallel", "p", 8, "Maximum appliances handled at once")
	}
}

type prepareResult struct {
	name     string
	prompt   string
	inConfig bool
	elapsed  time.Duration
	err      error
}

func runPrepare(pattern string, probe bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	targets, err := cfg.Match(pattern)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("no appliance matches %q", pattern)
	}

	mgr, err := newManager(cfg, true)
	if err != nil {
		return err
	}
	defer mgr.CloseAll()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results := prepareAll(ctx, mgr, targets, probe)
	return printResults(results, probe)
}

// prepareAll connects to every target with at most parallel in flight. One
// appliance failing does not cancel the others.
func prepareAll(ctx context.Context, mgr *session.Manager, targets []config.ApplianceConfig, probe bool) []prepareResult {
	results := make([]prepareResult, len(targets))

	var g errgroup.Group
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, a := range targets {
		g.Go(func() error {
			results[i] = prepareOne(ctx, mgr, a.Name, probe)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func prepareOne(ctx context.Context, mgr *session.Manager, name string, probe bool) prepareResult {
	res := prepareResult{name: name}
	start := time.Now()

	sess, err := mgr.Connect(ctx, name)
	if err != nil {
		res.err = err
		res.elapsed = time.Since(start)
		return res
	}
	defer mgr.Close(sess.ID)

	res.prompt = sess.BasePrompt()
	if probe {
		res.inConfig, res.err = sess.IsInConfigMode(ctx)
	}
	res.elapsed = time.Since(start)
	return res
}

func printResults(results []prepareResult, probe bool) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if probe {
		fmt.Fprintln(w, "APPLIANCE\tPROMPT\tMODE\tTIME\tERROR")
	} else {
		fmt.Fprintln(w, "APPLIANCE\tPROMPT\tERROR")
	}

	failed := 0
	for _, r := range results {
		errText := ""
		if r.err != nil {
			failed++
			errText = r.err.Error()
		}
		if probe {
			mode := "operational"
			if r.inConfig {
				mode = "config"
			}
			if r.err != nil {
				mode = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.name, r.prompt, mode, r.elapsed.Round(time.Millisecond), errText)
		} else {
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.name, r.prompt, errText)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d appliance(s) failed", failed, len(results))
	}
	return nil
}
