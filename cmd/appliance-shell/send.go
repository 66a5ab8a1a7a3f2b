package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/acolita/appliance-shell/internal/recovery"
)

var configLines bool

var sendCmd = &cobra.Command{
	Use:   "send <appliance> <command>...",
	Short: "Send a command to one appliance and print its output",
	Long: `Connect to an appliance, prepare the session and send a command.
With --config every argument is a configuration line, applied inside
configuration mode.

Examples:
  appliance-shell send lobby-ap show version
  appliance-shell send lobby-ap --config "ssid lobby" "ssid lobby band 5"`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSend,
}

var configModeCmd = &cobra.Command{
	Use:       "config-mode <appliance> enter|exit|check",
	Short:     "Enter, exit or check configuration mode",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"enter", "exit", "check"},
	RunE:      runConfigMode,
}

func init() {
	sendCmd.Flags().BoolVar(&configLines, "config", false, "Treat arguments as configuration lines")
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mgr, err := newManager(cfg, true)
	if err != nil {
		return err
	}
	defer mgr.CloseAll()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, err := mgr.Connect(ctx, args[0])
	if err != nil {
		return err
	}

	var out string
	if configLines {
		out, err = sess.SendConfig(ctx, args[1:])
	} else {
		out, err = sess.Send(ctx, strings.Join(args[1:], " "))
	}
	fmt.Fprint(os.Stdout, out)
	if err != nil {
		return err
	}

	for _, h := range recovery.NewAnalyzer().Analyze(strings.Join(args[1:], " "), out) {
		fmt.Fprintf(os.Stderr, "hint: %s\n", h.Problem)
		for _, c := range h.Commands {
			fmt.Fprintf(os.Stderr, "  try: %s\n", c)
		}
	}
	return nil
}

func runConfigMode(cmd *cobra.Command, args []string) error {
	action := args[1]
	switch action {
	case "enter", "exit", "check":
	default:
		return fmt.Errorf("unknown action %q (want enter, exit or check)", action)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mgr, err := newManager(cfg, true)
	if err != nil {
		return err
	}
	defer mgr.CloseAll()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, err := mgr.Connect(ctx, args[0])
	if err != nil {
		return err
	}

	switch action {
	case "enter":
		_, err = sess.EnterConfigMode(ctx)
	case "exit":
		_, err = sess.ExitConfigMode(ctx)
	}
	if err != nil {
		return err
	}

	in, err := sess.IsInConfigMode(ctx)
	if err != nil {
		return err
	}
	if in {
		fmt.Printf("%s: config\n", args[0])
	} else {
		fmt.Printf("%s: operational\n", args[0])
	}
	return nil
}
