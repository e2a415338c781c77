package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/leoncowle/mastodon-misc/internal/components/telemetry"
	"github.com/leoncowle/mastodon-misc/lib/serviceutil"
	libtelemetry "github.com/leoncowle/mastodon-misc/lib/telemetry"

	"github.com/spf13/cobra"
)

var (
	configPath  *string
	debug       *bool
	reset       *bool
	savecurrent *bool
	lists       *string
	strict      *bool
	notifyFlag  *bool
	verbose     *bool
	tables      *bool
)

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "listdrift.json5", "The config file to read, <name>.local.<ext> overrides it.")
	debug = rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging.")
	lists = rootCmd.PersistentFlags().String("lists", "", "Comma separated list ids to check, defaults to every list.")
	strict = rootCmd.PersistentFlags().Bool("strict", false, "Fail a list when the server returns the same member twice.")
	notifyFlag = rootCmd.PersistentFlags().Bool("notify", true, "Send removals through the configured notifiers.")

	reset = rootCmd.Flags().Bool("reset", false, "Save the current list members as the new baseline instead of comparing.")
	savecurrent = rootCmd.Flags().Bool("savecurrent", false, "Alias for --reset.")
	rootCmd.Flags().MarkHidden("savecurrent")
	verbose = rootCmd.Flags().Bool("verbose", false, "Print members that are still present.")
	tables = rootCmd.Flags().Bool("tables", false, "Print a per list summary table after comparing.")
}

var rootCmd = &cobra.Command{
	Use:   "listdrift [--reset] [--lists <id,id>] [--config <path>]",
	Short: "listdrift detects accounts that silently dropped out of your Mastodon lists.",
	Long: `listdrift saves the members of every Mastodon list you own as a baseline,
then on later runs reports members that have disappeared from their list
along with members and lists that are new since the baseline was saved.`,
	Args: cobra.NoArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		libtelemetry.InitSlog(*debug)
	},
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig(cmd)
		cfg.Verbose = cfg.Verbose || *verbose
		cfg.Tables = cfg.Tables || *tables

		tel := telemetry.NewSlogAPI(slog.Default())
		a, err := buildApp(cmd.Context(), cfg, tel, cmd.OutOrStdout())
		if err != nil {
			serviceutil.Fatal("init", err)
		}
		defer a.Close()

		_, err = a.runner.Run(cmd.Context(), cfg.runOptions(*reset || *savecurrent, *notifyFlag))
		if err != nil {
			a.Close()
			serviceutil.Fatal("run", err)
		}
	},
}

// mustLoadConfig loads the config file and applies the flags shared by every
// command on top of it.
func mustLoadConfig(cmd *cobra.Command) Config {
	cfg, err := loadConfig(*configPath)
	if err != nil {
		serviceutil.Fatal("read config", err)
	}
	applyFlags(&cfg, *lists, cmd.Flags().Changed("strict"), *strict)
	return cfg
}

func applyFlags(cfg *Config, listFlag string, strictChanged, strictValue bool) {
	if listFlag != "" {
		cfg.Lists = nil
		for _, id := range strings.Split(listFlag, ",") {
			id = strings.TrimSpace(id)
			if id != "" {
				cfg.Lists = append(cfg.Lists, id)
			}
		}
	}
	if strictChanged {
		cfg.Strict = strictValue
	}
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
