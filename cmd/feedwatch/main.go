package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/feedwatch/feedwatch/pkg/bus"
	"github.com/feedwatch/feedwatch/pkg/config"
	"github.com/feedwatch/feedwatch/pkg/engine"
	"github.com/feedwatch/feedwatch/pkg/log"
	"github.com/feedwatch/feedwatch/pkg/metrics"
	"github.com/feedwatch/feedwatch/pkg/plugin"

	// plugin load phase: importing a plugin package registers it
	_ "github.com/feedwatch/feedwatch/pkg/plugins/execute"
	_ "github.com/feedwatch/feedwatch/pkg/plugins/file"
	_ "github.com/feedwatch/feedwatch/pkg/plugins/filters"
	_ "github.com/feedwatch/feedwatch/pkg/plugins/rss"
	_ "github.com/feedwatch/feedwatch/pkg/plugins/url"
	_ "github.com/feedwatch/feedwatch/pkg/plugins/webhook"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	GitCommit = "unknown"
)

var (
	flagConfig      string
	flagLogLevel    string
	flagLogJSON     bool
	flagMetricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "feedwatch",
	Short: "Watch content sources and route records through processing chains",
	Long: `Feedwatch is a long-running agent that polls configured content sources
(feeds, URLs, files), turns their output into records, routes the records
through user-defined chains of filters, and dispatches side effects:
file writes, subprocess invocations, webhook deliveries.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "config.yml", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "Log in JSON format")

	runCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(pluginsCmd)
	rootCmd.AddCommand(versionCmd)

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	log.Init(log.Config{
		Level:      log.Level(flagLogLevel),
		JSONOutput: flagLogJSON,
		Output:     os.Stdout,
	})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Load the configuration and run the agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := config.LoadFile(flagConfig)
		if err != nil {
			return err
		}

		e, err := engine.New(result, bus.Default())
		if err != nil {
			return err
		}

		if flagMetricsAddr != "" {
			go func() {
				if err := metrics.Serve(flagMetricsAddr); err != nil {
					log.Errorf("metrics endpoint failed", err)
				}
			}()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log.Logger.Info().Str("version", Version).Str("config", flagConfig).
			Msg("feedwatch starting")
		return e.Run(ctx)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration file and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := config.LoadFile(flagConfig)
		if err != nil {
			return err
		}
		fmt.Printf("Configuration OK: %d actors, %d chains\n", len(result.Actors), len(result.Chains))
		return nil
	},
}

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List the registered plugins",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range plugin.Names() {
			fmt.Println(name)
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("feedwatch %s (%s)\n", Version, GitCommit)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
