package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"showroom-approver/internal/approver"
	"showroom-approver/internal/components/chrono"
	"showroom-approver/internal/components/telemetry"
	"time"

	"github.com/spf13/cobra"
)

var (
	configPath *string
	logFormat  *string
	verbose    *bool
	dumpHttp   *string

	providers telemetry.Providers
)

var rootCmd = &cobra.Command{
	Use:           "showroom-approver",
	Short:         "showroom-approver approves pending event participation requests on the SHOWROOM organizer console.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		slog.SetDefault(slog.New(telemetry.NewSlogHandler(os.Stderr, *logFormat, *verbose)))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return providers.Shutdown(ctx)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	configPath = flags.String("config", "config.json5", "The config file, <name>.local.json5 next to it overrides it.")
	logFormat = flags.String("log-format", "text", "The log format, either text or json.")
	verbose = flags.BoolP("verbose", "v", false, "Enable verbose logging.")
	dumpHttp = flags.String("dump-http", "", "Write every raw request and response to this directory, cookies are redacted.")
}

// newService loads the config and builds the service every subcommand runs against.
func newService(ctx context.Context, options ...approver.ServiceOption) (*approver.Service, error) {
	cfg, err := approver.LoadConfig(*configPath)
	if err != nil {
		return nil, err
	}
	if *dumpHttp != "" {
		cfg.DumpHttpDir = *dumpHttp
	}

	providers, err = telemetry.Setup(ctx, "showroom-approver", cfg.Telemetry)
	if err != nil {
		slog.Warn("failed to setup otlp export, continuing without it", "err", err)
	}

	return approver.NewService(cfg, telemetry.NewSlogAPI(nil), chrono.NewStandardTime(), options...)
}

// instrumentProcess samples resource usage for the commands that keep running, when metrics
// are exported or verbose logging is on.
func instrumentProcess(ctx context.Context) {
	if providers.MeterProvider != nil || *verbose {
		telemetry.InstrumentPerfStats(ctx, telemetry.NewSlogAPI(nil), 30*time.Second)
	}
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
