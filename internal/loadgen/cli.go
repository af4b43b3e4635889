package loadgen

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/okian/worthrank/pkg/logger"
	"github.com/spf13/cobra"
)

// Default flag values.
const (
	defaultSubmissions = 2000
	defaultDuplicates  = 200
	defaultProbes      = 51
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultRunTimeout  = 10 * time.Minute
)

// NewCommand builds the loadgen root command.
func NewCommand() *cobra.Command {
	cfg := &Config{}
	var (
		logFormat  string
		runTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "loadgen",
		Short: "Drive a worthrank server and verify ranking behaviour",
		Long: `loadgen submits generated evaluations from distinct clients, repeats a
subset from the same clients, probes read-only ranks across the score range,
and verifies that repeats were not counted, probes did not write, and
percentiles never decrease as the score grows.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.InitWithOptions(logger.Options{Format: logFormat, Output: cmd.OutOrStdout()}); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			if cfg.Verbose {
				_ = logger.SetLevelString("debug")
			}
			if cfg.Workers < 1 {
				return fmt.Errorf("workers must be positive, got %d", cfg.Workers)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
			defer cancel()

			_, err := Run(ctx, cfg)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "Base URL of the service")
	flags.IntVar(&cfg.Submissions, "submissions", defaultSubmissions, "Number of distinct evaluations to submit")
	flags.IntVar(&cfg.Duplicates, "duplicates", defaultDuplicates, "Number of submissions to repeat from the same client")
	flags.IntVar(&cfg.Probes, "probes", defaultProbes, "Number of read-only rank probes across the score range")
	flags.IntVar(&cfg.Workers, "workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
	flags.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "HTTP request timeout")
	flags.DurationVar(&runTimeout, "run-timeout", defaultRunTimeout, "Overall run deadline")
	flags.StringVar(&cfg.OutputFile, "output", "", "Write generated submissions to this JSON file")
	flags.StringVar(&cfg.ClientPrefix, "client-prefix", "10.42", "First two octets of generated client addresses")
	flags.StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	flags.BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose logging")
	return cmd
}

// Execute runs the loadgen command and exits non-zero on failure.
func Execute(ctx context.Context) {
	if err := NewCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
