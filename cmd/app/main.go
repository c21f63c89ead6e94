package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"AeroTrend/internal/di"
	"AeroTrend/internal/domain/models"
	"AeroTrend/internal/usecase"
	"AeroTrend/pkg/arinc429"
	"AeroTrend/pkg/config"
	"AeroTrend/pkg/metrics"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "aerotrend",
		Short:        "Streaming trend classifier for avionics telemetry",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newReplayCmd(), newBCDCmd(), &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "aerotrend %s\n", version)
		},
	})
	return root
}

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the configured ingestion sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithEnv(configPath)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}

			app, err := di.InitializeApp(cfg)
			if err != nil {
				return fmt.Errorf("app initialization failed: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", getEnvStr("AEROTREND_CONFIG", "config/config.yaml"), "config file path (empty uses defaults)")
	return cmd
}

func newReplayCmd() *cobra.Command {
	var (
		preset     string
		csvPath    string
		windowSize int
		strict     bool
		quiet      bool
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Classify recorded samples from a CSV file and print one JSON result per line",
		Long: `Replay feeds a CSV file through a fresh session. Each row is one tick.
A header row naming the channels may reorder columns, and a "t" column
supplies tick timestamps. Use "-" to read from stdin.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, closeIn, err := openInput(cmd, csvPath)
			if err != nil {
				return err
			}
			defer closeIn()

			mgr := usecase.NewSessionManager(nil, metrics.NewWithRegisterer(prometheus.NewRegistry()),
				usecase.WithWindowSize(windowSize),
			)
			if _, err := mgr.Create(cmd.Context(), usecase.CreateRequest{ID: "replay", Preset: preset}); err != nil {
				return err
			}

			out := json.NewEncoder(cmd.OutOrStdout())
			emit := func(r models.ClassificationResult) error {
				if quiet || !r.Warm {
					return nil
				}
				return out.Encode(r)
			}
			stats, err := usecase.NewReplayer(mgr).ReplayCSV(cmd.Context(), "replay", in, strict, emit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.ErrOrStderr())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
	cmd.Flags().StringVarP(&preset, "preset", "p", "generic", "session preset: generic or flight")
	cmd.Flags().StringVarP(&csvPath, "csv", "f", "-", "CSV file to replay")
	cmd.Flags().IntVarP(&windowSize, "window", "n", 0, "lookback window size (0 keeps the preset's)")
	cmd.Flags().BoolVar(&strict, "strict", false, "stop at the first rejected row")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the summary")
	return cmd
}

func newBCDCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bcd",
		Short: "ARINC 429 BCD field helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "decode <19 bits>",
		Short: "Decode a 19-bit BCD field",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			field, err := arinc429.ParseBits(args[0])
			if err != nil {
				return err
			}
			v, err := arinc429.DecodeBCDStrict(field)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%g\n", v)
			return nil
		},
	}, &cobra.Command{
		Use:   "encode <value>",
		Short: "Encode a value into a 19-bit BCD field",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var v float64
			if _, err := fmt.Sscan(args[0], &v); err != nil {
				return fmt.Errorf("parse value: %w", err)
			}
			field, err := arinc429.EncodeBCDStrict(v)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), arinc429.FormatBits(field))
			return nil
		},
	})
	return cmd
}

func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open csv: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func getEnvStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
