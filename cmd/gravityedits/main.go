package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kikiluvv/gravityedits/internal/config"
	"github.com/kikiluvv/gravityedits/internal/logging"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	cfgFile string
	verbose bool
	jsonLog bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gravityedits",
	Short: "gravityedits - timeline render engine",
	Long:  "Renders edit decision lists into finished videos: trims, grades, overlays text, mixes audio and encodes with ffmpeg.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logging
		logging.Init(logging.Options{Verbose: verbose, JSON: jsonLog})

		// Load config
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		// Store config in context
		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonLog, "json", false, "log as JSON lines")

	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(subtitlesCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(gradeCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration to a file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil {
			return &os.PathError{Op: "init", Path: path, Err: os.ErrExist}
		}
		return config.Default().Save(path)
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
