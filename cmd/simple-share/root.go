package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/httplog/v2"
	"github.com/spf13/cobra"

	"github.com/tendant/simple-share/pkg/simpleshare/config"
)

var (
	configFile string
	envFiles   []string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "simple-share",
	Short: "Ephemeral content sharing behind 4-digit keys",
	Long: `simple-share stores text, images and files under a random 4-digit key.
Bundles are readable for two hours and can be deleted early by anyone holding the key.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (yaml, json, toml or .env)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(envCmd)
}

// loadConfig layers defaults, dotenv files, the config file and the environment
func loadConfig(extra ...config.Option) (*config.ServerConfig, error) {
	opts := []config.Option{
		config.WithDotEnv(envFiles...),
		config.WithConfigFile(configFile),
		config.WithEnv(),
	}
	opts = append(opts, extra...)

	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger: JSON in production, concise text otherwise
func newLogger(cfg *config.ServerConfig) *httplog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	logger := httplog.NewLogger("simple-share", httplog.Options{
		LogLevel:        level,
		JSON:            cfg.IsProduction(),
		Concise:         !cfg.IsProduction(),
		Tags:            map[string]string{"env": cfg.Environment},
		QuietDownRoutes: []string{"/health", "/metrics"},
		QuietDownPeriod: 30 * time.Second,
	})
	slog.SetDefault(logger.Logger)
	return logger
}

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "List the environment variables the server reads",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), config.EnvUsage())
	},
}
