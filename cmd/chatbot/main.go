package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"enterprise-chatbot/internal/config"
	"enterprise-chatbot/pkg/logging/logging"
)

var version = "dev"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "chatbot",
		Short:         "Enterprise chatbot simulator with response caching and instance autoscaling",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CHATBOT_CONFIG"), "path to YAML config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newLoadTestCmd(&configPath),
		newReportCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the file at path, applies environment overrides and
// validates the result.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.NewLogger(logging.Options{
		Env:   cfg.Log.Env,
		Level: cfg.Log.Level,
	})
	if err != nil {
		return nil, err
	}
	logging.SetDefault(logger)
	return logger, nil
}
