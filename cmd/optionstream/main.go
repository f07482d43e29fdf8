package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"optionstream/internal/cli"
	"optionstream/internal/config"
	"optionstream/internal/logging"
)

func main() {
	// Optional; local development overrides live in .env.
	_ = godotenv.Load()

	configDir := os.Getenv("OPTIONSTREAM_CONFIG_DIR")
	cfg, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logCfg := logging.DefaultLogConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Console = cfg.Logging.Console
	logCfg.File = cfg.Logging.File
	logger := logging.NewLoggerWithConfig(logCfg)

	rootCmd := cli.NewRootCmd(cfg, logger)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
