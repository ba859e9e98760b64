package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sjawhar/ghost-interviewer/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "ghost-interviewer",
	Short:        "Voice interview transcript pipeline",
	Long:         "Ghost Interviewer captures live interview transcripts, commits them durably and scores each completed interview exactly once.",
	SilenceUsage: true,
}

func init() {
	defaultConfig := os.Getenv(config.EnvPrefix + "CONFIG")
	if defaultConfig == "" {
		defaultConfig = "config.yaml"
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfig, "path to the YAML config file")

	rootCmd.AddCommand(runCmd, serveCmd, gatewayCmd, workerCmd)
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
