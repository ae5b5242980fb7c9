// Package main provides the entry point for the content writer server and CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "writer_agent",
	Short: "Content Writer pipeline server and CLI",
	Long: `Content Writer drives an article through five generation stages: knowledge building,
header generation, RAG building, brief creation and section-by-section content generation.

Configuration is read from an optional JSON or YAML file (--config) and overridden by environment
variables. A .env file in the working directory is loaded first if present.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a JSON or YAML config file (environment variables override its values)")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
