package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/saint0x/ggchangelog/pkg/log"
)

var (
	debug     bool
	serverURL string
)

var rootCmd = &cobra.Command{
	Use:   "ggchangelog",
	Short: "AI-generated changelogs for GitHub repositories",
	Long: `ggchangelog collects the commits of a GitHub repository over a time window,
asks a language model which of them are customer-facing API changes, and
keeps a categorized changelog per repository.

Use 'ggchangelog serve' to run the API server and 'ggchangelog generate'
to produce a changelog through it.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	defaultServer := os.Getenv("GGCHANGELOG_SERVER")
	if defaultServer == "" {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		defaultServer = "http://localhost:" + port
	}

	rootCmd.PersistentFlags().BoolVar(&debug, "debug", os.Getenv("DEBUG") == "true", "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "Base URL of the changelog server")
}

func newLogger() *log.Logger {
	return log.New(debug)
}
