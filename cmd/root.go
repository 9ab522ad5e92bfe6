package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"invoicer/internal/config"
	"invoicer/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "invoicer",
	Short: "Invoicer - PDF invoice management with AI extraction",
	Long: `Invoicer stores uploaded PDF invoices, extracts structured invoice data
with an AI model chosen per request (Gemini, Groq or Google Document AI),
and keeps the reviewed records searchable.

Run "invoicer serve" to start the HTTP API used by the web UI. The other
commands run single steps of the pipeline locally.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads and validates the environment for commands that talk to
// external services.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("%w\nCheck your environment or .env file", err)
	}
	return cfg, nil
}
