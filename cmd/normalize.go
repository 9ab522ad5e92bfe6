package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"invoicer/internal/invoice"
	"invoicer/internal/logger"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize [file|-]",
	Short: "Normalize raw model output into invoice data",
	Long: `Run the extraction normalizer on raw model output.

The input may be wrapped in markdown code fences and may use snake_case keys.
Missing vendor names, invoice numbers and dates are filled with the same
defaults the API applies. Reads stdin when the argument is "-" or absent.`,
	Example: `  # Normalize a saved model response
  invoicer normalize response.txt

  # Pipe model output in
  cat response.txt | invoicer normalize`,
	Args: cobra.MaximumNArgs(1),
	RunE: runNormalize,
}

func init() {
	rootCmd.AddCommand(normalizeCmd)

	normalizeCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
}

func runNormalize(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("normalize")
	outputPath, _ := cmd.Flags().GetString("output")

	var (
		raw []byte
		err error
	)
	if len(args) == 0 || args[0] == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	data := invoice.NewNormalizer().Normalize(string(raw))

	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to create JSON output: %w", err)
	}
	return writeOutput(append(out, '\n'), outputPath, log)
}
