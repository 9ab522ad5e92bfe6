package cmd

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"invoicer/internal/config"
	"invoicer/internal/export"
	"invoicer/internal/logger"
	"invoicer/pkg/models"
)

const (
	formatXLSX   = "xlsx"
	formatSheets = "sheets"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored invoices to XLSX or Google Sheets",
	Long: `Export every stored invoice matching the query, oldest first.

xlsx writes a workbook with one row per invoice. sheets appends the same rows
to a Google Sheets worksheet, creating the worksheet and its header row when
missing. The sheet must be shared with the service account.

Requires MONGODB_URI. The sheets format also requires
GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS.`,
	Example: `  # Write all invoices to invoices.xlsx
  invoicer export -o invoices.xlsx

  # Only invoices from one vendor
  invoicer export -q "acme" -o acme.xlsx

  # Append to a Google Sheet
  invoicer export --format sheets --sheet-url "https://docs.google.com/spreadsheets/d/abc123/edit"`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("format", formatXLSX, "Export format: xlsx or sheets")
	exportCmd.Flags().StringP("query", "q", "", "Only invoices whose vendor name or number contains this text")
	exportCmd.Flags().StringP("output", "o", "invoices.xlsx", "Output file for xlsx (\"-\" for stdout)")
	exportCmd.Flags().String("sheet-url", "", "Google Sheets URL (default: GOOGLE_SHEET_URL)")
	exportCmd.Flags().Duration("timeout", 2*time.Minute, "Export timeout")
}

func runExport(cmd *cobra.Command, _ []string) error {
	log := logger.WithComponent("export")

	format, _ := cmd.Flags().GetString("format")
	query, _ := cmd.Flags().GetString("query")
	outputPath, _ := cmd.Flags().GetString("output")
	sheetURL, _ := cmd.Flags().GetString("sheet-url")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	if format != formatXLSX && format != formatSheets {
		return fmt.Errorf("unsupported format %q: use %s or %s", format, formatXLSX, formatSheets)
	}

	cfg := config.Read()
	if cfg.DatabaseDriver == config.DriverMemory || cfg.MongoURI == "" {
		return fmt.Errorf("export reads the invoice database: set MONGODB_URI")
	}
	if format == formatSheets && sheetURL == "" {
		sheetURL = cfg.GoogleSheetURL
	}
	if format == formatSheets && sheetURL == "" {
		return fmt.Errorf("--sheet-url or GOOGLE_SHEET_URL is required for the sheets format")
	}

	ctx, cancel := createContextWithTimeout(timeout, log)
	defer cancel()

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	repo, err := openRepository(ctx, db)
	if err != nil {
		return err
	}

	invoices, err := export.Collect(ctx, repo, query)
	if err != nil {
		return fmt.Errorf("failed to load invoices: %w", err)
	}
	log.Info().
		Int("count", len(invoices)).
		Str("query", query).
		Str("format", format).
		Msg("Exporting invoices")

	if format == formatSheets {
		return exportToSheets(ctx, cfg, sheetURL, invoices)
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, invoices); err != nil {
		return fmt.Errorf("failed to build workbook: %w", err)
	}
	if outputPath == "-" {
		outputPath = ""
	}
	return writeOutput(buf.Bytes(), outputPath, log)
}

func exportToSheets(ctx context.Context, cfg *config.Config, sheetURL string, invoices []models.Invoice) error {
	exporter, err := export.NewSheetsExporter(ctx, cfg, sheetURL)
	if err != nil {
		return err
	}
	if err := exporter.Export(ctx, invoices); err != nil {
		return fmt.Errorf("failed to export to Google Sheets: %w", err)
	}
	fmt.Printf("Exported %d invoices to %s\n", len(invoices), sheetURL)
	return nil
}
