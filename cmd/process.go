package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"finscan/internal/logger"
	"finscan/internal/pipeline"
	"finscan/internal/report"
	"finscan/internal/sheets"
	"finscan/internal/snapshot"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var processCmd = &cobra.Command{
	Use:   "process [file]",
	Short: "Classify and reconcile one financial report PDF or page image",
	Long: `Process one PDF (native, scanned or mixed) or a single page image.

Every page is classified as native, scan or mixed. Native text and vector
tables are read directly; scanned regions go through the OCR pass ladder and
keep the best scoring pass. The table of contents is reconciled with the
printed page numbers, every page gets a financial section label and the
consistency checks run over the extracted figures.

Required environment variables depend on the engines:
  --engine vision        GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS, GOOGLE_CLOUD_PROJECT
  --tables               DOCUMENT_AI_PROCESSOR_ID in addition
  --hints                OPENAI_API_KEY
  --sheet                GOOGLE_SHEET_URL`,
	Example: `  # Terminal report for a native annual report
  finscan process tilinpaatos-2024.pdf

  # Full JSON result to a file
  finscan process scan.pdf --json -o result.json

  # Scanned report with Vision as fallback engine and table recovery
  finscan process scan.pdf --engine tesseract,vision --tables

  # Compare against a stored golden snapshot and update it afterwards
  finscan process budget.pdf --golden budget --save-golden budget`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

var processFlags pipelineFlags

func init() {
	rootCmd.AddCommand(processCmd)

	addPipelineFlags(processCmd, &processFlags)
	processCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	processCmd.Flags().Bool("json", false, "Output the full result as JSON")
	processCmd.Flags().String("golden", "", "Diff against the golden snapshot with this name")
	processCmd.Flags().String("save-golden", "", "Store the resulting document as a golden snapshot with this name")
	processCmd.Flags().Bool("sheet", false, "Append the findings to GOOGLE_SHEET_URL")
}

func runProcess(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("process")

	outputPath, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	goldenName, _ := cmd.Flags().GetString("golden")
	saveGolden, _ := cmd.Flags().GetString("save-golden")
	toSheet, _ := cmd.Flags().GetBool("sheet")

	path := args[0]

	cfg, err := requireConfig()
	if err != nil {
		return err
	}
	if toSheet && cfg.GoogleSheetURL == "" {
		return errors.New("--sheet needs GOOGLE_SHEET_URL")
	}

	if _, err := validateInputFile(path, log); err != nil {
		return err
	}

	log.Info().
		Str("file", path).
		Str("output", outputPath).
		Bool("json", jsonOutput).
		Str("golden", goldenName).
		Msg("Starting processing")

	ctx, cancel := signalContext(log)
	defer cancel()

	deps, err := buildPipeline(ctx, cfg, processFlags, log)
	if err != nil {
		return err
	}
	defer deps.Close(log)

	var store *snapshot.Store
	if goldenName != "" || saveGolden != "" {
		if store, err = openStore(cfg); err != nil {
			return err
		}
		defer store.Close()
	}

	pipe := deps.pipe
	if goldenName != "" {
		golden, err := store.Load(ctx, goldenName)
		if err != nil {
			if errors.Is(err, snapshot.ErrNotFound) {
				return fmt.Errorf("no golden snapshot named %q. List them with: finscan golden list", goldenName)
			}
			return err
		}
		pipe = pipe.WithGoldenDocument(golden)
	}

	res, err := processFile(ctx, pipe, path)
	if err != nil {
		return handleRunError(err, log)
	}

	if saveGolden != "" {
		if err := store.Save(ctx, saveGolden, res.Document); err != nil {
			return fmt.Errorf("failed to save golden snapshot: %w", err)
		}
	}

	if toSheet {
		if err := exportToSheet(ctx, cfg.GoogleSheetURL, cfg.GoogleSheetWorksheet, []*pipeline.Result{res}, log); err != nil {
			return err
		}
	}

	if err := writeResult(res, outputPath, jsonOutput, log); err != nil {
		return err
	}

	if res.Summary.Status == pipeline.StatusFailed {
		return fmt.Errorf("run failed: %d errors over %d pages", res.Summary.Errors, res.Summary.Pages)
	}
	return nil
}

// processFile opens path as a PDF or image and runs it through pipe
func processFile(ctx context.Context, pipe *pipeline.Pipeline, path string) (*pipeline.Result, error) {
	in, err := pipeline.OpenInput(path, pipe.Config().ImageDPI)
	if err != nil {
		return nil, err
	}
	return pipe.Run(ctx, in, filepath.Base(path))
}

func exportToSheet(ctx context.Context, url, worksheet string, results []*pipeline.Result, log zerolog.Logger) error {
	svc, err := sheets.NewSheetsService(ctx, url)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create sheets service")
		return fmt.Errorf("failed to connect to Google Sheets: %w", err)
	}
	if err := svc.WriteResults(ctx, results, worksheet); err != nil {
		return fmt.Errorf("failed to write Google Sheet: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Findings written to Google Sheet %q\n", worksheet)
	return nil
}

// writeResult writes JSON or the terminal report to outputPath or stdout
func writeResult(res *pipeline.Result, outputPath string, jsonOutput bool, log zerolog.Logger) error {
	out := os.Stdout
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			log.Error().Err(err).Str("output_file", outputPath).Msg("Failed to create output file")
			return fmt.Errorf("failed to write output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("failed to write JSON output: %w", err)
		}
	} else {
		report.Render(out, res)
	}

	if outputPath != "" {
		log.Info().Str("output_file", outputPath).Msg("Result written to file")
	}
	return nil
}
