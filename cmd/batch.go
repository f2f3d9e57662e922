package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"finscan/internal/logger"
	"finscan/internal/pipeline"
	"finscan/internal/report"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch [folder]",
	Short: "Process every PDF and page image in a folder",
	Long: `Process all PDFs and page images (PNG, JPEG, TIFF, BMP) in a folder.

Documents are processed by a pool of BATCH_WORKERS workers. All workers share
one pipeline, so the OCR accelerator gate and the CPU pool bound the total
load regardless of the number of documents in flight.

With --output-dir every result is written as <name>.json; with --sheet the
findings of all documents are appended to GOOGLE_SHEET_URL at the end.`,
	Example: `  # Process a folder and print one line per document
  finscan batch ./reports

  # Keep JSON results and export all findings
  finscan batch ./reports --output-dir ./results --sheet`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

var batchFlags pipelineFlags

// batchJob is one document for a worker
type batchJob struct {
	Path  string
	Index int
}

// batchResult is the outcome of one document
type batchResult struct {
	Path   string
	Result *pipeline.Result
	Err    error
}

var inputExtensions = []string{".pdf", ".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp"}

func init() {
	rootCmd.AddCommand(batchCmd)

	addPipelineFlags(batchCmd, &batchFlags)
	batchCmd.Flags().String("output-dir", "", "Write one JSON result per document into this folder")
	batchCmd.Flags().Bool("sheet", false, "Append all findings to GOOGLE_SHEET_URL")
	batchCmd.Flags().Int("workers", 0, "Documents processed in parallel (default BATCH_WORKERS)")
}

func runBatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("batch")

	outputDir, _ := cmd.Flags().GetString("output-dir")
	toSheet, _ := cmd.Flags().GetBool("sheet")
	workers, _ := cmd.Flags().GetInt("workers")

	folder := args[0]

	cfg, err := requireConfig()
	if err != nil {
		return err
	}
	if toSheet && cfg.GoogleSheetURL == "" {
		return errors.New("--sheet needs GOOGLE_SHEET_URL")
	}
	if workers <= 0 {
		workers = cfg.BatchWorkers
	}

	info, err := os.Stat(folder)
	if err != nil {
		return fmt.Errorf("folder not found: %s", folder)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", folder)
	}
	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output folder: %w", err)
		}
	}

	files, err := findInputFiles(folder)
	if err != nil {
		return fmt.Errorf("failed to list input files: %w", err)
	}
	if len(files) == 0 {
		fmt.Println("No PDF or image files found in folder.")
		return nil
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	deps, err := buildPipeline(ctx, cfg, batchFlags, log)
	if err != nil {
		return err
	}
	defer deps.Close(log)

	log.Info().
		Str("folder", folder).
		Int("files", len(files)).
		Int("workers", workers).
		Msg("Starting batch processing")
	fmt.Printf("Processing %d documents with %d workers...\n\n", len(files), workers)

	results := processInParallel(ctx, deps.pipe, files, workers, outputDir, log)

	var ok []*pipeline.Result
	counts := map[pipeline.Status]int{}
	aborted := 0
	for _, r := range results {
		if r.Err != nil {
			aborted++
			continue
		}
		ok = append(ok, r.Result)
		counts[r.Result.Summary.Status]++
	}

	fmt.Println()
	fmt.Printf("Done: %d success, %d warning, %d partial, %d failed, %d aborted\n",
		counts[pipeline.StatusSuccess], counts[pipeline.StatusWarning],
		counts[pipeline.StatusPartial], counts[pipeline.StatusFailed], aborted)

	if toSheet && len(ok) > 0 {
		if err := exportToSheet(ctx, cfg.GoogleSheetURL, cfg.GoogleSheetWorksheet, ok, log); err != nil {
			return err
		}
	}

	if ctx.Err() != nil {
		return fmt.Errorf("batch processing was canceled")
	}
	if aborted > 0 || counts[pipeline.StatusFailed] > 0 {
		return fmt.Errorf("%d of %d documents failed", aborted+counts[pipeline.StatusFailed], len(files))
	}
	return nil
}

// findInputFiles lists the PDFs and images directly inside folder, sorted by name
func findInputFiles(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(inputExtensions, strings.ToLower(filepath.Ext(e.Name()))) {
			files = append(files, filepath.Join(folder, e.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}

// processInParallel runs the documents through a worker pool and returns the
// results in input order
func processInParallel(ctx context.Context, pipe *pipeline.Pipeline, files []string, numWorkers int, outputDir string, log zerolog.Logger) []batchResult {
	jobs := make(chan batchJob, len(files))
	results := make([]batchResult, len(files))

	var processed int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for job := range jobs {
				if ctx.Err() != nil {
					results[job.Index] = batchResult{Path: job.Path, Err: ctx.Err()}
					continue
				}
				log.Debug().
					Int("worker", workerID).
					Str("file", job.Path).
					Int("index", job.Index+1).
					Msg("Worker processing document")

				res, err := processFile(ctx, pipe, job.Path)
				if err == nil && outputDir != "" {
					err = writeJSONFile(filepath.Join(outputDir, jsonName(job.Path)), res)
				}
				results[job.Index] = batchResult{Path: job.Path, Result: res, Err: err}

				mu.Lock()
				processed++
				fmt.Printf("[%d/%d] %s - %s\n", processed, len(files), filepath.Base(job.Path), progressNote(res, err))
				mu.Unlock()
			}
		}(w)
	}

	for i, f := range files {
		jobs <- batchJob{Path: f, Index: i}
	}
	close(jobs)

	wg.Wait()
	return results
}

func progressNote(res *pipeline.Result, err error) string {
	if err != nil {
		return report.StatusStyle(pipeline.StatusFailed).Render("aborted") + " (" + err.Error() + ")"
	}
	s := res.Summary
	return fmt.Sprintf("%s (%d pages, %d errors, %d warnings)",
		report.StatusStyle(s.Status).Render(string(s.Status)), s.Pages, s.Errors, s.Warnings)
}

func jsonName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".json"
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
