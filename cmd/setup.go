package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"finscan/internal/checks"
	"finscan/internal/config"
	"finscan/internal/ocr"
	"finscan/internal/pipeline"
	"finscan/internal/semantic"
	"finscan/internal/snapshot"
	"finscan/internal/tables"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
)

// pipelineFlags are shared by the commands that run documents
type pipelineFlags struct {
	engine  string
	tables  bool
	hints   bool
	strict  bool
	lenient bool
	timeout time.Duration
}

func addPipelineFlags(cmd *cobra.Command, f *pipelineFlags) {
	cmd.Flags().StringVar(&f.engine, "engine", "", "OCR engines, first is the default (tesseract, vision, tesseract,vision or none); overrides OCR_ENGINE")
	cmd.Flags().BoolVar(&f.tables, "tables", false, "Recover table structure on OCR pages with Document AI")
	cmd.Flags().BoolVar(&f.hints, "hints", false, "Ask OpenAI for advisory labels on unclassified pages")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "Fail the OCR gate on any page with bad quality")
	cmd.Flags().BoolVar(&f.lenient, "lenient", false, "Report OCR gate failures as warnings")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Processing budget per document (default DOCUMENT_TIMEOUT)")
	cmd.MarkFlagsMutuallyExclusive("strict", "lenient")
}

// runtimeDeps holds the pipeline and everything that must be closed with it
type runtimeDeps struct {
	pipe    *pipeline.Pipeline
	closers []func() error
}

func (d *runtimeDeps) Close(log zerolog.Logger) {
	for _, c := range d.closers {
		if err := c(); err != nil {
			log.Warn().Err(err).Msg("Failed to close client")
		}
	}
}

// buildPipeline wires the engines, the table extractor and the hint provider
// selected by cfg and flags
func buildPipeline(ctx context.Context, cfg *config.Config, f pipelineFlags, log zerolog.Logger) (*runtimeDeps, error) {
	pcfg := cfg.Pipeline()
	if f.timeout > 0 {
		pcfg.DocumentTimeout = f.timeout
	}
	switch {
	case f.strict:
		pcfg.Checks.GateMode = checks.ModeStrict
	case f.lenient:
		pcfg.Checks.GateMode = checks.ModeLenient
	}

	deps := &runtimeDeps{}
	var opts []pipeline.Option

	engineSpec := cfg.OCREngine
	if f.engine != "" {
		engineSpec = f.engine
	}
	names, err := config.ParseEngines(engineSpec)
	if err != nil {
		return nil, err
	}
	var engines []ocr.Engine
	for _, name := range names {
		switch name {
		case "tesseract":
			engines = append(engines, ocr.NewTesseractEngine(pcfg.Languages...))
		case "vision":
			v, err := createVisionEngine(ctx, log)
			if err != nil {
				deps.Close(log)
				return nil, err
			}
			deps.closers = append(deps.closers, v.Close)
			engines = append(engines, ocr.NewRateLimited(v, cfg.VisionRateLimit, 1))
		}
	}
	if len(engines) > 0 {
		opts = append(opts, pipeline.WithOCR(engines...))
	}

	if f.tables {
		x, err := tables.NewDocumentAIExtractor(ctx)
		if err != nil {
			deps.Close(log)
			return nil, handleRunError(err, log)
		}
		deps.closers = append(deps.closers, x.Close)
		opts = append(opts, pipeline.WithTables(x))
	}

	if f.hints {
		if cfg.OpenAIAPIKey == "" {
			deps.Close(log)
			return nil, errors.New("--hints needs OPENAI_API_KEY")
		}
		opts = append(opts, pipeline.WithHints(semantic.NewOpenAIHints(openai.NewClient(cfg.OpenAIAPIKey), cfg.OpenAIModel)))
	}

	log.Debug().
		Strs("engines", names).
		Bool("tables", f.tables).
		Bool("hints", f.hints).
		Str("gate_mode", pcfg.Checks.GateMode).
		Dur("budget", pcfg.DocumentTimeout).
		Msg("Pipeline configured")

	deps.pipe = pipeline.New(pcfg, opts...)
	return deps, nil
}

// createVisionEngine creates the Vision client with a readable credentials error
func createVisionEngine(ctx context.Context, log zerolog.Logger) (*ocr.VisionEngine, error) {
	hasCredentials := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" || os.Getenv("GOOGLE_CREDENTIALS") != ""
	if !hasCredentials {
		log.Error().Msg("Google Cloud credentials not configured")
		return nil, fmt.Errorf("Google Cloud credentials not configured. Please set one of:\n\n" +
			"1. Export GOOGLE_APPLICATION_CREDENTIALS with path to service account JSON:\n" +
			"   export GOOGLE_APPLICATION_CREDENTIALS=/path/to/service-account-key.json\n\n" +
			"2. Export GOOGLE_CREDENTIALS with inline JSON\n\n" +
			"3. Or run with --engine tesseract")
	}

	v, err := ocr.NewVisionEngine(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create Vision engine")
		return nil, handleRunError(err, log)
	}
	log.Debug().Msg("Vision engine created")
	return v, nil
}

// openStore opens the golden snapshot store at the configured path
func openStore(cfg *config.Config) (*snapshot.Store, error) {
	store, err := snapshot.Open(cfg.SnapshotDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store %s: %w", cfg.SnapshotDB, err)
	}
	return store, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling processing")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// validateInputFile checks that path is a readable, non-empty regular file
func validateInputFile(path string, log zerolog.Logger) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().Str("file", path).Msg("Input file not found")
			return nil, fmt.Errorf("file not found: %s", path)
		}
		if os.IsPermission(err) {
			log.Error().Str("file", path).Msg("Permission denied accessing input file")
			return nil, fmt.Errorf("permission denied accessing file: %s", path)
		}
		return nil, fmt.Errorf("error accessing file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("path is not a regular file: %s", path)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("file is empty: %s", path)
	}
	return info, nil
}

// handleRunError turns pipeline and engine failures into actionable messages
func handleRunError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Processing failed")

	errStr := err.Error()

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("processing timed out. Try increasing --timeout")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("processing was canceled")
	case errors.Is(err, pipeline.ErrNoPages):
		return fmt.Errorf("the document has no pages")
	case errors.Is(err, pipeline.ErrUnreadableInput):
		return fmt.Errorf("the file is not a readable PDF or image. Please check the file integrity: %w", err)
	case errors.Is(err, ocr.ErrMissingCredentials), errors.Is(err, tables.ErrMissingCredentials):
		return fmt.Errorf("Google Cloud credentials are missing. Set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS: %w", err)
	case errors.Is(err, tables.ErrInvalidConfiguration):
		return fmt.Errorf("Document AI is not configured. Set GOOGLE_CLOUD_PROJECT and DOCUMENT_AI_PROCESSOR_ID: %w", err)
	case strings.Contains(errStr, "Unauthenticated") ||
		strings.Contains(errStr, "invalid_grant") ||
		strings.Contains(errStr, "transport: per-RPC creds failed"):
		return fmt.Errorf("Google Cloud authentication failed. Please check your credentials: %v", err)
	case strings.Contains(errStr, "PERMISSION_DENIED"):
		return fmt.Errorf("permission denied. Please ensure the service account has the Cloud Vision and Document AI roles")
	case strings.Contains(errStr, "QUOTA_EXCEEDED") || errors.Is(err, tables.ErrQuotaExceeded):
		return fmt.Errorf("Google Cloud quota exceeded. Check your project quotas in the Google Cloud Console")
	default:
		return fmt.Errorf("processing failed: %w", err)
	}
}
