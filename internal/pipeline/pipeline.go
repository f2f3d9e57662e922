// Package pipeline runs a document through page extraction, reading order,
// TOC reconciliation, classification and the consistency checks.
//
// Pages are processed concurrently by a bounded worker pool. Engine calls
// (OCR passes and table structure) share an accelerator gate, CPU-bound
// stages share a separate pool. Document-level stages start only after
// every page is finished or the document budget expires.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"
	"time"

	"finscan/internal/checks"
	"finscan/internal/imaging"
	"finscan/internal/logger"
	"finscan/internal/ocr"
	"finscan/internal/pagemode"
	"finscan/internal/quality"
	"finscan/internal/semantic"
	"finscan/internal/tables"
	"finscan/internal/toc"
	"finscan/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Config holds the pipeline tuning
type Config struct {
	PageWorkers      int
	CPUWorkers       int
	AcceleratorSlots int
	DocumentTimeout  time.Duration

	// FailGate is the error findings per page above which a run fails.
	FailGate float64

	// ImageDPI sizes the page of a single-image input.
	ImageDPI  int
	Languages []string

	Passes   []models.PassConfig
	Quality  quality.Thresholds
	PageMode pagemode.Thresholds
	Offset   toc.OffsetConfig
	Checks   checks.Config
	TOCTrust float64
}

// DefaultConfig returns the stock pipeline configuration
func DefaultConfig() Config {
	return Config{
		PageWorkers:      4,
		CPUWorkers:       runtime.NumCPU(),
		AcceleratorSlots: 1,
		DocumentTimeout:  30 * time.Minute,
		FailGate:         0.25,
		ImageDPI:         300,
		Languages:        []string{"fin", "eng"},
		Passes:           ocr.DefaultPasses(),
		Quality:          quality.DefaultThresholds(),
		PageMode:         pagemode.DefaultThresholds(),
		Offset:           toc.DefaultOffsetConfig(),
		Checks:           checks.DefaultConfig(),
		TOCTrust:         semantic.DefaultTOCTrust,
	}
}

// WithDefaults fills zero fields from DefaultConfig
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.PageWorkers <= 0 {
		c.PageWorkers = d.PageWorkers
	}
	if c.CPUWorkers <= 0 {
		c.CPUWorkers = d.CPUWorkers
	}
	if c.AcceleratorSlots <= 0 {
		c.AcceleratorSlots = d.AcceleratorSlots
	}
	if c.DocumentTimeout <= 0 {
		c.DocumentTimeout = d.DocumentTimeout
	}
	if c.FailGate <= 0 {
		c.FailGate = d.FailGate
	}
	if c.ImageDPI <= 0 {
		c.ImageDPI = d.ImageDPI
	}
	if len(c.Languages) == 0 {
		c.Languages = d.Languages
	}
	if len(c.Passes) == 0 {
		c.Passes = d.Passes
	}
	if c.TOCTrust <= 0 {
		c.TOCTrust = d.TOCTrust
	}
	c.Quality = c.Quality.WithDefaults()
	c.PageMode = c.PageMode.WithDefaults()
	c.Offset = c.Offset.WithDefaults()
	c.Checks = c.Checks.WithDefaults()
	return c
}

// Pipeline processes documents. It is safe to run several documents
// concurrently; they share the accelerator gate and the CPU pool.
type Pipeline struct {
	cfg        Config
	engines    []ocr.Engine
	selector   *ocr.Selector
	tables     tables.Extractor
	hints      semantic.HintProvider
	classifier *semantic.Classifier
	golden     *models.Document
	accel      *semaphore.Weighted
	cpu        *semaphore.Weighted
	now        func() time.Time
	log        zerolog.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithOCR sets the OCR engines. The first one runs passes that name no
// engine; the others are addressable by name from pass configs.
func WithOCR(engines ...ocr.Engine) Option {
	return func(p *Pipeline) { p.engines = engines }
}

// WithTables enables table structure recovery on OCR pages
func WithTables(e tables.Extractor) Option {
	return func(p *Pipeline) { p.tables = e }
}

// WithHints enables advisory labels for pages left at the fallback
func WithHints(h semantic.HintProvider) Option {
	return func(p *Pipeline) { p.hints = h }
}

// WithGolden compares every run against a golden document
func WithGolden(doc *models.Document) Option {
	return func(p *Pipeline) { p.golden = doc }
}

// New creates a Pipeline. Without an OCR engine, pages that need OCR keep
// their native elements and get a warning.
func New(cfg Config, opts ...Option) *Pipeline {
	cfg = cfg.WithDefaults()
	p := &Pipeline{
		cfg:   cfg,
		accel: semaphore.NewWeighted(int64(cfg.AcceleratorSlots)),
		cpu:   semaphore.NewWeighted(int64(cfg.CPUWorkers)),
		now:   time.Now,
		log:   logger.WithComponent("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.classifier = semantic.New(semantic.WithTOCTrust(cfg.TOCTrust), semantic.WithHints(p.hints))

	if len(p.engines) > 0 {
		selOpts := []ocr.SelectorOption{
			ocr.WithGate(p.accel),
			ocr.WithPreprocess(p.preprocess),
			ocr.WithThresholds(cfg.Quality),
		}
		for _, e := range p.engines[1:] {
			selOpts = append(selOpts, ocr.WithEngine(e))
		}
		p.selector = ocr.NewSelector(p.engines[0], selOpts...)
	}
	return p
}

// Result is the output of one run
type Result struct {
	Document *models.Document `json:"document"`
	Findings []models.Finding `json:"findings"`
	Summary  RunSummary       `json:"summary"`
}

// findingLog collects findings from concurrent page workers
type findingLog struct {
	mu       sync.Mutex
	pages    [][]models.Finding
	document []models.Finding
}

func (l *findingLog) add(f models.Finding) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if f.PageIndex != nil && *f.PageIndex >= 0 && *f.PageIndex < len(l.pages) {
		l.pages[*f.PageIndex] = append(l.pages[*f.PageIndex], f)
		return
	}
	l.document = append(l.document, f)
}

// flatten returns page findings in page order, then document findings
func (l *findingLog) flatten() []models.Finding {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Finding
	for _, fs := range l.pages {
		out = append(out, fs...)
	}
	return append(out, l.document...)
}

const checkerName = "pipeline"

// Run processes one document. It returns an error only when the input has
// no pages or ctx is cancelled; every page-level failure is recorded as a
// finding and reflected in the summary status.
func (p *Pipeline) Run(ctx context.Context, in Input, sourceName string) (*Result, error) {
	const op = "Run"

	started := p.now()
	runID := uuid.NewString()
	log := logger.WithRunID("pipeline", runID)

	n := in.PageCount()
	if n == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrNoPages)
	}
	log.Info().Str("source", sourceName).Int("pages", n).Msg("Processing document")

	pages := make([]models.Page, n)
	done := make([]bool, n)
	findings := &findingLog{pages: make([][]models.Finding, n)}

	docCtx, cancel := context.WithTimeout(ctx, p.cfg.DocumentTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(docCtx)
	g.SetLimit(p.cfg.PageWorkers)
	for i := range n {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			done[i] = p.processPage(gctx, in, pages, i, findings)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// barrier: every page is finished or abandoned from here on
	partial := false
	var unfinished []int
	for i := range pages {
		if done[i] {
			continue
		}
		partial = true
		unfinished = append(unfinished, i)
		pages[i].Index = i
		pages[i].Failed = true
		pages[i].Elements, pages[i].Margins = nil, nil
		if pages[i].Width <= 0 || pages[i].Height <= 0 {
			pages[i].Width, pages[i].Height = fallbackWidth, fallbackHeight
		}
		p.classifier.Pass1(pages[i : i+1])
	}
	if partial {
		log.Warn().Int("unfinished", len(unfinished)).Dur("budget", p.cfg.DocumentTimeout).Msg("Document budget expired")
		findings.add(models.NewFinding(checkerName, models.SeverityWarning,
			"document budget of %s expired, %d of %d pages not processed", p.cfg.DocumentTimeout, len(unfinished), n))
	}

	doc := p.reconcile(ctx, pages, findings, log)
	doc.SourceName = sourceName

	checkFindings, err := checks.NewRunner(checks.Default(p.cfg.Checks, p.golden)...).Run(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	all := append(findings.flatten(), checkFindings...)
	summary := p.summarize(runID, doc, all, partial, started)
	log.Info().
		Str("status", string(summary.Status)).
		Int("failed_pages", summary.FailedPages).
		Int("findings", len(all)).
		Dur("duration", summary.Duration).
		Msg("Document processed")

	return &Result{Document: doc, Findings: all, Summary: summary}, nil
}

// reconcile runs the document-level stages: TOC entries, the page number
// offset, both classification passes and element typing
func (p *Pipeline) reconcile(ctx context.Context, pages []models.Page, findings *findingLog, log zerolog.Logger) *models.Document {
	entries := toc.Entries(pages)
	res := toc.ResolveOffset(pages, entries, p.cfg.Offset)
	if !res.Resolved {
		err := &OffsetUnresolvedError{
			Candidates: len(res.Candidates),
			Agreement:  res.Agreement,
			Required:   p.cfg.Offset.MinAgreement,
		}
		sev := models.SeverityWarning
		if len(entries) == 0 {
			sev = models.SeverityInfo
		}
		findings.add(models.NewFinding(checkerName, sev, "%v", err))
	}
	entries = toc.Apply(entries, res.Offset, len(pages))

	overrides := p.classifier.Pass2(pages, entries)
	p.classifier.Elements(pages, res)
	hinted := p.classifier.ApplyHints(ctx, pages)

	log.Info().
		Int("toc_entries", len(entries)).
		Int("offset", res.Offset).
		Bool("offset_resolved", res.Resolved).
		Float64("agreement", res.Agreement).
		Int("toc_overrides", overrides).
		Int("hinted", hinted).
		Msg("Document reconciled")

	return &models.Document{
		ID:               uuid.NewString(),
		Pages:            pages,
		PageNumberOffset: res.Offset,
		OffsetResolved:   res.Resolved,
		TOCEntries:       entries,
		CreatedAt:        p.now().UTC(),
	}
}

// preprocess runs an image profile inside the CPU pool
func (p *Pipeline) preprocess(img image.Image, profile string) image.Image {
	if err := p.cpu.Acquire(context.Background(), 1); err != nil {
		return imaging.Apply(img, profile)
	}
	defer p.cpu.Release(1)
	return imaging.Apply(img, profile)
}

// withCPU runs fn inside the CPU pool
func (p *Pipeline) withCPU(ctx context.Context, fn func()) error {
	if err := p.cpu.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.cpu.Release(1)
	fn()
	return nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// WithGoldenDocument returns a pipeline that shares p's engines and gates
// and diffs its runs against doc
func (p *Pipeline) WithGoldenDocument(doc *models.Document) *Pipeline {
	c := *p
	c.golden = doc
	return &c
}

// Config returns the effective configuration
func (p *Pipeline) Config() Config {
	return p.cfg
}
