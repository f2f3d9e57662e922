package ocr

import (
	"context"
	"fmt"
	"image"

	"finscan/internal/logger"
	"finscan/internal/quality"
	"finscan/pkg/models"

	"github.com/rs/zerolog"
)

// Gate bounds concurrent engine calls. *semaphore.Weighted satisfies it.
type Gate interface {
	Acquire(ctx context.Context, n int64) error
	Release(n int64)
}

// PreprocessFunc applies a named preprocessing profile to a page image
type PreprocessFunc func(img image.Image, profile string) image.Image

// Selection is the outcome of running the pass ladder on one page
type Selection struct {
	Elements []models.Element
	Metrics  models.QualityMetrics
	Audit    *models.PassAudit

	// Results holds every evaluated pass in evaluation order.
	Results []PassResult
}

// Selector picks the most plausible OCR result among several passes
type Selector struct {
	engines    map[string]Engine
	fallback   string
	gate       Gate
	preprocess PreprocessFunc
	thresholds quality.Thresholds
	log        zerolog.Logger
}

// SelectorOption configures a Selector
type SelectorOption func(*Selector)

// WithEngine registers an additional engine addressable by name from a pass config
func WithEngine(e Engine) SelectorOption {
	return func(s *Selector) { s.engines[e.Name()] = e }
}

// WithGate wraps every engine call in the given gate
func WithGate(g Gate) SelectorOption {
	return func(s *Selector) { s.gate = g }
}

// WithPreprocess sets the profile function applied before each pass
func WithPreprocess(fn PreprocessFunc) SelectorOption {
	return func(s *Selector) { s.preprocess = fn }
}

// WithThresholds overrides the quality thresholds used for early exit
func WithThresholds(th quality.Thresholds) SelectorOption {
	return func(s *Selector) { s.thresholds = th.WithDefaults() }
}

// NewSelector creates a selector whose passes without an explicit engine run on defaultEngine
func NewSelector(defaultEngine Engine, opts ...SelectorOption) *Selector {
	s := &Selector{
		engines:    map[string]Engine{defaultEngine.Name(): defaultEngine},
		fallback:   defaultEngine.Name(),
		thresholds: quality.DefaultThresholds(),
		log:        logger.WithComponent("ocr-selector"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select evaluates passes in order and stops after the first good result.
// The winner is the best of all successful results by quality.Compare, ties
// going to the earliest pass, so a good pass does not beat an earlier pass
// with a shorter repeat run. Failing passes are skipped. If every pass fails the
// returned Selection has no elements and the error matches ErrAllPassesFailed.
func (s *Selector) Select(ctx context.Context, img PageImage, passes []models.PassConfig) (*Selection, error) {
	const op = "Select"

	if len(passes) == 0 {
		return &Selection{}, NewEngineError("", op, ErrNoPasses, "")
	}
	if img.Image == nil || img.Image.Bounds().Empty() {
		return &Selection{}, NewEngineError("", op, ErrEmptyImage, fmt.Sprintf("page %d", img.PageIndex))
	}

	log := logger.WithPage(s.log, img.PageIndex)
	sel := &Selection{}
	best := -1
	failures := 0
	var lastErr error

	for i, pass := range passes {
		if err := ctx.Err(); err != nil {
			return s.finish(sel, best, failures), err
		}

		res := s.runPass(ctx, img, pass)
		sel.Results = append(sel.Results, res)

		if res.Err != nil {
			failures++
			lastErr = res.Err
			log.Debug().Err(res.Err).Str("pass", pass.ID).Msg("OCR pass failed")
			continue
		}

		log.Debug().
			Str("pass", pass.ID).
			Int("psm", pass.PSM).
			Str("profile", pass.Profile).
			Str("status", string(res.Metrics.Status)).
			Int("repeat_run_max", res.Metrics.RepeatRunMax).
			Float64("junk_ratio", res.Metrics.JunkTokenRatio).
			Msg("OCR pass evaluated")

		if best < 0 || quality.Compare(res.Metrics, sel.Results[best].Metrics) < 0 {
			best = i
		}
		if res.Metrics.Status == models.QualityGood {
			break
		}
	}

	sel = s.finish(sel, best, failures)
	if best < 0 {
		return sel, NewEngineError("", op, ErrAllPassesFailed,
			fmt.Sprintf("page %d, %d passes, last error: %v", img.PageIndex, failures, lastErr))
	}

	log.Info().
		Str("winner", sel.Audit.Winner.ID).
		Int("attempts", sel.Audit.Attempts).
		Str("status", string(sel.Metrics.Status)).
		Msg("OCR pass selected")
	return sel, nil
}

func (s *Selector) finish(sel *Selection, best, failures int) *Selection {
	if best < 0 {
		return sel
	}
	win := sel.Results[best]
	sel.Elements = win.Elements
	sel.Metrics = win.Metrics
	sel.Audit = &models.PassAudit{
		Winner:   win.Config,
		Index:    best,
		Metrics:  win.Metrics,
		Attempts: len(sel.Results),
		Failures: failures,
	}
	return sel
}

func (s *Selector) runPass(ctx context.Context, img PageImage, pass models.PassConfig) PassResult {
	res := PassResult{Config: pass}

	name := pass.Engine
	if name == "" {
		name = s.fallback
	}
	engine, ok := s.engines[name]
	if !ok {
		res.Err = NewEngineError(name, "Recognize", ErrUnknownEngine, "pass "+pass.ID)
		return res
	}
	res.Config.Engine = name

	prepared := img
	if s.preprocess != nil {
		prepared.Image = s.preprocess(img.Image, pass.Profile)
	}

	if s.gate != nil {
		if err := s.gate.Acquire(ctx, 1); err != nil {
			res.Err = err
			return res
		}
		defer s.gate.Release(1)
	}

	out, err := engine.Recognize(ctx, prepared, pass)
	if err != nil {
		res.Err = WrapEngineError(name, "Recognize", err, "pass "+pass.ID)
		return res
	}

	res.Elements = out.Elements
	res.Metrics = quality.Evaluate(out.Text(), s.thresholds)
	return res
}
