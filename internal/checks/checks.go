// Package checks validates a finished document for internal consistency.
//
// Every checker is a read-only consumer of the document and reports what it
// finds as models.Finding values. A mismatch is never an error: checkers do
// not fail on data shape, they record it.
package checks

import (
	"context"
	"fmt"

	"finscan/internal/logger"
	"finscan/pkg/models"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Checker is one independent validator
type Checker interface {
	Name() string
	Check(doc *models.Document) []models.Finding
}

// Gate modes of the OCR quality gate
const (
	ModeStrict  = "strict"
	ModeLenient = "lenient"
)

// Config holds checker thresholds and tolerances
type Config struct {
	GateMode           string  `yaml:"gate_mode"`
	StrictBadFraction  float64 `yaml:"strict_bad_fraction"`
	LenientBadFraction float64 `yaml:"lenient_bad_fraction"`
	NoiseRepeatMin     int     `yaml:"noise_repeat_min"`

	// SumTolerance is a floor; the displayed precision may allow more
	SumTolerance float64 `yaml:"sum_tolerance"`

	BalanceTolerance float64 `yaml:"balance_tolerance"`
	// BalanceRelative is a fraction of the larger total, 0 disables it
	BalanceRelative float64 `yaml:"balance_relative"`

	FallbackShareMax float64 `yaml:"fallback_share_max"`
}

// DefaultConfig returns the stock checker configuration
func DefaultConfig() Config {
	return Config{
		GateMode:           ModeStrict,
		StrictBadFraction:  0.10,
		LenientBadFraction: 0.20,
		NoiseRepeatMin:     10,
		BalanceTolerance:   1,
		FallbackShareMax:   0.5,
	}
}

// WithDefaults fills zero fields from DefaultConfig
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.GateMode != ModeLenient {
		c.GateMode = d.GateMode
	}
	if c.StrictBadFraction <= 0 {
		c.StrictBadFraction = d.StrictBadFraction
	}
	if c.LenientBadFraction <= 0 {
		c.LenientBadFraction = d.LenientBadFraction
	}
	if c.NoiseRepeatMin <= 0 {
		c.NoiseRepeatMin = d.NoiseRepeatMin
	}
	if c.BalanceTolerance <= 0 {
		c.BalanceTolerance = d.BalanceTolerance
	}
	if c.FallbackShareMax <= 0 {
		c.FallbackShareMax = d.FallbackShareMax
	}
	return c
}

// Default returns the standard checker set in registration order. A nil
// golden document makes the regression diff report that it was skipped.
func Default(cfg Config, golden *models.Document) []Checker {
	cfg = cfg.WithDefaults()
	return []Checker{
		Schema{},
		NewOCRGate(cfg),
		NewSum(cfg),
		NewBalance(cfg),
		CrossReference{},
		NewSections(cfg),
		NewDiff(golden),
	}
}

// Runner runs checkers concurrently over one document
type Runner struct {
	checkers []Checker
	log      zerolog.Logger
}

// NewRunner creates a Runner for the given checkers
func NewRunner(checkers ...Checker) *Runner {
	return &Runner{
		checkers: checkers,
		log:      logger.WithComponent("checks"),
	}
}

// Run executes every checker and returns their findings concatenated in
// registration order. A checker that panics is reported as an error finding
// and does not affect the others. Run only fails when ctx is done.
func (r *Runner) Run(ctx context.Context, doc *models.Document) ([]models.Finding, error) {
	const op = "Run"

	results := make([][]models.Finding, len(r.checkers))
	g, ctx := errgroup.WithContext(ctx)
	for i, c := range r.checkers {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = r.runOne(c, doc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var findings []models.Finding
	for _, res := range results {
		findings = append(findings, res...)
	}
	counts := models.CountBySeverity(findings)
	r.log.Info().
		Int("checkers", len(r.checkers)).
		Int("errors", counts[models.SeverityError]).
		Int("warnings", counts[models.SeverityWarning]).
		Int("info", counts[models.SeverityInfo]).
		Msg("Consistency checks completed")
	return findings, nil
}

func (r *Runner) runOne(c Checker, doc *models.Document) (out []models.Finding) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error().Str("checker", c.Name()).Interface("panic", p).Msg("Checker panicked")
			out = []models.Finding{models.NewFinding(c.Name(), models.SeverityError, "checker failed: %v", p)}
		}
	}()
	return c.Check(doc)
}
