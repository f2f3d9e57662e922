// Package quality scores extracted text for OCR plausibility.
//
// All functions are pure: the same text and thresholds always yield the same
// metrics. Character ratios are computed over the text with whitespace
// removed; token metrics over whitespace-separated lowercase tokens.
package quality

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"finscan/pkg/models"
)

// Thresholds decide the good/fair/bad status. The defaults are empirically
// tuned on Finnish/English financial reports and should be recalibrated for
// other languages or layouts.
type Thresholds struct {
	GoodRepeatMax int     `yaml:"good_repeat_max"` // good requires repeat_run_max below this
	GoodJunkMax   float64 `yaml:"good_junk_max"`   // good requires junk_token_ratio below this
	BadRepeatMin  int     `yaml:"bad_repeat_min"`  // bad when repeat_run_max reaches this
	BadJunkMin    float64 `yaml:"bad_junk_min"`    // bad when junk_token_ratio reaches this
}

// DefaultThresholds returns the stock thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{
		GoodRepeatMax: 10,
		GoodJunkMax:   0.15,
		BadRepeatMin:  15,
		BadJunkMin:    0.35,
	}
}

// WithDefaults fills zero fields from DefaultThresholds
func (t Thresholds) WithDefaults() Thresholds {
	d := DefaultThresholds()
	if t.GoodRepeatMax <= 0 {
		t.GoodRepeatMax = d.GoodRepeatMax
	}
	if t.GoodJunkMax <= 0 {
		t.GoodJunkMax = d.GoodJunkMax
	}
	if t.BadRepeatMin <= 0 {
		t.BadRepeatMin = d.BadRepeatMin
	}
	if t.BadJunkMin <= 0 {
		t.BadJunkMin = d.BadJunkMin
	}
	return t
}

var (
	wordToken   = regexp.MustCompile(`^[a-zäöå]+$`)
	wordPrefix  = regexp.MustCompile(`^[a-zäöå]`)
	numberToken = regexp.MustCompile(`^\d+$`)
)

// Evaluate computes quality metrics for text
func Evaluate(text string, th Thresholds) models.QualityMetrics {
	th = th.WithDefaults()

	chars := stripSpace(text)
	if len(chars) == 0 {
		return models.QualityMetrics{Empty: true, Status: models.QualityBad}
	}

	total := float64(len(chars))
	m := models.QualityMetrics{
		AlphaRatio:   safeDiv(float64(countIf(chars, unicode.IsLetter)), total),
		DigitRatio:   safeDiv(float64(countIf(chars, unicode.IsDigit)), total),
		RepeatRunMax: longestRun(chars),
	}

	tokens := strings.Fields(strings.ToLower(text))
	var junk, words, wordChars int
	for _, tok := range tokens {
		n := len([]rune(tok))
		if n <= 3 && !wordToken.MatchString(tok) && !numberToken.MatchString(tok) {
			junk++
		}
		if wordPrefix.MatchString(tok) {
			words++
			wordChars += n
		}
	}
	m.JunkTokenRatio = safeDiv(float64(junk), float64(len(tokens)))
	m.AvgWordLen = safeDiv(float64(wordChars), float64(words))

	m.Score = round3(m.AlphaRatio*0.4 +
		(1-math.Min(m.JunkTokenRatio, 1))*0.3 +
		(1-math.Min(float64(m.RepeatRunMax)/20, 1))*0.2 +
		math.Min(m.AvgWordLen/10, 1)*0.1)

	m.Status = Classify(m, th)
	return m
}

// Classify applies the thresholds to already computed metrics
func Classify(m models.QualityMetrics, th Thresholds) models.QualityStatus {
	th = th.WithDefaults()
	switch {
	case m.Empty:
		return models.QualityBad
	case m.RepeatRunMax < th.GoodRepeatMax && m.JunkTokenRatio < th.GoodJunkMax:
		return models.QualityGood
	case m.RepeatRunMax >= th.BadRepeatMin || m.JunkTokenRatio >= th.BadJunkMin:
		return models.QualityBad
	default:
		return models.QualityFair
	}
}

// Compare orders two metric sets by plausibility: negative when a is the
// better result. repeat_run_max dominates, then alpha+digit coverage, then
// junk token ratio. Equal results compare as 0.
func Compare(a, b models.QualityMetrics) int {
	if a.RepeatRunMax != b.RepeatRunMax {
		if a.RepeatRunMax < b.RepeatRunMax {
			return -1
		}
		return 1
	}
	ac, bc := a.AlphaRatio+a.DigitRatio, b.AlphaRatio+b.DigitRatio
	if ac != bc {
		if ac > bc {
			return -1
		}
		return 1
	}
	if a.JunkTokenRatio != b.JunkTokenRatio {
		if a.JunkTokenRatio < b.JunkTokenRatio {
			return -1
		}
		return 1
	}
	return 0
}

func stripSpace(s string) []rune {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if !unicode.IsSpace(r) {
			out = append(out, r)
		}
	}
	return out
}

func longestRun(rs []rune) int {
	if len(rs) == 0 {
		return 0
	}
	best, cur := 1, 1
	for i := 1; i < len(rs); i++ {
		if rs[i] == rs[i-1] {
			cur++
			if cur > best {
				best = cur
			}
			continue
		}
		cur = 1
	}
	return best
}

func countIf(rs []rune, pred func(rune) bool) int {
	n := 0
	for _, r := range rs {
		if pred(r) {
			n++
		}
	}
	return n
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
