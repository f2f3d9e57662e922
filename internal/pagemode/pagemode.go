// Package pagemode decides per page whether native text extraction, OCR, or
// both are required.
package pagemode

import "finscan/pkg/models"

// Signals are the raw per-page measurements taken before extraction
type Signals struct {
	PageIndex          int
	NativeCharCount    int
	ImageCoverageRatio float64 // image bbox area / page area
	VectorLineDensity  float64 // drawing-operator density
	Width              float64
	Height             float64
}

// GeometryReadable reports whether the page dimensions are usable
func (s Signals) GeometryReadable() bool {
	return s.Width > 0 && s.Height > 0
}

// Thresholds drive the mode rules
type Thresholds struct {
	NativeMinChars    int     `yaml:"native_min_chars"`
	NativeMaxImage    float64 `yaml:"native_max_image"`
	ScanMaxChars      int     `yaml:"scan_max_chars"`
	ScanMinImage      float64 `yaml:"scan_min_image"`
	HighVectorDensity float64 `yaml:"high_vector_density"`
	TableDPI          int     `yaml:"table_dpi"`
	DefaultDPI        int     `yaml:"default_dpi"`
}

// DefaultThresholds returns the stock rule constants
func DefaultThresholds() Thresholds {
	return Thresholds{
		NativeMinChars:    300,
		NativeMaxImage:    0.40,
		ScanMaxChars:      50,
		ScanMinImage:      0.60,
		HighVectorDensity: 0.3,
		TableDPI:          300,
		DefaultDPI:        250,
	}
}

// WithDefaults fills zero fields from DefaultThresholds
func (t Thresholds) WithDefaults() Thresholds {
	d := DefaultThresholds()
	if t.NativeMinChars <= 0 {
		t.NativeMinChars = d.NativeMinChars
	}
	if t.NativeMaxImage <= 0 {
		t.NativeMaxImage = d.NativeMaxImage
	}
	if t.ScanMaxChars <= 0 {
		t.ScanMaxChars = d.ScanMaxChars
	}
	if t.ScanMinImage <= 0 {
		t.ScanMinImage = d.ScanMinImage
	}
	if t.HighVectorDensity <= 0 {
		t.HighVectorDensity = d.HighVectorDensity
	}
	if t.TableDPI <= 0 {
		t.TableDPI = d.TableDPI
	}
	if t.DefaultDPI <= 0 {
		t.DefaultDPI = d.DefaultDPI
	}
	return t
}

// Mode is a pure function of the native character count and image coverage.
// Rules apply in priority order, first match wins.
func Mode(nativeChars int, imageCoverage float64, th Thresholds) models.PageMode {
	th = th.WithDefaults()
	switch {
	case nativeChars >= th.NativeMinChars && imageCoverage < th.NativeMaxImage:
		return models.ModeNative
	case nativeChars < th.ScanMaxChars && imageCoverage >= th.ScanMinImage:
		return models.ModeScan
	default:
		return models.ModeMixed
	}
}

// Classify builds the immutable manifest entry for one page. A page whose
// geometry cannot be read falls back to scan so that it receives full
// extraction; the caller records the warning.
func Classify(s Signals, th Thresholds) models.PageManifestEntry {
	th = th.WithDefaults()
	entry := models.PageManifestEntry{
		PageIndex:          s.PageIndex,
		NativeCharCount:    s.NativeCharCount,
		ImageCoverageRatio: s.ImageCoverageRatio,
		VectorLineDensity:  s.VectorLineDensity,
		Width:              s.Width,
		Height:             s.Height,
		GeometryReadable:   s.GeometryReadable(),
	}

	if !entry.GeometryReadable {
		entry.Mode = models.ModeScan
		entry.RecommendedDPI = th.TableDPI
		return entry
	}

	entry.Mode = Mode(s.NativeCharCount, s.ImageCoverageRatio, th)
	entry.RecommendedDPI = RecommendedDPI(entry.Mode, s.VectorLineDensity, th)
	return entry
}

// RecommendedDPI returns 0 for native pages (no render needed), the table DPI
// for pages with table-like vector density and the default DPI otherwise.
func RecommendedDPI(mode models.PageMode, vectorDensity float64, th Thresholds) int {
	th = th.WithDefaults()
	if mode == models.ModeNative {
		return 0
	}
	if vectorDensity > th.HighVectorDensity {
		return th.TableDPI
	}
	return th.DefaultDPI
}

// Unreadable is the manifest for a page that could not be opened at all
func Unreadable(pageIndex int, th Thresholds) models.PageManifestEntry {
	return Classify(Signals{PageIndex: pageIndex}, th)
}
