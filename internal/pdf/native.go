package pdf

import (
	"math"
	"strings"

	"finscan/pkg/models"
)

// BuildLines groups text runs into line elements in page coordinates
// (origin top-left). Consecutive runs join when they share a baseline and the
// horizontal gap stays below one and a half font sizes.
func BuildLines(runs []TextRun, pageIndex int, pageHeight float64) []models.Element {
	var out []models.Element
	var cur *lineBuilder

	flush := func() {
		if cur == nil {
			return
		}
		text := strings.TrimSpace(cur.text.String())
		if text != "" {
			out = append(out, models.Element{
				PageIndex:  pageIndex,
				ID:         models.ElementID(pageIndex, models.SourceNative, len(out)),
				Kind:       models.KindTextBlock,
				BBox:       cur.box(pageHeight),
				Text:       text,
				Confidence: 1.0,
				Source:     models.SourceNative,
			})
		}
		cur = nil
	}

	for _, r := range runs {
		if strings.TrimSpace(r.Text) == "" && cur == nil {
			continue
		}
		if cur != nil && cur.accepts(r) {
			cur.add(r)
			continue
		}
		flush()
		cur = newLine(r)
	}
	flush()
	return out
}

type lineBuilder struct {
	text           strings.Builder
	x0, x1         float64
	baseline, size float64
}

func newLine(r TextRun) *lineBuilder {
	l := &lineBuilder{x0: r.X, x1: r.X + r.Width, baseline: r.Baseline, size: r.Size}
	l.text.WriteString(r.Text)
	return l
}

func (l *lineBuilder) accepts(r TextRun) bool {
	size := math.Max(l.size, r.Size)
	if size <= 0 {
		size = 1
	}
	if math.Abs(r.Baseline-l.baseline) > 0.35*size {
		return false
	}
	gap := r.X - l.x1
	return gap > -size && gap < 1.5*size
}

func (l *lineBuilder) add(r TextRun) {
	if r.X-l.x1 > 0.15*math.Max(l.size, r.Size) && !strings.HasSuffix(l.text.String(), " ") && !strings.HasPrefix(r.Text, " ") {
		l.text.WriteByte(' ')
	}
	l.text.WriteString(r.Text)
	l.x0 = math.Min(l.x0, r.X)
	l.x1 = math.Max(l.x1, r.X+r.Width)
	l.size = math.Max(l.size, r.Size)
}

// box flips from PDF user space to top-left page coordinates. Ascent and
// descent are estimated at 0.8 and 0.2 of the font size.
func (l *lineBuilder) box(pageHeight float64) models.BBox {
	return models.BBox{
		X0: l.x0,
		Y0: pageHeight - (l.baseline + 0.8*l.size),
		X1: l.x1,
		Y1: pageHeight - (l.baseline - 0.2*l.size),
	}
}
