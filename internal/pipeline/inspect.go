package pipeline

import (
	"context"
	"fmt"

	"finscan/internal/pagemode"
	"finscan/pkg/models"
)

// Inspect classifies every page without extracting anything. Pages whose
// geometry cannot be read get the unreadable manifest.
func Inspect(ctx context.Context, in Input, th pagemode.Thresholds) ([]models.PageManifestEntry, error) {
	const op = "Inspect"

	n := in.PageCount()
	if n == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrNoPages)
	}

	out := make([]models.PageManifestEntry, n)
	for i := range n {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		page, err := in.Analyze(i)
		if err != nil || page == nil {
			out[i] = pagemode.Unreadable(i, th)
			continue
		}
		out[i] = pagemode.Classify(page.Signals, th)
	}
	return out, nil
}
