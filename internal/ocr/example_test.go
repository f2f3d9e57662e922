package ocr_test

import (
	"context"
	"fmt"
	"image"
	"log"
	"os"
	"time"

	"finscan/internal/ocr"
	"finscan/pkg/models"

	"golang.org/x/sync/semaphore"
)

// ExampleDefaultPasses shows the stock pass ladder.
func ExampleDefaultPasses() {
	for _, p := range ocr.DefaultPasses() {
		fmt.Printf("%s psm=%d profile=%s\n", p.ID, p.PSM, p.Profile)
	}
	// Output:
	// p1 psm=6 profile=standard
	// p2 psm=11 profile=standard
	// p3 psm=3 profile=aggressive
	// p4 psm=4 profile=aggressive
}

// ExampleSelector demonstrates running the pass ladder with a local engine
// behind a single-slot accelerator gate.
func ExampleSelector() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	selector := ocr.NewSelector(
		ocr.NewTesseractEngine("fin", "eng"),
		ocr.WithGate(semaphore.NewWeighted(1)),
	)

	page := ocr.PageImage{
		PageIndex: 0,
		Image:     image.NewGray(image.Rect(0, 0, 2480, 3508)),
		DPI:       300,
	}

	sel, err := selector.Select(ctx, page, ocr.DefaultPasses())
	if err != nil {
		log.Printf("OCR failed: %v", err)
		return
	}

	fmt.Printf("Winner: %s (%s)\n", sel.Audit.Winner.ID, sel.Metrics.Status)
	fmt.Printf("Elements: %d\n", len(sel.Elements))
}

// ExampleNewVisionEngine demonstrates the cloud engine with a rate limit and
// a mixed pass ladder.
func ExampleNewVisionEngine() {
	ctx := context.Background()

	// Credentials handled internally from environment
	vision, err := ocr.NewVisionEngine(ctx)
	if err != nil {
		log.Printf("Vision unavailable: %v", err)
		return
	}
	defer vision.Close()

	selector := ocr.NewSelector(
		ocr.NewTesseractEngine(),
		ocr.WithEngine(ocr.NewRateLimited(vision, 500*time.Millisecond, 2)),
	)

	passes := append(ocr.DefaultPasses(), models.PassConfig{
		ID: "cloud", Engine: "vision", Profile: ocr.ProfileMinimal,
	})

	page := ocr.PageImage{Image: image.NewGray(image.Rect(0, 0, 1654, 2339)), DPI: 200}
	sel, err := selector.Select(ctx, page, passes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "selection failed: %v\n", err)
		return
	}
	fmt.Printf("Winner: %s after %d attempts\n", sel.Audit.Winner.ID, sel.Audit.Attempts)
}
