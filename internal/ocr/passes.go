package ocr

import (
	"fmt"

	"finscan/pkg/models"
)

// Preprocessing profiles, from lightest to heaviest
const (
	ProfileMinimal    = "minimal"
	ProfileStandard   = "standard"
	ProfileAggressive = "aggressive"
)

// DefaultPasses is the stock pass ladder: block, sparse, auto and column
// segmentation, with heavier preprocessing for the last two.
func DefaultPasses() []models.PassConfig {
	return []models.PassConfig{
		{ID: "p1", PSM: 6, Profile: ProfileStandard},
		{ID: "p2", PSM: 11, Profile: ProfileStandard},
		{ID: "p3", PSM: 3, Profile: ProfileAggressive},
		{ID: "p4", PSM: 4, Profile: ProfileAggressive},
	}
}

// ValidatePasses checks ids, PSM range and profiles of a configured ladder
func ValidatePasses(passes []models.PassConfig) error {
	if len(passes) == 0 {
		return ErrNoPasses
	}
	seen := make(map[string]bool, len(passes))
	for i, p := range passes {
		if p.ID == "" {
			return fmt.Errorf("pass %d: missing id", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("pass %d: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true
		if p.PSM < 0 || p.PSM > 13 {
			return fmt.Errorf("pass %s: psm %d out of range 0-13", p.ID, p.PSM)
		}
		switch p.Profile {
		case ProfileMinimal, ProfileStandard, ProfileAggressive:
		default:
			return fmt.Errorf("pass %s: unknown profile %q", p.ID, p.Profile)
		}
	}
	return nil
}
