package policy

import "github.com/ObiAU/hnenricher/internal/models"

// Policy decides whether an item needs (re-)classification based on how
// its discussion has grown since the last recorded analysis.
type Policy struct {
	// GrowthRatio triggers re-enrichment when the relative comment growth
	// strictly exceeds it.
	GrowthRatio float64
	// GrowthAbsolute triggers re-enrichment when the absolute comment
	// growth strictly exceeds it.
	GrowthAbsolute int
}

// Default matches the production thresholds: >50% relative growth or
// more than 20 new comments.
func Default() Policy {
	return Policy{GrowthRatio: 0.5, GrowthAbsolute: 20}
}

// Decide is a pure function of the current item and its stored record.
// It returns nil when no enrichment is needed. Callers may evaluate many
// items concurrently; Decide holds no state.
func (p Policy) Decide(item models.Item, existing *models.EnrichedStory) *models.Candidate {
	current := item.Descendants

	if existing == nil {
		return &models.Candidate{
			ID:              item.ID,
			Reason:          models.ReasonNew,
			CurrentComments: current,
		}
	}

	previous := existing.CommentCountAtAnalysis
	growth := current - previous

	var ratio float64
	switch {
	case previous > 0:
		ratio = float64(growth) / float64(previous)
	case current > 0:
		ratio = 1
	default:
		// zero -> zero: nothing new to say
		ratio = 0
	}

	if ratio > p.GrowthRatio || growth > p.GrowthAbsolute {
		return &models.Candidate{
			ID:               item.ID,
			Reason:           models.ReasonReEnrich,
			CurrentComments:  current,
			PreviousComments: &previous,
		}
	}

	return nil
}
