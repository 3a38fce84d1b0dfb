package service

import (
	"hash/fnv"
	"math/rand/v2"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

// SelectVariation picks a weighted A/B variation for a contact. The draw is seeded from the
// step and contact ids only, so retries and re-renders always land on the same variation.
func SelectVariation(step *model.Step, contactID string) (*model.Variation, error) {
	if step == nil || len(step.Variations) == 0 {
		return nil, appErrors.ErrNoVariationsConfigured
	}
	total := step.TotalWeight()
	if total == 0 {
		return &step.Variations[0], nil
	}

	draw := stableRand(step.ID, contactID).IntN(total) + 1
	cumulative := 0
	for i := range step.Variations {
		if step.Variations[i].Weight <= 0 {
			continue
		}
		cumulative += step.Variations[i].Weight
		if draw <= cumulative {
			return &step.Variations[i], nil
		}
	}
	return &step.Variations[len(step.Variations)-1], nil
}

func stableRand(parts ...string) *rand.Rand {
	h := fnv.New64a()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	seed := h.Sum64()
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
