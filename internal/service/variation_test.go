package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/model"
)

func abStep(weightA, weightB int) *model.Step {
	return &model.Step{
		ID: "step-ab",
		Variations: []model.Variation{
			{ID: "a", Subject: "A", Weight: weightA},
			{ID: "b", Subject: "B", Weight: weightB},
		},
	}
}

func TestSelectVariation_Deterministic(t *testing.T) {
	step := abStep(50, 50)
	for i := 0; i < 50; i++ {
		contactID := fmt.Sprintf("contact-%d", i)
		first, err := SelectVariation(step, contactID)
		require.NoError(t, err)
		for j := 0; j < 5; j++ {
			again, err := SelectVariation(step, contactID)
			require.NoError(t, err)
			assert.Equal(t, first.ID, again.ID)
		}
	}
}

func TestSelectVariation_FollowsWeights(t *testing.T) {
	step := abStep(70, 30)
	counts := map[string]int{}
	for i := 0; i < 2000; i++ {
		v, err := SelectVariation(step, fmt.Sprintf("contact-%d", i))
		require.NoError(t, err)
		counts[v.ID]++
	}
	assert.InDelta(t, 1400, counts["a"], 120)
	assert.InDelta(t, 600, counts["b"], 120)
}

func TestSelectVariation_ZeroWeight(t *testing.T) {
	step := abStep(0, 10)
	for i := 0; i < 200; i++ {
		v, err := SelectVariation(step, fmt.Sprintf("c%d", i))
		require.NoError(t, err)
		assert.Equal(t, "b", v.ID)
	}

	// all zero falls back to the first variation
	v, err := SelectVariation(abStep(0, 0), "c1")
	require.NoError(t, err)
	assert.Equal(t, "a", v.ID)
}

func TestSelectVariation_NoVariations(t *testing.T) {
	_, err := SelectVariation(&model.Step{ID: "empty"}, "c1")
	assert.ErrorIs(t, err, appErrors.ErrNoVariationsConfigured)

	_, err = SelectVariation(nil, "c1")
	assert.ErrorIs(t, err, appErrors.ErrNoVariationsConfigured)
}
