// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCharter/services/protocol/datatypes"
)

func TestLoadQuestionSets(t *testing.T) {
	sets, err := LoadQuestionSets()
	require.NoError(t, err)
	require.Len(t, sets, datatypes.LastStage)

	for stage := datatypes.FirstStage; stage <= datatypes.LastStage; stage++ {
		qs := sets[stage]
		require.NotNil(t, qs, "stage %d", stage)
		assert.Equal(t, stage, qs.StageIndex)
		assert.NotEmpty(t, qs.Name)
		assert.NotEmpty(t, qs.Questions)
		for _, q := range qs.Questions {
			assert.NotEmpty(t, q.ID)
			assert.NotEmpty(t, q.Text)
		}
	}

	// Every builder must have a matching question set and vice versa.
	for stage := range builders {
		assert.Contains(t, sets, stage)
	}
}

func TestQuestionIDsAreUniqueAcrossStages(t *testing.T) {
	sets, err := LoadQuestionSets()
	require.NoError(t, err)

	seen := make(map[string]int)
	for stage, qs := range sets {
		for _, q := range qs.Questions {
			if prior, dup := seen[q.ID]; dup {
				t.Errorf("question id %q used in stages %d and %d", q.ID, prior, stage)
			}
			seen[q.ID] = stage
		}
	}
}

func TestFingerprintIsStable(t *testing.T) {
	a, err := Fingerprint()
	require.NoError(t, err)
	b, err := Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}
