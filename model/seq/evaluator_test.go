// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package seq

import (
	"context"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"

	"github.com/gorse-io/sbr/common/floats"
	"github.com/gorse-io/sbr/dataset"
	"github.com/gorse-io/sbr/model"
)

// newFlatModel fits an EWMA model and then flattens its weights so every
// item scores identically. Ranks then depend only on the tie-break rule.
func newFlatModel(t *testing.T, numItems int32) *EWMA {
	trainSet := newTrainSet(t, 8, 4, numItems)
	ewma := NewEWMA(model.Params{model.NFactors: 4, model.NEpochs: 1})
	_, err := ewma.Fit(context.Background(), trainSet, NewFitConfig().SetVerbose(100))
	assert.NoError(t, err)
	floats.Zero(ewma.embedding.weight.data)
	floats.Zero(ewma.itemBias.data)
	return ewma
}

func evalMatrix(t *testing.T, records []dataset.Interaction) *dataset.CompressedInteractions {
	interactions, err := dataset.FromRecords(records)
	assert.NoError(t, err)
	return interactions.ToCompressed()
}

func TestMRRScorePerfect(t *testing.T) {
	// all scores tie and every target is item 0, so the lowest-id rule
	// ranks the target first for every user
	ewma := newFlatModel(t, 4)
	matrix := evalMatrix(t, []dataset.Interaction{
		{UserId: 0, ItemId: 1, Timestamp: 1},
		{UserId: 0, ItemId: 0, Timestamp: 2},
		{UserId: 1, ItemId: 2, Timestamp: 1},
		{UserId: 1, ItemId: 0, Timestamp: 2},
	})
	mrr, err := MRRScore(context.Background(), ewma, matrix, 1)
	assert.NoError(t, err)
	assert.Equal(t, float32(1), mrr)
}

func TestMRRScoreTieBreak(t *testing.T) {
	ewma := newFlatModel(t, 4)
	// targets 0 and 2: ranks 1 and 3 under the lowest-id rule
	matrix := evalMatrix(t, []dataset.Interaction{
		{UserId: 0, ItemId: 1, Timestamp: 1},
		{UserId: 0, ItemId: 0, Timestamp: 2},
		{UserId: 1, ItemId: 0, Timestamp: 1},
		{UserId: 1, ItemId: 2, Timestamp: 2},
	})
	mrr, err := MRRScore(context.Background(), ewma, matrix, 1)
	assert.NoError(t, err)
	assert.InDelta(t, (1+1.0/3)/2, mrr, 1e-6)
}

func TestMRRScoreFitted(t *testing.T) {
	trainSet := newTrainSet(t, 32, 6, 8)
	lstm := NewLSTM(model.Params{
		model.NFactors:    8,
		model.NEpochs:     5,
		model.RandomState: 42,
	})
	_, err := lstm.Fit(context.Background(), trainSet, NewFitConfig().SetVerbose(100))
	assert.NoError(t, err)
	mrr, err := MRRScore(context.Background(), lstm, trainSet, 2)
	assert.NoError(t, err)
	assert.Greater(t, mrr, float32(0))
	assert.LessOrEqual(t, mrr, float32(1))
}

func TestMRRScoreNoEligibleUsers(t *testing.T) {
	ewma := newFlatModel(t, 4)
	// one interaction per user leaves nothing to hold out
	matrix := evalMatrix(t, []dataset.Interaction{
		{UserId: 0, ItemId: 1, Timestamp: 1},
		{UserId: 1, ItemId: 2, Timestamp: 1},
	})
	_, err := MRRScore(context.Background(), ewma, matrix, 1)
	assert.ErrorIs(t, err, ErrNoEligibleUsers)

	_, err = MRRScore(context.Background(), ewma, dataset.NewInteractions(0, 0).ToCompressed(), 1)
	assert.ErrorIs(t, err, dataset.ErrNoInteractions)
}

func TestMRRScoreUnfitted(t *testing.T) {
	matrix := evalMatrix(t, []dataset.Interaction{
		{UserId: 0, ItemId: 0, Timestamp: 1},
		{UserId: 0, ItemId: 1, Timestamp: 2},
	})
	_, err := MRRScore(context.Background(), NewLSTM(nil), matrix, 1)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestMRRScoreUnknownTarget(t *testing.T) {
	// the model knows 4 items but the matrix references item 5
	ewma := newFlatModel(t, 4)
	matrix := evalMatrix(t, []dataset.Interaction{
		{UserId: 0, ItemId: 0, Timestamp: 1},
		{UserId: 0, ItemId: 5, Timestamp: 2},
	})
	_, err := MRRScore(context.Background(), ewma, matrix, 1)
	assert.True(t, errors.Is(err, errors.NotFound))
}
