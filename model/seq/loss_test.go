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
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
)

// fixedDraw replays a scripted sequence of negative candidates.
func fixedDraw(scores []float32, valid []bool) negativeDraw {
	i := -1
	return func() (int32, float32, bool) {
		i++
		return int32(i), scores[i], valid[i]
	}
}

func TestWARPLoss(t *testing.T) {
	// the first violating negative stops the search
	result := warpLoss(1, fixedDraw([]float32{-2, 0.5, 3}, []bool{true, true, true}), 3)
	assert.True(t, result.hit)
	assert.Equal(t, int32(1), result.neg)
	assert.InDelta(t, 0.5, result.loss, 1e-6)
	assert.Equal(t, float32(-1), result.dPos)
	assert.Equal(t, float32(1), result.dNeg)

	// no violation within the budget yields exactly zero
	result = warpLoss(5, fixedDraw([]float32{0, 1, 2}, []bool{true, true, true}), 3)
	assert.False(t, result.hit)
	assert.Zero(t, result.loss)
	assert.Zero(t, result.dPos)
	assert.Zero(t, result.dNeg)

	// invalid candidates consume trials without producing gradient
	result = warpLoss(0, fixedDraw([]float32{0, 9}, []bool{false, true}), 1)
	assert.False(t, result.hit)
	assert.Zero(t, result.loss)
}

func TestWARPLossNonNegative(t *testing.T) {
	for _, posScore := range []float32{-3, 0, 3} {
		for _, negScore := range []float32{-3, 0, 3} {
			result := warpLoss(posScore, fixedDraw([]float32{negScore}, []bool{true}), 1)
			assert.GreaterOrEqual(t, result.loss, float32(0))
			assert.Equal(t, 1-posScore+negScore > 0, result.hit)
		}
	}
}

func TestBPRLoss(t *testing.T) {
	result := bprLoss(2, fixedDraw([]float32{1}, []bool{true}), 3)
	assert.True(t, result.hit)
	assert.InDelta(t, math32.Log1p(math32.Exp(-1)), result.loss, 1e-6)
	assert.InDelta(t, -sigmoid(-1), result.dPos, 1e-6)
	assert.InDelta(t, sigmoid(-1), result.dNeg, 1e-6)

	// stable for strongly violated pairs
	result = bprLoss(-50, fixedDraw([]float32{50}, []bool{true}), 1)
	assert.False(t, math32.IsInf(result.loss, 0))
	assert.InDelta(t, 100, result.loss, 1e-3)

	// budget exhausted by invalid candidates
	result = bprLoss(0, fixedDraw([]float32{0}, []bool{false}), 1)
	assert.False(t, result.hit)
}

func TestHingeLoss(t *testing.T) {
	result := hingeLoss(0.2, fixedDraw([]float32{0.1}, []bool{true}), 5)
	assert.True(t, result.hit)
	assert.InDelta(t, 0.9, result.loss, 1e-6)

	// unlike WARP, a non-violating negative is not resampled
	result = hingeLoss(5, fixedDraw([]float32{0, 100}, []bool{true, true}), 5)
	assert.False(t, result.hit)
	assert.Zero(t, result.loss)
}

func TestLookupLoss(t *testing.T) {
	for _, name := range []string{LossWARP, LossBPR, LossHinge} {
		lossFunc, ok := lookupLoss(name)
		assert.True(t, ok)
		assert.NotNil(t, lossFunc)
	}
	_, ok := lookupLoss("hubris")
	assert.False(t, ok)
}
