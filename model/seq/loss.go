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
	"github.com/chewxy/math32"
)

// Supported values for the model.Loss parameter.
const (
	LossWARP  = "warp"
	LossBPR   = "bpr"
	LossHinge = "hinge"
)

// negativeDraw produces one sampled negative candidate with its score.
// valid is false when the candidate collides with the user's own history,
// in which case the draw still consumes one trial.
type negativeDraw func() (neg int32, score float32, valid bool)

// lossResult is one training step's pairwise loss. hit reports whether a
// negative item received gradient; when false the step contributes zero
// loss and no gradient at all.
type lossResult struct {
	loss float32
	dPos float32
	dNeg float32
	neg  int32
	hit  bool
}

// pairwiseLoss scores a positive item against sequentially sampled
// negatives within a fixed trial budget.
type pairwiseLoss func(posScore float32, draw negativeDraw, budget int) lossResult

// warpLoss keeps drawing until a negative violates the unit margin, so
// positives that rank poorly are hit by gradient sooner. Exhausting the
// budget without a violation yields zero loss.
func warpLoss(posScore float32, draw negativeDraw, budget int) lossResult {
	for trial := 0; trial < budget; trial++ {
		neg, negScore, valid := draw()
		if !valid {
			continue
		}
		if margin := 1 - posScore + negScore; margin > 0 {
			return lossResult{loss: margin, dPos: -1, dNeg: 1, neg: neg, hit: true}
		}
	}
	return lossResult{}
}

// bprLoss applies the Bayesian personalized ranking loss to the first
// valid negative. Every valid draw produces gradient, violating or not.
func bprLoss(posScore float32, draw negativeDraw, budget int) lossResult {
	for trial := 0; trial < budget; trial++ {
		neg, negScore, valid := draw()
		if !valid {
			continue
		}
		diff := posScore - negScore
		// log(1 + exp(-diff)) without overflow for large negative diff
		var loss float32
		if diff >= 0 {
			loss = math32.Log1p(math32.Exp(-diff))
		} else {
			loss = -diff + math32.Log1p(math32.Exp(diff))
		}
		grad := sigmoid(-diff)
		return lossResult{loss: loss, dPos: -grad, dNeg: grad, neg: neg, hit: true}
	}
	return lossResult{}
}

// hingeLoss evaluates the unit-margin hinge on the first valid negative
// without resampling on non-violation.
func hingeLoss(posScore float32, draw negativeDraw, budget int) lossResult {
	for trial := 0; trial < budget; trial++ {
		neg, negScore, valid := draw()
		if !valid {
			continue
		}
		if margin := 1 - posScore + negScore; margin > 0 {
			return lossResult{loss: margin, dPos: -1, dNeg: 1, neg: neg, hit: true}
		}
		return lossResult{}
	}
	return lossResult{}
}

func lookupLoss(name string) (pairwiseLoss, bool) {
	switch name {
	case LossWARP:
		return warpLoss, true
	case LossBPR:
		return bprLoss, true
	case LossHinge:
		return hingeLoss, true
	default:
		return nil, false
	}
}
