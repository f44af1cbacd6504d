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

	"github.com/stretchr/testify/assert"

	"github.com/gorse-io/sbr/base"
	"github.com/gorse-io/sbr/common/floats"
)

// forwardLoss evaluates a linear functional of the contexts, so the exact
// gradient w.r.t. context t is upstream[t].
func forwardLoss(net network, inputs, upstream [][]float32) float32 {
	contexts := net.newScratch().forward(inputs)
	var loss float32
	for t := range contexts {
		loss += floats.Dot(contexts[t], upstream[t])
	}
	return loss
}

// checkGradients compares every analytic gradient of backward against a
// central finite difference of the forward pass.
func checkGradients(t *testing.T, net network, dim, steps int, seed int64) {
	rng := base.NewRandomGenerator(seed)
	inputs := make([][]float32, steps)
	upstream := make([][]float32, steps)
	for i := range inputs {
		inputs[i] = rng.NormalVector(dim, 0, 1)
		upstream[i] = rng.NormalVector(dim, 0, 1)
	}
	scratch := net.newScratch()
	scratch.forward(inputs)
	grads := newGradients(net.parameters())
	dInputs := scratch.backward(upstream, grads.buffers)

	const eps = 1e-2
	diff := func(v []float32, i int) float32 {
		orig := v[i]
		v[i] = orig + eps
		plus := forwardLoss(net, inputs, upstream)
		v[i] = orig - eps
		minus := forwardLoss(net, inputs, upstream)
		v[i] = orig
		return (plus - minus) / (2 * eps)
	}
	for pi, p := range net.parameters() {
		for i := range p.data {
			assert.InDelta(t, diff(p.data, i), grads.buffers[pi].dense[i], 1e-2)
		}
	}
	for ti := range inputs {
		for k := range inputs[ti] {
			assert.InDelta(t, diff(inputs[ti], k), dInputs[ti][k], 1e-2)
		}
	}
}

func TestLSTMGradients(t *testing.T) {
	net := newLSTMNetwork(4, false, base.NewRandomGenerator(0))
	assert.Len(t, net.parameters(), 12)
	checkGradients(t, net, 4, 3, 42)
}

func TestCoupledLSTMGradients(t *testing.T) {
	net := newLSTMNetwork(4, true, base.NewRandomGenerator(0))
	assert.Len(t, net.parameters(), 9)
	checkGradients(t, net, 4, 3, 42)
}

func TestEWMAGradients(t *testing.T) {
	net := newEWMANetwork(4, 0.3)
	assert.Len(t, net.parameters(), 1)
	checkGradients(t, net, 4, 5, 42)
}

func TestLSTMForward(t *testing.T) {
	rng := base.NewRandomGenerator(1)
	net := newLSTMNetwork(8, false, rng)
	inputs := make([][]float32, 4)
	for i := range inputs {
		inputs[i] = rng.NormalVector(8, 0, 1)
	}
	scratch := net.newScratch()
	contexts := scratch.forward(inputs)
	assert.Len(t, contexts, 4)
	snapshot := make([]float32, 8)
	copy(snapshot, contexts[3])
	// hidden state resets between sequences
	contexts = scratch.forward(inputs)
	assert.Equal(t, snapshot, contexts[3])
	// scratch shrinks to shorter sequences
	contexts = scratch.forward(inputs[:2])
	assert.Len(t, contexts, 2)
}

func TestEWMAForward(t *testing.T) {
	net := newEWMANetwork(2, 0.5)
	contexts := net.newScratch().forward([][]float32{
		{1, 0},
		{0, 1},
	})
	assert.InDelta(t, 0.5, contexts[0][0], 1e-6)
	assert.InDelta(t, 0, contexts[0][1], 1e-6)
	assert.InDelta(t, 0.25, contexts[1][0], 1e-6)
	assert.InDelta(t, 0.5, contexts[1][1], 1e-6)
}

func TestEWMAStaticAverage(t *testing.T) {
	// with alpha close to zero the context barely moves between steps
	rng := base.NewRandomGenerator(3)
	net := newEWMANetwork(4, 0.001)
	inputs := make([][]float32, 16)
	for i := range inputs {
		inputs[i] = rng.NormalVector(4, 0, 1)
	}
	contexts := net.newScratch().forward(inputs)
	for t2 := 1; t2 < len(contexts); t2++ {
		for k := range contexts[t2] {
			assert.InDelta(t, contexts[t2-1][k], contexts[t2][k], 0.01)
		}
	}
}

func TestSigmoid(t *testing.T) {
	assert.InDelta(t, 0.5, sigmoid(0), 1e-6)
	assert.InDelta(t, 1, sigmoid(100), 1e-6)
	assert.InDelta(t, 0, sigmoid(-100), 1e-6)
	// logit inverts sigmoid
	assert.InDelta(t, 0.3, sigmoid(logit(0.3)), 1e-6)
}
