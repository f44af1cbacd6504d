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
	"github.com/gorse-io/sbr/common/floats"
)

// ewmaNetwork folds a sequence into an exponentially-weighted moving
// average of its embeddings:
//
//	c_t = (1 - alpha) * c_{t-1} + alpha * x_t
//
// The smoothing factor is stored as a preactivation scalar and squashed
// through a sigmoid, so gradient steps can never push it outside (0, 1).
type ewmaNetwork struct {
	dim int
	a   *param
}

func newEWMANetwork(dim int, alpha float32) *ewmaNetwork {
	return &ewmaNetwork{
		dim: dim,
		a:   newParam(1, 1, []float32{logit(alpha)}, false),
	}
}

// alpha returns the current smoothing factor.
func (n *ewmaNetwork) alpha() float32 {
	return sigmoid(n.a.data[0])
}

func (n *ewmaNetwork) parameters() []*param {
	return []*param{n.a}
}

func (n *ewmaNetwork) newScratch() scratch {
	return &ewmaScratch{net: n}
}

type ewmaScratch struct {
	net      *ewmaNetwork
	inputs   [][]float32
	contexts [][]float32
	dInputs  [][]float32
	dc       []float32
}

func (s *ewmaScratch) grow(t int) {
	for len(s.contexts) <= t {
		s.contexts = append(s.contexts, make([]float32, s.net.dim))
		s.dInputs = append(s.dInputs, make([]float32, s.net.dim))
	}
}

func (s *ewmaScratch) forward(inputs [][]float32) [][]float32 {
	alpha := s.net.alpha()
	s.inputs = inputs
	s.grow(len(inputs) - 1)
	for t, x := range inputs {
		c := s.contexts[t]
		floats.MulConstTo(x, alpha, c)
		if t > 0 {
			floats.MulConstAdd(s.contexts[t-1], 1-alpha, c)
		}
	}
	return s.contexts[:len(inputs)]
}

func (s *ewmaScratch) backward(dContexts [][]float32, buffers []*gradBuffer) [][]float32 {
	alpha := s.net.alpha()
	if s.dc == nil {
		s.dc = make([]float32, s.net.dim)
	}
	floats.Zero(s.dc)
	var dAlpha float32
	for t := len(dContexts) - 1; t >= 0; t-- {
		// dc accumulates the gradient flowing into c_t from later steps.
		floats.MulConst(s.dc, 1-alpha)
		floats.Add(s.dc, dContexts[t])
		floats.MulConstTo(s.dc, alpha, s.dInputs[t])
		// d(c_t)/d(alpha) = x_t - c_{t-1}
		dAlpha += floats.Dot(s.dc, s.inputs[t])
		if t > 0 {
			dAlpha -= floats.Dot(s.dc, s.contexts[t-1])
		}
	}
	// chain through the sigmoid parameterization
	buffers[0].dense[0] += dAlpha * alpha * (1 - alpha)
	return s.dInputs[:len(dContexts)]
}
