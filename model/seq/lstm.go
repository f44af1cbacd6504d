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
	"github.com/gorse-io/sbr/base"
	"github.com/gorse-io/sbr/common/floats"
)

// Gate indices inside the lstmNetwork parameter arrays.
const (
	gateInput = iota
	gateForget
	gateOutput
	gateCell
	numGates
)

// lstmNetwork is a single-layer LSTM whose hidden size equals the input
// size. Every gate carries an input matrix, a recurrent matrix and a bias.
// The coupled variant drops the input gate and derives it from the forget
// gate as 1-f, trading a third of the parameters for slightly less
// expressive gating.
type lstmNetwork struct {
	dim     int
	coupled bool
	wx      [numGates]*param
	wh      [numGates]*param
	b       [numGates]*param
	params  []*param
	wxIdx   [numGates]int
	whIdx   [numGates]int
	bIdx    [numGates]int
}

func newLSTMNetwork(dim int, coupled bool, rng base.RandomGenerator) *lstmNetwork {
	n := &lstmNetwork{dim: dim, coupled: coupled}
	scale := 1 / math32.Sqrt(float32(dim))
	for gate := 0; gate < numGates; gate++ {
		n.wxIdx[gate], n.whIdx[gate], n.bIdx[gate] = -1, -1, -1
		if coupled && gate == gateInput {
			continue
		}
		n.wx[gate] = newParam(dim, dim, rng.NormalVector(dim*dim, 0, scale), false)
		n.wh[gate] = newParam(dim, dim, rng.NormalVector(dim*dim, 0, scale), false)
		n.b[gate] = newZeroParam(1, dim, false)
		n.wxIdx[gate] = len(n.params)
		n.params = append(n.params, n.wx[gate])
		n.whIdx[gate] = len(n.params)
		n.params = append(n.params, n.wh[gate])
		n.bIdx[gate] = len(n.params)
		n.params = append(n.params, n.b[gate])
	}
	return n
}

func (n *lstmNetwork) parameters() []*param {
	return n.params
}

func (n *lstmNetwork) newScratch() scratch {
	return &lstmScratch{net: n}
}

// lstmStep keeps the activations of one timestep needed by backpropagation.
type lstmStep struct {
	x     []float32
	i     []float32
	f     []float32
	o     []float32
	g     []float32
	c     []float32
	tanhC []float32
	h     []float32
	dx    []float32
}

type lstmScratch struct {
	net   *lstmNetwork
	steps []*lstmStep
	used  int
	// backward temporaries, all of length dim
	dh []float32
	dc []float32
	dg []float32
	da []float32
	// dInputs returned by backward, aliasing the per-step dx buffers
	dInputs [][]float32
	hidden  [][]float32
}

func (s *lstmScratch) step(t int) *lstmStep {
	for len(s.steps) <= t {
		dim := s.net.dim
		s.steps = append(s.steps, &lstmStep{
			i:     make([]float32, dim),
			f:     make([]float32, dim),
			o:     make([]float32, dim),
			g:     make([]float32, dim),
			c:     make([]float32, dim),
			tanhC: make([]float32, dim),
			h:     make([]float32, dim),
			dx:    make([]float32, dim),
		})
	}
	return s.steps[t]
}

func (s *lstmScratch) forward(inputs [][]float32) [][]float32 {
	n := s.net
	dim := n.dim
	s.used = len(inputs)
	s.hidden = s.hidden[:0]
	for t, x := range inputs {
		st := s.step(t)
		st.x = x
		var hPrev, cPrev []float32
		if t > 0 {
			hPrev = s.steps[t-1].h
			cPrev = s.steps[t-1].c
		}
		gate := func(g int, activate func(float32) float32, dst []float32) {
			copy(dst, n.b[g].data)
			matVecAdd(n.wx[g], x, dst)
			if hPrev != nil {
				matVecAdd(n.wh[g], hPrev, dst)
			}
			for k := range dst {
				dst[k] = activate(dst[k])
			}
		}
		gate(gateForget, sigmoid, st.f)
		gate(gateOutput, sigmoid, st.o)
		gate(gateCell, math32.Tanh, st.g)
		if n.coupled {
			for k := range st.i {
				st.i[k] = 1 - st.f[k]
			}
		} else {
			gate(gateInput, sigmoid, st.i)
		}
		for k := 0; k < dim; k++ {
			c := st.i[k] * st.g[k]
			if cPrev != nil {
				c += st.f[k] * cPrev[k]
			}
			st.c[k] = c
			st.tanhC[k] = math32.Tanh(c)
			st.h[k] = st.o[k] * st.tanhC[k]
		}
		s.hidden = append(s.hidden, st.h)
	}
	return s.hidden
}

func (s *lstmScratch) backward(dContexts [][]float32, buffers []*gradBuffer) [][]float32 {
	n := s.net
	dim := n.dim
	if s.dh == nil {
		s.dh = make([]float32, dim)
		s.dc = make([]float32, dim)
		s.dg = make([]float32, dim)
		s.da = make([]float32, dim)
	}
	// dh and dc carry the recurrent gradient into the previous step, so
	// they start zeroed and are rebuilt on the way down.
	floats.Zero(s.dh)
	floats.Zero(s.dc)
	s.dInputs = s.dInputs[:0]
	for t := s.used - 1; t >= 0; t-- {
		st := s.steps[t]
		floats.Zero(st.dx)
	}
	for t := s.used - 1; t >= 0; t-- {
		st := s.steps[t]
		var hPrev, cPrev []float32
		if t > 0 {
			hPrev = s.steps[t-1].h
			cPrev = s.steps[t-1].c
		}
		floats.Add(s.dh, dContexts[t])
		// dc += dh * o * (1 - tanh(c)^2)
		for k := 0; k < dim; k++ {
			s.dc[k] += s.dh[k] * st.o[k] * (1 - st.tanhC[k]*st.tanhC[k])
		}
		accumulate := func(g int, da []float32) {
			outerAdd(buffers[n.wxIdx[g]], da, st.x)
			if hPrev != nil {
				outerAdd(buffers[n.whIdx[g]], da, hPrev)
			}
			floats.Add(buffers[n.bIdx[g]].dense, da)
			matTVecAdd(n.wx[g], da, st.dx)
			if t > 0 {
				matTVecAdd(n.wh[g], da, s.dg)
			}
		}
		// s.dg doubles as the accumulator for the next step's dh.
		floats.Zero(s.dg)
		// output gate: da = dh * tanh(c) * o * (1 - o)
		for k := 0; k < dim; k++ {
			s.da[k] = s.dh[k] * st.tanhC[k] * st.o[k] * (1 - st.o[k])
		}
		accumulate(gateOutput, s.da)
		// candidate: da = dc * i * (1 - g^2)
		for k := 0; k < dim; k++ {
			s.da[k] = s.dc[k] * st.i[k] * (1 - st.g[k]*st.g[k])
		}
		accumulate(gateCell, s.da)
		if n.coupled {
			// f enters both terms of c = f*cPrev + (1-f)*g, so its
			// preactivation gradient is dc * (cPrev - g) * f * (1 - f).
			for k := 0; k < dim; k++ {
				prev := float32(0)
				if cPrev != nil {
					prev = cPrev[k]
				}
				s.da[k] = s.dc[k] * (prev - st.g[k]) * st.f[k] * (1 - st.f[k])
			}
			accumulate(gateForget, s.da)
		} else {
			// forget gate: da = dc * cPrev * f * (1 - f)
			for k := 0; k < dim; k++ {
				prev := float32(0)
				if cPrev != nil {
					prev = cPrev[k]
				}
				s.da[k] = s.dc[k] * prev * st.f[k] * (1 - st.f[k])
			}
			accumulate(gateForget, s.da)
			// input gate: da = dc * g * i * (1 - i)
			for k := 0; k < dim; k++ {
				s.da[k] = s.dc[k] * st.g[k] * st.i[k] * (1 - st.i[k])
			}
			accumulate(gateInput, s.da)
		}
		// carry gradients into step t-1
		for k := 0; k < dim; k++ {
			s.dc[k] *= st.f[k]
			s.dh[k] = s.dg[k]
		}
	}
	for t := 0; t < s.used; t++ {
		s.dInputs = append(s.dInputs, s.steps[t].dx)
	}
	return s.dInputs
}
