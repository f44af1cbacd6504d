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

const epsilon = 1e-10

// Optimizer names accepted by the Optimizer hyper-parameter.
const (
	OptimizerAdagrad = "adagrad"
	OptimizerSGD     = "sgd"
)

// optimizer applies accumulated gradients to parameters. Steps run in the
// serialized phase after all workers of a minibatch have finished, never
// concurrently with the forward or backward pass.
type optimizer interface {
	// step applies the gradients in grads to params and consumes them.
	// Every parameter element that received a nonzero gradient is updated.
	step(params []*param, grads *gradients)
}

// adagrad keeps one non-negative accumulator per parameter element. The
// accumulator is the monotone sum of squared gradients and scales the
// effective learning rate down over time:
//
//	acc += g²
//	w -= lr / sqrt(acc + ε) * g + reg * w
//
// Weight decay is applied multiplicatively each step and never enters the
// accumulator.
type adagrad struct {
	lr    float32
	reg   float32
	state [][]float32
}

func newAdagrad(params []*param, lr, reg float32) optimizer {
	state := make([][]float32, len(params))
	for i, p := range params {
		state[i] = make([]float32, p.size())
	}
	return &adagrad{lr: lr, reg: reg, state: state}
}

func (o *adagrad) step(params []*param, grads *gradients) {
	for i, p := range params {
		buffer := grads.buffers[i]
		if p.sparse {
			for id, grad := range buffer.rows {
				row := p.row(id)
				acc := o.state[i][int(id)*p.cols : (int(id)+1)*p.cols]
				o.apply(row, grad, acc)
			}
		} else {
			o.apply(p.data, buffer.dense, o.state[i])
		}
		buffer.reset()
	}
}

func (o *adagrad) apply(w, g, acc []float32) {
	for i := range w {
		acc[i] += g[i] * g[i]
		w[i] -= o.lr/math32.Sqrt(acc[i]+epsilon)*g[i] + o.reg*w[i]
	}
}

// sgd is plain stochastic gradient descent with l2 weight decay.
type sgd struct {
	lr  float32
	reg float32
}

func newSGD(lr, reg float32) optimizer {
	return &sgd{lr: lr, reg: reg}
}

func (o *sgd) step(params []*param, grads *gradients) {
	for i, p := range params {
		buffer := grads.buffers[i]
		if p.sparse {
			for id, grad := range buffer.rows {
				o.apply(p.row(id), grad)
			}
		} else {
			o.apply(p.data, buffer.dense)
		}
		buffer.reset()
	}
}

func (o *sgd) apply(w, g []float32) {
	for i := range w {
		w[i] -= o.lr * (g[i] + o.reg*w[i])
	}
}
