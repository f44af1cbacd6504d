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

// network is the recurrent core shared by sequence models. It turns a
// sequence of item embeddings into one context vector per step, and
// backpropagates an upstream gradient per step. The variant set is closed:
// LSTM gating and exponentially-weighted moving averages.
type network interface {
	// parameters returns the trainable tensors in a stable order.
	parameters() []*param
	// newScratch creates a worker-local workspace. Scratches own all
	// forward state, so independent workers never share mutable memory.
	newScratch() scratch
}

// scratch is a single worker's workspace for one network.
type scratch interface {
	// forward consumes a sequence of input embeddings and returns the
	// context emitted after each step. Hidden state starts at zero for
	// every call: sequences never carry state across users. The returned
	// slices stay valid until the next forward call.
	forward(inputs [][]float32) [][]float32
	// backward consumes the gradient w.r.t. each context of the last
	// forward call, accumulates parameter gradients into buffers (aligned
	// with the network's parameters) and returns the gradient w.r.t. each
	// input.
	backward(dContexts [][]float32, buffers []*gradBuffer) [][]float32
}

// sigmoid computes the logistic function without overflowing for large
// magnitude inputs.
func sigmoid(x float32) float32 {
	if x >= 0 {
		return 1 / (1 + math32.Exp(-x))
	}
	e := math32.Exp(x)
	return e / (1 + e)
}

// logit is the inverse of sigmoid.
func logit(p float32) float32 {
	return math32.Log(p / (1 - p))
}
