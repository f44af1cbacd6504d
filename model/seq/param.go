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

// param is a trainable tensor of parameters stored row-major. Sparse
// parameters (embedding tables) are updated row-wise; dense parameters
// (gate weights) are updated as a whole.
type param struct {
	rows   int
	cols   int
	data   []float32
	sparse bool
}

func newParam(rows, cols int, data []float32, sparse bool) *param {
	if len(data) != rows*cols {
		panic("seq: parameter shape does not match data length")
	}
	return &param{
		rows:   rows,
		cols:   cols,
		data:   data,
		sparse: sparse,
	}
}

func newZeroParam(rows, cols int, sparse bool) *param {
	return newParam(rows, cols, make([]float32, rows*cols), sparse)
}

func (p *param) row(i int32) []float32 {
	return p.data[int(i)*p.cols : (int(i)+1)*p.cols]
}

func (p *param) size() int {
	return len(p.data)
}

// gradBuffer accumulates gradients for one parameter tensor inside a
// single worker. Gradients for the same row within one step sum instead
// of overwriting. Nothing is applied to the parameters until the
// serialized optimizer phase.
type gradBuffer struct {
	cols  int
	dense []float32
	rows  map[int32][]float32
}

func newGradBuffer(p *param) *gradBuffer {
	buffer := &gradBuffer{cols: p.cols}
	if p.sparse {
		buffer.rows = make(map[int32][]float32)
	} else {
		buffer.dense = make([]float32, p.size())
	}
	return buffer
}

// row returns the gradient row for a dense parameter.
func (buffer *gradBuffer) row(i int32) []float32 {
	return buffer.dense[int(i)*buffer.cols : (int(i)+1)*buffer.cols]
}

// addRow accumulates a scaled gradient into a sparse parameter row:
// grad[id] += v * c.
func (buffer *gradBuffer) addRow(id int32, v []float32, c float32) {
	grad, ok := buffer.rows[id]
	if !ok {
		grad = make([]float32, buffer.cols)
		buffer.rows[id] = grad
	}
	floats.MulConstAdd(v, c, grad)
}

func (buffer *gradBuffer) reset() {
	if buffer.dense != nil {
		floats.Zero(buffer.dense)
	}
	if len(buffer.rows) > 0 {
		buffer.rows = make(map[int32][]float32)
	}
}

// gradients holds one gradient buffer per model parameter, aligned with
// the slice returned by the model's parameters method.
type gradients struct {
	buffers []*gradBuffer
}

func newGradients(params []*param) *gradients {
	buffers := make([]*gradBuffer, len(params))
	for i, p := range params {
		buffers[i] = newGradBuffer(p)
	}
	return &gradients{buffers: buffers}
}

func (g *gradients) reset() {
	for _, buffer := range g.buffers {
		buffer.reset()
	}
}

// matVecAdd computes dst += W x where W has len(dst) rows and len(x)
// columns.
func matVecAdd(w *param, x, dst []float32) {
	for r := range dst {
		dst[r] += floats.Dot(w.row(int32(r)), x)
	}
}

// matTVecAdd computes dst += Wᵀ a where W has len(a) rows and len(dst)
// columns.
func matTVecAdd(w *param, a, dst []float32) {
	for r := range a {
		floats.MulConstAdd(w.row(int32(r)), a[r], dst)
	}
}

// outerAdd accumulates the outer product into a dense gradient buffer:
// grad += a xᵀ.
func outerAdd(buffer *gradBuffer, a, x []float32) {
	for r := range a {
		floats.MulConstAdd(x, a[r], buffer.row(int32(r)))
	}
}
