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
	"github.com/juju/errors"

	"github.com/gorse-io/sbr/base"
)

// Embedding owns a dense matrix of per-item latent vectors. The vector
// dimension is fixed at construction. Rows are only written during the
// serialized optimizer phase, so a looked-up row stays valid until the
// next optimizer step touches it.
type Embedding struct {
	dim    int
	weight *param
}

// newEmbedding creates an embedding table of n rows with every component
// drawn independently from a bounded uniform distribution scaled by the
// embedding dimension.
func newEmbedding(n int32, dim int, rng base.RandomGenerator) *Embedding {
	bound := 1.0 / math32.Sqrt(float32(dim))
	return &Embedding{
		dim:    dim,
		weight: newParam(int(n), dim, rng.UniformVector(int(n)*dim, -bound, bound), true),
	}
}

// Len returns the number of rows.
func (embedding *Embedding) Len() int32 {
	return int32(embedding.weight.rows)
}

// Dim returns the vector dimension.
func (embedding *Embedding) Dim() int {
	return embedding.dim
}

// Lookup returns the owned vector for an id. Ids outside [0, Len()) are a
// programming error and fail immediately.
func (embedding *Embedding) Lookup(id int32) ([]float32, error) {
	if id < 0 || int(id) >= embedding.weight.rows {
		return nil, errors.NotFoundf("embedding row %d of %d", id, embedding.weight.rows)
	}
	return embedding.weight.row(id), nil
}
