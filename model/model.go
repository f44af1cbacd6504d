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

package model

import (
	"github.com/juju/errors"

	"github.com/gorse-io/sbr/base"
)

// ErrNonFinite is returned when a non-finite value is produced during the
// forward or backward pass. Training aborts rather than continuing with
// corrupted parameters; the caller is expected to fix the configuration
// (e.g. a too-large learning rate), so the error is never retried.
var ErrNonFinite = errors.New("non-finite value produced")

// Model is the interface for all models. Any model in this package should
// implement it.
type Model interface {
	// Set parameters.
	SetParams(params Params)
	// Get parameters.
	GetParams() Params
	// Clear model weights.
	Clear()
	// Invalid reports whether the model has no weights.
	Invalid() bool
}

// BaseModel must be included by every recommendation model. Hyper-parameters
// and the random generator are managed by BaseModel.
type BaseModel struct {
	Params    Params               // Hyper-parameters
	rng       base.RandomGenerator // Random generator
	randState int64                // Random seed
}

// SetParams sets hyper-parameters for the BaseModel.
func (model *BaseModel) SetParams(params Params) {
	model.Params = params
	model.randState = model.Params.GetInt64(RandomState, 0)
	model.rng = base.NewRandomGenerator(model.randState)
}

// GetParams returns all hyper-parameters.
func (model *BaseModel) GetParams() Params {
	return model.Params
}

// GetRandomGenerator returns the model's seeded random generator.
func (model *BaseModel) GetRandomGenerator() base.RandomGenerator {
	return model.rng
}
