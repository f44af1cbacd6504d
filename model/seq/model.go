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

// Package seq implements sequence-aware recommendation models. A model
// consumes each user's interaction history in order, folds it into a
// context vector and scores candidate items against that context.
package seq

import (
	"context"
	"time"

	"github.com/chewxy/math32"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/gorse-io/sbr/base"
	"github.com/gorse-io/sbr/base/log"
	"github.com/gorse-io/sbr/base/parallel"
	"github.com/gorse-io/sbr/base/progress"
	"github.com/gorse-io/sbr/common/floats"
	"github.com/gorse-io/sbr/dataset"
	"github.com/gorse-io/sbr/model"
)

// Supported values for the model.LSTMVariant parameter.
const (
	LSTMNormal  = "normal"
	LSTMCoupled = "coupled"
)

var (
	_ Model = &LSTM{}
	_ Model = &EWMA{}
)

// FitConfig configures one call to Fit.
type FitConfig struct {
	Jobs    int // number of parallel fit workers
	Verbose int // log every Verbose epochs
}

// NewFitConfig creates a default fit config. A single job keeps training
// bit-exact reproducible for a fixed random state.
func NewFitConfig() *FitConfig {
	return &FitConfig{
		Jobs:    1,
		Verbose: 10,
	}
}

// SetJobs sets the number of jobs.
func (config *FitConfig) SetJobs(nJobs int) *FitConfig {
	config.Jobs = nJobs
	return config
}

// SetVerbose sets the verbosity.
func (config *FitConfig) SetVerbose(verbose int) *FitConfig {
	config.Verbose = verbose
	return config
}

// LoadDefaultIfNil loads default settings if config is nil.
func (config *FitConfig) LoadDefaultIfNil() *FitConfig {
	if config == nil {
		return NewFitConfig()
	}
	return config
}

// UserRepresentation is a user's fitted context vector, computed from the
// user's interaction history once and reused to score many candidates.
type UserRepresentation struct {
	context []float32
}

// Context returns the underlying context vector.
func (r *UserRepresentation) Context() []float32 {
	return r.context
}

// Model is the interface of sequence-aware recommendation models.
type Model interface {
	model.Model
	// Fit a model with a train set. Returns the mean loss over the final
	// epoch.
	Fit(ctx context.Context, trainSet *dataset.CompressedInteractions, config *FitConfig) (float32, error)
	// UserRepresentation folds an item history into a context vector.
	UserRepresentation(itemIds []int32) (*UserRepresentation, error)
	// Predict scores candidate items against a user representation.
	Predict(rep *UserRepresentation, itemIds []int32) ([]float32, error)
	// NumItems returns the number of items the model was fitted on.
	NumItems() int32
}

// sequenceBase carries the state and training loop shared by all sequence
// models. Concrete models contribute a recurrent network through the
// buildNetwork hook and validate their own hyper-parameters through
// validateNetwork.
type sequenceBase struct {
	model.BaseModel
	name            string
	buildNetwork    func(dim int, rng base.RandomGenerator) network
	validateNetwork func() error

	// hyper-parameters
	nFactors  int
	lr        float32
	reg       float32
	nEpochs   int
	lossName  string
	optName   string
	maxSeqLen int
	negTrials int

	// fitted state
	numItems  int32
	embedding *Embedding
	itemBias  *param
	net       network
	params    []*param
}

// SetParams sets hyper-parameters shared by all sequence models.
func (s *sequenceBase) SetParams(params model.Params) {
	s.BaseModel.SetParams(params)
	s.nFactors = params.GetInt(model.NFactors, 32)
	s.lr = params.GetFloat32(model.Lr, 0.01)
	s.reg = params.GetFloat32(model.Reg, 0)
	s.nEpochs = params.GetInt(model.NEpochs, 10)
	s.lossName = params.GetString(model.Loss, LossWARP)
	s.optName = params.GetString(model.Optimizer, OptimizerAdagrad)
	s.maxSeqLen = params.GetInt(model.MaxSequenceLength, 0)
	s.negTrials = params.GetInt(model.NegativeTrials, 5)
}

func (s *sequenceBase) validate() error {
	if s.nFactors <= 0 {
		return errors.NotValidf("NFactors = %d", s.nFactors)
	}
	if s.lr <= 0 {
		return errors.NotValidf("Lr = %v", s.lr)
	}
	if s.reg < 0 {
		return errors.NotValidf("Reg = %v", s.reg)
	}
	if s.nEpochs <= 0 {
		return errors.NotValidf("NEpochs = %d", s.nEpochs)
	}
	if s.maxSeqLen < 0 {
		return errors.NotValidf("MaxSequenceLength = %d", s.maxSeqLen)
	}
	if s.negTrials <= 0 {
		return errors.NotValidf("NegativeTrials = %d", s.negTrials)
	}
	if _, ok := lookupLoss(s.lossName); !ok {
		return errors.NotValidf("Loss = %q", s.lossName)
	}
	if s.optName != OptimizerAdagrad && s.optName != OptimizerSGD {
		return errors.NotValidf("Optimizer = %q", s.optName)
	}
	if s.validateNetwork != nil {
		if err := s.validateNetwork(); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// init builds fresh weights for a train set. Any previously fitted state
// is discarded.
func (s *sequenceBase) init(trainSet *dataset.CompressedInteractions) {
	rng := s.GetRandomGenerator()
	s.numItems = trainSet.NumItems()
	s.embedding = newEmbedding(s.numItems, s.nFactors, rng)
	s.itemBias = newZeroParam(int(s.numItems), 1, true)
	s.net = s.buildNetwork(s.nFactors, rng)
	s.params = append([]*param{s.embedding.weight, s.itemBias}, s.net.parameters()...)
}

// Clear clears the model weights.
func (s *sequenceBase) Clear() {
	s.numItems = 0
	s.embedding = nil
	s.itemBias = nil
	s.net = nil
	s.params = nil
}

// Invalid reports whether the model has no weights.
func (s *sequenceBase) Invalid() bool {
	return s == nil || s.embedding == nil
}

// NumItems returns the number of items the model was fitted on.
func (s *sequenceBase) NumItems() int32 {
	return s.numItems
}

// newOptimizer builds the configured optimizer against the current
// parameter set.
func (s *sequenceBase) newOptimizer() optimizer {
	if s.optName == OptimizerSGD {
		return newSGD(s.lr, s.reg)
	}
	return newAdagrad(s.params, s.lr, s.reg)
}

// truncate keeps the most recent entries of a history.
func (s *sequenceBase) truncate(itemIds []int32) []int32 {
	// maxSeqLen bounds the number of model steps, so one extra item is
	// kept as the first target's predecessor.
	if s.maxSeqLen > 0 && len(itemIds) > s.maxSeqLen+1 {
		return itemIds[len(itemIds)-s.maxSeqLen-1:]
	}
	return itemIds
}

// score computes the affinity between a context vector and one item.
func (s *sequenceBase) score(context []float32, itemId int32) float32 {
	return floats.Dot(context, s.embedding.weight.row(itemId)) + s.itemBias.row(itemId)[0]
}

// Fit trains the model on sequences of at least two interactions. Each
// epoch walks the shuffled users in mini-batches of Jobs users: workers
// accumulate gradients for one user each against a fixed snapshot of the
// weights, and the optimizer applies every worker's gradients after the
// batch completes. No weight is written while a worker reads it. With a
// single job every batch holds one user, so training is bit-exact
// reproducible for a fixed random state.
func (s *sequenceBase) Fit(ctx context.Context, trainSet *dataset.CompressedInteractions, config *FitConfig) (float32, error) {
	config = config.LoadDefaultIfNil()
	if config.Jobs < 1 {
		config.Jobs = 1
	}
	if err := s.validate(); err != nil {
		return 0, errors.Trace(err)
	}
	if trainSet == nil || trainSet.Count() == 0 {
		return 0, errors.Trace(dataset.ErrNoInteractions)
	}
	s.init(trainSet)
	users := make([]int32, 0, trainSet.NumUsers())
	for userId := int32(0); userId < trainSet.NumUsers(); userId++ {
		if history, ok := trainSet.User(userId); ok && history.Len() >= 2 {
			users = append(users, userId)
		}
	}
	if len(users) == 0 {
		return 0, errors.NotValidf("train set without any user having two interactions")
	}
	log.Logger().Info("fit "+s.name,
		zap.Int("n_users", len(users)),
		zap.Int32("n_items", s.numItems),
		zap.Int("n_jobs", config.Jobs),
		zap.String("params", s.Params.ToString()))

	rng := s.GetRandomGenerator()
	workers := make([]*fitWorker, config.Jobs)
	for i := range workers {
		workers[i] = newFitWorker(s, rng.Int63())
	}
	optimizer := s.newOptimizer()

	newCtx, span := progress.Start(ctx, s.name+".Fit", s.nEpochs)
	var epochLoss float32
	for epoch := 1; epoch <= s.nEpochs; epoch++ {
		fitStart := time.Now()
		rng.Shuffle(len(users), func(i, j int) {
			users[i], users[j] = users[j], users[i]
		})
		for _, worker := range workers {
			worker.loss, worker.steps = 0, 0
		}
		nBatches := (len(users) + config.Jobs - 1) / config.Jobs
		for _, batch := range parallel.Split(users, nBatches) {
			if err := parallel.Parallel(newCtx, len(batch), config.Jobs, func(workerId, jobId int) error {
				history, _ := trainSet.User(batch[jobId])
				return errors.Trace(workers[workerId].processUser(history))
			}); err != nil {
				span.Fail(err)
				return 0, errors.Trace(err)
			}
			// The optimizer decays dense weights even on zero gradients, so
			// workers that drew no user this batch are skipped.
			for _, worker := range workers {
				if worker.pending > 0 {
					optimizer.step(s.params, worker.grads)
					worker.pending = 0
				}
			}
		}
		var steps int
		epochLoss, steps = 0, 0
		for _, worker := range workers {
			epochLoss += worker.loss
			steps += worker.steps
		}
		if steps > 0 {
			epochLoss /= float32(steps)
		}
		if math32.IsNaN(epochLoss) || math32.IsInf(epochLoss, 0) {
			span.Fail(model.ErrNonFinite)
			return 0, errors.Trace(model.ErrNonFinite)
		}
		fitTime := time.Since(fitStart)
		if epoch%config.Verbose == 0 || epoch == s.nEpochs {
			log.Logger().Info("fit "+s.name,
				zap.Int("epoch", epoch),
				zap.Int("n_epochs", s.nEpochs),
				zap.Float32("loss", epochLoss),
				zap.String("fit_time", fitTime.String()))
		}
		span.Add(1)
	}
	span.End()
	return epochLoss, nil
}

// UserRepresentation folds an item history into a context vector. An empty
// history yields the zero context. The call is a pure read, so concurrent
// callers may share a fitted model.
func (s *sequenceBase) UserRepresentation(itemIds []int32) (*UserRepresentation, error) {
	if s.Invalid() {
		return nil, errors.NotValidf("model is not fitted")
	}
	rep := &UserRepresentation{context: make([]float32, s.nFactors)}
	itemIds = s.truncate(itemIds)
	if len(itemIds) == 0 {
		return rep, nil
	}
	inputs := make([][]float32, 0, len(itemIds))
	for _, itemId := range itemIds {
		input, err := s.embedding.Lookup(itemId)
		if err != nil {
			return nil, errors.Trace(err)
		}
		inputs = append(inputs, input)
	}
	contexts := s.net.newScratch().forward(inputs)
	copy(rep.context, contexts[len(contexts)-1])
	return rep, nil
}

// Predict scores candidate items against a user representation.
func (s *sequenceBase) Predict(rep *UserRepresentation, itemIds []int32) ([]float32, error) {
	if s.Invalid() {
		return nil, errors.NotValidf("model is not fitted")
	}
	if rep == nil {
		return nil, errors.NotValidf("nil user representation")
	}
	scores := make([]float32, len(itemIds))
	for i, itemId := range itemIds {
		if _, err := s.embedding.Lookup(itemId); err != nil {
			return nil, errors.Trace(err)
		}
		scores[i] = s.score(rep.context, itemId)
	}
	return scores, nil
}

// fitWorker is the per-worker training state. Nothing in it is shared:
// workers only read the model weights, and their gradient buffers are
// drained by the optimizer between mini-batches.
type fitWorker struct {
	model     *sequenceBase
	rng       base.RandomGenerator
	lossFunc  pairwiseLoss
	scratch   scratch
	grads     *gradients
	dContexts [][]float32
	one       []float32
	loss      float32
	steps     int
	pending   int // users accumulated since the last optimizer step
}

func newFitWorker(s *sequenceBase, seed int64) *fitWorker {
	lossFunc, _ := lookupLoss(s.lossName)
	return &fitWorker{
		model:    s,
		rng:      base.NewRandomGenerator(seed),
		lossFunc: lossFunc,
		scratch:  s.net.newScratch(),
		grads:    newGradients(s.params),
		one:      []float32{1},
	}
}

func (w *fitWorker) dContext(t int) []float32 {
	for len(w.dContexts) <= t {
		w.dContexts = append(w.dContexts, make([]float32, w.model.nFactors))
	}
	return w.dContexts[t]
}

// processUser runs forward, loss and backward for one user's sequence and
// accumulates gradients into the worker's buffers. The item at each step
// is the positive target of the context built from its predecessors.
func (w *fitWorker) processUser(history dataset.UserHistory) error {
	s := w.model
	interacted := mapset.NewThreadUnsafeSet(history.ItemIds...)
	itemIds := s.truncate(history.ItemIds)
	if len(itemIds) < 2 {
		return nil
	}
	inputs := make([][]float32, 0, len(itemIds)-1)
	for _, itemId := range itemIds[:len(itemIds)-1] {
		input, err := s.embedding.Lookup(itemId)
		if err != nil {
			return errors.Trace(err)
		}
		inputs = append(inputs, input)
	}
	contexts := w.scratch.forward(inputs)
	embeddingGrad, biasGrad := w.grads.buffers[0], w.grads.buffers[1]
	for t, context := range contexts {
		w.dContext(t)
		floats.Zero(w.dContexts[t])
		positive := itemIds[t+1]
		result := w.lossFunc(s.score(context, positive), func() (int32, float32, bool) {
			negative := w.rng.Int31n(s.numItems)
			if interacted.Contains(negative) {
				return negative, 0, false
			}
			return negative, s.score(context, negative), true
		}, s.negTrials)
		w.loss += result.loss
		w.steps++
		if result.hit {
			floats.MulConstAdd(s.embedding.weight.row(positive), result.dPos, w.dContexts[t])
			floats.MulConstAdd(s.embedding.weight.row(result.neg), result.dNeg, w.dContexts[t])
			embeddingGrad.addRow(positive, context, result.dPos)
			embeddingGrad.addRow(result.neg, context, result.dNeg)
			biasGrad.addRow(positive, w.one, result.dPos)
			biasGrad.addRow(result.neg, w.one, result.dNeg)
		}
	}
	dInputs := w.scratch.backward(w.dContexts[:len(contexts)], w.grads.buffers[2:])
	for t, dInput := range dInputs {
		embeddingGrad.addRow(itemIds[t], dInput, 1)
	}
	w.pending++
	return nil
}

// LSTM scores the next item against a context produced by a single-layer
// LSTM over the user's history.
type LSTM struct {
	sequenceBase
	variant string
}

// NewLSTM builds an LSTM model from hyper-parameters.
func NewLSTM(params model.Params) *LSTM {
	lstm := new(LSTM)
	lstm.name = "LSTM"
	lstm.buildNetwork = func(dim int, rng base.RandomGenerator) network {
		return newLSTMNetwork(dim, lstm.variant == LSTMCoupled, rng)
	}
	lstm.validateNetwork = func() error {
		if lstm.variant != LSTMNormal && lstm.variant != LSTMCoupled {
			return errors.NotValidf("LSTMVariant = %q", lstm.variant)
		}
		return nil
	}
	lstm.SetParams(params)
	return lstm
}

// SetParams sets hyper-parameters for the LSTM model.
func (lstm *LSTM) SetParams(params model.Params) {
	lstm.sequenceBase.SetParams(params)
	lstm.variant = params.GetString(model.LSTMVariant, LSTMNormal)
}

// EWMA scores the next item against an exponentially-weighted moving
// average of the user's history. It fits much faster than the LSTM and
// serves as a baseline.
type EWMA struct {
	sequenceBase
	alpha float32
}

// NewEWMA builds an EWMA model from hyper-parameters.
func NewEWMA(params model.Params) *EWMA {
	ewma := new(EWMA)
	ewma.name = "EWMA"
	ewma.buildNetwork = func(dim int, _ base.RandomGenerator) network {
		return newEWMANetwork(dim, ewma.alpha)
	}
	ewma.validateNetwork = func() error {
		if ewma.alpha <= 0 || ewma.alpha >= 1 {
			return errors.NotValidf("Alpha = %v", ewma.alpha)
		}
		return nil
	}
	ewma.SetParams(params)
	return ewma
}

// SetParams sets hyper-parameters for the EWMA model.
func (ewma *EWMA) SetParams(params model.Params) {
	ewma.sequenceBase.SetParams(params)
	ewma.alpha = params.GetFloat32(model.Alpha, 0.3)
}
