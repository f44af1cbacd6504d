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
	"context"

	"github.com/juju/errors"
	"github.com/samber/lo"

	"github.com/gorse-io/sbr/base/parallel"
	"github.com/gorse-io/sbr/dataset"
)

// ErrNoEligibleUsers is returned when an evaluation matrix contains no
// user with enough interactions to score.
var ErrNoEligibleUsers = errors.New("no user with at least two interactions to evaluate")

// MRRScore computes the mean reciprocal rank of a fitted model over a
// matrix. For every user with at least two interactions the last item is
// held out as the target, the remaining history builds the user
// representation and the target is ranked against every item the model
// knows. Ties rank the lowest item id first so the score never depends on
// iteration order.
func MRRScore(ctx context.Context, m Model, matrix *dataset.CompressedInteractions, nJobs int) (float32, error) {
	if nJobs < 1 {
		nJobs = 1
	}
	if m.Invalid() {
		return 0, errors.NotValidf("model is not fitted")
	}
	if matrix == nil || matrix.Count() == 0 {
		return 0, errors.Trace(dataset.ErrNoInteractions)
	}
	users := make([]int32, 0, matrix.NumUsers())
	for userId := int32(0); userId < matrix.NumUsers(); userId++ {
		if history, ok := matrix.User(userId); ok && history.Len() >= 2 {
			users = append(users, userId)
		}
	}
	if len(users) == 0 {
		return 0, errors.Trace(ErrNoEligibleUsers)
	}
	candidates := lo.RangeFrom(int32(0), int(m.NumItems()))
	sums := make([]float32, nJobs)
	if err := parallel.Parallel(ctx, len(users), nJobs, func(workerId, jobId int) error {
		history, _ := matrix.User(users[jobId])
		target := history.ItemIds[history.Len()-1]
		if target >= m.NumItems() {
			return errors.NotFoundf("item %d of %d", target, m.NumItems())
		}
		rep, err := m.UserRepresentation(history.ItemIds[:history.Len()-1])
		if err != nil {
			return errors.Trace(err)
		}
		scores, err := m.Predict(rep, candidates)
		if err != nil {
			return errors.Trace(err)
		}
		rank := 1
		targetScore := scores[target]
		for itemId, score := range scores {
			if score > targetScore || (score == targetScore && int32(itemId) < target) {
				rank++
			}
		}
		sums[workerId] += 1 / float32(rank)
		return nil
	}); err != nil {
		return 0, errors.Trace(err)
	}
	var sum float32
	for _, s := range sums {
		sum += s
	}
	return sum / float32(len(users)), nil
}
