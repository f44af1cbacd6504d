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

package dataset

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/juju/errors"

	"github.com/gorse-io/sbr/base"
)

// RandomSplit splits interactions between test and training sets by
// shuffling all records and cutting at testFraction.
func RandomSplit(data *Interactions, rng base.RandomGenerator, testFraction float32) (*Interactions, *Interactions, error) {
	if testFraction < 0 || testFraction > 1 {
		return nil, nil, errors.NotValidf("test fraction %v", testFraction)
	}
	if data.IsEmpty() {
		return nil, nil, errors.Trace(ErrNoInteractions)
	}
	shuffled := make([]Interaction, data.Len())
	copy(shuffled, data.Data())
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	cut := int(testFraction * float32(len(shuffled)))
	test := data.withRecords(shuffled[:cut])
	train := data.withRecords(shuffled[cut:])
	return train, test, nil
}

// UserBasedSplit splits interactions between training and test sets by
// holding out a fraction of every user's interactions. For each user
// independently, each interaction is routed to the test set with
// probability testFraction, otherwise to the training set. A user's first
// interaction is kept in the training set if all of their interactions
// would otherwise land in the test set, so every user with at least one
// interaction is present in the training set. Record order, and therefore
// timestamp order within each user, is preserved in both outputs.
func UserBasedSplit(data *Interactions, rng base.RandomGenerator, testFraction float32) (*Interactions, *Interactions, error) {
	if testFraction < 0 || testFraction > 1 {
		return nil, nil, errors.NotValidf("test fraction %v", testFraction)
	}
	if data.IsEmpty() {
		return nil, nil, errors.Trace(ErrNoInteractions)
	}
	trainRecords := make([]Interaction, 0, data.Len())
	testRecords := make([]Interaction, 0, data.Len())
	inTrain := bitset.New(uint(data.NumUsers()))
	firstTestIndex := make(map[int32]int)
	for _, record := range data.Data() {
		if rng.Float32() < testFraction {
			if _, seen := firstTestIndex[record.UserId]; !seen {
				firstTestIndex[record.UserId] = len(testRecords)
			}
			testRecords = append(testRecords, record)
		} else {
			inTrain.Set(uint(record.UserId))
			trainRecords = append(trainRecords, record)
		}
	}
	// Users whose interactions all went to test get their earliest test
	// interaction moved back to train.
	moved := make(map[int]struct{})
	for userId, index := range firstTestIndex {
		if !inTrain.Test(uint(userId)) {
			trainRecords = append(trainRecords, testRecords[index])
			moved[index] = struct{}{}
		}
	}
	if len(moved) > 0 {
		kept := testRecords[:0]
		for i, record := range testRecords {
			if _, ok := moved[i]; !ok {
				kept = append(kept, record)
			}
		}
		testRecords = kept
	}
	return data.withRecords(trainRecords), data.withRecords(testRecords), nil
}
