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
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"

	"github.com/gorse-io/sbr/base"
)

func newSplitDataset(t *testing.T, numUsers, perUser int) *Interactions {
	records := make([]Interaction, 0, numUsers*perUser)
	for userId := 0; userId < numUsers; userId++ {
		for i := 0; i < perUser; i++ {
			records = append(records, Interaction{
				UserId:    int32(userId),
				ItemId:    int32(i % 10),
				Timestamp: int64(i),
			})
		}
	}
	interactions, err := FromRecords(records)
	assert.NoError(t, err)
	return interactions
}

func TestRandomSplit(t *testing.T) {
	data := newSplitDataset(t, 10, 20)
	train, test, err := RandomSplit(data, base.NewRandomGenerator(0), 0.2)
	assert.NoError(t, err)
	assert.Equal(t, 40, test.Len())
	assert.Equal(t, 160, train.Len())
	assert.Equal(t, data.NumUsers(), train.NumUsers())
	assert.Equal(t, data.NumItems(), test.NumItems())

	_, _, err = RandomSplit(data, base.NewRandomGenerator(0), 1.5)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestUserBasedSplit(t *testing.T) {
	data := newSplitDataset(t, 20, 10)
	train, test, err := UserBasedSplit(data, base.NewRandomGenerator(42), 0.3)
	assert.NoError(t, err)

	// every interaction lands in exactly one of the two outputs
	assert.Equal(t, data.Len(), train.Len()+test.Len())
	counts := make(map[Interaction]int)
	for _, record := range data.Data() {
		counts[record]++
	}
	for _, record := range train.Data() {
		counts[record]--
	}
	for _, record := range test.Data() {
		counts[record]--
	}
	for _, count := range counts {
		assert.Zero(t, count)
	}

	// every user keeps at least one training interaction
	trainUsers := make(map[int32]bool)
	for _, record := range train.Data() {
		trainUsers[record.UserId] = true
	}
	for userId := int32(0); userId < data.NumUsers(); userId++ {
		assert.True(t, trainUsers[userId])
	}
}

func TestUserBasedSplitReproducible(t *testing.T) {
	// 3 users, 5 items, each interacting with items 0, 1, 2 in order
	records := make([]Interaction, 0)
	for userId := int32(0); userId < 3; userId++ {
		for itemId := int32(0); itemId < 3; itemId++ {
			records = append(records, Interaction{UserId: userId, ItemId: itemId, Timestamp: int64(itemId)})
		}
	}
	records = append(records, Interaction{UserId: 0, ItemId: 4, Timestamp: 100})
	data, err := FromRecords(records)
	assert.NoError(t, err)

	train1, test1, err := UserBasedSplit(data, base.NewRandomGenerator(19), 0.2)
	assert.NoError(t, err)
	train2, test2, err := UserBasedSplit(data, base.NewRandomGenerator(19), 0.2)
	assert.NoError(t, err)
	assert.Equal(t, train1.Data(), train2.Data())
	assert.Equal(t, test1.Data(), test2.Data())

	trainUsers := make(map[int32]bool)
	for _, record := range train1.Data() {
		trainUsers[record.UserId] = true
	}
	for userId := int32(0); userId < 3; userId++ {
		assert.True(t, trainUsers[userId])
	}
}

func TestUserBasedSplitKeepsOrder(t *testing.T) {
	data := newSplitDataset(t, 5, 30)
	train, test, err := UserBasedSplit(data, base.NewRandomGenerator(7), 0.5)
	assert.NoError(t, err)
	for _, compressed := range []*CompressedInteractions{train.ToCompressed(), test.ToCompressed()} {
		for userId := int32(0); userId < compressed.NumUsers(); userId++ {
			user, _ := compressed.User(userId)
			for i := 1; i < user.Len(); i++ {
				assert.LessOrEqual(t, user.Timestamps[i-1], user.Timestamps[i])
			}
		}
	}
}

func TestUserBasedSplitEdgeCases(t *testing.T) {
	data := newSplitDataset(t, 4, 5)
	// the whole dataset stays in train when the fraction is zero
	train, test, err := UserBasedSplit(data, base.NewRandomGenerator(0), 0)
	assert.NoError(t, err)
	assert.Equal(t, data.Len(), train.Len())
	assert.Zero(t, test.Len())
	// a full test fraction still keeps one interaction per user in train
	train, test, err = UserBasedSplit(data, base.NewRandomGenerator(0), 1)
	assert.NoError(t, err)
	assert.Equal(t, 4, train.Len())
	assert.Equal(t, data.Len()-4, test.Len())

	_, _, err = UserBasedSplit(data, base.NewRandomGenerator(0), -0.1)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, _, err = UserBasedSplit(NewInteractions(1, 1), base.NewRandomGenerator(0), 0.5)
	assert.ErrorIs(t, err, ErrNoInteractions)
}
