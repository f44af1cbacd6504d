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
	"sort"

	"github.com/juju/errors"
)

// ErrNoInteractions is returned when an operation requires a non-empty
// set of interactions.
var ErrNoInteractions = errors.New("no interactions were supplied")

// Interaction is a single (user, item, timestamp) record. User and item
// ids are dense integers in [0, numUsers) and [0, numItems).
type Interaction struct {
	UserId    int32
	ItemId    int32
	Timestamp int64
}

// Interactions is a collection of individual interactions. It is the
// single source of truth: compressed views are derived from it and never
// mutated independently.
type Interactions struct {
	numUsers     int32
	numItems     int32
	interactions []Interaction
}

// NewInteractions creates an empty interactions collection with the given
// shape.
func NewInteractions(numUsers, numItems int32) *Interactions {
	return &Interactions{
		numUsers: numUsers,
		numItems: numItems,
	}
}

// FromRecords creates an interactions collection from records, inferring
// the shape from the largest user and item ids.
func FromRecords(records []Interaction) (*Interactions, error) {
	if len(records) == 0 {
		return nil, errors.Trace(ErrNoInteractions)
	}
	var numUsers, numItems int32
	for _, record := range records {
		numUsers = max(numUsers, record.UserId+1)
		numItems = max(numItems, record.ItemId+1)
	}
	return &Interactions{
		numUsers:     numUsers,
		numItems:     numItems,
		interactions: records,
	}, nil
}

// Push adds a new interaction. The shape grows if the record's ids exceed
// the current shape.
func (interactions *Interactions) Push(record Interaction) {
	interactions.numUsers = max(interactions.numUsers, record.UserId+1)
	interactions.numItems = max(interactions.numItems, record.ItemId+1)
	interactions.interactions = append(interactions.interactions, record)
}

// Data returns the underlying records.
func (interactions *Interactions) Data() []Interaction {
	return interactions.interactions
}

// Len returns the number of contained interactions.
func (interactions *Interactions) Len() int {
	return len(interactions.interactions)
}

// IsEmpty checks if there are no interactions.
func (interactions *Interactions) IsEmpty() bool {
	return interactions.Len() == 0
}

// NumUsers returns the number of users.
func (interactions *Interactions) NumUsers() int32 {
	return interactions.numUsers
}

// NumItems returns the number of items.
func (interactions *Interactions) NumItems() int32 {
	return interactions.numItems
}

// Shape returns (numUsers, numItems).
func (interactions *Interactions) Shape() (int32, int32) {
	return interactions.numUsers, interactions.numItems
}

func (interactions *Interactions) withRecords(records []Interaction) *Interactions {
	return &Interactions{
		numUsers:     interactions.numUsers,
		numItems:     interactions.numItems,
		interactions: records,
	}
}

// ToCompressed converts to the compressed representation. Both the
// row-compressed (per-user) and column-compressed (per-item) views are
// built from the same sorted entries, so they always agree.
func (interactions *Interactions) ToCompressed() *CompressedInteractions {
	data := make([]Interaction, len(interactions.interactions))
	copy(data, interactions.interactions)
	// Arrange by user, then by timestamp, so every user's row is their
	// chronological sequence.
	sort.SliceStable(data, func(i, j int) bool {
		if data[i].UserId != data[j].UserId {
			return data[i].UserId < data[j].UserId
		}
		return data[i].Timestamp < data[j].Timestamp
	})
	compressed := &CompressedInteractions{
		numUsers:   interactions.numUsers,
		numItems:   interactions.numItems,
		userPtr:    make([]int, interactions.numUsers+1),
		itemIds:    make([]int32, 0, len(data)),
		timestamps: make([]int64, 0, len(data)),
		itemPtr:    make([]int, interactions.numItems+1),
		userIds:    make([]int32, len(data)),
	}
	for _, record := range data {
		compressed.itemIds = append(compressed.itemIds, record.ItemId)
		compressed.timestamps = append(compressed.timestamps, record.Timestamp)
		compressed.userPtr[record.UserId+1]++
		compressed.itemPtr[record.ItemId+1]++
	}
	for i := 1; i < len(compressed.userPtr); i++ {
		compressed.userPtr[i] += compressed.userPtr[i-1]
	}
	for i := 1; i < len(compressed.itemPtr); i++ {
		compressed.itemPtr[i] += compressed.itemPtr[i-1]
	}
	// Fill the column view. Offsets walk forward inside each column so
	// users appear in the same order as the sorted entries.
	offsets := make([]int, interactions.numItems)
	for _, record := range data {
		compressed.userIds[compressed.itemPtr[record.ItemId]+offsets[record.ItemId]] = record.UserId
		offsets[record.ItemId]++
	}
	return compressed
}

// CompressedInteractions is a read-only representation of interactions
// where entries are arranged by user and by timestamp. A column-compressed
// view by item is kept alongside the row-compressed view by user.
//
// Normally created by [Interactions.ToCompressed].
type CompressedInteractions struct {
	numUsers   int32
	numItems   int32
	userPtr    []int
	itemIds    []int32
	timestamps []int64
	itemPtr    []int
	userIds    []int32
}

// UserHistory is a single user's interactions, arranged from earliest to
// latest.
type UserHistory struct {
	UserId     int32
	ItemIds    []int32
	Timestamps []int64
}

// Len returns the length of the history.
func (user UserHistory) Len() int {
	return len(user.ItemIds)
}

// IsEmpty checks if the history contains no interactions.
func (user UserHistory) IsEmpty() bool {
	return len(user.ItemIds) == 0
}

// User returns a particular user's chronological history.
func (compressed *CompressedInteractions) User(userId int32) (UserHistory, bool) {
	if userId < 0 || userId >= compressed.numUsers {
		return UserHistory{}, false
	}
	start := compressed.userPtr[userId]
	stop := compressed.userPtr[userId+1]
	return UserHistory{
		UserId:     userId,
		ItemIds:    compressed.itemIds[start:stop],
		Timestamps: compressed.timestamps[start:stop],
	}, true
}

// ItemUsers returns the users who interacted with an item.
func (compressed *CompressedInteractions) ItemUsers(itemId int32) []int32 {
	if itemId < 0 || itemId >= compressed.numItems {
		return nil
	}
	return compressed.userIds[compressed.itemPtr[itemId]:compressed.itemPtr[itemId+1]]
}

// Count returns the number of entries.
func (compressed *CompressedInteractions) Count() int {
	return len(compressed.itemIds)
}

// NumUsers returns the number of users.
func (compressed *CompressedInteractions) NumUsers() int32 {
	return compressed.numUsers
}

// NumItems returns the number of items.
func (compressed *CompressedInteractions) NumItems() int32 {
	return compressed.numItems
}

// Shape returns (numUsers, numItems).
func (compressed *CompressedInteractions) Shape() (int32, int32) {
	return compressed.numUsers, compressed.numItems
}

// ToInteractions converts back to the triplet representation.
func (compressed *CompressedInteractions) ToInteractions() *Interactions {
	records := make([]Interaction, 0, compressed.Count())
	for userId := int32(0); userId < compressed.numUsers; userId++ {
		user, _ := compressed.User(userId)
		for i := range user.ItemIds {
			records = append(records, Interaction{
				UserId:    userId,
				ItemId:    user.ItemIds[i],
				Timestamp: user.Timestamps[i],
			})
		}
	}
	return &Interactions{
		numUsers:     compressed.numUsers,
		numItems:     compressed.numItems,
		interactions: records,
	}
}
