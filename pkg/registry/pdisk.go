// Copyright 2024 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package registry holds the set of known PDisks and the sorted
// position index used to range-scan them by failure-topology prefix.
package registry

import (
	"github.com/google/btree"

	"groupmapper/pkg/proto"
	"groupmapper/pkg/topology"
)

// PDiskRecord is the caller-supplied, immutable+configured view of a
// disk passed to RegisterPDisk (spec.md §6, TPDiskRecord).
type PDiskRecord struct {
	PDiskID        proto.PDiskID
	Location       topology.Location
	MaxSlots       uint32
	Usable         bool
	Decommitted    bool
	Operational    bool
	NumSlots       uint32
	SpaceAvailable int64
	Groups         []proto.GroupID
}

type groupItem proto.GroupID

func (g groupItem) Less(than btree.Item) bool { return g < than.(groupItem) }

// PDiskInfo is the registry's live record for a disk: the immutable and
// configured fields from PDiskRecord, its flattened topology Position,
// and the mutable accounting the façade updates on every commit.
// Groups is kept in a btree rather than a manually spliced slice so
// InsertGroup/EraseGroup stay O(log n) and iteration is always in
// ascending order (spec.md §3, "sorted Groups").
type PDiskInfo struct {
	PDiskID     proto.PDiskID
	Position    topology.Position
	MaxSlots    uint32
	Usable      bool
	Decommitted bool
	Operational bool

	NumSlots       uint32
	SpaceAvailable int64
	groups         *btree.BTree

	// Derived, recomputed once per allocation pass by the allocator.
	Matching               bool
	NumDomainMatchingDisks uint32
}

func newPDiskInfo(rec PDiskRecord, pos topology.Position) *PDiskInfo {
	pi := &PDiskInfo{
		PDiskID:        rec.PDiskID,
		Position:       pos,
		MaxSlots:       rec.MaxSlots,
		Usable:         rec.Usable,
		Decommitted:    rec.Decommitted,
		Operational:    rec.Operational,
		NumSlots:       rec.NumSlots,
		SpaceAvailable: rec.SpaceAvailable,
		groups:         btree.New(16),
	}
	for _, g := range rec.Groups {
		pi.groups.ReplaceOrInsert(groupItem(g))
	}
	return pi
}

// IsUsable reports the disk's baseline usability ignoring per-call
// constraints (space/forbidden/old-group), matching TPDiskInfo::IsUsable.
func (p *PDiskInfo) IsUsable() bool {
	return p.Usable && !p.Decommitted && p.NumSlots < p.MaxSlots
}

// GetPickerScore is the bisector's monotone scalar.
func (p *PDiskInfo) GetPickerScore() uint32 { return p.NumSlots }

// InsertGroup adds groupID to the disk's hosted-group set, a no-op if
// already present.
func (p *PDiskInfo) InsertGroup(groupID proto.GroupID) {
	p.groups.ReplaceOrInsert(groupItem(groupID))
}

// EraseGroup removes groupID from the disk's hosted-group set.
func (p *PDiskInfo) EraseGroup(groupID proto.GroupID) {
	p.groups.Delete(groupItem(groupID))
}

// Groups returns the hosted group ids in ascending order.
func (p *PDiskInfo) Groups() []proto.GroupID {
	out := make([]proto.GroupID, 0, p.groups.Len())
	p.groups.Ascend(func(it btree.Item) bool {
		out = append(out, proto.GroupID(it.(groupItem)))
		return true
	})
	return out
}

// RangeGroups calls fn for every hosted group id, stopping early if fn
// returns false. Avoids allocating a slice on the allocator's hot path.
func (p *PDiskInfo) RangeGroups(fn func(proto.GroupID) bool) {
	p.groups.Ascend(func(it btree.Item) bool {
		return fn(proto.GroupID(it.(groupItem)))
	})
}
