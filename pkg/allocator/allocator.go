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

package allocator

import (
	"github.com/bits-and-blooms/bitset"

	"groupmapper/pkg/geometry"
	"groupmapper/pkg/layout"
	"groupmapper/pkg/proto"
	"groupmapper/pkg/registry"
)

// Options carries the per-call constraints from spec.md §4.1/§6:
// forbidden disks, minimum free space and the operational-only flag,
// plus the bisector's picker-score cap and the tie-break direction.
type Options struct {
	RequiredSpace      int64
	RequireOperational bool
	ForbiddenDisks     map[proto.PDiskID]bool
	// MaxPickerScore forbids any disk whose NumSlots exceeds this
	// threshold. Used by the score bisector; disabled (no limit) when
	// negative.
	MaxPickerScore int64
	// Randomize flips the locality-boost comparison direction, per
	// spec.md §4.5.1's note that the tie-break is order-dependent, not
	// randomness-dependent, despite the name.
	Randomize bool
}

// Allocator runs one allocation attempt against a fixed snapshot of the
// registry. It is not reentrant and not safe for concurrent use: it
// owns mutable per-call state (the group layout, the undo log, the
// used-disk bitset) that a second concurrent call would corrupt.
type Allocator struct {
	reg    *registry.Registry
	geom   geometry.GroupGeometry
	opts   Options
	layout *layout.GroupLayout

	diskIndex map[proto.PDiskID]int
	disks     []*registry.PDiskInfo
	used      *bitset.BitSet // dense index -> currently placed in this group

	group []proto.PDiskID // order number -> pdisk, InvalidPDiskID if empty
	undo  []undoEntry

	// localityFactor[g] counts how many currently-placed, non-decommitted
	// peers of the under-construction group already host group g
	// (spec.md §4.4, §4.5.1). It is maintained incrementally alongside
	// the layout by placeNoUndo/place/Revert.
	localityFactor map[proto.GroupID]uint32
}

// New builds an allocator for one AllocateGroup call. existing is the
// geometry-shaped starting point (already ResizeGroup'd by the
// caller); its non-empty slots are pre-seeded as already placed.
func New(reg *registry.Registry, geom geometry.GroupGeometry, opts Options, existing geometry.GroupDefinition) *Allocator {
	a := &Allocator{
		reg:            reg,
		geom:           geom,
		opts:           opts,
		layout:         layout.NewGroupLayout(geom),
		diskIndex:      make(map[proto.PDiskID]int, reg.Len()),
		disks:          make([]*registry.PDiskInfo, 0, reg.Len()),
		group:          make([]proto.PDiskID, geom.TotalVDisks()),
		localityFactor: make(map[proto.GroupID]uint32),
	}
	for i := range a.group {
		a.group[i] = proto.InvalidPDiskID
	}

	for _, e := range reg.ByPosition() {
		a.diskIndex[e.Disk.PDiskID] = len(a.disks)
		a.disks = append(a.disks, e.Disk)
	}
	a.used = bitset.New(uint(len(a.disks)))
	a.setupMatchingDisks()

	if existing != nil {
		geom.Traverse(existing, func(vdisk proto.VDiskIDShort, pdiskID proto.PDiskID) {
			if !pdiskID.Valid() {
				return
			}
			order := geom.OrderNumber(vdisk)
			a.placeNoUndo(order, pdiskID)
		})
	}

	return a
}

// Group returns the current (possibly partial) assignment.
func (a *Allocator) Group() []proto.PDiskID { return a.group }

// setupMatchingDisks recomputes, for every disk, how many other
// currently-usable disks share its physical domain entity, matching
// TAllocator::SetupMatchingDisks. Run once per allocation call: the
// result lives on the shared registry.PDiskInfo (spec.md §3 calls it
// "derived, recomputed once per allocation pass").
func (a *Allocator) setupMatchingDisks() {
	counts := make(map[proto.EntityID]uint32)
	for _, pd := range a.disks {
		pd.Matching = a.diskIsUsable(pd)
		if pd.Matching {
			counts[pd.Position.Domain]++
		}
	}
	for _, pd := range a.disks {
		if pd.Matching {
			// Exclude the disk itself from its own count.
			pd.NumDomainMatchingDisks = counts[pd.Position.Domain] - 1
		} else {
			pd.NumDomainMatchingDisks = 0
		}
	}
}

// diskIsUsable reports whether pd may host a brand-new VDisk under
// this call's constraints, matching TAllocator::DiskIsUsable: base
// usability, plus the operational/space/forbidden/picker-score gates.
func (a *Allocator) diskIsUsable(pd *registry.PDiskInfo) bool {
	if !pd.IsUsable() {
		return false
	}
	if a.opts.ForbiddenDisks[pd.PDiskID] {
		return false
	}
	if a.opts.RequireOperational && !pd.Operational {
		return false
	}
	if pd.SpaceAvailable < a.opts.RequiredSpace {
		return false
	}
	if a.opts.MaxPickerScore >= 0 && int64(pd.GetPickerScore()) > a.opts.MaxPickerScore {
		return false
	}
	return true
}

// placeNoUndo seeds a pre-existing assignment (no undo entry, since
// ResizeGroup'd input is never reverted mid-search). A Decommitted disk
// is honored as occupying the slot but, per spec.md §9's open-question
// resolution, never contributes to the layout score.
func (a *Allocator) placeNoUndo(orderNumber uint32, pdiskID proto.PDiskID) {
	a.group[orderNumber] = pdiskID
	idx, ok := a.diskIndex[pdiskID]
	if !ok {
		return
	}
	a.used.Set(uint(idx))
	pd := a.disks[idx]
	if !pd.Decommitted {
		a.layout.AddDisk(pd.Position, orderNumber)
		pd.RangeGroups(func(g proto.GroupID) bool {
			a.localityFactor[g]++
			return true
		})
	}
}

// place commits pdiskID to orderNumber and logs it for Revert.
func (a *Allocator) place(orderNumber uint32, pdiskID proto.PDiskID) {
	a.placeNoUndo(orderNumber, pdiskID)
	a.undo = append(a.undo, undoEntry{orderNumber: orderNumber, pdiskID: pdiskID})
}

// mark is the length of the undo log, a checkpoint Revert rewinds to.
func (a *Allocator) mark() int { return len(a.undo) }

// Revert undoes every placement logged since mark.
func (a *Allocator) Revert(mark int) {
	for len(a.undo) > mark {
		e := a.undo[len(a.undo)-1]
		a.undo = a.undo[:len(a.undo)-1]
		a.group[e.orderNumber] = proto.InvalidPDiskID
		if idx, ok := a.diskIndex[e.pdiskID]; ok {
			a.used.Clear(uint(idx))
		}
		pd := a.disks[a.diskIndex[e.pdiskID]]
		a.layout.RemoveDisk(pd.Position, e.orderNumber)
		// place() never logs a decommitted disk (diskIsUsable excludes
		// them), so the locality update here always mirrors placeNoUndo's.
		pd.RangeGroups(func(g proto.GroupID) bool {
			if a.localityFactor[g] <= 1 {
				delete(a.localityFactor, g)
			} else {
				a.localityFactor[g]--
			}
			return true
		})
	}
}

// GetLocalityFactor sums localityFactor over every group pd currently
// hosts (spec.md §4.5.1's "locality boost"): the more of pd's existing
// groups overlap with groups already represented among this call's
// placed peers, the higher the score.
func (a *Allocator) GetLocalityFactor(pd *registry.PDiskInfo) uint32 {
	var sum uint32
	pd.RangeGroups(func(g proto.GroupID) bool {
		sum += a.localityFactor[g]
		return true
	})
	return sum
}

