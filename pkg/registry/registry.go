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

package registry

import (
	"fmt"
	"sort"

	"groupmapper/pkg/proto"
	"groupmapper/pkg/topology"
)

// PositionEntry is one row of the position index: a flattened position
// paired with the disk it belongs to.
type PositionEntry struct {
	Position topology.Position
	Disk     *PDiskInfo
}

// Registry holds the set of known PDisks keyed by PDiskID, plus the
// sorted position index used for failure-topology range scans. It is
// not safe for concurrent use (spec.md §5): callers serialize
// RegisterPDisk/UnregisterPDisk/AdjustSpaceAvailable/AllocateGroup.
type Registry struct {
	Domain *topology.EntityMapper

	disks    map[proto.PDiskID]*PDiskInfo
	byPos    []PositionEntry
	dirty    bool
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		Domain: topology.NewEntityMapper(),
		disks:  make(map[proto.PDiskID]*PDiskInfo),
	}
}

// Register inserts rec into the registry and the position index.
// Returns false and no-ops if the PDiskID already exists.
func (r *Registry) Register(rec PDiskRecord) bool {
	if _, exists := r.disks[rec.PDiskID]; exists {
		return false
	}
	pos := topology.NewPosition(r.Domain, rec.Location, rec.PDiskID)
	pi := newPDiskInfo(rec, pos)
	r.disks[rec.PDiskID] = pi
	r.byPos = append(r.byPos, PositionEntry{Position: pos, Disk: pi})
	r.dirty = true
	return true
}

// Unregister removes pdiskID from both structures. Panics if the id is
// unknown: an unknown id here is a programmer error (spec.md §7,
// "Internal invariant"), not a recoverable one.
func (r *Registry) Unregister(pdiskID proto.PDiskID) {
	pi, ok := r.disks[pdiskID]
	if !ok {
		panic(fmt.Sprintf("registry.Unregister: unknown PDiskId# %s", pdiskID.ToString()))
	}
	delete(r.disks, pdiskID)
	for i, e := range r.byPos {
		if e.Disk == pi {
			r.byPos = append(r.byPos[:i], r.byPos[i+1:]...)
			return
		}
	}
	panic(fmt.Sprintf("registry.Unregister: PDiskId# %s missing from position index", pdiskID.ToString()))
}

// AdjustSpaceAvailable increments pdiskID's SpaceAvailable by delta.
// Panics on an unknown id, same rationale as Unregister.
func (r *Registry) AdjustSpaceAvailable(pdiskID proto.PDiskID, delta int64) {
	pi, ok := r.disks[pdiskID]
	if !ok {
		panic(fmt.Sprintf("registry.AdjustSpaceAvailable: unknown PDiskId# %s", pdiskID.ToString()))
	}
	pi.SpaceAvailable += delta
}

// Get returns the live record for pdiskID.
func (r *Registry) Get(pdiskID proto.PDiskID) (*PDiskInfo, bool) {
	pi, ok := r.disks[pdiskID]
	return pi, ok
}

// Len returns the number of registered disks.
func (r *Registry) Len() int { return len(r.disks) }

// EnsureSorted sorts the position index if insertions made it dirty,
// and clears the dirty flag. Called once at the start of AllocateGroup
// (spec.md §4.1 step 1, §4.3).
func (r *Registry) EnsureSorted() {
	if !r.dirty {
		return
	}
	sort.Slice(r.byPos, func(i, j int) bool { return r.byPos[i].Position.Less(r.byPos[j].Position) })
	r.dirty = false
}

// All returns every registered disk, order unspecified. Used by the
// score bisector to build the candidate score table.
func (r *Registry) All(fn func(*PDiskInfo)) {
	for _, pi := range r.disks {
		fn(pi)
	}
}

// ByPosition returns the sorted position-index entries, each pairing a
// position with its disk, assuming EnsureSorted was already called.
func (r *Registry) ByPosition() []PositionEntry {
	return r.byPos
}
