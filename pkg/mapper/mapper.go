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

// Package mapper is the public façade: it owns the PDisk registry and
// exposes RegisterPDisk/UnregisterPDisk/AdjustSpaceAvailable/
// AllocateGroup, the only entry points spec.md §6 allows a caller to
// touch. Everything below it (pkg/allocator, pkg/layout) is rebuilt
// fresh on every AllocateGroup call and never escapes this package.
package mapper

import (
	"context"
	"fmt"

	"github.com/cubefs/cubefs/blobstore/common/trace"
	"github.com/cubefs/cubefs/blobstore/util/errors"

	"groupmapper/pkg/allocator"
	"groupmapper/pkg/geometry"
	"groupmapper/pkg/proto"
	"groupmapper/pkg/registry"
)

// Mapper is the single, long-lived handle a caller holds. It is not
// safe for concurrent use (spec.md §5): RegisterPDisk, UnregisterPDisk,
// AdjustSpaceAvailable and AllocateGroup must be serialized by the
// caller.
type Mapper struct {
	reg       *registry.Registry
	randomize bool
	metrics   *Metrics
}

// New returns an empty Mapper. randomize flips the tie-break's
// locality-boost direction (spec.md §4.5.1); it does not introduce any
// actual randomness, so outputs stay deterministic for a fixed value.
func New(randomize bool) *Mapper {
	return &Mapper{
		reg:       registry.New(),
		randomize: randomize,
		metrics:   newMetrics(),
	}
}

// RegisterPDisk adds rec to the registry. Returns false if its
// PDiskID is already known.
func (m *Mapper) RegisterPDisk(ctx context.Context, rec registry.PDiskRecord) bool {
	ok := m.reg.Register(rec)
	span := trace.SpanFromContextSafe(ctx)
	if !ok {
		span.Warnf("mapper.RegisterPDisk: PDiskId# %s already registered", rec.PDiskID.ToString())
	}
	return ok
}

// UnregisterPDisk removes pdiskID. Panics on an unknown id (spec.md §7,
// "Internal invariant").
func (m *Mapper) UnregisterPDisk(pdiskID proto.PDiskID) { m.reg.Unregister(pdiskID) }

// AdjustSpaceAvailable applies delta to pdiskID's free space. Panics on
// an unknown id.
func (m *Mapper) AdjustSpaceAvailable(pdiskID proto.PDiskID, delta int64) {
	m.reg.AdjustSpaceAvailable(pdiskID, delta)
}

// DiskInfo exposes the live accounting record for pdiskID. It is a thin
// pass-through to the registry for callers (the CLI's snapshot
// persistence, in particular) that need to read back NumSlots/Groups
// after an AllocateGroup call without reaching into pkg/registry
// directly.
func (m *Mapper) DiskInfo(pdiskID proto.PDiskID) (*registry.PDiskInfo, bool) {
	return m.reg.Get(pdiskID)
}

// Request bundles one AllocateGroup call's inputs (spec.md §6).
type Request struct {
	GroupID            proto.GroupID
	Geometry           geometry.GroupGeometry
	Existing           geometry.GroupDefinition
	ReplacedDisks      map[proto.VDiskIDShort]proto.PDiskID
	ForbiddenDisks     map[proto.PDiskID]bool
	RequiredSpace      int64
	RequireOperational bool
}

// AllocateGroup is the one operation that mutates accounting state. On
// success it returns the completed group and commits NumSlots/Groups
// changes to every disk whose assignment changed; on failure it
// returns the human-readable error strings spec.md §6/§7 specify and
// changes nothing.
func (m *Mapper) AllocateGroup(ctx context.Context, req Request) (geometry.GroupDefinition, error) {
	span := trace.SpanFromContextSafe(ctx)
	m.reg.EnsureSorted()

	working, err := req.Geometry.ResizeGroup(req.Existing)
	if err != nil {
		return nil, err
	}
	// Work on a copy so that clearing replaced slots below never touches
	// the caller's req.Existing.
	if req.Existing != nil {
		cp, _ := req.Geometry.ResizeGroup(nil)
		req.Geometry.Traverse(working, func(vdisk proto.VDiskIDShort, pdiskID proto.PDiskID) {
			cp[vdisk.FailRealm][vdisk.FailDomain][vdisk.VDisk] = pdiskID
		})
		working = cp
	}

	seen := make(map[proto.PDiskID]bool)
	var precondErr error
	req.Geometry.Traverse(working, func(vdisk proto.VDiskIDShort, pdiskID proto.PDiskID) {
		if precondErr != nil || !pdiskID.Valid() {
			return
		}
		if seen[pdiskID] {
			precondErr = errors.New(fmt.Sprintf("group contains duplicate PDiskId# %s", pdiskID.ToString()))
			return
		}
		seen[pdiskID] = true
		if _, ok := m.reg.Get(pdiskID); !ok {
			precondErr = errors.New(fmt.Sprintf("existing group contains missing PDiskId# %s", pdiskID.ToString()))
		}
	})
	if precondErr != nil {
		return nil, precondErr
	}

	// before is captured ahead of the replaced-slot clearing below so
	// commit sees the replaced disk's old assignment and decrements its
	// NumSlots/Groups like any other disk the new layout no longer uses
	// (spec.md §4.1 step 6).
	before := flatten(req.Geometry, working)

	forbidden := make(map[proto.PDiskID]bool, len(req.ForbiddenDisks))
	for id, v := range req.ForbiddenDisks {
		forbidden[id] = v
	}
	// replaced_disks (spec.md §6): clear the slot so the allocator must
	// pick a fresh disk, and forbid its previous occupant from being
	// re-chosen for this call. The allocator derives locality_factor
	// (spec.md §4.4) from whichever pre-placed peers remain in working
	// after this clears their replaced slots, so no separate bookkeeping
	// is needed here.
	for vdisk, pdiskID := range req.ReplacedDisks {
		working[vdisk.FailRealm][vdisk.FailDomain][vdisk.VDisk] = proto.InvalidPDiskID
		forbidden[pdiskID] = true
	}

	opts := allocator.Options{
		RequiredSpace:      req.RequiredSpace,
		RequireOperational: req.RequireOperational,
		ForbiddenDisks:     forbidden,
		MaxPickerScore:     -1,
		Randomize:          m.randomize,
	}

	m.metrics.attempts.Inc()
	result, ok := allocator.Bisect(m.reg, req.Geometry, opts, working)
	if !ok {
		m.metrics.failures.Inc()
		span.Errorf("mapper.AllocateGroup: no feasible completion for group# %s", req.GroupID.ToString())
		return nil, errors.New(fmt.Sprintf("no group options PDisks# %s", formatPDisks(m.reg, opts, seen)))
	}
	m.metrics.successes.Inc()

	final, err := req.Geometry.ResizeGroup(nil)
	if err != nil {
		return nil, err
	}
	req.Geometry.Traverse(final, func(vdisk proto.VDiskIDShort, _ proto.PDiskID) {
		order := req.Geometry.OrderNumber(vdisk)
		final[vdisk.FailRealm][vdisk.FailDomain][vdisk.VDisk] = result[order]
	})

	m.commit(req.GroupID, before, result)
	return final, nil
}

func flatten(geom geometry.GroupGeometry, group geometry.GroupDefinition) []proto.PDiskID {
	out := make([]proto.PDiskID, geom.TotalVDisks())
	geom.Traverse(group, func(vdisk proto.VDiskIDShort, pdiskID proto.PDiskID) {
		out[geom.OrderNumber(vdisk)] = pdiskID
	})
	return out
}

// commit applies the delta between before and after to each disk's
// NumSlots/Groups bookkeeping. Never called unless a complete layout
// was found, matching spec.md §7's "never partially commits".
func (m *Mapper) commit(groupID proto.GroupID, before, after []proto.PDiskID) {
	for order := range after {
		oldID, newID := before[order], after[order]
		if oldID == newID {
			continue
		}
		if oldID.Valid() {
			if pd, ok := m.reg.Get(oldID); ok {
				pd.NumSlots--
				pd.EraseGroup(groupID)
			}
		}
		if newID.Valid() {
			if pd, ok := m.reg.Get(newID); ok {
				pd.NumSlots++
				pd.InsertGroup(groupID)
			}
		}
	}
}
