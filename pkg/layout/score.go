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

// Package layout scores how well a (partial) group assignment honors
// the hierarchical failure-topology spread described in spec.md §4.4.1:
// realm-group uniformity dominates realm spread dominates domain
// spread. The exact internal metric is left to the implementer by the
// upstream design (the scoring header was not part of the retrieved
// slice of the original); the scheme here is a from-scratch design
// documented in DESIGN.md, chosen so that Score's Go zero value is
// exactly the worst possible score, satisfying every invariant listed.
package layout

import (
	"groupmapper/pkg/geometry"
	"groupmapper/pkg/proto"
	"groupmapper/pkg/topology"
)

// Score is a lexicographic tuple of three 0/1 "goodness" bits, highest
// level first: RealmGroup (does this candidate keep every realm inside
// one realm-group?), Realm (does it avoid reusing a physical realm
// across two different logical fail realms?), Domain (does it avoid
// reusing a physical domain within the same logical fail realm?). A
// zero Score is the worst possible: it fails every criterion.
type Score struct {
	RealmGroup uint8
	Realm      uint8
	Domain     uint8
}

// BetterThan is a strict order: more goodness bits set, most
// significant first, wins.
func (s Score) BetterThan(o Score) bool {
	if s.RealmGroup != o.RealmGroup {
		return s.RealmGroup > o.RealmGroup
	}
	if s.Realm != o.Realm {
		return s.Realm > o.Realm
	}
	return s.Domain > o.Domain
}

// SameAs reports whether the two scores are identical.
func (s Score) SameAs(o Score) bool { return s == o }

// Worst returns the worst possible score (all criteria failed), which
// happens to equal Score{}.
func Worst() Score { return Score{} }

// GroupLayout tracks, per topology entity, how many VDisks of the
// under-construction group currently occupy it, so candidate scores and
// incremental Add/RemoveDisk stay O(1) amortized (O(levels) per call).
type GroupLayout struct {
	geom geometry.GroupGeometry

	// realmGroupCount[rg] = number of vdisks of the group placed under rg.
	realmGroupCount map[proto.EntityID]int
	// realmOwners[realm][logicalFailRealm] = count of vdisks placed there.
	realmOwners map[proto.EntityID]map[uint32]int
	// domainOwners[domain][logicalFailRealm] = count of vdisks placed there.
	domainOwners map[proto.EntityID]map[uint32]int
}

// NewGroupLayout returns an empty layout for the given geometry.
func NewGroupLayout(geom geometry.GroupGeometry) *GroupLayout {
	return &GroupLayout{
		geom:            geom,
		realmGroupCount: make(map[proto.EntityID]int),
		realmOwners:     make(map[proto.EntityID]map[uint32]int),
		domainOwners:    make(map[proto.EntityID]map[uint32]int),
	}
}

// GetCandidateScore scores placing a disk at position for orderNumber,
// given the layout's current contents (which must not already include
// this slot).
func (gl *GroupLayout) GetCandidateScore(pos topology.Position, orderNumber uint32) Score {
	vdisk := gl.geom.VDiskID(orderNumber)

	var s Score

	// Every realm stays in one realm-group only if nothing is placed yet,
	// or everything placed so far already sits in pos's realm-group.
	if len(gl.realmGroupCount) == 0 || (len(gl.realmGroupCount) == 1 && gl.realmGroupCount[pos.RealmGroup] > 0) {
		s.RealmGroup = 1
	}

	if owners, ok := gl.realmOwners[pos.Realm]; !ok || onlyOwner(owners, vdisk.FailRealm) {
		s.Realm = 1
	}

	if owners, ok := gl.domainOwners[pos.Domain]; !ok || owners[vdisk.FailRealm] == 0 {
		s.Domain = 1
	}

	return s
}

// onlyOwner reports whether owners is empty, or contains only the
// entry for realmIdx (i.e. no other logical fail realm claims it).
func onlyOwner(owners map[uint32]int, realmIdx uint32) bool {
	for k := range owners {
		if k != realmIdx {
			return false
		}
	}
	return true
}

// GetExcludedDiskScore scores the disk presently occupying orderNumber
// as if it had been removed first, i.e. its marginal contribution to
// the current layout.
func (gl *GroupLayout) GetExcludedDiskScore(pos topology.Position, orderNumber uint32) Score {
	gl.RemoveDisk(pos, orderNumber)
	s := gl.GetCandidateScore(pos, orderNumber)
	gl.AddDisk(pos, orderNumber)
	return s
}

// AddDisk records that orderNumber now occupies pos.
func (gl *GroupLayout) AddDisk(pos topology.Position, orderNumber uint32) {
	vdisk := gl.geom.VDiskID(orderNumber)

	gl.realmGroupCount[pos.RealmGroup]++

	if gl.realmOwners[pos.Realm] == nil {
		gl.realmOwners[pos.Realm] = make(map[uint32]int)
	}
	gl.realmOwners[pos.Realm][vdisk.FailRealm]++

	if gl.domainOwners[pos.Domain] == nil {
		gl.domainOwners[pos.Domain] = make(map[uint32]int)
	}
	gl.domainOwners[pos.Domain][vdisk.FailRealm]++
}

// RemoveDisk undoes a prior AddDisk for the same (pos, orderNumber).
func (gl *GroupLayout) RemoveDisk(pos topology.Position, orderNumber uint32) {
	vdisk := gl.geom.VDiskID(orderNumber)

	if n := gl.realmGroupCount[pos.RealmGroup]; n <= 1 {
		delete(gl.realmGroupCount, pos.RealmGroup)
	} else {
		gl.realmGroupCount[pos.RealmGroup] = n - 1
	}

	if owners := gl.realmOwners[pos.Realm]; owners != nil {
		if n := owners[vdisk.FailRealm]; n <= 1 {
			delete(owners, vdisk.FailRealm)
		} else {
			owners[vdisk.FailRealm] = n - 1
		}
		if len(owners) == 0 {
			delete(gl.realmOwners, pos.Realm)
		}
	}

	if owners := gl.domainOwners[pos.Domain]; owners != nil {
		if n := owners[vdisk.FailRealm]; n <= 1 {
			delete(owners, vdisk.FailRealm)
		} else {
			owners[vdisk.FailRealm] = n - 1
		}
		if len(owners) == 0 {
			delete(gl.domainOwners, pos.Domain)
		}
	}
}
