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
	"sort"

	"groupmapper/pkg/proto"
	"groupmapper/pkg/registry"
)

// FillInGroup classifies every gap in the allocator's current (partial)
// group into the biggest entity that covers it: an empty group becomes
// one WholeGroup, an empty realm becomes one WholeRealm, and so on down
// to SingleDisk for an isolated empty slot. Order matters: entities are
// returned realm-major, domain-minor, matching FillInGroup in the
// original source.
func (a *Allocator) FillInGroup() []Entity {
	if a.allEmpty() {
		return []Entity{{Kind: WholeGroup}}
	}

	var entities []Entity
	for r := uint32(0); r < a.geom.NumFailRealms; r++ {
		if a.realmEmpty(r) {
			entities = append(entities, Entity{Kind: WholeRealm, Realm: r})
			continue
		}
		for d := uint32(0); d < a.geom.NumFailDomainsPerRealm; d++ {
			if a.domainEmpty(r, d) {
				entities = append(entities, Entity{Kind: WholeDomain, Realm: r, Domain: d})
				continue
			}
			for v := uint32(0); v < a.geom.NumVDisksPerDomain; v++ {
				order := a.geom.OrderNumber(proto.VDiskIDShort{FailRealm: r, FailDomain: d, VDisk: v})
				if !a.group[order].Valid() {
					entities = append(entities, Entity{Kind: SingleDisk, Realm: r, Domain: d, OrderNumber: order})
				}
			}
		}
	}
	return entities
}

func (a *Allocator) allEmpty() bool {
	for _, p := range a.group {
		if p.Valid() {
			return false
		}
	}
	return true
}

func (a *Allocator) realmEmpty(r uint32) bool {
	for d := uint32(0); d < a.geom.NumFailDomainsPerRealm; d++ {
		if !a.domainEmpty(r, d) {
			return false
		}
	}
	return true
}

func (a *Allocator) domainEmpty(r, d uint32) bool {
	for v := uint32(0); v < a.geom.NumVDisksPerDomain; v++ {
		order := a.geom.OrderNumber(proto.VDiskIDShort{FailRealm: r, FailDomain: d, VDisk: v})
		if a.group[order].Valid() {
			return false
		}
	}
	return true
}

// Allocate fills every entity FillInGroup reported, recursively and
// with full backtracking: each decision point tries its candidates
// best-first (by layout score, then DiskIsBetter) and only abandons a
// branch once every candidate has been tried and failed to extend to a
// complete assignment. This is more exhaustive than the original's
// greedy single-disk pick (undocumented in the retrieved slice of the
// scoring header), trading a little speed for the completeness
// guarantee spec.md §4.1 asks of AllocateGroup. forbiddenRealms/
// forbiddenDomains restore AllocateWholeEntity's exclusion of physical
// entities already claimed by a sibling WholeRealm/WholeDomain: once a
// realm or domain is chosen for one entity, no other entity in the same
// call may choose it again.
func (a *Allocator) Allocate(entities []Entity) bool {
	return a.allocate(entities, 0, nil, nil, nil, nil)
}

func (a *Allocator) allocate(entities []Entity, i int, constrainRealm, constrainDomain *proto.EntityID, forbiddenRealms, forbiddenDomains []proto.EntityID) bool {
	if i == len(entities) {
		return true
	}
	e := entities[i]
	switch e.Kind {
	case SingleDisk:
		return a.allocateSingleDisk(entities, i, constrainRealm, constrainDomain, forbiddenRealms, forbiddenDomains)
	case WholeDomain:
		return a.allocateWholeDomain(entities, i, constrainRealm, forbiddenRealms, forbiddenDomains)
	case WholeRealm:
		return a.allocateWholeRealm(entities, i, forbiddenRealms, forbiddenDomains)
	default: // WholeGroup
		return a.allocateWholeGroup(entities, i)
	}
}

func (a *Allocator) allocateSingleDisk(entities []Entity, i int, constrainRealm, constrainDomain *proto.EntityID, forbiddenRealms, forbiddenDomains []proto.EntityID) bool {
	e := entities[i]
	cands := a.candidateDisksFor(e.OrderNumber, constrainRealm, constrainDomain)
	for _, idx := range cands {
		mark := a.mark()
		a.place(e.OrderNumber, a.disks[idx].PDiskID)
		if a.allocate(entities, i+1, constrainRealm, constrainDomain, forbiddenRealms, forbiddenDomains) {
			return true
		}
		a.Revert(mark)
	}
	return false
}

// allocateWholeDomain picks a physical domain for entities[i], fully
// solves that domain's single-disk sub-entities in isolation, then only
// on success continues with entities[i+1:] under the same constrainRealm
// scope but with the chosen domain added to forbiddenDomains, so a later
// sibling WholeDomain entity cannot reuse it.
func (a *Allocator) allocateWholeDomain(entities []Entity, i int, constrainRealm *proto.EntityID, forbiddenRealms, forbiddenDomains []proto.EntityID) bool {
	e := entities[i]
	domains := a.candidateDomains(constrainRealm, forbiddenDomains)
	for _, cd := range domains {
		d := cd
		sub := make([]Entity, 0, a.geom.NumVDisksPerDomain)
		for v := uint32(0); v < a.geom.NumVDisksPerDomain; v++ {
			order := a.geom.OrderNumber(proto.VDiskIDShort{FailRealm: e.Realm, FailDomain: e.Domain, VDisk: v})
			sub = append(sub, Entity{Kind: SingleDisk, OrderNumber: order})
		}
		mark := a.mark()
		if a.allocate(sub, 0, constrainRealm, &d, forbiddenRealms, forbiddenDomains) {
			nextForbiddenDomains := append(append([]proto.EntityID{}, forbiddenDomains...), d)
			if a.allocate(entities, i+1, constrainRealm, nil, forbiddenRealms, nextForbiddenDomains) {
				return true
			}
		}
		a.Revert(mark)
	}
	return false
}

// allocateWholeRealm picks a physical realm for entities[i], fully
// solves that realm's whole-domain sub-entities in isolation, then only
// on success continues with entities[i+1:] with the chosen realm added
// to forbiddenRealms, so a later sibling WholeRealm entity cannot reuse
// it.
func (a *Allocator) allocateWholeRealm(entities []Entity, i int, forbiddenRealms, forbiddenDomains []proto.EntityID) bool {
	e := entities[i]
	realms := a.candidateRealms(forbiddenRealms)
	for _, cr := range realms {
		r := cr
		sub := make([]Entity, 0, a.geom.NumFailDomainsPerRealm)
		for d := uint32(0); d < a.geom.NumFailDomainsPerRealm; d++ {
			sub = append(sub, Entity{Kind: WholeDomain, Realm: e.Realm, Domain: d})
		}
		mark := a.mark()
		if a.allocate(sub, 0, &r, nil, forbiddenRealms, forbiddenDomains) {
			nextForbiddenRealms := append(append([]proto.EntityID{}, forbiddenRealms...), r)
			if a.allocate(entities, i+1, nil, nil, nextForbiddenRealms, forbiddenDomains) {
				return true
			}
		}
		a.Revert(mark)
	}
	return false
}

func (a *Allocator) allocateWholeGroup(entities []Entity, i int) bool {
	sub := make([]Entity, 0, a.geom.NumFailRealms)
	for r := uint32(0); r < a.geom.NumFailRealms; r++ {
		sub = append(sub, Entity{Kind: WholeRealm, Realm: r})
	}
	mark := a.mark()
	if a.allocate(sub, 0, nil, nil, nil, nil) && a.allocate(entities, i+1, nil, nil, nil, nil) {
		return true
	}
	a.Revert(mark)
	return false
}

// candidateDisksFor lists usable, unused disks eligible for
// orderNumber, honoring any realm/domain constraint inherited from an
// enclosing WholeRealm/WholeDomain decomposition, ordered best-first by
// layout.GetCandidateScore then DiskIsBetter.
func (a *Allocator) candidateDisksFor(orderNumber uint32, constrainRealm, constrainDomain *proto.EntityID) []int {
	var out []int
	for i, pd := range a.disks {
		if a.used.Test(uint(i)) || !a.diskIsUsable(pd) {
			continue
		}
		if constrainRealm != nil && pd.Position.Realm != *constrainRealm {
			continue
		}
		if constrainDomain != nil && pd.Position.Domain != *constrainDomain {
			continue
		}
		out = append(out, i)
	}
	sort.Slice(out, func(x, y int) bool {
		return a.diskIsBetterForSlot(out[x], out[y], orderNumber)
	})
	return out
}

// diskIsBetterForSlot orders two disk candidates for orderNumber: the
// layout score dominates, then the TPDiskInfo tie-break (spec.md
// §4.5.1): fewer slots used, locality boost, lower space available
// (pack smaller holes first), more domain-matching peers, lower PDiskID.
func (a *Allocator) diskIsBetterForSlot(i, j int, orderNumber uint32) bool {
	pi, pj := a.disks[i], a.disks[j]
	si := a.layout.GetCandidateScore(pi.Position, orderNumber)
	sj := a.layout.GetCandidateScore(pj.Position, orderNumber)
	if !si.SameAs(sj) {
		return si.BetterThan(sj)
	}
	return a.diskIsBetter(pi, pj)
}

// diskIsBetter is DiskIsBetter from the original: fewer hosted slots
// wins, then the locality boost (direction flips under Randomize, per
// spec.md §4.5.1 note that this is not RNG-driven), then lower free
// space, then more domain-matching disks, then lower PDiskID.
func (a *Allocator) diskIsBetter(x, y *registry.PDiskInfo) bool {
	if x.NumSlots != y.NumSlots {
		return x.NumSlots < y.NumSlots
	}
	if lx, ly := a.GetLocalityFactor(x), a.GetLocalityFactor(y); lx != ly {
		if a.opts.Randomize {
			return lx < ly
		}
		return lx > ly
	}
	// Lower SpaceAvailable wins: pack the smaller hole first, matching
	// spec.md §4.5.1 item 3.
	if x.SpaceAvailable != y.SpaceAvailable {
		return x.SpaceAvailable < y.SpaceAvailable
	}
	if x.NumDomainMatchingDisks != y.NumDomainMatchingDisks {
		return x.NumDomainMatchingDisks > y.NumDomainMatchingDisks
	}
	return x.PDiskID < y.PDiskID
}

// candidateDomains returns the distinct physical domain entities (under
// constrainRealm, if set) that currently have at least
// NumVDisksPerDomain usable, unused disks, excluding any domain already
// in forbiddenDomains (claimed by a sibling WholeDomain entity), ordered
// by ascending minimum NumSlots (prefer less-loaded domains) then by
// entity id for determinism.
func (a *Allocator) candidateDomains(constrainRealm *proto.EntityID, forbiddenDomains []proto.EntityID) []proto.EntityID {
	forbidden := make(map[proto.EntityID]bool, len(forbiddenDomains))
	for _, d := range forbiddenDomains {
		forbidden[d] = true
	}

	counts := make(map[proto.EntityID]int)
	minSlots := make(map[proto.EntityID]uint32)
	for i, pd := range a.disks {
		if a.used.Test(uint(i)) || !a.diskIsUsable(pd) {
			continue
		}
		if constrainRealm != nil && pd.Position.Realm != *constrainRealm {
			continue
		}
		counts[pd.Position.Domain]++
		if ms, ok := minSlots[pd.Position.Domain]; !ok || pd.NumSlots < ms {
			minSlots[pd.Position.Domain] = pd.NumSlots
		}
	}
	var out []proto.EntityID
	for d, n := range counts {
		if forbidden[d] {
			continue
		}
		if uint32(n) >= a.geom.NumVDisksPerDomain {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if minSlots[out[i]] != minSlots[out[j]] {
			return minSlots[out[i]] < minSlots[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

// candidateRealms returns the distinct physical realm entities that
// currently have at least NumFailDomainsPerRealm distinct physical
// domains, each holding at least NumVDisksPerDomain usable, unused
// disks, excluding any realm already in forbiddenRealms (claimed by a
// sibling WholeRealm entity). A realm with enough raw disk count but
// concentrated in too few physical domains does not qualify: each
// fail domain the geometry needs must land in its own domain.
func (a *Allocator) candidateRealms(forbiddenRealms []proto.EntityID) []proto.EntityID {
	forbidden := make(map[proto.EntityID]bool, len(forbiddenRealms))
	for _, r := range forbiddenRealms {
		forbidden[r] = true
	}

	domainCount := make(map[proto.EntityID]int)             // domain -> usable disk count
	domainRealm := make(map[proto.EntityID]proto.EntityID)  // domain -> owning realm
	minSlots := make(map[proto.EntityID]uint32)             // realm -> min NumSlots among usable disks
	for i, pd := range a.disks {
		if a.used.Test(uint(i)) || !a.diskIsUsable(pd) {
			continue
		}
		domainCount[pd.Position.Domain]++
		domainRealm[pd.Position.Domain] = pd.Position.Realm
		if ms, ok := minSlots[pd.Position.Realm]; !ok || pd.NumSlots < ms {
			minSlots[pd.Position.Realm] = pd.NumSlots
		}
	}

	qualifyingDomains := make(map[proto.EntityID]uint32) // realm -> count of domains with enough disks
	for d, n := range domainCount {
		if uint32(n) >= a.geom.NumVDisksPerDomain {
			qualifyingDomains[domainRealm[d]]++
		}
	}

	var out []proto.EntityID
	for r, n := range qualifyingDomains {
		if forbidden[r] {
			continue
		}
		if n >= a.geom.NumFailDomainsPerRealm {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if minSlots[out[i]] != minSlots[out[j]] {
			return minSlots[out[i]] < minSlots[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}
