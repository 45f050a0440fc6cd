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

// Package geometry describes the desired shape of a storage group: how
// many fail realms, how many fail domains per realm, how many VDisks
// per domain, and (generalizing TGroupGeometryInfo) which erasure
// coding scheme the shape is meant to host.
package geometry

import (
	"fmt"

	"github.com/klauspost/reedsolomon"

	"groupmapper/pkg/proto"
)

// ErasureScheme names a data/parity split, the analogue of cluster.go's
// codemode.CodeMode. Validate checks it against a concrete reed-solomon
// encoder; nothing checks it when a geometry is merely constructed.
type ErasureScheme struct {
	Name         string
	DataShards   int
	ParityShards int
}

// TotalShards is the number of VDisks the scheme expects the group to
// provide.
func (e ErasureScheme) TotalShards() int { return e.DataShards + e.ParityShards }

// Validate constructs a real reedsolomon.Encoder for the scheme,
// rejecting shard counts the library itself cannot encode (e.g. zero
// data shards, or parity shards outside its supported range).
func (e ErasureScheme) Validate() error {
	if e.DataShards <= 0 {
		return fmt.Errorf("erasure scheme %s: data shards must be positive", e.Name)
	}
	if e.ParityShards < 0 {
		return fmt.Errorf("erasure scheme %s: parity shards must not be negative", e.Name)
	}
	if e.ParityShards == 0 {
		return nil // replication-only scheme, no coding needed
	}
	if _, err := reedsolomon.New(e.DataShards, e.ParityShards); err != nil {
		return fmt.Errorf("erasure scheme %s: %w", e.Name, err)
	}
	return nil
}

// GroupGeometry is the desired shape of a group: realms x domains x
// vdisks, generalizing TGroupGeometryInfo.
type GroupGeometry struct {
	Type                   ErasureScheme
	NumFailRealms          uint32
	NumFailDomainsPerRealm uint32
	NumVDisksPerDomain     uint32
}

// Validate checks the geometry is internally consistent: its dimensions
// are all positive, and (when the scheme has at least one shard
// requirement) it can host the erasure scheme's total shard count.
func (g GroupGeometry) Validate() error {
	if g.NumFailRealms == 0 || g.NumFailDomainsPerRealm == 0 || g.NumVDisksPerDomain == 0 {
		return fmt.Errorf("geometry dimensions must all be positive")
	}
	if err := g.Type.Validate(); err != nil {
		return err
	}
	if total := g.Type.TotalShards(); total > 0 && int(g.TotalVDisks()) < total {
		return fmt.Errorf("geometry hosts %d vdisks, fewer than erasure scheme %s needs (%d)",
			g.TotalVDisks(), g.Type.Name, total)
	}
	return nil
}

// TotalVDisks is the flat slot count: realms * domains/realm * vdisks/domain.
func (g GroupGeometry) TotalVDisks() uint32 {
	return g.NumFailRealms * g.NumFailDomainsPerRealm * g.NumVDisksPerDomain
}

// TotalFailDomains is the flat domain count across all realms.
func (g GroupGeometry) TotalFailDomains() uint32 {
	return g.NumFailRealms * g.NumFailDomainsPerRealm
}

// OrderNumber returns the dense 0-based index of vdisk within the flat
// working group vector.
func (g GroupGeometry) OrderNumber(vdisk proto.VDiskIDShort) uint32 {
	return vdisk.FailRealm*g.NumFailDomainsPerRealm*g.NumVDisksPerDomain +
		vdisk.FailDomain*g.NumVDisksPerDomain +
		vdisk.VDisk
}

// VDiskID is the inverse of OrderNumber.
func (g GroupGeometry) VDiskID(orderNumber uint32) proto.VDiskIDShort {
	perRealm := g.NumFailDomainsPerRealm * g.NumVDisksPerDomain
	realm := orderNumber / perRealm
	rem := orderNumber % perRealm
	domain := rem / g.NumVDisksPerDomain
	vdisk := rem % g.NumVDisksPerDomain
	return proto.VDiskIDShort{FailRealm: realm, FailDomain: domain, VDisk: vdisk}
}

// FailDomainOrderNumber returns the dense 0-based index of vdisk's
// enclosing fail domain, in [0, TotalFailDomains).
func (g GroupGeometry) FailDomainOrderNumber(vdisk proto.VDiskIDShort) uint32 {
	return vdisk.FailRealm*g.NumFailDomainsPerRealm + vdisk.FailDomain
}

// GroupDefinition is the 3-D arrangement realm -> domain -> vdisk -> PDiskID.
// An unfilled slot holds proto.InvalidPDiskID.
type GroupDefinition [][][]proto.PDiskID

// ResizeGroup reshapes group to g's dimensions in place, matching
// TGroupGeometryInfo::ResizeGroup: an already-correctly-shaped group is
// left untouched, an empty/nil group is allocated fresh, and any other
// shape is rejected. Returns the (possibly reallocated) group.
func (g GroupGeometry) ResizeGroup(group GroupDefinition) (GroupDefinition, error) {
	if group == nil {
		return g.emptyGroup(), nil
	}
	if uint32(len(group)) != g.NumFailRealms {
		if isAllEmpty(group) {
			return g.emptyGroup(), nil
		}
		return nil, fmt.Errorf("incorrect existing group")
	}
	for _, realm := range group {
		if uint32(len(realm)) != g.NumFailDomainsPerRealm {
			return nil, fmt.Errorf("incorrect existing group")
		}
		for _, domain := range realm {
			if uint32(len(domain)) != g.NumVDisksPerDomain {
				return nil, fmt.Errorf("incorrect existing group")
			}
		}
	}
	return group, nil
}

func (g GroupGeometry) emptyGroup() GroupDefinition {
	out := make(GroupDefinition, g.NumFailRealms)
	for r := range out {
		out[r] = make([][]proto.PDiskID, g.NumFailDomainsPerRealm)
		for d := range out[r] {
			out[r][d] = make([]proto.PDiskID, g.NumVDisksPerDomain)
		}
	}
	return out
}

func isAllEmpty(group GroupDefinition) bool {
	for _, realm := range group {
		for _, domain := range realm {
			if len(domain) != 0 {
				return false
			}
		}
		if len(realm) != 0 {
			return false
		}
	}
	return len(group) == 0
}

// Traverse calls fn for every (vdisk, pdisk) slot in group, in order
// number order, the Go equivalent of group_mapper.cpp's free-standing
// Traverse() helper.
func (g GroupGeometry) Traverse(group GroupDefinition, fn func(vdisk proto.VDiskIDShort, pdiskID proto.PDiskID)) {
	for r, realm := range group {
		for d, domain := range realm {
			for v, pdiskID := range domain {
				fn(proto.VDiskIDShort{FailRealm: uint32(r), FailDomain: uint32(d), VDisk: uint32(v)}, pdiskID)
			}
		}
	}
}
