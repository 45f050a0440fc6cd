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

// Package topology interns the textual failure-topology labels carried
// on each PDisk (realm-group / realm / domain) into small dense
// EntityIDs, and flattens a disk's location into a PDiskLayoutPosition
// usable for ordered range scans.
package topology

import "groupmapper/pkg/proto"

// Level identifies which failure-topology tier a label belongs to.
// Ids are never reused across levels: each (level, parent, label)
// triple is interned exactly once.
type Level int

const (
	LevelRealmGroup Level = iota
	LevelRealm
	LevelDomain
)

type internKey struct {
	level  Level
	parent proto.EntityID
	label  string
}

// EntityMapper interns location labels into dense, totally ordered ids.
// Two PDisks with identical labels at a given level and identical
// parent entity receive identical ids; it is not safe for concurrent use,
// matching the mapper's single-threaded contract (spec.md §5).
type EntityMapper struct {
	next proto.EntityID
	ids  map[internKey]proto.EntityID
}

// NewEntityMapper returns an empty mapper.
func NewEntityMapper() *EntityMapper {
	return &EntityMapper{ids: make(map[internKey]proto.EntityID)}
}

// Intern returns the dense id for label at level under parent, minting
// a new one if this is the first time the triple is seen.
func (m *EntityMapper) Intern(level Level, parent proto.EntityID, label string) proto.EntityID {
	key := internKey{level, parent, label}
	if id, ok := m.ids[key]; ok {
		return id
	}
	id := m.next
	m.next++
	m.ids[key] = id
	return id
}

// IDCount returns the number of distinct ids minted so far across all
// levels, i.e. the size a bitmap keyed by EntityID needs.
func (m *EntityMapper) IDCount() int { return int(m.next) }

// Location is the caller-supplied, opaque source of a PDisk's position:
// one textual label per failure-topology level. The mapper never
// interprets these strings; it only interns them.
type Location struct {
	RealmGroup string
	Realm      string
	Domain     string
}

// Position flattens a Location plus a PDiskID into the four-field
// PDiskLayoutPosition used throughout the allocator (spec.md §3).
// Positions compare lexicographically by (RealmGroup, Realm, Domain, PDiskID).
type Position struct {
	RealmGroup proto.EntityID
	Realm      proto.EntityID
	Domain     proto.EntityID
	PDiskID    proto.PDiskID
}

// NewPosition interns loc's labels (chained through their parent scope,
// so identical domain labels under different realms never collide) and
// returns the resulting flattened position.
func NewPosition(m *EntityMapper, loc Location, pdiskID proto.PDiskID) Position {
	rg := m.Intern(LevelRealmGroup, proto.EntityIDInvalid, loc.RealmGroup)
	realm := m.Intern(LevelRealm, rg, loc.Realm)
	domain := m.Intern(LevelDomain, realm, loc.Domain)
	return Position{RealmGroup: rg, Realm: realm, Domain: domain, PDiskID: pdiskID}
}

// Less implements the lexicographic order used by the position index.
func (p Position) Less(o Position) bool {
	if p.RealmGroup != o.RealmGroup {
		return p.RealmGroup < o.RealmGroup
	}
	if p.Realm != o.Realm {
		return p.Realm < o.Realm
	}
	if p.Domain != o.Domain {
		return p.Domain < o.Domain
	}
	return p.PDiskID < o.PDiskID
}

// Equal reports whether two positions denote the same disk.
func (p Position) Equal(o Position) bool {
	return p.RealmGroup == o.RealmGroup && p.Realm == o.Realm && p.Domain == o.Domain && p.PDiskID == o.PDiskID
}
