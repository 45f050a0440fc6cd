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

// Package proto defines the small scalar identifier types shared across
// the group placement mapper: PDisk, group and VDisk-slot identifiers,
// plus the dense EntityID minted by the topology package.
package proto

import "strconv"

// PDiskID uniquely identifies a physical disk within the registry.
type PDiskID uint64

// InvalidPDiskID is the zero value, never assigned to a real disk.
const InvalidPDiskID PDiskID = 0

func (id PDiskID) Valid() bool { return id != InvalidPDiskID }

func (id PDiskID) ToString() string { return strconv.FormatUint(uint64(id), 10) }

// GroupID identifies a storage group.
type GroupID uint32

func (id GroupID) ToString() string { return strconv.FormatUint(uint64(id), 10) }

// VDiskIDShort enumerates a slot inside a group geometry by its
// (fail realm, fail domain, vdisk) coordinates.
type VDiskIDShort struct {
	FailRealm  uint32
	FailDomain uint32
	VDisk      uint32
}

// EntityID is a dense, totally-ordered id assigned by the topology
// package to a textual location label at a given failure-topology level.
// EntityIDMin/EntityIDMax are open range endpoints below and above every
// minted id; the allocator filters by id directly and does not use them.
type EntityID int64

const (
	EntityIDMin EntityID = -1 << 62
	EntityIDMax EntityID = 1<<62 - 1
	// EntityIDInvalid marks an id that has not been assigned yet.
	EntityIDInvalid EntityID = -1
)

func (id EntityID) Index() int { return int(id) }
