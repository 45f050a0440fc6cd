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

// Package allocator implements the per-call Entity Allocation Engine:
// a recursive, backtracking placement of VDisk slots onto PDisks,
// direct translation of TAllocator/AllocateWholeEntity/FillInGroup from
// the original group_mapper.cpp, generalized to the hierarchy and
// scoring abstractions of groupmapper/pkg/{geometry,layout,registry}.
package allocator

import (
	"groupmapper/pkg/proto"
)

// Kind is the closed tagged union of entities FillInGroup classifies a
// gap in the group as: the bigger the entity, the more vdisks one
// allocation decision commits at once.
type Kind int

const (
	// WholeGroup means no disk of the group is placed yet.
	WholeGroup Kind = iota
	// WholeRealm means an entire fail realm is still empty.
	WholeRealm
	// WholeDomain means an entire fail domain is still empty.
	WholeDomain
	// SingleDisk means exactly one VDisk slot needs a disk.
	SingleDisk
)

// Entity is one gap AllocateWholeEntity must fill. Realm/Domain/VDisk
// are only meaningful for the Kind that names them explicitly;
// WholeGroup uses none, WholeRealm uses Realm, WholeDomain uses
// Realm+Domain, SingleDisk uses all three via OrderNumber.
type Entity struct {
	Kind        Kind
	Realm       uint32
	Domain      uint32
	OrderNumber uint32 // valid for SingleDisk
}

// undoEntry is one step of the undo log: placing pdiskID at
// orderNumber, to be reverted in LIFO order on backtrack.
type undoEntry struct {
	orderNumber uint32
	pdiskID     proto.PDiskID
}

