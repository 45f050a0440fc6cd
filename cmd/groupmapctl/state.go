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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"

	"groupmapper/pkg/mapper"
	"groupmapper/pkg/proto"
	"groupmapper/pkg/registry"
	"groupmapper/pkg/topology"
)

// diskState is the CLI's own persistence format between invocations.
// The mapper itself keeps no state on disk (spec.md §1's "out of
// scope"); this is ambient CLI plumbing, not part of the kernel.
type diskState struct {
	PDiskID        uint64   `json:"pdisk_id"`
	RealmGroup     string   `json:"realm_group"`
	Realm          string   `json:"realm"`
	Domain         string   `json:"domain"`
	MaxSlots       uint32   `json:"max_slots"`
	Usable         bool     `json:"usable"`
	Decommitted    bool     `json:"decommitted"`
	Operational    bool     `json:"operational"`
	NumSlots       uint32   `json:"num_slots"`
	SpaceAvailable int64    `json:"space_available"`
	Groups         []uint32 `json:"groups"`
}

func loadState(path string) ([]diskState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []diskState
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parsing state file %s: %w", path, err)
	}
	return out, nil
}

func saveState(path string, states []diskState) error {
	data, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// newMapper rebuilds an in-memory Mapper from a persisted snapshot.
func newMapper(randomize bool, states []diskState) (*mapper.Mapper, error) {
	m := mapper.New(randomize)
	ctx := context.Background()
	for _, s := range states {
		groups := make([]proto.GroupID, len(s.Groups))
		for i, g := range s.Groups {
			groups[i] = proto.GroupID(g)
		}
		rec := registry.PDiskRecord{
			PDiskID: proto.PDiskID(s.PDiskID),
			Location: topology.Location{
				RealmGroup: s.RealmGroup,
				Realm:      s.Realm,
				Domain:     s.Domain,
			},
			MaxSlots:       s.MaxSlots,
			Usable:         s.Usable,
			Decommitted:    s.Decommitted,
			Operational:    s.Operational,
			NumSlots:       s.NumSlots,
			SpaceAvailable: s.SpaceAvailable,
			Groups:         groups,
		}
		if !m.RegisterPDisk(ctx, rec) {
			return nil, fmt.Errorf("duplicate PDiskId# %d in state file", s.PDiskID)
		}
	}
	return m, nil
}

// refreshState re-reads NumSlots/Groups for every disk back out of m,
// for writing an updated snapshot after an AllocateGroup call.
func refreshState(m *mapper.Mapper, states []diskState) []diskState {
	out := make([]diskState, len(states))
	for i, s := range states {
		out[i] = s
		pd, ok := m.DiskInfo(proto.PDiskID(s.PDiskID))
		if !ok {
			continue
		}
		out[i].NumSlots = pd.NumSlots
		groupIDs := pd.Groups()
		groups := make([]uint32, len(groupIDs))
		for j, g := range groupIDs {
			groups[j] = uint32(g)
		}
		out[i].Groups = groups
	}
	return out
}

// newPDiskID mints a dense-ish id from a UUID when the caller doesn't
// supply one, used by the seed command's --generate-ids flag.
func newPDiskID() uint64 {
	return uuidToUint(uuid.New(), 8)
}

// newGroupID mints a GroupID from a UUID when the caller leaves
// group_id at zero in the allocate config.
func newGroupID() uint32 {
	return uint32(uuidToUint(uuid.New(), 4))
}

func uuidToUint(id uuid.UUID, bytes int) uint64 {
	var v uint64
	for _, c := range id[:bytes] {
		v = v<<8 | uint64(c)
	}
	if v == 0 {
		v = 1
	}
	return v
}
