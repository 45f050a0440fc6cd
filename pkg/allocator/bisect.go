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

	"groupmapper/pkg/geometry"
	"groupmapper/pkg/proto"
	"groupmapper/pkg/registry"
)

// Bisect runs the outer binary search over candidate PickerScore
// thresholds (spec.md §4.6): it finds the smallest NumSlots cap that
// still admits a complete allocation, so the winning layout never uses
// a disk more loaded than necessary. Each trial threshold runs a full,
// independent Allocator; the search is monotone because a lower cap
// only shrinks the usable-disk set of a higher one.
func Bisect(reg *registry.Registry, geom geometry.GroupGeometry, opts Options, existing geometry.GroupDefinition) ([]proto.PDiskID, bool) {
	scores := uniquePickerScores(reg)

	lo, hi := 0, len(scores) // hi == len(scores) means "no cap"
	var best []proto.PDiskID
	found := false

	for lo < hi {
		mid := (lo + hi) / 2
		trial := opts
		if mid < len(scores) {
			trial.MaxPickerScore = int64(scores[mid])
		} else {
			trial.MaxPickerScore = -1
		}

		a := New(reg, geom, trial, existing)
		if a.Allocate(a.FillInGroup()) {
			best = append([]proto.PDiskID(nil), a.Group()...)
			found = true
			hi = mid
		} else {
			lo = mid + 1
		}
	}

	return best, found
}

func uniquePickerScores(reg *registry.Registry) []uint32 {
	seen := make(map[uint32]bool)
	reg.All(func(pd *registry.PDiskInfo) { seen[pd.GetPickerScore()] = true })
	out := make([]uint32, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
