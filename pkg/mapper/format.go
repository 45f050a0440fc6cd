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

package mapper

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"groupmapper/pkg/allocator"
	"groupmapper/pkg/proto"
	"groupmapper/pkg/registry"
)

// formatPDisks reproduces TImpl::FormatPDisks's diagnostic dump: disks
// are grouped by realm-group, then realm, then domain, opening/closing
// a `{`/`[`/`(` bracket only when the previous disk's position differs
// at that level (SUPPLEMENTAL FEATURES §1). Each disk is annotated with
// the flags that disqualified it for this call. oldGroupContent marks
// disks already present in the group this call started from (spec.md
// §7's `*` flag).
func formatPDisks(reg *registry.Registry, opts allocator.Options, oldGroupContent map[proto.PDiskID]bool) string {
	entries := append([]registry.PositionEntry(nil), reg.ByPosition()...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Position.Less(entries[j].Position) })

	var b strings.Builder
	var prev *registry.PositionEntry
	for i := range entries {
		e := &entries[i]
		switch {
		case prev == nil:
			b.WriteString("{[(")
		case e.Position.RealmGroup != prev.Position.RealmGroup:
			b.WriteString(")]} {[(")
		case e.Position.Realm != prev.Position.Realm:
			b.WriteString(")] [(")
		case e.Position.Domain != prev.Position.Domain:
			b.WriteString(") (")
		default:
			b.WriteString(" ")
		}
		b.WriteString(formatDisk(e.Disk, opts, oldGroupContent))
		prev = e
	}
	if prev != nil {
		b.WriteString(")]}")
	}
	return b.String()
}

func formatDisk(pd *registry.PDiskInfo, opts allocator.Options, oldGroupContent map[proto.PDiskID]bool) string {
	var flags []string
	if opts.ForbiddenDisks[pd.PDiskID] {
		flags = append(flags, "-f")
	}
	if !pd.Usable {
		flags = append(flags, "-u")
	}
	if pd.Decommitted {
		flags = append(flags, "-d")
	}
	if pd.NumSlots >= pd.MaxSlots {
		flags = append(flags, fmt.Sprintf("-s[%d/%d]", pd.NumSlots, pd.MaxSlots))
	}
	if pd.SpaceAvailable < opts.RequiredSpace {
		flags = append(flags, "-v")
	}
	if opts.RequireOperational && !pd.Operational {
		flags = append(flags, "-o")
	}
	if oldGroupContent[pd.PDiskID] {
		flags = append(flags, "*")
	}
	if pd.NumSlots > 0 {
		flags = append(flags, "+")
	}

	return fmt.Sprintf("%s[%s]%s", pd.PDiskID.ToString(), humanize.Bytes(uint64clamp(pd.SpaceAvailable)), strings.Join(flags, ""))
}

func uint64clamp(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}
