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
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var showStatePath string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the inventory recorded in a state file",
	RunE:  runShow,
}

func init() {
	showCmd.Flags().StringVar(&showStatePath, "state", "state.json", "inventory state file to print")
}

func runShow(cmd *cobra.Command, args []string) error {
	states, err := loadState(showStatePath)
	if err != nil {
		return fmt.Errorf("loading %s: %w", showStatePath, err)
	}
	sort.Slice(states, func(i, j int) bool {
		a, b := states[i], states[j]
		if a.RealmGroup != b.RealmGroup {
			return a.RealmGroup < b.RealmGroup
		}
		if a.Realm != b.Realm {
			return a.Realm < b.Realm
		}
		if a.Domain != b.Domain {
			return a.Domain < b.Domain
		}
		return a.PDiskID < b.PDiskID
	})

	lastRealmGroup, lastRealm := "", ""
	for _, s := range states {
		if s.RealmGroup != lastRealmGroup {
			fmt.Printf("realm-group %s\n", s.RealmGroup)
			lastRealmGroup, lastRealm = s.RealmGroup, ""
		}
		if s.Realm != lastRealm {
			fmt.Printf("  realm %s\n", s.Realm)
			lastRealm = s.Realm
		}
		flags := ""
		if !s.Usable {
			flags += "-u"
		}
		if s.Decommitted {
			flags += "-d"
		}
		if !s.Operational {
			flags += "-o"
		}
		if s.NumSlots >= s.MaxSlots {
			flags += "-s"
		}
		line := fmt.Sprintf("    [%d] domain=%s slots=%d/%d space=%s%s",
			s.PDiskID, s.Domain, s.NumSlots, s.MaxSlots, humanize.Bytes(uint64clampShow(s.SpaceAvailable)), flags)
		if s.NumSlots >= s.MaxSlots || s.Decommitted || !s.Usable {
			color.Yellow(line)
		} else {
			fmt.Println(line)
		}
	}
	return nil
}

func uint64clampShow(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}
