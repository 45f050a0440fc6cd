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

	"github.com/spf13/cobra"

	"groupmapper/pkg/config"
)

var (
	seedConfigPath string
	seedOutPath    string
	seedGenIDs     bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Build a fresh inventory state file from a YAML seed config",
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedConfigPath, "config", "", "YAML config with a seed: list (required)")
	seedCmd.Flags().StringVar(&seedOutPath, "out", "state.json", "path to write the inventory state file")
	seedCmd.Flags().BoolVar(&seedGenIDs, "generate-ids", false, "mint a PDiskId for every seed entry that omits one")
	seedCmd.MarkFlagRequired("config")
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(seedConfigPath)
	if err != nil {
		return fmt.Errorf("loading %s: %w", seedConfigPath, err)
	}
	if len(cfg.Seed) == 0 {
		return fmt.Errorf("%s has no seed entries", seedConfigPath)
	}

	states := make([]diskState, 0, len(cfg.Seed))
	for _, s := range cfg.Seed {
		id := s.PDiskID
		if id == 0 {
			if !seedGenIDs {
				return fmt.Errorf("seed entry for domain %q has no pdisk_id (use --generate-ids)", s.Domain)
			}
			id = newPDiskID()
		}
		states = append(states, diskState{
			PDiskID:        id,
			RealmGroup:     s.RealmGroup,
			Realm:          s.Realm,
			Domain:         s.Domain,
			MaxSlots:       s.MaxSlots,
			Usable:         true,
			Operational:    s.Operational,
			SpaceAvailable: s.SpaceAvailable,
		})
	}

	if err := saveState(seedOutPath, states); err != nil {
		return fmt.Errorf("writing %s: %w", seedOutPath, err)
	}
	fmt.Printf("wrote %d disks to %s\n", len(states), seedOutPath)
	return nil
}
