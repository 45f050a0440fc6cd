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
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"groupmapper/pkg/config"
	"groupmapper/pkg/mapper"
	"groupmapper/pkg/proto"
)

var (
	allocateConfigPath string
	allocateStatePath  string
	allocateOutPath    string
)

var allocateCmd = &cobra.Command{
	Use:   "allocate",
	Short: "Run one AllocateGroup call against a state file",
	RunE:  runAllocate,
}

func init() {
	allocateCmd.Flags().StringVar(&allocateConfigPath, "config", "", "YAML config with geometry + request fields (required)")
	allocateCmd.Flags().StringVar(&allocateStatePath, "state", "state.json", "inventory state file to allocate against")
	allocateCmd.Flags().StringVar(&allocateOutPath, "out", "", "path to write the updated state file (defaults to --state)")
	allocateCmd.MarkFlagRequired("config")
}

func runAllocate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(allocateConfigPath)
	if err != nil {
		return fmt.Errorf("loading %s: %w", allocateConfigPath, err)
	}
	geom := cfg.Geometry.ToGeometry()
	if err := geom.Validate(); err != nil {
		return fmt.Errorf("invalid geometry: %w", err)
	}

	states, err := loadState(allocateStatePath)
	if err != nil {
		return fmt.Errorf("loading %s: %w", allocateStatePath, err)
	}
	m, err := newMapper(cfg.Randomize, states)
	if err != nil {
		return err
	}

	groupID := proto.GroupID(cfg.GroupID)
	if groupID == 0 {
		groupID = proto.GroupID(newGroupID())
	}

	result, err := m.AllocateGroup(context.Background(), mapper.Request{
		GroupID:            groupID,
		Geometry:           geom,
		RequiredSpace:      cfg.RequiredSpace,
		RequireOperational: cfg.RequireOperational,
	})
	if err != nil {
		color.Red("allocation failed: %v", err)
		return err
	}

	color.Green("allocated group# %s", groupID.ToString())
	geom.Traverse(result, func(vdisk proto.VDiskIDShort, pdiskID proto.PDiskID) {
		fmt.Printf("  realm=%d domain=%d vdisk=%d -> pdisk#%s\n",
			vdisk.FailRealm, vdisk.FailDomain, vdisk.VDisk, pdiskID.ToString())
	})

	outPath := allocateOutPath
	if outPath == "" {
		outPath = allocateStatePath
	}
	updated := refreshState(m, states)
	if err := saveState(outPath, updated); err != nil {
		return fmt.Errorf("writing %s: %w", outPath, err)
	}
	return nil
}
