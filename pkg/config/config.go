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

// Package config loads the CLI's static, YAML-sourced settings, the
// same flat-struct shape DiskMgrConfig uses in cluster.go: JSON tags
// for the fields an operator can actually persist, json:"-" for the
// ones a particular invocation supplies on the command line.
package config

import (
	"os"

	"gopkg.in/yaml.v2"

	"groupmapper/pkg/geometry"
)

// MapperConfig is the top-level config a groupmapctl invocation loads.
type MapperConfig struct {
	Randomize          bool              `json:"randomize"`
	RequiredSpace      int64             `json:"required_space"`
	RequireOperational bool              `json:"require_operational"`
	Geometry           GeometryConfig    `json:"geometry"`
	Seed               []PDiskSeedConfig `json:"seed"`
	GroupID            uint32            `json:"-"`
}

// GeometryConfig mirrors geometry.GroupGeometry with YAML-friendly
// primitive fields.
type GeometryConfig struct {
	ErasureName            string `json:"erasure_name"`
	DataShards             int    `json:"data_shards"`
	ParityShards           int    `json:"parity_shards"`
	NumFailRealms          uint32 `json:"num_fail_realms"`
	NumFailDomainsPerRealm uint32 `json:"num_fail_domains_per_realm"`
	NumVDisksPerDomain     uint32 `json:"num_vdisks_per_domain"`
}

// ToGeometry builds a geometry.GroupGeometry from the config fields.
func (c GeometryConfig) ToGeometry() geometry.GroupGeometry {
	return geometry.GroupGeometry{
		Type: geometry.ErasureScheme{
			Name:         c.ErasureName,
			DataShards:   c.DataShards,
			ParityShards: c.ParityShards,
		},
		NumFailRealms:          c.NumFailRealms,
		NumFailDomainsPerRealm: c.NumFailDomainsPerRealm,
		NumVDisksPerDomain:     c.NumVDisksPerDomain,
	}
}

// PDiskSeedConfig is one disk the `seed` CLI command registers.
type PDiskSeedConfig struct {
	PDiskID        uint64 `json:"pdisk_id"`
	RealmGroup     string `json:"realm_group"`
	Realm          string `json:"realm"`
	Domain         string `json:"domain"`
	MaxSlots       uint32 `json:"max_slots"`
	SpaceAvailable int64  `json:"space_available"`
	Operational    bool   `json:"operational"`
}

// Load reads and parses a YAML config file at path.
func Load(path string) (*MapperConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg MapperConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
