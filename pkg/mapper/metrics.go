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

import "github.com/prometheus/client_golang/prometheus"

// Metrics is a pure side channel: it observes AllocateGroup calls and
// never feeds back into the allocator's decisions (spec.md §5
// determinism holds regardless of whether metrics are scraped). Each
// Mapper owns its own prometheus.Registry rather than registering into
// the global default, so multiple Mappers (e.g. one per test) never
// collide over metric names.
type Metrics struct {
	Registry  *prometheus.Registry
	attempts  prometheus.Counter
	successes prometheus.Counter
	failures  prometheus.Counter
}

func newMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "groupmapper",
			Name:      "allocate_group_attempts_total",
			Help:      "Total AllocateGroup calls that reached the bisector.",
		}),
		successes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "groupmapper",
			Name:      "allocate_group_success_total",
			Help:      "AllocateGroup calls that found a complete layout.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "groupmapper",
			Name:      "allocate_group_failure_total",
			Help:      "AllocateGroup calls that returned \"no group options\".",
		}),
	}
	m.Registry.MustRegister(m.attempts, m.successes, m.failures)
	return m
}
