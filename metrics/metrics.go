// Copyright 2024 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exports chainmap structural events as Prometheus
// metrics. A single Collector may observe any number of maps.
package metrics

import (
	"github.com/cockroachdb/chainmap"
	"github.com/prometheus/client_golang/prometheus"
)

// Label values.
const (
	LblKind = "kind"
	LblMode = "mode"

	KindAlloc  = "alloc"
	KindGrow   = "grow"
	KindShrink = "shrink"
	KindRehash = "rehash"
	KindFree   = "free"
)

// Collector implements chainmap.Observer.
type Collector struct {
	ResizeCounter  *prometheus.CounterVec
	DefenseCounter *prometheus.CounterVec
	BucketGauge    prometheus.Gauge
}

var _ chainmap.Observer = (*Collector)(nil)

// NewCollector returns a Collector whose metrics are named
// <namespace>_table_*.
func NewCollector(namespace string, constLabels prometheus.Labels) *Collector {
	return &Collector{
		ResizeCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "table",
				Name:        "resizes_total",
				Help:        "Counter of bucket and entry array replacements.",
				ConstLabels: constLabels,
			}, []string{LblKind}),
		DefenseCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "table",
				Name:        "collision_defense_total",
				Help:        "Counter of inserts which walked more than the collision threshold.",
				ConstLabels: constLabels,
			}, []string{LblMode}),
		BucketGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   "table",
				Name:        "bucket_count",
				Help:        "Total number of buckets held by observed maps.",
				ConstLabels: constLabels,
			}),
	}
}

// Register registers the metrics of c with r.
func (c *Collector) Register(r prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{c.ResizeCounter, c.DefenseCounter, c.BucketGauge} {
		if err := r.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// Resized implements chainmap.Observer.
func (c *Collector) Resized(oldSize, newSize int, forced bool) {
	var kind string
	switch {
	case forced:
		kind = KindRehash
	case oldSize == 0:
		kind = KindAlloc
	case newSize == 0:
		kind = KindFree
	case newSize < oldSize:
		kind = KindShrink
	default:
		kind = KindGrow
	}
	c.ResizeCounter.WithLabelValues(kind).Inc()
	c.BucketGauge.Add(float64(newSize - oldSize))
}

// CollisionDefense implements chainmap.Observer.
func (c *Collector) CollisionDefense(hops int, mode chainmap.DefenseMode) {
	c.DefenseCounter.WithLabelValues(mode.String()).Inc()
}
