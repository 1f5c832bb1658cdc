/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "trading_hall"

// Outbound sync queue metrics
var (
	SyncItemsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync_queue",
			Name:      "items_enqueued_total",
			Help:      "Total records enqueued for remote sync",
		},
		[]string{"type"},
	)

	SyncItemsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync_queue",
			Name:      "items_sent_total",
			Help:      "Total records accepted by the remote",
		},
		[]string{"type"},
	)

	SyncAttemptsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync_queue",
			Name:      "attempts_failed_total",
			Help:      "Total failed delivery attempts",
		},
		[]string{"type"},
	)

	SyncItemsDeadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync_queue",
			Name:      "items_dead_lettered_total",
			Help:      "Total records moved to the dead-letter list after exhausting retries",
		},
		[]string{"type"},
	)

	SyncQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync_queue",
			Name:      "depth",
			Help:      "Records currently waiting in the sync queue",
		},
	)

	SyncDrainDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync_queue",
			Name:      "drain_duration_seconds",
			Help:      "Duration of drain passes",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Sync server metrics
var (
	ServerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync_server",
			Name:      "requests_total",
			Help:      "Total sync server requests by record type and status code",
		},
		[]string{"type", "status"},
	)

	ServerRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync_server",
			Name:      "rejected_total",
			Help:      "Requests rejected by the signature, skew or admin guards",
		},
		[]string{"reason"},
	)
)
