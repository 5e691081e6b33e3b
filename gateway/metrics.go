// Copyright 2025 The go-satgate Authors
// This file is part of the go-satgate library.
//
// The go-satgate library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-satgate library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-satgate library. If not, see <http://www.gnu.org/licenses/>.

package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	observationsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "satgate",
		Name:      "observations_total",
		Help:      "Transaction observations recorded, by source.",
	}, []string{"source"})

	transitionsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "satgate",
		Name:      "intent_transitions_total",
		Help:      "Committed intent state transitions, by target state.",
	}, []string{"to"})

	reorgCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "satgate",
		Name:      "reorgs_total",
		Help:      "Confirmed intents demoted after a chain reorganization.",
	})

	tickCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "satgate",
		Name:      "scheduler_ticks_total",
		Help:      "Scheduler ticks executed, by task.",
	}, []string{"task"})

	tickSkippedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "satgate",
		Name:      "scheduler_ticks_skipped_total",
		Help:      "Scheduler ticks skipped because the previous run was still active.",
	}, []string{"task"})

	eventsDispatchedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "satgate",
		Name:      "events_dispatched_total",
		Help:      "Lifecycle events dispatched, by type.",
	}, []string{"type"})

	watchedAddressesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "satgate",
		Name:      "watched_addresses",
		Help:      "Addresses currently in the watched set.",
	})
)
