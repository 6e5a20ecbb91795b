// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "charter_sessions_created_total",
		Help: "Number of interview sessions created.",
	})

	stageGates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "charter_stage_gates_total",
		Help: "Stage gate outcomes.",
	}, []string{"result"})

	consistencyChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "charter_consistency_checks_total",
		Help: "Cross-stage consistency check outcomes.",
	}, []string{"result"})

	decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "charter_governance_decisions_total",
		Help: "Final governance decisions by kind.",
	}, []string{"decision"})
)
