// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evaluator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "charter_evaluator_evaluations_total",
		Help: "Quality evaluations by outcome",
	}, []string{"outcome"}) // scored, fallback

	evaluationRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "charter_evaluator_retries_total",
		Help: "LLM call retries during quality evaluation",
	})

	evaluationScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "charter_evaluator_score",
		Help:    "Distribution of quality scores",
		Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
	})
)
