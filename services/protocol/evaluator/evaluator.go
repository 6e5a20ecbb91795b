// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package evaluator scores interview responses with an LLM judge.
//
// The judge applies a fixed rubric (specificity, measurability, completeness,
// coherence, relevance) and returns a structured QualityAssessment. Provider
// failures and unparseable output are retried with exponential backoff; when
// all attempts fail the evaluator returns a conservative fallback assessment
// instead of an error, so a session never crashes on evaluator
// unavailability.
package evaluator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/AleutianAI/AleutianCharter/services/llm"
	"github.com/AleutianAI/AleutianCharter/services/protocol/datatypes"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("charter.evaluator")

// FallbackIssue is the issue string attached to the conservative fallback
// assessment when automated evaluation is unavailable.
const FallbackIssue = "unable to evaluate automatically"

// scoringPromptTemplate asks the judge for strict JSON. The rubric is fixed;
// stage context is included so the judge can weigh relevance.
const scoringPromptTemplate = `You are grading one answer given during a structured review of an AI project proposal.

Interview stage: {{.StageName}} (stage {{.StageIndex}} of 5)
Question: {{.Question}}
Answer: {{.Response}}
{{if .PriorSummary}}
Context from earlier stages:
{{.PriorSummary}}
{{end}}
Grade the answer 0-10 against this rubric, weighting all five equally:
- specificity: concrete details, not generalities
- measurability: quantifiable claims where the question calls for them
- completeness: every part of the question addressed
- coherence: internally consistent, no contradictions
- relevance: answers this question, in this stage's context

An answer scoring 7 or above needs no follow-up. For weaker answers, propose
up to 3 follow-up questions that would draw out what is missing, most useful
first.

Respond with ONLY valid JSON (no markdown, no preamble):
{"score":0-10,"issues":["..."],"follow_up_questions":["..."]}`

// Evaluator scores one question/response pair in its stage context.
type Evaluator interface {
	Evaluate(ctx context.Context, question, response string, stageCtx datatypes.StageContext) *datatypes.QualityAssessment
}

// Config holds tunables for the LLM judge.
type Config struct {
	// MaxRetries is the number of additional attempts after the first
	// failed LLM call. Default: 2.
	MaxRetries int

	// RetryBackoff is the initial wait before the first retry; doubles per
	// retry. Default: 500ms.
	RetryBackoff time.Duration

	// Timeout bounds a single LLM call. Default: 60s.
	Timeout time.Duration

	// Temperature for the judge model. Low by default for stable scores.
	Temperature float32

	// MaxTokens bounds the judge's output.
	MaxTokens int
}

// DefaultConfig returns production defaults for the judge.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   2,
		RetryBackoff: 500 * time.Millisecond,
		Timeout:      60 * time.Second,
		Temperature:  0.1,
		MaxTokens:    1024,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("MaxRetries must not be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("Timeout must be positive")
	}
	return nil
}

// LLMJudge implements Evaluator against an LLM gateway.
//
// Thread Safety: safe for concurrent use after construction; the judge is
// stateless between calls and may be shared across sessions.
type LLMJudge struct {
	client llm.LLMClient
	config Config
	prompt *template.Template
	logger *slog.Logger
}

// NewLLMJudge creates a judge bound to an LLM client.
//
// Inputs:
//
//	client - LLM gateway. Must not be nil.
//	config - Judge configuration. Will be validated.
//
// Outputs:
//
//	*LLMJudge - Ready-to-use judge.
//	error - If client is nil or config invalid.
func NewLLMJudge(client llm.LLMClient, config Config) (*LLMJudge, error) {
	if client == nil {
		return nil, errors.New("client must not be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	tmpl, err := template.New("score").Parse(scoringPromptTemplate)
	if err != nil {
		return nil, fmt.Errorf("compile prompt template: %w", err)
	}
	return &LLMJudge{
		client: client,
		config: config,
		prompt: tmpl,
		logger: slog.Default(),
	}, nil
}

// Evaluate scores one question/response pair.
//
// Description:
//
//	Calls the LLM gateway with the fixed rubric prompt and parses the
//	structured result. On provider failure or unparseable output it retries
//	up to MaxRetries times with exponential backoff, then returns the
//	conservative fallback assessment (score 5, FallbackIssue, no
//	follow-ups). It never returns nil and never propagates an error.
//
// Thread Safety: This method is safe for concurrent use.
func (j *LLMJudge) Evaluate(ctx context.Context, question, response string, stageCtx datatypes.StageContext) *datatypes.QualityAssessment {
	ctx, span := tracer.Start(ctx, "evaluator.LLMJudge.Evaluate")
	defer span.End()
	span.SetAttributes(
		attribute.Int("stage", stageCtx.StageIndex),
		attribute.Int("response_length", len(response)),
	)

	prompt, err := j.buildPrompt(question, response, stageCtx)
	if err != nil {
		// Template execution over plain strings should not fail; treat it
		// like provider unavailability rather than crashing the session.
		span.RecordError(err)
		return j.fallback(span, err)
	}

	var lastErr error
	backoff := j.config.RetryBackoff
	for attempt := 0; attempt <= j.config.MaxRetries; attempt++ {
		if attempt > 0 {
			evaluationRetriesTotal.Inc()
			select {
			case <-ctx.Done():
				return j.fallback(span, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		assessment, err := j.scoreOnce(ctx, prompt)
		if err == nil {
			span.SetAttributes(attribute.Int("score", assessment.Score))
			evaluationsTotal.WithLabelValues("scored").Inc()
			evaluationScores.Observe(float64(assessment.Score))
			return assessment
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return j.fallback(span, err)
		}

		j.logger.Debug("evaluation attempt failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", j.config.MaxRetries),
			slog.String("error", err.Error()),
		)
	}

	return j.fallback(span, lastErr)
}

// scoreOnce performs a single judge call and parse.
func (j *LLMJudge) scoreOnce(ctx context.Context, prompt string) (*datatypes.QualityAssessment, error) {
	callCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	temp := j.config.Temperature
	maxTokens := j.config.MaxTokens
	raw, err := j.client.Generate(callCtx, prompt, llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("llm call: %w", err)
	}

	assessment, err := ParseAssessmentResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return assessment, nil
}

// fallback returns the conservative assessment used when the judge is
// unavailable. Score 5 keeps the quality loop moving (the response is
// retriable but not accepted) without stalling the session.
func (j *LLMJudge) fallback(span trace.Span, cause error) *datatypes.QualityAssessment {
	if cause != nil {
		span.SetStatus(codes.Error, cause.Error())
		j.logger.Warn("quality evaluation unavailable, using fallback assessment",
			slog.String("error", cause.Error()))
	}
	evaluationsTotal.WithLabelValues("fallback").Inc()
	return &datatypes.QualityAssessment{
		Score:        5,
		IsAcceptable: false,
		Issues:       []string{FallbackIssue},
		Fallback:     true,
	}
}

// buildPrompt renders the scoring prompt.
func (j *LLMJudge) buildPrompt(question, response string, stageCtx datatypes.StageContext) (string, error) {
	data := struct {
		StageName    string
		StageIndex   int
		Question     string
		Response     string
		PriorSummary string
	}{
		StageName:    stageCtx.StageName,
		StageIndex:   stageCtx.StageIndex,
		Question:     question,
		Response:     response,
		PriorSummary: summarizePrior(stageCtx),
	}
	var buf bytes.Buffer
	if err := j.prompt.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// summarizePrior renders a terse plain-text summary of validated earlier
// stages for the judge's context window.
func summarizePrior(stageCtx datatypes.StageContext) string {
	var b strings.Builder
	for stage := datatypes.FirstStage; stage < stageCtx.StageIndex; stage++ {
		d := stageCtx.Prior[stage]
		if d == nil {
			continue
		}
		switch {
		case d.Problem != nil:
			fmt.Fprintf(&b, "- problem (%s, %s impact): %s\n",
				d.Problem.TaskArchetype, d.Problem.Impact, d.Problem.Statement)
		case d.Metrics != nil:
			names := make([]string, 0, len(d.Metrics.Metrics))
			for _, m := range d.Metrics.Metrics {
				names = append(names, m.Name)
			}
			fmt.Fprintf(&b, "- success metrics: %s\n", strings.Join(names, ", "))
		case d.Scorecard != nil:
			fmt.Fprintf(&b, "- data sources: %d declared\n", len(d.Scorecard.Sources))
		case d.Users != nil:
			fmt.Fprintf(&b, "- user personas: %d declared\n", len(d.Users.Personas))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
