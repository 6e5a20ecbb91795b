// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evaluator

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/AleutianAI/AleutianCharter/services/protocol/datatypes"
)

// ErrNoJSON indicates no JSON object could be located in the LLM output.
var ErrNoJSON = errors.New("no JSON object found in response")

// assessmentWire is the JSON shape the scoring prompt asks the model for.
type assessmentWire struct {
	Score     int      `json:"score"`
	Issues    []string `json:"issues"`
	FollowUps []string `json:"follow_up_questions"`
}

// ExtractJSON locates the first complete JSON object in raw LLM output.
//
// Models wrap JSON in markdown fences, preambles and postambles; this scans
// for a balanced top-level object, respecting strings and escapes, and
// returns the object text. Returns ErrNoJSON if none is found.
func ExtractJSON(raw string) (string, error) {
	raw = strings.TrimSpace(raw)

	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return "", ErrNoJSON
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// string contents, including braces, are opaque
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], nil
			}
		}
	}
	return "", ErrNoJSON
}

// ParseAssessmentResponse parses raw LLM output into a QualityAssessment.
//
// The score is clamped to 0-10 and IsAcceptable is derived, never trusted
// from the model. Parse failures return an error so the caller can retry
// per the evaluator's failure policy.
func ParseAssessmentResponse(raw string) (*datatypes.QualityAssessment, error) {
	jsonText, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}

	var wire assessmentWire
	if err := json.Unmarshal([]byte(jsonText), &wire); err != nil {
		return nil, err
	}

	score := wire.Score
	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}

	return &datatypes.QualityAssessment{
		Score:        score,
		IsAcceptable: score >= datatypes.AcceptScore,
		Issues:       wire.Issues,
		FollowUps:    wire.FollowUps,
	}, nil
}
