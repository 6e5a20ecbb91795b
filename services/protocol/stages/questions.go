// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stages defines the five interview stages: their question sets,
// the agents that drive them, and the builders that turn accepted answers
// into structured deliverables.
//
// Question sets are YAML files baked into the binary with the embed
// directive, so the interview protocol is immutable at runtime and travels
// with the executable.
package stages

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianCharter/services/protocol/datatypes"
)

//go:embed questionsets/*.yaml
var questionSetFS embed.FS

// QuestionTemplate is one scripted interview question.
type QuestionTemplate struct {
	// ID uniquely identifies the question within its stage.
	ID string `yaml:"id" json:"id"`

	// Text is the question shown to the proposer.
	Text string `yaml:"text" json:"text"`
}

// QuestionSet is the ordered script for one stage.
type QuestionSet struct {
	StageIndex int                `yaml:"stage" json:"stage"`
	Name       string             `yaml:"name" json:"name"`
	Version    int                `yaml:"version" json:"version"`
	Questions  []QuestionTemplate `yaml:"questions" json:"questions"`
}

// LoadQuestionSets parses the embedded question sets and returns them keyed
// by stage index. It fails if any stage 1-5 is missing, duplicated, or
// malformed.
func LoadQuestionSets() (map[int]*QuestionSet, error) {
	entries, err := fs.Glob(questionSetFS, "questionsets/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob question sets: %w", err)
	}
	sort.Strings(entries)

	sets := make(map[int]*QuestionSet, datatypes.LastStage)
	for _, path := range entries {
		raw, err := questionSetFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var qs QuestionSet
		if err := yaml.Unmarshal(raw, &qs); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if err := validateSet(&qs); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if _, dup := sets[qs.StageIndex]; dup {
			return nil, fmt.Errorf("%s: duplicate question set for stage %d", path, qs.StageIndex)
		}
		sets[qs.StageIndex] = &qs
	}

	for stage := datatypes.FirstStage; stage <= datatypes.LastStage; stage++ {
		if _, ok := sets[stage]; !ok {
			return nil, fmt.Errorf("no question set for stage %d", stage)
		}
	}
	return sets, nil
}

func validateSet(qs *QuestionSet) error {
	if qs.StageIndex < datatypes.FirstStage || qs.StageIndex > datatypes.LastStage {
		return fmt.Errorf("stage %d out of range", qs.StageIndex)
	}
	if strings.TrimSpace(qs.Name) == "" {
		return fmt.Errorf("question set has no name")
	}
	if len(qs.Questions) == 0 {
		return fmt.Errorf("question set has no questions")
	}
	seen := make(map[string]bool)
	for i, q := range qs.Questions {
		if strings.TrimSpace(q.ID) == "" {
			return fmt.Errorf("question %d has no id", i)
		}
		if strings.TrimSpace(q.Text) == "" {
			return fmt.Errorf("question %q has no text", q.ID)
		}
		if seen[q.ID] {
			return fmt.Errorf("duplicate question id %q", q.ID)
		}
		seen[q.ID] = true
	}
	return nil
}

// Fingerprint returns a hex SHA-256 over the embedded question set files,
// so deployments can verify the interview script they are running.
func Fingerprint() (string, error) {
	entries, err := fs.Glob(questionSetFS, "questionsets/*.yaml")
	if err != nil {
		return "", fmt.Errorf("glob question sets: %w", err)
	}
	sort.Strings(entries)

	h := sha256.New()
	for _, path := range entries {
		raw, err := questionSetFS.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		h.Write([]byte(path))
		h.Write([]byte{0})
		h.Write(raw)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
