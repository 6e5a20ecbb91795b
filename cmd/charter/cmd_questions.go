// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianCharter/services/protocol/datatypes"
	"github.com/AleutianAI/AleutianCharter/services/protocol/stages"
)

var (
	questionsDumpJSON   bool
	questionsVerifyJSON bool
)

var questionsCmd = &cobra.Command{
	Use:   "questions",
	Short: "Inspect the embedded interview question sets",
}

var questionsDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print every stage's questions",
	Run:   dumpQuestions,
}

var questionsVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Print the SHA256 fingerprint of the embedded interview script",
	Long: `Calculates a checksum over the embedded question set files so
operators can verify which interview protocol version a binary carries.`,
	Run: verifyQuestions,
}

func init() {
	questionsDumpCmd.Flags().BoolVar(&questionsDumpJSON, "json", false, "output as JSON")
	questionsVerifyCmd.Flags().BoolVar(&questionsVerifyJSON, "json", false, "output as JSON")
}

func dumpQuestions(cmd *cobra.Command, args []string) {
	sets, err := stages.LoadQuestionSets()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load question sets: %v\n", err)
		os.Exit(CLIExitError)
	}

	if questionsDumpJSON {
		ordered := make([]*stages.QuestionSet, 0, datatypes.LastStage)
		for stage := datatypes.FirstStage; stage <= datatypes.LastStage; stage++ {
			ordered = append(ordered, sets[stage])
		}
		if err := OutputJSON(ordered, false); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			os.Exit(CLIExitError)
		}
		return
	}

	for stage := datatypes.FirstStage; stage <= datatypes.LastStage; stage++ {
		qs := sets[stage]
		fmt.Printf("--- Stage %d: %s (v%d) ---\n", qs.StageIndex, qs.Name, qs.Version)
		for _, q := range qs.Questions {
			fmt.Printf("  [%s] %s\n", q.ID, q.Text)
		}
	}
}

// QuestionsVerifyResult is the JSON shape of "charter questions verify".
type QuestionsVerifyResult struct {
	Valid       bool   `json:"valid"`
	Fingerprint string `json:"fingerprint"`
	Stages      int    `json:"stages"`
}

func verifyQuestions(cmd *cobra.Command, args []string) {
	fingerprint, err := stages.Fingerprint()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to fingerprint question sets: %v\n", err)
		os.Exit(CLIExitError)
	}
	sets, err := stages.LoadQuestionSets()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embedded question sets are invalid: %v\n", err)
		os.Exit(CLIExitError)
	}

	if questionsVerifyJSON {
		result := QuestionsVerifyResult{
			Valid:       true,
			Fingerprint: "sha256:" + fingerprint,
			Stages:      len(sets),
		}
		if err := OutputJSON(result, false); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			os.Exit(CLIExitError)
		}
		return
	}

	fmt.Println("--- Embedded Interview Script Verification ---")
	fmt.Printf("Stages: %d\n", len(sets))
	fmt.Printf("SHA256 Fingerprint: %s\n", fingerprint)
	fmt.Println("----------------------------------------------")
}
