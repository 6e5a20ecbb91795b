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
)

const (
	// CLIExitSuccess indicates the command completed.
	CLIExitSuccess = 0
	// CLIExitError indicates a runtime failure.
	CLIExitError = 2
)

var rootCmd = &cobra.Command{
	Use:   "charter",
	Short: "A CLI for the Aleutian Charter AI-project governance interview",
	Long: `Charter runs the five-stage AI project proposal interview locally:
problem definition, success metrics, data feasibility, user context, and
ethics. Each answer goes through an LLM quality loop, each stage through a
validation gate, and the completed session ends in a deterministic
governance decision and a project charter document.`,
}

func init() {
	rootCmd.AddCommand(interviewCmd)
	rootCmd.AddCommand(questionsCmd)
	questionsCmd.AddCommand(questionsDumpCmd)
	questionsCmd.AddCommand(questionsVerifyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(CLIExitError)
	}
}
