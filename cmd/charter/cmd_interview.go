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
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianCharter/pkg/logging"
	"github.com/AleutianAI/AleutianCharter/services/llm"
	"github.com/AleutianAI/AleutianCharter/services/protocol/consistency"
	"github.com/AleutianAI/AleutianCharter/services/protocol/conversation"
	"github.com/AleutianAI/AleutianCharter/services/protocol/datatypes"
	"github.com/AleutianAI/AleutianCharter/services/protocol/evaluator"
	"github.com/AleutianAI/AleutianCharter/services/protocol/gate"
	"github.com/AleutianAI/AleutianCharter/services/protocol/orchestrator"
	"github.com/AleutianAI/AleutianCharter/services/protocol/stages"
	"github.com/AleutianAI/AleutianCharter/services/protocol/storage"
)

var (
	interviewOwner  string
	interviewDBPath string
	interviewOut    string
	interviewLogDir string
)

var interviewCmd = &cobra.Command{
	Use:   "interview",
	Short: "Run the five-stage proposal interview in the terminal",
	Long: `Runs the full interview locally against the configured LLM backend
(OLLAMA_BASE_URL / LLM_BACKEND). Every answer is scored by the evaluator;
weak answers get up to two follow-up questions before the best attempt is
kept. A stage that fails its gate is repeated. The session ends with a
governance decision and a charter document.`,
	Run: runInterview,
}

func init() {
	interviewCmd.Flags().StringVar(&interviewOwner, "owner", "", "proposer name recorded on the session")
	interviewCmd.Flags().StringVar(&interviewDBPath, "db", "", "BadgerDB directory for durable sessions (default: in-memory)")
	interviewCmd.Flags().StringVarP(&interviewOut, "output", "o", "", "write the charter document to this file")
	interviewCmd.Flags().StringVar(&interviewLogDir, "log-dir", "", "also write JSON logs to this directory (e.g. ~/.charter/logs)")
}

// terminalProvider collects answers with huh forms on a TTY and falls back
// to plain stdin reads for piped input.
type terminalProvider struct {
	interactive bool
	reader      *bufio.Reader
}

func newTerminalProvider() *terminalProvider {
	interactive := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
	return &terminalProvider{
		interactive: interactive,
		reader:      bufio.NewReader(os.Stdin),
	}
}

func (p *terminalProvider) Respond(ctx context.Context, questionID, question string, attempt int) (string, error) {
	title := question
	if attempt > 1 {
		title = fmt.Sprintf("(follow-up %d) %s", attempt-1, question)
	}

	if !p.interactive {
		fmt.Printf("\n%s\n> ", title)
		line, err := p.reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}

	var answer string
	form := huh.NewForm(huh.NewGroup(
		huh.NewText().
			Title(title).
			Description("Use newlines for one-item-per-line answers.").
			Value(&answer),
	))
	if err := form.RunWithContext(ctx); err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}

func runInterview(cmd *cobra.Command, args []string) {
	logger := logging.New(logging.Config{
		Level:   logging.LevelWarn,
		LogDir:  interviewLogDir,
		Service: "charter-cli",
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	client, err := llm.NewClientFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize LLM client: %v\n", err)
		os.Exit(CLIExitError)
	}

	var repo storage.Repository
	if interviewDBPath != "" {
		repo, err = storage.OpenBadger(storage.DefaultBadgerConfig(interviewDBPath))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open session database: %v\n", err)
			os.Exit(CLIExitError)
		}
	} else {
		repo = storage.NewMemoryRepository()
	}
	defer repo.Close()

	judge, err := evaluator.NewLLMJudge(client, evaluator.DefaultConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create evaluator: %v\n", err)
		os.Exit(CLIExitError)
	}
	engine, err := conversation.NewEngine(judge)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create conversation engine: %v\n", err)
		os.Exit(CLIExitError)
	}
	agent, err := stages.NewAgent(engine)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load question sets: %v\n", err)
		os.Exit(CLIExitError)
	}
	orch, err := orchestrator.New(repo, agent, gate.NewValidator(client), consistency.NewChecker(client))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create orchestrator: %v\n", err)
		os.Exit(CLIExitError)
	}

	ctx := cmd.Context()
	session, err := orch.CreateSession(ctx, interviewOwner)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create session: %v\n", err)
		os.Exit(CLIExitError)
	}
	fmt.Printf("Session %s started.\n", session.ID)

	provider := newTerminalProvider()
	for {
		state, err := orch.GetSessionState(ctx, session.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load session: %v\n", err)
			os.Exit(CLIExitError)
		}
		if state.Status == datatypes.StatusCompleted {
			break
		}

		fmt.Printf("\n=== Stage %d: %s ===\n", state.CurrentStage, datatypes.StageNames[state.CurrentStage])
		result, err := orch.RunStage(ctx, session.ID, provider)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Stage failed: %v\n", err)
			os.Exit(CLIExitError)
		}

		for _, turn := range result.Turns {
			if turn.Outcome == datatypes.OutcomeEscalated {
				fmt.Printf("  note: %q never reached an acceptable answer (best score %d); best attempt kept\n",
					turn.QuestionID, turn.BestScore)
			}
		}
		if !result.Gate.CanProceed {
			fmt.Println("\nStage gate failed:")
			for _, m := range result.Gate.Missing {
				fmt.Printf("  missing: %s\n", m)
			}
			for _, concern := range result.Gate.Concerns {
				fmt.Printf("  concern: %s\n", concern)
			}
			fmt.Println("The stage will be repeated.")
			continue
		}
		fmt.Printf("Stage %d passed.\n", result.StageIndex)
	}

	charter, err := orch.GenerateCharter(ctx, session.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render charter: %v\n", err)
		os.Exit(CLIExitError)
	}

	final, err := orch.GetSessionState(ctx, session.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load session: %v\n", err)
		os.Exit(CLIExitError)
	}
	fmt.Printf("\nGovernance decision: %s\n", final.Decision.Decision)
	fmt.Println(final.Decision.Rationale)

	if interviewOut != "" {
		if err := os.WriteFile(interviewOut, []byte(charter), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write charter: %v\n", err)
			os.Exit(CLIExitError)
		}
		fmt.Printf("Charter written to %s\n", interviewOut)
	} else {
		fmt.Println("\n" + charter)
	}
}
