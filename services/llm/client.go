// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides the gateway to language-model providers.
//
// The interview core never depends on provider identity: everything upstream
// speaks LLMClient. Callers must handle both errors and timeouts; transient
// failures are retried by the evaluator layer, not here.
package llm

import (
	"context"
	"fmt"
	"os"
)

// GenerationParams tunes a single generation call. Nil fields use
// provider defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// NewClientFromEnv builds a client from the LLM_BACKEND environment
// variable: "ollama" (default) or "openai".
func NewClientFromEnv() (LLMClient, error) {
	backend := os.Getenv("LLM_BACKEND")
	switch backend {
	case "", "ollama":
		return NewOllamaClient()
	case "openai":
		return NewOpenAIClient()
	default:
		return nil, fmt.Errorf("unknown LLM_BACKEND %q", backend)
	}
}
