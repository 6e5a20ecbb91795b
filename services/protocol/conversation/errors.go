// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conversation

import "errors"

// Sentinel errors for the conversation package.
var (
	// ErrInvalidTransition indicates an invalid turn-state transition was
	// attempted.
	ErrInvalidTransition = errors.New("invalid turn state transition")

	// ErrNoResponse indicates the response provider failed to produce a
	// response for an attempt.
	ErrNoResponse = errors.New("no response obtained")

	// ErrEmptyQuestion indicates RunTurn was called with an empty question.
	ErrEmptyQuestion = errors.New("question must not be empty")
)
