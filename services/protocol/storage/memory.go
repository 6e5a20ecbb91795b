// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/AleutianAI/AleutianCharter/services/protocol/datatypes"
)

// MemoryRepository is an in-memory Repository for tests and single-process
// use. Sessions are stored as JSON snapshots so callers never share pointers
// with the store.
type MemoryRepository struct {
	mu          sync.RWMutex
	sessions    map[string][]byte
	checkpoints map[string][]datatypes.Checkpoint
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions:    make(map[string][]byte),
		checkpoints: make(map[string][]datatypes.Checkpoint),
	}
}

func (r *MemoryRepository) GetSession(ctx context.Context, id string) (*datatypes.Session, error) {
	r.mu.RLock()
	raw, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	var s datatypes.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &s, nil
}

func (r *MemoryRepository) SaveSession(ctx context.Context, session *datatypes.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("session must have an ID")
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.ID, err)
	}

	r.mu.Lock()
	r.sessions[session.ID] = raw
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) AppendCheckpoint(ctx context.Context, sessionID string, cp datatypes.Checkpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	r.checkpoints[sessionID] = append(r.checkpoints[sessionID], cp)
	return nil
}

func (r *MemoryRepository) ListCheckpoints(ctx context.Context, sessionID string) ([]datatypes.Checkpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	out := make([]datatypes.Checkpoint, len(r.checkpoints[sessionID]))
	copy(out, r.checkpoints[sessionID])
	return out, nil
}

func (r *MemoryRepository) GetStageData(ctx context.Context, sessionID string, stageIndex int) (*datatypes.StageDeliverable, error) {
	s, err := r.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	d := s.Deliverable(stageIndex)
	if d == nil {
		return nil, fmt.Errorf("%w: session %s stage %d", ErrStageDataNotFound, sessionID, stageIndex)
	}
	return d, nil
}

func (r *MemoryRepository) ListSessions(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *MemoryRepository) Close() error { return nil }
