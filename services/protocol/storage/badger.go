// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianCharter/services/protocol/datatypes"
)

const (
	sessionPrefix    = "session:"
	checkpointPrefix = "cp:"
)

// BadgerConfig holds configuration for the BadgerDB-backed repository.
type BadgerConfig struct {
	// Path is the directory for database files. Ignored when InMemory is
	// true.
	Path string

	// InMemory enables in-memory mode. Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes. Checkpoints must be durable
	// before a session advances, so this defaults to true in production.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output. If nil, internal
	// logging is disabled.
	Logger *slog.Logger
}

// DefaultBadgerConfig returns production defaults: synchronous writes at the
// given path.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{Path: path, SyncWrites: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerRepository is a durable Repository on embedded BadgerDB.
//
// Keys:
//
//	session:<id>          - JSON-encoded session record
//	cp:<session-id>:<n>   - JSON-encoded checkpoint, n zero-padded
//
// Thread Safety: safe for concurrent use; BadgerDB transactions provide
// isolation.
type BadgerRepository struct {
	db *badger.DB
}

// OpenBadger opens (creating if needed) a BadgerDB-backed repository.
//
// Outputs:
//
//	*BadgerRepository - The repository. Caller must Close() when done.
//	error - Non-nil if the path is invalid or the database cannot open.
func OpenBadger(cfg BadgerConfig) (*BadgerRepository, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerRepository{db: db}, nil
}

// OpenBadgerInMemory opens an in-memory repository for testing.
func OpenBadgerInMemory() (*BadgerRepository, error) {
	return OpenBadger(BadgerConfig{InMemory: true})
}

func sessionKey(id string) []byte {
	return []byte(sessionPrefix + id)
}

func checkpointKey(sessionID string, seq int) []byte {
	return []byte(fmt.Sprintf("%s%s:%06d", checkpointPrefix, sessionID, seq))
}

func (r *BadgerRepository) GetSession(ctx context.Context, id string) (*datatypes.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var s datatypes.Session
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &s)
		})
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *BadgerRepository) SaveSession(ctx context.Context, session *datatypes.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("session must have an ID")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.ID, err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(session.ID), raw)
	})
}

func (r *BadgerRepository) AppendCheckpoint(ctx context.Context, sessionID string, cp datatypes.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(sessionKey(sessionID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
			}
			return err
		}
		seq := 0
		prefix := []byte(checkpointPrefix + sessionID + ":")
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		for it.Rewind(); it.Valid(); it.Next() {
			seq++
		}
		it.Close()
		return txn.Set(checkpointKey(sessionID, seq), raw)
	})
}

func (r *BadgerRepository) ListCheckpoints(ctx context.Context, sessionID string) ([]datatypes.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []datatypes.Checkpoint
	err := r.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(sessionKey(sessionID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
			}
			return err
		}
		prefix := []byte(checkpointPrefix + sessionID + ":")
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var cp datatypes.Checkpoint
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &cp)
			})
			if err != nil {
				return fmt.Errorf("decode checkpoint: %w", err)
			}
			out = append(out, cp)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *BadgerRepository) GetStageData(ctx context.Context, sessionID string, stageIndex int) (*datatypes.StageDeliverable, error) {
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

func (r *BadgerRepository) ListSessions(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []string
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(sessionPrefix)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			ids = append(ids, strings.TrimPrefix(key, sessionPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// Close closes the underlying database.
func (r *BadgerRepository) Close() error {
	return r.db.Close()
}
