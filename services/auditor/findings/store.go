// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package findings

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

var (
	// ErrAnalysisNotFound indicates the analysis does not exist.
	ErrAnalysisNotFound = errors.New("analysis not found")

	// ErrAnalysisClosed indicates the analysis no longer accepts findings.
	ErrAnalysisClosed = errors.New("analysis is closed")

	// ErrFindingNotFound indicates the finding does not exist.
	ErrFindingNotFound = errors.New("finding not found")
)

const (
	analysisPrefix = "analysis:"
	findingPrefix  = "finding:"
)

// Store persists analyses and findings in an embedded BadgerDB.
//
// Thread Safety:
//
//	Store is safe for concurrent use; BadgerDB transactions provide
//	isolation between concurrent sessions.
type Store struct {
	db *badger.DB
}

// Config holds store configuration.
type Config struct {
	// Path is the directory for database files.
	// Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode. Useful for testing.
	InMemory bool

	// Logger receives BadgerDB's internal log output. If nil, internal
	// logging is disabled.
	Logger *slog.Logger
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

// Open creates a findings store with the given configuration.
//
// Outputs:
//
//	*Store - The opened store. Caller must call Close() when done.
//	error - Non-nil if the database cannot be opened.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("path is required for persistent store")
		}
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open findings database: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens an in-memory store for testing.
func OpenInMemory() (*Store, error) {
	return Open(Config{InMemory: true})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// OpenAnalysis creates a new open analysis record.
//
// Inputs:
//
//	repositoryURL - The repository under assessment.
//	sessionID - The conversation opening the analysis.
//
// Outputs:
//
//	*Analysis - The created record with a fresh id.
//	error - Non-nil if persistence fails.
func (s *Store) OpenAnalysis(repositoryURL, sessionID string) (*Analysis, error) {
	analysis := &Analysis{
		ID:            uuid.NewString(),
		RepositoryURL: repositoryURL,
		SessionID:     sessionID,
		Status:        AnalysisOpen,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.putJSON(analysisKey(analysis.ID), analysis); err != nil {
		return nil, fmt.Errorf("persist analysis: %w", err)
	}
	return analysis, nil
}

// GetAnalysis fetches an analysis by id.
//
// Outputs:
//
//	*Analysis - The record.
//	error - ErrAnalysisNotFound if no such analysis exists.
func (s *Store) GetAnalysis(id string) (*Analysis, error) {
	var analysis Analysis
	if err := s.getJSON(analysisKey(id), &analysis); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAnalysisNotFound, id)
		}
		return nil, err
	}
	return &analysis, nil
}

// CloseAnalysis freezes an analysis. Recording into a closed analysis
// fails with ErrAnalysisClosed. Closing twice is a no-op.
func (s *Store) CloseAnalysis(id string) (*Analysis, error) {
	analysis, err := s.GetAnalysis(id)
	if err != nil {
		return nil, err
	}
	if analysis.Status == AnalysisClosed {
		return analysis, nil
	}
	analysis.Status = AnalysisClosed
	analysis.ClosedAt = time.Now().UTC()
	if err := s.putJSON(analysisKey(id), analysis); err != nil {
		return nil, fmt.Errorf("persist analysis: %w", err)
	}
	return analysis, nil
}

// RecordFinding appends a finding to an open analysis.
//
// Inputs:
//
//	finding - The finding to record. AnalysisID must reference an open
//	          analysis; ID and CreatedAt are assigned here.
//
// Outputs:
//
//	*Finding - The persisted finding with id and timestamp set.
//	error - ErrAnalysisNotFound, ErrAnalysisClosed, or a storage error.
func (s *Store) RecordFinding(finding *Finding) (*Finding, error) {
	analysis, err := s.GetAnalysis(finding.AnalysisID)
	if err != nil {
		return nil, err
	}
	if analysis.Status == AnalysisClosed {
		return nil, fmt.Errorf("%w: %s", ErrAnalysisClosed, analysis.ID)
	}

	recorded := *finding
	recorded.ID = uuid.NewString()
	recorded.CreatedAt = time.Now().UTC()
	if err := s.putJSON(findingKey(recorded.AnalysisID, recorded.ID), &recorded); err != nil {
		return nil, fmt.Errorf("persist finding: %w", err)
	}
	return &recorded, nil
}

// ListFindings returns all findings for an analysis, oldest first.
func (s *Store) ListFindings(analysisID string) ([]*Finding, error) {
	if _, err := s.GetAnalysis(analysisID); err != nil {
		return nil, err
	}

	prefix := []byte(findingPrefix + analysisID + ":")
	var out []*Finding
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var f Finding
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &f)
			})
			if err != nil {
				return fmt.Errorf("decode finding: %w", err)
			}
			out = append(out, &f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// CountBySeverity tallies an analysis's findings per severity.
func (s *Store) CountBySeverity(analysisID string) (map[Severity]int, error) {
	list, err := s.ListFindings(analysisID)
	if err != nil {
		return nil, err
	}
	counts := make(map[Severity]int)
	for _, f := range list {
		counts[f.Severity]++
	}
	return counts, nil
}

func analysisKey(id string) []byte {
	return []byte(analysisPrefix + id)
}

func findingKey(analysisID, findingID string) []byte {
	return []byte(findingPrefix + analysisID + ":" + findingID)
}

func (s *Store) putJSON(key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

func (s *Store) getJSON(key []byte, out any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
}
