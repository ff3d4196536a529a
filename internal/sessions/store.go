// Package sessions keeps per-browser-session report state in memory.
// A session owns at most one processed report per carrier plus the
// category selection applied to it. Nothing is persisted; state lives
// for the session TTL and is reaped by a background cleanup loop.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"parcelcli/internal/dataprocessing"
	"parcelcli/pkg/contracts/domain"
)

var (
	// ErrSessionNotFound indicates the session ID has no stored state.
	ErrSessionNotFound = errors.New("session not found")
	// ErrReportNotFound indicates the session has no report for the carrier.
	ErrReportNotFound = errors.New("no report uploaded for carrier")
)

// CarrierState is the stored processing state for one carrier within a
// session. The embedded reports are treated as immutable once stored;
// only Selection changes between uploads.
type CarrierState struct {
	Carrier    domain.CarrierID
	Filename   string
	UploadedAt time.Time
	SourceRows int
	Categories []string
	Selection  []string
	FedEx      *dataprocessing.FedExReport
	UPS        *dataprocessing.UPSReport
}

// clone returns a copy safe to hand out. Report pointers are shared
// because they are never mutated after storage.
func (s *CarrierState) clone() *CarrierState {
	out := *s
	out.Categories = append([]string(nil), s.Categories...)
	out.Selection = append([]string(nil), s.Selection...)
	return &out
}

type session struct {
	id        string
	createdAt time.Time
	lastSeen  time.Time
	reports   map[domain.CarrierID]*CarrierState
}

// Store is an in-memory session store guarded by a RWMutex.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session
	ttl      time.Duration
	logger   *slog.Logger
}

// NewStore creates a session store. Sessions idle longer than ttl are
// eligible for cleanup.
func NewStore(logger *slog.Logger, ttl time.Duration) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sessions: make(map[string]*session),
		ttl:      ttl,
		logger:   logger,
	}
}

// SetCarrierState stores the processed report for one carrier, creating
// the session on first use. Any previous report and selection for that
// carrier are replaced.
func (s *Store) SetCarrierState(sessionID string, state *CarrierState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &session{
			id:        sessionID,
			createdAt: now,
			reports:   make(map[domain.CarrierID]*CarrierState),
		}
		s.sessions[sessionID] = sess
	}
	sess.lastSeen = now
	sess.reports[state.Carrier] = state.clone()
}

// CarrierState returns a copy of the stored state for one carrier.
func (s *Store) CarrierState(sessionID string, carrier domain.CarrierID) (*CarrierState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	state, ok := sess.reports[carrier]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, carrier)
	}
	return state.clone(), nil
}

// SetSelection replaces the category selection for one carrier's report.
func (s *Store) SetSelection(sessionID string, carrier domain.CarrierID, selection []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	state, ok := sess.reports[carrier]
	if !ok {
		return fmt.Errorf("%w: %s", ErrReportNotFound, carrier)
	}
	state.Selection = append([]string(nil), selection...)
	sess.lastSeen = time.Now()
	return nil
}

// Touch bumps the session's last-seen time if it exists.
func (s *Store) Touch(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[sessionID]; ok {
		sess.lastSeen = time.Now()
	}
}

// Cleanup removes sessions idle longer than olderThan and reports how
// many were removed.
func (s *Store) Cleanup(olderThan time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	deleted := 0
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
			deleted++
		}
	}
	return deleted
}

// StartCleanup runs the reaper loop until ctx is cancelled. Intended to
// be launched as a goroutine during application startup.
func (s *Store) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if deleted := s.Cleanup(s.ttl); deleted > 0 {
				s.logger.Info("expired sessions removed",
					slog.Int("count", deleted),
					slog.Duration("ttl", s.ttl))
			}
		}
	}
}

// Stats returns counters about the store for the health endpoint.
func (s *Store) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]int{
		"total_sessions": len(s.sessions),
		"fedex_reports":  0,
		"ups_reports":    0,
	}
	for _, sess := range s.sessions {
		if _, ok := sess.reports[domain.CarrierFedEx]; ok {
			stats["fedex_reports"]++
		}
		if _, ok := sess.reports[domain.CarrierUPS]; ok {
			stats["ups_reports"]++
		}
	}
	return stats
}
