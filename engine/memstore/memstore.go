// Package memstore is an in-process conversation memory store. It backs
// the terminal chat and tests; a single mutex makes every upsert atomic.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/WessleyAI/wessley-mechanic/engine/domain"
)

// Store keeps turns, summaries and issues in memory.
type Store struct {
	mu        sync.RWMutex
	turns     map[string][]domain.ConversationTurn
	summaries map[string]domain.ChatIssueSummary
	issues    map[string][]domain.VehicleIssueRecord
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		turns:     make(map[string][]domain.ConversationTurn),
		summaries: make(map[string]domain.ChatIssueSummary),
		issues:    make(map[string][]domain.VehicleIssueRecord),
	}
}

func (s *Store) AppendTurn(_ context.Context, t domain.ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[t.ChatID] = append(s.turns[t.ChatID], t)
	return nil
}

func (s *Store) LoadRecentTurns(_ context.Context, chatID string, limit int) ([]domain.ConversationTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.turns[chatID]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return append([]domain.ConversationTurn(nil), turns...), nil
}

func (s *Store) LoadChatSummary(_ context.Context, chatID string) (*domain.ChatIssueSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.summaries[chatID]
	if !ok {
		return nil, nil
	}
	return &cs, nil
}

func (s *Store) UpsertChatSummary(_ context.Context, cs domain.ChatIssueSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[cs.ChatID] = cs
	return nil
}

func (s *Store) LoadVehicleSummary(_ context.Context, vehicleID string) (*domain.ChatIssueSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *domain.ChatIssueSummary
	for _, cs := range s.summaries {
		if cs.VehicleID != vehicleID {
			continue
		}
		if latest == nil || cs.UpdatedAt.After(latest.UpdatedAt) {
			latest = &cs
		}
	}
	return latest, nil
}

func (s *Store) LoadOpenIssues(_ context.Context, vehicleID string) ([]domain.VehicleIssueRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var open []domain.VehicleIssueRecord
	for _, rec := range s.issues[vehicleID] {
		if rec.Open() {
			open = append(open, rec)
		}
	}
	sort.SliceStable(open, func(i, j int) bool { return open[i].UpdatedAt.After(open[j].UpdatedAt) })
	return open, nil
}

// UpsertIssue refreshes the open record with the same key, keeping its
// CreatedAt, or appends a new one.
func (s *Store) UpsertIssue(_ context.Context, rec domain.VehicleIssueRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.issues[rec.VehicleID]
	for i, cur := range recs {
		if cur.IssueKey == rec.IssueKey && cur.Open() {
			rec.CreatedAt = cur.CreatedAt
			recs[i] = rec
			return nil
		}
	}
	s.issues[rec.VehicleID] = append(recs, rec)
	return nil
}

// ResolveIssue marks the open record with key as resolved.
func (s *Store) ResolveIssue(_ context.Context, vehicleID, key string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.issues[vehicleID] {
		if cur.IssueKey == key && cur.Open() {
			s.issues[vehicleID][i].ResolvedAt = &at
			s.issues[vehicleID][i].UpdatedAt = at
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListChats(_ context.Context, userID string) ([]domain.ChatOverview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ChatOverview
	for _, turns := range s.turns {
		owned := 0
		var latest domain.ConversationTurn
		for _, t := range turns {
			if t.UserID == userID {
				owned++
				latest = t
			}
		}
		if owned > 0 {
			out = append(out, domain.NewChatOverview(latest, owned))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) LoadTranscript(_ context.Context, chatID, userID string) ([]domain.ConversationTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ConversationTurn
	for _, t := range s.turns[chatID] {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}
