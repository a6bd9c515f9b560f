package session

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmarin/chatrelay/pkg/logging"
)

const (
	defaultMaxTurns  = 20
	maxTrackedTopics = 10
)

// Store owns the contact-id → ContactSession mapping. Sessions are created
// on the first recorded turn, mutated on every append, and removed only by
// idle eviction or an explicit Clear.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*ContactSession
	maxTurns  int
	persister Persister
	logger    *logging.Logger
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithMaxTurns bounds the in-memory turn history per session.
func WithMaxTurns(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.maxTurns = n
		}
	}
}

// NewStore creates a Store and loads previously persisted sessions. A load
// failure is reported and the store starts empty; it never fails construction.
func NewStore(ctx context.Context, persister Persister, logger *logging.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Store{
		sessions:  map[string]*ContactSession{},
		maxTurns:  defaultMaxTurns,
		persister: persister,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	if persister != nil {
		loaded, err := persister.LoadAll(ctx)
		if err != nil {
			logger.Error("failed to load persisted sessions, starting empty", "error", err)
		} else if len(loaded) > 0 {
			s.sessions = loaded
			logger.Info("loaded persisted sessions", "count", len(loaded))
		}
	}
	return s
}

// RecordTurn appends a turn to the contact's session, creating the session if
// absent, and returns the new turn's id. The full store is persisted after the
// mutation; persistence failures are logged, never returned.
func (s *Store) RecordTurn(ctx context.Context, contactID, role, content, senderName string) string {
	now := time.Now().UTC()
	turn := Turn{
		ID:         uuid.NewString(),
		Role:       role,
		Content:    content,
		SenderName: senderName,
		Timestamp:  now,
	}

	s.mu.Lock()
	sess, ok := s.sessions[contactID]
	if !ok {
		sess = &ContactSession{
			ID:        contactID,
			CreatedAt: now,
			Context:   Context{Mood: MoodNeutral},
		}
		s.sessions[contactID] = sess
	}

	sess.Turns = append(sess.Turns, turn)
	sess.addParticipant(senderName)
	sess.LastActivityAt = now
	sess.TotalMessages++

	if len(sess.Turns) > s.maxTurns {
		dropped := len(sess.Turns) - s.maxTurns
		sess.Turns = append(sess.Turns[:0:0], sess.Turns[dropped:]...)
		s.logger.Debug("truncated old turns", "contact_id", contactID, "dropped", dropped)
	}

	sess.Context.Mood = analyzeMood(content)
	sess.Context.Topics = mergeTopics(sess.Context.Topics, extractTopics(content), maxTrackedTopics)
	s.mu.Unlock()

	s.persist(ctx)
	return turn.ID
}

// History returns a copy of the turns recorded for a contact, oldest first.
func (s *Store) History(contactID string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[contactID]
	if !ok {
		return nil
	}
	return append([]Turn(nil), sess.Turns...)
}

// SessionStats returns a snapshot of one session's statistics.
func (s *Store) SessionStats(contactID string) (Stats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[contactID]
	if !ok {
		return Stats{}, false
	}
	return statsOf(sess), true
}

func statsOf(sess *ContactSession) Stats {
	return Stats{
		TotalMessages:  sess.TotalMessages,
		TurnsInMemory:  len(sess.Turns),
		Participants:   append([]string(nil), sess.Participants...),
		Topics:         append([]string(nil), sess.Context.Topics...),
		Mood:           sess.Context.Mood,
		CreatedAt:      sess.CreatedAt,
		LastActivityAt: sess.LastActivityAt,
	}
}

// AllStats aggregates statistics across every session.
func (s *Store) AllStats(activeWindow time.Duration) AggregateStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := AggregateStats{
		TotalSessions:     len(s.sessions),
		MoodDistribution:  map[Mood]int{MoodPositive: 0, MoodNegative: 0, MoodNeutral: 0},
		TopicDistribution: map[string]int{},
	}
	now := time.Now()
	for _, sess := range s.sessions {
		stats.TotalMessages += sess.TotalMessages
		if now.Sub(sess.LastActivityAt) < activeWindow {
			stats.ActiveSessions++
		}
		stats.MoodDistribution[sess.Context.Mood]++
		for _, topic := range sess.Context.Topics {
			stats.TopicDistribution[topic]++
		}
	}
	return stats
}

// CountActive returns the number of sessions with activity inside the window.
func (s *Store) CountActive(window time.Duration) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	count := 0
	for _, sess := range s.sessions {
		if now.Sub(sess.LastActivityAt) < window {
			count++
		}
	}
	return count
}

// Contacts lists every known contact id.
func (s *Store) Contacts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EvictIdle removes every session idle for longer than the threshold and
// returns the number removed. Persists only when something changed.
func (s *Store) EvictIdle(ctx context.Context, threshold time.Duration) int {
	cutoff := time.Now().Add(-threshold)

	s.mu.Lock()
	removed := 0
	for id, sess := range s.sessions {
		if sess.LastActivityAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.logger.Info("evicted idle sessions", "count", removed)
		s.persist(ctx)
	}
	return removed
}

// Clear removes one session explicitly. Returns false when absent.
func (s *Store) Clear(ctx context.Context, contactID string) bool {
	s.mu.Lock()
	_, ok := s.sessions[contactID]
	if ok {
		delete(s.sessions, contactID)
	}
	s.mu.Unlock()

	if ok {
		s.persist(ctx)
	}
	return ok
}

// Search matches query case-insensitively against turn content and sender
// names, ordered by most recent match first.
func (s *Store) Search(query string) []SearchResult {
	term := strings.ToLower(strings.TrimSpace(query))
	if term == "" {
		return nil
	}

	s.mu.RLock()
	var results []SearchResult
	for id, sess := range s.sessions {
		matches := 0
		var last Turn
		for _, turn := range sess.Turns {
			if strings.Contains(strings.ToLower(turn.Content), term) ||
				strings.Contains(strings.ToLower(turn.SenderName), term) {
				matches++
				last = turn
			}
		}
		if matches > 0 {
			results = append(results, SearchResult{
				ContactID:     id,
				MatchingTurns: matches,
				LastMatch:     last,
				TotalMessages: sess.TotalMessages,
			})
		}
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		return results[i].LastMatch.Timestamp.After(results[j].LastMatch.Timestamp)
	})
	return results
}

// ExportSession returns a full dump of one session for offline inspection.
func (s *Store) ExportSession(contactID string) (*Export, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[contactID]
	if !ok {
		return nil, false
	}
	return &Export{
		ContactID:  contactID,
		Stats:      statsOf(sess),
		Turns:      append([]Turn(nil), sess.Turns...),
		ExportedAt: time.Now().UTC(),
	}, true
}

// RunJanitor evicts idle sessions on a fixed interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval, idleThreshold time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.EvictIdle(ctx, idleThreshold)
		}
	}
}

// persist snapshots the mapping and hands it to the persister. Failures are
// logged only; the in-memory state remains authoritative.
func (s *Store) persist(ctx context.Context) {
	if s.persister == nil {
		return
	}

	s.mu.RLock()
	snapshot := make(map[string]*ContactSession, len(s.sessions))
	for id, sess := range s.sessions {
		copied := *sess
		copied.Turns = append([]Turn(nil), sess.Turns...)
		copied.Participants = append([]string(nil), sess.Participants...)
		copied.Context.Topics = append([]string(nil), sess.Context.Topics...)
		snapshot[id] = &copied
	}
	s.mu.RUnlock()

	if err := s.persister.SaveAll(ctx, snapshot); err != nil {
		s.logger.Error("failed to persist sessions", "error", err)
	}
}
