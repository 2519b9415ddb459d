package history

import (
	"context"
	"sort"
	"sync"
	"time"

	"chatppt_studio/generator"
)

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
}

type memorySession struct {
	mu        sync.Mutex
	messages  []generator.Message
	createdAt time.Time
	updatedAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*memorySession)}
}

// session returns the entry for id, creating it when missing. The store-wide
// lock only guards the map; callers then lock the entry itself.
func (s *MemoryStore) session(id string) *memorySession {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		now := time.Now()
		sess = &memorySession{createdAt: now, updatedAt: now}
		s.sessions[id] = sess
	}
	return sess
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) ([]generator.Message, error) {
	sess := s.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return append([]generator.Message(nil), sess.messages...), nil
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, msgs ...generator.Message) error {
	sess := s.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.messages = append(sess.messages, msgs...)
	sess.updatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ClearKeepingLast(_ context.Context, sessionID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if len(sess.messages) == 0 {
		return nil
	}
	sess.messages = []generator.Message{sess.messages[len(sess.messages)-1]}
	sess.updatedAt = time.Now()
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]SessionInfo, error) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	entries := make([]*memorySession, 0, len(s.sessions))
	for id, sess := range s.sessions {
		ids = append(ids, id)
		entries = append(entries, sess)
	}
	s.mu.Unlock()

	out := make([]SessionInfo, 0, len(ids))
	for i, sess := range entries {
		sess.mu.Lock()
		out = append(out, SessionInfo{
			ID:        ids[i],
			Messages:  len(sess.messages),
			CreatedAt: sess.createdAt,
			UpdatedAt: sess.updatedAt,
		})
		sess.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
