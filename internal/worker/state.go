package worker

import (
	"sync"
	"sync/atomic"
	"time"

	"snowbotium/internal/models"
)

type sessionState struct {
	id        string
	allocator *Allocator

	mu         sync.RWMutex
	document   *models.Document
	createdAt  time.Time
	lastActive time.Time

	inflight atomic.Int32
	jobCh    chan Job
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

func newSessionState(id string, now time.Time, queueLen int) *sessionState {
	return &sessionState{
		id:         id,
		allocator:  NewAllocator(),
		createdAt:  now,
		lastActive: now,
		jobCh:      make(chan Job, queueLen),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

func (s *sessionState) getDocument() *models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.document
}

func (s *sessionState) setDocument(doc *models.Document) {
	s.mu.Lock()
	s.document = doc
	s.mu.Unlock()
}

func (s *sessionState) touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

func (s *sessionState) idleSince(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return now.Sub(s.lastActive)
}

func (s *sessionState) busy() bool {
	return s.inflight.Load() > 0 || len(s.jobCh) > 0
}

func (s *sessionState) stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *sessionState) snapshot() *models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	se := &models.Session{
		ID:         s.id,
		LastID:     s.allocator.Current(),
		CreatedAt:  s.createdAt,
		LastActive: s.lastActive,
	}
	if s.document != nil {
		doc := *s.document
		se.Document = &doc
	}
	return se
}
