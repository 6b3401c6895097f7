package outbox

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process outbox for the memory storage driver.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	events map[int64]*Event
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[int64]*Event), now: time.Now}
}

// Append stores a copy of event and assigns its id.
func (s *MemoryStore) Append(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := s.now()
	e := *event
	e.ID = s.nextID
	if e.Status == "" {
		e.Status = StatusPending
	}
	e.CreatedAt, e.UpdatedAt = now, now
	s.events[e.ID] = &e

	event.ID, event.CreatedAt, event.UpdatedAt = e.ID, now, now
	return nil
}

func (s *MemoryStore) sorted(keep func(*Event) bool, newestFirst bool, limit int) []*Event {
	var out []*Event
	for _, e := range s.events {
		if keep(e) {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *MemoryStore) GetPendingEvents(_ context.Context, limit int) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	return s.sorted(func(e *Event) bool {
		return e.Status == StatusPending && (e.NextRetryAt == nil || !e.NextRetryAt.After(now))
	}, false, limit), nil
}

func (s *MemoryStore) MarkAsSent(_ context.Context, eventID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return ErrEventNotFound
	}
	e.Status = StatusSent
	e.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) MarkAsFailed(_ context.Context, eventID int64, maxRetries int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return ErrEventNotFound
	}
	e.RetryCount++
	e.Status, e.NextRetryAt = nextAttempt(e.RetryCount, maxRetries, s.now())
	e.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) GetEventByID(_ context.Context, eventID int64) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[eventID]
	if !ok {
		return nil, ErrEventNotFound
	}
	c := *e
	return &c, nil
}

func (s *MemoryStore) GetFailedEvents(_ context.Context, limit int) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(e *Event) bool { return e.Status == StatusFailed }, true, limit), nil
}

// WithClock replaces the time source used for retry scheduling.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}
