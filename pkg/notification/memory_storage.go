package notification

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store in memory for tests and local development.
// It mirrors the semantics of the Postgres store, including idempotency-key
// uniqueness and transition legality checks.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[uuid.UUID]*Notification
	byKey     map[string]uuid.UUID
	logs      map[uuid.UUID][]*Log
	tokens    map[string]*PushToken
	overrides map[Channel]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:   make(map[uuid.UUID]*Notification),
		byKey:     make(map[string]uuid.UUID),
		logs:      make(map[uuid.UUID][]*Log),
		tokens:    make(map[string]*PushToken),
		overrides: make(map[Channel]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.IdempotencyKey != nil && *n.IdempotencyKey != "" {
		if _, exists := s.byKey[*n.IdempotencyKey]; exists {
			return ErrDuplicateIdempotencyKey
		}
	}

	now := time.Now()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now

	// Clone to keep callers from mutating stored state.
	cp := cloneNotification(n)
	s.records[n.ID] = cp
	if n.IdempotencyKey != nil && *n.IdempotencyKey != "" {
		s.byKey[*n.IdempotencyKey] = n.ID
	}
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.records[id]
	if !ok || n.DeletedAt != nil {
		return nil, ErrNotFound
	}
	return cloneNotification(n), nil
}

func (s *MemoryStore) GetByIdempotencyKey(ctx context.Context, key string) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	n, ok := s.records[id]
	if !ok || n.DeletedAt != nil {
		return nil, ErrNotFound
	}
	return cloneNotification(n), nil
}

func (s *MemoryStore) Transition(ctx context.Context, id uuid.UUID, to Status, apply func(*Notification)) (*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.records[id]
	if !ok || n.DeletedAt != nil {
		return nil, ErrNotFound
	}
	if !CanTransition(n.Status, to) {
		return nil, ErrInvalidTransition
	}

	n.Status = to
	if apply != nil {
		apply(n)
	}
	n.UpdatedAt = time.Now()
	return cloneNotification(n), nil
}

func (s *MemoryStore) ClaimForRetry(ctx context.Context, id uuid.UUID) (*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.records[id]
	if !ok || n.DeletedAt != nil {
		return nil, ErrNotFound
	}
	if n.Status != StatusFailed || n.RetryCount >= n.MaxRetries {
		return nil, ErrNotRetryable
	}

	n.Status = StatusProcessing
	n.UpdatedAt = time.Now()
	return cloneNotification(n), nil
}

func (s *MemoryStore) ListRetryable(ctx context.Context, limit int) ([]*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Notification
	for _, n := range s.records {
		if n.DeletedAt == nil && n.Status == StatusFailed && n.RetryCount < n.MaxRetries {
			out = append(out, cloneNotification(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) AppendLog(ctx context.Context, l *Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *l
	s.logs[l.NotificationID] = append(s.logs[l.NotificationID], &cp)
	return nil
}

func (s *MemoryStore) Logs(ctx context.Context, notificationID uuid.UUID) ([]*Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.logs[notificationID]
	out := make([]*Log, len(entries))
	for i, l := range entries {
		cp := *l
		out[i] = &cp
	}
	return out, nil
}

func (s *MemoryStore) SavePushToken(ctx context.Context, t *PushToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	cp := *t
	cp.IsActive = true
	if existing, ok := s.tokens[t.Token]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.tokens[t.Token] = &cp
	return nil
}

func (s *MemoryStore) DeactivatePushToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok {
		return ErrNotFound
	}
	t.IsActive = false
	t.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ActivePushTokens(ctx context.Context, userID string) ([]*PushToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*PushToken
	for _, t := range s.tokens {
		if t.UserID == userID && t.IsActive {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ProviderOverride(ctx context.Context, channel Channel) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.overrides[channel]
	if !ok {
		return "", ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) SetProviderOverride(ctx context.Context, channel Channel, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.overrides[channel] = provider
	return nil
}

func cloneNotification(n *Notification) *Notification {
	cp := *n
	if n.Metadata != nil {
		cp.Metadata = make(map[string]string, len(n.Metadata))
		for k, v := range n.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
