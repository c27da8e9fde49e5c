package template

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

type slugKey struct {
	slug    string
	channel notification.Channel
}

// MemoryStore implements Store in memory for tests and for deployments
// that seed canned templates from YAML at startup.
type MemoryStore struct {
	mu        sync.RWMutex
	templates map[uuid.UUID]*Template
	bySlug    map[slugKey]uuid.UUID
	versions  map[uuid.UUID][]*Version
}

// NewMemoryStore creates an empty in-memory template store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		templates: make(map[uuid.UUID]*Template),
		bySlug:    make(map[slugKey]uuid.UUID),
		versions:  make(map[uuid.UUID][]*Version),
	}
}

func (s *MemoryStore) Create(ctx context.Context, t *Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := slugKey{slug: t.Slug, channel: t.Channel}
	if _, exists := s.bySlug[key]; exists {
		return ErrConflict
	}

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Status == "" {
		t.Status = StatusActive
	}
	t.Version = 1
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now

	cp := cloneTemplate(t)
	s.templates[t.ID] = cp
	s.bySlug[key] = t.ID
	s.versions[t.ID] = append(s.versions[t.ID], cp.snapshot())
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, t *Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.templates[t.ID]
	if !ok {
		return ErrNotFound
	}

	t.Version = existing.Version + 1
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = time.Now()

	cp := cloneTemplate(t)
	s.templates[t.ID] = cp
	s.versions[t.ID] = append(s.versions[t.ID], cp.snapshot())
	return nil
}

func (s *MemoryStore) Archive(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.templates[id]
	if !ok {
		return ErrNotFound
	}
	t.Status = StatusArchived
	t.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) GetBySlug(ctx context.Context, slug string, channel notification.Channel) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.bySlug[slugKey{slug: slug, channel: channel}]
	if !ok {
		return nil, ErrNotFound
	}
	t := s.templates[id]
	if t.Status == StatusArchived {
		return nil, ErrNotFound
	}
	return cloneTemplate(t), nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneTemplate(t), nil
}

func (s *MemoryStore) GetVersion(ctx context.Context, templateID uuid.UUID, number int) (*Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.versions[templateID] {
		if v.Number == number {
			cp := *v
			return &cp, nil
		}
	}
	return nil, ErrVersionNotFound
}

func (s *MemoryStore) List(ctx context.Context, channel notification.Channel) ([]*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Template
	for _, t := range s.templates {
		if t.Channel == channel {
			out = append(out, cloneTemplate(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func cloneTemplate(t *Template) *Template {
	cp := *t
	cp.Variables = make([]Variable, len(t.Variables))
	copy(cp.Variables, t.Variables)
	return &cp
}
