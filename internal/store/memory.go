package store

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/operia/operia/internal/errors"
	"github.com/operia/operia/internal/models"
)

// MemoryStore is an in-memory Store used in tests and ephemeral setups.
// It is thread-safe and mirrors the SQLite store's semantics, including
// dedup-key suppression on task inserts.
type MemoryStore struct {
	mu           sync.RWMutex
	integrations map[string]*models.Integration  // key: userID|provider
	content      map[string][]models.ContentItem // key: integrationID
	tasks        map[string]*models.Task         // key: taskID
	taskKeys     map[string]bool                 // key: userID|dedupKey
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		integrations: make(map[string]*models.Integration),
		content:      make(map[string][]models.ContentItem),
		tasks:        make(map[string]*models.Task),
		taskKeys:     make(map[string]bool),
	}
}

func integrationKey(userID string, provider models.Provider) string {
	return userID + "|" + string(provider)
}

// UpsertIntegration creates or updates the integration for (user, provider).
func (s *MemoryStore) UpsertIntegration(_ context.Context, in *models.Integration) (*models.Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := integrationKey(in.UserID, in.Provider)
	if existing, ok := s.integrations[key]; ok {
		in.ID = existing.ID
		in.CreatedAt = existing.CreatedAt
	} else {
		if in.ID == "" {
			in.ID = uuid.New().String()
		}
		in.CreatedAt = now
	}
	in.UpdatedAt = now

	stored := *in
	s.integrations[key] = &stored
	return in, nil
}

// GetIntegration retrieves the integration for (user, provider).
func (s *MemoryStore) GetIntegration(_ context.Context, userID string, provider models.Provider) (*models.Integration, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	in, ok := s.integrations[integrationKey(userID, provider)]
	if !ok {
		return nil, false, nil
	}
	copied := *in
	return &copied, true, nil
}

// DeleteIntegration removes the integration and its cached content.
func (s *MemoryStore) DeleteIntegration(_ context.Context, userID string, provider models.Provider) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := integrationKey(userID, provider)
	in, ok := s.integrations[key]
	if !ok {
		return false, nil
	}
	delete(s.content, in.ID)
	delete(s.integrations, key)
	return true, nil
}

// ReplaceContentItems swaps the cached content set for an integration.
func (s *MemoryStore) ReplaceContentItems(_ context.Context, integrationID string, items []models.ContentItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	stored := make([]models.ContentItem, 0, len(items))
	for _, item := range items {
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		item.IntegrationID = integrationID
		item.CreatedAt = now
		item.UpdatedAt = now
		stored = append(stored, item)
	}
	s.content[integrationID] = stored
	return nil
}

// ListContentItems returns the cached content for an integration.
func (s *MemoryStore) ListContentItems(_ context.Context, integrationID string) ([]models.ContentItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.content[integrationID]
	out := make([]models.ContentItem, len(items))
	copy(out, items)
	return out, nil
}

// CreateTasks inserts tasks, skipping duplicates by (user, dedup key).
func (s *MemoryStore) CreateTasks(_ context.Context, tasks []*models.Task) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	inserted := 0
	for _, task := range tasks {
		key := task.UserID + "|" + task.DedupKey()
		if s.taskKeys[key] {
			continue
		}
		if task.ID == "" {
			task.ID = uuid.New().String()
		}
		if task.Status == "" {
			task.Status = models.TaskPending
		}
		task.CreatedAt = now

		stored := *task
		s.tasks[task.ID] = &stored
		s.taskKeys[key] = true
		inserted++
	}
	return inserted, nil
}

// ListTasks returns tasks for a user, newest first.
func (s *MemoryStore) ListTasks(_ context.Context, userID string, filter TaskFilter) ([]*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tasks []*models.Task
	for _, task := range s.tasks {
		if task.UserID != userID {
			continue
		}
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		if filter.Source != "" && task.Source != filter.Source {
			continue
		}
		copied := *task
		tasks = append(tasks, &copied)
	}

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	if filter.Limit > 0 && len(tasks) > filter.Limit {
		tasks = tasks[:filter.Limit]
	}
	return tasks, nil
}

// GetTask retrieves a task by id.
func (s *MemoryStore) GetTask(_ context.Context, id string) (*models.Task, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, false, nil
	}
	copied := *task
	return &copied, true, nil
}

// UpdateTaskStatus sets a new status on a task.
func (s *MemoryStore) UpdateTaskStatus(_ context.Context, id string, status models.TaskStatus) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, &errors.ErrDatabaseQuery{Operation: "update task status", Err: sql.ErrNoRows}
	}
	task.Status = status
	if status == models.TaskApproved && task.ApprovedAt == nil {
		now := time.Now().UTC()
		task.ApprovedAt = &now
	}
	copied := *task
	return &copied, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
