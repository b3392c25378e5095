package store

import (
	"context"

	"github.com/operia/operia/internal/models"
)

// TaskFilter narrows task listings.
type TaskFilter struct {
	Status models.TaskStatus
	Source models.TaskSource
	Limit  int
}

// Store is the persistence interface for integrations, cached content and
// tasks. Implementations must be safe for concurrent use.
type Store interface {
	// UpsertIntegration creates or updates the one integration row per
	// (user, provider). The stored id is stable across re-authorizations.
	UpsertIntegration(ctx context.Context, in *models.Integration) (*models.Integration, error)
	GetIntegration(ctx context.Context, userID string, provider models.Provider) (*models.Integration, bool, error)
	// DeleteIntegration removes the integration and its cached content.
	// Idempotent: returns false without error when nothing existed.
	DeleteIntegration(ctx context.Context, userID string, provider models.Provider) (bool, error)

	// ReplaceContentItems swaps the full cached content set for an
	// integration in one transaction (delete-then-insert).
	ReplaceContentItems(ctx context.Context, integrationID string, items []models.ContentItem) error
	ListContentItems(ctx context.Context, integrationID string) ([]models.ContentItem, error)

	// CreateTasks inserts tasks in one transaction, skipping any whose
	// dedup key already exists for the owning user. Returns the number
	// actually inserted.
	CreateTasks(ctx context.Context, tasks []*models.Task) (int, error)
	ListTasks(ctx context.Context, userID string, filter TaskFilter) ([]*models.Task, error)
	GetTask(ctx context.Context, id string) (*models.Task, bool, error)
	UpdateTaskStatus(ctx context.Context, id string, status models.TaskStatus) (*models.Task, error)

	Close() error
}
