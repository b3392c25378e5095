package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/operia/operia/internal/models"
)

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", value)
	require.NoError(t, err)
	return parsed
}

func newTestStores(t *testing.T) map[string]Store {
	t.Helper()

	sqliteStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })

	return map[string]Store{
		"sqlite": sqliteStore,
		"memory": NewMemoryStore(),
	}
}

func TestUpsertIntegrationKeepsID(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first, err := s.UpsertIntegration(ctx, &models.Integration{
				UserID:      "user-1",
				Provider:    models.ProviderNotion,
				AccessToken: "token-a",
				WorkspaceID: "ws-1",
			})
			require.NoError(t, err)
			require.NotEmpty(t, first.ID)

			// Re-authorization replaces the token but keeps the row id.
			second, err := s.UpsertIntegration(ctx, &models.Integration{
				UserID:        "user-1",
				Provider:      models.ProviderNotion,
				AccessToken:   "token-b",
				WorkspaceID:   "ws-1",
				WorkspaceName: "Acme",
			})
			require.NoError(t, err)
			assert.Equal(t, first.ID, second.ID)
			assert.Equal(t, first.CreatedAt.Unix(), second.CreatedAt.Unix())

			got, ok, err := s.GetIntegration(ctx, "user-1", models.ProviderNotion)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "token-b", got.AccessToken)
			assert.Equal(t, "Acme", got.WorkspaceName)
		})
	}
}

func TestIntegrationsIsolatedPerProvider(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.UpsertIntegration(ctx, &models.Integration{
				UserID: "user-1", Provider: models.ProviderNotion, AccessToken: "n",
			})
			require.NoError(t, err)
			_, err = s.UpsertIntegration(ctx, &models.Integration{
				UserID: "user-1", Provider: models.ProviderGitHub, AccessToken: "g",
				Bot: models.BotInfo{InstallationID: "123", TokenKind: "oauth"},
			})
			require.NoError(t, err)

			notion, ok, err := s.GetIntegration(ctx, "user-1", models.ProviderNotion)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "n", notion.AccessToken)

			github, ok, err := s.GetIntegration(ctx, "user-1", models.ProviderGitHub)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "123", github.Bot.InstallationID)

			_, ok, err = s.GetIntegration(ctx, "user-2", models.ProviderNotion)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestDeleteIntegrationIsIdempotent(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			in, err := s.UpsertIntegration(ctx, &models.Integration{
				UserID: "user-1", Provider: models.ProviderNotion, AccessToken: "t",
			})
			require.NoError(t, err)
			require.NoError(t, s.ReplaceContentItems(ctx, in.ID, []models.ContentItem{
				{Title: "Page A"},
			}))

			deleted, err := s.DeleteIntegration(ctx, "user-1", models.ProviderNotion)
			require.NoError(t, err)
			assert.True(t, deleted)

			// Cached content goes away with the integration.
			items, err := s.ListContentItems(ctx, in.ID)
			require.NoError(t, err)
			assert.Empty(t, items)

			deleted, err = s.DeleteIntegration(ctx, "user-1", models.ProviderNotion)
			require.NoError(t, err)
			assert.False(t, deleted)
		})
	}
}

func TestReplaceContentItemsSwapsSet(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			in, err := s.UpsertIntegration(ctx, &models.Integration{
				UserID: "user-1", Provider: models.ProviderNotion, AccessToken: "t",
			})
			require.NoError(t, err)

			require.NoError(t, s.ReplaceContentItems(ctx, in.ID, []models.ContentItem{
				{Title: "Old A", URL: "https://example.com/a"},
				{Title: "Old B", URL: "https://example.com/b"},
			}))
			require.NoError(t, s.ReplaceContentItems(ctx, in.ID, []models.ContentItem{
				{Title: "New C", URL: "https://example.com/c"},
			}))

			items, err := s.ListContentItems(ctx, in.ID)
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.Equal(t, "New C", items[0].Title)
			assert.Equal(t, in.ID, items[0].IntegrationID)
		})
	}
}

func TestCreateTasksSkipsDuplicates(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			inserted, err := s.CreateTasks(ctx, []*models.Task{
				{UserID: "user-1", Title: "Prepare the report", Source: models.SourceNotion, Priority: models.PriorityHigh},
				{UserID: "user-1", Title: "Fix login bug", Source: models.SourceGitHub, Priority: models.PriorityMedium},
			})
			require.NoError(t, err)
			assert.Equal(t, 2, inserted)

			// Same title modulo case and whitespace dedups against the
			// first batch; the genuinely new task still lands.
			inserted, err = s.CreateTasks(ctx, []*models.Task{
				{UserID: "user-1", Title: "  Prepare   THE report ", Source: models.SourceNotion},
				{UserID: "user-1", Title: "Ship release notes", Source: models.SourceNotion},
			})
			require.NoError(t, err)
			assert.Equal(t, 1, inserted)

			tasks, err := s.ListTasks(ctx, "user-1", TaskFilter{})
			require.NoError(t, err)
			assert.Len(t, tasks, 3)
		})
	}
}

func TestCreateTasksSameTitleDifferentSourceOrUser(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			inserted, err := s.CreateTasks(ctx, []*models.Task{
				{UserID: "user-1", Title: "Review PR", Source: models.SourceNotion},
				{UserID: "user-1", Title: "Review PR", Source: models.SourceGitHub},
				{UserID: "user-2", Title: "Review PR", Source: models.SourceNotion},
			})
			require.NoError(t, err)
			assert.Equal(t, 3, inserted)
		})
	}
}

func TestListTasksFilters(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.CreateTasks(ctx, []*models.Task{
				{UserID: "user-1", Title: "Task A", Source: models.SourceNotion},
				{UserID: "user-1", Title: "Task B", Source: models.SourceGitHub},
				{UserID: "user-1", Title: "Task C", Source: models.SourceGitHub},
			})
			require.NoError(t, err)

			tasks, err := s.ListTasks(ctx, "user-1", TaskFilter{Source: models.SourceGitHub})
			require.NoError(t, err)
			assert.Len(t, tasks, 2)

			tasks, err = s.ListTasks(ctx, "user-1", TaskFilter{Status: models.TaskPending, Limit: 1})
			require.NoError(t, err)
			assert.Len(t, tasks, 1)

			tasks, err = s.ListTasks(ctx, "user-1", TaskFilter{Status: models.TaskDone})
			require.NoError(t, err)
			assert.Empty(t, tasks)
		})
	}
}

func TestUpdateTaskStatusRecordsApproval(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.CreateTasks(ctx, []*models.Task{
				{UserID: "user-1", Title: "Task A", Source: models.SourceManual},
			})
			require.NoError(t, err)

			tasks, err := s.ListTasks(ctx, "user-1", TaskFilter{})
			require.NoError(t, err)
			require.Len(t, tasks, 1)
			require.Equal(t, models.TaskPending, tasks[0].Status)
			require.Nil(t, tasks[0].ApprovedAt)

			updated, err := s.UpdateTaskStatus(ctx, tasks[0].ID, models.TaskApproved)
			require.NoError(t, err)
			assert.Equal(t, models.TaskApproved, updated.Status)
			require.NotNil(t, updated.ApprovedAt)

			got, ok, err := s.GetTask(ctx, tasks[0].ID)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, models.TaskApproved, got.Status)

			_, err = s.UpdateTaskStatus(ctx, "missing-id", models.TaskDone)
			assert.Error(t, err)
		})
	}
}

func TestTasksRoundTripTagsAndDates(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			deadline := mustDate(t, "2026-09-04")
			_, err := s.CreateTasks(ctx, []*models.Task{
				{
					UserID:   "user-1",
					Title:    "Prepare the report",
					Source:   models.SourceNotion,
					Tags:     []string{"evidence: Alice will prepare the report by Friday"},
					Priority: models.PriorityHigh,
					EndDate:  &deadline,
				},
			})
			require.NoError(t, err)

			tasks, err := s.ListTasks(ctx, "user-1", TaskFilter{})
			require.NoError(t, err)
			require.Len(t, tasks, 1)
			assert.Equal(t, []string{"evidence: Alice will prepare the report by Friday"}, tasks[0].Tags)
			require.NotNil(t, tasks[0].EndDate)
			assert.Equal(t, deadline.Unix(), tasks[0].EndDate.Unix())
		})
	}
}
