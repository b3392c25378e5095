package tasks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/operia/operia/internal/logging"
	"github.com/operia/operia/internal/models"
	"github.com/operia/operia/internal/store"
)

func newTestMaterializer() (*Materializer, store.Store) {
	s := store.NewMemoryStore()
	return NewMaterializer(s, logging.NewLogger()), s
}

func TestMaterializePromotesCreateTaskProposals(t *testing.T) {
	m, s := newTestMaterializer()
	ctx := context.Background()

	inserted, err := m.Materialize(ctx, "user-1", []models.Proposal{
		{
			Type:        models.ProposalCreateTask,
			Title:       "Prepare the report",
			Description: "Alice owns the quarterly report",
			Evidence:    []string{"Alice will prepare the report by Friday"},
			Owner:       "Alice",
			Deadline:    "2026-09-04",
			Priority:    models.PriorityHigh,
		},
		{Type: models.ProposalRiskAlert, Title: "Security review pending"},
		{Type: models.ProposalSummary, Title: "Sprint summary"},
	}, models.SourceManual)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	tasks, err := s.ListTasks(ctx, "user-1", store.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	task := tasks[0]
	assert.Equal(t, "Prepare the report", task.Title)
	assert.Equal(t, models.SourceManual, task.Source)
	assert.Equal(t, models.TaskPending, task.Status)
	assert.Equal(t, models.PriorityHigh, task.Priority)
	assert.Contains(t, task.Tags, "evidence: Alice will prepare the report by Friday")
	assert.Contains(t, task.Tags, "owner: Alice")
	require.NotNil(t, task.EndDate)
	assert.Equal(t, "2026-09-04", task.EndDate.Format("2006-01-02"))
}

func TestMaterializeSkipsDuplicates(t *testing.T) {
	m, _ := newTestMaterializer()
	ctx := context.Background()

	proposals := []models.Proposal{
		{Type: models.ProposalCreateTask, Title: "Fix login bug"},
	}

	inserted, err := m.Materialize(ctx, "user-1", proposals, models.SourceGitHub)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	// A second sync over the same content inserts nothing new.
	inserted, err = m.Materialize(ctx, "user-1", proposals, models.SourceGitHub)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)

	// Same title from another source is a different task.
	inserted, err = m.Materialize(ctx, "user-1", proposals, models.SourceNotion)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
}

func TestMaterializeDropsUntitledAndBadDeadlines(t *testing.T) {
	m, s := newTestMaterializer()
	ctx := context.Background()

	inserted, err := m.Materialize(ctx, "user-1", []models.Proposal{
		{Type: models.ProposalCreateTask, Title: ""},
		{Type: models.ProposalCreateTask, Title: "Ship release", Deadline: "by Friday"},
	}, models.SourceManual)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)

	tasks, err := s.ListTasks(ctx, "user-1", store.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	// Unparseable deadline is dropped, not fatal.
	assert.Nil(t, tasks[0].EndDate)
}

func TestMaterializeNoCreateTaskProposals(t *testing.T) {
	m, _ := newTestMaterializer()

	inserted, err := m.Materialize(context.Background(), "user-1", []models.Proposal{
		{Type: models.ProposalReminder, Title: "Standup at 10"},
	}, models.SourceManual)
	require.NoError(t, err)
	assert.Equal(t, 0, inserted)
}

func TestMaterializeDefaultsInvalidPriority(t *testing.T) {
	m, s := newTestMaterializer()
	ctx := context.Background()

	_, err := m.Materialize(ctx, "user-1", []models.Proposal{
		{Type: models.ProposalCreateTask, Title: "Task", Priority: "urgent"},
	}, models.SourceManual)
	require.NoError(t, err)

	tasks, err := s.ListTasks(ctx, "user-1", store.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.PriorityMedium, tasks[0].Priority)
}
