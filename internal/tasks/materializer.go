package tasks

import (
	"context"
	"time"

	"github.com/operia/operia/internal/logging"
	"github.com/operia/operia/internal/models"
	"github.com/operia/operia/internal/store"
)

// Materializer promotes create_task proposals into persisted tasks. Other
// proposal types stay ephemeral; they are surfaced to the client but never
// written.
type Materializer struct {
	store  store.Store
	logger *logging.Logger
}

// NewMaterializer creates a materializer backed by the given store.
func NewMaterializer(s store.Store, logger *logging.Logger) *Materializer {
	return &Materializer{store: s, logger: logger}
}

// Materialize converts the create_task proposals in the batch into tasks for
// the user and persists them. Duplicates by (title, source) are skipped by
// the store; the returned count covers tasks actually inserted.
func (m *Materializer) Materialize(ctx context.Context, userID string, proposals []models.Proposal, source models.TaskSource) (int, error) {
	var tasks []*models.Task
	for _, p := range proposals {
		if p.Type != models.ProposalCreateTask {
			continue
		}
		if p.Title == "" {
			continue
		}
		tasks = append(tasks, buildTask(userID, p, source))
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	inserted, err := m.store.CreateTasks(ctx, tasks)
	if err != nil {
		return 0, err
	}

	m.logger.InfoWithContext(ctx, "materialized tasks",
		"user_id", userID,
		"source", string(source),
		"proposed", len(tasks),
		"inserted", inserted,
		"deduplicated", len(tasks)-inserted)
	return inserted, nil
}

func buildTask(userID string, p models.Proposal, source models.TaskSource) *models.Task {
	task := &models.Task{
		UserID:      userID,
		Title:       p.Title,
		Description: p.Description,
		Source:      source,
		Status:      models.TaskPending,
		Priority:    p.Priority,
		Tags:        tagsFromProposal(p),
	}
	if !task.Priority.IsValid() {
		task.Priority = models.PriorityMedium
	}
	if p.Deadline != "" {
		if deadline, err := parseDeadline(p.Deadline); err == nil {
			task.EndDate = &deadline
		}
	}
	return task
}

// tagsFromProposal carries the evidence quotes and owner over as free-form
// tags so the provenance survives on the task.
func tagsFromProposal(p models.Proposal) []string {
	var tags []string
	for _, quote := range p.Evidence {
		if quote != "" {
			tags = append(tags, "evidence: "+quote)
		}
	}
	if p.Owner != "" {
		tags = append(tags, "owner: "+p.Owner)
	}
	return tags
}

// parseDeadline accepts an ISO date or timestamp. Unparseable deadlines are
// dropped rather than failing the whole batch.
func parseDeadline(value string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}
