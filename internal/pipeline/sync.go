package pipeline

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/operia/operia/internal/errors"
	"github.com/operia/operia/internal/extract"
	"github.com/operia/operia/internal/fetch"
	"github.com/operia/operia/internal/logging"
	"github.com/operia/operia/internal/metrics"
	"github.com/operia/operia/internal/models"
	"github.com/operia/operia/internal/notify"
	"github.com/operia/operia/internal/oauth"
	"github.com/operia/operia/internal/store"
	"github.com/operia/operia/internal/tasks"
)

// SyncResult is the outcome of one fetch-extract-materialize run.
type SyncResult struct {
	Success         bool              `json:"success"`
	TotalItems      int               `json:"total_items"`
	ProposalsCount  int               `json:"proposals_count"`
	Proposals       []models.Proposal `json:"proposals"`
	ProposalBatchID string            `json:"proposal_batch_id,omitempty"`
	SavedTasksCount int               `json:"saved_tasks_count"`
	Error           string            `json:"error,omitempty"`
}

// Service runs the sync pipeline: fetch provider content, cache it, extract
// proposals, materialize tasks. Overlapping syncs for the same (user,
// provider) coalesce onto a single run.
type Service struct {
	store    store.Store
	fetchers map[models.Provider]fetch.Fetcher
	tokens   *oauth.TokenManager
	engine   *extract.Engine
	tasks    *tasks.Materializer
	metrics  *metrics.Metrics
	notifier *notify.Notifier
	logger   *logging.Logger
	group    singleflight.Group
}

// NewService wires the sync pipeline together.
func NewService(
	s store.Store,
	fetchers map[models.Provider]fetch.Fetcher,
	tokens *oauth.TokenManager,
	engine *extract.Engine,
	materializer *tasks.Materializer,
	m *metrics.Metrics,
	notifier *notify.Notifier,
	logger *logging.Logger,
) *Service {
	return &Service{
		store:    s,
		fetchers: fetchers,
		tokens:   tokens,
		engine:   engine,
		tasks:    materializer,
		metrics:  m,
		notifier: notifier,
		logger:   logger,
	}
}

// Sync runs the pipeline for one (user, provider) pair. Concurrent calls for
// the same pair share one run and one result.
func (s *Service) Sync(ctx context.Context, userID string, provider models.Provider) (*SyncResult, error) {
	key := userID + "|" + string(provider)
	result, err, shared := s.group.Do(key, func() (interface{}, error) {
		return s.runSync(ctx, userID, provider)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.DebugWithContext(ctx, "sync request coalesced", "user_id", userID, "provider", string(provider))
	}
	return result.(*SyncResult), nil
}

func (s *Service) runSync(ctx context.Context, userID string, provider models.Provider) (*SyncResult, error) {
	start := time.Now()

	integration, ok, err := s.store.GetIntegration(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &errors.ErrIntegrationNotFound{UserID: userID, Provider: string(provider)}
	}

	fetcher, ok := s.fetchers[provider]
	if !ok {
		return nil, &errors.ErrIntegrationNotFound{UserID: userID, Provider: string(provider)}
	}

	token := integration.AccessToken
	if provider == models.ProviderGitHub && s.tokens != nil {
		token = s.tokens.EffectiveToken(ctx, integration)
	}

	items, err := fetcher.Fetch(ctx, token)
	if err != nil {
		s.metrics.RecordSyncRun(string(provider), "fetch_error", time.Since(start).Seconds())
		return nil, err
	}

	// Titles from the previous sync feed the prompt as rolling context.
	// Best effort: a read failure only means the model sees no history.
	memory := ""
	if previous, err := s.store.ListContentItems(ctx, integration.ID); err == nil {
		memory = memoryFromItems(previous)
	}

	// Cache refresh is its own transaction; a later extraction failure does
	// not roll it back.
	contentItems := make([]models.ContentItem, 0, len(items))
	for _, item := range items {
		contentItems = append(contentItems, models.ContentItem{
			Title: item.Title,
			URL:   item.URL,
		})
	}
	if err := s.store.ReplaceContentItems(ctx, integration.ID, contentItems); err != nil {
		s.metrics.RecordSyncRun(string(provider), "store_error", time.Since(start).Seconds())
		return nil, err
	}

	source := sourceForProvider(provider)
	extraction, err := s.engine.ExtractItems(ctx, items, source, integration.WorkspaceName, memory)
	if err != nil {
		s.metrics.RecordLLMCall("transport_error")
		s.metrics.RecordSyncRun(string(provider), "llm_error", time.Since(start).Seconds())
		return nil, err
	}
	if !extraction.Success {
		s.metrics.RecordLLMCall("parse_error")
		s.metrics.RecordSyncRun(string(provider), "parse_error", time.Since(start).Seconds())
		return &SyncResult{
			Success:    false,
			TotalItems: len(items),
			Proposals:  []models.Proposal{},
			Error:      extraction.Error,
		}, nil
	}
	s.metrics.RecordLLMCall("success")

	saved, err := s.tasks.Materialize(ctx, userID, extraction.Proposals, source)
	if err != nil {
		s.metrics.RecordSyncRun(string(provider), "store_error", time.Since(start).Seconds())
		return nil, err
	}

	proposed := 0
	for _, p := range extraction.Proposals {
		if p.Type == models.ProposalCreateTask && p.Title != "" {
			proposed++
		}
	}
	s.metrics.RecordTasksCreated(string(source), saved, proposed-saved)
	s.metrics.RecordSyncRun(string(provider), "success", time.Since(start).Seconds())

	s.logger.InfoWithContext(ctx, "sync completed",
		"user_id", userID,
		"provider", string(provider),
		"total_items", len(items),
		"proposals", extraction.ProposalsCount,
		"saved_tasks", saved)

	if s.notifier != nil {
		s.notifier.SyncCompleted(userID, string(provider), extraction.ProposalsCount, saved)
	}

	return &SyncResult{
		Success:         true,
		TotalItems:      len(items),
		ProposalsCount:  extraction.ProposalsCount,
		Proposals:       extraction.Proposals,
		ProposalBatchID: extraction.ProposalBatchID,
		SavedTasksCount: saved,
	}, nil
}

// ExtractText runs extraction and materialization over user-supplied text,
// outside any provider integration.
func (s *Service) ExtractText(ctx context.Context, userID, content, sourceName string) (*SyncResult, error) {
	extraction, err := s.engine.Extract(ctx, content, models.SourceManual, sourceName, "")
	if err != nil {
		s.metrics.RecordLLMCall("transport_error")
		return nil, err
	}
	if !extraction.Success {
		s.metrics.RecordLLMCall("parse_error")
		return &SyncResult{
			Success:   false,
			Proposals: []models.Proposal{},
			Error:     extraction.Error,
		}, nil
	}
	s.metrics.RecordLLMCall("success")

	saved, err := s.tasks.Materialize(ctx, userID, extraction.Proposals, models.SourceManual)
	if err != nil {
		return nil, err
	}

	return &SyncResult{
		Success:         true,
		ProposalsCount:  extraction.ProposalsCount,
		Proposals:       extraction.Proposals,
		ProposalBatchID: extraction.ProposalBatchID,
		SavedTasksCount: saved,
	}, nil
}

// memoryContextLimit bounds how many prior titles ride along in the prompt.
const memoryContextLimit = 20

// memoryFromItems renders the previous sync's cached titles as rolling
// context for the extraction prompt.
func memoryFromItems(items []models.ContentItem) string {
	if len(items) == 0 {
		return ""
	}
	if len(items) > memoryContextLimit {
		items = items[:memoryContextLimit]
	}
	lines := make([]string, 0, len(items)+1)
	lines = append(lines, "Items seen on the previous sync:")
	for _, item := range items {
		lines = append(lines, "- "+item.Title)
	}
	return strings.Join(lines, "\n")
}

func sourceForProvider(provider models.Provider) models.TaskSource {
	switch provider {
	case models.ProviderGitHub:
		return models.SourceGitHub
	default:
		return models.SourceNotion
	}
}
