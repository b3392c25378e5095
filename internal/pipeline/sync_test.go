package pipeline

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/operia/operia/internal/config"
	apperrors "github.com/operia/operia/internal/errors"
	"github.com/operia/operia/internal/extract"
	"github.com/operia/operia/internal/fetch"
	"github.com/operia/operia/internal/logging"
	"github.com/operia/operia/internal/metrics"
	"github.com/operia/operia/internal/models"
	"github.com/operia/operia/internal/store"
	"github.com/operia/operia/internal/tasks"
)

type stubFetcher struct {
	provider models.Provider
	items    []models.RawItem
	err      error
	calls    atomic.Int64
	delay    time.Duration
}

func (f *stubFetcher) Provider() models.Provider { return f.provider }

func (f *stubFetcher) Fetch(_ context.Context, _ string) ([]models.RawItem, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.items, f.err
}

type stubLLM struct {
	response string
	err      error

	mu      sync.Mutex
	prompts []string
}

func (s *stubLLM) Complete(_ context.Context, messages []extract.ChatMessage) (string, error) {
	s.mu.Lock()
	for _, m := range messages {
		if m.Role == "user" {
			s.prompts = append(s.prompts, m.Content)
		}
	}
	s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func newTestService(t *testing.T, fetcher fetch.Fetcher, llmResponse string, llmErr error) (*Service, store.Store, *stubLLM) {
	t.Helper()
	s := store.NewMemoryStore()
	logger := logging.NewLogger()

	llm := &stubLLM{response: llmResponse, err: llmErr}
	engine := extract.NewEngine(llm, config.DefaultSkills(), logger)
	materializer := tasks.NewMaterializer(s, logger)

	fetchers := map[models.Provider]fetch.Fetcher{}
	if fetcher != nil {
		fetchers[fetcher.Provider()] = fetcher
	}

	svc := NewService(s, fetchers, nil, engine, materializer,
		metrics.NewMetrics("testsync"), nil, logger)
	return svc, s, llm
}

func seedIntegration(t *testing.T, s store.Store, provider models.Provider) {
	t.Helper()
	_, err := s.UpsertIntegration(context.Background(), &models.Integration{
		UserID:      "user-1",
		Provider:    provider,
		AccessToken: "tok",
	})
	require.NoError(t, err)
}

func TestSyncFullRun(t *testing.T) {
	fetcher := &stubFetcher{
		provider: models.ProviderNotion,
		items: []models.RawItem{
			{ID: "p1", Title: "Meeting notes", Body: "Alice will prepare the report by Friday", URL: "https://notion.so/p1"},
		},
	}
	llmResponse := `{"proposals": [
		{"type": "create_task", "title": "Prepare the report", "evidence": ["Alice will prepare the report by Friday"], "owner": "Alice", "deadline": "2026-09-04", "priority": "high"}
	]}`

	svc, s, _ := newTestService(t, fetcher, llmResponse, nil)
	seedIntegration(t, s, models.ProviderNotion)

	result, err := svc.Sync(context.Background(), "user-1", models.ProviderNotion)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.TotalItems)
	assert.Equal(t, 1, result.ProposalsCount)
	assert.Equal(t, 1, result.SavedTasksCount)
	assert.NotEmpty(t, result.ProposalBatchID)

	// Content cache was replaced.
	integration, ok, err := s.GetIntegration(context.Background(), "user-1", models.ProviderNotion)
	require.NoError(t, err)
	require.True(t, ok)
	items, err := s.ListContentItems(context.Background(), integration.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Meeting notes", items[0].Title)

	// The commitment became a pending task with evidence tags and a deadline.
	tasksList, err := s.ListTasks(context.Background(), "user-1", store.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, tasksList, 1)
	assert.Equal(t, "Prepare the report", tasksList[0].Title)
	assert.Equal(t, models.TaskPending, tasksList[0].Status)
	require.NotNil(t, tasksList[0].EndDate)
}

func TestSyncRepeatRunDeduplicates(t *testing.T) {
	fetcher := &stubFetcher{
		provider: models.ProviderNotion,
		items:    []models.RawItem{{ID: "p1", Title: "Notes"}},
	}
	llmResponse := `{"proposals": [{"type": "create_task", "title": "Prepare the report"}]}`

	svc, s, _ := newTestService(t, fetcher, llmResponse, nil)
	seedIntegration(t, s, models.ProviderNotion)

	first, err := svc.Sync(context.Background(), "user-1", models.ProviderNotion)
	require.NoError(t, err)
	assert.Equal(t, 1, first.SavedTasksCount)

	second, err := svc.Sync(context.Background(), "user-1", models.ProviderNotion)
	require.NoError(t, err)
	assert.Equal(t, 0, second.SavedTasksCount)

	tasksList, err := s.ListTasks(context.Background(), "user-1", store.TaskFilter{})
	require.NoError(t, err)
	assert.Len(t, tasksList, 1)
}

func TestSyncFeedsPreviousTitlesAsContext(t *testing.T) {
	fetcher := &stubFetcher{
		provider: models.ProviderNotion,
		items:    []models.RawItem{{ID: "p1", Title: "Meeting notes"}},
	}

	svc, s, llm := newTestService(t, fetcher, `{"proposals": []}`, nil)
	seedIntegration(t, s, models.ProviderNotion)

	_, err := svc.Sync(context.Background(), "user-1", models.ProviderNotion)
	require.NoError(t, err)
	require.Len(t, llm.prompts, 1)
	// Nothing was cached yet, so the first run carries no history.
	assert.NotContains(t, llm.prompts[0], "RECENT CONTEXT:")

	fetcher.items = []models.RawItem{{ID: "p2", Title: "Retro summary"}}
	_, err = svc.Sync(context.Background(), "user-1", models.ProviderNotion)
	require.NoError(t, err)

	require.Len(t, llm.prompts, 2)
	assert.Contains(t, llm.prompts[1], "RECENT CONTEXT:")
	assert.Contains(t, llm.prompts[1], "Meeting notes")
}

func TestSyncNoIntegration(t *testing.T) {
	svc, _, _ := newTestService(t, &stubFetcher{provider: models.ProviderNotion}, `{"proposals": []}`, nil)

	_, err := svc.Sync(context.Background(), "user-1", models.ProviderNotion)
	require.Error(t, err)
	var notFound *apperrors.ErrIntegrationNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestSyncParseFailureIsStructured(t *testing.T) {
	fetcher := &stubFetcher{
		provider: models.ProviderNotion,
		items:    []models.RawItem{{ID: "p1", Title: "Notes"}},
	}

	svc, s, _ := newTestService(t, fetcher, "this is not json", nil)
	seedIntegration(t, s, models.ProviderNotion)

	result, err := svc.Sync(context.Background(), "user-1", models.ProviderNotion)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 0, result.ProposalsCount)
	assert.NotEmpty(t, result.Error)

	// The content cache still refreshed before extraction failed.
	integration, _, err := s.GetIntegration(context.Background(), "user-1", models.ProviderNotion)
	require.NoError(t, err)
	items, err := s.ListContentItems(context.Background(), integration.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestSyncTransportFailurePropagates(t *testing.T) {
	fetcher := &stubFetcher{
		provider: models.ProviderNotion,
		items:    []models.RawItem{{ID: "p1", Title: "Notes"}},
	}

	svc, s, _ := newTestService(t, fetcher, "", &apperrors.ErrLLMTransport{Status: 503})
	seedIntegration(t, s, models.ProviderNotion)

	_, err := svc.Sync(context.Background(), "user-1", models.ProviderNotion)
	require.Error(t, err)
	var transport *apperrors.ErrLLMTransport
	assert.ErrorAs(t, err, &transport)
}

func TestSyncCoalescesConcurrentRuns(t *testing.T) {
	fetcher := &stubFetcher{
		provider: models.ProviderNotion,
		items:    []models.RawItem{{ID: "p1", Title: "Notes"}},
		delay:    50 * time.Millisecond,
	}

	svc, s, _ := newTestService(t, fetcher, `{"proposals": []}`, nil)
	seedIntegration(t, s, models.ProviderNotion)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Sync(context.Background(), "user-1", models.ProviderNotion)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Overlapping requests share one pipeline run.
	assert.Less(t, fetcher.calls.Load(), int64(5))
}

func TestMemoryFromItemsCapsHistory(t *testing.T) {
	assert.Empty(t, memoryFromItems(nil))

	items := make([]models.ContentItem, 30)
	for i := range items {
		items[i] = models.ContentItem{Title: "Page"}
	}
	memory := memoryFromItems(items)
	assert.Len(t, strings.Split(memory, "\n"), memoryContextLimit+1)
}

func TestExtractText(t *testing.T) {
	llmResponse := `{"proposals": [{"type": "create_task", "title": "Prepare the report"}]}`
	svc, s, _ := newTestService(t, nil, llmResponse, nil)

	result, err := svc.ExtractText(context.Background(), "user-1", "Alice will prepare the report by Friday", "meeting notes")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.SavedTasksCount)

	tasksList, err := s.ListTasks(context.Background(), "user-1", store.TaskFilter{Source: models.SourceManual})
	require.NoError(t, err)
	assert.Len(t, tasksList, 1)
}
