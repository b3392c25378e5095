package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/operia/operia/internal/config"
	apperrors "github.com/operia/operia/internal/errors"
	"github.com/operia/operia/internal/logging"
	"github.com/operia/operia/internal/models"
)

type stubCompleter struct {
	response string
	err      error
	prompts  []string
}

func (s *stubCompleter) Complete(_ context.Context, messages []ChatMessage) (string, error) {
	for _, m := range messages {
		if m.Role == "user" {
			s.prompts = append(s.prompts, m.Content)
		}
	}
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func newTestEngine(llm Completer) *Engine {
	return NewEngine(llm, config.DefaultSkills(), logging.NewLogger())
}

func TestExtractParsesProposals(t *testing.T) {
	llm := &stubCompleter{response: `{
		"proposals": [
			{
				"type": "create_task",
				"title": "Prepare the report",
				"description": "Alice owns the report",
				"evidence": ["Alice will prepare the report by Friday"],
				"rationale": "A clear commitment with an owner and deadline",
				"owner": "Alice",
				"deadline": "2026-09-04",
				"priority": "high"
			},
			{
				"type": "risk_alert",
				"title": "Security review pending"
			}
		]
	}`}

	engine := newTestEngine(llm)
	result, err := engine.Extract(context.Background(), "Alice will prepare the report by Friday", models.SourceManual, "meeting notes", "")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.ProposalsCount)
	assert.NotEmpty(t, result.ProposalBatchID)

	first := result.Proposals[0]
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, models.ProposalCreateTask, first.Type)
	assert.Equal(t, "Prepare the report", first.Title)
	assert.Equal(t, models.PriorityHigh, first.Priority)

	// Missing optional fields are defaulted, not rejected.
	second := result.Proposals[1]
	assert.Equal(t, models.ProposalRiskAlert, second.Type)
	assert.Equal(t, models.PriorityMedium, second.Priority)
	assert.NotEmpty(t, second.WhatWillHappen)
	assert.NotNil(t, second.Evidence)
}

func TestExtractRecoverInvalidJSON(t *testing.T) {
	llm := &stubCompleter{response: "I could not produce JSON, sorry."}

	engine := newTestEngine(llm)
	result, err := engine.Extract(context.Background(), "content", models.SourceNotion, "workspace", "")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 0, result.ProposalsCount)
	assert.Empty(t, result.Proposals)
	assert.NotEmpty(t, result.Error)
}

func TestExtractEmptyProposalsIsSuccess(t *testing.T) {
	llm := &stubCompleter{response: `{"proposals": []}`}

	engine := newTestEngine(llm)
	result, err := engine.Extract(context.Background(), "nothing actionable here", models.SourceNotion, "workspace", "")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 0, result.ProposalsCount)
	assert.NotNil(t, result.Proposals)
}

func TestExtractPropagatesTransportErrors(t *testing.T) {
	llm := &stubCompleter{err: &apperrors.ErrLLMTransport{Status: 503}}

	engine := newTestEngine(llm)
	_, err := engine.Extract(context.Background(), "content", models.SourceGitHub, "issues", "")
	require.Error(t, err)
	var transport *apperrors.ErrLLMTransport
	assert.ErrorAs(t, err, &transport)
}

func TestExtractPromptCarriesSkillsAndContent(t *testing.T) {
	llm := &stubCompleter{response: `{"proposals": []}`}

	engine := NewEngine(llm, map[string]bool{"extract_tasks": true, "detect_risks": true}, logging.NewLogger())
	_, err := engine.Extract(context.Background(), "the content body", models.SourceGitHub, "acme/app issues", "")
	require.NoError(t, err)

	require.Len(t, llm.prompts, 1)
	prompt := llm.prompts[0]
	assert.Contains(t, prompt, "SOURCE TYPE: github")
	assert.Contains(t, prompt, "SOURCE: acme/app issues")
	assert.Contains(t, prompt, "Extract all actionable tasks")
	assert.Contains(t, prompt, "Identify any blockers")
	assert.NotContains(t, prompt, "Create a brief summary")
	assert.Contains(t, prompt, "the content body")
}

func TestExtractPromptCarriesMemoryContext(t *testing.T) {
	llm := &stubCompleter{response: `{"proposals": []}`}

	engine := newTestEngine(llm)
	memory := "Items seen on the previous sync:\n- Fix login bug"
	_, err := engine.Extract(context.Background(), "new content", models.SourceNotion, "workspace", memory)
	require.NoError(t, err)

	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "RECENT CONTEXT:")
	assert.Contains(t, llm.prompts[0], "Fix login bug")

	// Without memory the context block stays out of the prompt.
	llm.prompts = nil
	_, err = engine.Extract(context.Background(), "new content", models.SourceNotion, "workspace", "")
	require.NoError(t, err)
	require.Len(t, llm.prompts, 1)
	assert.NotContains(t, llm.prompts[0], "RECENT CONTEXT:")
}

func TestExtractItemsConcatenatesContent(t *testing.T) {
	llm := &stubCompleter{response: `{"proposals": []}`}

	engine := newTestEngine(llm)
	_, err := engine.ExtractItems(context.Background(), []models.RawItem{
		{Title: "Fix login bug", Body: "Users cannot log in.", URL: "https://github.com/acme/app/issues/42"},
		{Title: "Q3 Planning"},
	}, models.SourceGitHub, "issues", "")
	require.NoError(t, err)

	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "## Fix login bug")
	assert.Contains(t, llm.prompts[0], "Users cannot log in.")
	assert.Contains(t, llm.prompts[0], "## Q3 Planning")
}

func TestExtractItemsEmptyInputSkipsModelCall(t *testing.T) {
	llm := &stubCompleter{response: `{"proposals": []}`}

	engine := newTestEngine(llm)
	result, err := engine.ExtractItems(context.Background(), nil, models.SourceNotion, "workspace", "")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Empty(t, llm.prompts)
}

func TestLLMClientCallsDeployment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/openai/deployments/gpt-4o/chat/completions", r.URL.Path)
		require.Equal(t, "2024-05-01-preview", r.URL.Query().Get("api-version"))
		require.Equal(t, "key-1", r.Header.Get("api-key"))

		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Messages, 2)
		require.Equal(t, "system", body.Messages[0].Role)
		require.Equal(t, "json_object", body.ResponseFormat.Type)
		require.InDelta(t, 0.3, body.Temperature, 0.001)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": `{"proposals": []}`}},
			},
		})
	}))
	defer server.Close()

	client := NewLLMClient(config.LLMConfig{
		Endpoint:    server.URL,
		Deployment:  "gpt-4o",
		APIVersion:  "2024-05-01-preview",
		APIKey:      "key-1",
		Timeout:     10 * time.Second,
		Temperature: 0.3,
		MaxTokens:   4000,
	})

	text, err := client.Complete(context.Background(), []ChatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"proposals": []}`, text)
}

func TestLLMClientTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("rate limited"))
	}))
	defer server.Close()

	client := NewLLMClient(config.LLMConfig{
		Endpoint: server.URL, Deployment: "gpt-4o", APIVersion: "v", APIKey: "k",
		Timeout: 10 * time.Second,
	})

	_, err := client.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	var transport *apperrors.ErrLLMTransport
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, http.StatusTooManyRequests, transport.Status)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestLLMClientNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	client := NewLLMClient(config.LLMConfig{
		Endpoint: server.URL, Deployment: "d", APIVersion: "v", APIKey: "k",
		Timeout: 10 * time.Second,
	})

	_, err := client.Complete(context.Background(), []ChatMessage{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	var parse *apperrors.ErrLLMParse
	assert.ErrorAs(t, err, &parse)
}

func TestBuildSkillsListOrderIsStable(t *testing.T) {
	skills := config.DefaultSkills()
	list := buildSkillsList(skills)
	lines := strings.Split(list, "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "actionable tasks")
	assert.Contains(t, lines[4], "blockers")
}
