package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/operia/operia/internal/models"
)

const (
	workspaceAPIBase    = "https://api.notion.com"
	workspaceAPIVersion = "2022-06-28"
	workspacePageLimit  = 50
)

// WorkspaceFetcher lists top-level pages from the document-workspace provider
// via the search endpoint.
type WorkspaceFetcher struct {
	baseURL string
	client  *http.Client
}

// NewWorkspaceFetcher creates the document-workspace adapter. baseURL
// overrides the provider host, used in tests; empty means production.
func NewWorkspaceFetcher(baseURL string) *WorkspaceFetcher {
	if baseURL == "" {
		baseURL = workspaceAPIBase
	}
	return &WorkspaceFetcher{
		baseURL: baseURL,
		client:  NewClient(30 * time.Second),
	}
}

func (f *WorkspaceFetcher) Provider() models.Provider {
	return models.ProviderNotion
}

type workspaceSearchResult struct {
	Results []struct {
		ID     string `json:"id"`
		URL    string `json:"url"`
		Parent struct {
			Type string `json:"type"`
		} `json:"parent"`
		Properties map[string]struct {
			Title []struct {
				PlainText string `json:"plain_text"`
			} `json:"title"`
		} `json:"properties"`
	} `json:"results"`
}

// Fetch searches the workspace and keeps top-level pages only.
func (f *WorkspaceFetcher) Fetch(ctx context.Context, token string) ([]models.RawItem, error) {
	body, err := json.Marshal(map[string]interface{}{
		"filter":    map[string]string{"property": "object", "value": "page"},
		"page_size": workspacePageLimit,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/v1/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Notion-Version", workspaceAPIVersion)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("workspace search returned status %d", resp.StatusCode)
	}

	var result workspaceSearchResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("workspace search returned malformed body: %w", err)
	}

	items := make([]models.RawItem, 0, len(result.Results))
	for _, page := range result.Results {
		if page.Parent.Type != "workspace" {
			continue
		}
		title := ""
		for _, prop := range page.Properties {
			if len(prop.Title) > 0 {
				title = prop.Title[0].PlainText
				break
			}
		}
		if title == "" {
			title = "Untitled"
		}
		items = append(items, models.RawItem{
			ID:    page.ID,
			Title: title,
			Body:  title,
			URL:   page.URL,
		})
	}
	return items, nil
}
