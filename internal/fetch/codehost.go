package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/operia/operia/internal/models"
)

const (
	codehostAPIBase    = "https://api.github.com"
	codehostIssueLimit = 50
)

// CodeHostFetcher lists open issues assigned to the authenticated account on
// the code-hosting provider.
type CodeHostFetcher struct {
	baseURL string
	client  *http.Client
}

// NewCodeHostFetcher creates the code-host adapter. baseURL overrides the
// provider host, used in tests; empty means production.
func NewCodeHostFetcher(baseURL string) *CodeHostFetcher {
	if baseURL == "" {
		baseURL = codehostAPIBase
	}
	return &CodeHostFetcher{
		baseURL: baseURL,
		client:  NewClient(30 * time.Second),
	}
}

func (f *CodeHostFetcher) Provider() models.Provider {
	return models.ProviderGitHub
}

type codehostIssue struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
	Labels  []struct {
		Name string `json:"name"`
	} `json:"labels"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	PullRequest *struct{} `json:"pull_request"`
}

// Fetch lists open assigned issues. Pull requests come back on the same
// endpoint and are filtered out. Labels carry over as metadata, with
// well-known priority labels mapped to a priority hint.
func (f *CodeHostFetcher) Fetch(ctx context.Context, token string) ([]models.RawItem, error) {
	url := fmt.Sprintf("%s/issues?filter=assigned&state=open&per_page=%d", f.baseURL, codehostIssueLimit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", userAgent)

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
		return nil, fmt.Errorf("issue list returned status %d", resp.StatusCode)
	}

	var issues []codehostIssue
	if err := json.Unmarshal(data, &issues); err != nil {
		return nil, fmt.Errorf("issue list returned malformed body: %w", err)
	}

	items := make([]models.RawItem, 0, len(issues))
	for _, issue := range issues {
		if issue.PullRequest != nil {
			continue
		}
		labels := make([]string, 0, len(issue.Labels))
		for _, label := range issue.Labels {
			labels = append(labels, label.Name)
		}
		metadata := map[string]string{
			"number":   strconv.Itoa(issue.Number),
			"priority": string(PriorityFromLabels(labels)),
		}
		if issue.Repository.FullName != "" {
			metadata["repository"] = issue.Repository.FullName
		}
		if len(labels) > 0 {
			metadata["labels"] = strings.Join(labels, ",")
		}
		items = append(items, models.RawItem{
			ID:       strconv.Itoa(issue.Number),
			Title:    issue.Title,
			Body:     issue.Body,
			URL:      issue.HTMLURL,
			Metadata: metadata,
		})
	}
	return items, nil
}

// PriorityFromLabels maps well-known issue labels onto a task priority.
func PriorityFromLabels(labels []string) models.TaskPriority {
	for _, label := range labels {
		switch strings.ToLower(label) {
		case "priority: high", "critical":
			return models.PriorityHigh
		}
	}
	for _, label := range labels {
		switch strings.ToLower(label) {
		case "priority: low", "nice to have":
			return models.PriorityLow
		}
	}
	return models.PriorityMedium
}
