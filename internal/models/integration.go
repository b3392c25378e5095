package models

import "time"

// Provider identifies an external account provider.
type Provider string

const (
	// ProviderNotion is the document workspace provider.
	ProviderNotion Provider = "notion"
	// ProviderGitHub is the code hosting provider.
	ProviderGitHub Provider = "github"
)

// KnownProviders lists every provider the pipeline can connect.
var KnownProviders = []Provider{ProviderNotion, ProviderGitHub}

// IsValid reports whether the provider tag is one the pipeline knows.
func (p Provider) IsValid() bool {
	for _, known := range KnownProviders {
		if p == known {
			return true
		}
	}
	return false
}

// BotInfo is the free-form installation descriptor stored with an
// integration. For GitHub it carries the App installation id; TokenKind
// distinguishes user tokens from installation tokens.
type BotInfo struct {
	InstallationID string `json:"installation_id,omitempty"`
	TokenKind      string `json:"token_kind,omitempty"`
}

// Integration is one connected external account. At most one row exists per
// (user, provider); re-authorization updates the row in place.
type Integration struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Provider      Provider  `json:"provider"`
	AccessToken   string    `json:"-"`
	Scope         string    `json:"scope,omitempty"`
	WorkspaceID   string    `json:"workspace_id,omitempty"`
	WorkspaceName string    `json:"workspace_name,omitempty"`
	Bot           BotInfo   `json:"bot"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ContentItem is a cached snapshot of one upstream item (e.g. a workspace
// page). The set is fully replaced on every sync, not merged.
type ContentItem struct {
	ID            string    `json:"id"`
	IntegrationID string    `json:"integration_id"`
	Title         string    `json:"title"`
	URL           string    `json:"url"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RawItem is the normalized output of a content fetch adapter, consumed by
// the extraction engine.
type RawItem struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	URL      string            `json:"url"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
