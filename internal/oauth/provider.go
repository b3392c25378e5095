package oauth

import (
	"context"
	"net/url"

	"github.com/operia/operia/internal/config"
	"github.com/operia/operia/internal/models"
)

const (
	notionAPIBase    = "https://api.notion.com"
	notionAuthorize  = "https://api.notion.com/v1/oauth/authorize"
	githubAPIBase    = "https://api.github.com"
	githubAuthBase   = "https://github.com"
	githubUserAgent  = "operia-integrations"
	notionAPIVersion = "2022-06-28"
)

// Grant is the normalized outcome of an authorization-code exchange. Provider
// specific fields (workspace, installation) are filled when present.
type Grant struct {
	AccessToken   string
	Scope         string
	WorkspaceID   string
	WorkspaceName string
	Bot           models.BotInfo
}

// Exchanger swaps a provider authorization code for an access grant.
type Exchanger interface {
	// Provider returns the provider tag this exchanger serves.
	Provider() models.Provider
	// AuthorizeURL builds the provider consent URL carrying the encrypted
	// state token.
	AuthorizeURL(state string) string
	// Exchange redeems an authorization code at the provider token endpoint.
	Exchange(ctx context.Context, code string, params url.Values) (*Grant, error)
}

// Exchangers builds the per-provider exchanger set from configuration.
func Exchangers(cfg *config.Config) map[models.Provider]Exchanger {
	return map[models.Provider]Exchanger{
		models.ProviderNotion: NewNotionExchanger(cfg.Providers.Notion),
		models.ProviderGitHub: NewGitHubExchanger(cfg.Providers.GitHub),
	}
}
