package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/operia/operia/internal/config"
	"github.com/operia/operia/internal/errors"
	"github.com/operia/operia/internal/models"
)

// GitHubExchanger redeems authorization codes at the code-host provider. The
// token endpoint takes form-encoded credentials and answers JSON when asked.
type GitHubExchanger struct {
	cfg    config.GitHubConfig
	client *http.Client
}

// NewGitHubExchanger creates the exchanger for the code-host provider.
func NewGitHubExchanger(cfg config.GitHubConfig) *GitHubExchanger {
	return &GitHubExchanger{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *GitHubExchanger) Provider() models.Provider {
	return models.ProviderGitHub
}

func (e *GitHubExchanger) authBaseURL() string {
	if e.cfg.AuthBaseURL != "" {
		return e.cfg.AuthBaseURL
	}
	return githubAuthBase
}

// AuthorizeURL builds the consent URL with the configured scope and the
// encrypted state.
func (e *GitHubExchanger) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", e.cfg.ClientID)
	q.Set("redirect_uri", e.cfg.RedirectURI)
	q.Set("state", state)
	if e.cfg.Scope != "" {
		q.Set("scope", e.cfg.Scope)
	}
	return e.authBaseURL() + "/login/oauth/authorize?" + q.Encode()
}

type githubTokenResponse struct {
	AccessToken      string `json:"access_token"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Exchange redeems the authorization code. Callback query params may carry an
// installation_id when the App was installed during the flow; it is preserved
// on the grant so installation tokens can be minted later.
func (e *GitHubExchanger) Exchange(ctx context.Context, code string, params url.Values) (*Grant, error) {
	form := url.Values{}
	form.Set("client_id", e.cfg.ClientID)
	form.Set("client_secret", e.cfg.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", e.cfg.RedirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.authBaseURL()+"/login/oauth/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &errors.ErrOAuthExchange{Provider: "github", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &errors.ErrOAuthExchange{Provider: "github", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &errors.ErrOAuthExchange{Provider: "github", Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &errors.ErrOAuthExchange{
			Provider: "github",
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("token endpoint rejected the code: %s", truncate(data, 200)),
		}
	}

	var token githubTokenResponse
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, &errors.ErrOAuthExchange{Provider: "github", Status: resp.StatusCode, Err: err}
	}
	if token.Error != "" {
		return nil, &errors.ErrOAuthExchange{
			Provider: "github",
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("%s: %s", token.Error, token.ErrorDescription),
		}
	}
	if token.AccessToken == "" {
		return nil, &errors.ErrOAuthExchange{Provider: "github", Status: resp.StatusCode, Err: fmt.Errorf("token response carried no access_token")}
	}

	grant := &Grant{
		AccessToken: token.AccessToken,
		Scope:       token.Scope,
		Bot:         models.BotInfo{TokenKind: "oauth"},
	}
	if params != nil {
		if installationID := params.Get("installation_id"); installationID != "" {
			grant.Bot.InstallationID = installationID
		}
	}
	return grant, nil
}

var _ Exchanger = (*GitHubExchanger)(nil)
var _ Exchanger = (*NotionExchanger)(nil)
