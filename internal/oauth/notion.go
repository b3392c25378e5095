package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/operia/operia/internal/config"
	"github.com/operia/operia/internal/errors"
	"github.com/operia/operia/internal/models"
)

// NotionExchanger redeems authorization codes at the document-workspace
// provider. The token endpoint wants HTTP basic auth with the client
// credentials and a JSON body.
type NotionExchanger struct {
	cfg    config.NotionConfig
	client *http.Client
}

// NewNotionExchanger creates the exchanger for the document-workspace provider.
func NewNotionExchanger(cfg config.NotionConfig) *NotionExchanger {
	return &NotionExchanger{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *NotionExchanger) Provider() models.Provider {
	return models.ProviderNotion
}

func (e *NotionExchanger) baseURL() string {
	if e.cfg.BaseURL != "" {
		return e.cfg.BaseURL
	}
	return notionAPIBase
}

// AuthorizeURL builds the consent URL with owner=user and the encrypted state.
func (e *NotionExchanger) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", e.cfg.ClientID)
	q.Set("response_type", "code")
	q.Set("owner", "user")
	q.Set("redirect_uri", e.cfg.RedirectURI)
	q.Set("state", state)
	return notionAuthorize + "?" + q.Encode()
}

type notionTokenResponse struct {
	AccessToken   string `json:"access_token"`
	WorkspaceID   string `json:"workspace_id"`
	WorkspaceName string `json:"workspace_name"`
	BotID         string `json:"bot_id"`
	Error         string `json:"error"`
}

// Exchange redeems the authorization code and recovers the workspace identity
// from the token response.
func (e *NotionExchanger) Exchange(ctx context.Context, code string, _ url.Values) (*Grant, error) {
	body, err := json.Marshal(map[string]string{
		"grant_type":   "authorization_code",
		"code":         code,
		"redirect_uri": e.cfg.RedirectURI,
	})
	if err != nil {
		return nil, &errors.ErrOAuthExchange{Provider: "notion", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL()+"/v1/oauth/token", bytes.NewReader(body))
	if err != nil {
		return nil, &errors.ErrOAuthExchange{Provider: "notion", Err: err}
	}
	req.SetBasicAuth(e.cfg.ClientID, e.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Notion-Version", notionAPIVersion)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &errors.ErrOAuthExchange{Provider: "notion", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &errors.ErrOAuthExchange{Provider: "notion", Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &errors.ErrOAuthExchange{
			Provider: "notion",
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("token endpoint rejected the code: %s", truncate(data, 200)),
		}
	}

	var token notionTokenResponse
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, &errors.ErrOAuthExchange{Provider: "notion", Status: resp.StatusCode, Err: err}
	}
	if token.Error != "" {
		return nil, &errors.ErrOAuthExchange{Provider: "notion", Status: resp.StatusCode, Err: fmt.Errorf("%s", token.Error)}
	}
	if token.AccessToken == "" {
		return nil, &errors.ErrOAuthExchange{Provider: "notion", Status: resp.StatusCode, Err: fmt.Errorf("token response carried no access_token")}
	}

	return &Grant{
		AccessToken:   token.AccessToken,
		WorkspaceID:   token.WorkspaceID,
		WorkspaceName: token.WorkspaceName,
		Bot:           models.BotInfo{InstallationID: token.BotID, TokenKind: "bot"},
	}, nil
}

func truncate(data []byte, limit int) string {
	if len(data) > limit {
		return string(data[:limit]) + "..."
	}
	return string(data)
}
