package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/operia/operia/internal/config"
	"github.com/operia/operia/internal/errors"
	"github.com/operia/operia/internal/logging"
	"github.com/operia/operia/internal/metrics"
	"github.com/operia/operia/internal/models"
)

// expirySlack invalidates cached installation tokens shortly before the
// provider does, so a token handed out is never already dead.
const expirySlack = 30 * time.Second

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// TokenManager hands out the best available access token for a code-host
// integration. With an App identity configured it mints short-lived
// installation tokens; on any mint failure it falls back to the stored user
// token so syncs keep working with user-level permissions.
type TokenManager struct {
	cfg     config.GitHubConfig
	key     *SigningKey
	client  *http.Client
	metrics *metrics.Metrics
	logger  *logging.Logger
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]cachedToken
}

// NewTokenManager creates a token manager. key may be nil when no App
// identity is configured; every call then resolves to the stored user token.
func NewTokenManager(cfg config.GitHubConfig, key *SigningKey, m *metrics.Metrics, logger *logging.Logger) *TokenManager {
	return &TokenManager{
		cfg:     cfg,
		key:     key,
		client:  &http.Client{Timeout: 30 * time.Second},
		metrics: m,
		logger:  logger,
		now:     time.Now,
		cache:   make(map[string]cachedToken),
	}
}

func (m *TokenManager) baseURL() string {
	if m.cfg.BaseURL != "" {
		return m.cfg.BaseURL
	}
	return githubAPIBase
}

// EffectiveToken returns the token to use for API calls on behalf of the
// integration. Installation-token failures are logged and recovered by
// returning the stored user token; they never surface to the caller.
func (m *TokenManager) EffectiveToken(ctx context.Context, in *models.Integration) string {
	installationID := in.Bot.InstallationID
	if installationID == "" || m.cfg.AppID == "" || m.key == nil {
		return in.AccessToken
	}

	token, err := m.installationToken(ctx, installationID)
	if err != nil {
		m.logger.WarnWithContext(ctx, "installation token mint failed, falling back to user token",
			"installation_id", installationID, "error", err.Error())
		if m.metrics != nil {
			m.metrics.RecordInstallationToken("fallback")
		}
		return in.AccessToken
	}
	return token
}

func (m *TokenManager) installationToken(ctx context.Context, installationID string) (string, error) {
	m.mu.Lock()
	if cached, ok := m.cache[installationID]; ok && m.now().Before(cached.expiresAt.Add(-expirySlack)) {
		m.mu.Unlock()
		return cached.token, nil
	}
	m.mu.Unlock()

	appJWT, err := m.appJWT()
	if err != nil {
		return "", &errors.ErrInstallationToken{InstallationID: installationID, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/app/installations/%s/access_tokens", m.baseURL(), installationID), nil)
	if err != nil {
		return "", &errors.ErrInstallationToken{InstallationID: installationID, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", githubUserAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", &errors.ErrInstallationToken{InstallationID: installationID, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &errors.ErrInstallationToken{InstallationID: installationID, Err: err}
	}
	if resp.StatusCode != http.StatusCreated {
		return "", &errors.ErrInstallationToken{
			InstallationID: installationID,
			Err:            fmt.Errorf("status %d: %s", resp.StatusCode, truncate(data, 200)),
		}
	}

	var body struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return "", &errors.ErrInstallationToken{InstallationID: installationID, Err: err}
	}
	if body.Token == "" {
		return "", &errors.ErrInstallationToken{InstallationID: installationID, Err: fmt.Errorf("response carried no token")}
	}

	m.mu.Lock()
	m.cache[installationID] = cachedToken{token: body.Token, expiresAt: body.ExpiresAt}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordInstallationToken("minted")
	}
	return body.Token, nil
}

// appJWT signs a short-lived RS256 App JWT. Issued-at is backdated a minute
// to absorb clock skew against the provider.
func (m *TokenManager) appJWT() (string, error) {
	key := m.key.Key()
	if key == nil {
		return "", fmt.Errorf("no signing key loaded")
	}

	now := m.now()
	claims := jwt.RegisteredClaims{
		Issuer:    m.cfg.AppID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
}
