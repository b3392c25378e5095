package api

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/operia/operia/internal/errors"
	"github.com/operia/operia/internal/models"
	"github.com/operia/operia/internal/store"
)

// Response is the JSON envelope for all API endpoints.
type Response struct {
	Code      int         `json:"code"`
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:      http.StatusOK,
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, Response{
		Code:      status,
		Success:   false,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

func abortEnvelope(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Response{
		Code:      status,
		Success:   false,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) provider(c *gin.Context) (models.Provider, bool) {
	provider := models.Provider(c.Param("provider"))
	if !provider.IsValid() {
		respondError(c, http.StatusNotFound, "unknown provider: "+c.Param("provider"))
		return "", false
	}
	return provider, true
}

// handleAuth issues the provider consent URL with a fresh encrypted state.
func (s *Server) handleAuth(c *gin.Context) {
	provider, ok := s.provider(c)
	if !ok {
		return
	}
	exchanger := s.exchangers[provider]

	state, err := s.codec.Encode(UserID(c))
	if err != nil {
		s.logger.ErrorWithContext(c.Request.Context(), "failed to encode state token", "error", err.Error())
		respondError(c, http.StatusInternalServerError, "failed to build authorization URL")
		return
	}

	respondOK(c, gin.H{
		"auth_url": exchanger.AuthorizeURL(state),
		"state":    state,
	})
}

// handleCallback redeems the provider redirect. The browser always gets a
// 302 back to the client application, with a success or error marker in the
// query string; JSON is never returned here.
func (s *Server) handleCallback(c *gin.Context) {
	provider := models.Provider(c.Param("provider"))
	if !provider.IsValid() {
		s.redirectError(c, c.Param("provider"), "unknown_provider")
		return
	}

	if providerErr := c.Query("error"); providerErr != "" {
		s.metrics.RecordOAuthExchange(string(provider), "denied")
		s.redirectError(c, string(provider), providerErr)
		return
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		reason := "missing code"
		if state == "" {
			reason = "missing state"
		}
		cbErr := &errors.ErrInvalidCallback{Provider: string(provider), Reason: reason}
		s.logger.WarnWithContext(c.Request.Context(), "callback rejected", "error", cbErr.Error())
		s.metrics.RecordOAuthExchange(string(provider), "invalid_callback")
		s.redirectError(c, string(provider), "invalid_callback")
		return
	}

	userID, err := s.codec.Decode(state)
	if err != nil {
		s.logger.WarnWithContext(c.Request.Context(), "state token rejected",
			"provider", string(provider), "error", err.Error())
		s.metrics.RecordOAuthExchange(string(provider), "invalid_state")
		s.redirectError(c, string(provider), "invalid_state")
		return
	}

	exchanger := s.exchangers[provider]
	grant, err := exchanger.Exchange(c.Request.Context(), code, c.Request.URL.Query())
	if err != nil {
		s.logger.ErrorWithContext(c.Request.Context(), "token exchange failed",
			"provider", string(provider), "error", err.Error())
		s.metrics.RecordOAuthExchange(string(provider), "exchange_failed")
		s.redirectError(c, string(provider), "exchange_failed")
		return
	}

	_, err = s.store.UpsertIntegration(c.Request.Context(), &models.Integration{
		UserID:        userID,
		Provider:      provider,
		AccessToken:   grant.AccessToken,
		Scope:         grant.Scope,
		WorkspaceID:   grant.WorkspaceID,
		WorkspaceName: grant.WorkspaceName,
		Bot:           grant.Bot,
	})
	if err != nil {
		s.logger.ErrorWithContext(c.Request.Context(), "failed to store integration",
			"provider", string(provider), "error", err.Error())
		s.metrics.RecordOAuthExchange(string(provider), "store_failed")
		s.redirectError(c, string(provider), "store_failed")
		return
	}

	s.metrics.RecordOAuthExchange(string(provider), "success")
	s.logger.InfoWithContext(c.Request.Context(), "integration connected",
		"provider", string(provider), "user_id", userID)
	if s.notifier != nil {
		s.notifier.IntegrationConnected(userID, string(provider))
	}

	// Warm the content cache for workspace connections. Best effort; the
	// redirect does not wait on it and a failure only delays the first sync.
	if provider == models.ProviderNotion && s.pipeline != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if _, err := s.pipeline.Sync(ctx, userID, provider); err != nil {
				s.logger.Warn("post-connect sync failed",
					"provider", string(provider), "user_id", userID, "error", err.Error())
			}
		}()
	}

	s.redirectSuccess(c, string(provider))
}

func (s *Server) redirectSuccess(c *gin.Context, provider string) {
	q := url.Values{}
	q.Set("integration", provider)
	c.Redirect(http.StatusFound, s.clientRedirectURL(q))
}

func (s *Server) redirectError(c *gin.Context, provider, reason string) {
	q := url.Values{}
	q.Set("provider", provider)
	q.Set("error", reason)
	c.Redirect(http.StatusFound, s.clientRedirectURL(q))
}

func (s *Server) clientRedirectURL(q url.Values) string {
	base := s.config.ClientURL
	if base == "" {
		base = "/"
	}
	return base + "?" + q.Encode()
}

// handleStatus reports whether the provider is connected for the user.
func (s *Server) handleStatus(c *gin.Context) {
	provider, ok := s.provider(c)
	if !ok {
		return
	}

	integration, found, err := s.store.GetIntegration(c.Request.Context(), UserID(c), provider)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		respondOK(c, gin.H{
			"connected":   false,
			"workspace":   nil,
			"integration": nil,
		})
		return
	}

	respondOK(c, gin.H{
		"connected": true,
		"workspace": integration.WorkspaceName,
		"integration": gin.H{
			"id":             integration.ID,
			"type":           integration.Provider,
			"workspace_name": integration.WorkspaceName,
		},
	})
}

// handleDisconnect deletes the integration. Idempotent: disconnecting a
// provider that was never connected still succeeds.
func (s *Server) handleDisconnect(c *gin.Context) {
	provider, ok := s.provider(c)
	if !ok {
		return
	}

	deleted, err := s.store.DeleteIntegration(c.Request.Context(), UserID(c), provider)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.InfoWithContext(c.Request.Context(), "integration disconnected",
		"provider", string(provider), "user_id", UserID(c), "existed", deleted)
	respondOK(c, gin.H{"disconnected": true, "existed": deleted})
}

// handleSync runs the fetch-extract-materialize pipeline for the provider.
func (s *Server) handleSync(c *gin.Context) {
	provider, ok := s.provider(c)
	if !ok {
		return
	}

	result, err := s.pipeline.Sync(c.Request.Context(), UserID(c), provider)
	if err != nil {
		var notFound *errors.ErrIntegrationNotFound
		if stderrors.As(err, &notFound) {
			respondError(c, http.StatusNotFound, notFound.Error())
			return
		}
		var transport *errors.ErrLLMTransport
		if stderrors.As(err, &transport) {
			s.metrics.RecordError("llm_transport", c.FullPath(), c.Request.Method)
			respondError(c, http.StatusBadGateway, transport.Error())
			return
		}
		s.logger.ErrorWithContext(c.Request.Context(), "sync failed",
			"provider", string(provider), "error", err.Error())
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	if !result.Success {
		c.JSON(http.StatusOK, Response{
			Code:      http.StatusOK,
			Success:   false,
			Message:   result.Error,
			Data:      result,
			Timestamp: time.Now().UTC(),
		})
		return
	}
	respondOK(c, result)
}

// ExtractTextRequest is the manual extraction request body.
type ExtractTextRequest struct {
	Content    string `json:"content" binding:"required"`
	SourceName string `json:"source_name"`
}

// handleExtractText runs extraction over user-supplied text.
func (s *Server) handleExtractText(c *gin.Context) {
	var req ExtractTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.pipeline.ExtractText(c.Request.Context(), UserID(c), req.Content, req.SourceName)
	if err != nil {
		var transport *errors.ErrLLMTransport
		if stderrors.As(err, &transport) {
			s.metrics.RecordError("llm_transport", c.FullPath(), c.Request.Method)
			respondError(c, http.StatusBadGateway, transport.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	if !result.Success {
		c.JSON(http.StatusOK, Response{
			Code:      http.StatusOK,
			Success:   false,
			Message:   result.Error,
			Data:      result,
			Timestamp: time.Now().UTC(),
		})
		return
	}
	respondOK(c, result)
}

// handleListTasks lists the user's tasks, optionally filtered.
func (s *Server) handleListTasks(c *gin.Context) {
	filter := store.TaskFilter{}
	if status := c.Query("status"); status != "" {
		filter.Status = models.TaskStatus(status)
		if !filter.Status.IsValid() {
			respondError(c, http.StatusBadRequest, "unknown status: "+status)
			return
		}
	}
	if source := c.Query("source"); source != "" {
		filter.Source = models.TaskSource(source)
	}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			respondError(c, http.StatusBadRequest, "limit must be a non-negative number")
			return
		}
		filter.Limit = n
	}

	tasks, err := s.store.ListTasks(c.Request.Context(), UserID(c), filter)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	respondOK(c, gin.H{"tasks": tasks, "count": len(tasks)})
}

// UpdateTaskStatusRequest is the status transition request body.
type UpdateTaskStatusRequest struct {
	Status models.TaskStatus `json:"status" binding:"required"`
}

// handleUpdateTaskStatus moves a task through its lifecycle.
func (s *Server) handleUpdateTaskStatus(c *gin.Context) {
	var req UpdateTaskStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if !req.Status.IsValid() {
		respondError(c, http.StatusBadRequest, "unknown status: "+string(req.Status))
		return
	}

	id := c.Param("id")
	task, found, err := s.store.GetTask(c.Request.Context(), id)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if !found || task.UserID != UserID(c) {
		respondError(c, http.StatusNotFound, "task not found")
		return
	}

	if !task.Status.CanTransitionTo(req.Status) {
		respondError(c, http.StatusConflict,
			"cannot transition from "+string(task.Status)+" to "+string(req.Status))
		return
	}

	updated, err := s.store.UpdateTaskStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	respondOK(c, updated)
}
