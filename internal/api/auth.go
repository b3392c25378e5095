package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/operia/operia/internal/logging"
)

// Constants for header names
const (
	// DefaultAPIKeyHeader is the default header name for API key authentication
	DefaultAPIKeyHeader = "X-API-Key"
	// DefaultUserHeader is the default header carrying the acting user id
	DefaultUserHeader = "X-User-ID"
)

// APIKeyAuth creates a middleware that validates API keys from the request header.
// If no API keys are configured, authentication is bypassed.
// If authentication is enabled but no keys are provided, requests are rejected.
func APIKeyAuth(apiKeys []string, headerName string, logger *logging.Logger) gin.HandlerFunc {
	if headerName == "" {
		headerName = DefaultAPIKeyHeader
	}

	// If no API keys configured, skip authentication
	if len(apiKeys) == 0 {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		apiKey := c.GetHeader(headerName)

		if apiKey == "" {
			logger.WarnWithContext(c.Request.Context(), "API authentication failed: missing API key",
				"header_name", headerName,
				"client_ip", c.ClientIP(),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)
			abortEnvelope(c, http.StatusUnauthorized,
				"API key is required. Provide it in the '"+headerName+"' header")
			return
		}

		for _, key := range apiKeys {
			if apiKey == key {
				c.Set("authenticated", true)
				c.Next()
				return
			}
		}

		logger.WarnWithContext(c.Request.Context(), "API authentication failed: invalid API key",
			"header_name", headerName,
			"client_ip", c.ClientIP(),
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		)
		abortEnvelope(c, http.StatusUnauthorized, "Invalid API key")
	}
}

// RequireUser creates a middleware that extracts the acting user id from the
// configured header and rejects requests without one. Handlers read the id
// with UserID.
func RequireUser(headerName string) gin.HandlerFunc {
	if headerName == "" {
		headerName = DefaultUserHeader
	}

	return func(c *gin.Context) {
		userID := c.GetHeader(headerName)
		if userID == "" {
			abortEnvelope(c, http.StatusBadRequest,
				"User id is required. Provide it in the '"+headerName+"' header")
			return
		}
		c.Set("user_id", userID)
		c.Next()
	}
}

// UserID returns the acting user id set by RequireUser.
func UserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if s, ok := userID.(string); ok {
		return s
	}
	return ""
}
