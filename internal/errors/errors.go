package errors

import "fmt"

// Config errors

type ErrConfigNotFound struct {
	Path string
}

func (e *ErrConfigNotFound) Error() string {
	return fmt.Sprintf("config file not found: %s", e.Path)
}

type ErrConfigParse struct {
	Err error
}

func (e *ErrConfigParse) Error() string {
	return fmt.Sprintf("failed to parse YAML: %v", e.Err)
}

func (e *ErrConfigParse) Unwrap() error {
	return e.Err
}

type ErrConfigValidation struct {
	Err error
}

func (e *ErrConfigValidation) Error() string {
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ErrConfigValidation) Unwrap() error {
	return e.Err
}

// Database errors

type ErrDatabaseOpen struct {
	Path string
	Err  error
}

func (e *ErrDatabaseOpen) Error() string {
	return fmt.Sprintf("failed to open database %s: %v", e.Path, e.Err)
}

func (e *ErrDatabaseOpen) Unwrap() error {
	return e.Err
}

type ErrDatabaseMigration struct {
	Version int
	Err     error
}

func (e *ErrDatabaseMigration) Error() string {
	return fmt.Sprintf("database migration %d failed: %v", e.Version, e.Err)
}

func (e *ErrDatabaseMigration) Unwrap() error {
	return e.Err
}

type ErrDatabaseQuery struct {
	Operation string
	Err       error
}

func (e *ErrDatabaseQuery) Error() string {
	return fmt.Sprintf("database query failed for operation %s: %v", e.Operation, e.Err)
}

func (e *ErrDatabaseQuery) Unwrap() error {
	return e.Err
}

// OAuth errors

// ErrInvalidState signals a state token that could not be decrypted or was
// already consumed. Treated as a CSRF/tamper signal, never retried.
type ErrInvalidState struct {
	Reason string
}

func (e *ErrInvalidState) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid oauth state token: %s", e.Reason)
	}
	return "invalid oauth state token"
}

// ErrInvalidCallback signals a provider callback with missing or malformed
// query parameters (code/state/error).
type ErrInvalidCallback struct {
	Provider string
	Reason   string
}

func (e *ErrInvalidCallback) Error() string {
	return fmt.Sprintf("invalid %s oauth callback: %s", e.Provider, e.Reason)
}

// ErrOAuthExchange signals a failed authorization-code exchange at the
// provider's token endpoint.
type ErrOAuthExchange struct {
	Provider string
	Status   int
	Err      error
}

func (e *ErrOAuthExchange) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s token exchange failed with status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s token exchange failed: %v", e.Provider, e.Err)
}

func (e *ErrOAuthExchange) Unwrap() error {
	return e.Err
}

// ErrInstallationToken signals a failed installation-token mint. Recovered
// locally by falling back to the stored user token, never surfaced to callers.
type ErrInstallationToken struct {
	InstallationID string
	Err            error
}

func (e *ErrInstallationToken) Error() string {
	return fmt.Sprintf("failed to mint installation token for %s: %v", e.InstallationID, e.Err)
}

func (e *ErrInstallationToken) Unwrap() error {
	return e.Err
}

// ErrIntegrationNotFound signals a sync/status/fetch request for a provider
// the user never connected.
type ErrIntegrationNotFound struct {
	UserID   string
	Provider string
}

func (e *ErrIntegrationNotFound) Error() string {
	return fmt.Sprintf("no %s integration found for user %s", e.Provider, e.UserID)
}

// Extraction errors

// ErrLLMTransport signals a timeout or non-2xx from the model endpoint.
// Propagated to the caller.
type ErrLLMTransport struct {
	Status int
	Err    error
}

func (e *ErrLLMTransport) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("model endpoint returned status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("model endpoint unreachable: %v", e.Err)
}

func (e *ErrLLMTransport) Unwrap() error {
	return e.Err
}

// ErrLLMParse signals a malformed model response body. Recovered into a
// success:false extraction result, never thrown past the engine.
type ErrLLMParse struct {
	Err error
}

func (e *ErrLLMParse) Error() string {
	return fmt.Sprintf("failed to parse model response: %v", e.Err)
}

func (e *ErrLLMParse) Unwrap() error {
	return e.Err
}

// Server errors

type ErrServerStart struct {
	Addr string
	Err  error
}

func (e *ErrServerStart) Error() string {
	return fmt.Sprintf("failed to start server on %s: %v", e.Addr, e.Err)
}

func (e *ErrServerStart) Unwrap() error {
	return e.Err
}

type ErrServerShutdown struct {
	Err error
}

func (e *ErrServerShutdown) Error() string {
	return fmt.Sprintf("server shutdown failed: %v", e.Err)
}

func (e *ErrServerShutdown) Unwrap() error {
	return e.Err
}

// Filesystem errors

type ErrDirectoryCreate struct {
	Path string
	Err  error
}

func (e *ErrDirectoryCreate) Error() string {
	return fmt.Sprintf("failed to create directory %s: %v", e.Path, e.Err)
}

func (e *ErrDirectoryCreate) Unwrap() error {
	return e.Err
}

type ErrFileRead struct {
	Path string
	Err  error
}

func (e *ErrFileRead) Error() string {
	return fmt.Sprintf("failed to read file %s: %v", e.Path, e.Err)
}

func (e *ErrFileRead) Unwrap() error {
	return e.Err
}
