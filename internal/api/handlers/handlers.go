// Package handlers provides core API handler functionality for the gateway.
// It includes the shared error envelope, the base handler carrying the
// upstream client and configuration, and SSE write helpers shared across
// endpoint handlers.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/lingyicute/openai-gemini/internal/config"
	"github.com/lingyicute/openai-gemini/internal/upstream/gemini"
)

// ErrorResponse represents a standard error response format for the API.
// It contains a single ErrorDetail field.
type ErrorResponse struct {
	// Error contains detailed information about the error that occurred.
	Error ErrorDetail `json:"error"`
}

// ErrorDetail provides specific information about an error that occurred.
type ErrorDetail struct {
	// Message is a human-readable message providing more details about the error.
	Message string `json:"message"`

	// Type is the category of error that occurred (e.g., "invalid_request_error").
	Type string `json:"type"`

	// Code is a short code identifying the error, if applicable.
	Code string `json:"code,omitempty"`
}

// BaseAPIHandler carries the shared dependencies of the endpoint handlers.
// Config and upstream client are replaced together on hot reload while
// request goroutines read them, so both sit behind one mutex.
type BaseAPIHandler struct {
	mu       sync.RWMutex
	cfg      *config.Config
	upstream *gemini.Client
}

// NewBaseAPIHandler creates the shared handler state.
func NewBaseAPIHandler(cfg *config.Config, upstream *gemini.Client) *BaseAPIHandler {
	return &BaseAPIHandler{cfg: cfg, upstream: upstream}
}

// Config returns the current configuration snapshot.
func (h *BaseAPIHandler) Config() *config.Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Upstream returns the current Gemini client.
func (h *BaseAPIHandler) Upstream() *gemini.Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.upstream
}

// UpdateConfig swaps in a reloaded configuration and rebuilds the upstream
// client so edited credentials and endpoints take effect without a restart.
// In-flight requests keep the client they already resolved.
func (h *BaseAPIHandler) UpdateConfig(cfg *config.Config) {
	upstream := gemini.NewClient(cfg.Gemini.BaseURL, cfg.Gemini.APIKey, cfg.Gemini.TimeoutSeconds)
	h.mu.Lock()
	h.cfg = cfg
	h.upstream = upstream
	h.mu.Unlock()
}

// RequestAPIKey extracts the caller's credential from the request.
// Authorization: Bearer and x-goog-api-key are accepted.
func RequestAPIKey(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(c.GetHeader("x-goog-api-key"))
}

// UpstreamKey resolves the credential forwarded upstream. When the caller's
// key is one of the gateway's own client keys it authenticates the gateway,
// not the upstream, so the configured upstream key applies instead. An empty
// return also selects the configured key inside the client.
func (h *BaseAPIHandler) UpstreamKey(c *gin.Context) string {
	key := RequestAPIKey(c)
	for _, gatewayKey := range h.Config().APIKeys {
		if gatewayKey != "" && key == gatewayKey {
			return ""
		}
	}
	return key
}

// WriteErrorResponse writes an OpenAI-style error envelope with the given
// status.
func WriteErrorResponse(c *gin.Context, status int, errType, message string) {
	c.JSON(status, ErrorResponse{Error: ErrorDetail{Message: message, Type: errType}})
}

// WriteUpstreamError relays an upstream failure to the client. StatusError
// bodies are re-expressed in the OpenAI envelope, keeping the upstream's own
// message when one is present; other errors map to 502.
func WriteUpstreamError(c *gin.Context, err error) {
	if statusErr, ok := err.(*gemini.StatusError); ok {
		message := gjson.GetBytes(statusErr.Body, "error.message").String()
		if message == "" {
			message = strings.TrimSpace(string(statusErr.Body))
		}
		if message == "" {
			message = http.StatusText(statusErr.StatusCode())
		}
		c.JSON(statusErr.StatusCode(), ErrorResponse{Error: ErrorDetail{
			Message: message,
			Type:    errorTypeForStatus(statusErr.StatusCode()),
		}})
		return
	}
	WriteErrorResponse(c, http.StatusBadGateway, "api_error", err.Error())
}

func errorTypeForStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "authentication_error"
	case status == http.StatusTooManyRequests:
		return "rate_limit_error"
	case status >= http.StatusInternalServerError:
		return "api_error"
	default:
		return "invalid_request_error"
	}
}

// MarshalErrorEnvelope renders the error envelope as a JSON payload for SSE
// error events.
func MarshalErrorEnvelope(errType, message string) []byte {
	payload, _ := json.Marshal(ErrorResponse{Error: ErrorDetail{Message: message, Type: errType}})
	return payload
}
