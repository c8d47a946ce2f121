// Package gemini implements the HTTP client for the upstream Gemini API.
// It speaks the generative-language REST surface: generateContent for
// complete responses, streamGenerateContent with alt=sse for streaming, and
// batchEmbedContents for embeddings.
package gemini

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// StatusError carries the upstream HTTP status alongside the response body
// so handlers can relay the upstream's own error payload.
type StatusError struct {
	Code int
	Body []byte
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Code, string(e.Body))
}

// StatusCode returns the upstream HTTP status code.
func (e *StatusError) StatusCode() int { return e.Code }

// Client calls the Gemini API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a client for the given endpoint. apiKey is the
// fallback credential used when a request does not carry its own.
// timeoutSeconds bounds non-streaming calls; streaming requests are bounded
// by their context instead.
func NewClient(baseURL, apiKey string, timeoutSeconds int) *Client {
	var timeout time.Duration
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GenerateContent performs a non-streaming generation call and returns the
// raw response body.
func (c *Client) GenerateContent(ctx context.Context, model, apiKey string, body []byte) ([]byte, error) {
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, model)
	return c.post(ctx, url, apiKey, body)
}

// StreamGenerateContent performs a streaming generation call. The returned
// reader yields the upstream SSE byte stream and must be closed by the
// caller.
func (c *Client) StreamGenerateContent(ctx context.Context, model, apiKey string, body []byte) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse", c.baseURL, model)
	req, err := c.newRequest(ctx, url, apiKey, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The shared client's timeout would sever long streams; use a dedicated
	// client bounded only by the request context.
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, &StatusError{Code: resp.StatusCode, Body: errBody}
	}
	return resp.Body, nil
}

// BatchEmbedContents performs a batch embedding call and returns the raw
// response body.
func (c *Client) BatchEmbedContents(ctx context.Context, model, apiKey string, body []byte) ([]byte, error) {
	url := fmt.Sprintf("%s/v1beta/models/%s:batchEmbedContents", c.baseURL, model)
	return c.post(ctx, url, apiKey, body)
}

// ListModels fetches the upstream model catalog and returns the raw
// response body.
func (c *Client) ListModels(ctx context.Context, apiKey string) ([]byte, error) {
	url := fmt.Sprintf("%s/v1beta/models", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	key := apiKey
	if key == "" {
		key = c.apiKey
	}
	req.Header.Set("x-goog-api-key", key)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: respBody}
	}
	return respBody, nil
}

func (c *Client) newRequest(ctx context.Context, url, apiKey string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	key := apiKey
	if key == "" {
		key = c.apiKey
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", key)
	return req, nil
}

func (c *Client) post(ctx context.Context, url, apiKey string, body []byte) ([]byte, error) {
	req, err := c.newRequest(ctx, url, apiKey, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Debug("close upstream response body")
		}
	}()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: respBody}
	}
	return respBody, nil
}
