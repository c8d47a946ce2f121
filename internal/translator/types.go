// Package translator provides the schema translation layer of the gateway.
// Request payloads are converted on the way to the upstream provider and
// response payloads (streaming and non-streaming) are converted back into
// the schema the caller speaks.
package translator

import "context"

// Format identifies an API wire schema.
type Format string

const (
	// OpenAI is the OpenAI chat-completions schema spoken by inbound clients.
	OpenAI Format = "openai"
	// Gemini is the Google generative-language schema spoken upstream.
	Gemini Format = "gemini"
)

// String returns the schema name.
func (f Format) String() string { return string(f) }

// RequestTransform converts a request payload from one schema to another.
type RequestTransform func(model string, rawJSON []byte, stream bool) []byte

// ResponseStreamTransform converts one upstream streaming event into zero or
// more outbound frames. param carries per-stream state across invocations;
// it is initialized on the first call and must be threaded through every
// subsequent call for the same response, including the finalizing call with
// the [DONE] payload.
type ResponseStreamTransform func(ctx context.Context, model string, originalRequestRawJSON, requestRawJSON, rawJSON []byte, param *any) []string

// ResponseNonStreamTransform converts one complete upstream response body.
type ResponseNonStreamTransform func(ctx context.Context, model string, originalRequestRawJSON, requestRawJSON, rawJSON []byte, param *any) string

// ResponseTransform groups streaming and non-streaming response transforms
// for one schema pair.
type ResponseTransform struct {
	Stream    ResponseStreamTransform
	NonStream ResponseNonStreamTransform
}
