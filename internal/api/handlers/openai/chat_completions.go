// Package openai implements the OpenAI-compatible endpoint handlers:
// chat completions (streaming and non-streaming), models, and embeddings.
package openai

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/net/context"

	"github.com/lingyicute/openai-gemini/internal/api/handlers"
	"github.com/lingyicute/openai-gemini/internal/registry"
	"github.com/lingyicute/openai-gemini/internal/sse"
	"github.com/lingyicute/openai-gemini/internal/translator"
	"github.com/lingyicute/openai-gemini/internal/util"
)

// OpenAIAPIHandler serves the OpenAI-compatible endpoints.
type OpenAIAPIHandler struct {
	*handlers.BaseAPIHandler
}

// NewOpenAIAPIHandler creates the OpenAI endpoint handler group.
func NewOpenAIAPIHandler(base *handlers.BaseAPIHandler) *OpenAIAPIHandler {
	return &OpenAIAPIHandler{BaseAPIHandler: base}
}

// ChatCompletions handles POST /v1/chat/completions. The request is
// translated to the Gemini schema, forwarded upstream, and the response is
// translated back, either as one JSON object or as an SSE chunk stream.
func (h *OpenAIAPIHandler) ChatCompletions(c *gin.Context) {
	rawJSON, err := c.GetRawData()
	if err != nil {
		handlers.WriteErrorResponse(c, http.StatusBadRequest, "invalid_request_error", "failed to read request body")
		return
	}
	if !gjson.ValidBytes(rawJSON) {
		handlers.WriteErrorResponse(c, http.StatusBadRequest, "invalid_request_error", "request body is not valid JSON")
		return
	}
	model := gjson.GetBytes(rawJSON, "model").String()
	if model == "" {
		handlers.WriteErrorResponse(c, http.StatusBadRequest, "invalid_request_error", "model is required")
		return
	}
	if !gjson.GetBytes(rawJSON, "messages").IsArray() {
		handlers.WriteErrorResponse(c, http.StatusBadRequest, "invalid_request_error", "messages must be an array")
		return
	}

	if h.Config().RequestLog {
		log.WithField("body", string(util.RedactSensitiveJSON(rawJSON))).Debug("chat completions request")
	}

	stream := gjson.GetBytes(rawJSON, "stream").Bool()
	translated := translator.TranslateRequest(translator.OpenAI, translator.Gemini, model, rawJSON, stream)
	apiKey := h.UpstreamKey(c)

	if stream {
		h.streamChatCompletions(c, model, apiKey, rawJSON, translated)
		return
	}

	body, err := h.Upstream().GenerateContent(c.Request.Context(), model, apiKey, translated)
	if err != nil {
		handlers.WriteUpstreamError(c, err)
		return
	}
	out := translator.TranslateNonStream(c.Request.Context(), translator.OpenAI, translator.Gemini, model, rawJSON, translated, body, nil)
	if out == "" {
		handlers.WriteErrorResponse(c, http.StatusBadGateway, "api_error", "upstream returned an unreadable response")
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(out))
}

// streamChatCompletions forwards the upstream SSE stream through the frame
// reassembler and the streaming translator. The finalizing [DONE] pass runs
// on every exit path that has already sent frames, so clients always see
// terminal finish reasons before the sentinel.
func (h *OpenAIAPIHandler) streamChatCompletions(c *gin.Context, model, apiKey string, rawJSON, translated []byte) {
	upstreamBody, err := h.Upstream().StreamGenerateContent(c.Request.Context(), model, apiKey, translated)
	if err != nil {
		handlers.WriteUpstreamError(c, err)
		return
	}
	defer func() { _ = upstreamBody.Close() }()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		handlers.WriteErrorResponse(c, http.StatusInternalServerError, "api_error", "streaming not supported")
		return
	}

	ctx := c.Request.Context()
	reassembler := sse.NewReassembler()
	var param any

	writeFrames := func(payload []byte) {
		for _, frame := range translator.TranslateStream(ctx, translator.OpenAI, translator.Gemini, model, rawJSON, translated, payload, &param) {
			handlers.WriteSSEData(c.Writer, []byte(frame))
		}
	}
	finalize := func() {
		writeFrames([]byte("[DONE]"))
		handlers.WriteSSEDone(c.Writer)
		flusher.Flush()
	}

	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, errRead := upstreamBody.Read(buf)
		if n > 0 {
			for _, payload := range reassembler.Feed(buf[:n]) {
				writeFrames(payload)
			}
			flusher.Flush()
		}
		if errRead != nil {
			if residue := reassembler.Flush(); len(residue) > 0 {
				writeFrames(residue)
			}
			if !errors.Is(errRead, io.EOF) {
				if !errors.Is(errRead, context.Canceled) {
					log.WithError(errRead).Warn("upstream stream read failed")
					handlers.WriteSSEError(c.Writer, handlers.MarshalErrorEnvelope("api_error", "upstream connection interrupted"))
				}
			}
			finalize()
			return
		}
	}
}

// Models handles GET /v1/models. The live upstream catalog is preferred;
// when the upstream is unreachable the static catalog is served instead so
// client SDK discovery keeps working.
func (h *OpenAIAPIHandler) Models(c *gin.Context) {
	out := `{"object":"list","data":[]}`

	if body, err := h.Upstream().ListModels(c.Request.Context(), h.UpstreamKey(c)); err == nil {
		models := gjson.GetBytes(body, "models").Array()
		if len(models) > 0 {
			for _, m := range models {
				id := strings.TrimPrefix(m.Get("name").String(), "models/")
				if id == "" {
					continue
				}
				entry, _ := sjson.Set(`{"object":"model","created":0}`, "id", id)
				entry, _ = sjson.Set(entry, "owned_by", "google")
				if known := registry.Lookup(id); known != nil {
					entry, _ = sjson.Set(entry, "created", known.Created)
				}
				out, _ = sjson.SetRaw(out, "data.-1", entry)
			}
			c.Data(http.StatusOK, "application/json", []byte(out))
			return
		}
	} else {
		log.WithError(err).Debug("upstream model list unavailable, serving static catalog")
	}

	for _, m := range registry.GeminiModels() {
		entry, _ := sjson.Set(`{"object":"model"}`, "id", m.ID)
		entry, _ = sjson.Set(entry, "created", m.Created)
		entry, _ = sjson.Set(entry, "owned_by", m.OwnedBy)
		out, _ = sjson.SetRaw(out, "data.-1", entry)
	}
	c.Data(http.StatusOK, "application/json", []byte(out))
}
