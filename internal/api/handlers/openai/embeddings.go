package openai

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/lingyicute/openai-gemini/internal/api/handlers"
)

// Embeddings handles POST /v1/embeddings. The OpenAI input (one string or an
// array of strings) is fanned out into a Gemini batchEmbedContents call and
// the vectors are re-expressed in the OpenAI list format.
func (h *OpenAIAPIHandler) Embeddings(c *gin.Context) {
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

	inputs := embeddingInputs(gjson.GetBytes(rawJSON, "input"))
	if len(inputs) == 0 {
		handlers.WriteErrorResponse(c, http.StatusBadRequest, "invalid_request_error", "input must be a string or an array of strings")
		return
	}

	upstreamReq := `{"requests":[]}`
	for _, text := range inputs {
		entry, _ := sjson.Set(`{}`, "model", "models/"+model)
		entry, _ = sjson.Set(entry, "content.parts.0.text", text)
		upstreamReq, _ = sjson.SetRaw(upstreamReq, "requests.-1", entry)
	}

	body, err := h.Upstream().BatchEmbedContents(c.Request.Context(), model, h.UpstreamKey(c), []byte(upstreamReq))
	if err != nil {
		handlers.WriteUpstreamError(c, err)
		return
	}

	out, _ := sjson.Set(`{"object":"list","data":[]}`, "model", model)
	for i, embedding := range gjson.GetBytes(body, "embeddings").Array() {
		entry, _ := sjson.Set(`{"object":"embedding"}`, "index", i)
		values := embedding.Get("values").Raw
		if values == "" {
			values = "[]"
		}
		entry, _ = sjson.SetRaw(entry, "embedding", values)
		out, _ = sjson.SetRaw(out, "data.-1", entry)
	}
	// The batch embedding response carries no token accounting.
	out, _ = sjson.SetRaw(out, "usage", `{"prompt_tokens":0,"total_tokens":0}`)
	c.Data(http.StatusOK, "application/json", []byte(out))
}

func embeddingInputs(input gjson.Result) []string {
	if input.Type == gjson.String {
		if input.String() == "" {
			return nil
		}
		return []string{input.String()}
	}
	if input.IsArray() {
		var texts []string
		for _, item := range input.Array() {
			if item.Type != gjson.String {
				return nil
			}
			texts = append(texts, item.String())
		}
		return texts
	}
	return nil
}
