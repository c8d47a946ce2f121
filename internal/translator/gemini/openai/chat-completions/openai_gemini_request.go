// Package chat_completions translates between the OpenAI chat-completions
// schema and the Gemini generateContent schema. Requests flow OpenAI→Gemini;
// responses (streaming and non-streaming) flow Gemini→OpenAI.
package chat_completions

import (
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Generation is refused outright for none of the safety categories; the
// caller's own provider-side settings decide what to block.
const geminiSafetySettings = `[` +
	`{"category":"HARM_CATEGORY_HATE_SPEECH","threshold":"BLOCK_NONE"},` +
	`{"category":"HARM_CATEGORY_SEXUALLY_EXPLICIT","threshold":"BLOCK_NONE"},` +
	`{"category":"HARM_CATEGORY_DANGEROUS_CONTENT","threshold":"BLOCK_NONE"},` +
	`{"category":"HARM_CATEGORY_HARASSMENT","threshold":"BLOCK_NONE"},` +
	`{"category":"HARM_CATEGORY_CIVIC_INTEGRITY","threshold":"BLOCK_NONE"}]`

// ConvertOpenAIRequestToGemini builds a Gemini generateContent request body
// from an OpenAI chat-completions request body. System and developer
// messages become the systemInstruction, assistant turns map to the model
// role, tool results map to functionResponse parts, and sampling parameters
// move into generationConfig under their Gemini names.
func ConvertOpenAIRequestToGemini(_ string, rawJSON []byte, _ bool) []byte {
	root := gjson.ParseBytes(rawJSON)
	out := `{"contents":[]}`

	var systemTexts []string
	// Assistant tool_calls carry the id→name association that later tool
	// result messages reference; Gemini wants the function name back.
	toolCallNames := map[string]string{}

	for _, msg := range root.Get("messages").Array() {
		role := msg.Get("role").String()
		switch role {
		case "system", "developer":
			if text := messageText(msg.Get("content")); text != "" {
				systemTexts = append(systemTexts, text)
			}
		case "assistant":
			content := `{"role":"model","parts":[]}`
			hasParts := false
			if text := messageText(msg.Get("content")); text != "" {
				content, _ = sjson.Set(content, "parts.-1.text", text)
				hasParts = true
			}
			for _, call := range msg.Get("tool_calls").Array() {
				name := call.Get("function.name").String()
				if name == "" {
					continue
				}
				if id := call.Get("id").String(); id != "" {
					toolCallNames[id] = name
				}
				part, _ := sjson.Set(`{"functionCall":{}}`, "functionCall.name", name)
				args := call.Get("function.arguments").String()
				if !gjson.Valid(args) {
					args = "{}"
				}
				part, _ = sjson.SetRaw(part, "functionCall.args", args)
				content, _ = sjson.SetRaw(content, "parts.-1", part)
				hasParts = true
			}
			if hasParts {
				out, _ = sjson.SetRaw(out, "contents.-1", content)
			}
		case "tool":
			name := toolCallNames[msg.Get("tool_call_id").String()]
			if name == "" {
				name = msg.Get("name").String()
			}
			part, _ := sjson.Set(`{"functionResponse":{}}`, "functionResponse.name", name)
			result := messageText(msg.Get("content"))
			if gjson.Valid(result) && gjson.Parse(result).IsObject() {
				part, _ = sjson.SetRaw(part, "functionResponse.response", result)
			} else {
				part, _ = sjson.Set(part, "functionResponse.response.result", result)
			}
			content, _ := sjson.SetRaw(`{"role":"user","parts":[]}`, "parts.-1", part)
			out, _ = sjson.SetRaw(out, "contents.-1", content)
		default: // user
			content := `{"role":"user","parts":[]}`
			hasParts := false
			value := msg.Get("content")
			if value.Type == gjson.String {
				content, _ = sjson.Set(content, "parts.-1.text", value.String())
				hasParts = value.String() != ""
			} else if value.IsArray() {
				for _, item := range value.Array() {
					if part, ok := userContentPart(item); ok {
						content, _ = sjson.SetRaw(content, "parts.-1", part)
						hasParts = true
					}
				}
			}
			if hasParts {
				out, _ = sjson.SetRaw(out, "contents.-1", content)
			}
		}
	}

	if len(systemTexts) > 0 {
		out, _ = sjson.Set(out, "systemInstruction.parts.0.text", strings.Join(systemTexts, "\n\n"))
	}

	out = applyGenerationConfig(out, root)
	out = applyTools(out, root)
	out, _ = sjson.SetRaw(out, "safetySettings", geminiSafetySettings)

	return []byte(out)
}

// userContentPart maps one OpenAI content part to a Gemini part. Data URLs
// become inlineData; remote URLs are handed to Gemini as fileData since the
// gateway never fetches media itself.
func userContentPart(item gjson.Result) (string, bool) {
	switch item.Get("type").String() {
	case "text":
		part, _ := sjson.Set(`{}`, "text", item.Get("text").String())
		return part, true
	case "image_url":
		url := item.Get("image_url.url").String()
		if strings.HasPrefix(url, "data:") {
			meta, data, ok := strings.Cut(strings.TrimPrefix(url, "data:"), ",")
			if !ok {
				return "", false
			}
			mimeType, _, _ := strings.Cut(meta, ";")
			part, _ := sjson.Set(`{"inlineData":{}}`, "inlineData.mimeType", mimeType)
			part, _ = sjson.Set(part, "inlineData.data", data)
			return part, true
		}
		if url != "" {
			part, _ := sjson.Set(`{"fileData":{}}`, "fileData.fileUri", url)
			return part, true
		}
	}
	return "", false
}

func applyGenerationConfig(out string, root gjson.Result) string {
	if v := root.Get("temperature"); v.Exists() {
		out, _ = sjson.Set(out, "generationConfig.temperature", v.Float())
	}
	if v := root.Get("top_p"); v.Exists() {
		out, _ = sjson.Set(out, "generationConfig.topP", v.Float())
	}
	maxTokens := root.Get("max_completion_tokens")
	if !maxTokens.Exists() {
		maxTokens = root.Get("max_tokens")
	}
	if maxTokens.Exists() {
		out, _ = sjson.Set(out, "generationConfig.maxOutputTokens", maxTokens.Int())
	}
	if v := root.Get("n"); v.Exists() && v.Int() > 1 {
		out, _ = sjson.Set(out, "generationConfig.candidateCount", v.Int())
	}
	if v := root.Get("presence_penalty"); v.Exists() {
		out, _ = sjson.Set(out, "generationConfig.presencePenalty", v.Float())
	}
	if v := root.Get("frequency_penalty"); v.Exists() {
		out, _ = sjson.Set(out, "generationConfig.frequencyPenalty", v.Float())
	}
	if v := root.Get("seed"); v.Exists() {
		out, _ = sjson.Set(out, "generationConfig.seed", v.Int())
	}
	if stop := root.Get("stop"); stop.Exists() {
		if stop.Type == gjson.String {
			out, _ = sjson.Set(out, "generationConfig.stopSequences.0", stop.String())
		} else if stop.IsArray() {
			for _, s := range stop.Array() {
				out, _ = sjson.Set(out, "generationConfig.stopSequences.-1", s.String())
			}
		}
	}
	if root.Get("response_format.type").String() == "json_object" {
		out, _ = sjson.Set(out, "generationConfig.responseMimeType", "application/json")
	}
	return out
}

func applyTools(out string, root gjson.Result) string {
	tools := root.Get("tools").Array()
	if len(tools) > 0 {
		declared := false
		for _, tool := range tools {
			fn := tool.Get("function")
			if tool.Get("type").String() != "function" || !fn.Exists() {
				continue
			}
			decl, _ := sjson.Set(`{}`, "name", fn.Get("name").String())
			if desc := fn.Get("description").String(); desc != "" {
				decl, _ = sjson.Set(decl, "description", desc)
			}
			if params := fn.Get("parameters"); params.Exists() {
				decl, _ = sjson.SetRaw(decl, "parameters", params.Raw)
			}
			out, _ = sjson.SetRaw(out, "tools.0.functionDeclarations.-1", decl)
			declared = true
		}
		if !declared {
			out, _ = sjson.Delete(out, "tools")
		}
	}

	choice := root.Get("tool_choice")
	switch {
	case !choice.Exists():
	case choice.Type == gjson.String:
		switch choice.String() {
		case "none":
			out, _ = sjson.Set(out, "toolConfig.functionCallingConfig.mode", "NONE")
		case "required":
			out, _ = sjson.Set(out, "toolConfig.functionCallingConfig.mode", "ANY")
		default:
			out, _ = sjson.Set(out, "toolConfig.functionCallingConfig.mode", "AUTO")
		}
	case choice.IsObject():
		out, _ = sjson.Set(out, "toolConfig.functionCallingConfig.mode", "ANY")
		if name := choice.Get("function.name").String(); name != "" {
			out, _ = sjson.Set(out, "toolConfig.functionCallingConfig.allowedFunctionNames.0", name)
		}
	}
	return out
}

// messageText flattens an OpenAI message content value (string or content
// part array) into plain text.
func messageText(value gjson.Result) string {
	if value.Type == gjson.String {
		return value.String()
	}
	if value.IsArray() {
		var sb strings.Builder
		for _, item := range value.Array() {
			if item.Get("type").String() == "text" {
				sb.WriteString(item.Get("text").String())
			}
		}
		return sb.String()
	}
	return ""
}
