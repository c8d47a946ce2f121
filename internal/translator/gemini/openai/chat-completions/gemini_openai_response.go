package chat_completions

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// doneSignal is the payload the gateway passes to the stream transform once
// the upstream stream is exhausted. It triggers finalization: synthetic
// closing deltas for still-open candidates and the optional usage frame.
var doneSignal = []byte("[DONE]")

const chunkTemplate = `{"id":"","object":"chat.completion.chunk","created":0,"model":"","choices":[]}`
const completionTemplate = `{"id":"","object":"chat.completion","created":0,"model":"","choices":[]}`

// fallbackFinishReason closes candidates the upstream never finished
// (truncated connection) and maps unknown upstream reason values.
const fallbackFinishReason = "stop"

// streamState carries one streaming response across transform invocations.
// It is owned by a single pipeline instance and threaded through the param
// slot; candidates are keyed by their upstream index, which may arrive out
// of order, repeat, or skip values.
type streamState struct {
	id           string
	created      int64
	model        string
	includeUsage bool

	// finished maps candidate index to its recorded finish reason; an empty
	// string marks a candidate that has been seen but not finished yet.
	finished  map[int]string
	roleSent  map[int]bool
	toolCalls map[int]int

	hasUsage         bool
	promptTokens     int64
	completionTokens int64
	totalTokens      int64
}

func newStreamState(modelName string, originalRequestRawJSON []byte) *streamState {
	return &streamState{
		id:           "chatcmpl-" + uuid.NewString(),
		created:      time.Now().Unix(),
		model:        modelName,
		includeUsage: gjson.GetBytes(originalRequestRawJSON, "stream_options.include_usage").Bool(),
		finished:     make(map[int]string),
		roleSent:     make(map[int]bool),
		toolCalls:    make(map[int]int),
	}
}

// ConvertGeminiResponseToOpenAI translates one Gemini streaming event into
// OpenAI chat-completion chunks. The first invocation assigns the completion
// id and captures the model name; every frame of the response, including the
// finalizer's, reuses them. Passing the [DONE] payload finalizes the stream.
func ConvertGeminiResponseToOpenAI(_ context.Context, modelName string, originalRequestRawJSON, _, rawJSON []byte, param *any) []string {
	if *param == nil {
		*param = newStreamState(modelName, originalRequestRawJSON)
	}
	state := (*param).(*streamState)

	payload := bytes.TrimSpace(rawJSON)
	if bytes.HasPrefix(payload, []byte("data:")) {
		payload = bytes.TrimSpace(payload[len("data:"):])
	}
	if len(payload) == 0 {
		return nil
	}
	if bytes.Equal(payload, doneSignal) {
		return state.finalize()
	}
	if payload[0] != '{' || !gjson.ValidBytes(payload) {
		log.WithField("payload", logTrim(payload)).Warn("gemini stream: skipping malformed event payload")
		return nil
	}

	root := gjson.ParseBytes(payload)
	// Some Gemini transports wrap each event under a "response" key.
	if wrapped := root.Get("response"); wrapped.IsObject() {
		root = wrapped
	}

	// Upstream reports cumulative totals; the latest report wins.
	if usage := root.Get("usageMetadata"); usage.Exists() {
		state.hasUsage = true
		state.promptTokens = usage.Get("promptTokenCount").Int()
		state.completionTokens = usage.Get("candidatesTokenCount").Int()
		state.totalTokens = usage.Get("totalTokenCount").Int()
	}

	candidates := root.Get("candidates").Array()
	if len(candidates) == 0 {
		return nil
	}

	chunk := state.newChunk()
	emitted := false
	for _, candidate := range candidates {
		choice, ok := state.candidateChoice(candidate)
		if !ok {
			continue
		}
		chunk, _ = sjson.SetRaw(chunk, "choices.-1", choice)
		emitted = true
	}
	if !emitted {
		return nil
	}
	return []string{chunk}
}

// candidateChoice builds one delta entry for a candidate present in the
// event, updating the stream state.
func (s *streamState) candidateChoice(candidate gjson.Result) (string, bool) {
	idx := int(candidate.Get("index").Int())
	text, functionCalls := candidateContent(candidate)
	upstreamReason := candidate.Get("finishReason").String()

	if prior := s.finished[idx]; prior != "" {
		// Candidate reopened after completion: never regress the recorded
		// reason; drop the late content.
		if text != "" || len(functionCalls) > 0 {
			log.WithFields(log.Fields{"candidate": idx, "finish_reason": prior}).
				Warn("gemini stream: content for already finished candidate, ignoring")
		}
		return "", false
	}
	if _, seen := s.finished[idx]; !seen {
		s.finished[idx] = ""
	}

	delta := `{}`
	if !s.roleSent[idx] {
		delta, _ = sjson.Set(delta, "role", "assistant")
		delta, _ = sjson.Set(delta, "content", text)
		s.roleSent[idx] = true
	} else if text != "" {
		delta, _ = sjson.Set(delta, "content", text)
	}
	for _, call := range functionCalls {
		entry, _ := sjson.Set(`{"type":"function"}`, "index", s.toolCalls[idx])
		entry, _ = sjson.Set(entry, "id", newToolCallID(call.Get("name").String()))
		entry, _ = sjson.Set(entry, "function.name", call.Get("name").String())
		args := call.Get("args").Raw
		if args == "" {
			args = "{}"
		}
		entry, _ = sjson.Set(entry, "function.arguments", args)
		delta, _ = sjson.SetRaw(delta, "tool_calls.-1", entry)
		s.toolCalls[idx]++
	}

	if delta == `{}` && upstreamReason == "" {
		// Nothing to say for this candidate yet: no content, no calls, no
		// finish reason. The candidate stays marked as seen.
		return "", false
	}

	choice, _ := sjson.Set(`{"index":0,"delta":{},"logprobs":null,"finish_reason":null}`, "index", idx)
	choice, _ = sjson.SetRaw(choice, "delta", delta)
	if upstreamReason != "" {
		mapped := mapFinishReason(upstreamReason)
		if mapped == "stop" && s.toolCalls[idx] > 0 {
			mapped = "tool_calls"
		}
		s.finished[idx] = mapped
		choice, _ = sjson.Set(choice, "finish_reason", mapped)
	}
	return choice, true
}

// finalize closes out the stream: one synthetic terminal delta per candidate
// the upstream left open, then the usage frame when the caller asked for it.
// The gateway writes the [DONE] sentinel after these frames; nothing may
// follow it.
func (s *streamState) finalize() []string {
	var open []int
	for idx, reason := range s.finished {
		if reason == "" {
			open = append(open, idx)
		}
	}
	sort.Ints(open)

	var frames []string
	for _, idx := range open {
		s.finished[idx] = fallbackFinishReason
		chunk := s.newChunk()
		choice, _ := sjson.Set(`{"index":0,"delta":{},"logprobs":null,"finish_reason":""}`, "index", idx)
		choice, _ = sjson.Set(choice, "finish_reason", fallbackFinishReason)
		chunk, _ = sjson.SetRaw(chunk, "choices.-1", choice)
		frames = append(frames, chunk)
	}

	if s.includeUsage && s.hasUsage {
		chunk := s.newChunk()
		chunk, _ = sjson.Set(chunk, "usage.prompt_tokens", s.promptTokens)
		chunk, _ = sjson.Set(chunk, "usage.completion_tokens", s.completionTokens)
		chunk, _ = sjson.Set(chunk, "usage.total_tokens", s.totalTokens)
		frames = append(frames, chunk)
	}
	return frames
}

func (s *streamState) newChunk() string {
	chunk, _ := sjson.Set(chunkTemplate, "id", s.id)
	chunk, _ = sjson.Set(chunk, "created", s.created)
	chunk, _ = sjson.Set(chunk, "model", s.model)
	return chunk
}

// ConvertGeminiResponseToOpenAINonStream converts one complete Gemini
// response body into one OpenAI chat-completion object. Each invocation is
// independent: candidates map by array position (the full final set arrives
// at once), a fresh id is assigned, and usage maps 1:1. Returns an empty
// string when the body is not valid JSON.
func ConvertGeminiResponseToOpenAINonStream(_ context.Context, modelName string, _, _, rawJSON []byte, _ *any) string {
	body := bytes.TrimSpace(rawJSON)
	if !gjson.ValidBytes(body) {
		log.WithField("payload", logTrim(body)).Warn("gemini response: invalid JSON body")
		return ""
	}
	root := gjson.ParseBytes(body)
	if wrapped := root.Get("response"); wrapped.IsObject() {
		root = wrapped
	}

	model := modelName
	if model == "" {
		model = root.Get("modelVersion").String()
	}
	out, _ := sjson.Set(completionTemplate, "id", "chatcmpl-"+uuid.NewString())
	out, _ = sjson.Set(out, "created", time.Now().Unix())
	out, _ = sjson.Set(out, "model", model)

	for i, candidate := range root.Get("candidates").Array() {
		text, functionCalls := candidateContent(candidate)

		message := `{"role":"assistant","content":null}`
		if text != "" || len(functionCalls) == 0 {
			message, _ = sjson.Set(message, "content", text)
		}
		for n, call := range functionCalls {
			entry, _ := sjson.Set(`{"type":"function"}`, "id", newToolCallID(call.Get("name").String()))
			entry, _ = sjson.Set(entry, "function.name", call.Get("name").String())
			args := call.Get("args").Raw
			if args == "" {
				args = "{}"
			}
			entry, _ = sjson.Set(entry, "function.arguments", args)
			message, _ = sjson.SetRaw(message, fmt.Sprintf("tool_calls.%d", n), entry)
		}

		finish := fallbackFinishReason
		if reason := candidate.Get("finishReason").String(); reason != "" {
			finish = mapFinishReason(reason)
		}
		if finish == "stop" && len(functionCalls) > 0 {
			finish = "tool_calls"
		}

		idx := i
		if v := candidate.Get("index"); v.Exists() {
			idx = int(v.Int())
		}
		choice, _ := sjson.Set(`{"index":0,"message":{},"logprobs":null,"finish_reason":""}`, "index", idx)
		choice, _ = sjson.SetRaw(choice, "message", message)
		choice, _ = sjson.Set(choice, "finish_reason", finish)
		out, _ = sjson.SetRaw(out, "choices.-1", choice)
	}

	if usage := root.Get("usageMetadata"); usage.Exists() {
		out, _ = sjson.Set(out, "usage.prompt_tokens", usage.Get("promptTokenCount").Int())
		out, _ = sjson.Set(out, "usage.completion_tokens", usage.Get("candidatesTokenCount").Int())
		out, _ = sjson.Set(out, "usage.total_tokens", usage.Get("totalTokenCount").Int())
	}
	return out
}

// candidateContent extracts the visible text and functionCall parts of one
// candidate. Thought parts never reach OpenAI clients.
func candidateContent(candidate gjson.Result) (string, []gjson.Result) {
	var text bytes.Buffer
	var functionCalls []gjson.Result
	for _, part := range candidate.Get("content.parts").Array() {
		if part.Get("thought").Bool() {
			continue
		}
		if t := part.Get("text"); t.Exists() {
			text.WriteString(t.String())
			continue
		}
		if fc := part.Get("functionCall"); fc.Exists() && fc.Get("name").String() != "" {
			functionCalls = append(functionCalls, fc)
		}
	}
	return text.String(), functionCalls
}

// mapFinishReason maps the Gemini finish reason vocabulary onto OpenAI's.
// Unknown values fall back to the generic reason rather than failing.
func mapFinishReason(reason string) string {
	switch reason {
	case "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII", "IMAGE_SAFETY", "LANGUAGE":
		return "content_filter"
	default:
		return fallbackFinishReason
	}
}

func newToolCallID(name string) string {
	id := uuid.NewString()
	return "call_" + name + "_" + id[:8]
}

func logTrim(payload []byte) string {
	const max = 256
	if len(payload) > max {
		return string(payload[:max]) + "..."
	}
	return string(payload)
}
