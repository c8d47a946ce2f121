package chat_completions

import (
	"context"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func runStream(t *testing.T, requestJSON string, events ...string) []string {
	t.Helper()
	var param any
	var frames []string
	for _, event := range events {
		frames = append(frames, ConvertGeminiResponseToOpenAI(
			context.Background(), "gemini-2.0-flash",
			[]byte(requestJSON), nil, []byte(event), &param)...)
	}
	frames = append(frames, ConvertGeminiResponseToOpenAI(
		context.Background(), "gemini-2.0-flash",
		[]byte(requestJSON), nil, []byte("[DONE]"), &param)...)
	return frames
}

func TestStreamTextDeltasAndStop(t *testing.T) {
	frames := runStream(t, `{}`,
		`{"candidates":[{"index":0,"content":{"parts":[{"text":"Hel"}]}}]}`,
		`{"candidates":[{"index":0,"content":{"parts":[{"text":"lo"}]},"finishReason":"STOP"}]}`,
	)
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d: %v", len(frames), frames)
	}

	first := gjson.Parse(frames[0])
	if got := first.Get("object").String(); got != "chat.completion.chunk" {
		t.Fatalf("object = %q", got)
	}
	if got := first.Get("choices.0.delta.role").String(); got != "assistant" {
		t.Fatalf("first delta must carry role, got %q", got)
	}
	if got := first.Get("choices.0.delta.content").String(); got != "Hel" {
		t.Fatalf("first delta content = %q", got)
	}
	if !first.Get("choices.0.finish_reason").Exists() || first.Get("choices.0.finish_reason").Type != gjson.Null {
		t.Fatal("first frame finish_reason must be null")
	}

	second := gjson.Parse(frames[1])
	if second.Get("choices.0.delta.role").Exists() {
		t.Fatal("role must be emitted only once per candidate")
	}
	if got := second.Get("choices.0.delta.content").String(); got != "lo" {
		t.Fatalf("second delta content = %q", got)
	}
	if got := second.Get("choices.0.finish_reason").String(); got != "stop" {
		t.Fatalf("finish_reason = %q", got)
	}

	if first.Get("id").String() != second.Get("id").String() {
		t.Fatal("completion id must be stable across frames")
	}
	if !strings.HasPrefix(first.Get("id").String(), "chatcmpl-") {
		t.Fatalf("id = %q", first.Get("id").String())
	}
	if first.Get("created").Int() != second.Get("created").Int() {
		t.Fatal("created must be stable across frames")
	}
	if got := first.Get("model").String(); got != "gemini-2.0-flash" {
		t.Fatalf("model = %q", got)
	}
}

func TestStreamTruncationEmitsSyntheticClose(t *testing.T) {
	frames := runStream(t, `{}`,
		`{"candidates":[{"index":0,"content":{"parts":[{"text":"partial"}]}}]}`,
	)
	if len(frames) != 2 {
		t.Fatalf("expected content frame plus synthetic close, got %d: %v", len(frames), frames)
	}
	closing := gjson.Parse(frames[1])
	if got := closing.Get("choices.0.finish_reason").String(); got != "stop" {
		t.Fatalf("synthetic close finish_reason = %q", got)
	}
	if got := closing.Get("choices.0.delta").Raw; got != "{}" {
		t.Fatalf("synthetic close delta must be empty, got %s", got)
	}
	if closing.Get("id").String() != gjson.Parse(frames[0]).Get("id").String() {
		t.Fatal("synthetic close must reuse the stream id")
	}
}

func TestStreamFinishReasonMapping(t *testing.T) {
	cases := map[string]string{
		"STOP":               "stop",
		"MAX_TOKENS":         "length",
		"SAFETY":             "content_filter",
		"RECITATION":         "content_filter",
		"BLOCKLIST":          "content_filter",
		"PROHIBITED_CONTENT": "content_filter",
		"SPII":               "content_filter",
		"SOME_FUTURE_REASON": "stop",
	}
	for upstream, want := range cases {
		frames := runStream(t, `{}`,
			`{"candidates":[{"index":0,"content":{"parts":[{"text":"x"}]},"finishReason":"`+upstream+`"}]}`,
		)
		if len(frames) != 1 {
			t.Fatalf("%s: expected single frame, got %v", upstream, frames)
		}
		if got := gjson.Parse(frames[0]).Get("choices.0.finish_reason").String(); got != want {
			t.Fatalf("%s: finish_reason = %q, want %q", upstream, got, want)
		}
	}
}

func TestStreamUsageFrameWhenRequested(t *testing.T) {
	frames := runStream(t, `{"stream_options":{"include_usage":true}}`,
		`{"candidates":[{"index":0,"content":{"parts":[{"text":"hi"}]}}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":1,"totalTokenCount":4}}`,
		`{"candidates":[{"index":0,"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":2,"totalTokenCount":5}}`,
	)
	last := gjson.Parse(frames[len(frames)-1])
	if len(last.Get("choices").Array()) != 0 {
		t.Fatalf("usage frame must carry empty choices, got %s", last.Get("choices").Raw)
	}
	if got := last.Get("usage.prompt_tokens").Int(); got != 3 {
		t.Fatalf("prompt_tokens = %d", got)
	}
	if got := last.Get("usage.completion_tokens").Int(); got != 2 {
		t.Fatalf("latest usage report must win, completion_tokens = %d", got)
	}
	if got := last.Get("usage.total_tokens").Int(); got != 5 {
		t.Fatalf("total_tokens = %d", got)
	}

	for _, frame := range frames[:len(frames)-1] {
		if gjson.Parse(frame).Get("usage").Exists() {
			t.Fatalf("usage must only appear on the trailing frame: %s", frame)
		}
	}
}

func TestStreamNoUsageFrameByDefault(t *testing.T) {
	frames := runStream(t, `{}`,
		`{"candidates":[{"index":0,"content":{"parts":[{"text":"hi"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":1,"totalTokenCount":4}}`,
	)
	for _, frame := range frames {
		if gjson.Parse(frame).Get("usage").Exists() {
			t.Fatalf("usage frame emitted without stream_options.include_usage: %s", frame)
		}
	}
}

func TestStreamReopenedCandidateIgnored(t *testing.T) {
	frames := runStream(t, `{}`,
		`{"candidates":[{"index":0,"content":{"parts":[{"text":"done"}]},"finishReason":"MAX_TOKENS"}]}`,
		`{"candidates":[{"index":0,"content":{"parts":[{"text":"late"}]}}]}`,
	)
	if len(frames) != 1 {
		t.Fatalf("late content after finish must be dropped, got %v", frames)
	}
	if got := gjson.Parse(frames[0]).Get("choices.0.finish_reason").String(); got != "length" {
		t.Fatalf("recorded finish_reason must not regress, got %q", got)
	}
}

func TestStreamSparseAndInterleavedCandidates(t *testing.T) {
	frames := runStream(t, `{}`,
		`{"candidates":[{"index":2,"content":{"parts":[{"text":"C"}]}},{"index":0,"content":{"parts":[{"text":"A"}]}}]}`,
		`{"candidates":[{"index":0,"content":{"parts":[{"text":"a"}]},"finishReason":"STOP"}]}`,
	)
	first := gjson.Parse(frames[0])
	choices := first.Get("choices").Array()
	if len(choices) != 2 {
		t.Fatalf("expected both candidate deltas in one frame, got %s", first.Get("choices").Raw)
	}
	if choices[0].Get("index").Int() != 2 || choices[1].Get("index").Int() != 0 {
		t.Fatalf("choice indexes must mirror upstream, got %s", first.Get("choices").Raw)
	}
	for _, c := range choices {
		if c.Get("delta.role").String() != "assistant" {
			t.Fatalf("each candidate gets its own opening role, got %s", c.Raw)
		}
	}

	// Candidate 2 never finished upstream; the finalizer must close it.
	closing := gjson.Parse(frames[len(frames)-1])
	if closing.Get("choices.0.index").Int() != 2 || closing.Get("choices.0.finish_reason").String() != "stop" {
		t.Fatalf("expected synthetic close for candidate 2, got %s", closing.Raw)
	}
}

func TestStreamToolCallDeltas(t *testing.T) {
	frames := runStream(t, `{}`,
		`{"candidates":[{"index":0,"content":{"parts":[{"functionCall":{"name":"get_weather","args":{"city":"Oslo"}}}]},"finishReason":"STOP"}]}`,
	)
	frame := gjson.Parse(frames[0])
	call := frame.Get("choices.0.delta.tool_calls.0")
	if call.Get("index").Int() != 0 || call.Get("type").String() != "function" {
		t.Fatalf("tool call shape wrong: %s", call.Raw)
	}
	if got := call.Get("function.name").String(); got != "get_weather" {
		t.Fatalf("function name = %q", got)
	}
	args := call.Get("function.arguments").String()
	if gjson.Get(args, "city").String() != "Oslo" {
		t.Fatalf("arguments must be a JSON string, got %q", args)
	}
	if !strings.HasPrefix(call.Get("id").String(), "call_") {
		t.Fatalf("tool call id = %q", call.Get("id").String())
	}
	if got := frame.Get("choices.0.finish_reason").String(); got != "tool_calls" {
		t.Fatalf("finish_reason with tool calls = %q", got)
	}
}

func TestStreamSkipsMalformedPayloads(t *testing.T) {
	frames := runStream(t, `{}`,
		`{"candidates":[{"index":0,"content":{"parts":[{"text":"ok"}]}}]}`,
		`{"candidates":[{"index":0,`,
		`not json at all`,
		`{"candidates":[{"index":0,"finishReason":"STOP"}]}`,
	)
	if len(frames) != 2 {
		t.Fatalf("malformed payloads must be skipped without disturbing the stream, got %v", frames)
	}
	if got := gjson.Parse(frames[1]).Get("choices.0.finish_reason").String(); got != "stop" {
		t.Fatalf("finish_reason = %q", got)
	}
}

func TestStreamUnwrapsResponseEnvelope(t *testing.T) {
	frames := runStream(t, `{}`,
		`{"response":{"candidates":[{"index":0,"content":{"parts":[{"text":"wrapped"}]},"finishReason":"STOP"}]}}`,
	)
	if len(frames) != 1 {
		t.Fatalf("expected one frame, got %v", frames)
	}
	if got := gjson.Parse(frames[0]).Get("choices.0.delta.content").String(); got != "wrapped" {
		t.Fatalf("content = %q", got)
	}
}

func TestStreamSkipsThoughtParts(t *testing.T) {
	frames := runStream(t, `{}`,
		`{"candidates":[{"index":0,"content":{"parts":[{"text":"internal","thought":true},{"text":"visible"}]},"finishReason":"STOP"}]}`,
	)
	if got := gjson.Parse(frames[0]).Get("choices.0.delta.content").String(); got != "visible" {
		t.Fatalf("thought parts must not leak, content = %q", got)
	}
}

func TestStreamSkipsNoOpCandidateEvents(t *testing.T) {
	frames := runStream(t, `{}`,
		`{"candidates":[{"index":0,"content":{"parts":[{"text":"hi"}]}}]}`,
		`{"candidates":[{"index":0,"content":{"parts":[]}}]}`,
		`{"candidates":[{"index":0,"content":{"parts":[{"text":"internal","thought":true}]}}]}`,
		`{"candidates":[{"index":0,"content":{"parts":[{"text":"!"}]},"finishReason":"STOP"}]}`,
	)
	if len(frames) != 2 {
		t.Fatalf("events with nothing to deliver must not produce frames, got %d: %v", len(frames), frames)
	}
	for _, frame := range frames {
		choice := gjson.Parse(frame).Get("choices.0")
		if choice.Get("delta").Raw == "{}" && choice.Get("finish_reason").Type == gjson.Null {
			t.Fatalf("empty delta without finish reason emitted: %s", frame)
		}
	}
}

func TestStreamMatchesNonStreamContent(t *testing.T) {
	// The same upstream answer, once as split streaming events and once as a
	// complete body, must yield the same text and finish reason per candidate.
	frames := runStream(t, `{}`,
		`{"candidates":[{"index":0,"content":{"parts":[{"text":"The answer "}]}},{"index":1,"content":{"parts":[{"text":"Alt"}]}}]}`,
		`{"candidates":[{"index":0,"content":{"parts":[{"text":"is 42."}]},"finishReason":"STOP"}]}`,
		`{"candidates":[{"index":1,"content":{"parts":[{"text":"ernative"}]},"finishReason":"MAX_TOKENS"}]}`,
	)
	streamContent := map[int]string{}
	streamFinish := map[int]string{}
	for _, frame := range frames {
		for _, choice := range gjson.Parse(frame).Get("choices").Array() {
			idx := int(choice.Get("index").Int())
			streamContent[idx] += choice.Get("delta.content").String()
			if reason := choice.Get("finish_reason"); reason.Type == gjson.String {
				streamFinish[idx] = reason.String()
			}
		}
	}

	body := `{"candidates":[
		{"index":0,"content":{"parts":[{"text":"The answer is 42."}],"role":"model"},"finishReason":"STOP"},
		{"index":1,"content":{"parts":[{"text":"Alternative"}],"role":"model"},"finishReason":"MAX_TOKENS"}
	]}`
	out := ConvertGeminiResponseToOpenAINonStream(
		context.Background(), "gemini-2.0-flash", nil, nil, []byte(body), nil)

	for _, choice := range gjson.Parse(out).Get("choices").Array() {
		idx := int(choice.Get("index").Int())
		if got := streamContent[idx]; got != choice.Get("message.content").String() {
			t.Fatalf("candidate %d: streamed content %q, complete content %q",
				idx, got, choice.Get("message.content").String())
		}
		if got := streamFinish[idx]; got != choice.Get("finish_reason").String() {
			t.Fatalf("candidate %d: streamed finish %q, complete finish %q",
				idx, got, choice.Get("finish_reason").String())
		}
	}
}

func TestNonStreamConversion(t *testing.T) {
	body := `{
		"candidates":[
			{"content":{"parts":[{"text":"Hello there"}],"role":"model"},"finishReason":"STOP"},
			{"content":{"parts":[{"text":"Hi"}],"role":"model"},"finishReason":"MAX_TOKENS","index":1}
		],
		"usageMetadata":{"promptTokenCount":7,"candidatesTokenCount":5,"totalTokenCount":12},
		"modelVersion":"gemini-2.0-flash"
	}`
	out := ConvertGeminiResponseToOpenAINonStream(
		context.Background(), "gemini-2.0-flash", nil, nil, []byte(body), nil)
	root := gjson.Parse(out)

	if got := root.Get("object").String(); got != "chat.completion" {
		t.Fatalf("object = %q", got)
	}
	if !strings.HasPrefix(root.Get("id").String(), "chatcmpl-") {
		t.Fatalf("id = %q", root.Get("id").String())
	}
	choices := root.Get("choices").Array()
	if len(choices) != 2 {
		t.Fatalf("expected 2 choices, got %s", root.Get("choices").Raw)
	}
	if choices[0].Get("message.role").String() != "assistant" ||
		choices[0].Get("message.content").String() != "Hello there" {
		t.Fatalf("choice 0 message wrong: %s", choices[0].Raw)
	}
	if choices[0].Get("finish_reason").String() != "stop" ||
		choices[1].Get("finish_reason").String() != "length" {
		t.Fatalf("finish reasons wrong: %s", root.Get("choices").Raw)
	}
	if choices[0].Get("index").Int() != 0 || choices[1].Get("index").Int() != 1 {
		t.Fatalf("choice indexes wrong: %s", root.Get("choices").Raw)
	}
	if root.Get("usage.prompt_tokens").Int() != 7 ||
		root.Get("usage.completion_tokens").Int() != 5 ||
		root.Get("usage.total_tokens").Int() != 12 {
		t.Fatalf("usage wrong: %s", root.Get("usage").Raw)
	}
}

func TestNonStreamToolCalls(t *testing.T) {
	body := `{"candidates":[{"content":{"parts":[{"functionCall":{"name":"lookup","args":{"q":"go"}}}]},"finishReason":"STOP"}]}`
	out := ConvertGeminiResponseToOpenAINonStream(
		context.Background(), "gemini-2.0-flash", nil, nil, []byte(body), nil)
	root := gjson.Parse(out)

	message := root.Get("choices.0.message")
	if message.Get("content").Type != gjson.Null {
		t.Fatalf("tool-only message content must be null, got %s", message.Raw)
	}
	call := message.Get("tool_calls.0")
	if call.Get("function.name").String() != "lookup" {
		t.Fatalf("tool call wrong: %s", call.Raw)
	}
	if gjson.Get(call.Get("function.arguments").String(), "q").String() != "go" {
		t.Fatalf("arguments wrong: %s", call.Raw)
	}
	if got := root.Get("choices.0.finish_reason").String(); got != "tool_calls" {
		t.Fatalf("finish_reason = %q", got)
	}
}

func TestNonStreamInvalidBody(t *testing.T) {
	out := ConvertGeminiResponseToOpenAINonStream(
		context.Background(), "gemini-2.0-flash", nil, nil, []byte("<html>bad gateway</html>"), nil)
	if out != "" {
		t.Fatalf("invalid body must produce empty output, got %q", out)
	}
}
