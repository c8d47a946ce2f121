package chat_completions

import (
	"github.com/lingyicute/openai-gemini/internal/translator"
)

func init() {
	translator.Register(
		translator.OpenAI,
		translator.Gemini,
		ConvertOpenAIRequestToGemini,
		translator.ResponseTransform{
			Stream:    ConvertGeminiResponseToOpenAI,
			NonStream: ConvertGeminiResponseToOpenAINonStream,
		},
	)
}
