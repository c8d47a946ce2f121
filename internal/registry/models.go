// Package registry provides the static model catalog served on the models
// endpoint and used to validate inbound model names.
package registry

// ModelInfo describes one model exposed by the gateway.
type ModelInfo struct {
	ID                 string
	Created            int64
	OwnedBy            string
	DisplayName        string
	InputTokenLimit    int
	OutputTokenLimit   int
	SupportsEmbeddings bool
	SupportsGeneration bool
}

// GeminiModels returns the models the gateway exposes. The upstream catalog
// is larger; this list covers the generation and embedding models the
// translation layer is exercised against.
func GeminiModels() []*ModelInfo {
	return []*ModelInfo{
		{
			ID:                 "gemini-2.5-pro",
			Created:            1750118400,
			OwnedBy:            "google",
			DisplayName:        "Gemini 2.5 Pro",
			InputTokenLimit:    1048576,
			OutputTokenLimit:   65536,
			SupportsGeneration: true,
		},
		{
			ID:                 "gemini-2.5-flash",
			Created:            1750118400,
			OwnedBy:            "google",
			DisplayName:        "Gemini 2.5 Flash",
			InputTokenLimit:    1048576,
			OutputTokenLimit:   65536,
			SupportsGeneration: true,
		},
		{
			ID:                 "gemini-2.5-flash-lite",
			Created:            1753142400,
			OwnedBy:            "google",
			DisplayName:        "Gemini 2.5 Flash Lite",
			InputTokenLimit:    1048576,
			OutputTokenLimit:   65536,
			SupportsGeneration: true,
		},
		{
			ID:                 "gemini-2.0-flash",
			Created:            1738713600,
			OwnedBy:            "google",
			DisplayName:        "Gemini 2.0 Flash",
			InputTokenLimit:    1048576,
			OutputTokenLimit:   8192,
			SupportsGeneration: true,
		},
		{
			ID:                 "text-embedding-004",
			Created:            1713398400,
			OwnedBy:            "google",
			DisplayName:        "Text Embedding 004",
			InputTokenLimit:    2048,
			SupportsEmbeddings: true,
		},
		{
			ID:                 "gemini-embedding-001",
			Created:            1717977600,
			OwnedBy:            "google",
			DisplayName:        "Gemini Embedding 001",
			InputTokenLimit:    2048,
			SupportsEmbeddings: true,
		},
	}
}

// Lookup returns the catalog entry for a model ID, or nil when unknown.
func Lookup(id string) *ModelInfo {
	for _, m := range GeminiModels() {
		if m.ID == id {
			return m
		}
	}
	return nil
}
