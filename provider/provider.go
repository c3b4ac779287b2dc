package provider

import "context"

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider is the interface all LLM backends must satisfy. Both the chat
// model and the embedding model are chosen per call so a single provider
// can serve ingestion, summarization and inference.
type Provider interface {
	ChatCompletion(ctx context.Context, model string, messages []Message) (string, error)
	CreateEmbedding(ctx context.Context, model string, texts []string) ([][]float32, error)
}
