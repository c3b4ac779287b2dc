package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ragstack/ragserve/internal/session"
	"github.com/ragstack/ragserve/provider"
)

// ErrInference covers model-call failures during a chat turn.
var ErrInference = errors.New("inference failed")

// Service produces grounded responses: it embeds the prompt, retrieves
// the top-k chunks from the session's active backend, and asks the chat
// model with the retrieved context and conversation history.
type Service struct {
	Provider provider.Provider
	TopK     int
}

const systemPrompt = "You are a helpful assistant. Answer strictly from the provided context. " +
	"If the context does not contain the answer, say you do not know."

// Respond runs one grounded chat turn against the given session view.
// The caller appends the exchange to history only after Respond succeeds.
func (s *Service) Respond(ctx context.Context, view session.ChatView, prompt string) (string, error) {
	topK := s.TopK
	if topK <= 0 {
		topK = 4
	}
	vecs, err := s.Provider.CreateEmbedding(ctx, view.EmbeddingModel, []string{prompt})
	if err != nil {
		return "", fmt.Errorf("%w: embed prompt (%s): %v", ErrInference, view.EmbeddingModel, err)
	}
	if len(vecs) == 0 {
		return "", fmt.Errorf("%w: embed prompt returned no vector", ErrInference)
	}
	hits, err := view.Handle.Retriever().TopK(ctx, vecs[0], topK)
	if err != nil {
		return "", fmt.Errorf("%w: retrieve from %s: %v", ErrInference, view.Handle.Backend(), err)
	}

	var grounding strings.Builder
	for i, hit := range hits {
		fmt.Fprintf(&grounding, "[%d] %s\n", i+1, hit.Text)
	}
	messages := make([]provider.Message, 0, len(view.History)+2)
	messages = append(messages, provider.Message{
		Role:    provider.RoleSystem,
		Content: systemPrompt + "\n\nContext:\n" + grounding.String(),
	})
	messages = append(messages, view.History...)
	messages = append(messages, provider.Message{Role: provider.RoleUser, Content: prompt})

	response, err := s.Provider.ChatCompletion(ctx, view.ChatModel, messages)
	if err != nil {
		return "", fmt.Errorf("%w: model %s: %v", ErrInference, view.ChatModel, err)
	}
	if strings.TrimSpace(response) == "" {
		return "", fmt.Errorf("%w: model %s returned an empty response", ErrInference, view.ChatModel)
	}
	return response, nil
}
