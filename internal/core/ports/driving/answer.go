package driving

import (
	"context"

	"github.com/custodia-labs/sitechat/internal/core/domain"
)

// AnswerService answers questions about an ingested site
type AnswerService interface {
	// Ask answers one question from context retrieved up front (direct mode)
	Ask(ctx context.Context, siteID, question string) (*domain.Answer, error)

	// AskStream continues a conversation, letting the model look up context
	// through the getInformation tool. Answer text is handed to onToken as
	// it is generated; the full text is returned.
	AskStream(ctx context.Context, siteID string, messages []domain.ChatMessage, onToken func(string) error) (string, error)
}
