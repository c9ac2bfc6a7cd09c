package conversation

import (
	"context"
	"time"

	"github.com/support-rag/backend/internal/storage/models"
)

// Store supplies the turn history of a conversation, oldest first. Real
// persistence lives behind this contract so a durable implementation can
// replace the mock without touching the core.
type Store interface {
	History(ctx context.Context, conversationID string) ([]models.ConversationTurn, error)
}

// MockStore serves a canned history until a durable conversation store
// exists.
type MockStore struct{}

func NewMockStore() *MockStore {
	return &MockStore{}
}

func (s *MockStore) History(_ context.Context, _ string) ([]models.ConversationTurn, error) {
	return []models.ConversationTurn{
		{
			Role:      "user",
			Content:   "How do I reset my password?",
			Timestamp: time.Date(2023, 10, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			Role:      "assistant",
			Content:   "You can reset your password by clicking the 'Forgot Password' link on the login page.",
			Timestamp: time.Date(2023, 10, 1, 10, 0, 5, 0, time.UTC),
		},
	}, nil
}
