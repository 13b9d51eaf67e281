package ws

import (
	"context"

	"github.com/google/uuid"
)

// ChatChannel доставляет события торга участникам через WebSocket хаб.
// Реализует service.MessageChannel: доставка fire-and-forget, офлайн-клиент
// просто не получит сообщение.
type ChatChannel struct {
	hub *Hub
}

// NewChatChannel создаёт канал поверх хаба.
func NewChatChannel(hub *Hub) *ChatChannel {
	return &ChatChannel{hub: hub}
}

// PostEvent рассылает текст события всем участникам торга.
func (c *ChatChannel) PostEvent(ctx context.Context, threadID uuid.UUID, recipients []uuid.UUID, text string) error {
	payload := map[string]any{
		"thread_id": threadID,
		"text":      text,
	}
	for _, userID := range recipients {
		if err := c.hub.BroadcastToUser(userID, "negotiation_event", payload); err != nil {
			return err
		}
	}
	return nil
}
