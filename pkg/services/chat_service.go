package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/conversation"
	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/domain"
)

type chatService struct {
	store      *conversation.Store
	responseCh chan<- domain.Response
}

func NewChatService(store *conversation.Store, responseCh chan<- domain.Response) *chatService {
	return &chatService{
		store:      store,
		responseCh: responseCh,
	}
}

// ClearConversation empties the history and releases the recorded audio the
// cleared messages owned.
func (c *chatService) ClearConversation(ctx context.Context) {
	if err := c.store.Clear(); err != nil {
		// History is gone either way; a leaked temp file is log-worthy only.
		slog.WarnContext(ctx, "Clearing conversation", "err", err)
	}

	c.responseCh <- domain.Response{Text: "✨ 对话已清空，开始新的聊天吧！"}
}

// History renders the current conversation for the presentation layer.
func (c *chatService) History() []domain.Message {
	return c.store.Messages()
}

// Describe reports the pipeline state for the status line.
func (c *chatService) Describe() string {
	status := c.store.RecordingStatus()
	if _, loading := c.store.Loading(); loading {
		return fmt.Sprintf("%d messages, reply streaming", c.store.Len())
	}
	return fmt.Sprintf("%d messages, %s", c.store.Len(), status)
}
