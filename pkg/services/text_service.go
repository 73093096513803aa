package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/chat"
	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/conversation"
	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/domain"
)

const busyNotice = "上一条回复还在生成中，请稍候…"

type ChatClient interface {
	Stream(ctx context.Context, history []chat.Turn, onDelta func(delta string)) (string, error)
	Complete(ctx context.Context, history []chat.Turn) (string, error)
}

type textService struct {
	client        ChatClient
	store         *conversation.Store
	streamEnabled bool
	responseCh    chan<- domain.Response
}

func NewTextService(
	client ChatClient,
	store *conversation.Store,
	streamEnabled bool,
	responseCh chan<- domain.Response,
) *textService {
	return &textService{
		client:        client,
		store:         store,
		streamEnabled: streamEnabled,
		responseCh:    responseCh,
	}
}

// GenerateFromText handles a typed message.
func (t *textService) GenerateFromText(ctx context.Context, prompt string) {
	t.Generate(ctx, domain.NewMessage(domain.RoleUser, prompt))
}

// Generate appends the user message and grows an assistant reply from the
// completion endpoint. A send while a previous reply is still streaming is
// refused here, not queued.
func (t *textService) Generate(ctx context.Context, userMsg domain.Message) {
	if t.store.IsBusy() {
		t.responseCh <- domain.Response{Text: busyNotice}
		return
	}

	t.store.Append(userMsg)
	history := t.history()

	assistant := domain.NewLoadingMessage()
	t.store.Append(assistant)

	slog.InfoContext(ctx, "Generating reply", "messages", len(history), "stream", t.streamEnabled)

	if !t.streamEnabled {
		t.complete(ctx, assistant.ID, history)
		return
	}
	t.stream(ctx, assistant.ID, history)
}

func (t *textService) stream(ctx context.Context, assistantID string, history []chat.Turn) {
	content, err := t.client.Stream(ctx, history, func(delta string) {
		t.store.PatchByID(assistantID, conversation.Patch{AppendContent: delta})
		t.responseCh <- domain.Response{MessageID: assistantID, Delta: delta}
	})

	switch {
	case err == nil:
		t.finalize(assistantID, domain.MessageStatusFinal)
		t.responseCh <- domain.Response{MessageID: assistantID, Done: true}

	case errors.Is(err, chat.ErrStreamInterrupted):
		// The partial content stays; the message is marked so the user can
		// tell it was cut short. No silent retry.
		slog.WarnContext(ctx, "Stream cut short, keeping partial reply",
			"messageID", assistantID, "received", len(content))
		t.finalize(assistantID, domain.MessageStatusError)
		t.responseCh <- domain.Response{
			MessageID: assistantID,
			Done:      true,
			Text:      "回复被中断，以上是已收到的部分内容",
		}

	default:
		t.finalize(assistantID, domain.MessageStatusError)

		var upstreamErr *chat.UpstreamError
		if errors.As(err, &upstreamErr) {
			t.responseCh <- domain.Response{
				MessageID: assistantID,
				Err:       fmt.Errorf("chat completion failed: %w", err),
				Text:      "聊天服务返回了错误，请稍后重试",
			}
			return
		}
		t.responseCh <- domain.Response{
			MessageID: assistantID,
			Err:       fmt.Errorf("streaming chat completion: %w", err),
			Text:      "网络异常，请检查网络后重试",
		}
	}
}

func (t *textService) complete(ctx context.Context, assistantID string, history []chat.Turn) {
	content, err := t.client.Complete(ctx, history)
	if err != nil {
		t.finalize(assistantID, domain.MessageStatusError)
		t.responseCh <- domain.Response{
			MessageID: assistantID,
			Err:       fmt.Errorf("creating chat completion: %w", err),
			Text:      "聊天服务返回了错误，请稍后重试",
		}
		return
	}

	t.store.PatchByID(assistantID, conversation.Patch{SetContent: &content})
	t.finalize(assistantID, domain.MessageStatusFinal)
	t.responseCh <- domain.Response{MessageID: assistantID, Delta: content}
	t.responseCh <- domain.Response{MessageID: assistantID, Done: true}
}

func (t *textService) finalize(assistantID string, status domain.MessageStatus) {
	t.store.PatchByID(assistantID, conversation.Patch{Status: &status})
}

// history maps the finished turns of the conversation into the wire shape.
// The loading placeholder and failed replies are left out.
func (t *textService) history() []chat.Turn {
	return lo.FilterMap(t.store.Messages(), func(m domain.Message, _ int) (chat.Turn, bool) {
		if m.Status != domain.MessageStatusFinal {
			return chat.Turn{}, false
		}
		return chat.Turn{Role: string(m.Role), Content: m.Content}, true
	})
}
