package workers

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/domain"
	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/logger"
	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/terminal"
)

type VoiceService interface {
	StartRecording(ctx context.Context)
	StopAndSend(ctx context.Context)
	PlayLastUtterance(ctx context.Context)
}

type TextService interface {
	GenerateFromText(ctx context.Context, prompt string)
}

type ChatService interface {
	ClearConversation(ctx context.Context)
	History() []domain.Message
	Describe() string
}

// terminalListener reads commands and text from the terminal and dispatches
// them to the pipeline. It is the producer gate for responseCh: the channel
// closes only once every dispatched handler has returned, so the response
// pump can drain in-flight replies during shutdown instead of deadlocking
// them.
type terminalListener struct {
	in         io.Reader
	renderer   *terminal.Renderer
	voice      VoiceService
	text       TextService
	chat       ChatService
	responseCh chan domain.Response
	wg         sync.WaitGroup
}

func NewTerminalListener(
	in io.Reader,
	renderer *terminal.Renderer,
	voice VoiceService,
	text TextService,
	chat ChatService,
	responseCh chan domain.Response,
) (*terminalListener, error) {
	return &terminalListener{
		in:         in,
		renderer:   renderer,
		voice:      voice,
		text:       text,
		chat:       chat,
		responseCh: responseCh,
	}, nil
}

func (t *terminalListener) Name() string { return "terminal_listener" }

func (t *terminalListener) Start(ctx context.Context) error {
	slog.Info("Starting worker", "name", t.Name())
	defer slog.Info("Worker stopped", "name", t.Name())

	// Handlers caught mid-reply by cancellation still push their final
	// responses; closing the channel after they return is what releases
	// the pump.
	defer func() {
		t.wg.Wait()
		close(t.responseCh)
	}()

	t.renderer.Notice("🎀 语音聊天已就绪：输入文字直接发送，/record 开始录音，/stop 结束录音，/play 回放语音，/history 查看历史，/clear 清空对话")

	lines := make(chan string)
	go t.scanInput(ctx, lines)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			t.wg.Add(1)
			go func(line string) {
				defer t.wg.Done()
				t.handleLine(ctx, line)
			}(line)
		}
	}
}

func (t *terminalListener) scanInput(ctx context.Context, lines chan<- string) {
	defer close(lines)

	scanner := bufio.NewScanner(t.in)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
}

func (t *terminalListener) handleLine(ctx context.Context, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	ctx = logger.ContextWithSessionID(ctx, uuid.NewString()[:8])

	switch line {
	case "/record":
		t.voice.StartRecording(ctx)
	case "/stop":
		t.voice.StopAndSend(ctx)
	case "/play":
		t.voice.PlayLastUtterance(ctx)
	case "/clear":
		t.chat.ClearConversation(ctx)
		t.renderer.Reset()
	case "/history":
		t.renderer.Transcript(t.chat.History())
	case "/status":
		t.renderer.Notice(t.chat.Describe())
	default:
		t.renderer.UserMessage(line)
		t.text.GenerateFromText(ctx, line)
	}
}
