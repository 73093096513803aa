package terminal

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/domain"
	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/scroll"
)

// Renderer writes the conversation to a terminal. Streamed replies are
// revealed with typewriter pacing, and every rendered line is reported to
// the scroll controller so the follow-the-bottom decision stays live.
type Renderer struct {
	out            io.Writer
	typingInterval time.Duration
	scroll         *scroll.Controller

	mu            sync.Mutex
	contentHeight int
	messageCount  int
	inReply       bool
}

func NewRenderer(out io.Writer, typingInterval time.Duration, scrollCtl *scroll.Controller) *Renderer {
	return &Renderer{
		out:            out,
		typingInterval: typingInterval,
		scroll:         scrollCtl,
	}
}

// UserMessage echoes a sent message, voice transcripts included.
func (r *Renderer) UserMessage(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintln(r.out, color.New(color.FgHiMagenta).Sprint("你: ")+text)
	r.recordMessage(text)
}

// Delta reveals one streamed fragment with typewriter pacing, opening the
// reply line on the first fragment. Zero interval renders instantly.
func (r *Renderer) Delta(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.inReply {
		fmt.Fprint(r.out, color.New(color.FgHiCyan).Sprint("小狐: "))
		r.inReply = true
		r.recordMessage("")
	}

	for _, ch := range text {
		fmt.Fprint(r.out, string(ch))
		if r.typingInterval > 0 {
			time.Sleep(r.typingInterval)
		}
	}

	r.growContent(strings.Count(text, "\n"))
}

// EndReply closes the streamed line.
func (r *Renderer) EndReply() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inReply {
		fmt.Fprintln(r.out)
		r.inReply = false
		r.growContent(1)
	}
}

// Transcript replays the stored conversation, as for the history command.
// Replayed lines grow the content height but do not count as new messages.
func (r *Renderer) Transcript(msgs []domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.breakReplyLocked()

	if len(msgs) == 0 {
		fmt.Fprintln(r.out, color.New(color.Faint).Sprint("（暂无历史消息）"))
		r.growContent(1)
		return
	}

	for _, m := range msgs {
		prefix := color.New(color.FgHiCyan).Sprint("小狐: ")
		if m.Role == domain.RoleUser {
			prefix = color.New(color.FgHiMagenta).Sprint("你: ")
		}
		line := m.Content
		if m.Status == domain.MessageStatusError {
			line += color.New(color.Faint).Sprint("（未完成）")
		}
		fmt.Fprintln(r.out, prefix+line)
		r.growContent(1 + strings.Count(m.Content, "\n"))
	}
}

// Notice prints a system line: confirmations, hints, recording state.
func (r *Renderer) Notice(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.breakReplyLocked()
	fmt.Fprintln(r.out, color.New(color.Faint).Sprint(text))
	r.growContent(1 + strings.Count(text, "\n"))
}

// Failure prints a user-facing error line.
func (r *Renderer) Failure(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.breakReplyLocked()
	fmt.Fprintln(r.out, color.New(color.FgRed).Sprint("⚠ "+text))
	r.growContent(1)
}

func (r *Renderer) breakReplyLocked() {
	if r.inReply {
		fmt.Fprintln(r.out)
		r.inReply = false
		r.growContent(1)
	}
}

func (r *Renderer) recordMessage(text string) {
	r.messageCount++
	r.contentHeight += 1 + strings.Count(text, "\n")
	if _, ok := r.scroll.ObserveNewMessage(r.messageCount, r.contentHeight); !ok && r.scroll.PendingNewMessage() {
		fmt.Fprintln(r.out, color.New(color.FgYellow).Sprint("↓ 有新消息"))
	}
}

func (r *Renderer) growContent(lines int) {
	if lines <= 0 {
		return
	}
	r.contentHeight += lines
	r.scroll.ObserveContentGrowth(r.contentHeight)
}

// Reset forgets the rendered history, as on conversation clear.
func (r *Renderer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.contentHeight = 0
	r.messageCount = 0
	r.inReply = false
	r.scroll.Reset()
}
