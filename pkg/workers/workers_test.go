package workers

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/domain"
	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/scroll"
	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/terminal"
)

type fakeWorker struct {
	name    string
	err     error
	stopped atomic.Bool
}

func (f *fakeWorker) Name() string { return f.name }

func (f *fakeWorker) Start(ctx context.Context) error {
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	f.stopped.Store(true)
	return nil
}

func TestGroupStopsAllOnWorkerFailure(t *testing.T) {
	healthy := &fakeWorker{name: "healthy"}
	g := Group{healthy, &fakeWorker{name: "broken", err: errors.New("boom")}}

	done := make(chan error, 1)
	go func() { done <- g.Start(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broken")
		assert.True(t, healthy.stopped.Load(), "one worker failing must stop the rest")
	case <-time.After(2 * time.Second):
		t.Fatal("group did not stop after a worker failure")
	}
}

type noopVoice struct{}

func (noopVoice) StartRecording(context.Context)    {}
func (noopVoice) StopAndSend(context.Context)       {}
func (noopVoice) PlayLastUtterance(context.Context) {}

type noopChat struct{}

func (noopChat) ClearConversation(context.Context) {}
func (noopChat) History() []domain.Message         { return nil }
func (noopChat) Describe() string                  { return "" }

// blockingText holds its reply until cancellation and then pushes it, the
// way a streaming handler caught mid-reply by shutdown does.
type blockingText struct {
	responseCh chan<- domain.Response
	started    chan struct{}
}

func (b *blockingText) GenerateFromText(ctx context.Context, prompt string) {
	close(b.started)
	<-ctx.Done()
	b.responseCh <- domain.Response{MessageID: "m1", Done: true, Text: "回复被中断"}
}

func TestShutdownDeliversInFlightResponses(t *testing.T) {
	responseCh := make(chan domain.Response)
	text := &blockingText{responseCh: responseCh, started: make(chan struct{})}
	renderer := terminal.NewRenderer(io.Discard, 0, scroll.NewController(100))

	listener, err := NewTerminalListener(
		strings.NewReader("hello\n"),
		renderer,
		noopVoice{},
		text,
		noopChat{},
		responseCh,
	)
	require.NoError(t, err)

	g := Group{listener, NewResponsePump(renderer, responseCh)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- g.Start(ctx) }()

	select {
	case <-text.started:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never started")
	}

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown hung on a handler still sending its final response")
	}
}
