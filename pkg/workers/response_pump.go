package workers

import (
	"context"
	"log/slog"

	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/domain"
	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/logger"
	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/terminal"
)

// responsePump renders everything the pipeline pushes back. It stops when
// responseCh closes, not when the context is cancelled: handlers dispatched
// before shutdown still deliver their final responses, and the listener
// closes the channel only after the last one returns.
type responsePump struct {
	renderer   *terminal.Renderer
	responseCh <-chan domain.Response
}

func NewResponsePump(renderer *terminal.Renderer, responseCh <-chan domain.Response) *responsePump {
	return &responsePump{
		renderer:   renderer,
		responseCh: responseCh,
	}
}

func (p *responsePump) Name() string { return "response_pump" }

func (p *responsePump) Start(_ context.Context) error {
	slog.Info("Starting worker", "name", p.Name())
	defer slog.Info("Worker stopped", "name", p.Name())

	for response := range p.responseCh {
		p.render(response)
	}
	return nil
}

func (p *responsePump) render(response domain.Response) {
	if response.Err != nil {
		slog.Error("Pipeline error", logger.Err(response.Err))
		if response.Text == "" {
			p.renderer.Failure("出错了，请稍后重试")
			return
		}
		p.renderer.Failure(response.Text)
		return
	}

	if response.Delta != "" {
		p.renderer.Delta(response.Delta)
	}
	if response.Done {
		p.renderer.EndReply()
	}
	if response.Text != "" {
		p.renderer.Notice(response.Text)
	}
}
