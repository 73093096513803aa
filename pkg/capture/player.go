package capture

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/domain"
)

// ffplayPlayer replays a raw PCM utterance through an ffplay subprocess,
// blocking until playback completes or the context is cancelled.
type ffplayPlayer struct{}

func NewFFplayPlayer() *ffplayPlayer {
	return &ffplayPlayer{}
}

func (p *ffplayPlayer) Play(ctx context.Context, path string) error {
	if _, err := exec.LookPath("ffplay"); err != nil {
		return fmt.Errorf("%w: looking for `ffplay`: %v", domain.ErrDeviceUnavailable, err)
	}

	// nolint:gosec // path comes from the audio resource manager
	cmd := exec.CommandContext(ctx, "ffplay",
		"-hide_banner", "-loglevel", "error",
		"-autoexit", "-nodisp",
		"-f", "s16le", "-ar", fmt.Sprint(sampleRate), "-ac", "1",
		path,
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		return classifyDeviceError(string(out), fmt.Errorf("playing %s: %w", path, err))
	}
	return nil
}
