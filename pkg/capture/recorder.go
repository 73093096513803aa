package capture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/domain"
	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/logger"
)

// Recorder produces timed audio chunks from an input device. Start acquires
// the device; Stop flushes, releases it and reports how the recording ended.
// The chunk channel is closed once the device is released.
type Recorder interface {
	Start(ctx context.Context) (<-chan []byte, error)
	Stop(ctx context.Context) error
	MimeType() string
}

const (
	sampleRate     = 16000
	bytesPerSample = 2 // s16le mono
)

// ffmpegRecorder records raw PCM from an ALSA device through an ffmpeg
// subprocess, slicing stdout into fixed-duration chunks.
type ffmpegRecorder struct {
	device   string
	interval time.Duration

	cmd    *exec.Cmd
	stderr bytes.Buffer
	done   chan struct{}
}

func NewFFmpegRecorder(device string, interval time.Duration) *ffmpegRecorder {
	return &ffmpegRecorder{
		device:   device,
		interval: interval,
	}
}

func (f *ffmpegRecorder) MimeType() string { return "audio/pcm" }

func (f *ffmpegRecorder) Start(ctx context.Context) (<-chan []byte, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("%w: looking for `ffmpeg`: %v", domain.ErrDeviceUnavailable, err)
	}

	// Diagnostics from a previous session must not leak into this one's
	// failure classification.
	f.stderr.Reset()

	// nolint:gosec // device comes from operator config
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-f", "alsa", "-i", f.device,
		"-f", "s16le", "-ar", fmt.Sprint(sampleRate), "-ac", "1",
		"-",
	)
	cmd.Stderr = &f.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening recorder stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, classifyDeviceError(err.Error(), err)
	}

	f.cmd = cmd
	f.done = make(chan struct{})

	chunkSize := int(f.interval.Seconds() * sampleRate * bytesPerSample)
	if chunkSize <= 0 {
		chunkSize = sampleRate * bytesPerSample
	}

	chunkCh := make(chan []byte)
	go f.readChunks(stdout, chunkSize, chunkCh)

	return chunkCh, nil
}

func (f *ffmpegRecorder) readChunks(stdout io.Reader, chunkSize int, chunkCh chan<- []byte) {
	defer close(chunkCh)
	defer close(f.done)

	for {
		chunk := make([]byte, chunkSize)
		n, err := io.ReadFull(stdout, chunk)
		if n > 0 {
			chunkCh <- chunk[:n]
		}
		if err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				slog.Warn("reading recorder output", logger.Err(err))
			}
			return
		}
	}
}

func (f *ffmpegRecorder) Stop(ctx context.Context) error {
	if f.cmd == nil || f.cmd.Process == nil {
		return nil
	}

	// SIGINT asks ffmpeg to flush and exit cleanly.
	if err := f.cmd.Process.Signal(syscall.SIGINT); err != nil {
		_ = f.cmd.Process.Kill()
	}

	select {
	case <-f.done:
	case <-ctx.Done():
		_ = f.cmd.Process.Kill()
	}

	err := f.cmd.Wait()
	f.cmd = nil
	if err != nil {
		// ffmpeg exits non-zero on SIGINT; only report real device trouble.
		if classified := classifyDeviceError(f.stderr.String(), err); classified != err {
			return classified
		}
	}
	return nil
}

// classifyDeviceError maps recorder process failures onto the two recoverable
// capture conditions. Unrecognized failures pass through wrapped.
func classifyDeviceError(detail string, err error) error {
	lower := strings.ToLower(detail)
	switch {
	case strings.Contains(lower, "permission denied"), strings.Contains(lower, "not permitted"):
		return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, strings.TrimSpace(detail))
	case strings.Contains(lower, "no such device"),
		strings.Contains(lower, "device or resource busy"),
		strings.Contains(lower, "cannot open audio device"):
		return fmt.Errorf("%w: %s", domain.ErrDeviceUnavailable, strings.TrimSpace(detail))
	default:
		return err
	}
}
