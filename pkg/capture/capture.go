package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/domain"
)

// Capture owns the record/stop lifecycle of one microphone session.
// The recorder's device handle is held exclusively between Start and Stop and
// is released on every exit path. Chunks are kept in arrival order.
type Capture struct {
	recorder     Recorder
	flushTimeout time.Duration
	minBytes     int

	mu         sync.Mutex
	status     domain.RecordingStatus
	chunks     [][]byte
	totalBytes int
	flushed    chan struct{}
}

func New(recorder Recorder, flushTimeout time.Duration, minBytes int) *Capture {
	return &Capture{
		recorder:     recorder,
		flushTimeout: flushTimeout,
		minBytes:     minBytes,
		status:       domain.RecordingIdle,
	}
}

func (c *Capture) Status() domain.RecordingStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Start acquires the device and begins accumulating chunks. A Start while
// already recording is a no-op: the device has a single owner.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == domain.RecordingActive {
		slog.Warn("recording already in progress, ignoring start")
		return nil
	}
	if c.status == domain.RecordingProcessing {
		return fmt.Errorf("previous recording still processing")
	}

	chunkCh, err := c.recorder.Start(ctx)
	if err != nil {
		return fmt.Errorf("starting recorder: %w", err)
	}

	c.status = domain.RecordingActive
	c.chunks = nil
	c.totalBytes = 0
	c.flushed = make(chan struct{})

	go c.accumulate(chunkCh)

	return nil
}

func (c *Capture) accumulate(chunkCh <-chan []byte) {
	defer close(c.flushed)

	for chunk := range chunkCh {
		c.mu.Lock()
		c.chunks = append(c.chunks, chunk)
		c.totalBytes += len(chunk)
		c.mu.Unlock()
	}
}

// Stop flushes the recorder, waits for the final chunks bounded by the flush
// timeout, and hands back the ordered buffer with its MIME type. A recording
// with no chunks, or one below the minimum payload size, yields
// domain.ErrNoAudioCaptured and the capture returns to idle.
func (c *Capture) Stop(ctx context.Context) ([][]byte, string, error) {
	c.mu.Lock()
	if c.status != domain.RecordingActive {
		c.mu.Unlock()
		return nil, "", fmt.Errorf("not recording")
	}
	flushed := c.flushed
	c.mu.Unlock()

	flushCtx, cancel := context.WithTimeout(ctx, c.flushTimeout)
	defer cancel()

	stopErr := c.recorder.Stop(flushCtx)

	select {
	case <-flushed:
	case <-flushCtx.Done():
		slog.Warn("recorder flush timed out", "timeout", c.flushTimeout)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	chunks, total := c.chunks, c.totalBytes
	c.chunks = nil

	if total == 0 && stopErr != nil {
		// The recorder never produced audio and reported why.
		c.status = domain.RecordingIdle
		return nil, "", stopErr
	}

	if total < c.minBytes {
		c.status = domain.RecordingIdle
		return nil, "", fmt.Errorf("%w: %d bytes", domain.ErrNoAudioCaptured, total)
	}

	c.status = domain.RecordingProcessing
	return chunks, c.recorder.MimeType(), nil
}

// Finish marks the end of downstream processing, returning the capture to
// idle so the next recording can start.
func (c *Capture) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = domain.RecordingIdle
}
