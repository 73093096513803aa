package capture

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/domain"
)

// fakeRecorder is a scriptable chunk source. Chunks queued before Start are
// delivered immediately; Stop closes the channel unless neverFlush is set.
type fakeRecorder struct {
	chunks     [][]byte
	startErr   error
	stopErr    error
	neverFlush bool

	chunkCh    chan []byte
	started    int
	stopCalled int
}

func (f *fakeRecorder) MimeType() string { return "audio/pcm" }

func (f *fakeRecorder) Start(ctx context.Context) (<-chan []byte, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started++
	f.chunkCh = make(chan []byte, len(f.chunks)+1)
	for _, chunk := range f.chunks {
		f.chunkCh <- chunk
	}
	return f.chunkCh, nil
}

func (f *fakeRecorder) Stop(ctx context.Context) error {
	f.stopCalled++
	if !f.neverFlush {
		close(f.chunkCh)
	}
	return f.stopErr
}

func waitForChunks(t *testing.T, c *Capture, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		got := len(c.chunks)
		c.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d chunks", n)
}

func TestCaptureStartWhileRecordingIsNoOp(t *testing.T) {
	rec := &fakeRecorder{}
	c := New(rec, time.Second, 0)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("second start should be a no-op, got: %v", err)
	}
	if rec.started != 1 {
		t.Errorf("recorder started %d times, want 1", rec.started)
	}
}

func TestCaptureStartErrorClassified(t *testing.T) {
	rec := &fakeRecorder{startErr: domain.ErrPermissionDenied}
	c := New(rec, time.Second, 0)

	err := c.Start(context.Background())
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("error = %v, want ErrPermissionDenied", err)
	}
	if c.Status() != domain.RecordingIdle {
		t.Errorf("status = %v, want idle after failed start", c.Status())
	}
}

func TestCaptureStopNoAudio(t *testing.T) {
	rec := &fakeRecorder{}
	c := New(rec, time.Second, 1000)

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, _, err := c.Stop(context.Background())
	if !errors.Is(err, domain.ErrNoAudioCaptured) {
		t.Fatalf("error = %v, want ErrNoAudioCaptured", err)
	}
	if c.Status() != domain.RecordingIdle {
		t.Errorf("status = %v, want idle", c.Status())
	}
	if rec.stopCalled != 1 {
		t.Errorf("recorder not released: stopCalled = %d", rec.stopCalled)
	}
}

func TestCaptureStopBelowMinimum(t *testing.T) {
	rec := &fakeRecorder{chunks: [][]byte{{1, 2, 3}}}
	c := New(rec, time.Second, 1000)

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitForChunks(t, c, 1)

	if _, _, err := c.Stop(context.Background()); !errors.Is(err, domain.ErrNoAudioCaptured) {
		t.Fatalf("error = %v, want ErrNoAudioCaptured", err)
	}
}

func TestCaptureStopOrderedChunks(t *testing.T) {
	want := [][]byte{
		bytes.Repeat([]byte{1}, 400),
		bytes.Repeat([]byte{2}, 400),
		bytes.Repeat([]byte{3}, 400),
	}
	rec := &fakeRecorder{chunks: want}
	c := New(rec, time.Second, 1000)

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitForChunks(t, c, len(want))

	chunks, mime, err := c.Stop(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mime != "audio/pcm" {
		t.Errorf("mime = %q, want audio/pcm", mime)
	}
	if c.Status() != domain.RecordingProcessing {
		t.Errorf("status = %v, want processing", c.Status())
	}

	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(want))
	}
	for i := range want {
		if !bytes.Equal(chunks[i], want[i]) {
			t.Errorf("chunk %d out of order or corrupted", i)
		}
	}

	c.Finish()
	if c.Status() != domain.RecordingIdle {
		t.Errorf("status after Finish = %v, want idle", c.Status())
	}
}

func TestCaptureStopFlushTimeout(t *testing.T) {
	rec := &fakeRecorder{
		chunks:     [][]byte{bytes.Repeat([]byte{9}, 2000)},
		neverFlush: true,
	}
	c := New(rec, 50*time.Millisecond, 1000)

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitForChunks(t, c, 1)

	start := time.Now()
	chunks, _, err := c.Stop(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Stop blocked for %v despite flush timeout", elapsed)
	}
	if len(chunks) != 1 {
		t.Errorf("got %d chunks, want the 1 collected before timeout", len(chunks))
	}
}

func TestCaptureStopPropagatesRecorderError(t *testing.T) {
	rec := &fakeRecorder{stopErr: domain.ErrDeviceUnavailable}
	c := New(rec, time.Second, 1000)

	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, _, err := c.Stop(context.Background())
	if !errors.Is(err, domain.ErrDeviceUnavailable) {
		t.Fatalf("error = %v, want ErrDeviceUnavailable", err)
	}
	if c.Status() != domain.RecordingIdle {
		t.Errorf("status = %v, want idle", c.Status())
	}
}
