package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadTunablesDefaults(t *testing.T) {
	got, err := LoadTunables("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.ChunkInterval.Duration != time.Second {
		t.Errorf("ChunkInterval = %v, want 1s", got.ChunkInterval.Duration)
	}
	if got.MinAudioBytes != 1000 {
		t.Errorf("MinAudioBytes = %d, want 1000", got.MinAudioBytes)
	}
	if got.BottomThreshold != 100 {
		t.Errorf("BottomThreshold = %d, want 100", got.BottomThreshold)
	}
}

func TestLoadTunablesMissingFile(t *testing.T) {
	got, err := LoadTunables("does/not/exist.toml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != DefaultTunables() {
		t.Errorf("missing file should yield defaults, got %+v", got)
	}
}

func TestLoadTunablesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tunables.toml")
	content := `
chunk_interval = "500ms"
min_audio_bytes = 2048
bottom_threshold = 50
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadTunables(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.ChunkInterval.Duration != 500*time.Millisecond {
		t.Errorf("ChunkInterval = %v, want 500ms", got.ChunkInterval.Duration)
	}
	if got.MinAudioBytes != 2048 {
		t.Errorf("MinAudioBytes = %d, want 2048", got.MinAudioBytes)
	}
	if got.BottomThreshold != 50 {
		t.Errorf("BottomThreshold = %d, want 50", got.BottomThreshold)
	}
	// Unset keys keep their defaults.
	if got.FlushTimeout.Duration != 3*time.Second {
		t.Errorf("FlushTimeout = %v, want 3s", got.FlushTimeout.Duration)
	}
}
