package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Tunables are the empirically tuned knobs of the pipeline. They carry no
// business meaning; defaults match the values the UI was tuned with.
type Tunables struct {
	// ChunkInterval is how much audio each recorded chunk covers.
	ChunkInterval Duration `toml:"chunk_interval"`

	// FlushTimeout bounds the wait for the recorder's final flush on stop.
	FlushTimeout Duration `toml:"flush_timeout"`

	// MinAudioBytes is the smallest payload considered to contain speech.
	MinAudioBytes int `toml:"min_audio_bytes"`

	// BottomThreshold is the distance from the bottom, in viewport units,
	// still treated as "at the bottom" for auto-scroll.
	BottomThreshold int `toml:"bottom_threshold"`

	// TypingInterval paces the typewriter reveal of streamed replies.
	// Zero renders deltas instantly.
	TypingInterval Duration `toml:"typing_interval"`
}

func DefaultTunables() Tunables {
	return Tunables{
		ChunkInterval:   Duration{time.Second},
		FlushTimeout:    Duration{3 * time.Second},
		MinAudioBytes:   1000,
		BottomThreshold: 100,
		TypingInterval:  Duration{30 * time.Millisecond},
	}
}

// LoadTunables reads a TOML tunables file over the defaults. An empty path
// or a missing file yields the defaults.
func LoadTunables(path string) (Tunables, error) {
	t := DefaultTunables()
	if path == "" {
		return t, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return t, nil
	}

	if _, err := toml.DecodeFile(path, &t); err != nil {
		return t, fmt.Errorf("decoding tunables file %s: %w", path, err)
	}
	return t, nil
}

// Duration wraps time.Duration for TOML decoding from strings like "150ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}
