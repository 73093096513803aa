package capture

import (
	"bytes"
	"encoding/base64"
	"strings"

	"github.com/samber/lo"

	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/domain"
)

// fallbackFormat is what unknown MIME types map to; the recognizer documents
// raw pcm as always accepted.
const fallbackFormat = "pcm"

// Encoded is one recording readied for JSON transport: base64 payload, the
// short format tag the recognizer expects, and the raw byte length.
type Encoded struct {
	Base64 string
	Format string
	Len    int
}

// Encode concatenates the ordered chunk buffer into one payload. Pure; the
// only failure is an empty buffer, which signals domain.ErrEmptyAudioBuffer.
func Encode(chunks [][]byte, mimeType string) (Encoded, error) {
	total := lo.SumBy(chunks, func(chunk []byte) int { return len(chunk) })
	if total == 0 {
		return Encoded{}, domain.ErrEmptyAudioBuffer
	}

	raw := bytes.Join(chunks, nil)

	return Encoded{
		Base64: base64.StdEncoding.EncodeToString(raw),
		Format: FormatTag(mimeType),
		Len:    total,
	}, nil
}

// FormatTag maps an observed transport MIME type onto the recognizer's small
// format vocabulary. Codec suffixes ("audio/webm;codecs=opus") are ignored.
func FormatTag(mimeType string) string {
	mime := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}

	switch mime {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/mp3", "audio/mpeg":
		return "mp3"
	case "audio/webm":
		return "webm"
	case "audio/mp4", "audio/x-m4a", "audio/m4a":
		return "m4a"
	case "audio/pcm", "audio/l16":
		return "pcm"
	default:
		return fallbackFormat
	}
}
