package domain

import "errors"

var (
	// ErrPermissionDenied means microphone access was refused. Recoverable
	// once the user enables access in system settings.
	ErrPermissionDenied = errors.New("microphone permission denied")

	// ErrDeviceUnavailable means no usable audio input device was found.
	ErrDeviceUnavailable = errors.New("audio input device unavailable")

	// ErrNoAudioCaptured means a recording stopped with no chunks, or with a
	// payload too short to contain speech. Detected before any network call.
	ErrNoAudioCaptured = errors.New("no audio captured")

	// ErrEmptyAudioBuffer means the encoder was handed an empty chunk buffer.
	ErrEmptyAudioBuffer = errors.New("empty audio buffer")
)
