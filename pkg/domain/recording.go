package domain

type RecordingStatus string

const (
	RecordingIdle       RecordingStatus = "idle"
	RecordingActive     RecordingStatus = "recording"
	RecordingProcessing RecordingStatus = "processing"
)
