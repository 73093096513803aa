package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/capture"
	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/conversation"
	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/domain"
	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/logger"
	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/recognition"
)

const (
	voiceTempFilePerm = 0644
	voiceTempDir      = "tmp/voices"

	recordingNotice   = "🎙 正在录音… 输入 /stop 结束"
	recognizingNotice = "⏳ 正在识别…"
	playingNotice     = "▶️ 正在回放语音…"

	permissionGuide   = "麦克风权限被拒绝。请在系统设置中允许本应用访问麦克风，然后重试。"
	noDeviceNotice    = "没有找到可用的麦克风设备，请检查录音设备后重试。"
	tooShortNotice    = "没有录到声音，或录音太短，请重新录音。"
	networkNotice     = "网络异常，请检查网络后重新录音。"
	noUtteranceNotice = "还没有可以回放的语音消息。"
	playFailedNotice  = "语音回放失败，请稍后重试。"
)

type AudioCapture interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) ([][]byte, string, error)
	Finish()
}

type Transcriber interface {
	Recognize(ctx context.Context, audioBase64, format string, length int) (string, error)
}

type AudioPlayer interface {
	Play(ctx context.Context, path string) error
}

type voiceService struct {
	capture     AudioCapture
	transcriber Transcriber
	player      AudioPlayer
	textService *textService
	store       *conversation.Store
	resources   *conversation.Resources
	responseCh  chan<- domain.Response
}

func NewVoiceService(
	capture AudioCapture,
	transcriber Transcriber,
	player AudioPlayer,
	textService *textService,
	store *conversation.Store,
	resources *conversation.Resources,
	responseCh chan<- domain.Response,
) *voiceService {
	return &voiceService{
		capture:     capture,
		transcriber: transcriber,
		player:      player,
		textService: textService,
		store:       store,
		resources:   resources,
		responseCh:  responseCh,
	}
}

// StartRecording acquires the microphone and begins accumulating audio.
// Failures are recoverable: the user is guided and the pipeline stays idle.
// The recording notice is emitted only once the device is actually held.
func (v *voiceService) StartRecording(ctx context.Context) {
	if v.store.IsBusy() {
		v.responseCh <- domain.Response{Text: busyNotice}
		return
	}

	if err := v.capture.Start(ctx); err != nil {
		v.store.SetRecordingStatus(domain.RecordingIdle)
		switch {
		case errors.Is(err, domain.ErrPermissionDenied):
			v.responseCh <- domain.Response{Err: err, Text: permissionGuide}
		case errors.Is(err, domain.ErrDeviceUnavailable):
			v.responseCh <- domain.Response{Err: err, Text: noDeviceNotice}
		default:
			v.responseCh <- domain.Response{Err: fmt.Errorf("starting recording: %w", err)}
		}
		return
	}

	v.store.SetRecordingStatus(domain.RecordingActive)
	slog.InfoContext(ctx, "Recording started")
	v.responseCh <- domain.Response{Text: recordingNotice}
}

// StopAndSend stops the recording and runs the captured audio through the
// pipeline: encode, recognize, append the transcript as the user's message
// and stream the reply. Every failure resolves back to idle.
func (v *voiceService) StopAndSend(ctx context.Context) {
	defer func() {
		v.capture.Finish()
		v.store.SetRecordingStatus(domain.RecordingIdle)
	}()

	chunks, mimeType, err := v.capture.Stop(ctx)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNoAudioCaptured):
			v.responseCh <- domain.Response{Text: tooShortNotice}
		case errors.Is(err, domain.ErrPermissionDenied):
			v.responseCh <- domain.Response{Err: err, Text: permissionGuide}
		case errors.Is(err, domain.ErrDeviceUnavailable):
			v.responseCh <- domain.Response{Err: err, Text: noDeviceNotice}
		default:
			v.responseCh <- domain.Response{Err: fmt.Errorf("stopping recording: %w", err)}
		}
		return
	}

	v.store.SetRecordingStatus(domain.RecordingProcessing)
	v.responseCh <- domain.Response{Text: recognizingNotice}

	enc, err := capture.Encode(chunks, mimeType)
	if err != nil {
		v.responseCh <- domain.Response{Err: fmt.Errorf("encoding audio: %w", err), Text: tooShortNotice}
		return
	}

	slog.InfoContext(ctx, "Audio encoded", "format", enc.Format, "bytes", enc.Len)

	text, err := v.transcriber.Recognize(ctx, enc.Base64, enc.Format, enc.Len)
	if err != nil {
		var apiErr *recognition.APIError
		if errors.As(err, &apiErr) {
			v.responseCh <- domain.Response{Err: err, Text: apiErr.Remediation()}
			return
		}
		v.responseCh <- domain.Response{Err: fmt.Errorf("recognizing speech: %w", err), Text: networkNotice}
		return
	}

	userMsg := domain.NewMessage(domain.RoleUser, text)
	v.keepUtterance(&userMsg, chunks)

	v.responseCh <- domain.Response{MessageID: userMsg.ID, Text: "🎤 " + text}

	// Processing flag drops before the send so the text pipeline accepts it.
	v.store.SetRecordingStatus(domain.RecordingIdle)
	v.capture.Finish()

	v.textService.Generate(ctx, userMsg)
}

// PlayLastUtterance replays the newest voice message still holding its audio.
func (v *voiceService) PlayLastUtterance(ctx context.Context) {
	msgs := v.store.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].AudioRef == "" {
			continue
		}
		path, ok := v.resources.Path(msgs[i].AudioRef)
		if !ok {
			break
		}

		v.responseCh <- domain.Response{MessageID: msgs[i].ID, Text: playingNotice}
		if err := v.player.Play(ctx, path); err != nil {
			v.responseCh <- domain.Response{Err: fmt.Errorf("playing utterance: %w", err), Text: playFailedNotice}
		}
		return
	}

	v.responseCh <- domain.Response{Text: noUtteranceNotice}
}

// keepUtterance stores the recorded audio so the user's own message can be
// played back, owned by the resource manager until the conversation clears.
func (v *voiceService) keepUtterance(userMsg *domain.Message, chunks [][]byte) {
	if err := os.MkdirAll(voiceTempDir, os.ModePerm); err != nil {
		slog.Warn("Creating voice temp directory", logger.Err(err))
		return
	}

	path := filepath.Join(voiceTempDir, fmt.Sprintf("voice-%d.pcm", time.Now().UnixNano()))

	var raw []byte
	for _, chunk := range chunks {
		raw = append(raw, chunk...)
	}
	if err := os.WriteFile(path, raw, voiceTempFilePerm); err != nil {
		slog.Warn("Saving voice file", logger.Err(err))
		return
	}

	userMsg.AudioRef = userMsg.ID
	v.resources.Put(userMsg.ID, conversation.NewFileHandle(path))
}
