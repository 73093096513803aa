package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"

	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/capture"
	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/chat"
	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/config"
	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/conversation"
	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/domain"
	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/logger"
	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/recognition"
	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/scroll"
	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/services"
	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/terminal"
	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/workers"
)

type Config struct {
	ChatAPIBaseURL string `env:"CHAT_API_BASE_URL" envDefault:"https://pink-chat-api.deno.dev/v1"`
	ChatAPIKey     string `env:"CHAT_API_KEY,required"`
	ChatModel      string `env:"CHAT_MODEL" envDefault:"gemini-2.0-pro-exp-02-05"`
	ChatStream     bool   `env:"CHAT_STREAM" envDefault:"true"`

	SpeechAPIURL   string `env:"SPEECH_API_URL" envDefault:"https://vop.baidu.com/server_api"`
	SpeechTokenURL string `env:"SPEECH_TOKEN_URL" envDefault:"https://aip.baidubce.com/oauth/2.0/token"`
	SpeechAPIKey   string `env:"SPEECH_API_KEY,required"`
	SpeechSecret   string `env:"SPEECH_SECRET_KEY,required"`
	SpeechCuid     string `env:"SPEECH_CUID" envDefault:"xiaohan_voice_chat"`

	AudioDevice  string `env:"AUDIO_DEVICE" envDefault:"default"`
	TunablesPath string `env:"TUNABLES_PATH" envDefault:"tunables.toml"`
}

func main() {
	slog.SetDefault(slog.New(logger.NewHandler(os.Stderr, logger.DefaultOptions)))

	if err := runMain(); err != nil {
		slog.Error("shutting down due to error", logger.Err(err))
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

func runMain() error {
	workerGroup, err := setupWorkers()
	if err != nil {
		return err
	}

	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGHUP)
		select {
		case s := <-sigCh:
			slog.Info("shutting down due to signal", "signal", s.String())
			cancelFn()
		case <-ctx.Done():
		}
	}()

	return workerGroup.Start(ctx)
}

func setupWorkers() (workers.Group, error) {
	_ = godotenv.Load()

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing env config: %w", err)
	}

	tunables, err := config.LoadTunables(cfg.TunablesPath)
	if err != nil {
		return nil, fmt.Errorf("loading tunables: %w", err)
	}

	resources := conversation.NewResources()
	store := conversation.NewStore(resources)

	recorder := capture.NewFFmpegRecorder(cfg.AudioDevice, tunables.ChunkInterval.Duration)
	audioCapture := capture.New(recorder, tunables.FlushTimeout.Duration, tunables.MinAudioBytes)

	tokens := recognition.NewTokenProvider(cfg.SpeechTokenURL, cfg.SpeechAPIKey, cfg.SpeechSecret)
	recognizer := recognition.NewClient(cfg.SpeechAPIURL, cfg.SpeechCuid, tokens)

	chatClient := chat.NewClient(cfg.ChatAPIBaseURL, cfg.ChatAPIKey, cfg.ChatModel)

	player := capture.NewFFplayPlayer()

	responseCh := make(chan domain.Response)

	textService := services.NewTextService(chatClient, store, cfg.ChatStream, responseCh)
	voiceService := services.NewVoiceService(audioCapture, recognizer, player, textService, store, resources, responseCh)
	chatService := services.NewChatService(store, responseCh)

	scrollCtl := scroll.NewController(tunables.BottomThreshold)
	renderer := terminal.NewRenderer(os.Stdout, tunables.TypingInterval.Duration, scrollCtl)

	listener, err := workers.NewTerminalListener(
		os.Stdin,
		renderer,
		voiceService,
		textService,
		chatService,
		responseCh,
	)
	if err != nil {
		return nil, err
	}

	return workers.Group{
		listener,
		workers.NewResponsePump(renderer, responseCh),
	}, nil
}
