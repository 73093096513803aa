package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	openai "github.com/sashabaranov/go-openai"

	"github.com/webwww123/xioahanbot2.0-yuyin/pkg/logger"
)

const (
	doneSentinel = "[DONE]"
	dataPrefix   = "data: "

	defaultTemperature = 0.7
	defaultMaxTokens   = 800
)

var (
	// ErrStreamActive rejects a second Stream while one is still open.
	// One assistant reply streams at a time; there is no queuing.
	ErrStreamActive = errors.New("another stream is already active")

	// ErrStreamInterrupted marks a mid-stream transport failure. The partial
	// content accumulated so far is returned alongside it and is final as-is;
	// there is no reconnect.
	ErrStreamInterrupted = errors.New("stream interrupted")
)

// UpstreamError is a non-2xx response from the completion endpoint before any
// streaming has begun.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.Status, e.Body)
}

type client struct {
	baseURL string
	token   string
	model   string
	hc      *http.Client
	api     *openai.Client

	streaming atomic.Bool
}

// NewClient speaks to an OpenAI-compatible chat completion endpoint rooted at
// baseURL (".../v1").
func NewClient(baseURL, token, model string) *client {
	cfg := openai.DefaultConfig(token)
	cfg.BaseURL = baseURL

	return &client{
		baseURL: baseURL,
		token:   token,
		model:   model,
		hc:      &http.Client{},
		api:     openai.NewClientWithConfig(cfg),
	}
}

// Stream requests a streamed completion for history and decodes the response
// body incrementally. Each delta is passed to onDelta in receipt order; the
// return value is the full concatenation. Individual malformed lines are
// skipped, never fatal. The stream ends on the [DONE] sentinel or body close;
// a mid-stream read failure returns the partial content wrapped in
// ErrStreamInterrupted.
func (c *client) Stream(ctx context.Context, history []Turn, onDelta func(delta string)) (string, error) {
	if !c.streaming.CompareAndSwap(false, true) {
		return "", ErrStreamActive
	}
	defer c.streaming.Store(false)

	reqBody := chatCompletionsRequest{
		Model:       c.model,
		Messages:    history,
		Stream:      true,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return "", &UpstreamError{Status: resp.StatusCode, Body: string(respBody)}
	}

	return c.consume(resp.Body, onDelta)
}

// consume reads the response body line by line. Each read is a suspension
// point: deltas reach the caller as they arrive, not after the stream closes.
func (c *client) consume(body io.Reader, onDelta func(delta string)) (string, error) {
	reader := bufio.NewReader(body)
	var content strings.Builder

	for {
		line, err := reader.ReadBytes('\n')

		if len(line) > 0 {
			if done := c.applyLine(line, &content, onDelta); done {
				return content.String(), nil
			}
		}

		if err == io.EOF {
			// Close without a sentinel still finalizes what arrived.
			return content.String(), nil
		}
		if err != nil {
			return content.String(), fmt.Errorf("%w: %v", ErrStreamInterrupted, err)
		}
	}
}

// applyLine decodes one line of the event stream. Reports whether the line
// was the end-of-stream sentinel.
func (c *client) applyLine(line []byte, content *strings.Builder, onDelta func(delta string)) bool {
	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return false
	}

	payload, ok := strings.CutPrefix(trimmed, dataPrefix)
	if !ok {
		slog.Debug("Skipping non-data stream line", "line", trimmed)
		return false
	}

	if payload == doneSentinel {
		return true
	}

	var chunk streamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		// One bad chunk must not abort an otherwise good stream.
		slog.Warn("Skipping malformed stream line", "payload", payload, logger.Err(err))
		return false
	}

	if len(chunk.Choices) == 0 {
		return false
	}

	if delta := chunk.Choices[0].Delta.Content; delta != "" {
		content.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}

	return false
}

// Complete is the non-streaming path against the same endpoint, used when
// streaming is disabled by configuration.
func (c *client) Complete(ctx context.Context, history []Turn) (string, error) {
	messages := make([]openai.ChatCompletionMessage, len(history))
	for i, turn := range history {
		messages[i] = openai.ChatCompletionMessage{Role: turn.Role, Content: turn.Content}
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("creating chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion response from API")
	}

	return resp.Choices[0].Message.Content, nil
}
