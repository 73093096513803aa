package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	recognizeRate    = 16000
	recognizeChannel = 1
)

// TokenSource supplies a valid speech API access token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type client struct {
	endpoint string
	cuid     string
	tokens   TokenSource
	hc       *http.Client
}

func NewClient(endpoint, cuid string, tokens TokenSource) *client {
	return &client{
		endpoint: endpoint,
		cuid:     cuid,
		tokens:   tokens,
		hc:       &http.Client{Timeout: 30 * time.Second},
	}
}

type recognizeRequest struct {
	Format  string `json:"format"`
	Rate    int    `json:"rate"`
	Channel int    `json:"channel"`
	Cuid    string `json:"cuid"`
	Token   string `json:"token"`
	Speech  string `json:"speech"`
	Len     int    `json:"len"`
}

type recognizeResponse struct {
	ErrNo  int      `json:"err_no"`
	ErrMsg string   `json:"err_msg"`
	Result []string `json:"result"`
}

// APIError is a well-formed non-zero recognition status. It is distinct from
// a transport failure: the caller gets a code-specific remediation instead of
// a generic retry hint.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("recognition failed with code %d: %s", e.Code, e.Message)
}

// Remediation returns the user-facing hint for the error code.
func (e *APIError) Remediation() string {
	switch e.Code {
	case 3301:
		return "语音质量太差，请在安静环境下重新录音"
	case 3302:
		return "语音服务鉴权失败，请检查 API 密钥配置"
	case 3303:
		return "无法识别语音内容，请重新录音"
	case 3304:
		return "音频格式不支持，请检查录音设置"
	case 3305:
		return "音频数据过大，请缩短录音时长"
	default:
		return "语音识别失败，请稍后重试"
	}
}

// Recognize sends one base64-encoded recording to the speech endpoint and
// returns the authoritative (first) transcript candidate.
func (c *client) Recognize(ctx context.Context, audioBase64, format string, length int) (string, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("acquiring access token: %w", err)
	}

	reqBody := recognizeRequest{
		Format:  format,
		Rate:    recognizeRate,
		Channel: recognizeChannel,
		Cuid:    c.cuid,
		Token:   token,
		Speech:  audioBase64,
		Len:     length,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling recognize request: %w", err)
	}

	slog.InfoContext(ctx, "Sending recognition request", "format", format, "len", length)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status code: %d, response: %s", resp.StatusCode, string(respBody))
	}

	var rr recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return "", fmt.Errorf("decoding recognize response: %w", err)
	}

	if rr.ErrNo != 0 {
		return "", &APIError{Code: rr.ErrNo, Message: rr.ErrMsg}
	}
	if len(rr.Result) == 0 {
		return "", fmt.Errorf("recognition succeeded but returned no candidates")
	}

	slog.DebugContext(ctx, "Recognition result", "text", rr.Result[0])

	return rr.Result[0], nil
}
