package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseHandler(t *testing.T, lines []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream, "stream flag must be set")

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n", line)
			flusher.Flush()
		}
	}
}

func deltaLine(content string) string {
	return fmt.Sprintf(`data: {"choices":[{"delta":{"content":%q}}]}`, content)
}

func TestStreamConcatenatesDeltasInOrder(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		deltaLine("He"),
		deltaLine("llo"),
		"data: [DONE]",
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "test-model")

	var deltas []string
	got, err := c.Stream(context.Background(), []Turn{{Role: "user", Content: "hi"}}, func(d string) {
		deltas = append(deltas, d)
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello", got)
	assert.Equal(t, []string{"He", "llo"}, deltas, "deltas delivered in receipt order")
}

func TestStreamSkipsMalformedLines(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		deltaLine("He"),
		`data: {"choices":[{`, // truncated JSON mid-stream
		"not an event line at all",
		deltaLine("llo"),
		"data: [DONE]",
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "test-model")

	got, err := c.Stream(context.Background(), nil, nil)
	require.NoError(t, err, "one bad chunk must not abort the stream")
	assert.Equal(t, "Hello", got, "valid lines after a malformed one still apply")
}

func TestStreamCloseWithoutSentinelFinalizes(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		deltaLine("partial"),
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "test-model")

	got, err := c.Stream(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "partial", got)
}

func TestStreamUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, "rate limited")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "test-model")

	_, err := c.Stream(context.Background(), nil, nil)

	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, http.StatusTooManyRequests, upstreamErr.Status)
	assert.Equal(t, "rate limited", upstreamErr.Body)
}

func TestStreamInterruptedKeepsPartial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "%s\n", deltaLine("cut "))
		w.(http.Flusher).Flush()

		// Drop the connection mid-stream without a terminating chunk.
		conn, _, err := w.(http.Hijacker).Hijack()
		require.NoError(t, err)
		conn.Close()
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "test-model")

	got, err := c.Stream(context.Background(), nil, nil)
	require.ErrorIs(t, err, ErrStreamInterrupted)
	assert.Equal(t, "cut ", got, "partial content is finalized as-is")
}

func TestStreamRejectsConcurrentStream(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "%s\n", deltaLine("slow"))
		w.(http.Flusher).Flush()
		<-release
		fmt.Fprint(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "test-model")

	firstStarted := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		got, err := c.Stream(context.Background(), nil, func(string) {
			select {
			case <-firstStarted:
			default:
				close(firstStarted)
			}
		})
		assert.NoError(t, err)
		assert.Equal(t, "slow", got, "rejected second call must not corrupt the open stream")
	}()

	select {
	case <-firstStarted:
	case <-time.After(5 * time.Second):
		t.Fatal("first stream never started")
	}

	_, err := c.Stream(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrStreamActive)

	close(release)
	wg.Wait()
}

func TestCompleteNonStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"full reply"}}]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "test-model")

	got, err := c.Complete(context.Background(), []Turn{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "full reply", got)
}
