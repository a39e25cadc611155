package flaskcompat

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestFlaskCompatVideoFeed(t *testing.T) {
	client := newEmotionClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp := client.getStream(t, ctx, "/video_feed")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /video_feed status = %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "multipart/x-mixed-replace") ||
		!strings.Contains(contentType, "boundary=frame") {
		t.Fatalf("GET /video_feed content-type = %q", contentType)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err == io.EOF {
		t.Skip("camera produced no frames")
	}
	if err != nil {
		t.Fatalf("read part boundary: %v", err)
	}
	if line != "--frame\r\n" {
		t.Fatalf("part boundary = %q", line)
	}
	line, err = reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read part header: %v", err)
	}
	if line != "Content-Type: image/jpeg\r\n" {
		t.Fatalf("part header = %q", line)
	}
}

func TestFlaskCompatEmotionStream(t *testing.T) {
	client := newEmotionClient(t)
	event, headers, err := readSSEEvent(client.baseURL+"/emotion/stream", 3*time.Second)
	if err != nil {
		t.Skipf("emotion stream unavailable: %v", err)
	}
	if !strings.Contains(headers.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("emotion stream content-type = %q", headers.Get("Content-Type"))
	}
	payload := parseSSEData(t, event)
	requireOneOf(t, requireString(t, payload["emotion"], "emotion"), "emotion", emotionLabels...)
	requireNumber(t, payload["version"], "version")
	requireString(t, payload["timestamp"], "timestamp")
}
