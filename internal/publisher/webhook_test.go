package publisher

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barkwatch/barkwatch/internal/conf"
	"github.com/barkwatch/barkwatch/internal/event"
)

func webhookTestSink(t *testing.T, settings *conf.WebhookSettings) *webhookSink {
	t.Helper()
	s := newWebhookSink(settings, slog.New(slog.NewTextHandler(io.Discard, nil)))
	httpmock.ActivateNonDefault(s.client)
	t.Cleanup(httpmock.DeactivateAndReset)
	return s
}

func TestWebhookPostsWirePayload(t *testing.T) {
	s := webhookTestSink(t, &conf.WebhookSettings{
		URL:     "http://hooks.local/bark",
		Timeout: time.Second,
	})

	var got map[string]any
	httpmock.RegisterResponder(http.MethodPost, "http://hooks.local/bark",
		func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "application/json", req.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(req.Body).Decode(&got))
			return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
		})

	ts := time.Date(2025, 6, 1, 12, 0, 5, 0, time.UTC)
	e := event.New(0.87, ts, "test-mic", event.SourceML)
	e.CapturePath = "/clips/20250601_120005_test-mic.wav"

	require.NoError(t, s.Deliver(context.Background(), e))

	assert.Equal(t, conf.EventType, got["event"])
	assert.InDelta(t, 0.87, got["score"], 1e-9)
	assert.Equal(t, float64(ts.Unix()), got["ts"])
	assert.Equal(t, "test-mic", got["device_id"])
	assert.Equal(t, event.SourceML, got["detector"])
	assert.Equal(t, "/clips/20250601_120005_test-mic.wav", got["capture_path"])
}

func TestWebhookNullCapturePath(t *testing.T) {
	s := webhookTestSink(t, &conf.WebhookSettings{
		URL:     "http://hooks.local/bark",
		Timeout: time.Second,
	})

	var got map[string]any
	httpmock.RegisterResponder(http.MethodPost, "http://hooks.local/bark",
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, json.NewDecoder(req.Body).Decode(&got))
			return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
		})

	e := event.New(0.6, time.Now(), "test-mic", event.SourceHeuristic)
	require.NoError(t, s.Deliver(context.Background(), e))

	val, present := got["capture_path"]
	assert.True(t, present)
	assert.Nil(t, val)
}

func TestWebhookTriggerEnvelope(t *testing.T) {
	s := webhookTestSink(t, &conf.WebhookSettings{
		URL:       "http://hooks.local/trigger",
		Timeout:   time.Second,
		EventType: "dog_bark",
		Secret:    "hunter2",
	})

	var got map[string]any
	httpmock.RegisterResponder(http.MethodPost, "http://hooks.local/trigger",
		func(req *http.Request) (*http.Response, error) {
			require.NoError(t, json.NewDecoder(req.Body).Decode(&got))
			return httpmock.NewStringResponse(http.StatusOK, "ok"), nil
		})

	e := event.New(0.7, time.Now(), "test-mic", event.SourceML)
	require.NoError(t, s.Deliver(context.Background(), e))

	assert.Equal(t, "dog_bark", got["event_type"])
	assert.Equal(t, "hunter2", got["secret"])
	data, ok := got["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "test-mic", data["device_id"])
}

func TestWebhookServerErrorIsReported(t *testing.T) {
	s := webhookTestSink(t, &conf.WebhookSettings{
		URL:     "http://hooks.local/bark",
		Timeout: time.Second,
	})

	httpmock.RegisterResponder(http.MethodPost, "http://hooks.local/bark",
		httpmock.NewStringResponder(http.StatusInternalServerError, "boom"))

	e := event.New(0.7, time.Now(), "test-mic", event.SourceML)
	err := s.Deliver(context.Background(), e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}
