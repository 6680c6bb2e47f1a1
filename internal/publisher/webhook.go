package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/barkwatch/barkwatch/internal/conf"
	"github.com/barkwatch/barkwatch/internal/errors"
	"github.com/barkwatch/barkwatch/internal/event"
)

// webhookSink POSTs the event wire payload to an HTTP endpoint. When an
// event type is configured the payload is wrapped in a trigger envelope
// so hook services that multiplex on event_type can route it.
type webhookSink struct {
	settings *conf.WebhookSettings
	client   *http.Client
	log      *slog.Logger
}

type webhookEnvelope struct {
	EventType string          `json:"event_type"`
	Secret    string          `json:"secret,omitempty"`
	Data      json.RawMessage `json:"data"`
}

func newWebhookSink(settings *conf.WebhookSettings, log *slog.Logger) *webhookSink {
	return &webhookSink{
		settings: settings,
		client:   &http.Client{Timeout: settings.Timeout},
		log:      log,
	}
}

func (s *webhookSink) Name() string { return "webhook" }

func (s *webhookSink) Deliver(ctx context.Context, e *event.BarkEvent) error {
	payload, err := e.WirePayload()
	if err != nil {
		return errors.New(err).
			Component("publisher").
			Category(errors.CategoryPublish).
			Context("event_id", e.ID).
			Build()
	}

	body := payload
	if s.settings.EventType != "" {
		body, err = json.Marshal(webhookEnvelope{
			EventType: s.settings.EventType,
			Secret:    s.settings.Secret,
			Data:      payload,
		})
		if err != nil {
			return errors.New(err).
				Component("publisher").
				Category(errors.CategoryPublish).
				Build()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.settings.URL, bytes.NewReader(body))
	if err != nil {
		return errors.New(err).
			Component("publisher").
			Category(errors.CategoryPublish).
			Context("url", s.settings.URL).
			Build()
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.New(err).
			Component("publisher").
			Category(errors.CategoryPublish).
			Context("url", s.settings.URL).
			Build()
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return errors.Newf("webhook returned status %d", resp.StatusCode).
			Component("publisher").
			Category(errors.CategoryPublish).
			Context("url", s.settings.URL).
			Build()
	}
	return nil
}

func (s *webhookSink) Close() {
	s.client.CloseIdleConnections()
}
