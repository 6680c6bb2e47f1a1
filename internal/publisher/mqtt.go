package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/barkwatch/barkwatch/internal/conf"
	"github.com/barkwatch/barkwatch/internal/errors"
	"github.com/barkwatch/barkwatch/internal/event"
)

const (
	mqttConnectTimeout    = 30 * time.Second
	mqttPublishTimeout    = 10 * time.Second
	mqttReconnectCooldown = 5 * time.Second
)

// mqttSink publishes events to an MQTT broker over a persistent
// connection. The paho client handles reconnection; Deliver reports an
// error while disconnected so the publisher's backoff takes over.
type mqttSink struct {
	settings        *conf.MQTTSettings
	client          mqtt.Client
	mu              sync.Mutex
	lastConnAttempt time.Time
	log             *slog.Logger
}

func newMQTTSink(settings *conf.MQTTSettings, log *slog.Logger) *mqttSink {
	s := &mqttSink{settings: settings, log: log}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(settings.Broker)
	opts.SetClientID(settings.ClientID)
	opts.SetUsername(settings.Username)
	opts.SetPassword(settings.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info("connected to MQTT broker", "broker", settings.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("MQTT connection lost", "broker", settings.Broker, "error", err)
	})

	s.client = mqtt.NewClient(opts)
	return s
}

func (s *mqttSink) Name() string { return "mqtt" }

// connect establishes the broker connection, rate-limited so a flapping
// broker is not hammered between delivery retries.
func (s *mqttSink) connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client.IsConnected() {
		return nil
	}
	if since := time.Since(s.lastConnAttempt); since < mqttReconnectCooldown {
		return errors.Newf("connection attempt too recent, last attempt was %v ago", since).
			Component("publisher").
			Category(errors.CategoryPublish).
			Build()
	}
	s.lastConnAttempt = time.Now()

	token := s.client.Connect()
	timeout := mqttConnectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}
	if !token.WaitTimeout(timeout) {
		return errors.Newf("MQTT connection timeout").
			Component("publisher").
			Category(errors.CategoryPublish).
			Context("broker", s.settings.Broker).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("publisher").
			Category(errors.CategoryPublish).
			Context("broker", s.settings.Broker).
			Build()
	}
	return nil
}

func (s *mqttSink) Deliver(ctx context.Context, e *event.BarkEvent) error {
	if err := s.connect(ctx); err != nil {
		return err
	}

	payload, err := e.WirePayload()
	if err != nil {
		return errors.New(err).
			Component("publisher").
			Category(errors.CategoryPublish).
			Context("event_id", e.ID).
			Build()
	}

	token := s.client.Publish(s.settings.Topic, 0, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return errors.Newf("MQTT publish timeout").
			Component("publisher").
			Category(errors.CategoryPublish).
			Context("topic", s.settings.Topic).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("publisher").
			Category(errors.CategoryPublish).
			Context("topic", s.settings.Topic).
			Build()
	}
	return nil
}

func (s *mqttSink) Close() {
	if s.client.IsConnected() {
		s.client.Disconnect(250)
	}
}
