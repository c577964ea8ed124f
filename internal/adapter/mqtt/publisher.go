// Package mqtt publishes per-second vibration results to an MQTT broker,
// one message per analysed file.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/vibration-severity-etl/internal/config"
	"github.com/couchcryptid/vibration-severity-etl/internal/domain"
	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	qosAtLeastOnce = 1
	connectTimeout = 10 * time.Second
	publishTimeout = 10 * time.Second
)

// client is the part of paho.Client the publisher uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Publisher implements pipeline.Publisher over MQTT.
type Publisher struct {
	client client
	prefix string
	logger *slog.Logger
}

// FilePayload is the message body published for one file.
type FilePayload struct {
	FileName string                 `json:"file_name"`
	Results  []domain.ResultMessage `json:"results"`
}

// Connect dials the configured broker and returns a Publisher.
func Connect(cfg *config.Config, logger *slog.Logger) (*Publisher, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.MQTTBroker)
	opts.SetClientID(cfg.MQTTClientID)
	if cfg.MQTTUsername != "" {
		opts.SetUsername(cfg.MQTTUsername)
		opts.SetPassword(cfg.MQTTPassword)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logger.Warn("mqtt connection lost, reconnecting", "broker", cfg.MQTTBroker, "error", err)
	}

	c := paho.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timeout", cfg.MQTTBroker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.MQTTBroker, err)
	}
	logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "client_id", cfg.MQTTClientID)
	return newPublisher(c, cfg.MQTTTopicPrefix, logger), nil
}

func newPublisher(c client, prefix string, logger *slog.Logger) *Publisher {
	return &Publisher{client: c, prefix: strings.TrimRight(prefix, "/"), logger: logger}
}

// Name identifies the sink in logs and metrics.
func (p *Publisher) Name() string { return "mqtt" }

// Publish sends all results of a file as one QoS 1 message on
// <prefix>/<file stem>.
func (p *Publisher) Publish(ctx context.Context, fileName string, results []domain.ResultRecord) error {
	payload, err := encodePayload(fileName, results)
	if err != nil {
		return err
	}
	topic := p.Topic(fileName)
	token := p.client.Publish(topic, qosAtLeastOnce, false, payload)

	deadline := publishTimeout
	if d, ok := ctx.Deadline(); ok {
		deadline = min(deadline, time.Until(d))
	}
	if !token.WaitTimeout(deadline) {
		return fmt.Errorf("mqtt publish to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s: %w", topic, err)
	}
	p.logger.Debug("results published", "sink", p.Name(), "topic", topic, "results", len(results))
	return nil
}

// Topic returns the topic a file's results are published on.
func (p *Publisher) Topic(fileName string) string {
	stem := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	stem = strings.NewReplacer("+", "_", "#", "_", "/", "_").Replace(stem)
	return p.prefix + "/" + stem
}

// Close disconnects, letting in-flight work finish for up to 250 ms.
func (p *Publisher) Close() error {
	if p.client == nil {
		return errors.New("mqtt publisher not connected")
	}
	p.client.Disconnect(250)
	return nil
}

func encodePayload(fileName string, results []domain.ResultRecord) ([]byte, error) {
	body := FilePayload{FileName: fileName, Results: make([]domain.ResultMessage, len(results))}
	for i, r := range results {
		body.Results[i] = domain.NewResultMessage(r)
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode mqtt payload: %w", err)
	}
	return data, nil
}
