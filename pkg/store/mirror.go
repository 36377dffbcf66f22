// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/fxamacker/cbor/v2"
	"github.com/sirupsen/logrus"

	"github.com/pifarm/fieldlink/pkg/clock"
	"github.com/pifarm/fieldlink/pkg/config"
	"github.com/pifarm/fieldlink/pkg/linkproto"
)

const (
	mqttQoS            = 1
	mqttPublishTimeout = 5 * time.Second
	mqttDisconnectMs   = 250
)

// Publisher sends a payload to a topic
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// MQTTPublisher publishes through a connected paho client
type MQTTPublisher struct {
	client mqtt.Client
}

// ConnectMQTT connects to the broker, retrying with exponential backoff
func ConnectMQTT(ctx context.Context, cfg config.MQTTConfig, log logrus.FieldLogger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	retries := cfg.ConnectRetries
	if retries < 1 {
		retries = 1
	}

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.WithError(token.Error()).Warn("Failed to connect to MQTT broker")
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not connect to MQTT broker %s: %w", cfg.Broker, err)
	}

	log.WithField("broker", cfg.Broker).Info("Connected to MQTT broker")
	return &MQTTPublisher{client: client}, nil
}

func (p *MQTTPublisher) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, mqttQoS, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

func (p *MQTTPublisher) Close() error {
	if p.client.IsConnected() {
		p.client.Disconnect(mqttDisconnectMs)
	}
	return nil
}

// wateringMessage is the mirror payload for a watering event
type wateringMessage struct {
	User string    `cbor:"user"`
	Time time.Time `cbor:"timestamp"`
}

// Mirror forwards successful writes of a Backend to a Publisher as CBOR
// messages on <prefix>/<user>/<category>. Publish failures are logged and never
// fail the write.
type Mirror struct {
	Backend
	pub    Publisher
	prefix string
	clock  clock.Clock
	enc    cbor.EncMode
	log    logrus.FieldLogger
}

// NewMirror wraps b
func NewMirror(b Backend, pub Publisher, prefix string, clk clock.Clock, log logrus.FieldLogger) *Mirror {
	if clk == nil {
		clk = clock.System{}
	}
	enc, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		// static options
		panic(err)
	}
	return &Mirror{
		Backend: b,
		pub:     pub,
		prefix:  strings.TrimSuffix(prefix, "/"),
		clock:   clk,
		enc:     enc,
		log:     log,
	}
}

// topicSegment replaces characters that have meaning in MQTT topics
func topicSegment(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '/', '+', '#', 0:
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Topic returns the topic a record for user and stream is published on
func (m *Mirror) Topic(userID, stream string) string {
	return m.prefix + "/" + topicSegment(userID) + "/" + topicSegment(stream)
}

func (m *Mirror) publish(topic string, msg any) {
	payload, err := m.enc.Marshal(msg)
	if err != nil {
		m.log.WithError(err).Error("Failed to encode mirror message")
		return
	}
	if err := m.pub.Publish(topic, payload); err != nil {
		m.log.WithError(err).WithField("topic", topic).Warn("Mirror publish failed")
	}
}

func (m *Mirror) AppendReading(ctx context.Context, userID string, category linkproto.Category, value string) error {
	if err := m.Backend.AppendReading(ctx, userID, category, value); err != nil {
		return err
	}
	m.publish(m.Topic(userID, string(category)), Reading{
		User:     userID,
		Category: category,
		Value:    value,
		Time:     m.clock.Now(),
	})
	return nil
}

func (m *Mirror) MarkWatered(ctx context.Context, userID string) error {
	if err := m.Backend.MarkWatered(ctx, userID); err != nil {
		return err
	}
	m.publish(m.Topic(userID, "last_watered"), wateringMessage{
		User: userID,
		Time: m.clock.Now(),
	})
	return nil
}

func (m *Mirror) Close() error {
	err := m.Backend.Close()
	if c, ok := m.pub.(interface{ Close() error }); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
