// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package event

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	amqpPublishTimeout = 5 * time.Second
)

// AmqpForwarder is a network-backed Subscriber that forwards events to a
// durable RabbitMQ queue as persistent JSON messages. External indexers
// consume the queue instead of holding an in-process subscription.
type AmqpForwarder struct {
	url     string
	queue   string
	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.Mutex
	closed  bool
}

// amqpEnvelope is the wire shape of a forwarded event
type amqpEnvelope struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Data      any       `json:"data"`
}

// NewAmqpForwarder creates a forwarder for the given broker URL and queue
// name. The connection is established lazily on first delivery so that a
// slow or absent broker does not block node startup.
func NewAmqpForwarder(url string, queue string) *AmqpForwarder {
	return &AmqpForwarder{
		url:   url,
		queue: queue,
	}
}

// ensureChannel dials the broker and declares the queue if needed. Must be
// called with the mutex held.
func (a *AmqpForwarder) ensureChannel() error {
	if a.channel != nil && !a.conn.IsClosed() {
		return nil
	}
	conn, err := amqp.Dial(a.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}
	// Durable queue so messages survive broker restarts. Declaration is
	// idempotent.
	if _, err := channel.QueueDeclare(
		a.queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return fmt.Errorf("amqp queue declare: %w", err)
	}
	a.conn = conn
	a.channel = channel
	return nil
}

// Deliver implements the Subscriber interface
func (a *AmqpForwarder) Deliver(evt Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	if err := a.ensureChannel(); err != nil {
		return err
	}
	body, err := json.Marshal(amqpEnvelope{
		Type:      string(evt.Type),
		Timestamp: evt.Timestamp,
		Data:      evt.Data,
	})
	if err != nil {
		return fmt.Errorf("amqp marshal event: %w", err)
	}
	ctx, cancel := context.WithTimeout(
		context.Background(),
		amqpPublishTimeout,
	)
	defer cancel()
	return a.channel.PublishWithContext(
		ctx,
		"",      // exchange
		a.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    evt.Timestamp,
			Body:         body,
		},
	)
}

// Close implements the Subscriber interface
func (a *AmqpForwarder) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	if a.channel != nil {
		_ = a.channel.Close()
	}
	if a.conn != nil {
		_ = a.conn.Close()
	}
}
