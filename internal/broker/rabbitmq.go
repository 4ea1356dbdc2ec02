// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/MKhiriev/go-catalog-sync/internal/config"
	"github.com/MKhiriev/go-catalog-sync/internal/logger"
	"github.com/MKhiriev/go-catalog-sync/models"
	"github.com/MKhiriev/go-catalog-sync/pkg/metrics"
)

const (
	defaultExchange = "catalog.sync"
	confirmTimeout  = 10 * time.Second
)

var (
	ErrBrokerClosed = errors.New("broker connection is closed")
	ErrNack         = errors.New("broker did not confirm the event")
)

// RabbitMQPublisher publishes events with publisher confirms.
type RabbitMQPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string

	healthy   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	logger *logger.Logger
}

// NewRabbitMQPublisher connects, declares the topic exchange and enables
// confirms.
func NewRabbitMQPublisher(cfg config.Broker, log *logger.Logger) (*RabbitMQPublisher, error) {
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = defaultExchange
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open broker channel: %w", err)
	}

	if err = ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}

	if err = ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	p := &RabbitMQPublisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		done:     make(chan struct{}),
		logger:   log,
	}
	p.healthy.Store(true)

	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chanClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
	go p.watch(connClosed, chanClosed)

	log.Info().Str("func", "NewRabbitMQPublisher").Str("exchange", exchange).Msg("connected to broker")
	return p, nil
}

func (p *RabbitMQPublisher) watch(connClosed, chanClosed <-chan *amqp.Error) {
	select {
	case err := <-connClosed:
		p.healthy.Store(false)
		p.logger.Warn().Err(err).Str("func", "RabbitMQPublisher.watch").Msg("broker connection closed")
	case err := <-chanClosed:
		p.healthy.Store(false)
		p.logger.Warn().Err(err).Str("func", "RabbitMQPublisher.watch").Msg("broker channel closed")
	case <-p.done:
	}
}

// Publish sends event and blocks until the broker confirms it.
func (p *RabbitMQPublisher) Publish(ctx context.Context, event models.SyncEvent) error {
	key := event.RoutingKey()
	err := p.publish(ctx, key, event)
	observe(key, err)
	return err
}

func (p *RabbitMQPublisher) publish(ctx context.Context, key string, event models.SyncEvent) error {
	if !p.healthy.Load() {
		return ErrBrokerClosed
	}

	msg, err := encode(event)
	if err != nil {
		return err
	}

	deferred, err := p.channel.PublishWithDeferredConfirmWithContext(ctx, p.exchange, key, false, false, msg)
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-deferred.Done():
		if !deferred.Acked() {
			return fmt.Errorf("%w: %s", ErrNack, key)
		}
		return nil
	case <-time.After(confirmTimeout):
		return fmt.Errorf("%w: confirm timeout for %s", ErrNack, key)
	}
}

// Healthy reports whether the connection and channel are open.
func (p *RabbitMQPublisher) Healthy() bool {
	return p.healthy.Load()
}

func (p *RabbitMQPublisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		p.healthy.Store(false)
		err = errors.Join(p.channel.Close(), p.conn.Close())
	})
	return err
}

func encode(event models.SyncEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode %s event: %w", event.Type, err)
	}

	headers := amqp.Table{"event_type": string(event.Type)}
	if event.BatchID != "" {
		headers["batch_id"] = event.BatchID
	}
	return amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ChangeID,
		Timestamp:    event.OccurredAt,
		Type:         string(event.Type),
		Body:         body,
	}, nil
}

func observe(key string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.EventsPublished.WithLabelValues(key, result).Inc()
}
