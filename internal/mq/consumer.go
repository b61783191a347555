package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrMalformed — сообщение не удалось разобрать.
// Такие сообщения отклоняются без возврата в очередь.
var ErrMalformed = errors.New("malformed message")

// Handler — функция обработки сообщения.
// Возвращает error, если обработка не удалась (сообщение будет nack).
type Handler func(ctx context.Context, msg *Delivery) error

// Delivery — доставленное сообщение.
type Delivery struct {
	// RoutingKey — ключ, с которым сообщение было опубликовано.
	RoutingKey string

	// MessageID — идентификатор сообщения из свойств AMQP.
	MessageID string

	// Body — сырое тело сообщения.
	Body []byte
}

// Decode разбирает тело сообщения в указанный тип.
func Decode[T any](d *Delivery) (T, error) {
	var result T
	if err := json.Unmarshal(d.Body, &result); err != nil {
		return result, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return result, nil
}

// Consumer потребляет сообщения из очереди RabbitMQ.
//
// Сообщения обрабатываются строго последовательно: следующее читается
// только после ack/nack предыдущего.
type Consumer struct {
	conn           *Connection
	logger         *slog.Logger
	queue          string
	handler        Handler
	prefetch       int
	requeueOnError bool

	cancelFunc context.CancelFunc
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue string

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch — количество сообщений для предварительной загрузки (default: 1).
	Prefetch int

	// RequeueOnError — возвращать ли сообщение в очередь при ошибке обработчика.
	// false — сообщение уходит в DLQ очереди.
	RequeueOnError bool
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		conn:           conn,
		logger:         logger,
		queue:          cfg.Queue,
		handler:        cfg.Handler,
		prefetch:       prefetch,
		requeueOnError: cfg.RequeueOnError,
	}
}

// Start запускает потребление сообщений. Блокирует до отмены ctx.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	return c.consume(ctx)
}

// consume — основной цикл потребления.
func (c *Consumer) consume(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		reconnected := c.conn.ReconnectNotify()

		ch, deliveries, err := c.setupConsume()
		if err != nil {
			c.logger.Error("failed to setup consume", "queue", c.queue, "error", err)
			// Ждём переподключения
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-reconnected:
				c.logger.Info("reconnected, restarting consumer", "queue", c.queue)
				continue
			}
		}

		c.logger.Info("consumer started", "queue", c.queue)

		err = c.processDeliveries(ctx, deliveries)
		ch.Close()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, reconnecting", "queue", c.queue)
			if c.conn.IsConnected() {
				// Закрыт только канал consumer, соединение живо
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Second):
					continue
				}
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-reconnected:
				c.logger.Info("reconnected, restarting consumer", "queue", c.queue)
				continue
			}
		}
	}
}

// setupConsume открывает канал и начинает потребление.
func (c *Consumer) setupConsume() (*amqp.Channel, <-chan amqp.Delivery, error) {
	ch, err := c.conn.OpenChannel()
	if err != nil {
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		c.queue, // queue
		"",      // consumer tag (auto-generated)
		false,   // auto-ack (мы ack вручную)
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("consume: %w", err)
	}

	return ch, deliveries, nil
}

// processDeliveries обрабатывает сообщения из канала по одному.
func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}

			c.handleDelivery(ctx, raw)
		}
	}
}

// handleDelivery обрабатывает одно сообщение.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	delivery := &Delivery{
		RoutingKey: raw.RoutingKey,
		MessageID:  raw.MessageId,
		Body:       raw.Body,
	}

	c.logger.Debug("received message",
		"queue", c.queue,
		"routing_key", raw.RoutingKey,
		"message_id", raw.MessageId,
	)

	err := c.handler(ctx, delivery)
	if err == nil {
		raw.Ack(false)
		return
	}

	// При остановке consumer сообщение возвращается в очередь, а не в DLQ
	requeue := (c.requeueOnError || ctx.Err() != nil) && !errors.Is(err, ErrMalformed)

	c.logger.Error("handler failed",
		"queue", c.queue,
		"routing_key", raw.RoutingKey,
		"message_id", raw.MessageId,
		"requeue", requeue,
		"error", err,
	)

	// Некорректное сообщение или отказ без retry — в DLQ
	raw.Nack(false, requeue)
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}
