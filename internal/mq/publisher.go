package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Conductor/internal/domain"
)

// StepStartPayload — тело уведомления о старте шага.
type StepStartPayload struct {
	PipelineID string `json:"pipelineId"`
	Step       string `json:"step"`
}

// StepDonePayload — тело уведомления о завершении шага.
type StepDonePayload = domain.StepCompletedEvent

// Publisher публикует уведомления о шагах в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish публикует JSON body в exchange с routing key.
//
// Публикация fire-and-forget: успех означает только то, что брокер
// принял сообщение, а не то, что его кто-то обработает.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	msgID := uuid.New().String()

	return p.conn.WithChannel(func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,              // mandatory
			false,              // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    msgID,
				Timestamp:    time.Now(),
				Body:         data,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msgID,
		)

		return nil
	})
}

// PublishStepStart публикует уведомление pipeline.<step>.start.
// Потребитель: воркер шага.
func (p *Publisher) PublishStepStart(ctx context.Context, pipelineID, step string) error {
	payload := StepStartPayload{PipelineID: pipelineID, Step: step}
	return p.Publish(ctx, ExchangePipeline, StepStartKey(step), payload)
}

// PublishStepDone публикует уведомление pipeline.<step>.done.
// Потребитель: Orchestrator.
func (p *Publisher) PublishStepDone(ctx context.Context, payload StepDonePayload) error {
	if !payload.Status.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidCompletionStatus, payload.Status)
	}
	return p.Publish(ctx, ExchangePipeline, StepDoneKey(payload.Step), payload)
}
