package mq

import (
	"fmt"
	"regexp"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangePipeline Exchange = "conductor.pipeline"
	ExchangeDLQ      Exchange = "conductor.dlq"
)

// Queues — имена очередей.
const (
	QueueStepsDone   Queue = "pipeline.steps.done"
	QueueDLQPipeline Queue = "dlq.pipeline"
)

// Routing keys.
const (
	// RoutingPatternStepDone — wildcard для завершения любого шага.
	RoutingPatternStepDone RoutingKey = "pipeline.*.done"

	RoutingKeyDLQPipeline RoutingKey = "pipeline"
)

// stepNamePattern — допустимые имена шагов. Имя шага становится сегментом
// routing key, поэтому точки и wildcard-символы запрещены.
var stepNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// ValidStepName проверяет, что имя шага можно использовать в routing key.
func ValidStepName(name string) bool {
	return stepNamePattern.MatchString(name)
}

// StepStartKey возвращает routing key уведомления о старте шага.
func StepStartKey(step string) RoutingKey {
	return RoutingKey("pipeline." + step + ".start")
}

// StepDoneKey возвращает routing key уведомления о завершении шага.
func StepDoneKey(step string) RoutingKey {
	return RoutingKey("pipeline." + step + ".done")
}

// StepStartQueue возвращает имя очереди воркера для шага.
func StepStartQueue(step string) Queue {
	return Queue("pipeline." + step + ".start")
}

// dlqArgs — аргументы очередей, отклонённые сообщения которых уходят в DLQ.
var dlqArgs = amqp.Table{
	"x-dead-letter-exchange":    string(ExchangeDLQ),
	"x-dead-letter-routing-key": string(RoutingKeyDLQPipeline),
}

// SetupTopology объявляет exchanges и очередь завершений для Orchestrator.
func SetupTopology(conn *Connection) error {
	return conn.WithChannel(func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}

		queues := []struct {
			name Queue
			args amqp.Table
		}{
			// pipeline.steps.done — события завершения, битые уходят в DLQ
			{QueueStepsDone, dlqArgs},

			// dlq.pipeline — сама DLQ очередь, разбирается вручную
			{QueueDLQPipeline, nil},
		}
		for _, q := range queues {
			if err := declareQueue(ch, q.name, q.args); err != nil {
				return err
			}
		}

		bindings := []struct {
			queue      Queue
			routingKey RoutingKey
			exchange   Exchange
		}{
			{QueueStepsDone, RoutingPatternStepDone, ExchangePipeline},
			{QueueDLQPipeline, RoutingKeyDLQPipeline, ExchangeDLQ},
		}
		for _, b := range bindings {
			if err := bindQueue(ch, b.queue, b.routingKey, b.exchange); err != nil {
				return err
			}
		}

		return nil
	})
}

// SetupStepQueue объявляет очередь воркера для шага step
// и привязывает её к pipeline.<step>.start.
func SetupStepQueue(conn *Connection, step string) (Queue, error) {
	if !ValidStepName(step) {
		return "", fmt.Errorf("invalid step name %q", step)
	}

	queue := StepStartQueue(step)
	err := conn.WithChannel(func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueue(ch, queue, dlqArgs); err != nil {
			return err
		}
		return bindQueue(ch, queue, StepStartKey(step), ExchangePipeline)
	})
	if err != nil {
		return "", err
	}
	return queue, nil
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangePipeline, amqp.ExchangeTopic},
		{ExchangeDLQ, amqp.ExchangeDirect},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareQueue создаёт durable очередь.
func declareQueue(ch *amqp.Channel, name Queue, args amqp.Table) error {
	_, err := ch.QueueDeclare(
		string(name), // name
		true,         // durable
		false,        // delete when unused
		false,        // exclusive
		false,        // no-wait
		args,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	return nil
}

// bindQueue привязывает очередь к обменнику.
func bindQueue(ch *amqp.Channel, queue Queue, key RoutingKey, exchange Exchange) error {
	err := ch.QueueBind(
		string(queue),    // queue name
		string(key),      // routing key
		string(exchange), // exchange
		false,            // no-wait
		nil,              // arguments
	)
	if err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", queue, exchange, err)
	}
	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Conductor RabbitMQ Topology:

    conductor.pipeline (topic)
    ├── pipeline.<step>.start [routing: pipeline.<step>.start]
    │       Consumer: worker of <step>
    │       DLQ: dlq.pipeline
    └── pipeline.steps.done [routing: pipeline.*.done]
            Consumer: Orchestrator (prefetch 1, sequential)
            DLQ: dlq.pipeline

    conductor.dlq (direct)
    └── dlq.pipeline [routing: pipeline]
            Manual processing
  `
}
