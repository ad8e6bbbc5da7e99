package queue

import (
    "context"
    "encoding/json"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"

    "github.com/iliyamo/agriplan/internal/config"
)

// Publisher sends analysis events.  Failures are returned so callers can
// log them; they never affect the request that produced the event.
type Publisher interface {
    PublishAnalysisCompleted(ctx context.Context, ev AnalysisCompletedEvent) error
}

// NewPublisher returns a RabbitMQ publisher when the queue is enabled and a
// no-op publisher otherwise.
func NewPublisher(cfg config.QueueConfig, log *zap.Logger) Publisher {
    if !cfg.Enabled {
        return NopPublisher{}
    }
    if log == nil {
        log = zap.NewNop()
    }
    return &RabbitPublisher{URL: cfg.URL, log: log.Named("publisher")}
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishAnalysisCompleted(context.Context, AnalysisCompletedEvent) error {
    return nil
}

// RabbitPublisher opens a connection per event.  Analysis calls take
// seconds, so the dial cost is negligible next to them.
type RabbitPublisher struct {
    URL string
    log *zap.Logger
}

// PublishAnalysisCompleted declares the durable queue (idempotent) and
// publishes ev as a persistent JSON message on the default exchange.
func (p *RabbitPublisher) PublishAnalysisCompleted(ctx context.Context, ev AnalysisCompletedEvent) error {
    body, err := json.Marshal(ev)
    if err != nil {
        return err
    }

    conn, err := amqp.Dial(p.URL)
    if err != nil {
        p.log.Warn("dial failed", zap.Error(err))
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        p.log.Warn("channel open failed", zap.Error(err))
        return err
    }
    defer func() { _ = ch.Close() }()

    if _, err := ch.QueueDeclare(
        AnalysisQueueName, // name
        true,              // durable
        false,             // autoDelete
        false,             // exclusive
        false,             // noWait
        nil,               // args
    ); err != nil {
        p.log.Warn("queue declare failed", zap.Error(err))
        return err
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        MessageId:    ev.EventID,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, "", AnalysisQueueName, false, false, pub); err != nil {
        p.log.Warn("publish failed", zap.Error(err))
        return err
    }
    return nil
}
