package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// LogFileName is the file inside the log directory events are appended to.
const LogFileName = "analysis.log"

// Consumer reads analysis.completed and appends one line per event to
// <LogDir>/analysis.log.
type Consumer struct {
    URL    string
    LogDir string

    log *zap.Logger
    mu  sync.Mutex
}

func NewConsumer(url, logDir string, log *zap.Logger) *Consumer {
    if log == nil {
        log = zap.NewNop()
    }
    if logDir == "" {
        logDir = "logs"
    }
    return &Consumer{URL: url, LogDir: logDir, log: log.Named("analysis-consumer")}
}

// Run keeps a connection to the broker until ctx is cancelled, reconnecting
// with exponential backoff (capped at 30s).  It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.URL)
        if err != nil {
            c.log.Warn("failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
            if !sleep(ctx, backoff) {
                return nil
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = c.consume(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return nil
        }
        c.log.Warn("consume loop ended, reconnecting", zap.Error(err))
        if !sleep(ctx, 2*time.Second) {
            return nil
        }
    }
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.log.Warn("set QoS failed", zap.Error(err))
    }
    if _, err := ch.QueueDeclare(AnalysisQueueName, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(AnalysisQueueName, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := c.handleMessage(d.Body); err != nil {
                c.log.Error("handle message failed", zap.Error(err))
                // Reject without requeue so a poison message cannot spin.
                _ = d.Nack(false, false)
                continue
            }
            _ = d.Ack(false)
        }
    }
}

func (c *Consumer) handleMessage(body []byte) error {
    var ev AnalysisCompletedEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }

    c.mu.Lock()
    defer c.mu.Unlock()
    if err := os.MkdirAll(c.LogDir, 0o755); err != nil {
        return fmt.Errorf("mkdir %s: %w", c.LogDir, err)
    }
    f, err := os.OpenFile(filepath.Join(c.LogDir, LogFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(formatLine(ev)); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

func formatLine(ev AnalysisCompletedEvent) string {
    subject := fmt.Sprintf("plant=%q | region=%q | country=%q | environment=%s | system=%s | language=%s",
        ev.Plant, ev.Region, ev.Country, ev.Environment, ev.System, ev.Language)
    if ev.Legacy {
        subject = "legacy_prompt=true"
    }
    return fmt.Sprintf("[%s] Analysis completed | event_id=%s | user_id=%d | username=%q | %s | cached=%t | usage=%d/%d | duration_ms=%d\n",
        ev.CompletedAt.UTC().Format(time.RFC3339), ev.EventID, ev.UserID, ev.Username, subject,
        ev.Cached, ev.UsageDaily, ev.LimitDaily, ev.DurationMS)
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
