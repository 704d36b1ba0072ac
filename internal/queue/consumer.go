package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// NotificationConsumer listens on order.paid and appends one line per
// paid order to <dir>/orders.log.  It stands in for the email sender: the
// log line holds what the email would contain.
type NotificationConsumer struct {
	url string
	dir string
	log *zap.Logger
}

// NewNotificationConsumer returns a consumer writing under dir.
func NewNotificationConsumer(url, dir string, log *zap.Logger) *NotificationConsumer {
	if url == "" {
		url = DefaultURL
	}
	if dir == "" {
		dir = "logs"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &NotificationConsumer{url: url, dir: dir, log: log.Named("order-consumer")}
}

// Run connects to the broker and consumes until ctx is cancelled,
// reconnecting with exponential backoff when the broker goes away.
func (c *NotificationConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *NotificationConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(OrderPaidQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(OrderPaidQueue, "", false, false, false, false, nil)
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
			if err := c.Handle(d.Body); err != nil {
				c.log.Error("handle message failed", zap.Error(err))
				_ = d.Nack(false, false) // do not requeue a poison message
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle decodes one order.paid message and appends it to the log file.
func (c *NotificationConsumer) Handle(body []byte) error {
	var ev OrderPaidEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", c.dir, err)
	}
	f, err := os.OpenFile(filepath.Join(c.dir, "orders.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatPaidLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatPaidLine renders ev as a single log line.
func FormatPaidLine(ev OrderPaidEvent) string {
	codes := make([]string, 0, len(ev.Tickets))
	for _, t := range ev.Tickets {
		mark := ""
		if t.IsExchanged {
			mark = "*"
		}
		codes = append(codes, t.Tier+":"+t.Code+mark)
	}
	return fmt.Sprintf("[%s] Order paid | order_id=%d | session_id=%d | performance=%q | to=%q <%s> | total=%d cents | tickets=[%s]\n",
		ev.PaidAt.UTC().Format(time.RFC3339), ev.OrderID, ev.SessionID, ev.PerformanceLabel,
		ev.CustomerName, ev.CustomerEmail, ev.TotalCents, strings.Join(codes, ","))
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
