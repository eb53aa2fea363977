package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"media_tracker/internal/domain"
	"media_tracker/internal/remote"
)

// RabbitMQ broadcasts committed document changes on a topic exchange and
// implements remote.ChangeFeed. Every subscriber gets its own exclusive,
// auto-deleted queue, so each session sees every change.
type RabbitMQ struct {
	conn       *amqp.Connection
	exchange   string
	routingKey string
	logger     *slog.Logger

	// mu guards the publishing channel, which is not safe for concurrent use.
	mu      sync.Mutex
	channel *amqp.Channel
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}, nil
}

// ChangeMessage carries the changes of one committed write or batch.
type ChangeMessage struct {
	Changes   []ChangeRecord `json:"changes"`
	Timestamp time.Time      `json:"timestamp"`
}

type ChangeRecord struct {
	Action     string      `json:"action"` // "added", "modified" or "removed"
	Collection string      `json:"collection"`
	ID         string      `json:"id"`
	Data       remote.Data `json:"data"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

func encodeChanges(changes []remote.Change) ChangeMessage {
	msg := ChangeMessage{Changes: make([]ChangeRecord, 0, len(changes)), Timestamp: time.Now().UTC()}
	for _, c := range changes {
		msg.Changes = append(msg.Changes, ChangeRecord{
			Action:     string(c.Type),
			Collection: c.Doc.Ref.Collection,
			ID:         c.Doc.Ref.ID,
			Data:       c.Doc.Data,
			UpdatedAt:  c.Doc.UpdatedAt,
		})
	}
	return msg
}

func (m ChangeMessage) decode() []remote.Change {
	changes := make([]remote.Change, 0, len(m.Changes))
	for _, r := range m.Changes {
		changes = append(changes, remote.Change{
			Type: remote.ChangeType(r.Action),
			Doc: remote.Document{
				Ref:       remote.DocRef{Collection: r.Collection, ID: r.ID},
				Data:      r.Data,
				UpdatedAt: r.UpdatedAt,
			},
		})
	}
	return changes
}

func (r *RabbitMQ) Publish(ctx context.Context, changes []remote.Change) error {
	body, err := json.Marshal(encodeChanges(changes))
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	r.mu.Lock()
	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	r.mu.Unlock()
	if err != nil {
		return classify("publish changes", fmt.Errorf("publish message: %w", err))
	}

	r.logger.Debug("published changes", "count", len(changes))
	return nil
}

// Subscribe consumes every change published after it returns. fn runs on
// a single goroutine per subscription, in delivery order.
func (r *RabbitMQ) Subscribe(ctx context.Context, fn func([]remote.Change), onError func(error)) (remote.Unsubscribe, error) {
	ch, err := r.conn.Channel()
	if err != nil {
		return nil, classify("open consumer channel", fmt.Errorf("open channel: %w", err))
	}

	q, err := ch.QueueDeclare(
		"",
		false,
		true,
		true,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, r.routingKey, r.exchange, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("consume: %w", err)
	}

	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			case amqpErr, ok := <-closed:
				if ok && amqpErr != nil && onError != nil {
					onError(classify("consume changes", amqpErr))
				}
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				var msg ChangeMessage
				if err := json.Unmarshal(d.Body, &msg); err != nil {
					r.logger.Warn("dropping undecodable change message", "error", err)
					continue
				}
				fn(msg.decode())
			}
		}
	}()

	r.logger.Debug("change feed subscribed", "queue", q.Name)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			ch.Close()
			<-done
		})
	}, nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// classify marks broker-side connection failures as transient.
func classify(op string, err error) error {
	var amqpErr *amqp.Error
	if errors.Is(err, amqp.ErrClosed) || (errors.As(err, &amqpErr) && (amqpErr.Recover || !amqpErr.Server)) {
		return &domain.TransientError{Op: op, Err: err}
	}
	return err
}

var _ remote.ChangeFeed = (*RabbitMQ)(nil)
