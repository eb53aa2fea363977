//go:build integration

package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"media_tracker/internal/remote"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
	logger    *slog.Logger
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	amqpURL, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = amqpURL
}

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) config(name string) Config {
	return Config{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-" + name,
		RoutingKey: "documents",
	}
}

func sampleChange(id string) remote.Change {
	return remote.Change{Type: remote.ChangeAdded, Doc: remote.Document{
		Ref:  remote.DocRef{Collection: "items", ID: id},
		Data: remote.Data{"userId": "u1", "title": "Title " + id},
	}}
}

func (s *RabbitMQIntegrationSuite) TestPublisher_Connection() {
	pub, err := NewRabbitMQ(s.config("connection"), s.logger)
	s.NoError(err)
	s.NotNil(pub)

	err = pub.Close()
	s.NoError(err)
}

func (s *RabbitMQIntegrationSuite) TestPublisher_MessageFormat() {
	cfg := s.config("format")
	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	msgs := s.rawConsumer(cfg)

	err = pub.Publish(s.ctx, []remote.Change{sampleChange("a")})
	s.NoError(err)

	select {
	case msg := <-msgs:
		s.Equal("application/json", msg.ContentType)
		s.Equal(uint8(amqp.Persistent), msg.DeliveryMode)

		var received ChangeMessage
		s.Require().NoError(json.Unmarshal(msg.Body, &received))
		s.Require().Len(received.Changes, 1)
		s.Equal("added", received.Changes[0].Action)
		s.Equal("a", received.Changes[0].ID)
		s.Equal("Title a", received.Changes[0].Data["title"])
	case <-time.After(5 * time.Second):
		s.Fail("Timeout waiting for message")
	}
}

func (s *RabbitMQIntegrationSuite) TestSubscribe_FansOutToEverySubscriber() {
	pub, err := NewRabbitMQ(s.config("fanout"), s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	first, unsubFirst := s.subscribe(pub)
	defer unsubFirst()
	second, unsubSecond := s.subscribe(pub)
	defer unsubSecond()

	s.Require().NoError(pub.Publish(s.ctx, []remote.Change{sampleChange("a"), sampleChange("b")}))

	for _, ch := range []<-chan []remote.Change{first, second} {
		select {
		case changes := <-ch:
			s.Require().Len(changes, 2)
			s.Equal("b", changes[1].Doc.Ref.ID)
		case <-time.After(5 * time.Second):
			s.Fail("Timeout waiting for changes")
		}
	}
}

func (s *RabbitMQIntegrationSuite) TestSubscribe_UnsubscribeStopsDelivery() {
	pub, err := NewRabbitMQ(s.config("unsubscribe"), s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	got, unsub := s.subscribe(pub)
	unsub()
	unsub()

	s.Require().NoError(pub.Publish(s.ctx, []remote.Change{sampleChange("a")}))

	select {
	case <-got:
		s.Fail("received changes after unsubscribe")
	case <-time.After(300 * time.Millisecond):
	}
}

// A FeedStore over RabbitMQ delivers committed writes to OnSnapshot
// listeners of other store instances.
func (s *RabbitMQIntegrationSuite) TestFeedStore_SnapshotsAcrossStores() {
	pub, err := NewRabbitMQ(s.config("feedstore"), s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	backend := remote.NewMemoryBackend()
	writer := remote.NewFeedStore(backend, pub, s.logger)
	reader := remote.NewFeedStore(backend, pub, s.logger)

	var (
		mu        sync.Mutex
		snapshots []remote.Snapshot
	)
	unsub, err := reader.OnSnapshot(s.ctx, remote.ByOwner("items", "userId", "u1"), func(snap remote.Snapshot) {
		mu.Lock()
		snapshots = append(snapshots, snap)
		mu.Unlock()
	}, nil)
	s.Require().NoError(err)
	defer unsub()

	s.Require().NoError(writer.Set(s.ctx, remote.DocRef{Collection: "items", ID: "a"}, remote.Data{"userId": "u1"}, remote.SetOptions{}))

	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(snapshots) == 2 && snapshots[1].Changes[0].Doc.Ref.ID == "a"
	}, 5*time.Second, 20*time.Millisecond)
}

func (s *RabbitMQIntegrationSuite) subscribe(pub *RabbitMQ) (<-chan []remote.Change, remote.Unsubscribe) {
	out := make(chan []remote.Change, 10)
	unsub, err := pub.Subscribe(s.ctx, func(changes []remote.Change) { out <- changes }, nil)
	s.Require().NoError(err)
	return out, unsub
}

func (s *RabbitMQIntegrationSuite) rawConsumer(cfg Config) <-chan amqp.Delivery {
	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	s.T().Cleanup(func() { conn.Close() })

	ch, err := conn.Channel()
	s.Require().NoError(err)

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	s.Require().NoError(err)
	s.Require().NoError(ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil))

	msgs, err := ch.Consume(q.Name, "", true, false, false, false, nil)
	s.Require().NoError(err)
	return msgs
}
