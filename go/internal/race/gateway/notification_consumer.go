package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/typerace/go/internal/race/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// NotificationConfig configures the out-of-band notification consumer.
type NotificationConfig struct {
	URL           string
	StreamName    string
	SubjectFilter string // e.g. "race.notify.>"
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultNotificationConfig() NotificationConfig {
	return NotificationConfig{
		URL:           nats.DefaultURL,
		StreamName:    "RACE_NOTIFY",
		SubjectFilter: "race.notify.>",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// notificationMessage is what the challenge and friends flows publish.
type notificationMessage struct {
	ToUserID   string          `json:"toUserId"`
	Kind       string          `json:"kind"`
	FromUserID string          `json:"fromUserId,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

var errMissingRecipient = errors.New("notification has no recipient")

type userSender interface {
	IsOnline(userID string) bool
	SendToUser(userID string, ev events.Event)
}

// NotificationConsumer pushes challenges and pokes to online users. Delivery
// is at most once: only new messages are consumed and offline users miss them.
type NotificationConsumer struct {
	sender userSender
	conn   *nats.Conn
	js     jetstream.JetStream
	config NotificationConfig
}

func NewNotificationConsumer(sender userSender, config NotificationConfig) (*NotificationConsumer, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	return &NotificationConsumer{
		sender: sender,
		conn:   nc,
		js:     js,
		config: config,
	}, nil
}

// Start consumes until ctx is done.
func (c *NotificationConsumer) Start(ctx context.Context) error {
	consumer, err := c.js.OrderedConsumer(ctx, c.config.StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{c.config.SubjectFilter},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create notification consumer: %w", err)
	}

	log.Info().
		Str("stream", c.config.StreamName).
		Str("subject", c.config.SubjectFilter).
		Msg("starting notification consumer")

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := deliverNotification(c.sender, msg.Data()); err != nil {
			log.Warn().
				Err(err).
				Str("subject", msg.Subject()).
				Msg("dropped notification")
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	<-ctx.Done()
	log.Info().Msg("notification consumer shutting down")
	return nil
}

// Stop closes the NATS connection.
func (c *NotificationConsumer) Stop() error {
	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}

func deliverNotification(sender userSender, data []byte) error {
	var msg notificationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("unmarshal notification: %w", err)
	}
	if msg.ToUserID == "" {
		return errMissingRecipient
	}
	if !sender.IsOnline(msg.ToUserID) {
		log.Debug().Str("user_id", msg.ToUserID).Str("kind", msg.Kind).Msg("user offline, notification dropped")
		return nil
	}

	sender.SendToUser(msg.ToUserID, events.NewNotification(events.Notification{
		Kind:       msg.Kind,
		FromUserID: msg.FromUserID,
		Payload:    msg.Payload,
	}))
	return nil
}
