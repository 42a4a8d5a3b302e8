package transport

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

// AMQPMirror wraps another transport and mirrors every publish to a
// topic exchange so out-of-process consumers (push relays, audit) see
// the same events live sessions do. Mirror failures are logged and
// dropped; they never fail the local fan-out.
type AMQPMirror struct {
	next     Transport
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      zerolog.Logger
}

// NewAMQPMirror connects to the broker and declares the exchange. When
// the URL is empty or the broker is unreachable it returns next
// unchanged, so the mirror is strictly optional.
func NewAMQPMirror(next Transport, amqpURL, exchange string, log zerolog.Logger) Transport {
	if amqpURL == "" {
		log.Info().Msg("amqp mirror disabled: empty url")
		return next
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		log.Warn().Err(err).Msg("amqp mirror disabled")
		return next
	}

	ch, err := conn.Channel()
	if err != nil {
		log.Warn().Err(err).Msg("amqp mirror disabled")
		_ = conn.Close()
		return next
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		log.Warn().Err(err).Msg("amqp mirror disabled")
		_ = ch.Close()
		_ = conn.Close()
		return next
	}

	log.Info().Str("exchange", exchange).Msg("amqp mirror connected")
	return &AMQPMirror{next: next, conn: conn, ch: ch, exchange: exchange, log: log}
}

func (m *AMQPMirror) Subscribe(group string, sub Subscriber) {
	m.next.Subscribe(group, sub)
}

func (m *AMQPMirror) Unsubscribe(group string, sub Subscriber) {
	m.next.Unsubscribe(group, sub)
}

func (m *AMQPMirror) Publish(group string, ev Event) error {
	err := m.next.Publish(group, ev)

	body, merr := json.Marshal(struct {
		Group string `json:"group"`
		Event Event  `json:"event"`
	}{Group: group, Event: ev})
	if merr != nil {
		m.log.Error().Err(merr).Msg("amqp mirror marshal")
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if perr := m.ch.PublishWithContext(ctx, m.exchange, "events."+ev.Kind, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}); perr != nil {
		m.log.Warn().Err(perr).Str("group", group).Str("kind", ev.Kind).Msg("amqp mirror publish failed")
	}

	return err
}

func (m *AMQPMirror) Close() error {
	if m.ch != nil {
		_ = m.ch.Close()
	}
	if m.conn != nil {
		return m.conn.Close()
	}
	return nil
}
