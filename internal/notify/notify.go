// Package notify delivers waitlist offers and price drop alerts to customers.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/charterbook/pkg/reservation"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	contentTypeJSON       = "application/json"
	errorOperationNotify  = "notify"
	errorSubjectQueue     = "queue"
	errorSubjectMessage   = "message"
	errorCodeDeclare      = "declare"
	errorCodeEncode       = "encode"
	errorCodePublish      = "publish"
	errorCodeUnknownKind  = "unknown_kind"
	defaultPublishTimeout = 3 * time.Second
)

// Channel is the subset of *amqp.Channel the notifier uses.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Message is the JSON body published for every notification.
type Message struct {
	Kind        string                  `json:"kind"`
	CustomerID  string                  `json:"customer_id"`
	CharterID   string                  `json:"charter_id"`
	Date        string                  `json:"date,omitempty"`
	ReferenceID string                  `json:"reference_id"`
	PriceCents  int64                   `json:"price_cents,omitempty"`
	Contact     reservation.ContactInfo `json:"contact"`
	ExpiresAt   string                  `json:"expires_at,omitempty"`
	CreatedAt   string                  `json:"created_at"`
}

// AMQPNotifier publishes notifications to one durable queue per kind.
type AMQPNotifier struct {
	channel        Channel
	publishTimeout time.Duration
}

// NewAMQPNotifier declares the notification queues and returns a notifier.
func NewAMQPNotifier(channel Channel) (*AMQPNotifier, error) {
	if channel == nil {
		return nil, fmt.Errorf("%w: amqp channel is required", reservation.ErrInvalidServiceConfig)
	}
	for _, kind := range []reservation.NotificationKind{reservation.NotificationWaitlistOffer, reservation.NotificationPriceDrop} {
		if _, err := channel.QueueDeclare(string(kind), true, false, false, false, nil); err != nil {
			return nil, reservation.WrapError(errorOperationNotify, errorSubjectQueue, errorCodeDeclare, err)
		}
	}
	return &AMQPNotifier{channel: channel, publishTimeout: defaultPublishTimeout}, nil
}

// Notify publishes a persistent JSON message routed by the notification kind.
func (notifier *AMQPNotifier) Notify(ctx context.Context, notification reservation.Notification) error {
	switch notification.Kind {
	case reservation.NotificationWaitlistOffer, reservation.NotificationPriceDrop:
	default:
		return reservation.WrapError(errorOperationNotify, errorSubjectMessage, errorCodeUnknownKind, errors.New(string(notification.Kind)))
	}
	body, err := json.Marshal(NewMessage(notification))
	if err != nil {
		return reservation.WrapError(errorOperationNotify, errorSubjectMessage, errorCodeEncode, err)
	}
	publishCtx, cancel := context.WithTimeout(ctx, notifier.publishTimeout)
	defer cancel()
	publishing := amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp.Persistent,
		MessageId:    MessageID(notification),
		Timestamp:    notification.CreatedAt.UTC(),
		Body:         body,
	}
	if err := notifier.channel.PublishWithContext(publishCtx, "", string(notification.Kind), false, false, publishing); err != nil {
		return reservation.WrapError(errorOperationNotify, errorSubjectQueue, errorCodePublish, err)
	}
	return nil
}

// MessageID identifies one delivery. A re-armed alert or a repeated offer for the same reference
// gets a new id because its creation time differs.
func MessageID(notification reservation.Notification) string {
	return fmt.Sprintf("%s:%s:%d", notification.Kind, notification.ReferenceID, notification.CreatedAt.UTC().UnixMilli())
}

// NewMessage flattens a notification into its wire form.
func NewMessage(notification reservation.Notification) Message {
	message := Message{
		Kind:        string(notification.Kind),
		CustomerID:  notification.CustomerID.String(),
		CharterID:   notification.CharterID.String(),
		Date:        notification.Date.String(),
		ReferenceID: notification.ReferenceID,
		PriceCents:  notification.Price.Int64(),
		Contact:     notification.Contact,
		CreatedAt:   notification.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !notification.ExpiresAt.IsZero() {
		message.ExpiresAt = notification.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return message
}

// LogNotifier writes notifications to the structured log. It is the fallback when no broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns a LogNotifier; a nil logger discards output.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (notifier *LogNotifier) Notify(_ context.Context, notification reservation.Notification) error {
	message := NewMessage(notification)
	notifier.logger.Info("notification",
		zap.String("kind", message.Kind),
		zap.String("customer_id", message.CustomerID),
		zap.String("charter_id", message.CharterID),
		zap.String("date", message.Date),
		zap.String("reference_id", message.ReferenceID),
		zap.Int64("price_cents", message.PriceCents),
		zap.String("expires_at", message.ExpiresAt),
	)
	return nil
}
