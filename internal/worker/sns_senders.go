package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalithlochan/opsuite/internal/db"
	"github.com/lalithlochan/opsuite/internal/sns"
)

// SMSPublisher is satisfied by *sns.Publisher.
type SMSPublisher interface {
	SendSMS(ctx context.Context, phoneNumber, body string) (string, error)
}

// SMSSender delivers SMS notifications to the recipient's phone.
type SMSSender struct {
	publisher SMSPublisher
	logger    *zap.Logger
}

func NewSMSSender(publisher SMSPublisher, logger *zap.Logger) *SMSSender {
	return &SMSSender{publisher: publisher, logger: logger}
}

func (s *SMSSender) Send(ctx context.Context, msg *Message) error {
	if msg.Recipient == nil || msg.Recipient.Phone == nil || *msg.Recipient.Phone == "" {
		return ErrNoPhoneNumber
	}

	messageID, err := s.publisher.SendSMS(ctx, *msg.Recipient.Phone, msg.Body)
	if err != nil {
		return err
	}

	s.logger.Info("sms sent via sns",
		zap.String("notification_id", msg.NotificationID.String()),
		zap.String("message_id", messageID),
	)
	return nil
}

func (s *SMSSender) Supports(notifType string) bool { return notifType == db.TypeSMS }

// PushPublisher is satisfied by *sns.Publisher.
type PushPublisher interface {
	PublishPush(ctx context.Context, msg sns.PushMessage) (string, error)
}

// PushSender publishes PUSH notifications to the push topic.
type PushSender struct {
	publisher PushPublisher
	logger    *zap.Logger
}

func NewPushSender(publisher PushPublisher, logger *zap.Logger) *PushSender {
	return &PushSender{publisher: publisher, logger: logger}
}

func (s *PushSender) Send(ctx context.Context, msg *Message) error {
	messageID, err := s.publisher.PublishPush(ctx, sns.PushMessage{
		NotificationID: msg.NotificationID.String(),
		TenantID:       msg.TenantID.String(),
		RecipientID:    msg.Recipient.ID.String(),
		Title:          msg.Subject,
		Body:           msg.Body,
	})
	if err != nil {
		return fmt.Errorf("push publish failed: %w", err)
	}

	s.logger.Info("push published via sns",
		zap.String("notification_id", msg.NotificationID.String()),
		zap.String("message_id", messageID),
	)
	return nil
}

func (s *PushSender) Supports(notifType string) bool { return notifType == db.TypePush }
