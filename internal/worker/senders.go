package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/opsuite/internal/circuitbreaker"
	"github.com/lalithlochan/opsuite/internal/db"
)

var (
	ErrNoSender       = errors.New("no sender for notification type")
	ErrNoEmailAddress = errors.New("recipient has no email address")
	ErrNoPhoneNumber  = errors.New("recipient has no phone number")
)

// Message is a rendered notification ready for a channel.
type Message struct {
	NotificationID uuid.UUID
	TenantID       uuid.UUID
	Type           string
	Recipient      *db.User
	Subject        string
	Body           string
}

// Sender delivers one channel. Implementations: SMTP, SES, SNS (SMS and push),
// in-app and log-only placeholders.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
	Supports(notifType string) bool
}

// MultiSender routes a message to the first sender that supports its type.
type MultiSender struct {
	senders []Sender
	logger  *zap.Logger
}

func NewMultiSender(logger *zap.Logger, senders ...Sender) *MultiSender {
	return &MultiSender{senders: senders, logger: logger}
}

func (m *MultiSender) Send(ctx context.Context, msg *Message) error {
	for _, s := range m.senders {
		if s.Supports(msg.Type) {
			m.logger.Debug("routing notification to sender",
				zap.String("type", msg.Type),
				zap.String("notification_id", msg.NotificationID.String()),
			)
			return s.Send(ctx, msg)
		}
	}
	return fmt.Errorf("%w: %s", ErrNoSender, msg.Type)
}

func (m *MultiSender) Supports(notifType string) bool {
	for _, s := range m.senders {
		if s.Supports(notifType) {
			return true
		}
	}
	return false
}

// Breakers lists the circuit breakers of the protected channels, in routing order.
func (m *MultiSender) Breakers() []*circuitbreaker.Breaker {
	var out []*circuitbreaker.Breaker
	for _, s := range m.senders {
		if p, ok := s.(*ProtectedSender); ok {
			out = append(out, p.breaker)
		}
	}
	return out
}

// InAppSender accepts IN_APP notifications. The row is the delivery, so
// there is nothing to transmit.
type InAppSender struct{}

func (InAppSender) Send(ctx context.Context, msg *Message) error { return nil }

func (InAppSender) Supports(notifType string) bool { return notifType == db.TypeInApp }

// PlaceholderSender logs instead of delivering. It stands in for channels
// that are not configured in this environment.
type PlaceholderSender struct {
	types  map[string]struct{}
	logger *zap.Logger
}

func NewPlaceholderSender(logger *zap.Logger, types ...string) *PlaceholderSender {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return &PlaceholderSender{types: set, logger: logger}
}

func (s *PlaceholderSender) Send(ctx context.Context, msg *Message) error {
	s.logger.Info("channel not configured, logging notification",
		zap.String("notification_id", msg.NotificationID.String()),
		zap.String("type", msg.Type),
		zap.String("recipient_id", msg.Recipient.ID.String()),
		zap.String("subject", msg.Subject),
	)
	return nil
}

func (s *PlaceholderSender) Supports(notifType string) bool {
	_, ok := s.types[notifType]
	return ok
}

// ProtectedSender fails fast while its downstream is tripped.
type ProtectedSender struct {
	inner   Sender
	breaker *circuitbreaker.Breaker
}

func NewProtectedSender(inner Sender, breaker *circuitbreaker.Breaker) *ProtectedSender {
	return &ProtectedSender{inner: inner, breaker: breaker}
}

func (p *ProtectedSender) Send(ctx context.Context, msg *Message) error {
	return p.breaker.Do(ctx, func(ctx context.Context) error {
		return p.inner.Send(ctx, msg)
	})
}

func (p *ProtectedSender) Supports(notifType string) bool {
	return p.inner.Supports(notifType)
}
