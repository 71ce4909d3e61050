package worker

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/lalithlochan/opsuite/internal/db"
)

// mailClient is the part of *mail.Client the SMTP sender uses.
type mailClient interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender delivers EMAIL notifications over SMTP.
type SMTPSender struct {
	client mailClient
	from   string
	logger *zap.Logger
}

// NewSMTPSender builds a go-mail client. Authentication is enabled only when a
// username is configured, and STARTTLS is used when the server offers it.
func NewSMTPSender(cfg SMTPConfig, logger *zap.Logger) (*SMTPSender, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthLogin),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}
	return newSMTPSender(client, cfg.From, logger), nil
}

func newSMTPSender(client mailClient, from string, logger *zap.Logger) *SMTPSender {
	return &SMTPSender{client: client, from: from, logger: logger}
}

func (s *SMTPSender) Send(ctx context.Context, msg *Message) error {
	if msg.Recipient == nil || msg.Recipient.Email == "" {
		return ErrNoEmailAddress
	}

	m := mail.NewMsg()
	if err := m.From(s.from); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(msg.Recipient.Email); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}

	s.logger.Info("email sent via smtp",
		zap.String("notification_id", msg.NotificationID.String()),
		zap.String("to", msg.Recipient.Email),
	)
	return nil
}

func (s *SMTPSender) Supports(notifType string) bool { return notifType == db.TypeEmail }

// SESAPI is the part of *ses.Client the SES sender uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// NewSESClient loads the default AWS credential chain for region.
func NewSESClient(ctx context.Context, region string) (*ses.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config: %w", err)
	}
	return ses.NewFromConfig(cfg), nil
}

// SESSender delivers EMAIL notifications via AWS SES.
type SESSender struct {
	client SESAPI
	from   string
	logger *zap.Logger
}

func NewSESSender(client SESAPI, from string, logger *zap.Logger) *SESSender {
	return &SESSender{client: client, from: from, logger: logger}
}

func (s *SESSender) Send(ctx context.Context, msg *Message) error {
	if msg.Recipient == nil || msg.Recipient.Email == "" {
		return ErrNoEmailAddress
	}

	input := &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{msg.Recipient.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(msg.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(msg.Body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}

	s.logger.Info("email sent via ses",
		zap.String("notification_id", msg.NotificationID.String()),
		zap.String("to", msg.Recipient.Email),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)
	return nil
}

func (s *SESSender) Supports(notifType string) bool { return notifType == db.TypeEmail }
