// Package sns publishes SMS messages and push fan-out events through AWS SNS.
package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// ErrNoTopic is returned by PublishPush when no push topic is configured.
var ErrNoTopic = errors.New("sns: no push topic configured")

// API is the subset of the SNS client used here.
type API interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// NewClient builds an SNS client for region. A non-empty endpoint overrides the
// service URL (LocalStack).
func NewClient(ctx context.Context, region, endpoint string) (*sns.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return sns.NewFromConfig(cfg, func(o *sns.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// Publisher sends SMS directly to phone numbers and push payloads to a topic.
type Publisher struct {
	client   API
	topicARN string
}

// PushMessage is the JSON published to the push topic. Subscribers (mobile
// platform endpoints, fan-out lambdas) filter on the message attributes.
type PushMessage struct {
	NotificationID string `json:"notification_id"`
	TenantID       string `json:"tenant_id"`
	RecipientID    string `json:"recipient_id"`
	Title          string `json:"title,omitempty"`
	Body           string `json:"body"`
}

// NewPublisher creates a publisher. topicARN may be empty when push is not used.
func NewPublisher(client API, topicARN string) *Publisher {
	return &Publisher{client: client, topicARN: topicARN}
}

// HasTopic reports whether push publishing is configured.
func (p *Publisher) HasTopic() bool {
	return p.topicARN != ""
}

// SendSMS publishes a text message to a single phone number.
func (p *Publisher) SendSMS(ctx context.Context, phoneNumber, body string) (string, error) {
	input := &sns.PublishInput{
		PhoneNumber: aws.String(phoneNumber),
		Message:     aws.String(body),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {
				DataType:    aws.String("String"),
				StringValue: aws.String("Transactional"),
			},
		},
	}

	result, err := p.client.Publish(ctx, input)
	if err != nil {
		return "", fmt.Errorf("sns sms publish failed: %w", err)
	}
	return aws.ToString(result.MessageId), nil
}

// PublishPush publishes a push payload to the configured topic.
func (p *Publisher) PublishPush(ctx context.Context, msg PushMessage) (string, error) {
	if p.topicARN == "" {
		return "", ErrNoTopic
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal push message: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"tenant_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.TenantID),
			},
			"recipient_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.RecipientID),
			},
		},
	}

	result, err := p.client.Publish(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to publish to SNS: %w", err)
	}
	return aws.ToString(result.MessageId), nil
}
