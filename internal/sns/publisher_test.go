package sns

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(ctx context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, in)
	return &sns.PublishOutput{MessageId: aws.String("mid-1")}, nil
}

func TestPublisher_SendSMS(t *testing.T) {
	fake := &fakeSNS{}
	p := NewPublisher(fake, "")

	id, err := p.SendSMS(context.Background(), "+15551234567", "Stock low")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "mid-1" {
		t.Errorf("expected message id mid-1, got %s", id)
	}

	in := fake.inputs[0]
	if aws.ToString(in.PhoneNumber) != "+15551234567" {
		t.Errorf("phone mismatch: %s", aws.ToString(in.PhoneNumber))
	}
	if in.TopicArn != nil {
		t.Error("sms must not target a topic")
	}
}

func TestPublisher_PublishPush(t *testing.T) {
	fake := &fakeSNS{}
	p := NewPublisher(fake, "arn:aws:sns:us-east-1:123:push")

	msg := PushMessage{
		NotificationID: "n1",
		TenantID:       "t1",
		RecipientID:    "u1",
		Title:          "Task assigned",
		Body:           "You have a new task",
	}

	if _, err := p.PublishPush(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	in := fake.inputs[0]
	if aws.ToString(in.TopicArn) != "arn:aws:sns:us-east-1:123:push" {
		t.Errorf("topic mismatch: %s", aws.ToString(in.TopicArn))
	}
	if got := aws.ToString(in.MessageAttributes["recipient_id"].StringValue); got != "u1" {
		t.Errorf("recipient attribute mismatch: %s", got)
	}

	var decoded PushMessage
	if err := json.Unmarshal([]byte(aws.ToString(in.Message)), &decoded); err != nil {
		t.Fatalf("message is not JSON: %v", err)
	}
	if decoded != msg {
		t.Errorf("payload mismatch: got %+v", decoded)
	}
}

func TestPublisher_PushWithoutTopic(t *testing.T) {
	p := NewPublisher(&fakeSNS{}, "")

	if p.HasTopic() {
		t.Error("expected no topic")
	}
	if _, err := p.PublishPush(context.Background(), PushMessage{}); !errors.Is(err, ErrNoTopic) {
		t.Errorf("expected ErrNoTopic, got %v", err)
	}
}

func TestPublisher_WrapsClientError(t *testing.T) {
	clientErr := errors.New("throttled")
	p := NewPublisher(&fakeSNS{err: clientErr}, "arn")

	if _, err := p.SendSMS(context.Background(), "+1", "x"); !errors.Is(err, clientErr) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}
