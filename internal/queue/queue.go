// Package queue defines the job carried from the rule dispatcher to the delivery worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job is one notification to deliver. Subject and Content are the raw template
// fields; the worker renders them with Variables.
type Job struct {
	NotificationID uuid.UUID         `json:"notification_id"`
	TenantID       uuid.UUID         `json:"tenant_id"`
	TemplateID     uuid.UUID         `json:"template_id"`
	RuleID         *uuid.UUID        `json:"rule_id,omitempty"`
	RecipientID    uuid.UUID         `json:"recipient_id"`
	Type           string            `json:"type"`
	Subject        string            `json:"subject"`
	Content        string            `json:"content"`
	Variables      map[string]string `json:"variables"`
	EnqueuedAt     int64             `json:"enqueued_at"`
}

// Encode serializes a job for the wire.
func (j *Job) Encode() ([]byte, error) {
	body, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return body, nil
}

// Decode parses a job from its wire form.
func Decode(body []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("invalid job format: %w", err)
	}
	if job.NotificationID == uuid.Nil {
		return nil, fmt.Errorf("invalid job format: missing notification_id")
	}
	return &job, nil
}

// Age is how long the job has been waiting since it was enqueued.
func (j *Job) Age(now time.Time) time.Duration {
	if j.EnqueuedAt == 0 {
		return 0
	}
	return now.Sub(time.Unix(0, j.EnqueuedAt))
}

// Producer accepts jobs. A nil error only means the backend accepted the job.
type Producer interface {
	Enqueue(ctx context.Context, job *Job) (string, error)
}

// Consumer hands out jobs one at a time. Receive returns (nil, nil) when a
// poll times out with nothing to do.
type Consumer interface {
	Receive(ctx context.Context) (*Delivery, error)
}

// Delivery is a received job plus the means to acknowledge it.
type Delivery struct {
	Job       *Job
	MessageID string
	ack       func(ctx context.Context) error
}

// NewDelivery wraps a job. ack may be nil for backends without acknowledgement.
func NewDelivery(job *Job, messageID string, ack func(ctx context.Context) error) *Delivery {
	return &Delivery{Job: job, MessageID: messageID, ack: ack}
}

// Ack removes the job from the backend so it is not redelivered.
func (d *Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}
