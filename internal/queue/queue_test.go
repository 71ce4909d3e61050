package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestDecode_RejectsMissingNotificationID(t *testing.T) {
	if _, err := Decode([]byte(`{"tenant_id":"` + uuid.NewString() + `"}`)); err == nil {
		t.Fatal("expected error for job without notification_id")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed body")
	}
}

func TestJob_EncodeKeepsVariables(t *testing.T) {
	ruleID := uuid.New()
	job := &Job{
		NotificationID: uuid.New(),
		RuleID:         &ruleID,
		Type:           "EMAIL",
		Content:        "Hi {{name}}",
		Variables:      map[string]string{"name": "Ada"},
	}

	body, err := job.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.Variables["name"] != "Ada" {
		t.Errorf("variables lost: %v", got.Variables)
	}
	if got.RuleID == nil || *got.RuleID != ruleID {
		t.Errorf("rule id lost: %v", got.RuleID)
	}
}

func TestJob_Age(t *testing.T) {
	now := time.Now()
	job := &Job{EnqueuedAt: now.Add(-2 * time.Second).UnixNano()}

	if age := job.Age(now); age != 2*time.Second {
		t.Errorf("expected 2s, got %s", age)
	}
	if age := (&Job{}).Age(now); age != 0 {
		t.Errorf("expected 0 for unset timestamp, got %s", age)
	}
}

func TestDelivery_Ack(t *testing.T) {
	if err := NewDelivery(&Job{}, "m1", nil).Ack(context.Background()); err != nil {
		t.Errorf("nil ack should be a no-op, got %v", err)
	}

	called := false
	ackErr := errors.New("boom")
	d := NewDelivery(&Job{}, "m2", func(ctx context.Context) error {
		called = true
		return ackErr
	})
	if err := d.Ack(context.Background()); !errors.Is(err, ackErr) {
		t.Errorf("expected ack error, got %v", err)
	}
	if !called {
		t.Error("ack func not called")
	}
}
