package rules

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/opsuite/internal/db"
	"github.com/lalithlochan/opsuite/internal/queue"
)

var errQueueDown = errors.New("queue unavailable")

type fakeStore struct {
	mu            sync.Mutex
	rules         []*db.NotificationRule
	templates     map[uuid.UUID]*db.NotificationTemplate
	notifications map[uuid.UUID]*db.Notification
	users         []uuid.UUID
	roles         map[string][]uuid.UUID
	pageCalls     int
	panicTemplate uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		templates:     make(map[uuid.UUID]*db.NotificationTemplate),
		notifications: make(map[uuid.UUID]*db.Notification),
		roles:         make(map[string][]uuid.UUID),
	}
}

func (f *fakeStore) ListActiveRules(ctx context.Context, tenantID uuid.UUID, trigger string) ([]*db.NotificationRule, error) {
	var out []*db.NotificationRule
	for _, r := range f.rules {
		if r.TenantID == tenantID && r.Trigger == trigger && r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) GetTemplate(ctx context.Context, tenantID, id uuid.UUID) (*db.NotificationTemplate, error) {
	if f.panicTemplate != uuid.Nil && id == f.panicTemplate {
		panic("template cache corrupted")
	}
	t, ok := f.templates[id]
	if !ok || t.TenantID != tenantID {
		return nil, db.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) CreateNotification(ctx context.Context, n *db.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications[n.ID] = n
	return nil
}

func (f *fakeStore) MarkQueued(ctx context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications[id].QueuedAt = &at
	return nil
}

func (f *fakeStore) MarkNotificationStatus(ctx context.Context, id uuid.UUID, status string, errorMsg *string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.notifications[id]
	if n.Status != db.StatusPending {
		return false, nil
	}
	n.Status = status
	n.ErrorMessage = errorMsg
	return true, nil
}

func (f *fakeStore) ListUserIDsByRole(ctx context.Context, tenantID uuid.UUID, role string) ([]uuid.UUID, error) {
	return f.roles[role], nil
}

func (f *fakeStore) ListUserIDsPage(ctx context.Context, tenantID, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	f.pageCalls++
	sorted := append([]uuid.UUID(nil), f.users...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

	var out []uuid.UUID
	for _, id := range sorted {
		if after != uuid.Nil && id.String() <= after.String() {
			continue
		}
		out = append(out, id)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) byRecipient() map[uuid.UUID]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[uuid.UUID]int)
	for _, n := range f.notifications {
		counts[n.RecipientID]++
	}
	return counts
}

type fakeProducer struct {
	mu       sync.Mutex
	jobs     []*queue.Job
	failFor  map[uuid.UUID]bool
	panicFor map[uuid.UUID]bool
	failures int
}

func (p *fakeProducer) Enqueue(ctx context.Context, job *queue.Job) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.panicFor[job.RecipientID] {
		panic("producer nil client")
	}
	if p.failFor[job.RecipientID] {
		p.failures++
		return "", errQueueDown
	}
	p.jobs = append(p.jobs, job)
	return job.NotificationID.String(), nil
}

type harness struct {
	store    *fakeStore
	producer *fakeProducer
	eval     *Evaluator
	tenant   uuid.UUID
	tmpl     *db.NotificationTemplate
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	store := newFakeStore()
	producer := &fakeProducer{failFor: make(map[uuid.UUID]bool), panicFor: make(map[uuid.UUID]bool)}
	tenant := uuid.New()

	tmpl := &db.NotificationTemplate{
		ID:        uuid.New(),
		TenantID:  tenant,
		Name:      "task-done",
		Type:      db.TypeEmail,
		Subject:   "{{title}} is done",
		Content:   "Task {{title}} finished by {{who}}",
		Variables: map[string]string{"title": "task.title", "who": "actor.name"},
		IsActive:  true,
	}
	store.templates[tmpl.ID] = tmpl

	dispatcher := NewDispatcher(store, producer, zap.NewNop())
	return &harness{
		store:    store,
		producer: producer,
		eval:     NewEvaluator(store, store, dispatcher, cfg, zap.NewNop()),
		tenant:   tenant,
		tmpl:     tmpl,
	}
}

func (h *harness) addRule(name string, conds []db.RuleCondition, recipients []db.RecipientRule) *db.NotificationRule {
	r := &db.NotificationRule{
		ID:         uuid.New(),
		TenantID:   h.tenant,
		Name:       name,
		Trigger:    "TASK_COMPLETED",
		TemplateID: h.tmpl.ID,
		Conditions: conds,
		Recipients: recipients,
		IsActive:   true,
	}
	h.store.rules = append(h.store.rules, r)
	return r
}

func (h *harness) event(payload map[string]any) Event {
	return Event{TenantID: h.tenant, Trigger: "TASK_COMPLETED", Payload: payload}
}

func TestEvaluate_DedupWithinRule(t *testing.T) {
	h := newHarness(t, Config{Concurrency: 4})
	u1 := uuid.New()

	h.addRule("notify", nil, []db.RecipientRule{
		{Type: RecipientUser, Value: u1.String()},
		{Type: RecipientAssignee},
	})

	result, err := h.eval.Evaluate(context.Background(), h.event(map[string]any{
		"assigneeId": u1.String(),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := h.store.byRecipient()[u1]; got != 1 {
		t.Errorf("expected exactly 1 notification to u1, got %d", got)
	}
	if len(h.producer.jobs) != 1 {
		t.Errorf("expected 1 job, got %d", len(h.producer.jobs))
	}
	if result.Outcomes[0].RecipientCount != 1 {
		t.Errorf("expected recipientCount 1, got %d", result.Outcomes[0].RecipientCount)
	}
}

func TestEvaluate_SameUserAcrossRules(t *testing.T) {
	h := newHarness(t, Config{})
	u1 := uuid.New()

	h.addRule("first", nil, []db.RecipientRule{{Type: RecipientUser, Value: u1.String()}})
	h.addRule("second", nil, []db.RecipientRule{{Type: RecipientCreator}})

	if _, err := h.eval.Evaluate(context.Background(), h.event(map[string]any{"createdBy": u1.String()})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := h.store.byRecipient()[u1]; got != 2 {
		t.Errorf("expected one notification per rule, got %d", got)
	}
}

func TestEvaluate_ConditionsFilterRules(t *testing.T) {
	h := newHarness(t, Config{})
	u1 := uuid.New()

	h.addRule("done-and-high", []db.RuleCondition{
		{Field: "status", Operator: OpEquals, Value: "DONE"},
		{Field: "priority", Operator: OpEquals, Value: "HIGH"},
	}, []db.RecipientRule{{Type: RecipientUser, Value: u1.String()}})

	result, err := h.eval.Evaluate(context.Background(), h.event(map[string]any{
		"status":   "DONE",
		"priority": "LOW",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(h.producer.jobs) != 0 {
		t.Errorf("expected no dispatch, got %d jobs", len(h.producer.jobs))
	}
	if result.Outcomes[0].Matched {
		t.Error("rule should not match")
	}
	if len(result.Summary()) != 0 {
		t.Errorf("skipped rules should not appear in the summary, got %+v", result.Summary())
	}
}

func TestEvaluate_BadRuleIsolated(t *testing.T) {
	h := newHarness(t, Config{})
	u1 := uuid.New()

	bad := h.addRule("bad", []db.RuleCondition{
		{Field: "status", Operator: "matches_regex", Value: "D.*"},
	}, []db.RecipientRule{{Type: RecipientUser, Value: u1.String()}})
	h.addRule("weird-recipient", nil, []db.RecipientRule{{Type: "team", Value: "x"}})
	good := h.addRule("good", nil, []db.RecipientRule{{Type: RecipientUser, Value: u1.String()}})

	result, err := h.eval.Evaluate(context.Background(), h.event(map[string]any{"status": "DONE"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	failed := result.Failed()
	if len(failed) != 2 {
		t.Fatalf("expected 2 failed rules, got %d", len(failed))
	}
	if failed[0].RuleID != bad.ID || !errors.Is(failed[0].Err, ErrUnknownOperator) {
		t.Errorf("expected bad rule to fail with ErrUnknownOperator, got %+v", failed[0])
	}
	if failed[0].Error == "" {
		t.Error("expected error text on the outcome")
	}
	if !errors.Is(failed[1].Err, ErrUnknownRecipientType) {
		t.Errorf("expected ErrUnknownRecipientType, got %v", failed[1].Err)
	}

	last := result.Outcomes[2]
	if last.RuleID != good.ID || !last.Matched || last.RecipientCount != 1 {
		t.Errorf("good rule should still dispatch, got %+v", last)
	}
	if len(result.Summary()) != 3 {
		t.Errorf("summary should list matched and failed rules, got %d", len(result.Summary()))
	}
}

func TestEvaluate_PanickingRuleIsolated(t *testing.T) {
	h := newHarness(t, Config{Concurrency: 2})
	u1, u2 := uuid.New(), uuid.New()

	broken := h.addRule("broken-template", nil, []db.RecipientRule{{Type: RecipientUser, Value: u1.String()}})
	broken.TemplateID = uuid.New()
	h.store.panicTemplate = broken.TemplateID

	h.producer.panicFor[u2] = true
	fanout := h.addRule("fanout", nil, []db.RecipientRule{
		{Type: RecipientUser, Value: u1.String()},
		{Type: RecipientUser, Value: u2.String()},
	})
	good := h.addRule("good", nil, []db.RecipientRule{{Type: RecipientUser, Value: u1.String()}})

	result, err := h.eval.Evaluate(context.Background(), h.event(map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(result.Outcomes))
	}

	first := result.Outcomes[0]
	if first.RuleID != broken.ID || !errors.Is(first.Err, ErrRulePanicked) {
		t.Errorf("expected broken rule to fail with ErrRulePanicked, got %+v", first)
	}
	if first.Error == "" {
		t.Error("expected error text on the panicked outcome")
	}

	second := result.Outcomes[1]
	if second.RuleID != fanout.ID || !errors.Is(second.Err, ErrRulePanicked) {
		t.Errorf("expected fanout rule to report the dispatch panic, got %+v", second)
	}
	if second.RecipientCount != 1 {
		t.Errorf("expected the other recipient to be enqueued, got %d", second.RecipientCount)
	}

	last := result.Outcomes[2]
	if last.RuleID != good.ID || last.Err != nil || last.RecipientCount != 1 {
		t.Errorf("good rule should still dispatch, got %+v", last)
	}
	if len(h.producer.jobs) != 2 {
		t.Errorf("expected 2 jobs, got %d", len(h.producer.jobs))
	}
}

func TestEvaluate_RoleAndAllPaginated(t *testing.T) {
	h := newHarness(t, Config{PageSize: 2, Concurrency: 3})
	for i := 0; i < 5; i++ {
		h.store.users = append(h.store.users, uuid.New())
	}
	h.store.roles["manager"] = []uuid.UUID{h.store.users[0], h.store.users[1]}

	h.addRule("everyone", nil, []db.RecipientRule{
		{Type: RecipientRole, Value: "manager"},
		{Type: RecipientAll},
	})

	result, err := h.eval.Evaluate(context.Background(), h.event(map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Outcomes[0].RecipientCount != 5 {
		t.Errorf("expected 5 recipients, got %d", result.Outcomes[0].RecipientCount)
	}
	if h.store.pageCalls != 3 {
		t.Errorf("expected 3 page reads for 5 users at 2 per page, got %d", h.store.pageCalls)
	}
	for id, n := range h.store.byRecipient() {
		if n != 1 {
			t.Errorf("user %s notified %d times", id, n)
		}
	}
}

func TestEvaluate_MaxRecipients(t *testing.T) {
	h := newHarness(t, Config{PageSize: 10, MaxRecipients: 3})
	for i := 0; i < 4; i++ {
		h.store.users = append(h.store.users, uuid.New())
	}
	h.addRule("everyone", nil, []db.RecipientRule{{Type: RecipientAll}})

	result, err := h.eval.Evaluate(context.Background(), h.event(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !errors.Is(result.Outcomes[0].Err, ErrTooManyRecipients) {
		t.Errorf("expected ErrTooManyRecipients, got %v", result.Outcomes[0].Err)
	}
	if len(h.producer.jobs) != 0 {
		t.Errorf("nothing should be dispatched, got %d jobs", len(h.producer.jobs))
	}
}

func TestEvaluate_InvalidRecipientIDs(t *testing.T) {
	tests := []struct {
		name    string
		spec    db.RecipientRule
		payload map[string]any
	}{
		{"bad literal user", db.RecipientRule{Type: RecipientUser, Value: "u1"}, nil},
		{"bad assignee", db.RecipientRule{Type: RecipientAssignee}, map[string]any{"assigneeId": "nope"}},
		{"numeric creator", db.RecipientRule{Type: RecipientCreator}, map[string]any{"createdBy": float64(7)}},
		{"role without value", db.RecipientRule{Type: RecipientRole}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			h.addRule("r", nil, []db.RecipientRule{tt.spec})

			result, _ := h.eval.Evaluate(context.Background(), h.event(tt.payload))
			if !errors.Is(result.Outcomes[0].Err, ErrInvalidRecipient) {
				t.Errorf("expected ErrInvalidRecipient, got %v", result.Outcomes[0].Err)
			}
		})
	}
}

func TestEvaluate_MissingCreatorSkipped(t *testing.T) {
	h := newHarness(t, Config{})
	h.addRule("creator", nil, []db.RecipientRule{{Type: RecipientCreator}})

	result, err := h.eval.Evaluate(context.Background(), h.event(map[string]any{"createdBy": nil}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	o := result.Outcomes[0]
	if o.Err != nil || !o.Matched || o.RecipientCount != 0 {
		t.Errorf("expected a match with no recipients, got %+v", o)
	}
}

func TestEvaluate_TemplateProblems(t *testing.T) {
	h := newHarness(t, Config{})
	rule := h.addRule("r", nil, []db.RecipientRule{{Type: RecipientUser, Value: uuid.NewString()}})

	h.tmpl.IsActive = false
	result, _ := h.eval.Evaluate(context.Background(), h.event(nil))
	if !errors.Is(result.Outcomes[0].Err, ErrTemplateInactive) {
		t.Errorf("expected ErrTemplateInactive, got %v", result.Outcomes[0].Err)
	}

	rule.TemplateID = uuid.New()
	result, _ = h.eval.Evaluate(context.Background(), h.event(nil))
	if !errors.Is(result.Outcomes[0].Err, ErrTemplateNotFound) {
		t.Errorf("expected ErrTemplateNotFound, got %v", result.Outcomes[0].Err)
	}
}

func TestDispatch_RendersAndCarriesRawTemplate(t *testing.T) {
	h := newHarness(t, Config{})
	u1 := uuid.New()
	h.addRule("r", nil, []db.RecipientRule{{Type: RecipientUser, Value: u1.String()}})

	_, err := h.eval.Evaluate(context.Background(), h.event(map[string]any{
		"task":  map[string]any{"title": "Invoice #4"},
		"actor": map[string]any{"name": "Sam"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	job := h.producer.jobs[0]
	if job.Subject != h.tmpl.Subject {
		t.Errorf("job should carry the raw subject, got %q", job.Subject)
	}
	if job.Variables["who"] != "Sam" {
		t.Errorf("job variables mismatch: %v", job.Variables)
	}
	if job.RuleID == nil {
		t.Error("job should reference its rule")
	}

	n := h.store.notifications[job.NotificationID]
	if n.Status != db.StatusPending {
		t.Errorf("expected PENDING, got %s", n.Status)
	}
	if n.Content != "Task Invoice #4 finished by Sam" {
		t.Errorf("unexpected rendered content: %q", n.Content)
	}
	if n.QueuedAt == nil {
		t.Error("expected queued_at to be stamped")
	}
}

func TestDispatch_EnqueueFailureMarksFailed(t *testing.T) {
	h := newHarness(t, Config{Concurrency: 2})
	ok := uuid.New()
	broken := uuid.New()
	h.producer.failFor[broken] = true

	h.addRule("r", nil, []db.RecipientRule{
		{Type: RecipientUser, Value: ok.String()},
		{Type: RecipientUser, Value: broken.String()},
	})

	result, err := h.eval.Evaluate(context.Background(), h.event(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	o := result.Outcomes[0]
	if o.RecipientCount != 1 {
		t.Errorf("expected 1 successful dispatch, got %d", o.RecipientCount)
	}
	if !errors.Is(o.Err, errQueueDown) {
		t.Errorf("expected queue error on outcome, got %v", o.Err)
	}

	for _, n := range h.store.notifications {
		switch n.RecipientID {
		case broken:
			if n.Status != db.StatusFailed || n.ErrorMessage == nil {
				t.Errorf("unqueued notification should be FAILED with a reason, got %s", n.Status)
			}
		case ok:
			if n.Status != db.StatusPending {
				t.Errorf("queued notification should stay PENDING, got %s", n.Status)
			}
		}
	}
}

func TestSendDirect(t *testing.T) {
	h := newHarness(t, Config{})
	u1, u2 := uuid.New(), uuid.New()

	notifs, err := h.eval.SendDirect(context.Background(), DirectSend{
		TenantID:     h.tenant,
		TemplateID:   h.tmpl.ID,
		RecipientIDs: []uuid.UUID{u1, u2, u1},
		Payload:      map[string]any{"task": map[string]any{"title": "Close books"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(notifs) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(notifs))
	}
	for _, n := range notifs {
		if n.RuleID != nil {
			t.Error("direct sends have no rule")
		}
		if n.Subject != "Close books is done" {
			t.Errorf("unexpected subject %q", n.Subject)
		}
	}

	if _, err := h.eval.SendDirect(context.Background(), DirectSend{TenantID: h.tenant, TemplateID: h.tmpl.ID}); !errors.Is(err, ErrInvalidRecipient) {
		t.Errorf("expected ErrInvalidRecipient for empty recipients, got %v", err)
	}
}
