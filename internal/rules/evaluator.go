package rules

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lalithlochan/opsuite/internal/db"
	"github.com/lalithlochan/opsuite/internal/metrics"
)

// RuleStore loads rules and templates. *db.NotificationRepository implements it.
type RuleStore interface {
	ListActiveRules(ctx context.Context, tenantID uuid.UUID, trigger string) ([]*db.NotificationRule, error)
	GetTemplate(ctx context.Context, tenantID, id uuid.UUID) (*db.NotificationTemplate, error)
}

// Event is a trigger occurrence with the entity it concerns.
type Event struct {
	TenantID uuid.UUID
	Trigger  string
	Payload  map[string]any
}

// RuleOutcome is the result of evaluating one rule. Err is set when the rule
// was rejected or its dispatch failed; other rules are unaffected.
type RuleOutcome struct {
	RuleID         uuid.UUID `json:"ruleId"`
	RuleName       string    `json:"ruleName"`
	Matched        bool      `json:"matched"`
	RecipientCount int       `json:"recipientCount"`
	Err            error     `json:"-"`
	Error          string    `json:"error,omitempty"`
}

// BatchResult collects the outcome of every active rule for an event.
type BatchResult struct {
	Trigger  string        `json:"trigger"`
	Outcomes []RuleOutcome `json:"outcomes"`
}

// Summary lists the rules that matched or failed, omitting the ones whose
// conditions simply did not hold.
func (b *BatchResult) Summary() []RuleOutcome {
	out := make([]RuleOutcome, 0, len(b.Outcomes))
	for _, o := range b.Outcomes {
		if o.Matched || o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Failed lists the rules that errored.
func (b *BatchResult) Failed() []RuleOutcome {
	var out []RuleOutcome
	for _, o := range b.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Config bounds recipient fan-out.
type Config struct {
	MaxRecipients int
	PageSize      int
	Concurrency   int
}

// Evaluator matches events to rules and dispatches notifications.
type Evaluator struct {
	rules       RuleStore
	resolver    *Resolver
	dispatcher  *Dispatcher
	concurrency int
	logger      *zap.Logger
}

// NewEvaluator creates an evaluator
func NewEvaluator(rules RuleStore, dir Directory, dispatcher *Dispatcher, cfg Config, logger *zap.Logger) *Evaluator {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Evaluator{
		rules:       rules,
		resolver:    NewResolver(dir, cfg.PageSize, cfg.MaxRecipients),
		dispatcher:  dispatcher,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Evaluate runs every active rule bound to the event's trigger. Rules are
// isolated from one another; only failing to load the rule set is an error.
func (e *Evaluator) Evaluate(ctx context.Context, ev Event) (*BatchResult, error) {
	rules, err := e.rules.ListActiveRules(ctx, ev.TenantID, ev.Trigger)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}

	result := &BatchResult{Trigger: ev.Trigger, Outcomes: make([]RuleOutcome, 0, len(rules))}
	for _, rule := range rules {
		outcome := e.evaluateRule(ctx, ev, rule)

		switch {
		case outcome.Err != nil:
			outcome.Error = outcome.Err.Error()
			metrics.RecordRuleEvaluation(ev.Trigger, "failed")
			e.logger.Warn("rule evaluation failed",
				zap.Error(outcome.Err),
				zap.String("tenant_id", ev.TenantID.String()),
				zap.String("rule_id", rule.ID.String()),
				zap.String("trigger", ev.Trigger),
			)
		case outcome.Matched:
			metrics.RecordRuleEvaluation(ev.Trigger, "matched")
		default:
			metrics.RecordRuleEvaluation(ev.Trigger, "skipped")
		}

		result.Outcomes = append(result.Outcomes, outcome)
	}

	e.logger.Info("event evaluated",
		zap.String("tenant_id", ev.TenantID.String()),
		zap.String("trigger", ev.Trigger),
		zap.Int("rules", len(rules)),
		zap.Int("failed", len(result.Failed())),
	)
	return result, nil
}

func (e *Evaluator) evaluateRule(ctx context.Context, ev Event, rule *db.NotificationRule) (outcome RuleOutcome) {
	outcome = RuleOutcome{RuleID: rule.ID, RuleName: rule.Name}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("rule evaluation panicked",
				zap.Any("panic", r),
				zap.String("rule_id", rule.ID.String()),
				zap.Stack("stack"),
			)
			outcome.Err = fmt.Errorf("%w: %v", ErrRulePanicked, r)
		}
	}()

	matched, err := Match(rule.Conditions, ev.Payload)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	if !matched {
		return outcome
	}
	outcome.Matched = true

	tmpl, err := e.template(ctx, ev.TenantID, rule.TemplateID)
	if err != nil {
		outcome.Err = err
		return outcome
	}

	recipients, err := e.resolver.Resolve(ctx, ev.TenantID, rule.Recipients, ev.Payload)
	if err != nil {
		outcome.Err = err
		return outcome
	}

	ruleID := rule.ID
	vars := ResolveVariables(tmpl.Variables, ev.Payload)
	sent, err := e.fanOut(ctx, recipients, func(recipientID uuid.UUID) Message {
		return Message{
			TenantID:    ev.TenantID,
			RuleID:      &ruleID,
			Template:    tmpl,
			RecipientID: recipientID,
			Variables:   vars,
		}
	})
	outcome.RecipientCount = sent
	outcome.Err = err
	return outcome
}

func (e *Evaluator) template(ctx context.Context, tenantID, id uuid.UUID) (*db.NotificationTemplate, error) {
	tmpl, err := e.rules.GetTemplate(ctx, tenantID, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	if !tmpl.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrTemplateInactive, id)
	}
	return tmpl, nil
}

// fanOut dispatches to every recipient with bounded concurrency. Every
// recipient is attempted; the count covers the ones that were enqueued.
func (e *Evaluator) fanOut(ctx context.Context, recipients []uuid.UUID, build func(uuid.UUID) Message) (int, error) {
	var (
		g    errgroup.Group
		sent atomic.Int64
	)
	g.SetLimit(e.concurrency)

	errs := make([]error, len(recipients))
	for i, id := range recipients {
		g.Go(func() error {
			// A panic here would otherwise take down the process.
			defer func() {
				if r := recover(); r != nil {
					e.logger.Error("dispatch panicked",
						zap.Any("panic", r),
						zap.String("recipient_id", id.String()),
						zap.Stack("stack"),
					)
					errs[i] = fmt.Errorf("%w: recipient %s: %v", ErrRulePanicked, id, r)
				}
			}()
			if _, err := e.dispatcher.Dispatch(ctx, build(id)); err != nil {
				errs[i] = err
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return int(sent.Load()), errors.Join(errs...)
}

// DirectSend is an explicit notification not produced by a rule.
type DirectSend struct {
	TenantID     uuid.UUID      `json:"-"`
	TemplateID   uuid.UUID      `json:"template_id"`
	RecipientIDs []uuid.UUID    `json:"recipient_ids"`
	Payload      map[string]any `json:"payload"`
}

// SendDirect dispatches a template to explicit recipients. Duplicates are
// collapsed. The returned notifications include ones marked FAILED on enqueue.
func (e *Evaluator) SendDirect(ctx context.Context, req DirectSend) ([]*db.Notification, error) {
	if len(req.RecipientIDs) == 0 {
		return nil, fmt.Errorf("%w: no recipients", ErrInvalidRecipient)
	}

	tmpl, err := e.template(ctx, req.TenantID, req.TemplateID)
	if err != nil {
		return nil, err
	}

	set := &recipientSet{seen: make(map[uuid.UUID]struct{}), max: e.resolver.maxRecipients}
	for _, id := range req.RecipientIDs {
		if id == uuid.Nil {
			return nil, fmt.Errorf("%w: nil user id", ErrInvalidRecipient)
		}
		if err := set.add(id); err != nil {
			return nil, err
		}
	}

	vars := ResolveVariables(tmpl.Variables, req.Payload)
	notifications := make([]*db.Notification, 0, len(set.ids))
	var errs []error
	for _, id := range set.ids {
		notif, err := e.dispatcher.Dispatch(ctx, Message{
			TenantID:    req.TenantID,
			Template:    tmpl,
			RecipientID: id,
			Variables:   vars,
		})
		if notif != nil {
			notifications = append(notifications, notif)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	return notifications, errors.Join(errs...)
}
