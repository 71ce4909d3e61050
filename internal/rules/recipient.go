package rules

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lalithlochan/opsuite/internal/db"
)

// Recipient specification types accepted in stored rules.
const (
	RecipientUser     = "user"
	RecipientRole     = "role"
	RecipientCreator  = "creator"
	RecipientAssignee = "assignee"
	RecipientAll      = "all"
)

// Payload fields read by the creator and assignee recipient types.
const (
	FieldCreatedBy  = "createdBy"
	FieldAssigneeID = "assigneeId"
)

// ValidRecipientType reports whether t is a supported recipient type.
func ValidRecipientType(t string) bool {
	switch t {
	case RecipientUser, RecipientRole, RecipientCreator, RecipientAssignee, RecipientAll:
		return true
	}
	return false
}

// Directory looks up users for recipient resolution.
// *db.NotificationRepository implements it.
type Directory interface {
	ListUserIDsByRole(ctx context.Context, tenantID uuid.UUID, role string) ([]uuid.UUID, error)
	ListUserIDsPage(ctx context.Context, tenantID, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

// Resolver turns a rule's recipient specifications into user ids.
type Resolver struct {
	dir           Directory
	pageSize      int
	maxRecipients int
}

// NewResolver creates a resolver. maxRecipients caps one rule's fan-out.
func NewResolver(dir Directory, pageSize, maxRecipients int) *Resolver {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &Resolver{dir: dir, pageSize: pageSize, maxRecipients: maxRecipients}
}

// recipientSet keeps first-seen order and refuses to grow past max.
type recipientSet struct {
	ids  []uuid.UUID
	seen map[uuid.UUID]struct{}
	max  int
}

func (s *recipientSet) add(id uuid.UUID) error {
	if _, ok := s.seen[id]; ok {
		return nil
	}
	if s.max > 0 && len(s.ids) >= s.max {
		return fmt.Errorf("%w: more than %d", ErrTooManyRecipients, s.max)
	}
	s.seen[id] = struct{}{}
	s.ids = append(s.ids, id)
	return nil
}

// Resolve unions and deduplicates the recipients of one rule. Creator and
// assignee are skipped when the payload does not carry them.
func (r *Resolver) Resolve(ctx context.Context, tenantID uuid.UUID, specs []db.RecipientRule, payload map[string]any) ([]uuid.UUID, error) {
	set := &recipientSet{seen: make(map[uuid.UUID]struct{}), max: r.maxRecipients}

	for _, spec := range specs {
		switch spec.Type {
		case RecipientUser:
			id, err := uuid.Parse(spec.Value)
			if err != nil {
				return nil, fmt.Errorf("%w: user %q", ErrInvalidRecipient, spec.Value)
			}
			if err := set.add(id); err != nil {
				return nil, err
			}

		case RecipientRole:
			if spec.Value == "" {
				return nil, fmt.Errorf("%w: role recipient needs a value", ErrInvalidRecipient)
			}
			ids, err := r.dir.ListUserIDsByRole(ctx, tenantID, spec.Value)
			if err != nil {
				return nil, fmt.Errorf("list users with role %s: %w", spec.Value, err)
			}
			for _, id := range ids {
				if err := set.add(id); err != nil {
					return nil, err
				}
			}

		case RecipientCreator, RecipientAssignee:
			field := FieldCreatedBy
			if spec.Type == RecipientAssignee {
				field = FieldAssigneeID
			}
			id, ok, err := payloadUser(payload, field)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if err := set.add(id); err != nil {
				return nil, err
			}

		case RecipientAll:
			if err := r.addAll(ctx, tenantID, set); err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownRecipientType, spec.Type)
		}
	}

	return set.ids, nil
}

// addAll pages through the tenant's users by id.
func (r *Resolver) addAll(ctx context.Context, tenantID uuid.UUID, set *recipientSet) error {
	after := uuid.Nil
	for {
		page, err := r.dir.ListUserIDsPage(ctx, tenantID, after, r.pageSize)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		for _, id := range page {
			if err := set.add(id); err != nil {
				return err
			}
		}
		if len(page) < r.pageSize {
			return nil
		}
		after = page[len(page)-1]
	}
}

func payloadUser(payload map[string]any, field string) (uuid.UUID, bool, error) {
	v, found := Lookup(payload, field)
	if !found || v == nil {
		return uuid.Nil, false, nil
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return uuid.Nil, false, fmt.Errorf("%w: %s is not a user id", ErrInvalidRecipient, field)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("%w: %s %q", ErrInvalidRecipient, field, s)
	}
	return id, true, nil
}
