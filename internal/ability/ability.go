// Package ability maps a caller's role to what it may do.
package ability

// Subjects
const (
	SubjectProduct      = "product"
	SubjectRecipe       = "recipe"
	SubjectRule         = "rule"
	SubjectTemplate     = "template"
	SubjectNotification = "notification"
	SubjectEvent        = "event"
)

// Actions. ActionManage implies every other action.
const (
	ActionRead   = "read"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionManage = "manage"
)

// Roles
const (
	RoleOwner   = "owner"
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleMember  = "member"
	RoleViewer  = "viewer"
)

var allSubjects = []string{
	SubjectProduct, SubjectRecipe, SubjectRule,
	SubjectTemplate, SubjectNotification, SubjectEvent,
}

// Set is the capabilities of one role.
type Set struct {
	grants map[string]map[string]struct{}
}

func (s *Set) grant(subject string, actions ...string) {
	if s.grants[subject] == nil {
		s.grants[subject] = make(map[string]struct{})
	}
	for _, a := range actions {
		s.grants[subject][a] = struct{}{}
	}
}

// Can reports whether the role may perform action on subject.
func (s *Set) Can(action, subject string) bool {
	actions, ok := s.grants[subject]
	if !ok {
		return false
	}
	if _, ok := actions[ActionManage]; ok {
		return true
	}
	_, ok = actions[action]
	return ok
}

// For returns the capabilities of role. Unknown roles get nothing.
func For(role string) *Set {
	s := &Set{grants: make(map[string]map[string]struct{})}

	switch role {
	case RoleOwner, RoleAdmin:
		for _, subj := range allSubjects {
			s.grant(subj, ActionManage)
		}
	case RoleManager:
		s.grant(SubjectProduct, ActionManage)
		s.grant(SubjectRecipe, ActionManage)
		s.grant(SubjectRule, ActionRead, ActionCreate, ActionUpdate)
		s.grant(SubjectTemplate, ActionRead, ActionCreate, ActionUpdate)
		s.grant(SubjectNotification, ActionRead, ActionCreate)
		s.grant(SubjectEvent, ActionCreate)
	case RoleMember:
		s.grant(SubjectProduct, ActionRead)
		s.grant(SubjectRecipe, ActionRead, ActionCreate, ActionUpdate)
		s.grant(SubjectRule, ActionRead)
		s.grant(SubjectTemplate, ActionRead)
		s.grant(SubjectNotification, ActionRead)
		s.grant(SubjectEvent, ActionCreate)
	case RoleViewer:
		for _, subj := range allSubjects {
			if subj == SubjectEvent {
				continue
			}
			s.grant(subj, ActionRead)
		}
	}

	return s
}
