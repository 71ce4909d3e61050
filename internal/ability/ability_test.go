package ability

import "testing"

func TestFor(t *testing.T) {
	tests := []struct {
		role    string
		action  string
		subject string
		want    bool
	}{
		{RoleOwner, ActionDelete, SubjectRule, true},
		{RoleAdmin, ActionCreate, SubjectEvent, true},
		{RoleManager, ActionDelete, SubjectRecipe, true},
		{RoleManager, ActionDelete, SubjectRule, false},
		{RoleManager, ActionCreate, SubjectNotification, true},
		{RoleMember, ActionUpdate, SubjectRecipe, true},
		{RoleMember, ActionDelete, SubjectRecipe, false},
		{RoleMember, ActionCreate, SubjectRule, false},
		{RoleMember, ActionCreate, SubjectEvent, true},
		{RoleViewer, ActionRead, SubjectProduct, true},
		{RoleViewer, ActionCreate, SubjectRecipe, false},
		{RoleViewer, ActionCreate, SubjectEvent, false},
		{"intruder", ActionRead, SubjectProduct, false},
		{"", ActionRead, SubjectProduct, false},
		{RoleOwner, ActionRead, "invoice", false},
	}

	for _, tt := range tests {
		t.Run(tt.role+"/"+tt.action+"/"+tt.subject, func(t *testing.T) {
			if got := For(tt.role).Can(tt.action, tt.subject); got != tt.want {
				t.Errorf("For(%q).Can(%q, %q) = %v, want %v", tt.role, tt.action, tt.subject, got, tt.want)
			}
		})
	}
}

func TestManageImpliesEveryAction(t *testing.T) {
	set := For(RoleOwner)
	for _, subj := range allSubjects {
		for _, action := range []string{ActionRead, ActionCreate, ActionUpdate, ActionDelete, ActionManage} {
			if !set.Can(action, subj) {
				t.Errorf("owner should be able to %s %s", action, subj)
			}
		}
	}
}
