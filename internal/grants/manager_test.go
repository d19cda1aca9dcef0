package grants

import (
	"context"
	"errors"
	"testing"
)

type mockAPI struct {
	put     []RoleAssignment
	listed  map[string][]RoleAssignment
	deleted []string
	putErr  error
	delErr  map[string]error
}

func (m *mockAPI) PutAssignment(ctx context.Context, a RoleAssignment) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.put = append(m.put, a)
	return nil
}

func (m *mockAPI) ListAssignments(ctx context.Context, scope string) ([]RoleAssignment, error) {
	return m.listed[scope], nil
}

func (m *mockAPI) DeleteAssignment(ctx context.Context, name string) error {
	if err := m.delErr[name]; err != nil {
		return err
	}
	m.deleted = append(m.deleted, name)
	return nil
}

func TestAssignmentName_Deterministic(t *testing.T) {
	a := AssignmentName("obj-1", "/resourceGroups/rg-a")
	b := AssignmentName("obj-1", "/resourceGroups/rg-a")
	if a != b {
		t.Errorf("same inputs produced different names: %q vs %q", a, b)
	}
	c := AssignmentName("obj-2", "/resourceGroups/rg-a")
	if a == c {
		t.Error("different principals should produce different names")
	}
}

func TestAssignScopedRole(t *testing.T) {
	api := &mockAPI{}
	m := NewManager(api, "role-lab", nil)

	if err := m.AssignScopedRole(context.Background(), "obj-1", "rg-a"); err != nil {
		t.Fatalf("AssignScopedRole: %v", err)
	}
	if len(api.put) != 1 {
		t.Fatalf("put %d assignments, want 1", len(api.put))
	}
	got := api.put[0]
	if got.Scope != "/resourceGroups/rg-a" {
		t.Errorf("scope = %q, want container scope", got.Scope)
	}
	if got.RoleID != "role-lab" || got.PrincipalID != "obj-1" {
		t.Errorf("assignment = %+v", got)
	}
	if got.Name != AssignmentName("obj-1", got.Scope) {
		t.Errorf("name = %q, want deterministic name", got.Name)
	}
}

func TestAssignScopedRole_NoRoleConfigured(t *testing.T) {
	m := NewManager(&mockAPI{}, "", nil)
	if err := m.AssignScopedRole(context.Background(), "obj-1", "rg-a"); err == nil {
		t.Fatal("AssignScopedRole without role id should fail")
	}
}

func TestRevokeAllGrants_ContinuesPastFailures(t *testing.T) {
	scope := ContainerScope("rg-a")
	api := &mockAPI{
		listed: map[string][]RoleAssignment{
			scope: {
				{Name: "a1", PrincipalID: "obj-1"},
				{Name: "a2", PrincipalID: "obj-1"},
				{Name: "a3", PrincipalID: "other"},
			},
		},
		delErr: map[string]error{"a1": errors.New("locked")},
	}
	m := NewManager(api, "role-lab", nil)

	failed, err := m.RevokeAllGrants(context.Background(), "obj-1", "rg-a")
	if err != nil {
		t.Fatalf("RevokeAllGrants: %v", err)
	}
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	if len(api.deleted) != 1 || api.deleted[0] != "a2" {
		t.Errorf("deleted = %v, want only the target principal's surviving assignment", api.deleted)
	}
}

func TestRevokeAllGrants_Empty(t *testing.T) {
	api := &mockAPI{listed: map[string][]RoleAssignment{}}
	m := NewManager(api, "role-lab", nil)
	failed, err := m.RevokeAllGrants(context.Background(), "obj-1", "rg-a")
	if err != nil || failed != 0 {
		t.Errorf("RevokeAllGrants on empty scope: failed=%d err=%v", failed, err)
	}
}
