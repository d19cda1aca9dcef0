package grants

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
)

// assignmentNamespace seeds deterministic assignment names so repeating an
// assignment for the same principal and scope produces the same record.
var assignmentNamespace = uuid.MustParse("8a9e0a6e-5f32-4c61-9c3a-2f8d41b0a7e1")

// API is the subset of the authorization client used by the manager.
type API interface {
	PutAssignment(ctx context.Context, a RoleAssignment) error
	ListAssignments(ctx context.Context, scope string) ([]RoleAssignment, error)
	DeleteAssignment(ctx context.Context, name string) error
}

// Manager assigns a role to a principal at exactly one container scope and
// revokes every grant a principal holds there.
type Manager struct {
	api    API
	roleID string
	logger *log.Logger
}

// NewManager returns a Manager granting the given role definition id.
func NewManager(api API, roleID string, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{api: api, roleID: roleID, logger: logger}
}

// AssignmentName derives the deterministic assignment name for a principal at a scope.
func AssignmentName(principalID, scope string) string {
	return uuid.NewSHA1(assignmentNamespace, []byte(principalID+"|"+scope)).String()
}

// ContainerScope builds the scope string for a single resource container.
func ContainerScope(containerName string) string {
	return "/resourceGroups/" + containerName
}

// AssignScopedRole grants the configured role to the principal within one
// container. Failures are fatal to the provisioning chain; the caller is
// responsible for compensating cleanup of the identity it created.
func (m *Manager) AssignScopedRole(ctx context.Context, principalID, containerName string) error {
	if m.roleID == "" {
		return errors.New("grants: lab role id not configured")
	}
	scope := ContainerScope(containerName)
	a := RoleAssignment{
		Name:        AssignmentName(principalID, scope),
		PrincipalID: principalID,
		RoleID:      m.roleID,
		Scope:       scope,
	}
	if err := m.api.PutAssignment(ctx, a); err != nil {
		return fmt.Errorf("assign role to %s at %s: %w", principalID, scope, err)
	}
	return nil
}

// RevokeAllGrants deletes every assignment the principal holds at the
// container scope. It never assumes a single assignment exists and continues
// past individual delete failures; the count of failures is reported back so
// teardown can record them without aborting.
func (m *Manager) RevokeAllGrants(ctx context.Context, principalID, containerName string) (failed int, err error) {
	scope := ContainerScope(containerName)
	assignments, err := m.api.ListAssignments(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("revoke grants at %s: %w", scope, err)
	}
	for _, a := range assignments {
		if a.PrincipalID != principalID {
			continue
		}
		if err := m.api.DeleteAssignment(ctx, a.Name); err != nil {
			m.logger.Printf("grants: delete assignment %s failed: %v", a.Name, err)
			failed++
		}
	}
	return failed, nil
}
