package guardrail

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// initiativeAssignmentName is the single assignment carrying the lab
// initiative on a container.
const initiativeAssignmentName = "lab-custom-initiative"

// legacyAssignmentNames are assignments written by earlier releases, removed
// best-effort during detach.
var legacyAssignmentNames = []string{
	"allowed-vm-sizes",
	"allowed-locations",
	"require-lab-tag",
}

// ErrNotConfigured is returned when no guardrail initiative id is configured.
// This is fatal to the provisioning chain, never silently skipped.
var ErrNotConfigured = errors.New("guardrail initiative id not configured")

// API is the subset of the policy client used by the manager.
type API interface {
	PutPolicyAssignment(ctx context.Context, scope, name, initiativeID string) error
	DeletePolicyAssignment(ctx context.Context, scope, name string) error
}

// Manager attaches the configured initiative to containers and detaches it on teardown.
type Manager struct {
	api          API
	initiativeID string
	logger       *log.Logger
}

// NewManager returns a Manager assigning the given initiative id.
func NewManager(api API, initiativeID string, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{api: api, initiativeID: initiativeID, logger: logger}
}

// Attach assigns the configured initiative at the container's scope.
func (m *Manager) Attach(ctx context.Context, containerName string) error {
	if m.initiativeID == "" {
		return ErrNotConfigured
	}
	scope := containerScope(containerName)
	if err := m.api.PutPolicyAssignment(ctx, scope, initiativeAssignmentName, m.initiativeID); err != nil {
		return fmt.Errorf("attach guardrail at %s: %w", scope, err)
	}
	return nil
}

// Detach removes the initiative assignment. Absence means a prior detach
// already won; it is logged and treated as success.
func (m *Manager) Detach(ctx context.Context, containerName string) error {
	scope := containerScope(containerName)
	err := m.api.DeletePolicyAssignment(ctx, scope, initiativeAssignmentName)
	if errors.Is(err, ErrAssignmentNotFound) {
		m.logger.Printf("guardrail: assignment at %s already removed", scope)
		return nil
	}
	if err != nil {
		return fmt.Errorf("detach guardrail at %s: %w", scope, err)
	}
	return nil
}

// CleanupLegacy removes individually named legacy assignments one at a time,
// tolerating not-found on each. Never blocks the primary teardown path.
func (m *Manager) CleanupLegacy(ctx context.Context, containerName string) {
	scope := containerScope(containerName)
	for _, name := range legacyAssignmentNames {
		err := m.api.DeletePolicyAssignment(ctx, scope, name)
		if err != nil && !errors.Is(err, ErrAssignmentNotFound) {
			m.logger.Printf("guardrail: legacy cleanup of %s at %s failed: %v", name, scope, err)
		}
	}
}

func containerScope(containerName string) string {
	return "/resourceGroups/" + containerName
}
