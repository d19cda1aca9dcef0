// Package compute abstracts the driver that materializes lab VMs. The
// orchestrator only sequences calls on this boundary; how a VM and its network
// come to exist is the driver's business.
package compute

import (
	"context"
	"errors"
)

// State is the driver-reported lifecycle state of an environment.
type State string

const (
	StatePending  State = "pending"
	StateRunning  State = "running"
	StateStopped  State = "stopped"
	StateNotFound State = "not_found"
)

// ErrUnavailable wraps transient provider failures; callers may retry.
var ErrUnavailable = errors.New("compute provider unavailable")

// EnvironmentSpec describes the environment to create or reuse.
type EnvironmentSpec struct {
	// ResourceGroup reuses an existing group when set; otherwise the driver
	// allocates under NamePrefix.
	ResourceGroup string
	NamePrefix    string
	VMName        string
	Size          string
	Image         string
	Location      string
	// SnapshotID boots the VM from a preserved disk snapshot instead of Image.
	SnapshotID string
	Labels     map[string]string
	// GatewayUsername/GatewayPassword provision the broker-side user alongside the VM.
	GatewayUsername string
	GatewayPassword string
}

// Environment is the result of a create-or-reuse call.
type Environment struct {
	ResourceGroup string
	VMName        string
	PublicAddress string
	// ConnectionID is set when the driver synchronized the gateway connection.
	ConnectionID string
}

// EnvStatus is a point-in-time driver status report.
type EnvStatus struct {
	State         State
	PublicAddress string
}

// Driver materializes, inspects, and dismantles lab environments.
type Driver interface {
	// CreateOrReuseEnvironment is idempotent against a running environment:
	// when the VM already runs and its address is known, it synchronizes the
	// gateway connection instead of creating anything.
	CreateOrReuseEnvironment(ctx context.Context, spec EnvironmentSpec) (*Environment, error)
	GetStatus(ctx context.Context, resourceGroup string) (*EnvStatus, error)
	Restart(ctx context.Context, resourceGroup string) error
	// DeleteEnvironment removes the whole group; gatewayUsername, when
	// non-empty, also removes the broker-side user record.
	DeleteEnvironment(ctx context.Context, resourceGroup, gatewayUsername string) error
	// CreateSnapshot snapshots the environment's disk, keeping only the newest
	// snapshot for the group. Returns the snapshot reference.
	CreateSnapshot(ctx context.Context, resourceGroup string) (string, error)
	DeleteSnapshot(ctx context.Context, snapshotID, resourceGroup string) error
	// ReleaseCompute deletes the VM and, when gatewayUsername is non-empty,
	// the broker-side user record, but keeps the group and its snapshots.
	ReleaseCompute(ctx context.Context, resourceGroup, gatewayUsername string) error
	// SyncGatewayConnection points the broker connection for vmName at address,
	// reusing existingConnectionID when given. Returns the connection id.
	SyncGatewayConnection(ctx context.Context, gatewayUsername, vmName, address, existingConnectionID string) (string, error)
}
