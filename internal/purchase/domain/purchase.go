package domain

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a lab purchase's environment.
type Status string

const (
	StatusUnprovisioned Status = "unprovisioned"
	StatusProvisioning  Status = "provisioning"
	StatusRunning       Status = "running"
	StatusRestarting    Status = "restarting"
	// StatusStopped means compute was released but the resource container and
	// a disk snapshot were kept for relaunch.
	StatusStopped   Status = "stopped"
	StatusDestroyed Status = "destroyed"
)

// Purchase is a user's entitlement to one course lab: quota counters, access
// window, and references to whatever cloud state survives between sessions.
type Purchase struct {
	ID               string
	UserID           string
	CourseID         string
	OrgID            string
	Status           Status
	LaunchCount      int
	MaxLaunches      int
	TotalMinutesUsed int
	AccessExpiresAt  time.Time
	// PrincipalName is the directory principal provisioned for this purchase,
	// empty until the first launch.
	PrincipalName string
	// ContainerName is the preserved resource container, kept across a
	// close-with-snapshot so relaunch lands in the same container.
	ContainerName string
	SnapshotID    string
	TaskProgress  map[string]bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Expired reports whether the access window has closed at the given time.
func (p *Purchase) Expired(now time.Time) bool {
	return !p.AccessExpiresAt.After(now)
}

// LaunchesRemaining reports how many launches are left, never negative.
func (p *Purchase) LaunchesRemaining() int {
	if p.LaunchCount >= p.MaxLaunches {
		return 0
	}
	return p.MaxLaunches - p.LaunchCount
}

// Validate validates the purchase for persistence. Returns an error describing the first validation failure.
func (p *Purchase) Validate() error {
	if p.UserID == "" {
		return errors.New("user id is required")
	}
	if p.CourseID == "" {
		return errors.New("course id is required")
	}
	if p.MaxLaunches <= 0 {
		return errors.New("max launches must be positive")
	}
	if p.AccessExpiresAt.IsZero() {
		return errors.New("access expiry is required")
	}
	return nil
}
