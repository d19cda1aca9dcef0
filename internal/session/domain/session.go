package domain

import "time"

// Status is the lifecycle state of an active session.
type Status string

const (
	StatusProvisioning Status = "provisioning"
	StatusRunning      Status = "running"
	StatusRestarting   Status = "restarting"
	// StatusNotFound and StatusStopped are terminal-for-polling signals
	// reported on status queries, never stored.
	StatusNotFound Status = "not_found"
	StatusStopped  Status = "stopped"
)

// ActiveSession is the live provisioning record for a lab purchase. The
// container name doubles as the session's resource identity on the provider.
type ActiveSession struct {
	ID            string
	PurchaseID    string
	UserID        string
	Status        Status
	ContainerName string
	VMName        string
	GatewayUser   string
	ConnectionID  string
	// Portal fields are set only for courses requiring direct cloud-portal
	// access; they name the separate portal identity and its own container.
	PortalPrincipal string
	PortalPassword  string
	PortalObjectID  string
	PortalContainer string
	StartedAt       time.Time
	ExpiresAt       time.Time
}

// HasPortalAccess reports whether the portal chain already ran for this session.
func (s *ActiveSession) HasPortalAccess() bool {
	return s.PortalPrincipal != ""
}

// ExpiredAt reports whether the session passed its hard deadline at now.
func (s *ActiveSession) ExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// ElapsedMinutes is the whole minutes between session start and now, never negative.
func (s *ActiveSession) ElapsedMinutes(now time.Time) int {
	d := now.Sub(s.StartedAt)
	if d < 0 {
		return 0
	}
	return int(d.Minutes())
}
