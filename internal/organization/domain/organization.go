package domain

import (
	"errors"
	"time"
)

// Org represents a customer organization holding license pools.
type Org struct {
	ID         string
	Name       string
	AdminEmail string
	CreatedAt  time.Time
}

// LicensePool is a per-organization, per-course pool of lab seats.
// A seat is consumed when a course is assigned to a member; whether it is
// returned on unassignment is an operator policy, not a pool property.
type LicensePool struct {
	ID        string
	OrgID     string
	CourseID  string
	Total     int
	Used      int
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Available reports how many unconsumed seats remain.
func (p *LicensePool) Available() int {
	return p.Total - p.Used
}

// Expired reports whether the pool has passed its expiry at the given time.
func (p *LicensePool) Expired(now time.Time) bool {
	return !p.ExpiresAt.After(now)
}

// Validate validates the organization for persistence. Returns an error describing the first validation failure.
func (o *Org) Validate() error {
	if o.Name == "" {
		return errors.New("name is required")
	}
	return nil
}
