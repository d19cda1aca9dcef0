package domain

import (
	"errors"
	"time"
)

// Course is a catalog entry describing a lab course and the VM profile
// its lab environments are provisioned from.
type Course struct {
	ID                   string
	Code                 string
	Title                string
	VMSize               string
	VMImage              string
	Location             string
	RequiresPortalAccess bool
	Tags                 map[string]string
	CreatedAt            time.Time
}

// Validate validates the course for persistence. Returns an error describing the first validation failure.
func (c *Course) Validate() error {
	if c.Code == "" {
		return errors.New("code is required")
	}
	if c.Title == "" {
		return errors.New("title is required")
	}
	if c.VMSize == "" {
		return errors.New("vm size is required")
	}
	if c.VMImage == "" {
		return errors.New("vm image is required")
	}
	if c.Location == "" {
		return errors.New("location is required")
	}
	return nil
}
