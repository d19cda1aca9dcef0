package domain

import (
	"errors"
	"time"
)

// User is the core user entity. Daily usage tracks lab minutes consumed on the
// current calendar day (UsageDate, formatted YYYY-MM-DD); the counter resets
// whenever the stored date differs from today.
type User struct {
	ID                string
	OrgID             string
	Email             string
	Name              string
	DailyUsageMinutes int
	DailyUsageDate    string
	CreatedAt         time.Time
}

// AccrueUsage adds minutes to the daily counter, resetting it first when the
// calendar day has changed since the last accrual.
func (u *User) AccrueUsage(minutes int, now time.Time) {
	day := now.UTC().Format("2006-01-02")
	if u.DailyUsageDate != day {
		u.DailyUsageDate = day
		u.DailyUsageMinutes = 0
	}
	u.DailyUsageMinutes += minutes
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	return nil
}
