package domain

import (
	"testing"
	"time"
)

func TestAccrueUsage_SameDay(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	u := &User{DailyUsageMinutes: 30, DailyUsageDate: "2026-03-14"}
	u.AccrueUsage(15, now)
	if u.DailyUsageMinutes != 45 {
		t.Errorf("DailyUsageMinutes = %d, want 45", u.DailyUsageMinutes)
	}
	if u.DailyUsageDate != "2026-03-14" {
		t.Errorf("DailyUsageDate = %q, want 2026-03-14", u.DailyUsageDate)
	}
}

func TestAccrueUsage_NewDayResets(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 30, 0, 0, time.UTC)
	u := &User{DailyUsageMinutes: 200, DailyUsageDate: "2026-03-14"}
	u.AccrueUsage(15, now)
	if u.DailyUsageMinutes != 15 {
		t.Errorf("DailyUsageMinutes = %d, want 15 after day change", u.DailyUsageMinutes)
	}
	if u.DailyUsageDate != "2026-03-15" {
		t.Errorf("DailyUsageDate = %q, want 2026-03-15", u.DailyUsageDate)
	}
}

func TestAccrueUsage_EmptyDate(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	u := &User{}
	u.AccrueUsage(10, now)
	if u.DailyUsageMinutes != 10 || u.DailyUsageDate != "2026-03-14" {
		t.Errorf("got %d/%q, want 10/2026-03-14", u.DailyUsageMinutes, u.DailyUsageDate)
	}
}

func TestValidate(t *testing.T) {
	u := &User{}
	if err := u.Validate(); err == nil {
		t.Error("Validate should fail without email")
	}
	u.Email = "a@b.c"
	if err := u.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}
