package domain

import (
	"testing"
	"time"
)

func TestExpired(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	p := &Purchase{AccessExpiresAt: now.Add(time.Minute)}
	if p.Expired(now) {
		t.Error("purchase with future expiry should not be expired")
	}
	p.AccessExpiresAt = now
	if !p.Expired(now) {
		t.Error("purchase expiring exactly now should be expired")
	}
}

func TestLaunchesRemaining(t *testing.T) {
	cases := []struct {
		name  string
		count int
		max   int
		want  int
	}{
		{"fresh", 0, 10, 10},
		{"partial", 4, 10, 6},
		{"exhausted", 10, 10, 0},
		{"over", 11, 10, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &Purchase{LaunchCount: tc.count, MaxLaunches: tc.max}
			if got := p.LaunchesRemaining(); got != tc.want {
				t.Errorf("LaunchesRemaining() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	p := &Purchase{
		UserID:          "u1",
		CourseID:        "c1",
		MaxLaunches:     10,
		AccessExpiresAt: time.Now().Add(time.Hour),
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
	p.MaxLaunches = 0
	if err := p.Validate(); err == nil {
		t.Error("Validate should fail with zero max launches")
	}
}
