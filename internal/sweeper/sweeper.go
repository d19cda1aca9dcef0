// Package sweeper reclaims expired lab sessions and enforces launch limits.
package sweeper

import (
	"context"
	"fmt"
	"log"
	"time"

	"cloudlab-control-plane/internal/audit"
	purchasedomain "cloudlab-control-plane/internal/purchase/domain"
	sessiondomain "cloudlab-control-plane/internal/session/domain"
	sessionservice "cloudlab-control-plane/internal/session/service"
	userdomain "cloudlab-control-plane/internal/user/domain"
)

// orphanMaxAge is how old a directory principal must be before the sweep
// removes it when no live session references it.
const orphanMaxAge = 24 * time.Hour

// Gate enforces the launch budget and access window ahead of provisioning.
type Gate struct{}

// CanLaunch rejects a launch when the purchase's access window has closed or
// its launch budget is spent.
func (Gate) CanLaunch(p *purchasedomain.Purchase, now time.Time) error {
	if p.Expired(now) {
		return sessionservice.ErrEntitlementExpired
	}
	if p.LaunchesRemaining() == 0 {
		return sessionservice.ErrQuotaExceeded
	}
	return nil
}

// Teardowner dismantles one purchase's environment.
type Teardowner interface {
	Teardown(ctx context.Context, purchaseID string) (*sessiondomain.TeardownReport, error)
}

// SessionLister is the subset of the session repository used by the sweep.
type SessionLister interface {
	ListExpired(ctx context.Context, now time.Time) ([]*sessiondomain.ActiveSession, error)
	ListPrincipals(ctx context.Context) ([]string, error)
}

// UserRepo is the subset of the user repository used for usage accrual.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	UpdateDailyUsage(ctx context.Context, userID string, minutes int, date string) error
}

// IdentityJanitor removes directory principals no live session knows about.
type IdentityJanitor interface {
	CleanupOrphans(ctx context.Context, known map[string]bool, maxAge time.Duration, now time.Time) (int, error)
}

// Summary is the outcome of one sweep run.
type Summary struct {
	Expired        int `json:"expired"`
	Swept          int `json:"swept"`
	Failed         int `json:"failed"`
	OrphansRemoved int `json:"orphansRemoved"`
}

// Sweeper tears down sessions past their hard deadline, accrues usage
// minutes, and cleans up orphaned directory identities.
type Sweeper struct {
	sessions SessionLister
	users    UserRepo
	teardown Teardowner
	janitor  IdentityJanitor
	auditor  audit.AuditLogger
	logger   *log.Logger
}

// NewSweeper returns a Sweeper. janitor and auditor may be nil.
func NewSweeper(sessions SessionLister, users UserRepo, teardown Teardowner, janitor IdentityJanitor, auditor audit.AuditLogger, logger *log.Logger) *Sweeper {
	if logger == nil {
		logger = log.Default()
	}
	return &Sweeper{
		sessions: sessions,
		users:    users,
		teardown: teardown,
		janitor:  janitor,
		auditor:  auditor,
		logger:   logger,
	}
}

// SweepExpired reclaims every session whose deadline passed before now. Each
// session is handled independently: one failing teardown does not stop the
// sweep. A session already cleared by a concurrent teardown just drops out of
// the expired list, so re-running the sweep is safe.
func (s *Sweeper) SweepExpired(ctx context.Context, now time.Time) (*Summary, error) {
	expired, err := s.sessions.ListExpired(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}
	summary := &Summary{Expired: len(expired)}

	for _, sess := range expired {
		s.accrueUsage(ctx, sess, now)
		report, err := s.teardown.Teardown(ctx, sess.PurchaseID)
		if err != nil {
			s.logger.Printf("sweeper: teardown %s failed: %v", sess.PurchaseID, err)
			summary.Failed++
			continue
		}
		if report.HasFailures() {
			s.logger.Printf("sweeper: teardown %s completed with failed steps: %+v", sess.PurchaseID, report.Steps)
		}
		summary.Swept++
	}

	if s.janitor != nil {
		removed, err := s.cleanupOrphans(ctx, now)
		if err != nil {
			s.logger.Printf("sweeper: orphan cleanup failed: %v", err)
		}
		summary.OrphansRemoved = removed
	}

	if s.auditor != nil {
		meta := fmt.Sprintf(`{"expired":%d,"swept":%d,"failed":%d,"orphansRemoved":%d}`,
			summary.Expired, summary.Swept, summary.Failed, summary.OrphansRemoved)
		s.auditor.LogEvent(ctx, audit.SentinelOrgID, "", "sweep.run", "sessions", meta)
	}
	return summary, nil
}

// accrueUsage adds the session's elapsed minutes to the owner's daily counter,
// resetting it on a calendar-day change. Best-effort.
func (s *Sweeper) accrueUsage(ctx context.Context, sess *sessiondomain.ActiveSession, now time.Time) {
	user, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil || user == nil {
		s.logger.Printf("sweeper: usage accrual skipped for user %s: %v", sess.UserID, err)
		return
	}
	user.AccrueUsage(sess.ElapsedMinutes(now), now)
	if err := s.users.UpdateDailyUsage(ctx, user.ID, user.DailyUsageMinutes, user.DailyUsageDate); err != nil {
		s.logger.Printf("sweeper: usage accrual persist failed for user %s: %v", user.ID, err)
	}
}

// cleanupOrphans removes directory principals older than orphanMaxAge that no
// live session references. These accumulate when a launch dies between
// identity creation and the portal-access record being written.
func (s *Sweeper) cleanupOrphans(ctx context.Context, now time.Time) (int, error) {
	principals, err := s.sessions.ListPrincipals(ctx)
	if err != nil {
		return 0, fmt.Errorf("list live principals: %w", err)
	}
	known := make(map[string]bool, len(principals))
	for _, p := range principals {
		known[p] = true
	}
	return s.janitor.CleanupOrphans(ctx, known, orphanMaxAge, now)
}
