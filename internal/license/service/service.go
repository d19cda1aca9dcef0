// Package service manages license pools and course assignments.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"cloudlab-control-plane/internal/audit"
	catalogdomain "cloudlab-control-plane/internal/catalog/domain"
	orgdomain "cloudlab-control-plane/internal/organization/domain"
	purchasedomain "cloudlab-control-plane/internal/purchase/domain"
	userdomain "cloudlab-control-plane/internal/user/domain"
)

var (
	ErrPurchaseNotFound = errors.New("lab purchase not found")
	ErrOrgNotFound      = errors.New("organization not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrCourseNotFound   = errors.New("course not found")
	ErrUserNotInOrg     = errors.New("user does not belong to this organization")
	ErrNoSeatsAvailable = errors.New("license pool exhausted or expired")
	ErrAlreadyAssigned  = errors.New("course already assigned to this user")
	ErrPurchaseActive   = errors.New("purchase has provisioned resources; tear down first")
	ErrBadDuration      = errors.New("license duration must be 90, 180, or 365 days")
	ErrBadQuantity      = errors.New("license quantity must be positive")
)

// allowedDurations are the purchasable license terms in days.
var allowedDurations = map[int]bool{90: true, 180: true, 365: true}

// OrgRepo is the subset of the organization repository used here.
type OrgRepo interface {
	GetOrganizationByID(ctx context.Context, id string) (*orgdomain.Org, error)
	GetLicensePool(ctx context.Context, orgID, courseID string) (*orgdomain.LicensePool, error)
	ConsumeLicense(ctx context.Context, orgID, courseID string, now time.Time) (bool, error)
	ReleaseLicense(ctx context.Context, orgID, courseID string) error
	AddLicenses(ctx context.Context, orgID, courseID string, quantity int, expiresAt time.Time) error
}

// UserRepo is the subset of the user repository used here.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// CourseRepo is the subset of the catalog repository used here.
type CourseRepo interface {
	GetCourseByID(ctx context.Context, id string) (*catalogdomain.Course, error)
}

// PurchaseRepo is the subset of the purchase repository used here.
type PurchaseRepo interface {
	GetByID(ctx context.Context, id string) (*purchasedomain.Purchase, error)
	GetByUserAndCourse(ctx context.Context, userID, courseID string) (*purchasedomain.Purchase, error)
	Create(ctx context.Context, p *purchasedomain.Purchase) error
	UpdateStatus(ctx context.Context, id string, status purchasedomain.Status) error
}

// Service assigns licensed courses to org members and manages pool purchases.
type Service struct {
	orgs      OrgRepo
	users     UserRepo
	courses   CourseRepo
	purchases PurchaseRepo
	auditor   audit.AuditLogger
	logger    *log.Logger

	maxLaunches int
	// reclaimOnUnassign returns the seat to the pool when an assignment is
	// removed. Off by default: a used seat stays spent.
	reclaimOnUnassign bool
	now               func() time.Time
}

// NewService returns a license Service. auditor may be nil.
func NewService(orgs OrgRepo, users UserRepo, courses CourseRepo, purchases PurchaseRepo, auditor audit.AuditLogger, logger *log.Logger, maxLaunches int, reclaimOnUnassign bool) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		orgs:              orgs,
		users:             users,
		courses:           courses,
		purchases:         purchases,
		auditor:           auditor,
		logger:            logger,
		maxLaunches:       maxLaunches,
		reclaimOnUnassign: reclaimOnUnassign,
		now:               time.Now,
	}
}

// AssignCourse consumes one seat from the org's pool for the course and
// creates a lab purchase for the member. The purchase's access window ends
// when the pool expires. Duplicate assignments are rejected before a seat is
// taken.
func (s *Service) AssignCourse(ctx context.Context, orgID, userID, courseID string) (*purchasedomain.Purchase, error) {
	org, err := s.orgs.GetOrganizationByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, ErrOrgNotFound
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.OrgID != orgID {
		return nil, ErrUserNotInOrg
	}
	course, err := s.courses.GetCourseByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, ErrCourseNotFound
	}
	existing, err := s.purchases.GetByUserAndCourse(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAlreadyAssigned
	}

	pool, err := s.orgs.GetLicensePool(ctx, orgID, courseID)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrNoSeatsAvailable
	}
	now := s.now().UTC()
	ok, err := s.orgs.ConsumeLicense(ctx, orgID, courseID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSeatsAvailable
	}

	p := &purchasedomain.Purchase{
		ID:              uuid.NewString(),
		UserID:          userID,
		CourseID:        courseID,
		OrgID:           orgID,
		Status:          purchasedomain.StatusUnprovisioned,
		MaxLaunches:     s.maxLaunches,
		AccessExpiresAt: pool.ExpiresAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.purchases.Create(ctx, p); err != nil {
		// Return the seat we just took so the pool does not leak.
		if rerr := s.orgs.ReleaseLicense(ctx, orgID, courseID); rerr != nil {
			s.logger.Printf("license: seat release after failed assignment: %v", rerr)
		}
		return nil, fmt.Errorf("create purchase: %w", err)
	}
	s.audit(ctx, orgID, userID, "license.assign", courseID)
	return p, nil
}

// PurchaseLicenses adds quantity seats to the org's pool for the course, with
// the given term in days. Terms outside 90/180/365 are rejected.
func (s *Service) PurchaseLicenses(ctx context.Context, orgID, courseID string, quantity, durationDays int) (*orgdomain.LicensePool, error) {
	if quantity <= 0 {
		return nil, ErrBadQuantity
	}
	if !allowedDurations[durationDays] {
		return nil, ErrBadDuration
	}
	org, err := s.orgs.GetOrganizationByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, ErrOrgNotFound
	}
	course, err := s.courses.GetCourseByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, ErrCourseNotFound
	}

	expiresAt := s.now().UTC().AddDate(0, 0, durationDays)
	if err := s.orgs.AddLicenses(ctx, orgID, courseID, quantity, expiresAt); err != nil {
		return nil, fmt.Errorf("add licenses: %w", err)
	}
	s.audit(ctx, orgID, "", "license.purchase", courseID)
	return s.orgs.GetLicensePool(ctx, orgID, courseID)
}

// Unassign removes a member's unprovisioned purchase. A purchase with live or
// preserved cloud state must be torn down first. The seat is returned to the
// pool only when seat reclamation is enabled.
func (s *Service) Unassign(ctx context.Context, purchaseID string) error {
	p, err := s.purchases.GetByID(ctx, purchaseID)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrPurchaseNotFound
	}
	if p.Status != purchasedomain.StatusUnprovisioned || p.ContainerName != "" {
		return ErrPurchaseActive
	}
	if err := s.purchases.UpdateStatus(ctx, purchaseID, purchasedomain.StatusDestroyed); err != nil {
		return err
	}
	if s.reclaimOnUnassign {
		if err := s.orgs.ReleaseLicense(ctx, p.OrgID, p.CourseID); err != nil {
			s.logger.Printf("license: seat reclaim for %s: %v", purchaseID, err)
		}
	}
	s.audit(ctx, p.OrgID, p.UserID, "license.unassign", p.CourseID)
	return nil
}

func (s *Service) audit(ctx context.Context, orgID, userID, action, resource string) {
	if s.auditor == nil {
		return
	}
	s.auditor.LogEvent(ctx, orgID, userID, action, resource, "")
}
