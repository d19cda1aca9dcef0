package service

import (
	"context"
	"errors"
	"testing"
	"time"

	catalogdomain "cloudlab-control-plane/internal/catalog/domain"
	orgdomain "cloudlab-control-plane/internal/organization/domain"
	purchasedomain "cloudlab-control-plane/internal/purchase/domain"
	userdomain "cloudlab-control-plane/internal/user/domain"
)

var licNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// mockOrgRepo implements OrgRepo for tests.
type mockOrgRepo struct {
	org        *orgdomain.Org
	pool       *orgdomain.LicensePool
	consumeOK  bool
	consumeErr error
	consumed   int
	released   int
	added      int
	addedQty   int
	addedExp   time.Time
}

func (m *mockOrgRepo) GetOrganizationByID(ctx context.Context, id string) (*orgdomain.Org, error) {
	return m.org, nil
}

func (m *mockOrgRepo) GetLicensePool(ctx context.Context, orgID, courseID string) (*orgdomain.LicensePool, error) {
	return m.pool, nil
}

func (m *mockOrgRepo) ConsumeLicense(ctx context.Context, orgID, courseID string, now time.Time) (bool, error) {
	m.consumed++
	return m.consumeOK, m.consumeErr
}

func (m *mockOrgRepo) ReleaseLicense(ctx context.Context, orgID, courseID string) error {
	m.released++
	return nil
}

func (m *mockOrgRepo) AddLicenses(ctx context.Context, orgID, courseID string, quantity int, expiresAt time.Time) error {
	m.added++
	m.addedQty = quantity
	m.addedExp = expiresAt
	return nil
}

// mockUserRepo implements UserRepo for tests.
type mockUserRepo struct {
	user *userdomain.User
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	return m.user, nil
}

// mockCourseRepo implements CourseRepo for tests.
type mockCourseRepo struct {
	course *catalogdomain.Course
}

func (m *mockCourseRepo) GetCourseByID(ctx context.Context, id string) (*catalogdomain.Course, error) {
	return m.course, nil
}

// mockPurchaseRepo implements PurchaseRepo for tests.
type mockPurchaseRepo struct {
	byID      *purchasedomain.Purchase
	byUser    *purchasedomain.Purchase
	createErr error
	created   *purchasedomain.Purchase
	statuses  []purchasedomain.Status
}

func (m *mockPurchaseRepo) GetByID(ctx context.Context, id string) (*purchasedomain.Purchase, error) {
	return m.byID, nil
}

func (m *mockPurchaseRepo) GetByUserAndCourse(ctx context.Context, userID, courseID string) (*purchasedomain.Purchase, error) {
	return m.byUser, nil
}

func (m *mockPurchaseRepo) Create(ctx context.Context, p *purchasedomain.Purchase) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = p
	return nil
}

func (m *mockPurchaseRepo) UpdateStatus(ctx context.Context, id string, status purchasedomain.Status) error {
	m.statuses = append(m.statuses, status)
	return nil
}

type licFixture struct {
	orgs      *mockOrgRepo
	users     *mockUserRepo
	courses   *mockCourseRepo
	purchases *mockPurchaseRepo
	svc       *Service
}

func newLicFixture(reclaim bool) *licFixture {
	f := &licFixture{
		orgs: &mockOrgRepo{
			org:       &orgdomain.Org{ID: "org-1", Name: "Acme Training"},
			consumeOK: true,
			pool: &orgdomain.LicensePool{
				OrgID:     "org-1",
				CourseID:  "course-1",
				Total:     10,
				Used:      2,
				ExpiresAt: licNow.AddDate(0, 0, 120),
			},
		},
		users:     &mockUserRepo{user: &userdomain.User{ID: "user-1", OrgID: "org-1", Email: "a@acme.test"}},
		courses:   &mockCourseRepo{course: &catalogdomain.Course{ID: "course-1", Code: "NET201"}},
		purchases: &mockPurchaseRepo{},
	}
	f.svc = NewService(f.orgs, f.users, f.courses, f.purchases, nil, nil, 10, reclaim)
	f.svc.now = func() time.Time { return licNow }
	return f
}

func TestAssignCourse_Success(t *testing.T) {
	f := newLicFixture(false)

	p, err := f.svc.AssignCourse(context.Background(), "org-1", "user-1", "course-1")
	if err != nil {
		t.Fatalf("AssignCourse: %v", err)
	}
	if f.orgs.consumed != 1 {
		t.Errorf("seats consumed = %d, want 1", f.orgs.consumed)
	}
	if p.MaxLaunches != 10 {
		t.Errorf("max launches = %d, want 10", p.MaxLaunches)
	}
	if !p.AccessExpiresAt.Equal(f.orgs.pool.ExpiresAt) {
		t.Errorf("access expiry = %v, want pool expiry %v", p.AccessExpiresAt, f.orgs.pool.ExpiresAt)
	}
	if p.Status != purchasedomain.StatusUnprovisioned {
		t.Errorf("status = %s, want unprovisioned", p.Status)
	}
	if f.purchases.created == nil {
		t.Error("purchase not persisted")
	}
}

func TestAssignCourse_DuplicateRejectedBeforeSeatConsumed(t *testing.T) {
	f := newLicFixture(false)
	f.purchases.byUser = &purchasedomain.Purchase{ID: "purchase-1"}

	if _, err := f.svc.AssignCourse(context.Background(), "org-1", "user-1", "course-1"); !errors.Is(err, ErrAlreadyAssigned) {
		t.Fatalf("err = %v, want ErrAlreadyAssigned", err)
	}
	if f.orgs.consumed != 0 {
		t.Error("seat consumed for duplicate assignment")
	}
}

func TestAssignCourse_PoolExhausted(t *testing.T) {
	f := newLicFixture(false)
	f.orgs.consumeOK = false

	if _, err := f.svc.AssignCourse(context.Background(), "org-1", "user-1", "course-1"); !errors.Is(err, ErrNoSeatsAvailable) {
		t.Fatalf("err = %v, want ErrNoSeatsAvailable", err)
	}
}

func TestAssignCourse_NoPool(t *testing.T) {
	f := newLicFixture(false)
	f.orgs.pool = nil

	if _, err := f.svc.AssignCourse(context.Background(), "org-1", "user-1", "course-1"); !errors.Is(err, ErrNoSeatsAvailable) {
		t.Fatalf("err = %v, want ErrNoSeatsAvailable", err)
	}
	if f.orgs.consumed != 0 {
		t.Error("consume attempted without a pool")
	}
}

func TestAssignCourse_UserOutsideOrg(t *testing.T) {
	f := newLicFixture(false)
	f.users.user.OrgID = "org-other"

	if _, err := f.svc.AssignCourse(context.Background(), "org-1", "user-1", "course-1"); !errors.Is(err, ErrUserNotInOrg) {
		t.Fatalf("err = %v, want ErrUserNotInOrg", err)
	}
}

func TestAssignCourse_CreateFailureReturnsSeat(t *testing.T) {
	f := newLicFixture(false)
	f.purchases.createErr = errors.New("db down")

	if _, err := f.svc.AssignCourse(context.Background(), "org-1", "user-1", "course-1"); err == nil {
		t.Fatal("expected error")
	}
	if f.orgs.released != 1 {
		t.Errorf("seats released = %d, want 1", f.orgs.released)
	}
}

func TestPurchaseLicenses_Validations(t *testing.T) {
	f := newLicFixture(false)

	if _, err := f.svc.PurchaseLicenses(context.Background(), "org-1", "course-1", 0, 90); !errors.Is(err, ErrBadQuantity) {
		t.Errorf("quantity 0: err = %v, want ErrBadQuantity", err)
	}
	if _, err := f.svc.PurchaseLicenses(context.Background(), "org-1", "course-1", 5, 100); !errors.Is(err, ErrBadDuration) {
		t.Errorf("duration 100: err = %v, want ErrBadDuration", err)
	}
}

func TestPurchaseLicenses_AddsSeatsWithTermExpiry(t *testing.T) {
	f := newLicFixture(false)

	if _, err := f.svc.PurchaseLicenses(context.Background(), "org-1", "course-1", 25, 180); err != nil {
		t.Fatalf("PurchaseLicenses: %v", err)
	}
	if f.orgs.addedQty != 25 {
		t.Errorf("quantity = %d, want 25", f.orgs.addedQty)
	}
	want := licNow.AddDate(0, 0, 180)
	if !f.orgs.addedExp.Equal(want) {
		t.Errorf("expiry = %v, want %v", f.orgs.addedExp, want)
	}
}

func TestUnassign_RejectsProvisionedPurchase(t *testing.T) {
	f := newLicFixture(false)
	f.purchases.byID = &purchasedomain.Purchase{
		ID:            "purchase-1",
		Status:        purchasedomain.StatusStopped,
		ContainerName: "lab-usera-net201-aaaaa",
	}

	if err := f.svc.Unassign(context.Background(), "purchase-1"); !errors.Is(err, ErrPurchaseActive) {
		t.Fatalf("err = %v, want ErrPurchaseActive", err)
	}
}

func TestUnassign_SeatReclaimPolicy(t *testing.T) {
	for _, reclaim := range []bool{false, true} {
		f := newLicFixture(reclaim)
		f.purchases.byID = &purchasedomain.Purchase{
			ID:       "purchase-1",
			OrgID:    "org-1",
			CourseID: "course-1",
			Status:   purchasedomain.StatusUnprovisioned,
		}

		if err := f.svc.Unassign(context.Background(), "purchase-1"); err != nil {
			t.Fatalf("reclaim=%v Unassign: %v", reclaim, err)
		}
		wantReleased := 0
		if reclaim {
			wantReleased = 1
		}
		if f.orgs.released != wantReleased {
			t.Errorf("reclaim=%v released = %d, want %d", reclaim, f.orgs.released, wantReleased)
		}
		if f.purchases.statuses[0] != purchasedomain.StatusDestroyed {
			t.Errorf("status = %s, want destroyed", f.purchases.statuses[0])
		}
	}
}

func TestUnassign_NotFound(t *testing.T) {
	f := newLicFixture(false)
	if err := f.svc.Unassign(context.Background(), "missing"); !errors.Is(err, ErrPurchaseNotFound) {
		t.Fatalf("err = %v, want ErrPurchaseNotFound", err)
	}
}
