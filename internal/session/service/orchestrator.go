// Package service sequences the control-plane calls that bring a lab
// environment into existence and dismantle it again.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"cloudlab-control-plane/internal/audit"
	catalogdomain "cloudlab-control-plane/internal/catalog/domain"
	"cloudlab-control-plane/internal/compute"
	"cloudlab-control-plane/internal/guardrail/engine"
	"cloudlab-control-plane/internal/identity"
	purchasedomain "cloudlab-control-plane/internal/purchase/domain"
	"cloudlab-control-plane/internal/security"
	sessiondomain "cloudlab-control-plane/internal/session/domain"
	sessionrepo "cloudlab-control-plane/internal/session/repository"
	telemetrydomain "cloudlab-control-plane/internal/telemetry/domain"
)

// Sentinel errors for the orchestrator; handlers map them to HTTP status codes.
var (
	ErrPurchaseNotFound   = errors.New("lab purchase not found")
	ErrCourseNotFound     = errors.New("course not found")
	ErrQuotaExceeded      = errors.New("launch quota exhausted")
	ErrEntitlementExpired = errors.New("lab access window expired")
	ErrSessionActive      = errors.New("a session is already active for this purchase")
	ErrNoActiveSession    = errors.New("no active session for this purchase")
	ErrGuardrailRejected  = errors.New("vm profile rejected by guardrail policy")
	ErrPortalNotRequired  = errors.New("course does not require portal access")
	ErrPortalAccessExists = errors.New("portal access already provisioned")
)

// PurchaseRepo is the minimal purchase repository needed by the orchestrator.
type PurchaseRepo interface {
	GetByID(ctx context.Context, id string) (*purchasedomain.Purchase, error)
	UpdateStatus(ctx context.Context, id string, status purchasedomain.Status) error
	IncrementLaunchCount(ctx context.Context, id string, current int) (bool, error)
	SetProvisioned(ctx context.Context, id, principalName, containerName string) error
	SetSnapshot(ctx context.Context, id, snapshotID string) error
	ClearProvisioned(ctx context.Context, id string) error
	AddMinutesUsed(ctx context.Context, id string, minutes int) error
	AppendLaunchHistory(ctx context.Context, purchaseID string, launchedAt time.Time) error
	CompleteLaunchHistory(ctx context.Context, purchaseID string, endedAt time.Time, minutes int) error
}

// CourseRepo is the minimal catalog repository needed by the orchestrator.
type CourseRepo interface {
	GetCourseByID(ctx context.Context, id string) (*catalogdomain.Course, error)
}

// SessionRepo is the minimal session repository needed by the orchestrator.
type SessionRepo interface {
	GetByPurchase(ctx context.Context, purchaseID string) (*sessiondomain.ActiveSession, error)
	Create(ctx context.Context, s *sessiondomain.ActiveSession) error
	UpdateStatus(ctx context.Context, id string, status sessiondomain.Status) error
	SetConnection(ctx context.Context, id, vmName, connectionID string, startedAt, expiresAt time.Time) error
	SetPortalAccess(ctx context.Context, id, principal, password, objectID, container string) error
	Delete(ctx context.Context, purchaseID string) error
}

// Provisioner creates and removes directory principals for portal access.
type Provisioner interface {
	Provision(ctx context.Context, displayName string) (*identity.LabIdentity, error)
	Deprovision(ctx context.Context, principalName string) error
}

// Grants assigns and revokes the container-scoped lab role.
type Grants interface {
	AssignScopedRole(ctx context.Context, principalID, containerName string) error
	RevokeAllGrants(ctx context.Context, principalID, containerName string) (failed int, err error)
}

// Guardrails attaches and detaches the policy initiative on containers.
type Guardrails interface {
	Attach(ctx context.Context, containerName string) error
	Detach(ctx context.Context, containerName string) error
	CleanupLegacy(ctx context.Context, containerName string)
}

// Containers manages the portal-access resource container.
type Containers interface {
	CreateContainer(ctx context.Context, name, location string, tags map[string]string) error
	DeleteContainer(ctx context.Context, name string) error
}

// LaunchGate decides whether a purchase may launch at all.
type LaunchGate interface {
	CanLaunch(p *purchasedomain.Purchase, now time.Time) error
}

// ConsoleTokens mints the short-lived token binding a user to a gateway connection.
type ConsoleTokens interface {
	IssueConsole(userID, principal, connectionID string) (string, time.Time, error)
}

// Emitter publishes lifecycle events; best-effort, callers log and ignore errors.
type Emitter interface {
	Emit(ctx context.Context, e *telemetrydomain.Event) error
}

// LaunchResult is returned from a successful or idempotent launch.
type LaunchResult struct {
	Session    *sessiondomain.ActiveSession
	ConsoleURL string
	// PortalCredentials is set only when this launch provisioned portal
	// access; the password is not retrievable afterwards.
	PortalCredentials *PortalCredentials
}

// PortalCredentials hold the portal identity returned once at provisioning time.
type PortalCredentials struct {
	PrincipalName string
	Password      string
}

// StatusView is a point-in-time session status for polling clients.
type StatusView struct {
	Status sessiondomain.Status
	// Terminal tells the caller to stop polling.
	Terminal  bool
	ExpiresAt time.Time
}

// ConsoleAccess is a minted console URL plus the token authorizing it.
type ConsoleAccess struct {
	URL       string
	Token     string
	ExpiresAt time.Time
}

// Orchestrator drives the provisioning chain (identity, grant, guardrail,
// compute) and its teardown mirror, persisting state after each success.
type Orchestrator struct {
	purchases PurchaseRepo
	courses   CourseRepo
	sessions  SessionRepo

	driver      compute.Driver
	provisioner Provisioner
	grants      Grants
	guardrails  Guardrails
	containers  Containers

	gate        LaunchGate
	preflight   engine.Evaluator
	constraints engine.Constraints
	tokens      ConsoleTokens
	consoleURL  func(connectionID string) string

	auditor audit.AuditLogger
	emitter Emitter
	logger  *log.Logger

	location        string
	sessionDuration time.Duration
	now             func() time.Time
}

// Config carries the orchestrator's dependencies.
type Config struct {
	Purchases   PurchaseRepo
	Courses     CourseRepo
	Sessions    SessionRepo
	Driver      compute.Driver
	Provisioner Provisioner
	Grants      Grants
	Guardrails  Guardrails
	Containers  Containers
	Gate        LaunchGate
	Preflight   engine.Evaluator
	Constraints engine.Constraints
	Tokens      ConsoleTokens
	ConsoleURL  func(connectionID string) string
	Auditor     audit.AuditLogger
	Emitter     Emitter
	Logger      *log.Logger

	Location        string
	SessionDuration time.Duration
}

// NewOrchestrator returns an Orchestrator with the given dependencies.
func NewOrchestrator(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	consoleURL := cfg.ConsoleURL
	if consoleURL == nil {
		consoleURL = func(string) string { return "" }
	}
	return &Orchestrator{
		purchases:       cfg.Purchases,
		courses:         cfg.Courses,
		sessions:        cfg.Sessions,
		driver:          cfg.Driver,
		provisioner:     cfg.Provisioner,
		grants:          cfg.Grants,
		guardrails:      cfg.Guardrails,
		containers:      cfg.Containers,
		gate:            cfg.Gate,
		preflight:       cfg.Preflight,
		constraints:     cfg.Constraints,
		tokens:          cfg.Tokens,
		consoleURL:      consoleURL,
		auditor:         cfg.Auditor,
		emitter:         cfg.Emitter,
		logger:          logger,
		location:        cfg.Location,
		sessionDuration: cfg.SessionDuration,
		now:             time.Now,
	}
}

// Launch provisions a running session for the purchase, or synchronizes an
// already-running one. A launch already in flight is rejected.
func (o *Orchestrator) Launch(ctx context.Context, purchaseID string) (*LaunchResult, error) {
	p, err := o.purchases.GetByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPurchaseNotFound
	}
	course, err := o.courses.GetCourseByID(ctx, p.CourseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, ErrCourseNotFound
	}
	now := o.now().UTC()
	if err := o.gate.CanLaunch(p, now); err != nil {
		return nil, err
	}

	existing, err := o.sessions.GetByPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return o.syncExisting(ctx, existing)
	}

	if o.preflight != nil {
		res, err := o.preflight.Evaluate(ctx, engine.Profile{
			Size:     course.VMSize,
			Location: course.Location,
			Tags:     course.Tags,
		}, o.constraints)
		if err != nil {
			return nil, fmt.Errorf("guardrail preflight: %w", err)
		}
		if !res.Allowed {
			return nil, fmt.Errorf("%w: %s", ErrGuardrailRejected, strings.Join(res.Violations, "; "))
		}
	}

	container := p.ContainerName
	if container == "" {
		container = newContainerName(p.UserID, course.Code)
	}
	sess := &sessiondomain.ActiveSession{
		ID:            uuid.NewString(),
		PurchaseID:    p.ID,
		UserID:        p.UserID,
		Status:        sessiondomain.StatusProvisioning,
		ContainerName: container,
		GatewayUser:   "lab-" + shortID(p.ID),
		StartedAt:     now,
		ExpiresAt:     now.Add(o.sessionDuration),
	}
	if err := o.sessions.Create(ctx, sess); err != nil {
		if errors.Is(err, sessionrepo.ErrSessionExists) {
			return nil, ErrSessionActive
		}
		return nil, err
	}
	if err := o.purchases.UpdateStatus(ctx, p.ID, purchasedomain.StatusProvisioning); err != nil {
		return nil, err
	}

	gwPass, err := security.GeneratePassword(16)
	if err != nil {
		return nil, err
	}
	env, err := o.driver.CreateOrReuseEnvironment(ctx, compute.EnvironmentSpec{
		ResourceGroup:   container,
		VMName:          "vm-" + strings.ToLower(course.Code),
		Size:            course.VMSize,
		Image:           course.VMImage,
		Location:        course.Location,
		SnapshotID:      p.SnapshotID,
		Labels:          course.Tags,
		GatewayUsername: sess.GatewayUser,
		GatewayPassword: gwPass,
	})
	if err != nil {
		// Partial state stays; teardown is the recovery path.
		return nil, fmt.Errorf("provision compute: %w", err)
	}
	sess.VMName = env.VMName
	sess.ConnectionID = env.ConnectionID
	if err := o.sessions.SetConnection(ctx, sess.ID, sess.VMName, sess.ConnectionID, sess.StartedAt, sess.ExpiresAt); err != nil {
		return nil, err
	}

	var portalCreds *PortalCredentials
	if course.RequiresPortalAccess && !sess.HasPortalAccess() {
		portalCreds, err = o.provisionPortalChain(ctx, sess, course)
		if err != nil {
			return nil, err
		}
	}
	if err := o.purchases.SetProvisioned(ctx, p.ID, sess.PortalPrincipal, container); err != nil {
		return nil, err
	}

	ok, err := o.purchases.IncrementLaunchCount(ctx, p.ID, p.LaunchCount)
	if err != nil {
		return nil, err
	}
	if !ok {
		// The counter moved underneath us; a concurrent launch won the quota
		// race. Dismantle what this attempt built before reporting it.
		if _, terr := o.Teardown(ctx, p.ID); terr != nil {
			o.logger.Printf("session: rollback after lost quota race failed for %s: %v", p.ID, terr)
		}
		return nil, ErrQuotaExceeded
	}
	sess.Status = sessiondomain.StatusRunning
	if err := o.sessions.UpdateStatus(ctx, sess.ID, sessiondomain.StatusRunning); err != nil {
		return nil, err
	}
	if err := o.purchases.UpdateStatus(ctx, p.ID, purchasedomain.StatusRunning); err != nil {
		return nil, err
	}
	if err := o.purchases.AppendLaunchHistory(ctx, p.ID, now); err != nil {
		o.logger.Printf("session: launch history append failed for %s: %v", p.ID, err)
	}

	o.audit(ctx, p, "lab.launch", container)
	o.emit(ctx, p, "lab_launched", sess.ID)
	return &LaunchResult{Session: sess, ConsoleURL: o.consoleURL(sess.ConnectionID), PortalCredentials: portalCreds}, nil
}

// syncExisting handles launch against a purchase that already has a session
// row: a running VM gets its gateway connection synchronized, anything else is
// a launch in flight and is rejected.
func (o *Orchestrator) syncExisting(ctx context.Context, sess *sessiondomain.ActiveSession) (*LaunchResult, error) {
	st, err := o.driver.GetStatus(ctx, sess.ContainerName)
	if err != nil {
		return nil, err
	}
	if st.State != compute.StateRunning || st.PublicAddress == "" {
		return nil, ErrSessionActive
	}
	connID, err := o.driver.SyncGatewayConnection(ctx, sess.GatewayUser, sess.VMName, st.PublicAddress, sess.ConnectionID)
	if err != nil {
		return nil, err
	}
	if connID != sess.ConnectionID {
		sess.ConnectionID = connID
		if err := o.sessions.SetConnection(ctx, sess.ID, sess.VMName, connID, sess.StartedAt, sess.ExpiresAt); err != nil {
			return nil, err
		}
	}
	return &LaunchResult{Session: sess, ConsoleURL: o.consoleURL(connID)}, nil
}

// provisionPortalChain runs identity, grant, and guardrail for the dedicated
// portal container. Identity, container, and grant failures roll back what
// came before them. The portal record is persisted as soon as the grant lands
// so a later teardown can find and dismantle the chain even when the guardrail
// attach fails.
func (o *Orchestrator) provisionPortalChain(ctx context.Context, sess *sessiondomain.ActiveSession, course *catalogdomain.Course) (*PortalCredentials, error) {
	labID, err := o.provisioner.Provision(ctx, "Lab user for "+course.Code)
	if err != nil {
		return nil, err
	}
	portalContainer := sess.ContainerName + "-portal"
	tags := map[string]string{"lab": "true", "course": course.Code, "portal": "true"}
	if err := o.containers.CreateContainer(ctx, portalContainer, o.location, tags); err != nil {
		o.compensateIdentity(ctx, labID.PrincipalName)
		return nil, fmt.Errorf("create portal container: %w", err)
	}
	if err := o.grants.AssignScopedRole(ctx, labID.ObjectID, portalContainer); err != nil {
		o.compensateIdentity(ctx, labID.PrincipalName)
		if derr := o.containers.DeleteContainer(ctx, portalContainer); derr != nil {
			o.logger.Printf("session: portal container rollback failed for %s: %v", portalContainer, derr)
		}
		return nil, fmt.Errorf("assign portal role: %w", err)
	}
	if err := o.sessions.SetPortalAccess(ctx, sess.ID, labID.PrincipalName, labID.Password, labID.ObjectID, portalContainer); err != nil {
		if failed, rerr := o.grants.RevokeAllGrants(ctx, labID.ObjectID, portalContainer); rerr != nil || failed > 0 {
			o.logger.Printf("session: portal grant rollback incomplete for %s: failed=%d err=%v", portalContainer, failed, rerr)
		}
		o.compensateIdentity(ctx, labID.PrincipalName)
		if derr := o.containers.DeleteContainer(ctx, portalContainer); derr != nil {
			o.logger.Printf("session: portal container rollback failed for %s: %v", portalContainer, derr)
		}
		return nil, fmt.Errorf("record portal access: %w", err)
	}
	sess.PortalPrincipal = labID.PrincipalName
	sess.PortalPassword = labID.Password
	sess.PortalObjectID = labID.ObjectID
	sess.PortalContainer = portalContainer
	if err := o.guardrails.Attach(ctx, portalContainer); err != nil {
		// The portal record is already persisted; teardown dismantles it.
		return nil, fmt.Errorf("attach guardrail: %w", err)
	}
	return &PortalCredentials{PrincipalName: labID.PrincipalName, Password: labID.Password}, nil
}

func (o *Orchestrator) compensateIdentity(ctx context.Context, principal string) {
	if err := o.provisioner.Deprovision(ctx, principal); err != nil {
		o.logger.Printf("session: identity rollback failed for %s: %v", principal, err)
	}
}

// Teardown dismantles whatever exists for the purchase, step by step, each
// best-effort, and clears session state. Only a failure to clear persisted
// state is surfaced as an error; everything else lands in the report.
func (o *Orchestrator) Teardown(ctx context.Context, purchaseID string) (*sessiondomain.TeardownReport, error) {
	p, err := o.purchases.GetByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPurchaseNotFound
	}
	report := &sessiondomain.TeardownReport{PurchaseID: purchaseID}

	sess, err := o.sessions.GetByPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	container := p.ContainerName
	gatewayUser := ""
	if sess != nil {
		container = sess.ContainerName
		gatewayUser = sess.GatewayUser
	}

	if p.SnapshotID != "" {
		if err := o.driver.DeleteSnapshot(ctx, p.SnapshotID, container); err != nil {
			report.Failed("delete_snapshot", err.Error())
		} else {
			report.Ok("delete_snapshot")
		}
	} else {
		report.Skipped("delete_snapshot", "no snapshot")
	}

	if sess != nil && sess.HasPortalAccess() {
		o.teardownPortal(ctx, sess, report)
	} else {
		report.Skipped("portal_access", "none provisioned")
	}

	if container != "" {
		if err := o.driver.DeleteEnvironment(ctx, container, gatewayUser); err != nil {
			report.Failed("delete_environment", err.Error())
		} else {
			report.Ok("delete_environment")
		}
	} else {
		report.Skipped("delete_environment", "no container")
	}

	if sess != nil {
		minutes := sess.ElapsedMinutes(o.now().UTC())
		if err := o.purchases.CompleteLaunchHistory(ctx, purchaseID, o.now().UTC(), minutes); err != nil {
			o.logger.Printf("session: launch history close failed for %s: %v", purchaseID, err)
		}
		if err := o.purchases.AddMinutesUsed(ctx, purchaseID, minutes); err != nil {
			o.logger.Printf("session: usage accrual failed for %s: %v", purchaseID, err)
		}
	}
	if err := o.sessions.Delete(ctx, purchaseID); err != nil {
		return report, fmt.Errorf("clear session state: %w", err)
	}
	if err := o.purchases.ClearProvisioned(ctx, purchaseID); err != nil {
		return report, fmt.Errorf("clear session state: %w", err)
	}
	if err := o.purchases.UpdateStatus(ctx, purchaseID, purchasedomain.StatusUnprovisioned); err != nil {
		return report, fmt.Errorf("clear session state: %w", err)
	}

	o.audit(ctx, p, "lab.teardown", container)
	o.emit(ctx, p, "lab_teardown", purchaseID)
	return report, nil
}

func (o *Orchestrator) teardownPortal(ctx context.Context, sess *sessiondomain.ActiveSession, report *sessiondomain.TeardownReport) {
	if err := o.guardrails.Detach(ctx, sess.PortalContainer); err != nil {
		report.Failed("detach_guardrail", err.Error())
	} else {
		report.Ok("detach_guardrail")
	}
	o.guardrails.CleanupLegacy(ctx, sess.PortalContainer)

	failed, err := o.grants.RevokeAllGrants(ctx, sess.PortalObjectID, sess.PortalContainer)
	switch {
	case err != nil:
		report.Failed("revoke_grants", err.Error())
	case failed > 0:
		report.Failed("revoke_grants", fmt.Sprintf("%d assignments not removed", failed))
	default:
		report.Ok("revoke_grants")
	}

	if err := o.containers.DeleteContainer(ctx, sess.PortalContainer); err != nil {
		report.Failed("delete_portal_container", err.Error())
	} else {
		report.Ok("delete_portal_container")
	}
	if err := o.provisioner.Deprovision(ctx, sess.PortalPrincipal); err != nil {
		report.Failed("delete_portal_identity", err.Error())
	} else {
		report.Ok("delete_portal_identity")
	}
}

// Close snapshots the session's disk, releases compute, and keeps the
// container and snapshot so the purchase can relaunch where it left off. The
// session row is the only record of the portal chain and the gateway user, so
// both are dismantled, best-effort, before it is deleted; a relaunch
// provisions fresh ones.
func (o *Orchestrator) Close(ctx context.Context, purchaseID string) error {
	p, err := o.purchases.GetByID(ctx, purchaseID)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrPurchaseNotFound
	}
	sess, err := o.sessions.GetByPurchase(ctx, purchaseID)
	if err != nil {
		return err
	}
	if sess == nil {
		return ErrNoActiveSession
	}

	snapshotID, err := o.driver.CreateSnapshot(ctx, sess.ContainerName)
	if err != nil {
		return fmt.Errorf("snapshot before close: %w", err)
	}
	if err := o.purchases.SetSnapshot(ctx, purchaseID, snapshotID); err != nil {
		return err
	}
	if err := o.driver.ReleaseCompute(ctx, sess.ContainerName, sess.GatewayUser); err != nil {
		return fmt.Errorf("release compute: %w", err)
	}
	if sess.HasPortalAccess() {
		report := &sessiondomain.TeardownReport{PurchaseID: purchaseID}
		o.teardownPortal(ctx, sess, report)
		for _, step := range report.Steps {
			if step.Status == sessiondomain.StepFailed {
				o.logger.Printf("session: portal cleanup on close failed at %s for %s: %s", step.Step, purchaseID, step.Reason)
			}
		}
	}

	now := o.now().UTC()
	minutes := sess.ElapsedMinutes(now)
	if err := o.purchases.CompleteLaunchHistory(ctx, purchaseID, now, minutes); err != nil {
		o.logger.Printf("session: launch history close failed for %s: %v", purchaseID, err)
	}
	if err := o.purchases.AddMinutesUsed(ctx, purchaseID, minutes); err != nil {
		o.logger.Printf("session: usage accrual failed for %s: %v", purchaseID, err)
	}
	if err := o.sessions.Delete(ctx, purchaseID); err != nil {
		return fmt.Errorf("clear session state: %w", err)
	}
	if err := o.purchases.UpdateStatus(ctx, purchaseID, purchasedomain.StatusStopped); err != nil {
		return err
	}

	o.audit(ctx, p, "lab.close", sess.ContainerName)
	o.emit(ctx, p, "lab_closed", purchaseID)
	return nil
}

// Restart reboots the session's VM. The hard expiry is deliberately untouched:
// a restarted session still ends at its original deadline.
func (o *Orchestrator) Restart(ctx context.Context, purchaseID string) error {
	p, err := o.purchases.GetByID(ctx, purchaseID)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrPurchaseNotFound
	}
	sess, err := o.sessions.GetByPurchase(ctx, purchaseID)
	if err != nil {
		return err
	}
	if sess == nil {
		return ErrNoActiveSession
	}
	if err := o.driver.Restart(ctx, sess.ContainerName); err != nil {
		return err
	}
	if err := o.sessions.UpdateStatus(ctx, sess.ID, sessiondomain.StatusRestarting); err != nil {
		return err
	}
	if err := o.purchases.UpdateStatus(ctx, purchaseID, purchasedomain.StatusRestarting); err != nil {
		return err
	}
	o.audit(ctx, p, "lab.restart", sess.ContainerName)
	return nil
}

// Status reports live state from the driver. A gone or stopped environment is
// terminal for polling so the caller stops instead of reading stale status.
func (o *Orchestrator) Status(ctx context.Context, purchaseID string) (*StatusView, error) {
	p, err := o.purchases.GetByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPurchaseNotFound
	}
	sess, err := o.sessions.GetByPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		if p.Status == purchasedomain.StatusStopped {
			return &StatusView{Status: sessiondomain.StatusStopped, Terminal: true}, nil
		}
		return &StatusView{Status: sessiondomain.StatusNotFound, Terminal: true}, nil
	}

	st, err := o.driver.GetStatus(ctx, sess.ContainerName)
	if err != nil {
		return nil, err
	}
	switch st.State {
	case compute.StateNotFound:
		return &StatusView{Status: sessiondomain.StatusNotFound, Terminal: true}, nil
	case compute.StateStopped:
		return &StatusView{Status: sessiondomain.StatusStopped, Terminal: true}, nil
	case compute.StateRunning:
		if sess.Status != sessiondomain.StatusRunning {
			if err := o.sessions.UpdateStatus(ctx, sess.ID, sessiondomain.StatusRunning); err != nil {
				o.logger.Printf("session: status sync failed for %s: %v", sess.ID, err)
			}
		}
		return &StatusView{Status: sessiondomain.StatusRunning, ExpiresAt: sess.ExpiresAt}, nil
	default:
		return &StatusView{Status: sess.Status, ExpiresAt: sess.ExpiresAt}, nil
	}
}

// ProvisionPortalAccess runs the portal chain for an already-running session
// whose course requires it. Idempotent: existing credentials are not replaced.
func (o *Orchestrator) ProvisionPortalAccess(ctx context.Context, purchaseID string) (*PortalCredentials, error) {
	p, err := o.purchases.GetByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPurchaseNotFound
	}
	course, err := o.courses.GetCourseByID(ctx, p.CourseID)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, ErrCourseNotFound
	}
	if !course.RequiresPortalAccess {
		return nil, ErrPortalNotRequired
	}
	sess, err := o.sessions.GetByPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrNoActiveSession
	}
	if sess.HasPortalAccess() {
		return nil, ErrPortalAccessExists
	}
	creds, err := o.provisionPortalChain(ctx, sess, course)
	if err != nil {
		return nil, err
	}
	if err := o.purchases.SetProvisioned(ctx, p.ID, sess.PortalPrincipal, sess.ContainerName); err != nil {
		return nil, err
	}
	o.audit(ctx, p, "lab.portal_access", sess.PortalContainer)
	return creds, nil
}

// Console mints a short-lived token binding the purchase's owner to the
// session's gateway connection and returns the console URL.
func (o *Orchestrator) Console(ctx context.Context, purchaseID string) (*ConsoleAccess, error) {
	p, err := o.purchases.GetByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPurchaseNotFound
	}
	sess, err := o.sessions.GetByPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.ConnectionID == "" {
		return nil, ErrNoActiveSession
	}
	token, expiresAt, err := o.tokens.IssueConsole(p.UserID, sess.GatewayUser, sess.ConnectionID)
	if err != nil {
		return nil, err
	}
	return &ConsoleAccess{
		URL:       o.consoleURL(sess.ConnectionID),
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

func (o *Orchestrator) audit(ctx context.Context, p *purchasedomain.Purchase, action, resource string) {
	if o.auditor == nil {
		return
	}
	o.auditor.LogEvent(ctx, p.OrgID, p.UserID, action, resource, "")
}

func (o *Orchestrator) emit(ctx context.Context, p *purchasedomain.Purchase, eventType, subject string) {
	if o.emitter == nil {
		return
	}
	e := &telemetrydomain.Event{
		OrgID:      p.OrgID,
		UserID:     p.UserID,
		PurchaseID: p.ID,
		EventType:  eventType,
		Source:     "session-orchestrator",
		CreatedAt:  o.now().UTC(),
		Metadata:   map[string]string{"subject": subject},
	}
	if err := o.emitter.Emit(ctx, e); err != nil {
		o.logger.Printf("session: telemetry emit failed: %v", err)
	}
}

// newContainerName builds lab-<user5>-<code>-<rand5>.
func newContainerName(userID, courseCode string) string {
	return fmt.Sprintf("lab-%s-%s-%s", shortID(userID), strings.ToLower(courseCode), shortID(uuid.NewString()))
}

func shortID(id string) string {
	clean := strings.ReplaceAll(id, "-", "")
	if len(clean) > 5 {
		return clean[:5]
	}
	return clean
}
