package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"cloudlab-control-plane/internal/security"
)

const principalPrefix = "lab-user-"

// LabIdentity is a freshly provisioned directory principal plus its credential.
// The password is returned once and never persisted by this service.
type LabIdentity struct {
	PrincipalName string
	Password      string
	ObjectID      string
}

// Directory is the subset of the directory client used by the provisioner.
type Directory interface {
	CreateUser(ctx context.Context, principalName, displayName, password string) (string, error)
	GetUser(ctx context.Context, principalName string) (*DirectoryUser, error)
	DeleteUser(ctx context.Context, principalName string) error
	ListUsersByPrefix(ctx context.Context, prefix string) ([]DirectoryUser, error)
}

// Provisioner creates and removes lab principals in the configured directory domain.
type Provisioner struct {
	dir    Directory
	domain string
	logger *log.Logger
}

// NewProvisioner returns a Provisioner writing principals under domain.
func NewProvisioner(dir Directory, domain string, logger *log.Logger) *Provisioner {
	if logger == nil {
		logger = log.Default()
	}
	return &Provisioner{dir: dir, domain: domain, logger: logger}
}

// Provision creates a principal lab-user-<8 hex>@<domain> with a generated
// password meeting the directory complexity policy. Duplicate principal names
// are not retried here; callers retry with a fresh call, which draws a new suffix.
func (p *Provisioner) Provision(ctx context.Context, displayName string) (*LabIdentity, error) {
	suffix, err := randomSuffix()
	if err != nil {
		return nil, err
	}
	principal := principalPrefix + suffix + "@" + p.domain
	password, err := security.GeneratePassword(16)
	if err != nil {
		return nil, err
	}
	objectID, err := p.dir.CreateUser(ctx, principal, displayName, password)
	if err != nil {
		return nil, fmt.Errorf("provision identity: %w", err)
	}
	return &LabIdentity{PrincipalName: principal, Password: password, ObjectID: objectID}, nil
}

// Lookup resolves a principal to its directory record, nil when absent.
func (p *Provisioner) Lookup(ctx context.Context, principalName string) (*DirectoryUser, error) {
	return p.dir.GetUser(ctx, principalName)
}

// Deprovision removes the principal. Absence counts as success.
func (p *Provisioner) Deprovision(ctx context.Context, principalName string) error {
	return p.dir.DeleteUser(ctx, principalName)
}

// CleanupOrphans deletes lab principals older than maxAge that are not in the
// known set. Returns how many were removed; individual delete failures are
// logged and skipped so one stuck record does not stall the sweep.
func (p *Provisioner) CleanupOrphans(ctx context.Context, known map[string]bool, maxAge time.Duration, now time.Time) (int, error) {
	users, err := p.dir.ListUsersByPrefix(ctx, principalPrefix)
	if err != nil {
		return 0, fmt.Errorf("cleanup orphans: %w", err)
	}
	removed := 0
	for _, u := range users {
		if !strings.HasPrefix(u.PrincipalName, principalPrefix) {
			continue
		}
		if known[u.PrincipalName] {
			continue
		}
		if now.Sub(u.CreatedAt) < maxAge {
			continue
		}
		if err := p.dir.DeleteUser(ctx, u.PrincipalName); err != nil {
			p.logger.Printf("identity: orphan cleanup failed for %s: %v", u.PrincipalName, err)
			continue
		}
		removed++
	}
	return removed, nil
}

func randomSuffix() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
