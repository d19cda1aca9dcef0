// seed inserts development sample data for local testing. Run via ./scripts/seed.sh.
// Idempotent: skips inserts if the dev learner (dev@example.com) already exists.
package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"time"

	"cloudlab-control-plane/internal/config"
	"cloudlab-control-plane/internal/db"
)

const (
	devOrgID      = "7d9f1c2e-0000-4000-8000-000000000001"
	devUserID     = "7d9f1c2e-0000-4000-8000-000000000002"
	devUser2ID    = "7d9f1c2e-0000-4000-8000-000000000003"
	devCourseID   = "7d9f1c2e-0000-4000-8000-000000000004"
	devCourse2ID  = "7d9f1c2e-0000-4000-8000-000000000005"
	devPoolID     = "7d9f1c2e-0000-4000-8000-000000000006"
	devPool2ID    = "7d9f1c2e-0000-4000-8000-000000000007"
	devPurchaseID = "7d9f1c2e-0000-4000-8000-000000000008"

	devUserEmail = "dev@example.com"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()

	var existing string
	err = conn.QueryRowContext(ctx, `SELECT id FROM users WHERE email = $1`, devUserEmail).Scan(&existing)
	if err == nil {
		log.Println("Seed already applied (dev@example.com exists). Skipping.")
		os.Exit(0)
	}
	if err != sql.ErrNoRows {
		log.Fatalf("seed check: %v", err)
	}

	now := time.Now().UTC()
	accessExpires := now.AddDate(0, 0, cfg.DefaultAccessDays)

	exec := func(desc, query string, args ...any) {
		if _, err := conn.ExecContext(ctx, query, args...); err != nil {
			log.Fatalf("%s: %v", desc, err)
		}
	}

	exec("create dev org",
		`INSERT INTO organizations (id, name, admin_email) VALUES ($1, $2, $3)`,
		devOrgID, "Dev Academy", "admin@example.com")

	exec("create dev user",
		`INSERT INTO users (id, org_id, email, display_name) VALUES ($1, $2, $3, $4)`,
		devUserID, devOrgID, devUserEmail, "Dev Learner")
	exec("create second user",
		`INSERT INTO users (id, org_id, email, display_name) VALUES ($1, $2, $3, $4)`,
		devUser2ID, devOrgID, "learner2@example.com", "Second Learner")

	exec("create networking course",
		`INSERT INTO courses (id, code, title, vm_size, vm_image, location, requires_portal_access, tags)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		devCourseID, "NET201", "Network Fundamentals Lab", "cpx31", "ubuntu-24.04", cfg.CloudLocation,
		false, `{"lab": "net201", "track": "networking"}`)
	exec("create cloud course",
		`INSERT INTO courses (id, code, title, vm_size, vm_image, location, requires_portal_access, tags)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		devCourse2ID, "CLD301", "Cloud Administration Lab", "cpx41", "ubuntu-24.04", cfg.CloudLocation,
		true, `{"lab": "cld301", "track": "cloud"}`)

	exec("create license pool",
		`INSERT INTO org_licenses (id, org_id, course_id, total, used, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		devPoolID, devOrgID, devCourseID, 25, 1, accessExpires)
	exec("create second license pool",
		`INSERT INTO org_licenses (id, org_id, course_id, total, used, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		devPool2ID, devOrgID, devCourse2ID, 10, 0, accessExpires)

	exec("create dev purchase",
		`INSERT INTO lab_purchases (id, user_id, course_id, org_id, status, max_launches, access_expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		devPurchaseID, devUserID, devCourseID, devOrgID, "unprovisioned", cfg.DefaultMaxLaunches, accessExpires)

	log.Println("Seed complete:")
	log.Printf("  org:      %s (Dev Academy)", devOrgID)
	log.Printf("  user:     %s (%s)", devUserID, devUserEmail)
	log.Printf("  courses:  NET201 %s / CLD301 %s", devCourseID, devCourse2ID)
	log.Printf("  purchase: %s (NET201 assigned to %s)", devPurchaseID, devUserEmail)
}
