package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	auditpkg "cloudlab-control-plane/internal/audit"
	auditrepo "cloudlab-control-plane/internal/audit/repository"
	catalogrepo "cloudlab-control-plane/internal/catalog/repository"
	"cloudlab-control-plane/internal/compute"
	"cloudlab-control-plane/internal/config"
	"cloudlab-control-plane/internal/db"
	"cloudlab-control-plane/internal/gateway"
	"cloudlab-control-plane/internal/grants"
	"cloudlab-control-plane/internal/guardrail"
	guardrailengine "cloudlab-control-plane/internal/guardrail/engine"
	"cloudlab-control-plane/internal/identity"
	licenseservice "cloudlab-control-plane/internal/license/service"
	orgrepo "cloudlab-control-plane/internal/organization/repository"
	purchaserepo "cloudlab-control-plane/internal/purchase/repository"
	"cloudlab-control-plane/internal/resources"
	"cloudlab-control-plane/internal/security"
	"cloudlab-control-plane/internal/server"
	"cloudlab-control-plane/internal/server/middleware"
	sessionrepo "cloudlab-control-plane/internal/session/repository"
	sessionservice "cloudlab-control-plane/internal/session/service"
	"cloudlab-control-plane/internal/sweeper"
	"cloudlab-control-plane/internal/telemetry"
	telemetryotel "cloudlab-control-plane/internal/telemetry/otel"
	"cloudlab-control-plane/internal/telemetry/producer"
	userrepo "cloudlab-control-plane/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, "cloudlab-api", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer database.Close()

	privKey, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("jwt private key: %v", err)
	}
	pubKey, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("jwt public key: %v", err)
	}
	tokens := security.NewTokenProvider(privKey, pubKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.ConsoleTTL())

	purchases := purchaserepo.NewPostgresRepository(database)
	courses := catalogrepo.NewPostgresRepository(database)
	sessions := sessionrepo.NewPostgresRepository(database)
	orgs := orgrepo.NewPostgresRepository(database)
	users := userrepo.NewPostgresRepository(database)
	audits := auditrepo.NewPostgresRepository(database)
	auditor := auditpkg.NewLogger(audits, middleware.ClientIP)

	gw := gateway.NewClient(cfg.GatewayURL, cfg.GatewayUsername, cfg.GatewayPassword)
	driver := compute.NewHCloudDriver(cfg.HCloudToken, gw)

	directory := identity.NewClient(cfg.CloudAPIURL, cfg.CloudAPIToken)
	provisioner := identity.NewProvisioner(directory, cfg.DirectoryDomain, log.New(os.Stderr, "[identity] ", log.LstdFlags))
	grantMgr := grants.NewManager(grants.NewClient(cfg.CloudAPIURL, cfg.CloudAPIToken), cfg.LabRoleID,
		log.New(os.Stderr, "[grants] ", log.LstdFlags))
	guardrailMgr := guardrail.NewManager(guardrail.NewClient(cfg.CloudAPIURL, cfg.CloudAPIToken), cfg.GuardrailInitiativeID,
		log.New(os.Stderr, "[guardrail] ", log.LstdFlags))
	containers := resources.NewClient(cfg.CloudAPIURL, cfg.CloudAPIToken)

	sizes, locations, tags := cfg.GuardrailConstraintLists()
	preflight := guardrailengine.NewOPAEvaluator("")

	var emitters telemetry.MultiEmitter
	if brokers := cfg.TelemetryKafkaBrokersList(); len(brokers) > 0 {
		kafka, err := producer.NewKafkaProducer(brokers, cfg.TelemetryKafkaTopic)
		if err != nil {
			log.Fatalf("kafka producer: %v", err)
		}
		defer kafka.Close()
		emitters = append(emitters, kafka)
	}
	emitters = append(emitters, telemetryotel.NewEventEmitter(providers.LoggerProvider))

	orchestrator := sessionservice.NewOrchestrator(sessionservice.Config{
		Purchases:   purchases,
		Courses:     courses,
		Sessions:    sessions,
		Driver:      driver,
		Provisioner: provisioner,
		Grants:      grantMgr,
		Guardrails:  guardrailMgr,
		Containers:  containers,
		Gate:        sweeper.Gate{},
		Preflight:   preflight,
		Constraints: guardrailengine.Constraints{
			AllowedSizes:     sizes,
			AllowedLocations: locations,
			RequiredTags:     tags,
		},
		Tokens:          tokens,
		ConsoleURL:      gw.ConsoleURL,
		Auditor:         auditor,
		Emitter:         emitters,
		Logger:          log.New(os.Stderr, "[session] ", log.LstdFlags),
		Location:        cfg.CloudLocation,
		SessionDuration: cfg.SessionDuration(),
	})

	licenses := licenseservice.NewService(orgs, users, courses, purchases, auditor,
		log.New(os.Stderr, "[license] ", log.LstdFlags),
		cfg.DefaultMaxLaunches, cfg.LicenseReclaimOnUnassign)

	sweep := sweeper.NewSweeper(sessions, users, orchestrator, provisioner, auditor,
		log.New(os.Stderr, "[sweeper] ", log.LstdFlags))

	srv := server.New(cfg.HTTPAddr, server.Deps{
		Sessions:            orchestrator,
		Licenses:            licenses,
		Sweeper:             sweep,
		AuditRepo:           audits,
		Tokens:              tokens,
		Hasher:              security.NewHasher(0),
		SweepTokenHash:      cfg.SweepTokenHash,
		HealthPinger:        database,
		HealthPolicyChecker: preflight,
	})

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	// Give in-flight async emits a chance to land before the producer closes.
	time.Sleep(telemetry.ShutdownDrainDuration)
	log.Println("HTTP server stopped")
}
