package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"accessgate.org/internal/alert"
	"accessgate.org/internal/audit"
	"accessgate.org/internal/authz"
	"accessgate.org/internal/httpapi"
	"accessgate.org/internal/obs"
	"accessgate.org/internal/report"
	"accessgate.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		httpAddr = envOr("ACCESSGATE_HTTP_ADDR", ":8080")
		grpcAddr = envOr("ACCESSGATE_GRPC_ADDR", "")
		dsn      = os.Getenv("ACCESSGATE_PG_DSN")
	)

	// Storage: Postgres when a DSN is provided, in-memory otherwise.
	var (
		sink      audit.Sink
		pruner    audit.Pruner
		members   authz.MembershipStore
		readProbe httpapi.ReadyProbe
		pgStore   *pg.Store
	)
	if dsn != "" {
		var err error
		pgStore, err = pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		sink, pruner, members = pgStore, pgStore, pgStore
		readProbe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		mem := audit.NewInMemory()
		sink, pruner = mem, mem
		members = staticMemberships()
		log.Println("ACCESSGATE_PG_DSN not set; using in-memory stores")
	}

	alerts := alert.New()

	recorder, err := audit.NewRecorder(sink, alerts)
	if err != nil {
		log.Fatalf("recorder: %v", err)
	}
	resolver, err := authz.NewStoreResolver(members)
	if err != nil {
		log.Fatalf("resolver: %v", err)
	}
	engine, err := authz.NewEngine(resolver, recorder)
	if err != nil {
		// A rule chain conflict halts startup loudly.
		log.Fatalf("engine: %v", err)
	}
	reporter, err := report.NewReporter(resolver, sink, recorder)
	if err != nil {
		log.Fatalf("reporter: %v", err)
	}

	// Retention sweeps. Windows come from config; unset means retain forever.
	retention := audit.Retention{
		Identity: envDuration("ACCESSGATE_RETENTION_IDENTITY", 0),
		Domain:   envDuration("ACCESSGATE_RETENTION_DOMAIN", 0),
	}
	janitor, err := audit.NewJanitor(pruner, retention)
	if err != nil {
		log.Fatalf("janitor: %v", err)
	}
	sweepCtx, stopSweeps := context.WithCancel(context.Background())
	defer stopSweeps()
	go runSweeps(sweepCtx, janitor)

	api := httpapi.New(httpapi.Config{
		ReadyProbe: readProbe,
		Engine:     engine,
		Reporter:   reporter,
		Alerts:     alerts,
		Authn:      httpapi.NewAuthenticator(os.Getenv("ACCESSGATE_TOKEN_SECRET"), os.Getenv("ACCESSGATE_TOKEN_ISSUER")),
		Version:    version,
	})

	srv := &http.Server{
		Addr:              httpAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting accessgate-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	var grpcSrv = httpapi.NewGRPCServer(readProbe)
	if grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		log.Printf("Starting gRPC health on %s", grpcAddr)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	grpcSrv.GracefulStop()
	if pgStore != nil {
		_ = pgStore.Close()
	}
	log.Println("Stopped")
}

func runSweeps(ctx context.Context, janitor *audit.Janitor) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := janitor.Sweep(ctx); err != nil {
				log.Printf("retention sweep: %v", err)
			}
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Fatalf("%s: %v", key, err)
	}
	return d
}

// staticMemberships mirrors the development seed data for DSN-less runs.
type memMemberships map[string]authz.Membership

func staticMemberships() memMemberships {
	now := time.Now().UTC()
	m := memMemberships{}
	add := func(subject, org string, role authz.Role) {
		m[subject+"/"+org] = authz.Membership{
			SubjectID: subject, OrgID: org, Role: role,
			Status: authz.MembershipActive, CreatedAt: now, UpdatedAt: now,
		}
	}
	add("user-owner", "org-northside", authz.RoleOwner)
	add("user-frontdesk", "org-northside", authz.RoleMember)
	add("user-accounts", "org-northside", authz.RoleBilling)
	add("user-drlee", "org-drlee", authz.RoleOwner)
	add("user-ivanov", "org-pat-ivanov", authz.RoleOwner)
	return m
}

func (m memMemberships) Membership(_ context.Context, subjectID, orgID string) (authz.Membership, error) {
	if mem, ok := m[subjectID+"/"+orgID]; ok {
		return mem, nil
	}
	return authz.Membership{}, authz.ErrNotAMember
}
