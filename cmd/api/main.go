package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"medcore.org/internal/auth"
	"medcore.org/internal/clinic"
	"medcore.org/internal/httpapi"
	"medcore.org/internal/notify"
	"medcore.org/internal/obs"
	"medcore.org/internal/store/memory"
	"medcore.org/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	_ = godotenv.Load()
	obs.Init()
	obs.InitBuildInfo(version, commit)

	if os.Getenv("MEDCORE_AUTH_SECRET") == "" {
		log.Fatal("MEDCORE_AUTH_SECRET must be set")
	}

	// Storage: PostgreSQL when a DSN is configured, otherwise the in-memory
	// store for local development.
	var (
		store   clinic.Store
		creds   auth.CredentialStore
		probe   httpapi.ReadyProbe
		cleanup func()
	)
	if dsn := os.Getenv("MEDCORE_PG_DSN"); dsn != "" {
		pgStore, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = pgStore
		creds = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
		cleanup = func() { _ = pgStore.Close() }
	} else {
		log.Println("MEDCORE_PG_DSN not set, using in-memory store")
		mem := memory.New()
		bootstrapAdmin(mem)
		store = mem
		creds = mem
		cleanup = func() {}
	}

	// Rejection notices go out through SMTP when a relay is configured;
	// otherwise they are logged and dropped by the nil sink path.
	var notifier clinic.Notifier
	var dispatcher *notify.Dispatcher
	if addr := os.Getenv("MEDCORE_SMTP_ADDR"); addr != "" {
		from := os.Getenv("MEDCORE_SMTP_FROM")
		if from == "" {
			from = "no-reply@medcore.local"
		}
		dispatcher = notify.NewDispatcher(notify.NewSMTP(addr, from), 64)
		notifier = dispatcher
	}

	scheduler := clinic.NewScheduler(store, notifier)
	verifier := auth.NewVerifier(creds)
	api := httpapi.New(probe, version, scheduler, verifier)

	srv := &http.Server{
		Addr:              listenAddr(),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting medcore-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	if dispatcher != nil {
		dispatcher.Close()
	}
	cleanup()
	log.Println("Stopped")
}

func listenAddr() string {
	if addr := os.Getenv("MEDCORE_LISTEN_ADDR"); addr != "" {
		return addr
	}
	return ":8080"
}

// bootstrapAdmin seeds a single admin login into the in-memory store so the
// development server is usable out of the box.
func bootstrapAdmin(mem *memory.Store) {
	email := os.Getenv("MEDCORE_BOOTSTRAP_ADMIN_EMAIL")
	password := os.Getenv("MEDCORE_BOOTSTRAP_ADMIN_PASSWORD")
	if email == "" || password == "" {
		log.Println("no bootstrap admin configured, login is disabled")
		return
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("hash bootstrap password: %v", err)
	}
	mem.AddAdmin(auth.Credential{
		ID:           "admin-1",
		Email:        email,
		Name:         "Bootstrap Admin",
		PasswordHash: hash,
	})
}
