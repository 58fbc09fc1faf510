package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soulmatelibrary-ux/callsingkatc-sub001/internal/auth"
	"github.com/soulmatelibrary-ux/callsingkatc-sub001/internal/httpapi"
	"github.com/soulmatelibrary-ux/callsingkatc-sub001/internal/obs"
)

var version = "0.3.0"

func main() {
	obs.Init()

	if err := auth.EnsureSecret(); err != nil {
		log.Fatalf("token secret: %v", err)
	}

	var (
		store auth.Store
		probe httpapi.ReadyProbe
	)
	if dsn := os.Getenv("PORTAL_PG_DSN"); dsn != "" {
		db, err := auth.OpenDB(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer db.Close()
		store = auth.NewPGStore(db)
		probe = httpapi.ReadyProbe{DB: db}
	} else {
		// In-memory store for local development; nothing survives a restart.
		log.Println("PORTAL_PG_DSN not set, using in-memory store")
		store = auth.NewMemStore()
	}

	svc, err := auth.NewService(store)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	secureCookies := os.Getenv("PORTAL_ENV") == "production"
	api := httpapi.New(svc, probe, version, secureCookies,
		httpapi.WithCORSOrigin(os.Getenv("PORTAL_CORS_ORIGIN")))

	addr := os.Getenv("PORTAL_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting portal-api %s on %s", version, srv.Addr)

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
	log.Println("Stopped")
}
