package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orchflow.org/access/internal/httpapi"
	"orchflow.org/access/internal/obs"
	"orchflow.org/access/internal/rbac"
	"orchflow.org/access/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		store *pg.Store
		svc   *rbac.Service
	)
	if dsn := os.Getenv("ACCESS_PG_DSN"); dsn != "" {
		var err error
		store, err = pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		svc, err = rbac.NewService(store)
		if err != nil {
			log.Fatalf("rbac service: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := svc.Bootstrap(ctx); err != nil {
			cancel()
			log.Fatalf("bootstrap builtin catalog: %v", err)
		}
		cancel()
	} else {
		log.Println("ACCESS_PG_DSN is not set, serving without a backing store")
	}

	probe := httpapi.ReadyProbe{}
	if store != nil {
		probe.DB = store.DB()
	}
	api := httpapi.New(probe, version, svc)

	addr := os.Getenv("ACCESS_ADDR")
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

	log.Printf("Starting access-api %s on %s", version, srv.Addr)

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
	if store != nil {
		_ = store.Close()
	}
	log.Println("Stopped")
}
