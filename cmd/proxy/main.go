package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"partymaker/internal/config"
	"partymaker/internal/firebase"
	apihttp "partymaker/internal/http"
	"partymaker/internal/logging"
	"partymaker/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	logging.Setup()
	ctx := context.Background()
	cfg := config.Load()

	deps := apihttp.RouterDeps{Cfg: cfg}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	deps.Registry = reg

	var clients *firebase.Clients
	if cfg.StoreBackend == "memory" {
		slog.Warn("using in-memory store, data is lost on restart")
		deps.Tree = store.NewMemory()
	} else {
		var err error
		clients, err = firebase.NewClients(ctx, cfg)
		if err != nil {
			slog.Error("firebase init failed", "err", err)
			os.Exit(1)
		}
		defer clients.Close()

		switch cfg.StoreBackend {
		case "firestore":
			deps.Tree = store.NewFirestore(clients.Firestore)
		default:
			deps.Tree = store.NewRealtime(clients.Database)
		}
		deps.Verifier = clients.Auth

		if cfg.StorageBucket != "" {
			blobs, err := firebase.NewBlobStore(clients, cfg.SignedURLServiceAccountEmail)
			if err != nil {
				slog.Warn("group image uploads disabled", "err", err)
			} else {
				deps.Signer = blobs
			}
		}
	}
	if cfg.RequireAuth && deps.Verifier == nil {
		slog.Error("PROXY_REQUIRE_AUTH needs a firebase backend")
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      apihttp.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// graceful shutdown
	go func() {
		slog.Info("proxy listening", "port", cfg.Port, "project", cfg.ProjectID, "backend", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("listen failed", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slog.Info("shutting down...")
	_ = srv.Shutdown(ctxShutdown)
}
