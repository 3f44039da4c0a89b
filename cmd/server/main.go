package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/ianarundale/lead-from-here/internal/catalog"
	"github.com/ianarundale/lead-from-here/internal/config"
	"github.com/ianarundale/lead-from-here/internal/engine"
	"github.com/ianarundale/lead-from-here/internal/httpapi"
	"github.com/ianarundale/lead-from-here/internal/registry"
	"github.com/ianarundale/lead-from-here/internal/store"
	"github.com/ianarundale/lead-from-here/internal/voting"
	"github.com/ianarundale/lead-from-here/internal/ws"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	cat, err := catalog.Load(cfg.ScenariosPath)
	if err != nil {
		log.Fatal("failed to load scenarios", zap.Error(err))
	}
	defaults := func() engine.State { return engine.NewState(cat) }

	var (
		st  store.Store
		reg registry.Registry
	)
	if cfg.DataDir != "" {
		db, err := badger.Open(badger.DefaultOptions(cfg.DataDir))
		if err != nil {
			log.Fatal("failed to open badger", zap.Error(err))
		}
		defer db.Close()
		st = store.NewBadger(db, defaults)
		reg = registry.NewBadger(db)
		log.Info("using badger-backed state", zap.String("data_dir", cfg.DataDir))
	} else {
		st = store.NewMemory(defaults)
		reg = registry.NewMemory()
		log.Info("using in-memory state")
	}

	ctx := context.Background()
	handler := voting.NewHandler(st, reg, log)
	hub := ws.NewHub(ctx, func(connectionID string) {
		handler.Evict(context.Background(), connectionID)
	}, log)

	api := httpapi.NewAPI(handler, hub, cfg.DeployVersion, log)
	router := httpapi.SetupRoutes(api, ws.Handler(hub, handler, log))

	server := &http.Server{Addr: cfg.Addr, Handler: router}

	ctrlc := make(chan os.Signal, 1)
	signal.Notify(ctrlc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctrlc
		hub.Inbox() <- ws.Shutdown{}
		server.Close()
	}()

	log.Info("listening", zap.String("addr", cfg.Addr), zap.Int("scenarios", len(cat.Scenarios)))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("server stopped", zap.Error(err))
	}
}
