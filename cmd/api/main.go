package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/FynbosAI/palettefineart-sub006/internal/app"
	"github.com/FynbosAI/palettefineart-sub006/internal/cache"
	"github.com/FynbosAI/palettefineart-sub006/internal/chat"
	"github.com/FynbosAI/palettefineart-sub006/internal/config"
	"github.com/FynbosAI/palettefineart-sub006/internal/media"
	"github.com/FynbosAI/palettefineart-sub006/internal/messaging"
	"github.com/FynbosAI/palettefineart-sub006/internal/realtime"
	"github.com/FynbosAI/palettefineart-sub006/internal/search"
	"github.com/FynbosAI/palettefineart-sub006/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	searchService.ReindexAllFromPG(ctx)

	summaryCache, err := cache.NewRedisStore(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer summaryCache.Close()

	var provider messaging.Provider
	if strings.TrimSpace(cfg.TwilioAccountSID) != "" {
		provider = messaging.NewTwilioProvider(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioChatServiceSID)
	} else {
		log.Printf("messaging: no provider credentials, using in-memory provider")
		provider = messaging.NewMemoryProvider()
	}

	var logos chat.LogoResolver
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		mediaSvc, err := media.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("object store connection failed: %v", err)
		}
		logos = mediaSvc
	}

	chatService := chat.New(dataStore, provider, chat.RoleConfig{
		ClientRoleSID:  cfg.ChatRoleSIDClient,
		ShipperRoleSID: cfg.ChatRoleSIDShipper,
	}, logos)

	var service *app.Service
	refreshQueue := realtime.NewRefreshQueue(cfg.RefreshDebounce, func(ctx context.Context, quoteID string) error {
		return service.RefreshQuote(ctx, quoteID)
	})
	factory := realtime.NewRedisChannelFactory(summaryCache.Client())
	manager := realtime.NewManager(factory, cfg.ReconnectBaseDelay, cfg.ReconnectMaxDelay, refreshQueue)
	service = app.NewService(dataStore, chatService, searchService, summaryCache, manager)

	for _, orgID := range cfg.BidFeedOrgs {
		watcher := realtime.NewBidWatcher(manager, refreshQueue, orgID)
		if err := watcher.Start(ctx); err != nil {
			log.Printf("realtime: bid feed subscribe failed for %s: %v", orgID, err)
		}
	}
	defer manager.UnsubscribeFromAll(context.Background())

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Palette chat API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
