package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"decleanup-backend/core/dmrv"
	"decleanup-backend/core/lifecycle"
	"decleanup-backend/ipfs"
	"decleanup-backend/ledger"
	"decleanup-backend/middleware"
	httpserver "decleanup-backend/middleware/lifecycle"
	"decleanup-backend/services"
	"decleanup-backend/storage/advisory"
	"decleanup-backend/storage/cache"
)

type config struct {
	ListenAddr     string
	RedisAddr      string
	RedisPassword  string
	DatabaseURL    string
	APIKey         string
	PrefixGrace    time.Duration
	ConfirmTimeout time.Duration
	SearchMinChars int
	ShareBase      string
}

func loadConfig() config {
	listen := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if listen == "" {
		listen = ":3001"
	}

	graceMin := 60
	if raw := os.Getenv("DCU_PREFIX_GRACE_MIN"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			graceMin = v
		}
	}

	confirmSec := 120
	if raw := os.Getenv("DCU_CONFIRM_TIMEOUT_SEC"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			confirmSec = v
		}
	}

	return config{
		ListenAddr:     listen,
		RedisAddr:      strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		APIKey:         strings.TrimSpace(os.Getenv("API_KEY")),
		PrefixGrace:    time.Duration(graceMin) * time.Minute,
		ConfirmTimeout: time.Duration(confirmSec) * time.Second,
		SearchMinChars: services.SearchMinCharsFromEnv(),
		ShareBase:      strings.TrimSpace(os.Getenv("SHARE_BASE_URL")),
	}
}

func main() {
	cfg := loadConfig()
	ctx := context.Background()

	gateway := ledger.NewClientFromEnv()

	var store httpserver.CacheStore
	if cfg.RedisAddr != "" {
		rs, err := cache.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, 0)
		if err != nil {
			log.Fatalf("redis connect failed: %v", err)
		}
		defer rs.Close()
		store = rs
		log.Printf("wallet cache: redis at %s", cfg.RedisAddr)
	} else {
		store = cache.NewMemoryStore()
		log.Printf("wallet cache: in-memory (set REDIS_ADDR for shared deployments)")
	}

	var advStore advisory.Store
	if cfg.DatabaseURL != "" {
		pg, err := advisory.NewPGStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres connect failed: %v", err)
		}
		defer pg.Close()
		advStore = pg
		log.Printf("advisory store: postgres")
	} else {
		advStore = advisory.NewMemoryStore()
		log.Printf("advisory store: in-memory (set DATABASE_URL to persist the audit trail)")
	}

	prefix := lifecycle.NewPreFixDetector(gateway, store, cfg.PrefixGrace)
	resolver := lifecycle.NewResolver(gateway, store, prefix, lifecycle.RetryConfig{})
	coordinator := lifecycle.NewCoordinator(gateway, cfg.ConfirmTimeout)

	dmrvCfg := dmrv.LoadConfig()
	provider := dmrv.NewProvider(dmrvCfg.ModelProvider, os.Getenv("DMRV_API_BASE"), os.Getenv("DMRV_API_KEY"))
	verification := services.NewVerificationService(dmrvCfg, provider, advStore)
	verifier := services.NewVerifierService(gateway, advStore, cfg.ConfirmTimeout)
	wallets := services.NewWalletService(gateway, cfg.SearchMinChars)
	share := services.NewShareService(cfg.ShareBase)

	var photos httpserver.PhotoStore
	if os.Getenv("IPFS_API_URL") != "" {
		photos = ipfs.NewClientFromEnv()
	}

	srv := httpserver.NewServer(resolver, coordinator, store, verification, verifier, wallets, share, photos, cfg.APIKey)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           middleware.Chain(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server starting on %s", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Printf("server stopped")
}
