package main

import (
	"context"
	"log"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"decleanup-backend/core/dmrv"
	"decleanup-backend/core/lifecycle"
	"decleanup-backend/ledger"
	"decleanup-backend/mcp"
	"decleanup-backend/services"
	"decleanup-backend/storage/advisory"
	"decleanup-backend/storage/cache"
)

// The MCP server shares the Redis cache and Postgres advisory store with the
// HTTP backend when configured, so the tools see the same claim records the
// API serves.
func main() {
	ctx := context.Background()

	gateway := ledger.NewClientFromEnv()

	var claimed mcp.ClaimedLister
	var walletCache lifecycle.WalletCache
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rs, err := cache.NewRedisStore(ctx, addr, os.Getenv("REDIS_PASSWORD"), 0)
		if err != nil {
			log.Fatalf("redis connect failed: %v", err)
		}
		defer rs.Close()
		claimed, walletCache = rs, rs
	} else {
		ms := cache.NewMemoryStore()
		claimed, walletCache = ms, ms
	}

	var advStore advisory.Store
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		pg, err := advisory.NewPGStore(ctx, dsn)
		if err != nil {
			log.Fatalf("postgres connect failed: %v", err)
		}
		defer pg.Close()
		advStore = pg
	} else {
		advStore = advisory.NewMemoryStore()
	}

	dmrvCfg := dmrv.LoadConfig()
	provider := dmrv.NewProvider(dmrvCfg.ModelProvider, os.Getenv("DMRV_API_BASE"), os.Getenv("DMRV_API_KEY"))
	verification := services.NewVerificationService(dmrvCfg, provider, advStore)

	prefix := lifecycle.NewPreFixDetector(gateway, walletCache, 0)
	resolver := lifecycle.NewResolver(gateway, walletCache, prefix, lifecycle.RetryConfig{})

	mcpServer := mcp.NewMCPServer(resolver, gateway, verification, claimed)

	log.Printf("DeCleanup MCP server starting")
	if err := server.ServeStdio(mcpServer.GetMCPServer()); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
