package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/rangeseeker/rebalancer/internal/cache"
	"github.com/rangeseeker/rebalancer/internal/chain"
	"github.com/rangeseeker/rebalancer/internal/config"
	"github.com/rangeseeker/rebalancer/internal/external"
	"github.com/rangeseeker/rebalancer/internal/logger"
	"github.com/rangeseeker/rebalancer/internal/marketdata"
	"github.com/rangeseeker/rebalancer/internal/orchestrator"
	"github.com/rangeseeker/rebalancer/internal/scheduler"
	"github.com/rangeseeker/rebalancer/internal/state"
	"github.com/rangeseeker/rebalancer/internal/web"
)

// main is the entry point for the rebalancing engine.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FILE"))
	log.Info().Msg("Rebalancing engine starting...")

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- 2. Database ---
	dbCfg := state.DBConfig{
		Host: config.DBHost, Port: config.DBPort,
		User: config.DBUser, Password: config.DBPassword,
		DBName: config.DBName, SSLMode: config.DBSSLMode,
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// --- 3. Chain and External Clients ---
	signer, err := chain.NewLocalSigner(config.ChainID, config.AgentPrivateKeys)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize transaction signer")
	}

	chainClient, err := chain.NewClient(ctx, config.RPCNodeURL, config.ChainID,
		common.HexToAddress(config.PositionManagerAddress), signer)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RPC node")
	}
	defer chainClient.Close()
	log.Info().Str("endpoint", config.RPCNodeURL).Uint64("chain_id", config.ChainID).Msg("Chain client connected")

	oracle := external.NewPythClient(config.PythBaseURL)
	quoter := external.NewZeroxClient(config.ZeroxBaseURL, config.ZeroxAPIKey, config.ChainID)

	// --- 4. Orchestrator ---
	marketCache := cache.New()
	models := func(token0Decimals, token1Decimals int) orchestrator.VolatilitySource {
		return marketdata.NewModel(chainClient, marketCache, config.VolatilityCacheTTL, token0Decimals, token1Decimals)
	}

	store := state.PgStore{}
	engine := orchestrator.NewOrchestrator(chainClient, quoter, oracle, store, models, orchestrator.Config{
		WorkflowDeadline: config.WorkflowDeadline,
	})

	// --- 5. Admin Web Server ---
	webServer := web.NewWebServer(config.WebListenAddr, engine, store)
	go func() {
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server stopped")
		}
	}()

	// --- 6. Scheduler Loop ---
	loop := scheduler.NewScheduler(engine, store, config.SchedulerInterval)
	loop.RunLoop(ctx)

	// Give in-flight log writes a moment before the deferred closes run.
	log.Info().Msg("Rebalancing engine shut down")
	time.Sleep(100 * time.Millisecond)
}
