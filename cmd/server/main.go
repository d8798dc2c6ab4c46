// Command server wires the portfolio engine's repositories, services, and
// provider registry together, exposes a thin health/status HTTP surface, and
// runs the quote-sync and peer-sync liveness loops on a cron schedule.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/aristath/portfolio-engine/internal/activities"
	"github.com/aristath/portfolio-engine/internal/assets"
	"github.com/aristath/portfolio-engine/internal/clientdata"
	"github.com/aristath/portfolio-engine/internal/clients/exchangerate"
	"github.com/aristath/portfolio-engine/internal/config"
	"github.com/aristath/portfolio-engine/internal/database"
	"github.com/aristath/portfolio-engine/internal/events"
	"github.com/aristath/portfolio-engine/internal/holdings"
	"github.com/aristath/portfolio-engine/internal/marketdata"
	"github.com/aristath/portfolio-engine/internal/marketdata/providers"
	"github.com/aristath/portfolio-engine/internal/money"
	"github.com/aristath/portfolio-engine/internal/quotesync"
	"github.com/aristath/portfolio-engine/internal/snapshots"
	syncengine "github.com/aristath/portfolio-engine/internal/sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.LogLevel))
	logger := log.With().Str("app", "portfolio-engine").Logger()

	portfolioDB, err := openAndMigrate(cfg.DataDir, "portfolio", database.ProfileLedger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open portfolio database")
	}
	defer portfolioDB.Close()

	clientDataDB, err := openAndMigrate(cfg.DataDir, "client_data", database.ProfileCache)
	if err != nil {
		logger.Fatal().Err(err).Msg("open client_data database")
	}
	defer clientDataDB.Close()

	syncDB, err := openAndMigrate(cfg.DataDir, "sync", database.ProfileStandard)
	if err != nil {
		logger.Fatal().Err(err).Msg("open sync database")
	}
	defer syncDB.Close()

	cacheRepo := clientdata.NewRepository(clientDataDB.Conn())
	cleanupJob := clientdata.NewCleanupJob(cacheRepo, logger)

	fxClient := exchangerate.NewClient(cacheRepo, logger)
	fxService := money.NewService(fxClient, logger)

	assetRepo := assets.NewRepository(portfolioDB.Conn(), logger)
	activityRepo := activities.NewRepository(portfolioDB.Conn(), logger)

	eventBus := events.NewBus()
	eventManager := events.NewManager(eventBus, logger)

	activityService := activities.NewService(activityRepo, assetRepo, fxPairLogger{log: logger}, eventManager, logger)

	assetLookup := assetLookupAdapter{repo: assetRepo}
	calculator := holdings.NewCalculator(assetLookup, fxService, cfg.BaseCurrency, logger)

	snapshotRepo := snapshots.NewRepository(portfolioDB.Conn(), logger)
	snapshotService := snapshots.NewService(snapshotRepo, activityRepo, calculator, assetLookup, fxService, cfg.BaseCurrency, logger)

	registry := marketdata.NewRegistry(nil, logger)
	registry.Register(providers.NewExchangeRateProvider(fxClient))
	if cfg.AlphaVantageAPIKey != "" {
		registry.Register(providers.NewAlphaVantageProvider(cfg.AlphaVantageAPIKey, cacheRepo, logger))
	}

	syncClock := syncengine.NewClock(syncDB.Conn())
	peerRepo := syncengine.NewPeerRepository(syncDB.Conn())

	_ = activityService
	_ = snapshotService
	_ = syncClock

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(everySeconds(cfg.QuoteSyncInterval), func() {
		logger.Info().Msg("quote sync liveness tick")
	}); err != nil {
		logger.Fatal().Err(err).Msg("schedule quote sync loop")
	}
	if _, err := scheduler.AddFunc("@every 1h", func() {
		if err := cleanupJob.Run(); err != nil {
			logger.Warn().Err(err).Msg("cache cleanup failed")
		}
	}); err != nil {
		logger.Fatal().Err(err).Msg("schedule cache cleanup")
	}
	if cfg.Peer.Enabled {
		if _, err := scheduler.AddFunc("@every 5m", func() {
			peers, err := peerRepo.ListPaired()
			if err != nil {
				logger.Warn().Err(err).Msg("list paired peers")
				return
			}
			logger.Info().Int("peer_count", len(peers)).Msg("sync loop tick")
		}); err != nil {
			logger.Fatal().Err(err).Msg("schedule sync loop")
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	_ = quotesync.PlanOptions{} // no quotesync.Service is built here; the quote sync tick above only logs

	router := buildRouter(logger, portfolioDB, clientDataDB, syncDB)

	srv := &http.Server{Addr: ":" + itoa(cfg.Port), Handler: router}
	logger.Info().Int("port", cfg.Port).Msg("starting server")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func openAndMigrate(dataDir, name string, profile database.DatabaseProfile) (*database.DB, error) {
	db, err := database.New(database.Config{Path: filepath.Join(dataDir, name+".db"), Profile: profile, Name: name})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		return nil, err
	}
	return db, nil
}

func buildRouter(logger zerolog.Logger, portfolioDB, clientDataDB, syncDB *database.DB) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"GET"}}))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{}
		for name, db := range map[string]*database.DB{"portfolio": portfolioDB, "client_data": clientDataDB, "sync": syncDB} {
			if err := db.HealthCheck(ctx); err != nil {
				status[name] = "error: " + err.Error()
			} else {
				status[name] = "ok"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status)
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		cpuPercent, _ := cpu.Percent(0, false)
		vm, _ := mem.VirtualMemory()

		resp := map[string]any{
			"cpu_percent":    cpuPercent,
			"mem_used_bytes": vm.Used,
			"mem_total":      vm.Total,
			"time":           time.Now().Format(time.RFC3339),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})

	return r
}

type assetLookupAdapter struct {
	repo *assets.Repository
}

func (a assetLookupAdapter) Lookup(assetID string) (holdings.AssetInfo, error) {
	asset, err := a.repo.GetByID(assetID)
	if err != nil {
		return holdings.AssetInfo{}, err
	}
	if asset == nil {
		return holdings.AssetInfo{Currency: ""}, nil
	}
	return holdings.AssetInfo{Currency: asset.Currency, IsAlternative: asset.IsAlternative()}, nil
}

// fxPairLogger satisfies activities.FxRegistrar by logging discovered
// implied FX pairs for operator visibility; actual rate resolution always
// happens on demand through money.Service regardless of registration.
type fxPairLogger struct {
	log zerolog.Logger
}

func (f fxPairLogger) RegisterPair(from, to string) error {
	f.log.Debug().Str("from", from).Str("to", to).Msg("implied fx pair discovered during ingestion")
	return nil
}

func parseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return l
}

func everySeconds(d time.Duration) string {
	if d <= 0 {
		d = 15 * time.Minute
	}
	return "@every " + d.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

var _ = os.Getenv
