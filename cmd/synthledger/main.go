package main

import (
	"SynthLedger/internal/config"
	"SynthLedger/internal/custody"
	"SynthLedger/internal/engine"
	"SynthLedger/internal/ingestion"
	"SynthLedger/internal/observability"
	"SynthLedger/internal/oracle"
	"SynthLedger/internal/persistence"
	"SynthLedger/internal/projection"
	"SynthLedger/internal/query"
	"SynthLedger/internal/server"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	log := observability.NewLogger("main")
	log.Info().Msg("SynthLedger starting")

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	engineFile, err := config.LoadEngineFile(cfg.EngineFile)
	if err != nil {
		log.Fatal().Err(err).Msg("load engine file")
	}
	reg, err := engineFile.Registry()
	if err != nil {
		log.Fatal().Err(err).Msg("build asset registry")
	}

	// --- Context with graceful shutdown ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("postgres ping")
	}
	log.Info().Msg("postgres connected")

	migrator := persistence.NewMigrator(db, cfg.MigrationsDir)
	if err := migrator.Up(ctx); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}
	log.Info().Msg("migrations applied")

	snapMgr := persistence.NewSnapshotManager(db)
	dbChecker := persistence.NewPostgresIdempotencyChecker(db)

	// --- Observability ---
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	healthChecker := observability.NewHealthChecker()

	// --- Collaborators ---
	feeds := oracle.NewFeedBook()
	seeded, err := engineFile.SeedPrices(feeds, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("seed prices")
	}
	custodian := engineFile.CustodianID()
	vault := custody.NewVault(custodian)
	synthetic := custody.NewSyntheticToken(engineFile.Synthetic, custodian)
	log.Info().Int("assets", len(reg.List())).Int("seeded_prices", seeded).
		Str("synthetic", synthetic.Symbol()).Msg("engine file loaded")

	// --- Channels ---
	// The persist channel blocks the engine (backpressure); the publish
	// channel drops.
	persistChan := make(chan engine.Output, cfg.PersistChanSize)
	publishChan := make(chan engine.Output, cfg.PublishChanSize)
	projectionChan := make(chan engine.Output, cfg.PublishChanSize)
	outboundChan := make(chan engine.Output, cfg.PublishChanSize)

	engineLog := observability.NewLogger("engine")
	eng, err := engine.New(engine.Deps{
		Registry:      reg,
		Prices:        feeds,
		Collateral:    vault,
		Synthetic:     synthetic,
		Self:          custodian,
		Params:        engineFile.Params,
		Metrics:       metrics,
		Logger:        &engineLog,
		PersistChan:   persistChan,
		PublishChan:   publishChan,
		Dedup:         dbChecker,
		DedupCapacity: cfg.IdempotencyLRUCapacity,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("build engine")
	}

	// --- Recovery: snapshot + replay ---
	snapshotSeq, replayed, err := recoverEngine(ctx, eng, snapMgr, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("recovery failed")
	}
	log.Info().Int64("snapshot_sequence", snapshotSeq).Int("replayed", replayed).
		Int64("sequence", eng.Sequence()).Str("state_hash", eng.StateHash().String()).
		Msg("state recovered")

	if err := fundCustody(eng, vault, custodian); err != nil {
		log.Fatal().Err(err).Msg("fund custody")
	}

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATSURL)
	if err != nil {
		log.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()
	log.Info().Msg("NATS connected")

	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		log.Fatal().Err(err).Msg("ensure NATS streams")
	}

	priceSubscriber := ingestion.NewPriceSubscriber(js, feeds, metrics)
	if err := priceSubscriber.Subscribe(ctx); err != nil {
		log.Fatal().Err(err).Msg("nats subscribe")
	}
	outboundPublisher := ingestion.NewOutboundPublisher(js, outboundChan, metrics)

	// --- Services ---
	sequencer := engine.NewSequencer(eng, cfg.SequencerBuffer, metrics)
	deps := server.Deps{
		Sequencer: sequencer,
		Query:     query.NewQueryService(db),
		Health:    healthChecker,
		Metrics:   metrics,
	}
	if cfg.DevFaucet {
		log.Warn().Msg("dev faucet enabled: /v1/dev routes mint collateral into the in-process vault")
		deps.Wallets = vault
		deps.Synthetic = synthetic
	}
	srv, err := server.New(cfg.GRPCAddr, cfg.HTTPAddr, deps)
	if err != nil {
		log.Fatal().Err(err).Msg("build server")
	}

	// --- Start goroutines ---
	errChan := make(chan error, 10)

	// Workers outlive ctx: they stop when their input channel closes so
	// everything committed before shutdown reaches Postgres and NATS.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	var workers sync.WaitGroup

	var persisted atomic.Int64
	persisted.Store(eng.Sequence())
	persistWorker := persistence.NewPersistenceWorker(db, persistChan, cfg.PersistBatchSize, cfg.PersistFlushTimeout, metrics)
	persistWorker.OnFlushed(func(seq int64) { persisted.Store(seq) })
	persistDone := make(chan struct{})
	go func() {
		defer close(persistDone)
		if err := persistWorker.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- fmt.Errorf("persistence worker: %w", err)
		}
	}()

	projWorker := projection.NewProjectionWorker(db, projectionChan, metrics)
	workers.Add(3)
	go func() {
		defer workers.Done()
		if err := projWorker.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- fmt.Errorf("projection worker: %w", err)
		}
	}()

	go func() {
		defer workers.Done()
		if err := outboundPublisher.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- fmt.Errorf("outbound publisher: %w", err)
		}
	}()

	go func() {
		defer workers.Done()
		fanOut(publishChan, projectionChan, outboundChan, metrics)
	}()

	sequencerDone := make(chan struct{})
	go func() {
		defer close(sequencerDone)
		if err := sequencer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errChan <- fmt.Errorf("sequencer: %w", err)
		}
	}()

	go func() {
		errChan <- srv.StartGRPC(ctx)
	}()
	go func() {
		errChan <- srv.StartHTTP(ctx)
	}()

	snaps := &snapshotter{
		snapshots: snapMgr,
		keys:      dbChecker,
		keyLimit:  cfg.IdempotencyLRUCapacity,
		persisted: &persisted,
		metrics:   metrics,
		log:       observability.NewLogger("snapshot"),
		last:      eng.Sequence(),
	}
	snapshotsDone := make(chan struct{})
	go func() {
		defer close(snapshotsDone)
		snaps.runPeriodic(ctx, sequencer, cfg.SnapshotInterval)
	}()

	go func() {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
			defer c()
			metricsServer.Shutdown(shutCtx)
		}()
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening on /metrics")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	srv.SetServing(true)
	log.Info().Int64("sequence", eng.Sequence()).Str("grpc", cfg.GRPCAddr).
		Str("http", cfg.HTTPAddr).Str("metrics", cfg.MetricsAddr).Msg("SynthLedger ready")

	// --- Wait for shutdown signal ---
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		log.Error().Err(err).Msg("goroutine failed, shutting down")
	}

	// --- Graceful shutdown ---
	// Stop intake, let the sequencer finish its current command, then drain
	// the outputs before the final snapshot.
	srv.SetServing(false)
	cancel()
	priceSubscriber.Stop()
	<-sequencerDone
	<-snapshotsDone

	close(persistChan)
	close(publishChan)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	select {
	case <-persistDone:
	case <-shutdownCtx.Done():
		log.Error().Msg("persistence worker did not drain before the shutdown deadline")
	}
	drained := make(chan struct{})
	go func() {
		workers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		log.Warn().Msg("projection or publisher still draining at the shutdown deadline")
		stopWorkers()
	}

	snap, err := eng.Snapshot()
	if err == nil {
		err = snaps.save(shutdownCtx, snap)
	}
	if err != nil {
		log.Error().Err(err).Msg("final snapshot failed")
	} else {
		log.Info().Int64("sequence", snap.Sequence).Msg("final snapshot saved")
	}

	log.Info().Msg("SynthLedger shutdown complete")
}
