// Command archon72d is the composition root for the Archon 72 governance
// engine: it wires the ledger, halt circuit, merkle epoch builder, motion
// queue, durable job runner, read-model projections, and HTTP API into one
// long-running process (flag-parsed config path, structured logging via
// observability/logging, OTel telemetry, signal.NotifyContext shutdown).
package main

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/archon72/governance/api"
	"github.com/archon72/governance/api/auth"
	"github.com/archon72/governance/conclave"
	"github.com/archon72/governance/config"
	"github.com/archon72/governance/fates"
	"github.com/archon72/governance/halt"
	"github.com/archon72/governance/internal/emit"
	"github.com/archon72/governance/jobqueue"
	"github.com/archon72/governance/ledger"
	"github.com/archon72/governance/merkle"
	"github.com/archon72/governance/motionqueue"
	"github.com/archon72/governance/observability/logging"
	"github.com/archon72/governance/observability/metrics"
	telemetry "github.com/archon72/governance/observability/otel"
	"github.com/archon72/governance/projection"
)

const (
	systemAgentID   = "archon.system"
	systemWitnessID = "WITNESS:archon.system"

	agentSeedEnv        = "ARCHON72_SYSTEM_AGENT_SEED"   // 64 hex chars, an Ed25519 seed
	witnessSeedEnv      = "ARCHON72_SYSTEM_WITNESS_SEED"  // 64 hex chars, an Ed25519 seed
	agentSeedKeyIDEnv   = "ARCHON72_SYSTEM_AGENT_KEY_ID"
	witnessSeedKeyIDEnv = "ARCHON72_SYSTEM_WITNESS_KEY_ID"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the archon72d configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("ARCHON72_ENV"))
	logger := logging.Setup("archon72d", env)

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "archon72d",
		Environment: env,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		logger.Error("telemetry init failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	sqlDB, err := sql.Open("pgx", cfg.DataDSN)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	if err != nil {
		logger.Error("open gorm connection", "error", err)
		os.Exit(1)
	}

	signer, err := loadSystemSigner()
	if err != nil {
		logger.Error("load system signer", "error", err)
		os.Exit(1)
	}

	keys := ledger.NewPostgresKeyRegistry(sqlDB)
	backend := ledger.NewPostgresBackend(sqlDB)
	clock := func() time.Time { return time.Now().UTC() }
	reg := metrics.Default()
	driftThreshold := float64(cfg.Ledger.ClockDriftThresholdSeconds)

	// ungatedStore never consults the halt circuit: the circuit's own
	// system.halt.triggered/restored events must always succeed, even mid
	// halt, so it is built over this store rather than the gated one.
	ungatedStore := ledger.NewStore(backend, keys,
		ledger.WithClock(clock), ledger.WithDriftThreshold(driftThreshold), ledger.WithMetrics(reg))

	circuit := halt.NewCircuit(halt.NewGormBackend(gormDB), ungatedStore, signer,
		halt.WithClock(clock), halt.WithMetrics(reg))

	// store is what every other collaborator uses; it asks circuit before
	// admitting a write, the same rewiring halt/circuit_test.go's
	// TestHaltedLedgerRejectsNonWhitelistedWrites exercises.
	store := ledger.NewStore(backend, keys,
		ledger.WithClock(clock), ledger.WithDriftThreshold(driftThreshold), ledger.WithMetrics(reg),
		ledger.WithHaltChecker(circuit))

	publisher := &emit.Publisher{
		Ledger: store,
		Identity: emit.Identity{
			AgentID:           signer.AgentID,
			SigningKeyID:      signer.SigningKeyID,
			PrivateKey:        signer.PrivateKey,
			WitnessID:         signer.WitnessID,
			WitnessPrivateKey: signer.WitnessPrivateKey,
		},
		Clock: clock,
	}

	merkleBuilder := merkle.NewBuilder(store, merkle.NewGormEpochStore(gormDB), merkle.AlgorithmBLAKE3)

	petitions := motionqueue.NewGormPetitionBackend(gormDB)
	queue := motionqueue.NewGormQueueBackend(gormDB)
	intakeLimiter := motionqueue.NewRateLimiter(
		motionqueue.NewGormBucketBackend(gormDB), cfg.RateLimits.PerHourPerSubmitter, time.Hour)
	intake := motionqueue.NewIntake(petitions, intakeLimiter, publisher,
		motionqueue.WithHaltChecker(circuit), motionqueue.WithIntakeClock(clock))

	cosignLimiter := motionqueue.NewRateLimiter(
		motionqueue.NewGormBucketBackend(gormDB), cfg.RateLimits.CosignPerHourPerSigner, time.Hour)
	cosign := motionqueue.NewCoSignDesk(petitions, cosignLimiter, publisher, motionqueue.WithCoSignClock(clock))

	adoption := motionqueue.NewAdoptionBridge(petitions, queue)
	_ = adoption // not used by the HTTP surface or any other component in this process

	jobRunner := jobqueue.NewRunner(jobqueue.NewPostgresBackend(sqlDB),
		jobqueue.WithHaltChecker(circuit),
		jobqueue.WithMaxAttempts(cfg.JobQueue.MaxAttempts),
		jobqueue.WithBatchSize(cfg.JobQueue.PollBatchSize),
		jobqueue.WithLogger(logger),
		jobqueue.WithMetrics(reg),
	)

	// Conclave and Three-Fates sessions are per-deliberation instances
	// created when a motion is selected off the queue or a petition is
	// escalated to adjudication, not long-lived singletons this process
	// starts at boot. Their durable storage is wired here so a future job
	// handler can open a Session/Engine against it; construction of the
	// Session/Engine itself, and the AgentInvoker that drives it, is left
	// to the handler that reacts to a "motion.selected"/"petition.escalated"
	// event rather than hardcoded at startup.
	conclaveBackend := conclave.NewGormBackend(gormDB)
	fatesBackend := fates.NewGormBackend(gormDB)
	_, _ = conclaveBackend, fatesBackend

	deliberationProjector := projection.NewProjector("deliberation_read_model", projection.NewGormBackend(gormDB), store)

	authenticator := (*auth.Authenticator)(nil)
	if cfg.Auth.Enabled {
		authenticator = auth.New(auth.Config{
			Enabled:    true,
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
		})
	}

	srv := &api.Server{
		Halt:      circuit,
		Intake:    intake,
		CoSign:    cosign,
		Petitions: petitions,
		Ledger:    store,
		Merkle:    merkleBuilder,
		Auth:      authenticator,
		Clock:     clock,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go runJobQueue(ctx, jobRunner, logger)
	go runProjectionCatchUp(ctx, deliberationProjector, store, logger)

	httpServer := &http.Server{Addr: cfg.ListenAddress, Handler: srv.Router()}
	go func() {
		logger.Info("archon72d listening", "address", cfg.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("archon72d shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "error", err)
	}
}

func runJobQueue(ctx context.Context, runner *jobqueue.Runner, logger *slog.Logger) {
	if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("job runner exited", "error", err)
	}
}

// runProjectionCatchUp polls the ledger tip and replays new events into the
// read-model projector every few seconds, the same poll-and-catch-up idiom
// the job runner uses for its own ticker.
func runProjectionCatchUp(ctx context.Context, p *projection.Projector, store *ledger.Store, logger *slog.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tip, ok, err := store.Tip(ctx)
			if err != nil {
				logger.Error("projection: read tip", "error", err)
				continue
			}
			if !ok {
				continue
			}
			if err := p.CatchUp(ctx, tip.Sequence, 500); err != nil {
				logger.Error("projection: catch up", "error", err)
			}
		}
	}
}

// loadSystemSigner builds the halt circuit's administrative signing identity
// from hex-encoded Ed25519 seeds and pre-registered key IDs supplied through
// the environment; enrolling those key IDs into the ledger's key registry is
// a separate one-time bootstrap step (ledger.KeyRegistry.Register), not
// something this process repeats on every boot.
func loadSystemSigner() (halt.SystemSigner, error) {
	agentSeed, err := seedFromEnv(agentSeedEnv)
	if err != nil {
		return halt.SystemSigner{}, err
	}
	witnessSeed, err := seedFromEnv(witnessSeedEnv)
	if err != nil {
		return halt.SystemSigner{}, err
	}
	agentKeyID := strings.TrimSpace(os.Getenv(agentSeedKeyIDEnv))
	witnessKeyID := strings.TrimSpace(os.Getenv(witnessSeedKeyIDEnv))
	if agentKeyID == "" || witnessKeyID == "" {
		return halt.SystemSigner{}, fmt.Errorf("archon72d: %s and %s must name the ledger key registry's pre-enrolled key IDs", agentSeedKeyIDEnv, witnessSeedKeyIDEnv)
	}

	return halt.SystemSigner{
		AgentID:           systemAgentID,
		SigningKeyID:      agentKeyID,
		PrivateKey:        ed25519.NewKeyFromSeed(agentSeed),
		WitnessID:         systemWitnessID,
		WitnessKeyID:      witnessKeyID,
		WitnessPrivateKey: ed25519.NewKeyFromSeed(witnessSeed),
	}, nil
}

func seedFromEnv(name string) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, fmt.Errorf("archon72d: %s must be set to a %d-character hex-encoded Ed25519 seed", name, ed25519.SeedSize*2)
	}
	seed, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("archon72d: decode %s: %w", name, err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("archon72d: %s must decode to %d bytes, got %d", name, ed25519.SeedSize, len(seed))
	}
	return seed, nil
}
