package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ralpioxxcs/vtlr/internal/analytics"
	"github.com/ralpioxxcs/vtlr/internal/api"
	"github.com/ralpioxxcs/vtlr/internal/circuitbreaker"
	"github.com/ralpioxxcs/vtlr/internal/config"
	"github.com/ralpioxxcs/vtlr/internal/cron"
	"github.com/ralpioxxcs/vtlr/internal/dispatcher"
	"github.com/ralpioxxcs/vtlr/internal/downstream"
	"github.com/ralpioxxcs/vtlr/internal/metrics"
	"github.com/ralpioxxcs/vtlr/internal/orchestrator"
	"github.com/ralpioxxcs/vtlr/internal/recovery"
	"github.com/ralpioxxcs/vtlr/internal/store/postgres"
	"github.com/ralpioxxcs/vtlr/internal/transport/channel"
	"github.com/ralpioxxcs/vtlr/internal/trigger"

	_ "github.com/lib/pq"
)

// cronParserAdapter adapts internal/cron.Evaluator to the trigger.CronParser
// interface.
type cronParserAdapter struct {
	eval *cron.Evaluator
}

func (a *cronParserAdapter) Parse(expression string) (trigger.CronSchedule, error) {
	sched, err := a.eval.Parse(expression)
	if err != nil {
		return nil, err
	}
	return sched, nil
}

// registryAdapter adapts trigger.Registry to the orchestrator.Registry
// interface. Remove treats a missing entry as success: one-shot triggers
// unregister themselves after firing, and schedule deletion must still
// proceed afterwards.
type registryAdapter struct {
	registry *trigger.Registry
}

func (a *registryAdapter) Upsert(key uuid.UUID, entry trigger.Entry) error {
	return a.registry.Upsert(key, entry)
}

func (a *registryAdapter) Remove(key uuid.UUID) error {
	a.registry.Remove(key)
	return nil
}

// txStore adapts postgres.Store's concrete Begin to the orchestrator.Store
// interface.
type txStore struct {
	*postgres.Store
}

func (s txStore) Begin(ctx context.Context) (orchestrator.Tx, error) {
	return s.Store.Begin(ctx)
}

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`vtlr - voice butler schedule and dispatch engine

Usage:
  vtlr <command>

Commands:
  serve      Start the trigger registry and dispatcher
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  DATABASE_URL              PostgreSQL connection string (required)
  TTS_SERVICE_URL           Text-to-speech service base URL (required)
  PLAYBACK_SERVICE_URL      Playback service base URL (required)
  DEVICE_SERVICE_URL        Device directory base URL (required)
  REDIS_ADDR                Redis address for firing analytics (optional)
  HTTP_ADDR                 HTTP server address (default: ":8080")
  TICK_INTERVAL             Trigger registry tick interval (default: "1s")
  TIMEZONE                  IANA timezone for cron evaluation (default: "Asia/Seoul")

  DB_OP_TIMEOUT             Database operation timeout (default: "5s")
  DB_MAX_OPEN_CONNS         Max open database connections (default: "25")
  DB_MAX_IDLE_CONNS         Max idle database connections (default: "5")
  DB_CONN_MAX_LIFETIME      Max connection lifetime (default: "30m")
  DB_CONN_MAX_IDLE_TIME     Max connection idle time (default: "5m")

  HTTP_SHUTDOWN_TIMEOUT     Graceful HTTP shutdown timeout (default: "10s")
  DISPATCH_WORKERS          Concurrent dispatch workers (default: "4")
  FIRING_BUS_BUFFER         Firing queue capacity (default: "64")
  DOWNSTREAM_TIMEOUT        Per-request downstream timeout (default: "10s")
  DEFAULT_LANGUAGE          Rendering language fallback (default: "ko")
  DESIGNATED_RECIPIENT      Owner UUID for whole-schedule reminders (optional)
  ONE_TIME_PAST_POLICY      "reject" or "allow" past one-time moments (default: "reject")

  CIRCUIT_BREAKER_THRESHOLD Consecutive failures before open; 0 disables (default: "5")
  CIRCUIT_BREAKER_COOLDOWN  Open-state cooldown before a trial request (default: "2m")

  METRICS_ENABLED           Enable Prometheus metrics (default: "false")
  METRICS_PATH              Metrics endpoint path (default: "/metrics")

  ANALYTICS_WINDOW          Firing counter bucket size (default: "5m")
  ANALYTICS_RETENTION       Firing counter TTL (default: "168h")`)
}

// logConfigWarnings reports configuration that serves but degrades behavior.
func logConfigWarnings(cfg *config.Config) {
	if cfg.RedisAddr == "" {
		log.Println("vtlr: WARNING: REDIS_ADDR not set; firing analytics disabled")
	}
	if !cfg.MetricsEnabled {
		log.Println("vtlr: WARNING: METRICS_ENABLED not set; running blind without metrics")
	}
	if cfg.CircuitBreakerThreshold == 0 {
		log.Println("vtlr: WARNING: CIRCUIT_BREAKER_THRESHOLD=0; downstream failures will not open the circuit")
	}
	if cfg.DesignatedRecipient == "" {
		log.Println("vtlr: INFO: DESIGNATED_RECIPIENT not set; reminders go to each schedule's owner")
	}
}

// probeTaskResultColumn verifies the tasks.result column exists. A missing
// column means the schema predates outcome recording and every dispatch
// would fail to persist its result.
func probeTaskResultColumn(db *sql.DB) error {
	var name string
	return db.QueryRow(
		`SELECT column_name FROM information_schema.columns
		 WHERE table_name = 'tasks' AND column_name = 'result'`,
	).Scan(&name)
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	logConfigWarnings(&cfg)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		return exitRuntimeError
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	log.Printf("vtlr: db pool configured (max_open=%d, max_idle=%d, max_lifetime=%s, max_idle_time=%s)",
		cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect to database: %v\n", err)
		return exitRuntimeError
	}

	if err := probeTaskResultColumn(db); err != nil {
		fmt.Fprintf(os.Stderr, "schema probe failed (is the tasks.result migration applied?): %v\n", err)
		return exitRuntimeError
	}

	store := postgres.New(db, cfg.DBOpTimeout)

	eval, err := cron.NewEvaluator(cfg.Timezone)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load timezone: %v\n", err)
		return exitInvalidConfig
	}

	// Initialize metrics sink (optional)
	var metricsSink *metrics.PrometheusSink
	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Printf("vtlr: metrics enabled (path=%s)", cfg.MetricsPath)
	}

	var busOpts []channel.Option
	if metricsSink != nil {
		busOpts = append(busOpts, channel.WithMetrics(metricsSink))
	}
	bus := channel.NewFiringBus(cfg.FiringBusBuffer, busOpts...)

	registry := trigger.New(
		trigger.Config{TickInterval: cfg.TickInterval},
		&cronParserAdapter{eval: eval},
		bus,
	)
	if metricsSink != nil {
		registry = registry.WithMetrics(metricsSink)
	}

	orch := orchestrator.New(&registryAdapter{registry: registry})
	service := orchestrator.NewService(
		txStore{Store: store},
		orch,
		eval,
		orchestrator.OneTimePastPolicy(cfg.OneTimePastPolicy),
	)

	// Re-register triggers for surviving schedules before anything fires.
	recoverer := recovery.New(store, orch, eval)
	if err := recoverer.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "recovery failed: %v\n", err)
		return exitRuntimeError
	}

	// Downstream clients share one breaker so each target trips
	// independently by name.
	var breaker *circuitbreaker.CircuitBreaker
	if cfg.CircuitBreakerThreshold > 0 {
		breaker = circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
		log.Printf("vtlr: circuit breaker enabled (threshold=%d, cooldown=%s)",
			cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
	}

	tts := downstream.NewTTSClient(cfg.TTSServiceURL, cfg.DownstreamTimeout)
	devices := downstream.NewDeviceClient(cfg.DeviceServiceURL, cfg.DownstreamTimeout)
	playback := downstream.NewPlaybackClient(cfg.PlaybackServiceURL, cfg.DownstreamTimeout)
	if breaker != nil {
		tts = tts.WithBreaker(breaker)
		devices = devices.WithBreaker(breaker)
		playback = playback.WithBreaker(breaker)
	}
	if metricsSink != nil {
		tts = tts.WithMetrics(metricsSink)
		devices = devices.WithMetrics(metricsSink)
		playback = playback.WithMetrics(metricsSink)
	}

	var recipient uuid.UUID
	if cfg.DesignatedRecipient != "" {
		recipient = uuid.MustParse(cfg.DesignatedRecipient)
	}

	disp := dispatcher.New(store, tts, devices, playback, dispatcher.Config{
		Workers:         cfg.DispatchWorkers,
		DefaultLanguage: cfg.DefaultLanguage,
		Recipient:       recipient,
	}).WithCleaner(service)
	if metricsSink != nil {
		disp = disp.WithMetrics(metricsSink)
	}

	// Wire analytics if Redis is configured
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		sink := analytics.NewRedisSink(redisClient, analytics.Config{
			Window:    cfg.AnalyticsWindow,
			Retention: cfg.AnalyticsRetention,
		})
		disp = disp.WithAnalytics(sink)
		log.Printf("vtlr: analytics enabled (redis=%s)", cfg.RedisAddr)
	}

	apiHandler := api.NewHandler(service).WithHealthChecker(db)

	mux := http.NewServeMux()
	mux.Handle("/", apiHandler)
	if cfg.MetricsEnabled {
		mux.Handle(cfg.MetricsPath, promhttp.Handler())
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("vtlr: http server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("vtlr: http server error: %v", err)
		}
	}()

	// Separate contexts for registry and dispatcher enable ordered shutdown:
	// the registry stops emitting first, then the dispatcher finishes
	// in-flight firings.
	registryCtx, cancelRegistry := context.WithCancel(context.Background())
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())

	var registryWg sync.WaitGroup
	var dispatcherWg sync.WaitGroup

	registryWg.Add(1)
	go func() {
		defer registryWg.Done()
		_ = registry.Run(registryCtx)
	}()

	dispatcherWg.Add(1)
	go func() {
		defer dispatcherWg.Done()
		disp.Run(dispatcherCtx, bus)
	}()

	log.Printf("vtlr: started (tick=%s, workers=%d, http=%s)",
		cfg.TickInterval, cfg.DispatchWorkers, cfg.HTTPAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("vtlr: received signal %v, shutting down", received)

	// Phase 1: stop the trigger registry (no new firings emitted)
	log.Println("vtlr: stopping trigger registry...")
	cancelRegistry()
	registryWg.Wait()
	log.Println("vtlr: trigger registry stopped")

	// Phase 2: stop the dispatcher workers
	log.Println("vtlr: stopping dispatcher...")
	cancelDispatcher()
	dispatcherWg.Wait()
	log.Println("vtlr: dispatcher stopped")

	// Phase 3: graceful HTTP shutdown
	log.Println("vtlr: stopping http server...")
	httpShutdownCtx, httpShutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer httpShutdownCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		log.Printf("vtlr: http server shutdown error: %v", err)
	}
	log.Println("vtlr: http server stopped")

	log.Println("vtlr: stopped")
	return exitSuccess
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("vtlr version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
