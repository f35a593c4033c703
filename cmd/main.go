package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	_ "github.com/sbilibin2017/gw-ledger/docs"
	"github.com/sbilibin2017/gw-ledger/internal/handlers"
	"github.com/sbilibin2017/gw-ledger/internal/logger"
	"github.com/sbilibin2017/gw-ledger/internal/metrics"
	"github.com/sbilibin2017/gw-ledger/internal/repositories"
	"github.com/sbilibin2017/gw-ledger/internal/services"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Build info variables, set via ldflags at build time.
var (
	buildVersion = "N/A" // Version of the service
	buildDate    = "N/A" // Build date
	buildCommit  = "N/A" // Git commit hash
)

// config holds the application, database, Redis, Kafka and reservation settings.
type config struct {
	AppHost  string
	AppPort  string
	LogLevel string

	PGHost         string
	PGPort         int
	PGUser         string
	PGPassword     string
	PGDB           string
	PGMaxOpenConns int
	PGMaxIdleConns int

	ReservationTimeout  time.Duration
	ReservationFallback bool

	RedisHost       string // empty disables the outcome cache
	RedisPort       int
	RedisDB         int
	RedisPassword   string
	OutcomeCacheTTL time.Duration

	KafkaBrokers []string // empty disables event publishing
	KafkaTopic   string

	AllowedOrigins []string
}

// @title gw-ledger API
// @version 1.0.0
// @description Append-only account ledger with race-free withdraw reservations
// @host localhost:8080
// @BasePath /
// @schemes http
func main() {
	printBuildInfo()
	configPath := parseFlags()

	cfg, err := parseConfig(configPath)
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		log.Fatalf("application stopped with error: %v", err)
	}
}

// printBuildInfo prints the build version, commit hash, and build date.
func printBuildInfo() {
	fmt.Printf("Starting service version %s, commit %s, build %s\n", buildVersion, buildCommit, buildDate)
}

// parseFlags parses command-line flags and returns the config file path.
func parseFlags() string {
	c := flag.String("c", "config.env", "Path to configuration file")
	flag.Parse()
	return *c
}

// parseConfig loads environment variables from a file and returns the
// configuration. Variables already set in the environment win over the file.
// Missing required keys and malformed values are reported together.
func parseConfig(path string) (config, error) {
	_ = godotenv.Load(path)

	getEnv := func(key, defaultValue string) string {
		if val, ok := os.LookupEnv(key); ok && val != "" {
			return val
		}
		return defaultValue
	}

	var errs []error
	required := func(key string) string {
		val := getEnv(key, "")
		if val == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
		return val
	}
	atoi := func(key, defaultValue string) int {
		n, err := strconv.Atoi(getEnv(key, defaultValue))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return n
	}
	duration := func(key, defaultValue string) time.Duration {
		d, err := time.ParseDuration(getEnv(key, defaultValue))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		} else if d <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive", key))
		}
		return d
	}
	list := func(key, defaultValue string) []string {
		var out []string
		for _, s := range strings.Split(getEnv(key, defaultValue), ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}

	var cfg config

	// Application config
	cfg.AppHost = getEnv("APP_HOST", "0.0.0.0")
	cfg.AppPort = getEnv("APP_PORT", "8080")
	cfg.LogLevel = getEnv("APP_LOG_LEVEL", "info")
	cfg.AllowedOrigins = list("CORS_ALLOWED_ORIGINS", "*")

	// PostgreSQL config
	cfg.PGHost = required("POSTGRES_HOST")
	cfg.PGUser = required("POSTGRES_USER")
	cfg.PGPassword = required("POSTGRES_PASSWORD")
	cfg.PGDB = required("POSTGRES_DB")
	cfg.PGPort = atoi("POSTGRES_PORT", "5432")
	cfg.PGMaxOpenConns = atoi("POSTGRES_MAX_OPEN_CONNS", "16")
	cfg.PGMaxIdleConns = atoi("POSTGRES_MAX_IDLE_CONNS", "8")

	// Reservation config
	cfg.ReservationTimeout = duration("RESERVATION_TIMEOUT", services.DefaultReservationTimeout.String())
	fallback, err := strconv.ParseBool(getEnv("RESERVATION_FALLBACK", "true"))
	if err != nil {
		errs = append(errs, fmt.Errorf("RESERVATION_FALLBACK: %w", err))
	}
	cfg.ReservationFallback = fallback

	// Redis config
	cfg.RedisHost = getEnv("REDIS_HOST", "")
	cfg.RedisPort = atoi("REDIS_PORT", "6379")
	cfg.RedisDB = atoi("REDIS_DB", "0")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.OutcomeCacheTTL = duration("OUTCOME_CACHE_TTL", "24h")

	// Kafka config
	cfg.KafkaBrokers = list("KAFKA_BROKERS", "")
	cfg.KafkaTopic = getEnv("KAFKA_TOPIC", "ledger.transactions")

	if err := errors.Join(errs...); err != nil {
		return config{}, err
	}
	return cfg, nil
}

// run initializes the logger, database, Redis, Kafka writer and HTTP server.
// It sets up routes and handles graceful shutdown.
func run(ctx context.Context, cfg config) error {
	// Initialize logger
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Println("failed to initialize logger:", err)
		return err
	}
	defer logger.Sync()
	logger.Log.Infof("Logger initialized with level %s", cfg.LogLevel)

	// Connect to PostgreSQL
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.PGUser, cfg.PGPassword, cfg.PGHost, cfg.PGPort, cfg.PGDB)
	logger.Log.Infof("Connecting to PostgreSQL at %s:%d/%s", cfg.PGHost, cfg.PGPort, cfg.PGDB)

	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return fmt.Errorf("PostgreSQL connection error: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.PGMaxOpenConns)
	db.SetMaxIdleConns(cfg.PGMaxIdleConns)

	if err := repositories.Migrate(ctx, db); err != nil {
		return fmt.Errorf("PostgreSQL migration failed: %w", err)
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Initialize repositories and services
	ledgerRepo := repositories.NewLedgerRepository(db, repositories.GetTxFromContext)
	txManager := repositories.NewTxManager(db)

	engine := services.NewReservationEngine(ledgerRepo, txManager, cfg.ReservationFallback, m)
	opts := []services.ProcessorOption{
		services.WithMetrics(m),
		services.WithReservationTimeout(cfg.ReservationTimeout),
	}

	// Connect to Redis
	if cfg.RedisHost != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("Redis connection error: %w", err)
		}
		opts = append(opts, services.WithOutcomeCache(repositories.NewOutcomeCacheRepository(rdb, cfg.OutcomeCacheTTL)))
		logger.Log.Infof("Outcome cache enabled, ttl %s", cfg.OutcomeCacheTTL)
	}

	// Kafka writer
	if len(cfg.KafkaBrokers) > 0 {
		writer := &kafka.Writer{
			Addr:         kafka.TCP(cfg.KafkaBrokers...),
			Topic:        cfg.KafkaTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
		}
		defer writer.Close()
		opts = append(opts, services.WithKafkaWriter(writer))
		logger.Log.Infof("Publishing transactions to Kafka topic %s", cfg.KafkaTopic)
	}

	processor := services.NewTransactionProcessor(ledgerRepo, txManager, engine, opts...)
	accounts := services.NewAccountService(ledgerRepo)

	// Setup router
	r := handlers.NewRouter(handlers.RouterConfig{
		Processor:      processor,
		Balances:       accounts,
		Pinger:         accounts,
		Log:            logger.Log,
		Gatherer:       reg,
		AllowedOrigins: cfg.AllowedOrigins,
		SwaggerURL:     fmt.Sprintf("http://%s:%s/swagger/doc.json", cfg.AppHost, cfg.AppPort),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.AppHost, cfg.AppPort),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown
	errChan := make(chan error, 1)
	ctxShutdown, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	go func() {
		logger.Log.Infof("HTTP server listening on %s:%s", cfg.AppHost, cfg.AppPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	select {
	case <-ctxShutdown.Done():
		logger.Log.Info("Shutdown signal received, stopping HTTP server...")
	case serveErr := <-errChan:
		return serveErr
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Errorw("HTTP server shutdown error", "error", err)
	}

	logger.Log.Info("HTTP server stopped gracefully")
	return nil
}
