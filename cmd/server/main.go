// Command server starts the stream lifecycle coordinator HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/lbryio/odysee-media-server/internal/api"
	"github.com/lbryio/odysee-media-server/internal/archive"
	"github.com/lbryio/odysee-media-server/internal/observability/logging"
	"github.com/lbryio/odysee-media-server/internal/observability/metrics"
	"github.com/lbryio/odysee-media-server/internal/registry"
	"github.com/lbryio/odysee-media-server/internal/server"
	"github.com/lbryio/odysee-media-server/internal/signature"
	"github.com/lbryio/odysee-media-server/internal/stream"
)

func main() {
	// Missing .env is fine; system env and flags still apply.
	_ = godotenv.Load()

	addr := flag.String("addr", "", "HTTP listen address")
	storeDriver := flag.String("store-driver", "", "status store driver (memory, redis, or postgres)")
	redisAddr := flag.String("redis-addr", "", "Redis address for the status store")
	redisAddrs := flag.String("redis-addrs", "", "comma separated Redis addresses for the status store")
	redisUsername := flag.String("redis-username", "", "Redis username for the status store")
	redisPassword := flag.String("redis-password", "", "Redis password for the status store")
	redisMasterName := flag.String("redis-master-name", "", "Redis sentinel master name for the status store")
	redisPoolSize := flag.Int("redis-pool-size", 0, "maximum Redis connections for the status store")
	redisKeyPrefix := flag.String("redis-key-prefix", "", "key prefix for status records in Redis")
	redisTimeout := flag.Duration("redis-timeout", 0, "timeout for Redis operations")
	redisTLSCA := flag.String("redis-tls-ca", "", "path to Redis TLS CA certificate")
	redisTLSCert := flag.String("redis-tls-cert", "", "path to Redis TLS client certificate")
	redisTLSKey := flag.String("redis-tls-key", "", "path to Redis TLS client key")
	redisTLSServerName := flag.String("redis-tls-server-name", "", "override Redis TLS server name")
	redisTLSSkipVerify := flag.Bool("redis-tls-skip-verify", false, "skip Redis TLS verification")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string for the status store")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresAcquireTimeout := flag.Duration("postgres-acquire-timeout", 0, "timeout when connecting to Postgres")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	cdnBase := flag.String("cdn-base", "", "base URL playback and thumbnail URLs are derived from")
	verifierURL := flag.String("verifier-url", "", "signature verification RPC endpoint")
	verifierTimeout := flag.Duration("verifier-timeout", 0, "timeout for signature verification calls")
	archiveURL := flag.String("archive-url", "", "archive ingestion endpoint")
	archiveServer := flag.String("archive-server", "", "server identity reported with archive submissions")
	archiveTimeout := flag.Duration("archive-timeout", 0, "timeout for archive submissions")
	storeTimeout := flag.Duration("store-timeout", 0, "timeout for status store operations")
	hookToken := flag.String("hook-token", "", "webhook bearer token (plain or pbkdf2 digest)")
	hashHookToken := flag.String("hash-hook-token", "", "print the pbkdf2 digest for the given token and exit")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	flag.Parse()

	if token := strings.TrimSpace(*hashHookToken); token != "" {
		digest, err := server.HashHookToken(token)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(digest)
		return
	}

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("ODYSEE_MEDIA_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("ODYSEE_MEDIA_LOG_FORMAT")),
	})
	recorder := metrics.Default()

	listenAddr := firstNonEmpty(*addr, os.Getenv("ODYSEE_MEDIA_ADDR"), ":8080")
	cdn := firstNonEmpty(*cdnBase, os.Getenv("ODYSEE_MEDIA_CDN_BASE"), "https://player.odycdn.com")

	driver := strings.ToLower(firstNonEmpty(*storeDriver, os.Getenv("ODYSEE_MEDIA_STORE_DRIVER"), "memory"))

	var (
		store       stream.Store
		storeCloser func(context.Context) error
	)
	switch driver {
	case "memory":
		logger.Warn("using in-memory status store; records are lost on restart")
		store = stream.NewMemoryStore()
	case "redis":
		redisStore, err := stream.NewRedisStore(stream.RedisStoreConfig{
			Addr:         firstNonEmpty(*redisAddr, os.Getenv("ODYSEE_MEDIA_REDIS_ADDR")),
			Addrs:        splitAndTrim(firstNonEmpty(*redisAddrs, os.Getenv("ODYSEE_MEDIA_REDIS_ADDRS"))),
			Username:     firstNonEmpty(*redisUsername, os.Getenv("ODYSEE_MEDIA_REDIS_USERNAME")),
			Password:     firstNonEmpty(*redisPassword, os.Getenv("ODYSEE_MEDIA_REDIS_PASSWORD")),
			MasterName:   firstNonEmpty(*redisMasterName, os.Getenv("ODYSEE_MEDIA_REDIS_MASTER_NAME")),
			KeyPrefix:    firstNonEmpty(*redisKeyPrefix, os.Getenv("ODYSEE_MEDIA_REDIS_KEY_PREFIX")),
			PoolSize:     resolveInt(*redisPoolSize, "ODYSEE_MEDIA_REDIS_POOL_SIZE"),
			DialTimeout:  resolveDuration(*redisTimeout, "ODYSEE_MEDIA_REDIS_TIMEOUT", 2*time.Second),
			ReadTimeout:  resolveDuration(*redisTimeout, "ODYSEE_MEDIA_REDIS_TIMEOUT", 2*time.Second),
			WriteTimeout: resolveDuration(*redisTimeout, "ODYSEE_MEDIA_REDIS_TIMEOUT", 2*time.Second),
			TLS: stream.RedisTLSConfig{
				CAFile:             firstNonEmpty(*redisTLSCA, os.Getenv("ODYSEE_MEDIA_REDIS_TLS_CA")),
				CertFile:           firstNonEmpty(*redisTLSCert, os.Getenv("ODYSEE_MEDIA_REDIS_TLS_CERT")),
				KeyFile:            firstNonEmpty(*redisTLSKey, os.Getenv("ODYSEE_MEDIA_REDIS_TLS_KEY")),
				ServerName:         firstNonEmpty(*redisTLSServerName, os.Getenv("ODYSEE_MEDIA_REDIS_TLS_SERVER_NAME")),
				InsecureSkipVerify: resolveBool(*redisTLSSkipVerify, "ODYSEE_MEDIA_REDIS_TLS_SKIP_VERIFY"),
			},
		})
		if err != nil {
			logger.Error("failed to open redis status store", "error", err)
			os.Exit(1)
		}
		store = redisStore
		storeCloser = func(context.Context) error { return redisStore.Close() }
	case "postgres":
		dsn := firstNonEmpty(*postgresDSN, os.Getenv("ODYSEE_MEDIA_POSTGRES_DSN"), os.Getenv("DATABASE_URL"))
		pgStore, err := stream.NewPostgresStore(context.Background(), stream.PostgresStoreConfig{
			DSN:             dsn,
			MaxConnections:  int32(resolveInt(*postgresMaxConns, "ODYSEE_MEDIA_POSTGRES_MAX_CONNS")),
			MinConnections:  int32(resolveInt(*postgresMinConns, "ODYSEE_MEDIA_POSTGRES_MIN_CONNS")),
			AcquireTimeout:  resolveDuration(*postgresAcquireTimeout, "ODYSEE_MEDIA_POSTGRES_ACQUIRE_TIMEOUT", 0),
			ApplicationName: firstNonEmpty(*postgresAppName, os.Getenv("ODYSEE_MEDIA_POSTGRES_APP_NAME")),
		})
		if err != nil {
			logger.Error("failed to open postgres status store", "error", err)
			os.Exit(1)
		}
		store = pgStore
		storeCloser = pgStore.Close
	default:
		logger.Error("unsupported status store driver", "driver", driver)
		os.Exit(1)
	}

	var verifier stream.SignatureVerifier
	if endpoint := firstNonEmpty(*verifierURL, os.Getenv("ODYSEE_MEDIA_VERIFIER_URL")); endpoint != "" {
		client, err := signature.NewClient(signature.Config{
			URL:     endpoint,
			Timeout: resolveDuration(*verifierTimeout, "ODYSEE_MEDIA_VERIFIER_TIMEOUT", 0),
			Logger:  logging.WithComponent(logger, "signature"),
		})
		if err != nil {
			logger.Error("failed to configure signature verifier", "error", err)
			os.Exit(1)
		}
		verifier = client
	} else {
		logger.Warn("signature verifier not configured; all verifications fail closed")
	}

	var reporter stream.ArchiveReporter
	if endpoint := firstNonEmpty(*archiveURL, os.Getenv("ODYSEE_MEDIA_ARCHIVE_URL")); endpoint != "" {
		serverName := firstNonEmpty(*archiveServer, os.Getenv("ODYSEE_MEDIA_ARCHIVE_SERVER"))
		if serverName == "" {
			if hostname, err := os.Hostname(); err == nil {
				serverName = hostname
			}
		}
		client, err := archive.NewClient(archive.Config{
			URL:     endpoint,
			Server:  serverName,
			Timeout: resolveDuration(*archiveTimeout, "ODYSEE_MEDIA_ARCHIVE_TIMEOUT", 0),
		})
		if err != nil {
			logger.Error("failed to configure archive reporter", "error", err)
			os.Exit(1)
		}
		reporter = client
	} else {
		logger.Warn("archive reporter not configured; archive saves will be dropped")
	}

	liveRegistry := registry.NewMemory()

	coordinator, err := stream.NewCoordinator(stream.CoordinatorConfig{
		Store:        store,
		Verifier:     verifier,
		Reporter:     reporter,
		Registry:     liveRegistry,
		CDNBase:      cdn,
		StoreTimeout: resolveDuration(*storeTimeout, "ODYSEE_MEDIA_STORE_TIMEOUT", 0),
		Logger:       logging.WithComponent(logger, "lifecycle"),
		Metrics:      recorder,
	})
	if err != nil {
		logger.Error("failed to initialise coordinator", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(coordinator, logging.WithComponent(logger, "api"))
	srv, err := server.New(handler, server.Config{
		Addr: listenAddr,
		TLS: server.TLSConfig{
			CertFile: firstNonEmpty(*tlsCert, os.Getenv("ODYSEE_MEDIA_TLS_CERT")),
			KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("ODYSEE_MEDIA_TLS_KEY")),
		},
		Logger:           logger,
		Metrics:          recorder,
		HookToken:        firstNonEmpty(*hookToken, os.Getenv("ODYSEE_MEDIA_HOOK_TOKEN")),
		LiveChannelCount: liveRegistry.Len,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("lifecycle coordinator listening", "addr", listenAddr, "store_driver", driver, "cdn_base", cdn)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server error", "error", err)
	}

	if storeCloser != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := storeCloser(closeCtx); err != nil {
			logger.Warn("failed to close status store", "error", err)
		}
	}

	logger.Info("server stopped")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func splitAndTrim(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	return fallback
}

func resolveBool(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return false
}
