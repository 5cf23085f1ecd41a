// Package main runs a single-process demo of authstate.
//
// The binary hosts a small backend API and the navigation pages of one execution
// context. The pages talk to the API through the engine transport, so a rejected token
// on the API side forces a logout that every other context sharing the Redis backend
// observes.
//
// Endpoints:
//
//	POST /api/auth/login        JSON {"username":"...", "password":"..."}
//	GET  /api/events/trending   requires "Authorization: Bearer <token>"
//	GET  /metrics               Prometheus exposition
//	GET  /debug/session         presence-only credential view and sync report
//	GET  /public/Login          login page; POST submits the form
//	GET  /private/feed          landing page, calls the trending API
//	POST /private/logout        clears the credential
//
// Run:
//
//	go run ./cmd/authstate-demo
//
// Without REDIS_ADDR the demo starts an embedded miniredis. Failed logins are throttled
// per username and client address in the same Redis. Settings can come from a
// YAML file (-config) and a .env file (-env).
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/authstate"
	"github.com/MrEthical07/authstate/internal/rate"
	"github.com/MrEthical07/authstate/jwt"
	"github.com/MrEthical07/authstate/metrics/export/prometheus"
	"github.com/MrEthical07/authstate/middleware"
	"github.com/MrEthical07/authstate/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML config file; AUTHSTATE_CONFIG or defaults when empty")
		envFile    = flag.String("env", ".env", "dotenv file loaded before the config")
		addr       = flag.String("addr", "", "listen address; HTTP_ADDR or :8080 when empty")
	)
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fatal("load env file", err)
	}
	if *configPath == "" {
		*configPath = os.Getenv("AUTHSTATE_CONFIG")
	}
	if *addr == "" {
		*addr = envOrDefault("HTTP_ADDR", ":8080")
	}

	cfg := authstate.DefaultConfig()
	if *configPath != "" {
		loaded, err := authstate.LoadConfig(*configPath)
		if err != nil {
			fatal("load config", err)
		}
		cfg = loaded
	}
	if cfg.Transport.BaseURL == "" {
		cfg.Transport.BaseURL = selfURL(*addr)
	}
	if os.Getenv("REDIS_ADDR") != "" {
		cfg.Store.Backend = "redis"
	}
	cfg.Audit.Enabled = true

	logger, err := authstate.NewLogger(cfg.Log)
	if err != nil {
		fatal("build logger", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	builder := authstate.New().
		WithConfig(cfg).
		WithLogger(logger).
		WithAuditSink(authstate.NewLoggerSink(logger)).
		WithNavigator(authstate.NavigatorFunc(func(_ context.Context, path string) {
			logger.Info("navigate", zap.String("path", path))
		}))

	var limiter *rate.Limiter
	if cfg.Store.Backend == "redis" {
		redisAddr := os.Getenv("REDIS_ADDR")
		if redisAddr == "" && *configPath != "" {
			redisAddr = cfg.Store.RedisAddr
		}
		if redisAddr == "" {
			mr, err := miniredis.Run()
			if err != nil {
				logger.Fatal("start miniredis", zap.Error(err))
			}
			defer mr.Close()
			redisAddr = mr.Addr()
			logger.Info("using embedded miniredis", zap.String("addr", redisAddr))
		}

		rdb := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		defer func() { _ = rdb.Close() }()
		builder.WithRedis(rdb)
		limiter = rate.New(rdb, rate.Config{Prefix: cfg.Store.KeyPrefix, PerIP: true})
	}

	engine, err := builder.BuildContext(ctx)
	if err != nil {
		logger.Fatal("engine build", zap.Error(err))
	}
	defer engine.Close()

	teardown, err := engine.Watch(ctx)
	if err != nil {
		logger.Fatal("watch session", zap.Error(err))
	}
	defer teardown()

	for _, w := range engine.Report().Warnings {
		logger.Warn("sync report", zap.String("warning", w))
	}

	svc, err := newAPI(logger, limiter)
	if err != nil {
		logger.Fatal("api init", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           routes(engine, svc, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", zap.String("addr", *addr), zap.String("origin", engine.Origin()))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

func routes(engine *authstate.Engine, svc *api, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", svc.login)
		r.With(middleware.RequireBearer(svc.verify)).Get("/events/trending", svc.trending)
	})

	r.Handle("/metrics", prometheus.NewPrometheusExporter(engine).Handler())
	r.Get("/debug/session", debugSession(engine))

	pages := newPages(engine, logger)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Navigation(engine.Guard()))
		r.Get("/", pages.root)
		r.Get("/public/Login", pages.loginForm)
		r.Post("/public/Login", pages.submitLogin)
		r.Get("/public/Signup", pages.static("Signup"))
		r.Get("/public/ConfirmEmail", pages.static("Confirm your email address to continue."))
		r.Get("/private/feed", pages.feed)
		r.Get("/private/unauthorized", pages.static("You are not allowed to open that page."))
		r.Post("/private/logout", pages.logout)
	})

	return r
}

func newHasherAndTokens() (*password.Hasher, *jwt.Manager, error) {
	hasher, err := password.NewHasher(password.DefaultParams())
	if err != nil {
		return nil, nil, err
	}

	secret := []byte(os.Getenv("AUTHSTATE_JWT_SECRET"))
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, nil, err
		}
	}

	ttl := 15 * time.Minute
	if raw := os.Getenv("AUTHSTATE_ACCESS_TTL"); raw != "" {
		if ttl, err = time.ParseDuration(raw); err != nil {
			return nil, nil, err
		}
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     ttl,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    secret,
		Issuer:        "authstate-demo",
		Leeway:        5 * time.Second,
	})
	if err != nil {
		return nil, nil, err
	}
	return hasher, tokens, nil
}

func selfURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://localhost:8080"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fatal(msg string, err error) {
	zap.NewExample().Fatal(msg, zap.Error(err))
}
