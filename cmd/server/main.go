package main // Entry point package

import (
	"log" // Logging library

	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/menubox/auth-service/internal/auth"       // auth service core
	"github.com/menubox/auth-service/internal/config"     // Internal config loader
	"github.com/menubox/auth-service/internal/database"   // MySQL connection
	"github.com/menubox/auth-service/internal/handler"    // HTTP handlers
	"github.com/menubox/auth-service/internal/notifier"   // email event publisher/consumer
	"github.com/menubox/auth-service/internal/repository" // DB repositories
	"github.com/menubox/auth-service/internal/router"     // Internal router setup
)

func main() {
	cfg := config.Load() // Load environment config

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	svc := auth.NewService(
		auth.Config{
			JWTSecret:      cfg.JWTSecret,
			AccessTTLMin:   cfg.AccessTTLMin,
			RefreshTTLDays: cfg.RefreshTTLDays,
			VerifyTTL:      cfg.VerifyTTL,
			ResetTTL:       cfg.ResetTTL,
			BcryptCost:     cfg.BcryptCost,
		},
		repository.NewUserRepo(db),
		repository.NewSessionRepo(db),
		repository.NewOneTimeTokenRepo(db),
		notifier.NewAMQP(cfg.FrontendURL),
	)

	// Drain emailed events in the background. The consumer reconnects on
	// its own; a broker outage only delays delivery, it never fails a
	// request.
	go func() {
		if err := notifier.StartEmailConsumer(); err != nil {
			log.Printf("email-consumer stopped: %v", err)
		}
	}()

	// Redis backs the token-bucket rate limiter on credential endpoints.
	// A nil client disables limiting rather than blocking startup.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; rate limiting disabled")
	}

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(svc), cfg.JWTSecret, config.LoadRateLimitConfig(), rdb)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil { // Start HTTP server
		log.Fatal(err) // Log and exit if server fails
	}
}
