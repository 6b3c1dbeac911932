package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	"github.com/redis/go-redis/v9"

	"github.com/menubox/auth-service/internal/config"     // rate limit configuration
	"github.com/menubox/auth-service/internal/handler"    // import the handlers that implement business logic
	"github.com/menubox/auth-service/internal/middleware" // import middleware for JWT authentication and rate limiting
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance. Currently it exposes only a health check that
// load balancers and monitoring systems can poll.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication‑related routes and applies the
// necessary middleware. Unauthenticated operations live under /v1/auth,
// while protected endpoints live under /v1.
//
// The credential-guessing surfaces (register, login, forgot-password,
// resend-verification) sit behind the Redis token bucket; rdb may be nil,
// in which case the limiter is a pass-through.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, rlCfg config.RateLimitConfig, rdb *redis.Client) {
	limited := middleware.NewTokenBucket(rlCfg, rdb)

	// Operations that do not require an existing session.
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register, limited)
	g.POST("/login", a.Login, limited)
	// Refresh rotates the refresh token: the presented value is spent
	// whether or not the caller stores the replacement.
	g.POST("/refresh", a.Refresh)
	// Logout takes the refresh token in the body, so it does not need a
	// (possibly already expired) access token.
	g.POST("/logout", a.Logout)
	g.POST("/verify-email", a.VerifyEmail)
	g.POST("/resend-verification", a.ResendVerification, limited)
	g.POST("/forgot-password", a.ForgotPassword, limited)
	g.POST("/reset-password", a.ResetPassword)

	// Routes that require a valid access token. All handlers registered on
	// this group run the JWTAuth middleware first, which injects user_id
	// and session_id into the context.
	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
	auth.GET("/sessions", a.ListSessions)
	auth.DELETE("/sessions/:id", a.RevokeSession)
	auth.POST("/logout-all", a.LogoutAll)
}
