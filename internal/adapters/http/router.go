package http

import (
	"context"
	"crypto/rand"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/termrelay/internal/adapters/auth"
	"github.com/dkeye/termrelay/internal/adapters/signal"
	"github.com/dkeye/termrelay/internal/app"
	"github.com/dkeye/termrelay/internal/config"
	transport "github.com/dkeye/termrelay/internal/transport/http"
)

// RateLimitMiddleware refuses clients that exceed the limiter with 429.
func RateLimitMiddleware(rl *signal.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			log.Warn().Str("module", "adapters.http").Str("remote", c.ClientIP()).Msg("rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many connection attempts"})
			return
		}
		c.Next()
	}
}

func sessionSecret(cfg config.SessionConfig) []byte {
	if cfg.Secret != "" {
		return []byte(cfg.Secret)
	}
	// Sessions will not survive a restart.
	secret := make([]byte, 32)
	_, _ = rand.Read(secret)
	log.Warn().Str("module", "adapters.http").Msg("session.secret not set, using a random one")
	return secret
}

func SetupRouter(ctx context.Context, cfg *config.Config, hub *app.Hub, verifier auth.Verifier, limiter *signal.RateLimiter) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("bad trusted_proxies, trusting none")
		_ = r.SetTrustedProxies(nil)
	}
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore(sessionSecret(cfg.Session))
	store.Options(sessions.Options{Path: "/", MaxAge: cfg.Session.MaxAge, HttpOnly: true})
	r.Use(sessions.Sessions("TerminalSessions", store))

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	ctrl := signal.NewSignalWSController(hub, signal.PumpConfigFrom(cfg))
	r.GET("/terminal", RateLimitMiddleware(limiter), auth.Middleware(verifier), func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("remote", c.ClientIP()).Msg("terminal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	transport.RegisterHealth(r, hub)
	transport.RegisterDevices(r.Group("/api/terminal", auth.Middleware(verifier)), hub)

	return r
}
