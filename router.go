package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/chedeval/progeval/handlers"
	cataloghandler "github.com/chedeval/progeval/internal/catalog/handler"
	"github.com/chedeval/progeval/internal/database"
	evalhandler "github.com/chedeval/progeval/internal/evaluation/handler"
	intakehandler "github.com/chedeval/progeval/internal/intake/handler"
	"github.com/chedeval/progeval/pkg/middleware"
)

var startTime = time.Now()

const readyTimeout = 2 * time.Second

func newRouter(a *app) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(otelgin.Middleware(serviceName(a)))
	r.Use(cors)

	if rl := a.cfg.RateLimit; rl.Enabled {
		if rl.UseRedis && a.redis != nil {
			window := time.Duration(rl.WindowSeconds) * time.Second
			if window <= 0 {
				window = time.Second
			}
			r.Use(middleware.RedisRateLimitMiddleware(a.redis, int(rl.RPS*window.Seconds())+rl.Burst, window))
		} else {
			r.Use(middleware.RateLimitMiddleware(rl.RPS, rl.Burst))
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})
	r.GET("/ready", a.ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterSwagger(r)

	requireAuth := middleware.AuthMiddleware(a.verifier, a.blacklist)
	handlers.NewAuthHandler(a.cfg, a.reviewers, a.sessions, a.blacklist, a.idTokens).Register(r, requireAuth)
	cataloghandler.RegisterCatalogRoutes(r, a.catalog, requireAuth)
	intakehandler.RegisterIntakeRoutes(r, a.catalog, a.evaluation)
	evalhandler.RegisterEvaluationRoutes(r, a.evaluation, evalhandler.Options{
		OptionalAuth:  middleware.OptionalAuth(a.verifier, a.blacklist),
		Live:          a.live,
		ChannelPrefix: a.cfg.Broadcast.ChannelPrefix,
	})
	return r
}

func serviceName(a *app) string {
	if a.cfg.Tracing.ServiceName != "" {
		return a.cfg.Tracing.ServiceName
	}
	return "progeval"
}

// cors allows the browser frontends to call the API and answers preflights.
func cors(c *gin.Context) {
	h := c.Writer.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
	h.Set("Access-Control-Expose-Headers", "Content-Length")
	if c.Request.Method == http.MethodOptions {
		c.AbortWithStatus(http.StatusOK)
		return
	}
	c.Next()
}

// ready reports 200 only when the relational store answers; Redis and Mongo
// are checked when connected.
func (a *app) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	deps := map[string]bool{}
	ok := true
	check := func(name string, err error) {
		deps[name] = err == nil
		if err != nil {
			ok = false
		}
	}
	check("database", database.Ping(ctx, a.db))
	if a.redis != nil {
		check("redis", a.redis.Ping(ctx).Err())
	}
	if a.mongo != nil {
		check("mongodb", a.mongo.Ping(ctx, nil))
	}
	deps["login"] = a.cfg.JWT.Secret != ""

	status, code := "ready", http.StatusOK
	if !ok {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "deps": deps, "uptime": time.Since(startTime).String()})
}
