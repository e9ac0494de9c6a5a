package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/salesdesk_backend/config"
	"bitbucket.org/mmdatafocus/salesdesk_backend/models"
	"bitbucket.org/mmdatafocus/salesdesk_backend/models/reports"
	"bitbucket.org/mmdatafocus/salesdesk_backend/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultPort = "8080"

// Probe target for cache-freshness checks and reload confirmation. These
// columns are part of the fixed conformance requirement set, so a probe
// failure against them always means staleness, not a missing column.
var (
	cacheProbeTable   = "users"
	cacheProbeColumns = []string{"id", "role", "subrole"}
)

func correlationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationId := c.GetHeader("X-Correlation-Id")
		if correlationId == "" {
			correlationId = uuid.NewString()
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), correlationId)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Correlation-Id", correlationId)
		c.Next()
	}
}

func errorEnvelope(rich *utils.RichError) gin.H {
	return gin.H{"success": false, "error": rich}
}

// dashboardHandler serves GET /dashboard?period=<days>. On a stale schema
// cache it performs exactly one reconciliation attempt (reload, settle,
// re-probe) before re-surfacing the failure as fatal. No other error class is
// retried.
func dashboardHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		logger := config.GetLogger()

		days := 0
		if raw := c.Query("period"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, errorEnvelope(&utils.RichError{
					Code:    utils.ErrCodeValidationFailed,
					Message: "Input validation failed",
					Details: map[string]string{"period": "must be an integer number of days"},
				}))
				return
			}
			days = n
		}
		period := reports.NewMetricsPeriod(days)

		resp, err := reports.ComputeDashboard(ctx, period)
		if err != nil && utils.IsRichCode(err, utils.ErrCodeSchemaCacheStale) {
			outcome, reloadErr := models.ReloadSchemaCache(ctx)
			if reloadErr != nil {
				config.LogError(logger, "server.go", "dashboardHandler", "schema cache reload", nil, reloadErr)
			} else {
				outcome, reloadErr = models.ConfirmSchemaCacheReload(ctx, outcome, cacheProbeTable, cacheProbeColumns)
				if reloadErr != nil {
					config.LogError(logger, "server.go", "dashboardHandler", "schema cache reload confirm", outcome, reloadErr)
				}
			}
			resp, err = reports.ComputeDashboard(ctx, period)
		}
		if err != nil {
			var rich *utils.RichError
			if !errors.As(err, &rich) {
				rich = utils.MapDatabaseError(err)
			}
			if rich.Code == utils.ErrCodeValidationFailed {
				c.JSON(http.StatusBadRequest, errorEnvelope(rich))
				return
			}
			config.LogError(logger, "server.go", "dashboardHandler", "ComputeDashboard", period, err)
			if rich.Code != utils.ErrCodeDashboardError {
				rich = &utils.RichError{
					Code:    utils.ErrCodeDashboardError,
					Message: "Failed to compute dashboard",
					Details: rich,
				}
			}
			c.JSON(http.StatusInternalServerError, errorEnvelope(rich))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":        true,
			"overview":       resp.Overview,
			"top_performers": resp.TopPerformers,
		})
	}
}

// schemaCacheReloadHandler is the ops surface for manual reconciliation.
// Issued and confirmed are reported separately: a fire-and-forget NOTIFY never
// proves the cache layer picked it up.
func schemaCacheReloadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		outcome, err := models.ReloadSchemaCache(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, errorEnvelope(utils.MapDatabaseError(err)))
			return
		}
		outcome, err = models.ConfirmSchemaCacheReload(ctx, outcome, cacheProbeTable, cacheProbeColumns)
		if err != nil {
			config.LogError(config.GetLogger(), "server.go", "schemaCacheReloadHandler", "confirm probe", outcome, err)
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "reload": outcome})
	}
}

// startupSchemaCheck runs the conformance check once the database is up.
// Problems are logged in full (never just a count) but do not block serving;
// CI gates on cmd/schema-check instead.
func startupSchemaCheck(ctx context.Context) {
	logger := config.GetLogger()

	snapshot, err := models.LoadSchemaSnapshot(ctx)
	if err != nil {
		config.LogError(logger, "server.go", "startupSchemaCheck", "load snapshot", nil, err)
		return
	}
	result := models.CheckSchemaConformance(models.RequiredColumns(config.SchemaQualifier()), snapshot)
	if result.Ok() {
		return
	}
	for _, line := range result.ProblemLines() {
		config.LogError(logger, "server.go", "startupSchemaCheck", "conformance", nil, errors.New(line))
	}
}

func setupRouter() *gin.Engine {
	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AddAllowHeaders("Authorization", "X-Correlation-Id")
	router.Use(cors.New(corsConfig))
	router.Use(correlationMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/dashboard", dashboardHandler())
	router.POST("/ops/schema-cache/reload", schemaCacheReloadHandler())

	return router
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	router := setupRouter()
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Listen first, connect after: the container must bind $PORT quickly.
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedis()
	startupSchemaCheck(context.Background())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}
