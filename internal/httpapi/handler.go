// Package httpapi exposes the engine's trigger surface: on-demand
// recalculation, the per-user overview and a health probe.
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	apperrors "github.com/dadlink/dadlink/internal/errors"
	"github.com/dadlink/dadlink/internal/services"
	"github.com/dadlink/dadlink/internal/telemetry"
)

// RecalcRunner is the slice of the recalc service the API needs.
type RecalcRunner interface {
	RunFullRecalculation(ctx context.Context) (*services.RecalcSummary, error)
	RunForUser(ctx context.Context, userID string) (int, error)
}

// OverviewProvider builds the per-user digest view.
type OverviewProvider interface {
	BuildOverview(ctx context.Context, userID string) (*services.Overview, error)
}

// HealthChecker reports dependency liveness for the health probe.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) bool

// Healthy implements HealthChecker.
func (f HealthCheckFunc) Healthy(ctx context.Context) bool { return f(ctx) }

// Handler carries the HTTP endpoints' dependencies.
type Handler struct {
	recalc   RecalcRunner
	overview OverviewProvider
	checks   map[string]HealthChecker
}

// NewHandler creates the API handler. checks maps a dependency name to its
// probe; all must pass for /health to report healthy.
func NewHandler(recalc RecalcRunner, overview OverviewProvider, checks map[string]HealthChecker) *Handler {
	return &Handler{recalc: recalc, overview: overview, checks: checks}
}

// NewRouter builds the gin engine with tracing and correlation middleware
// and all routes registered.
func NewRouter(h *Handler, serviceName string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(correlationMiddleware())

	router.GET("/health", h.HandleHealth)
	router.POST("/recalculate", h.HandleRecalculate)
	router.POST("/users/:id/recalculate", h.HandleUserRecalculate)
	router.GET("/users/:id/overview", h.HandleOverview)

	return router
}

func correlationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := telemetry.WithCorrelationID(c.Request.Context(), telemetry.NewCorrelationID())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// HandleHealth reports overall service health plus per-dependency detail.
func (h *Handler) HandleHealth(c *gin.Context) {
	ctx := c.Request.Context()

	status := http.StatusOK
	deps := gin.H{}
	for name, check := range h.checks {
		if check.Healthy(ctx) {
			deps[name] = "up"
		} else {
			deps[name] = "down"
			status = http.StatusServiceUnavailable
		}
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{"status": overall, "service": "dadlink-engine", "dependencies": deps})
}

// HandleRecalculate runs a full batch recalculation synchronously and
// returns the summary. The nightly job is the usual trigger; this endpoint
// exists for operators.
func (h *Handler) HandleRecalculate(c *gin.Context) {
	ctx := c.Request.Context()
	logger := telemetry.LogFromContext(ctx)

	summary, err := h.recalc.RunFullRecalculation(ctx)
	if err != nil {
		logger.WithError(err).Error("On-demand recalculation failed")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// HandleUserRecalculate recomputes one user's matches and returns how many
// were created.
func (h *Handler) HandleUserRecalculate(c *gin.Context) {
	ctx := c.Request.Context()
	logger := telemetry.LogFromContext(ctx)

	userID := c.Param("id")
	if userID == "" {
		respondError(c, apperrors.NewValidationError("id", "user id is required"))
		return
	}

	created, err := h.recalc.RunForUser(ctx, userID)
	if err != nil {
		logger.WithError(err).WithField("user_id", userID).Error("User recalculation failed")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user_id": userID, "matches_created": created})
}

// HandleOverview returns the user's slots ordered by next occurrence and
// their top matches.
func (h *Handler) HandleOverview(c *gin.Context) {
	ctx := c.Request.Context()

	overview, err := h.overview.BuildOverview(ctx, c.Param("id"))
	if err != nil {
		telemetry.LogFromContext(ctx).WithError(err).Error("Overview build failed")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, overview)
}

// respondError maps the error taxonomy onto HTTP statuses. Internal detail
// stays in the logs; clients get the category and a generic message.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		switch appErr.Type {
		case apperrors.ErrorTypeValidation:
			status = http.StatusBadRequest
			message = appErr.Message
		case apperrors.ErrorTypeNotFound:
			status = http.StatusNotFound
			message = appErr.Message
		case apperrors.ErrorTypeConfiguration:
			status = http.StatusServiceUnavailable
			message = "service not ready"
		}
	}

	c.JSON(status, gin.H{"error": message})
}
