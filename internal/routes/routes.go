package routes

import (
	"net/http"

	"github.com/healthtrack/healthtrack/internal/app"
	"github.com/healthtrack/healthtrack/internal/handler"
	"github.com/healthtrack/healthtrack/internal/middleware"
)

// SetupRoutes builds the API. The returned RateLimiter needs its Cleanup loop
// started by the caller.
func SetupRoutes(app *app.App) (http.Handler, *middleware.RateLimiter) {
	// Handlers
	health := handler.NewHealthHandler(app.DB)
	streaks := handler.NewStreakHandler(app.StreakService)

	requireAuth := middleware.RequireAuth(app.Metrics)
	checkInLimiter := middleware.NewRateLimiter(app.Cfg.CheckInRatePerMinute)

	mux := http.NewServeMux()

	// ============================================================================
	// PUBLIC ROUTES
	// ============================================================================

	mux.HandleFunc("GET /api/health", health.Health)

	if app.Cfg.MetricsEnabled() {
		mux.Handle("GET /metrics", middleware.BasicAuth(app.Cfg.MetricsUser, app.Cfg.MetricsPass)(app.Metrics.Handler()))
	}

	// ============================================================================
	// PROTECTED ROUTES (/api/streaks/*)
	// ============================================================================

	mux.HandleFunc("GET /api/streaks", requireAuth(streaks.List))
	mux.HandleFunc("POST /api/streaks/checkin", requireAuth(checkInLimiter.Limit(streaks.CheckIn)))
	mux.HandleFunc("PUT /api/streaks/goal", requireAuth(streaks.UpdateGoal))
	mux.HandleFunc("POST /api/streaks/{type}/milestones/{days}/claim", requireAuth(streaks.ClaimMilestone))

	// ============================================================================
	// FALLBACK
	// ============================================================================

	mux.HandleFunc("/{path...}", handler.NotFound)

	// Global middleware - executed in order (top to bottom)
	h := middleware.Chain(
		mux,
		middleware.CORS(app.Cfg.ClientURL), // Preflight answered before auth
		middleware.Compress,
		middleware.SecurityHeaders,
		middleware.RequestID,
		middleware.RequestLogging,
		middleware.Monitor(app.Metrics), // Counts auth rejections as "unmatched"
		middleware.Authenticate(app.Verifier, app.Metrics),
		middleware.Route, // Reports r.Pattern back to Monitor
	)

	return h, checkInLimiter
}
