package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/daybook/internal/calendar"
	"github.com/dukerupert/daybook/internal/export"
	"github.com/dukerupert/daybook/internal/handler"
	"github.com/dukerupert/daybook/internal/middleware"
	"github.com/dukerupert/daybook/internal/push"
	"github.com/dukerupert/daybook/internal/store"
	ws "github.com/dukerupert/daybook/internal/websocket"
)

// Deps are the services the HTTP surface is built from. PushService may
// be nil when VAPID keys are not configured.
type Deps struct {
	DB          *sql.DB
	Calendar    *calendar.Service
	PushStore   *store.PushStore
	PushService *push.Service
	Archiver    handler.Archiver
	Verifier    middleware.TokenVerifier
	Limiter     middleware.Limiter
}

type Options struct {
	BookingLimit  int
	BookingWindow time.Duration
	ICS           export.ICSOptions
}

type Server struct {
	db        *sql.DB
	calendarH *handler.CalendarHandler
	adminH    *handler.AdminHandler
	archiveH  *handler.ArchiveHandler
	pushH     *handler.PushHandler
	icsH      *handler.ICSHandler
	feedH     http.HandlerFunc
	verifier  middleware.TokenVerifier
	limiter   middleware.Limiter
	opts      Options
	logger    *slog.Logger
}

func New(deps Deps, opts Options, logger *slog.Logger) *Server {
	if opts.BookingLimit <= 0 {
		opts.BookingLimit = 10
	}
	if opts.BookingWindow <= 0 {
		opts.BookingWindow = time.Hour
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = middleware.NewMemoryLimiter()
	}

	var pushH *handler.PushHandler
	if deps.PushService != nil && deps.PushService.Configured() {
		pushH = handler.NewPushHandler(deps.PushStore, deps.PushService, logger.With("component", "push_handler"))
	}

	return &Server{
		db:        deps.DB,
		calendarH: handler.NewCalendarHandler(deps.Calendar, logger.With("component", "calendar_handler")),
		adminH:    handler.NewAdminHandler(deps.Calendar, logger.With("component", "admin_handler")),
		archiveH:  handler.NewArchiveHandler(deps.Archiver, logger.With("component", "archive_handler")),
		pushH:     pushH,
		icsH:      handler.NewICSHandler(deps.Calendar, opts.ICS, logger.With("component", "ics_handler")),
		feedH:     ws.HandleCalendarFeed(deps.Calendar, logger.With("component", "websocket")),
		verifier:  deps.Verifier,
		limiter:   limiter,
		opts:      opts,
		logger:    logger,
	}
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.HandleFunc("GET /api/calendar/{year}/{month}", s.calendarH.GetMonth)
	outerMux.HandleFunc("GET /api/calendar/{year}/{month}/{day}", s.calendarH.GetDay)
	outerMux.Handle("POST /api/calendar/{year}/{month}/{day}/bookings", s.rateLimited(s.calendarH.SubmitBooking))
	outerMux.HandleFunc("GET /ws/calendar/{year}/{month}", s.feedH)
	outerMux.HandleFunc("GET /calendar.ics", s.icsH.Feed)

	// Admin routes: bearer token plus admin policy
	adminMux := http.NewServeMux()
	s.registerAdminRoutes(adminMux)

	authMiddleware := middleware.RequireAuth(s.verifier, s.logger.With("component", "auth"))
	outerMux.Handle("/api/admin/", authMiddleware(middleware.RequireAdmin(adminMux)))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) registerAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/admin/calendar/{year}/{month}", s.adminH.GetMonth)
	mux.HandleFunc("POST /api/admin/calendar/{year}/{month}/{day}/activities", s.adminH.AddActivity)
	mux.HandleFunc("PUT /api/admin/calendar/{year}/{month}/{day}/activities/{id}/approval", s.adminH.SetApproval)
	mux.HandleFunc("POST /api/admin/calendar/{year}/{month}/{day}/activities/{id}/deny", s.adminH.Deny)
	mux.HandleFunc("DELETE /api/admin/calendar/{year}/{month}/{day}/activities/{id}", s.adminH.DeleteActivity)
	mux.HandleFunc("PUT /api/admin/calendar/{year}/{month}/{day}/status", s.adminH.SetStatus)
	mux.HandleFunc("POST /api/admin/calendar/{year}/{month}/initialize", s.adminH.InitializeMonth)
	mux.HandleFunc("POST /api/admin/calendar/{year}/{month}/seed", s.adminH.Seed)
	mux.HandleFunc("GET /api/admin/calendar/{year}/{month}/export.xlsx", s.adminH.ExportWorkbook)

	// Archives
	mux.HandleFunc("POST /api/admin/calendar/{year}/{month}/archive", s.archiveH.Create)
	mux.HandleFunc("GET /api/admin/archives", s.archiveH.List)
	mux.HandleFunc("POST /api/admin/archives/{id}/restore", s.archiveH.Restore)

	// Push notification routes
	if s.pushH != nil {
		mux.HandleFunc("POST /api/admin/push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("DELETE /api/admin/push/subscriptions/{id}", s.pushH.Unsubscribe)
		mux.HandleFunc("GET /api/admin/push/subscriptions", s.pushH.ListSubscriptions)
		mux.HandleFunc("GET /api/admin/push/vapid-key", s.pushH.GetVAPIDKey)
		mux.HandleFunc("POST /api/admin/push/test", s.pushH.TestNotification)
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimited(h http.HandlerFunc) http.Handler {
	keyFunc := func(r *http.Request) string {
		return "booking:" + middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.limiter, keyFunc, s.opts.BookingLimit, s.opts.BookingWindow, s.logger.With("component", "ratelimit"))
	return rl(h)
}
