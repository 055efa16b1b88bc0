package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"innkeeper/internal/config"
	"innkeeper/internal/domain"
	"innkeeper/internal/metrics"
	"innkeeper/internal/models"
	"innkeeper/internal/service"

	"github.com/rs/zerolog"
)

// Services are the engine operations exposed over the API.
type Services struct {
	Bookings  *service.BookingService
	Refunds   *service.RefundService
	Travel    *service.TravelService
	Inventory *service.InventoryService
	// SideTasks is optional; without it the dead-letter read answers 503.
	SideTasks SideTaskReader
}

// SideTaskReader lists outbox tasks that ran out of retries.
type SideTaskReader interface {
	FailedTasks(ctx context.Context) ([]models.SyncTask, error)
}

// HTTPServer exposes the booking engine as a JSON API.
type HTTPServer struct {
	cfg    config.APIConfig
	svc    Services
	mux    *http.ServeMux
	server *http.Server
	auth   *HTTPAuth
	log    zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:  cfg,
		svc:  svc,
		mux:  http.NewServeMux(),
		auth: NewHTTPAuth(cfg),
		log:  zerolog.Nop(),
	}
	if logger != nil {
		srv.log = logger.With().Str("component", "http").Logger()
	}
	srv.routes()

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.route("GET /api/v1/availability", permReadAvailability, s.handleAvailability)

	s.route("POST /api/v1/bookings", permWriteBookings, s.handleCreateBooking)
	s.route("GET /api/v1/bookings/{id}", permReadBookings, s.handleGetBooking)
	s.route("POST /api/v1/bookings/{id}/check-in", permReception, s.handleCheckIn)
	s.route("POST /api/v1/bookings/{id}/check-out", permReception, s.handleCheckOut)
	s.route("PUT /api/v1/bookings/{id}/status", permAdmin, s.handleUpdateStatus)
	s.route("POST /api/v1/bookings/{id}/cancellation", permWriteBookings, s.handleRequestCancellation)
	s.route("GET /api/v1/bookings/{id}/audit", permReception, s.handleAudit)
	s.route("GET /api/v1/bookings/{id}/payments", permReception, s.handlePayments)
	s.route("GET /api/v1/customers/{id}/bookings", permReadBookings, s.handleCustomerBookings)

	s.route("POST /api/v1/travel-bookings", permWriteBookings, s.handleCreateTravel)
	s.route("GET /api/v1/travel-bookings/{id}", permReadBookings, s.handleGetTravel)
	s.route("PUT /api/v1/travel-bookings/{id}/status", permAdmin, s.handleTravelStatus)
	s.route("POST /api/v1/travel-bookings/{id}/refund", permWriteBookings, s.handleRequestTravelRefund)

	s.route("POST /api/v1/refunds/{type}/{id}/approve", permRefunds, s.handleApproveRefund)
	s.route("POST /api/v1/refunds/{type}/{id}/decline", permRefunds, s.handleDeclineRefund)

	s.route("GET /api/v1/reception/bookings", permReception, s.handleReceptionBookings)
	s.route("GET /api/v1/reception/checked-in", permReception, s.handleCheckedIn)
	s.route("GET /api/v1/reception/dashboard", permReception, s.handleDashboard)
	s.route("POST /api/v1/reception/sweep", permReception, s.handleSweep)
	s.route("GET /api/v1/reception/side-tasks/failed", permReception, s.handleFailedSideTasks)

	s.route("GET /api/v1/room-types", permInventory, s.handleListRoomTypes)
	s.route("POST /api/v1/room-types", permInventory, s.handleCreateRoomType)
	s.route("DELETE /api/v1/room-types/{id}", permInventory, s.handleDeleteRoomType)
	s.route("GET /api/v1/rooms", permInventory, s.handleListRooms)
	s.route("GET /api/v1/rooms/by-number/{number}", permInventory, s.handleRoomByNumber)
	s.route("POST /api/v1/rooms", permInventory, s.handleCreateRoom)
	s.route("PUT /api/v1/rooms/{id}/status", permInventory, s.handleRoomStatus)
	s.route("DELETE /api/v1/rooms/{id}", permInventory, s.handleDeleteRoom)
}

// route registers an authenticated endpoint counted under its pattern.
func (s *HTTPServer) route(pattern, permission string, h http.HandlerFunc) {
	counted := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.IncHTTP(pattern)
		h(w, r)
	})
	s.mux.Handle(pattern, s.auth.Require(permission, counted))
}

// Handler returns the full middleware stack, for httptest and for Start.
func (s *HTTPServer) Handler() http.Handler {
	return s.loggingMiddleware(s.mux)
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		ev := s.log.Info()
		if recorder.status >= http.StatusInternalServerError {
			ev = s.log.Error()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// decodeJSON reads a strict JSON body into v. An empty body leaves v as is.
func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid JSON body", domain.ErrValidation)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message, "code": code})
}

// writeDomainError maps err onto a status. Internal failures are logged and
// their message is not echoed back.
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := classify(err)
	if status == http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, domain.Kind(err), "internal error")
		return
	}
	writeError(w, status, domain.Kind(err), err.Error())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
