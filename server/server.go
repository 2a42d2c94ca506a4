package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/gitshopapp/storefront/internal/config"
	"github.com/gitshopapp/storefront/internal/handlers"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
	}

	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(h),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// Order creation waits on the payment gateway.
		WriteTimeout:   cfg.GatewayTimeout + 15*time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	return s, nil
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// NewRouter builds the route table.
func NewRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.SecurityHeaders)
	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")
	r.HandleFunc("/stripe/webhook", h.StripeWebhook).Methods("POST").Name("webhooks.stripe")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(h.CORS)
	api.Use(h.RequireSameOrigin)
	api.Use(h.Authenticate)
	api.Use(h.MetricsContext)

	// Preflight requests never match a method-restricted route; CORS answers
	// them. A MatcherFunc keeps other methods from turning 404s into 405s.
	api.MatcherFunc(func(r *http.Request, _ *mux.RouteMatch) bool {
		return r.Method == http.MethodOptions
	}).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Name("api.preflight")

	api.Handle("/orders/create-order", h.RequireUser(http.HandlerFunc(h.CreateOrder))).Methods("POST").Name("orders.create")
	api.HandleFunc("/orders/confirm/{sessionId}", h.ConfirmOrder).Methods("GET").Name("orders.confirm")
	api.Handle("/orders", h.RequireUser(http.HandlerFunc(h.ListMyOrders))).Methods("GET").Name("orders.mine")
	api.Handle("/orders/all", h.RequireAdmin(http.HandlerFunc(h.ListAllOrders))).Methods("GET").Name("orders.all")
	api.Handle("/orders/{orderId}", h.RequireAdmin(http.HandlerFunc(h.UpdateOrderStatus))).Methods("PATCH").Name("orders.update_status")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":"fail","message":"not found"}`))
	})

	return r
}
