package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"mactabak/config"
	"mactabak/internal/auth"
	"mactabak/internal/domain"
	"mactabak/internal/media"
	"mactabak/internal/metrics"
	"mactabak/internal/service"
)

type Handler struct {
	logger  *zap.Logger
	cfg     *config.Config
	orders  *service.OrderService
	catalog *service.CatalogService
	images  *media.ImageStore
	tokens  *auth.TokenIssuer
	metrics *metrics.Metrics
}

func NewHandler(
	logger *zap.Logger,
	cfg *config.Config,
	orders *service.OrderService,
	catalog *service.CatalogService,
	images *media.ImageStore,
	tokens *auth.TokenIssuer,
	m *metrics.Metrics,
) *Handler {
	return &Handler{
		logger:  logger,
		cfg:     cfg,
		orders:  orders,
		catalog: catalog,
		images:  images,
		tokens:  tokens,
		metrics: m,
	}
}

func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Router builds the HTTP API used by the mini-app and the admin panel.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.corsMiddleware)
	r.Use(h.metricsMiddleware)

	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.handleHealth)

		r.Post("/order", h.handleCreateOrder)
		r.Get("/order/{orderId}", h.handleGetOrder)
		r.Post("/order/update", h.handleUpdateOrder)
		r.Post("/notify-manager", h.handleNotifyManager)

		r.Get("/user/{userId}", h.handleGetUser)
		r.Get("/user/{userId}/orders", h.handleUserOrders)
		r.Get("/cart/{userId}", h.handleGetCart)
		r.Put("/cart/{userId}", h.handleSaveCart)

		r.Get("/products", h.handleGetProducts)
		r.Get("/categories", h.handleGetCategories)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.adminOnly)
			r.Get("/products", h.handleAdminListProducts)
			r.Get("/product/{id}", h.handleAdminGetProduct)
			r.Post("/product", h.handleAdminAddProduct)
			r.Put("/product/{id}", h.handleAdminUpdateProduct)
			r.Delete("/product/{id}", h.handleAdminDeleteProduct)
			r.Post("/sync", h.handleAdminSync)
			r.Get("/stats", h.handleAdminStats)
		})
	})

	r.Post("/webhook", h.handleWebhook)

	if h.images != nil {
		r.Handle(media.URLPrefix+"*", http.StripPrefix(media.URLPrefix, http.FileServer(http.Dir(h.images.Dir()))))
	}
	if h.cfg.WebappDir != "" {
		r.Handle("/webapp/*", http.StripPrefix("/webapp/", http.FileServer(http.Dir(h.cfg.WebappDir))))
	}
	return r
}

func (h *Handler) StartWebServer(ctx context.Context) {
	addr := fmt.Sprintf(":%s", h.cfg.Port)
	h.logger.Info("Web server listening", zap.String("address", addr))

	server := &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		h.logger.Info("Shutting down web server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		h.logger.Error("Web server error", zap.Error(err))
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, map[string]any{"status": "ok", "timestamp": time.Now().UTC()})
}

// writeError maps domain errors onto HTTP statuses. Unexpected errors are
// logged and reported without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		jsonErr(w, http.StatusBadRequest, verr.Message)
	case domain.IsNotFound(err):
		jsonErr(w, http.StatusNotFound, "not found")
	default:
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		jsonErr(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return domain.NewValidationError("invalid json")
	}
	return nil
}

func pathInt64(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		return 0, domain.NewValidationError("%s must be a positive integer", name)
	}
	return v, nil
}

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}

func jsonCreated(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   msg,
	})
}
