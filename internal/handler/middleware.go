package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func (h *Handler) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.metrics.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		h.metrics.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	})
}

// adminOnly accepts an admin token from the Authorization header or the token
// query parameter used by the admin panel link.
func (h *Handler) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			jsonErr(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		claims, err := h.tokens.Verify(token)
		if err != nil {
			h.logger.Warn("admin token rejected", zap.String("path", r.URL.Path), zap.Error(err))
			jsonErr(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if h.cfg.AdminID != 0 && claims.UserID != h.cfg.AdminID {
			jsonErr(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}
