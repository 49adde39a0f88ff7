package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/vbonduro/mealverify/internal/service"
)

type Server struct {
	catalog  *service.CatalogService
	analysis *service.AnalysisService
	mux      *http.ServeMux
	logger   *slog.Logger
}

func NewServer(catalog *service.CatalogService, analysis *service.AnalysisService, logger *slog.Logger) *Server {
	s := &Server{
		catalog:  catalog,
		analysis: analysis,
		mux:      http.NewServeMux(),
		logger:   logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("GET /plates", s.handleListPlates)
	s.mux.HandleFunc("POST /plates", s.handleCreatePlate)
	s.mux.HandleFunc("GET /plates/{id}", s.handleGetPlate)

	s.mux.HandleFunc("GET /products", s.handleListProducts)
	s.mux.HandleFunc("POST /products", s.handleCreateProduct)
	s.mux.HandleFunc("GET /products/{sku}", s.handleGetProduct)
	s.mux.HandleFunc("PUT /products/{sku}", s.handleUpdateProduct)
	s.mux.HandleFunc("DELETE /products/{sku}", s.handleDeleteProduct)
	s.mux.HandleFunc("GET /products/{sku}/pictures", s.handleListProductPictures)
	s.mux.HandleFunc("DELETE /products/{sku}/pictures", s.handleDeleteProductPictures)

	s.mux.HandleFunc("GET /product-pictures", s.handleListPictures)
	s.mux.HandleFunc("POST /product-pictures", s.handleUploadPicture)
	s.mux.HandleFunc("GET /product-pictures/{id}", s.handleGetPicture)
	s.mux.HandleFunc("DELETE /product-pictures/{id}", s.handleDeletePicture)
	s.mux.HandleFunc("GET /product-pictures/{id}/image", s.handleGetPictureImage)

	s.mux.HandleFunc("POST /meal-analysis", s.handleSubmitMeal)
	s.mux.HandleFunc("GET /meal-analysis", s.handleListMeals)
	s.mux.HandleFunc("GET /meal-analysis/{id}", s.handleGetMeal)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// securityHeaders adds defensive HTTP response headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; img-src 'self'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

type ctxKey int

const requestIDKey ctxKey = iota

// requestID returns the ID requestLogger assigned to r, if any.
func requestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, id))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestLogger(s.logger, securityHeaders(s.mux)).ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests for up to shutdownGrace.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.logger.Info("starting server", "addr", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

const shutdownGrace = 30 * time.Second
