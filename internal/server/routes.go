package server

import (
	"net/http"
	"runtime/debug"

	"github.com/fachebot/meeting-summarizer/internal/logger"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(s.recoverer)

	r.Get("/api/health", s.health)
	r.Post("/api/summarize", s.summarize)
	r.Post("/api/send-email", s.sendEmail)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.errorResponse(w, r, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.errorResponse(w, r, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}

// recoverer 捕获 handler 中的 panic，按统一的 JSON 格式返回 500
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}

			logger.Errorf("[Server] 处理请求时发生 panic, method: %s, uri: %s, request_id: %s, %v\n%s",
				r.Method, r.URL.RequestURI(), chimw.GetReqID(r.Context()), rvr, debug.Stack())
			s.errorResponse(w, r, http.StatusInternalServerError, "Internal server error")
		}()

		next.ServeHTTP(w, r)
	})
}
