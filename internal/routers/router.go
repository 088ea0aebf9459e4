package routers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"codesync/internal/api"
	"codesync/internal/metrics"
	"codesync/internal/middleware"
	"codesync/internal/models"
)

// Limiter guards the request-style execute endpoint.
type Limiter interface {
	Middleware(next http.Handler) http.Handler
}

func HealthRoutes(r chi.Router, h *api.Handlers) {
	r.Get("/health", h.Health)
	r.Get("/healthz", h.Health)
	r.Get("/readyz", h.Readyz)
	r.Handle("/metrics", metrics.Handler())
}

func RoomRoutes(r chi.Router, h *api.Handlers) {
	r.Route("/api/rooms", func(r chi.Router) {
		r.Post("/", h.CreateRoom)
		r.Get("/", h.ListRooms)
		r.Get("/{roomId}/validate", h.ValidateRoom)
		r.Post("/{roomId}/validate", h.ValidateRoom)
	})
}

func QuestionRoutes(r chi.Router, h *api.Handlers) {
	r.Get("/api/questions", h.ListQuestions)
	r.Get("/api/questions/{id}", h.GetQuestion)
}

// ExecuteRoutes caps the request body at maxBody bytes before decoding it.
func ExecuteRoutes(r chi.Router, h *api.Handlers, limiter Limiter, maxBody int64) {
	r.With(
		limiter.Middleware,
		chimw.RequestSize(maxBody),
		middleware.ValidateRequest[*models.ExecuteRequest](),
	).Post("/api/execute", h.Execute)
}

// ExecuteBodyLimit is the largest /api/execute body accepted for a given
// source size limit. Source and stdin may each be near maxCodeBytes once JSON
// escaped, plus room for the envelope.
func ExecuteBodyLimit(maxCodeBytes int) int64 {
	return 2*int64(maxCodeBytes) + 64<<10
}

// New builds the service router. The websocket endpoint sits outside the
// request timeout.
func New(h *api.Handlers, limiter Limiter, maxExecuteBody int64) *chi.Mux {
	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Logger,
		chimw.Recoverer,
		metrics.Middleware,
	)

	r.Get("/ws", h.CollabWS)

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(60 * time.Second))
		HealthRoutes(r, h)
		RoomRoutes(r, h)
		QuestionRoutes(r, h)
		ExecuteRoutes(r, h, limiter, maxExecuteBody)
	})
	return r
}
