// Package httpapi exposes the order, dispatch, tracking and notification
// operations over REST.
package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"restaurantDelivery/internal/auth"
	"restaurantDelivery/internal/dispatch"
	"restaurantDelivery/internal/lifecycle"
	"restaurantDelivery/internal/logging"
	"restaurantDelivery/internal/simulator"
	"restaurantDelivery/internal/tracking"
	"restaurantDelivery/models"
	"restaurantDelivery/repository"
)

const MaxBodyBytes = 1 << 20

// Deps are the collaborators the REST layer drives.
type Deps struct {
	Orders     repository.OrderRepositoryI
	Agents     repository.AgentRepositoryI
	Catalog    repository.CatalogRepositoryI
	Messages   repository.MessageRepositoryI
	Machine    *lifecycle.Machine
	Dispatcher *dispatch.Dispatcher
	Simulator  *simulator.Manager
	Tracking   *tracking.Hub

	JWTSecret      string
	AllowedOrigins []string
}

type Server struct {
	deps     Deps
	logger   *zap.Logger
	validate *validator.Validate

	// Last catalog page served, reused while the store is unavailable.
	catalogMu   sync.Mutex
	catalogLast []*models.CatalogItem
	catalogOK   bool
}

func NewServer(deps Deps, logger *zap.Logger) *Server {
	return &Server{deps: deps, logger: logging.OrNop(logger), validate: validator.New()}
}

// Handler returns the routed handler with CORS, request IDs, logging,
// panic recovery and caller identification applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.deps.JWTSecret))
		s.RegisterRoutes(r)
	})

	origins := s.deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
	})
	return c.Handler(r)
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", s.createOrder)
		r.Get("/", s.listOrders)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getOrder)
			r.Patch("/", s.updateOrderFields)
			r.Post("/transitions", s.applyTransition)
			r.Post("/assign", s.assign)
			r.Post("/advance", s.advance)
			r.Post("/unassign", s.unassign)
			r.Post("/proof", s.completeWithProof)
			r.Get("/tracking", s.tracking)
			r.Get("/delivery-code.png", s.deliveryCodeQR)
			r.Get("/messages", s.listMessages)
			r.Post("/messages", s.appendMessage)
			r.Post("/messages/read", s.markMessagesRead)
		})
	})

	r.Route("/agents", func(r chi.Router) {
		r.Get("/", s.listAgents)
		r.Get("/{id}", s.getAgent)
		r.Put("/{id}", s.upsertAgent)
	})

	r.Route("/catalog", func(r chi.Router) {
		r.Get("/", s.listCatalog)
		r.Get("/{id}", s.getCatalogItem)
		r.Put("/{id}", s.upsertCatalogItem)
		r.Post("/{id}/adjust", s.adjustStock)
		r.Get("/{id}/transactions", s.listTransactions)
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", s.listNotifications)
		r.Post("/{id}/dismiss", s.dismissNotification)
		r.Post("/{id}/act", s.actOnNotification)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logging.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		r = r.WithContext(ctx)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.FromContext(ctx, s.logger).Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) log(r *http.Request) *zap.Logger {
	return logging.FromContext(r.Context(), s.logger)
}

func principal(r *http.Request) *auth.Principal {
	if p, ok := auth.FromContext(r.Context()); ok && p != nil {
		return p
	}
	return &auth.Principal{Name: auth.AnonymousName, Kind: auth.KindCustomer}
}
