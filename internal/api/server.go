// Package api exposes the classifier over HTTP: stateless scoring, the
// prediction log lifecycle, the machine and production catalog, registry
// status and the live verdict feed.
package api

import (
	"context"
	"net/http"
	"time"

	"maintenance-classifier/internal/domain"
	"maintenance-classifier/internal/features"
	"maintenance-classifier/internal/ml"
	"maintenance-classifier/internal/prediction"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/rs/zerolog/log"
)

// Lifecycle is the prediction service surface used by the handlers.
type Lifecycle interface {
	Predict(ctx context.Context, raw features.RawReading) (ml.Result, error)
	CreateWithPrediction(ctx context.Context, req prediction.CreateRequest) (prediction.Outcome, error)
	Rescore(ctx context.Context, id uint64) (prediction.Outcome, error)
	Latest() *prediction.Latest
}

// Catalog serves machines, productions and stored log records.
type Catalog interface {
	CreateMachine(ctx context.Context, m domain.Machine) (domain.Machine, error)
	Machine(ctx context.Context, id uint64) (domain.Machine, error)
	Machines(ctx context.Context) ([]domain.Machine, error)
	CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error)
	Product(ctx context.Context, id uint64) (domain.Product, error)
	Products(ctx context.Context) ([]domain.Product, error)
	RenameProduct(ctx context.Context, id uint64, name string) (domain.Product, error)
	Log(ctx context.Context, id uint64) (domain.LogRecord, error)
	Logs(ctx context.Context, limit int) ([]domain.LogRecord, error)
}

// Models reports registry health.
type Models interface {
	Status() []ml.ModelStatus
	Performance() []ml.ModelPerformance
	Err() error
}

type Server struct {
	lifecycle Lifecycle
	catalog   Catalog
	models    Models
	feed      http.Handler
	started   time.Time
}

// NewServer wires the handlers. feed may be nil to disable the websocket
// endpoint.
func NewServer(lifecycle Lifecycle, catalog Catalog, models Models, feed http.Handler) *Server {
	return &Server{
		lifecycle: lifecycle,
		catalog:   catalog,
		models:    models,
		feed:      feed,
		started:   time.Now(),
	}
}

// Router builds the chi router with every route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Get("/models", s.listModels)

	if s.feed != nil {
		r.Handle("/ws/verdicts", s.feed)
	}

	r.Group(func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Route("/predict", func(r chi.Router) {
			r.Get("/", s.latestPrediction)
			r.Post("/", s.predict)
		})

		r.Route("/machines", func(r chi.Router) {
			r.Get("/", s.listMachines)
			r.Post("/", s.createMachine)
			r.Get("/{id}", s.getMachine)
		})

		r.Route("/productions", func(r chi.Router) {
			r.Get("/", s.listProducts)
			r.Post("/", s.createProduct)
			r.Get("/{id}", s.getProduct)
			r.Put("/{id}", s.renameProduct)
		})

		r.Route("/logs", func(r chi.Router) {
			r.Get("/", s.listLogs)
			r.Post("/", s.createLog)
			r.Get("/{id}", s.getLog)
			r.Post("/{id}/rescore", s.rescoreLog)
		})
	})

	return r
}

// requestLogger logs every request through zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			log.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		}()
		next.ServeHTTP(ww, r)
	})
}
