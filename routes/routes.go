package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/Dosada05/league-orchestrator/docs"
	"github.com/Dosada05/league-orchestrator/handlers"
	"github.com/Dosada05/league-orchestrator/middleware"
)

const requestTimeout = 60 * time.Second

type Options struct {
	Logger      *slog.Logger
	Metrics     *prometheus.Registry
	CORSOrigins []string
}

func SetupRoutes(
	router chi.Router,
	opts Options,
	waitlistHandler *handlers.WaitlistHandler,
	signupHandler *handlers.SignupHandler,
	instanceHandler *handlers.InstanceHandler,
	reportHandler *handlers.ReportHandler,
	seasonHandler *handlers.SeasonHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.RequestLogger(opts.Logger))
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if opts.Metrics != nil {
		router.Handle("/metrics", promhttp.HandlerFor(opts.Metrics, promhttp.HandlerOpts{}))
	}
	router.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(docs.SwaggerJSON)
	})
	router.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	router.Route("/api", func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(requestTimeout))

		r.Route("/waitlist", func(r chi.Router) {
			r.Get("/", waitlistHandler.List)
			r.Post("/", waitlistHandler.Register)
			r.Delete("/{communityID}", waitlistHandler.Unregister)
		})

		r.Post("/signups", signupHandler.Signup)

		r.Route("/instances", func(r chi.Router) {
			r.Get("/", instanceHandler.List)
			r.Post("/", instanceHandler.Create)

			r.Route("/{instanceID}", func(r chi.Router) {
				r.Get("/", instanceHandler.Get)
				r.Delete("/", instanceHandler.Destroy)
				r.Post("/start", instanceHandler.Start)
				r.Post("/finalize", instanceHandler.Finalize)
				r.Post("/reset", instanceHandler.Reset)
				r.Post("/sync", instanceHandler.Sync)

				r.Get("/participants", instanceHandler.ListParticipants)
				r.Post("/participants", instanceHandler.AddParticipant)
				r.Patch("/participants/{communityID}", instanceHandler.RenameParticipant)
				r.Delete("/participants/{communityID}", instanceHandler.RemoveParticipant)

				r.Get("/matches", reportHandler.ListMatches)
				r.Post("/reports", reportHandler.Report)
				r.Get("/standings", reportHandler.Standings)
			})
		})

		r.Route("/seasons/{season}", func(r chi.Router) {
			r.Post("/", seasonHandler.Create)
			r.Post("/start", seasonHandler.Start)
			r.Post("/end", seasonHandler.End)
			r.Get("/standings", seasonHandler.Standings)
		})

		r.Post("/reconcile", seasonHandler.Reconcile)
	})
}
