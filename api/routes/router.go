package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/coffeefund-backend/api/controllers"
	"github.com/angelmondragon/coffeefund-backend/api/middleware"
	"github.com/angelmondragon/coffeefund-backend/internal/compensations"
	"github.com/angelmondragon/coffeefund-backend/internal/contributions"
	product "github.com/angelmondragon/coffeefund-backend/internal/products"
	"github.com/angelmondragon/coffeefund-backend/internal/users"
	"github.com/angelmondragon/coffeefund-backend/pkg/config"
	"github.com/angelmondragon/coffeefund-backend/pkg/logger"
	"github.com/angelmondragon/coffeefund-backend/pkg/redis"
)

// RouterParams carries everything the HTTP surface is wired to.
type RouterParams struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             controllers.Pinger
	Redis          controllers.Pinger
	Idempotency    redis.IdempotencyStore
	Users          users.Service
	Products       product.Service
	Contributions  contributions.Service
	Compensations  compensations.Service
	Reprocessor    controllers.BalanceReprocessor
	MetricsHandler http.Handler
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger
	if cfg == nil {
		cfg = &config.Config{}
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	readyDeps := map[string]controllers.Pinger{}
	if p.DB != nil {
		readyDeps["db"] = p.DB
	}
	if p.Redis != nil {
		readyDeps["redis"] = p.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readyDeps))
	})

	metricsHandler := p.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(p.Idempotency, logg))

		r.Route("/users", func(r chi.Router) {
			r.Post("/", controllers.EnsureUserProfile(p.Users, logg))
			r.Get("/", controllers.ListUsers(p.Users, logg))
			r.Get("/active", controllers.ListActiveUsers(p.Users, logg))
			r.Get("/{userId}", controllers.GetUser(p.Users, logg))
			r.Patch("/{userId}/status", controllers.SetUserStatus(p.Users, logg))
			r.Get("/{userId}/contributions", controllers.ListUserContributions(p.Contributions, logg))
		})

		r.Route("/products", func(r chi.Router) {
			r.Post("/", controllers.CreateProduct(p.Products, logg))
			r.Get("/", controllers.ListProducts(p.Products, logg))
			r.Get("/{productId}", controllers.GetProduct(p.Products, logg))
		})

		r.Route("/contributions", func(r chi.Router) {
			r.Post("/", controllers.CreateContribution(p.Contributions, logg))
			r.Get("/", controllers.ListContributions(p.Contributions, logg))
			r.Get("/{contributionId}", controllers.GetContribution(p.Contributions, logg))
			r.Patch("/{contributionId}", controllers.UpdateContribution(p.Contributions, logg))
			r.Delete("/{contributionId}", controllers.DeleteContribution(p.Contributions, logg))
		})

		r.Post("/balances/reprocess", controllers.ReprocessBalances(p.Reprocessor, logg))

		r.Route("/compensations", func(r chi.Router) {
			r.Get("/", controllers.ListCompensations(p.Compensations, logg))
			r.Get("/trigger", controllers.CompensationTrigger(p.Compensations, logg))
			r.Post("/execute", controllers.ExecuteCompensation(p.Compensations, logg))
			r.Get("/{compensationId}", controllers.GetCompensation(p.Compensations, logg))
			r.Delete("/{compensationId}", controllers.DeleteCompensation(p.Compensations, logg))
		})
	})

	return r
}
