package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/library-loans-backend/api/controllers"
	"github.com/angelmondragon/library-loans-backend/api/middleware"
	"github.com/angelmondragon/library-loans-backend/internal/books"
	"github.com/angelmondragon/library-loans-backend/internal/borrowers"
	"github.com/angelmondragon/library-loans-backend/internal/loans"
	"github.com/angelmondragon/library-loans-backend/pkg/config"
	"github.com/angelmondragon/library-loans-backend/pkg/db"
	"github.com/angelmondragon/library-loans-backend/pkg/logger"
	"github.com/angelmondragon/library-loans-backend/pkg/metrics"
	"github.com/angelmondragon/library-loans-backend/pkg/redis"
)

// NewRouter wires the public API. redisClient may be nil, in which case
// idempotency replay and write throttling are disabled.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	bookService books.Service,
	borrowerService borrowers.Service,
	loanService loans.Service,
	httpMetrics *metrics.HTTPMetrics,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(httpMetrics),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	readiness := []controllers.Dependency{{Name: "database", Pinger: dbP}}
	idempotent := func(middleware.IdempotencyPolicy) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler { return next }
	}
	if redisClient != nil {
		readiness = append(readiness, controllers.Dependency{Name: "redis", Pinger: redisClient})
		idempotent = func(policy middleware.IdempotencyPolicy) func(http.Handler) http.Handler {
			return middleware.Idempotency(redisClient, logg, policy)
		}
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness...))
	})

	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	if !cfg.App.IsProd() {
		r.Mount("/debug", chimw.Profiler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if redisClient != nil {
			policy := middleware.NewRateLimitPolicy("writes", cfg.RateLimit.Window, cfg.RateLimit.WriteLimit)
			r.Use(middleware.WriteRateLimit(policy, redisClient, logg))
		}

		r.Get("/books", controllers.ListBooks(bookService, logg))
		r.With(idempotent(middleware.CatalogIdempotency)).Post("/books", controllers.CreateBook(bookService, logg))
		r.Get("/books/{bookId}", controllers.GetBook(bookService, logg))
		r.Put("/books/{bookId}", controllers.UpdateBook(bookService, logg))
		r.Delete("/books/{bookId}", controllers.DeleteBook(bookService, logg))

		r.Get("/borrowers", controllers.ListBorrowers(borrowerService, logg))
		r.With(idempotent(middleware.CatalogIdempotency)).Post("/borrowers", controllers.CreateBorrower(borrowerService, logg))
		r.Get("/borrowers/{borrowerId}", controllers.GetBorrower(borrowerService, logg))
		r.Put("/borrowers/{borrowerId}", controllers.UpdateBorrower(borrowerService, logg))
		r.Delete("/borrowers/{borrowerId}", controllers.DeleteBorrower(borrowerService, logg))

		loanWrites := middleware.LoanWriteIdempotency.Require(cfg.FeatureFlags.RequireLoanIdempotencyKey)
		r.Get("/loans", controllers.ListLoans(loanService, logg))
		r.With(idempotent(loanWrites)).Post("/loans", controllers.CreateLoan(loanService, logg))
		r.Get("/loans/active_loans", controllers.ListActiveLoans(loanService, logg))
		r.Get("/loans/overdue_loans", controllers.ListOverdueLoans(loanService, logg))
		r.Get("/loans/stats", controllers.LoanStats(loanService, bookService, borrowerService, logg))
		r.Get("/loans/{loanId}", controllers.GetLoan(loanService, logg))
		r.With(idempotent(loanWrites)).Post("/loans/{loanId}/return_book", controllers.ReturnLoan(loanService, logg))
	})

	return r
}
