package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/goalsaver/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Route("/user", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)

				r.Post("/goal", h.CreateGoal)
				r.Get("/goal", h.GetGoal)
				r.Post("/goal/deposit", h.Deposit)
				r.Post("/goal/withdraw", h.Withdraw)
				r.Post("/goal/interest", h.CreditInterest)

				r.Post("/milestones/{index}/claim", h.ClaimReward)
				r.Post("/badges/{id}/claim", h.ClaimBadge)

				r.Get("/wallet", h.GetWallet)
			})
		})

		r.Route("/accounts/{account}", func(r chi.Router) {
			r.Get("/progress", h.GetProgress)
			r.Get("/deposits", h.GetTotalDeposits)
			r.Get("/interest", h.GetEstimatedInterest)
			r.Get("/milestones", h.GetAvailableMilestones)
			r.Get("/badges", h.GetAvailableBadges)
			r.Get("/balance", h.BalanceOf)
		})

		r.Get("/interest-rate", h.GetInterestRate)
		r.Get("/badges/{id}", h.GetBadgeDetails)

		r.Route("/pods", func(r chi.Router) {
			r.Get("/{id}", h.GetPod)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)

				r.Post("/", h.CreatePod)
				r.Post("/{id}/contribute", h.Contribute)
				r.Post("/{id}/settle", h.SettlePod)
			})
		})

		r.Get("/events", h.ListEvents)
		r.Get("/events/stream", h.StreamEvents)

		r.Route("/admin", func(r chi.Router) {
			r.Use(custommiddleware.AdminOnly(h.adminToken))

			r.Post("/wallets/{account}/fund", h.FundWallet)
			r.Put("/interest-rate", h.SetInterestRate)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
