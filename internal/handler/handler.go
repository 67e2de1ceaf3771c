// Package handler содержит HTTP-обработчики API леджера накопительных целей.
//
// Суммы передаются десятичными строками в базовых единицах (10^-18 актива).
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/mmeshcher/goalsaver/internal/middleware"
	"github.com/mmeshcher/goalsaver/internal/model"
	"github.com/mmeshcher/goalsaver/internal/repository"
	"github.com/mmeshcher/goalsaver/internal/service"
	"github.com/mmeshcher/goalsaver/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, account, password string) (string, error)
	AuthenticateUser(ctx context.Context, account, password string) (string, error)

	CreateGoal(ctx context.Context, owner string, target *uint256.Int, deadline time.Time) (*model.Goal, error)
	Deposit(ctx context.Context, owner string, amount *uint256.Int) (*model.Goal, error)
	Withdraw(ctx context.Context, owner string, amount *uint256.Int) (*model.Withdrawal, error)
	CreditInterest(ctx context.Context, owner string) (*uint256.Int, error)
	GetGoal(ctx context.Context, owner string) (*model.Goal, error)
	GetProgress(ctx context.Context, owner string) (uint64, error)
	GetTotalDeposits(ctx context.Context, owner string) (*uint256.Int, error)
	GetEstimatedInterest(ctx context.Context, owner string) (*uint256.Int, error)
	GetCurrentInterestRate(ctx context.Context) (uint64, error)
	SetInterestRate(ctx context.Context, rateBps uint64) error

	CreatePod(ctx context.Context, creator, name string, target *uint256.Int, members []string) (*model.Pod, error)
	Contribute(ctx context.Context, podID int64, member string, amount *uint256.Int) (*model.Pod, error)
	SettlePod(ctx context.Context, podID int64, member string) ([]model.Payout, error)
	GetPod(ctx context.Context, podID int64) (*model.Pod, error)

	GetAvailableMilestones(ctx context.Context, account string) ([]int, error)
	ClaimReward(ctx context.Context, account string, index int) (*uint256.Int, error)
	GetAvailableBadges(ctx context.Context, account string) ([]int, error)
	ClaimBadge(ctx context.Context, account string, badgeID int) error
	GetBadgeDetails(badgeID int) (model.Badge, error)
	BalanceOf(ctx context.Context, account string) (*model.RewardBalance, error)

	FundWallet(ctx context.Context, account string, amount *uint256.Int) (*uint256.Int, error)
	GetWallet(ctx context.Context, account string) (*uint256.Int, error)
	ListEvents(ctx context.Context, afterID int64, limit int) ([]model.Event, error)
}

// Handler реализует HTTP-обработчики API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	adminToken     string
	pollInterval   time.Duration
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, adminToken string) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		adminToken:     adminToken,
		pollInterval:   time.Second,
	}
}

type credentialsRequest struct {
	Account  string `json:"account"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию владельца аккаунта.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Account == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	account, err := h.service.RegisterUser(r.Context(), req.Account, req.Password)
	if err != nil {
		h.writeError(w, "register user error", err)
		return
	}

	h.authMiddleware.SetAuthCookie(w, account)
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию и устанавливает cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Account == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	account, err := h.service.AuthenticateUser(r.Context(), req.Account, req.Password)
	if err != nil {
		h.writeError(w, "login user error", err)
		return
	}

	h.authMiddleware.SetAuthCookie(w, account)
	w.WriteHeader(http.StatusOK)
}

// statusFor сопоставляет ошибку леджера HTTP-статусу. 0 означает внутреннюю ошибку.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidAmount),
		errors.Is(err, model.ErrDeadlineInPast),
		errors.Is(err, model.ErrEmptyMembership),
		errors.Is(err, model.ErrInvalidAccount),
		errors.Is(err, model.ErrInvalidRate):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, model.ErrNoActiveGoal),
		errors.Is(err, model.ErrPodNotFound),
		errors.Is(err, model.ErrBadgeNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrUserExists),
		errors.Is(err, model.ErrGoalAlreadyActive),
		errors.Is(err, model.ErrGoalAlreadyWithdrawn),
		errors.Is(err, model.ErrAlreadyClaimed),
		errors.Is(err, model.ErrAlreadyOwned),
		errors.Is(err, model.ErrPodSettled),
		errors.Is(err, model.ErrPodNotCompleted):
		return http.StatusConflict
	case errors.Is(err, model.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, model.ErrMilestoneNotEligible),
		errors.Is(err, model.ErrBadgeNotEligible),
		errors.Is(err, model.ErrArithmeticOverflow):
		return http.StatusUnprocessableEntity
	}
	return 0
}

func (h *Handler) writeError(w http.ResponseWriter, msg string, err error, fields ...zap.Field) {
	if code := statusFor(err); code != 0 {
		http.Error(w, err.Error(), code)
		return
	}
	h.logger.Error(msg, append(fields, zap.Error(err))...)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response error", zap.Error(err))
	}
}

func currentAccount(w http.ResponseWriter, r *http.Request) (string, bool) {
	account, ok := middleware.GetAccountFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return "", false
	}
	return account, true
}

func accountParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	account, ok := validation.NormalizeAccount(chi.URLParam(r, "account"))
	if !ok {
		http.Error(w, model.ErrInvalidAccount.Error(), http.StatusBadRequest)
		return "", false
	}
	return account, true
}

func intParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v < 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

type amountRequest struct {
	Amount string `json:"amount"`
}

func decodeAmount(w http.ResponseWriter, r *http.Request) (*uint256.Int, bool) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return nil, false
	}
	amount, err := model.ParseAmount(req.Amount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return amount, true
}
