package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/goalsaver/internal/model"
)

type createGoalRequest struct {
	TargetAmount string    `json:"target_amount"`
	Deadline     time.Time `json:"deadline"`
}

type goalResponse struct {
	ID              int64  `json:"id"`
	Owner           string `json:"owner"`
	TargetAmount    string `json:"target_amount"`
	CurrentAmount   string `json:"current_amount"`
	PendingInterest string `json:"pending_interest"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	IsCompleted     bool   `json:"is_completed"`
	IsWithdrawn     bool   `json:"is_withdrawn"`
}

func newGoalResponse(g *model.Goal) goalResponse {
	return goalResponse{
		ID:              g.ID,
		Owner:           g.Owner,
		TargetAmount:    g.TargetAmount.Dec(),
		CurrentAmount:   g.CurrentAmount.Dec(),
		PendingInterest: g.PendingInterest.Dec(),
		StartTime:       g.StartTime.Format(time.RFC3339),
		EndTime:         g.EndTime.Format(time.RFC3339),
		IsCompleted:     g.IsCompleted,
		IsWithdrawn:     g.IsWithdrawn,
	}
}

// CreateGoal создаёт цель текущего аккаунта.
func (h *Handler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	account, ok := currentAccount(w, r)
	if !ok {
		return
	}

	var req createGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	target, err := model.ParseAmount(req.TargetAmount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	g, err := h.service.CreateGoal(r.Context(), account, target, req.Deadline)
	if err != nil {
		h.writeError(w, "create goal error", err, zap.String("account", account))
		return
	}

	h.writeJSON(w, http.StatusCreated, newGoalResponse(g))
}

// GetGoal возвращает цель текущего аккаунта.
func (h *Handler) GetGoal(w http.ResponseWriter, r *http.Request) {
	account, ok := currentAccount(w, r)
	if !ok {
		return
	}

	g, err := h.service.GetGoal(r.Context(), account)
	if err != nil {
		h.writeError(w, "get goal error", err, zap.String("account", account))
		return
	}

	h.writeJSON(w, http.StatusOK, newGoalResponse(g))
}

// Deposit вносит средства из кошелька в цель.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	account, ok := currentAccount(w, r)
	if !ok {
		return
	}
	amount, ok := decodeAmount(w, r)
	if !ok {
		return
	}

	g, err := h.service.Deposit(r.Context(), account, amount)
	if err != nil {
		h.writeError(w, "deposit error", err, zap.String("account", account))
		return
	}

	h.writeJSON(w, http.StatusOK, newGoalResponse(g))
}

type withdrawalResponse struct {
	Amount  string `json:"amount"`
	Penalty string `json:"penalty"`
	Payout  string `json:"payout"`
}

// Withdraw выводит средства из цели.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	account, ok := currentAccount(w, r)
	if !ok {
		return
	}
	amount, ok := decodeAmount(w, r)
	if !ok {
		return
	}

	res, err := h.service.Withdraw(r.Context(), account, amount)
	if err != nil {
		h.writeError(w, "withdraw error", err, zap.String("account", account))
		return
	}

	h.writeJSON(w, http.StatusOK, withdrawalResponse{
		Amount:  res.Amount.Dec(),
		Penalty: res.Penalty.Dec(),
		Payout:  res.Payout.Dec(),
	})
}

// CreditInterest зачисляет накопленные проценты в цель.
func (h *Handler) CreditInterest(w http.ResponseWriter, r *http.Request) {
	account, ok := currentAccount(w, r)
	if !ok {
		return
	}

	credited, err := h.service.CreditInterest(r.Context(), account)
	if err != nil {
		h.writeError(w, "credit interest error", err, zap.String("account", account))
		return
	}

	h.writeJSON(w, http.StatusOK, amountRequest{Amount: credited.Dec()})
}

type progressResponse struct {
	Progress uint64 `json:"progress"`
}

// GetProgress возвращает процент достижения цели аккаунта.
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(w, r)
	if !ok {
		return
	}

	p, err := h.service.GetProgress(r.Context(), account)
	if err != nil {
		h.writeError(w, "get progress error", err, zap.String("account", account))
		return
	}

	h.writeJSON(w, http.StatusOK, progressResponse{Progress: p})
}

// GetTotalDeposits возвращает баланс цели аккаунта.
func (h *Handler) GetTotalDeposits(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(w, r)
	if !ok {
		return
	}

	total, err := h.service.GetTotalDeposits(r.Context(), account)
	if err != nil {
		h.writeError(w, "get total deposits error", err, zap.String("account", account))
		return
	}

	h.writeJSON(w, http.StatusOK, amountRequest{Amount: total.Dec()})
}

// GetEstimatedInterest возвращает проценты, доступные к зачислению.
func (h *Handler) GetEstimatedInterest(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(w, r)
	if !ok {
		return
	}

	est, err := h.service.GetEstimatedInterest(r.Context(), account)
	if err != nil {
		h.writeError(w, "get estimated interest error", err, zap.String("account", account))
		return
	}

	h.writeJSON(w, http.StatusOK, amountRequest{Amount: est.Dec()})
}

type rateRequest struct {
	RateBps uint64 `json:"rate_bps"`
}

// GetInterestRate возвращает текущую ставку.
func (h *Handler) GetInterestRate(w http.ResponseWriter, r *http.Request) {
	rate, err := h.service.GetCurrentInterestRate(r.Context())
	if err != nil {
		h.writeError(w, "get interest rate error", err)
		return
	}

	h.writeJSON(w, http.StatusOK, rateRequest{RateBps: rate})
}

// SetInterestRate устанавливает ставку. Только для администратора.
func (h *Handler) SetInterestRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.SetInterestRate(r.Context(), req.RateBps); err != nil {
		h.writeError(w, "set interest rate error", err, zap.Uint64("rateBps", req.RateBps))
		return
	}

	h.writeJSON(w, http.StatusOK, req)
}
