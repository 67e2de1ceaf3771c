package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/goalsaver/internal/model"
)

type createPodRequest struct {
	Name         string   `json:"name"`
	TargetAmount string   `json:"target_amount"`
	Members      []string `json:"members"`
}

type podMemberResponse struct {
	Account      string `json:"account"`
	Contribution string `json:"contribution"`
}

type podResponse struct {
	ID            int64               `json:"id"`
	Name          string              `json:"name"`
	Creator       string              `json:"creator"`
	TargetAmount  string              `json:"target_amount"`
	CurrentAmount string              `json:"current_amount"`
	Members       []podMemberResponse `json:"members"`
	IsCompleted   bool                `json:"is_completed"`
	IsSettled     bool                `json:"is_settled"`
	CreatedAt     string              `json:"created_at"`
}

func newPodResponse(p *model.Pod) podResponse {
	resp := podResponse{
		ID:            p.ID,
		Name:          p.Name,
		Creator:       p.Creator,
		TargetAmount:  p.TargetAmount.Dec(),
		CurrentAmount: p.CurrentAmount.Dec(),
		Members:       make([]podMemberResponse, 0, len(p.Members)),
		IsCompleted:   p.IsCompleted,
		IsSettled:     p.IsSettled,
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
	}
	for _, m := range p.Members {
		resp.Members = append(resp.Members, podMemberResponse{
			Account:      m.Account,
			Contribution: m.Contribution.Dec(),
		})
	}
	return resp
}

// CreatePod создаёт под, текущий аккаунт становится его первым участником.
func (h *Handler) CreatePod(w http.ResponseWriter, r *http.Request) {
	account, ok := currentAccount(w, r)
	if !ok {
		return
	}

	var req createPodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	target, err := model.ParseAmount(req.TargetAmount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p, err := h.service.CreatePod(r.Context(), account, req.Name, target, req.Members)
	if err != nil {
		h.writeError(w, "create pod error", err, zap.String("account", account))
		return
	}

	h.writeJSON(w, http.StatusCreated, newPodResponse(p))
}

// GetPod возвращает под.
func (h *Handler) GetPod(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(w, r, "id")
	if !ok {
		return
	}

	p, err := h.service.GetPod(r.Context(), id)
	if err != nil {
		h.writeError(w, "get pod error", err, zap.Int64("podID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, newPodResponse(p))
}

// Contribute вносит средства текущего аккаунта в под.
func (h *Handler) Contribute(w http.ResponseWriter, r *http.Request) {
	account, ok := currentAccount(w, r)
	if !ok {
		return
	}
	id, ok := intParam(w, r, "id")
	if !ok {
		return
	}
	amount, ok := decodeAmount(w, r)
	if !ok {
		return
	}

	p, err := h.service.Contribute(r.Context(), id, account, amount)
	if err != nil {
		h.writeError(w, "contribute error", err, zap.String("account", account), zap.Int64("podID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, newPodResponse(p))
}

type payoutResponse struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

// SettlePod распределяет накопления завершённого пода между участниками.
func (h *Handler) SettlePod(w http.ResponseWriter, r *http.Request) {
	account, ok := currentAccount(w, r)
	if !ok {
		return
	}
	id, ok := intParam(w, r, "id")
	if !ok {
		return
	}

	payouts, err := h.service.SettlePod(r.Context(), id, account)
	if err != nil {
		h.writeError(w, "settle pod error", err, zap.String("account", account), zap.Int64("podID", id))
		return
	}

	resp := make([]payoutResponse, 0, len(payouts))
	for _, p := range payouts {
		resp = append(resp, payoutResponse{Account: p.Account, Amount: p.Amount.Dec()})
	}
	h.writeJSON(w, http.StatusOK, resp)
}
