package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// GetAvailableMilestones возвращает индексы этапов, доступных аккаунту.
func (h *Handler) GetAvailableMilestones(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(w, r)
	if !ok {
		return
	}

	indices, err := h.service.GetAvailableMilestones(r.Context(), account)
	if err != nil {
		h.writeError(w, "get milestones error", err, zap.String("account", account))
		return
	}

	h.writeJSON(w, http.StatusOK, indices)
}

type claimRewardResponse struct {
	Index  int64  `json:"index"`
	Reward string `json:"reward"`
}

// ClaimReward начисляет текущему аккаунту токены за этап.
func (h *Handler) ClaimReward(w http.ResponseWriter, r *http.Request) {
	account, ok := currentAccount(w, r)
	if !ok {
		return
	}
	index, ok := intParam(w, r, "index")
	if !ok {
		return
	}

	reward, err := h.service.ClaimReward(r.Context(), account, int(index))
	if err != nil {
		h.writeError(w, "claim reward error", err, zap.String("account", account), zap.Int64("index", index))
		return
	}

	h.writeJSON(w, http.StatusOK, claimRewardResponse{Index: index, Reward: reward.Dec()})
}

// GetAvailableBadges возвращает идентификаторы бейджей, доступных аккаунту.
func (h *Handler) GetAvailableBadges(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(w, r)
	if !ok {
		return
	}

	ids, err := h.service.GetAvailableBadges(r.Context(), account)
	if err != nil {
		h.writeError(w, "get badges error", err, zap.String("account", account))
		return
	}

	h.writeJSON(w, http.StatusOK, ids)
}

// ClaimBadge выдаёт бейдж текущему аккаунту.
func (h *Handler) ClaimBadge(w http.ResponseWriter, r *http.Request) {
	account, ok := currentAccount(w, r)
	if !ok {
		return
	}
	id, ok := intParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.ClaimBadge(r.Context(), account, int(id)); err != nil {
		h.writeError(w, "claim badge error", err, zap.String("account", account), zap.Int64("badgeID", id))
		return
	}

	w.WriteHeader(http.StatusOK)
}

type badgeResponse struct {
	ID          int    `json:"id"`
	Kind        string `json:"kind"`
	Requirement string `json:"requirement"`
	MetadataURI string `json:"metadata_uri"`
}

// GetBadgeDetails возвращает требование и метаданные бейджа.
func (h *Handler) GetBadgeDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(w, r, "id")
	if !ok {
		return
	}

	b, err := h.service.GetBadgeDetails(int(id))
	if err != nil {
		h.writeError(w, "get badge error", err, zap.Int64("badgeID", id))
		return
	}

	h.writeJSON(w, http.StatusOK, badgeResponse{
		ID:          b.ID,
		Kind:        string(b.Kind),
		Requirement: b.Requirement.Dec(),
		MetadataURI: b.MetadataURI,
	})
}

type balanceResponse struct {
	Tokens string `json:"tokens"`
	Badges int    `json:"badges"`
}

// BalanceOf возвращает баланс наградных токенов и число бейджей аккаунта.
func (h *Handler) BalanceOf(w http.ResponseWriter, r *http.Request) {
	account, ok := accountParam(w, r)
	if !ok {
		return
	}

	b, err := h.service.BalanceOf(r.Context(), account)
	if err != nil {
		h.writeError(w, "balance of error", err, zap.String("account", account))
		return
	}

	h.writeJSON(w, http.StatusOK, balanceResponse{Tokens: b.Tokens.Dec(), Badges: b.Badges})
}

// GetWallet возвращает баланс кошелька текущего аккаунта.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	account, ok := currentAccount(w, r)
	if !ok {
		return
	}

	balance, err := h.service.GetWallet(r.Context(), account)
	if err != nil {
		h.writeError(w, "get wallet error", err, zap.String("account", account))
		return
	}

	h.writeJSON(w, http.StatusOK, amountRequest{Amount: balance.Dec()})
}

// FundWallet зачисляет внешние средства на кошелёк аккаунта. Только для администратора.
func (h *Handler) FundWallet(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	amount, ok := decodeAmount(w, r)
	if !ok {
		return
	}

	balance, err := h.service.FundWallet(r.Context(), account, amount)
	if err != nil {
		h.writeError(w, "fund wallet error", err, zap.String("account", account))
		return
	}

	h.writeJSON(w, http.StatusOK, amountRequest{Amount: balance.Dec()})
}
