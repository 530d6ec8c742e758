// Package api is the HTTP gateway over the ledger and the vault.
package api

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"TaxPool/internal/ledger"
	"TaxPool/internal/model"
	"TaxPool/internal/vault"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/holiman/uint256"
)

const timeFormat = "2006-01-02T15:04:05Z07:00"

type Handler struct {
	ledger *ledger.Ledger
	vault  *vault.Vault
}

func NewHandler(l *ledger.Ledger, v *vault.Vault) *Handler { return &Handler{ledger: l, vault: v} }

type amountRequest struct {
	Payment string `json:"payment,omitempty"`
	Amount  string `json:"amount,omitempty"`
}

type withdrawRequest struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type upkeepRequest struct {
	Aux string `json:"aux"`
}

type pendingDTO struct {
	RequestID   string `json:"request_id"`
	Snapshot    string `json:"snapshot"`
	RequestedAt string `json:"requested_at"`
}

type statusDTO struct {
	TaxPool          string      `json:"tax_pool"`
	TotalSupply      string      `json:"total_supply"`
	Holders          int         `json:"holders"`
	VaultAddress     string      `json:"vault_address"`
	VaultBalance     string      `json:"vault_balance"`
	OracleFeeBalance string      `json:"oracle_fee_balance"`
	LastDistribution string      `json:"last_distribution"`
	NextDistribution string      `json:"next_distribution"`
	Pending          *pendingDTO `json:"pending,omitempty"`
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := mapDomainError(err)
	writeError(w, status, code, err.Error(), middleware.GetReqID(r.Context()))
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, code, msg string) {
	writeError(w, http.StatusBadRequest, code, msg, middleware.GetReqID(r.Context()))
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	account := model.Address(chi.URLParam(r, "address"))
	writeSuccess(w, http.StatusOK, "", map[string]string{
		"address": string(account),
		"balance": h.ledger.BalanceOf(account).Dec(),
	})
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	st := h.ledger.Status()
	resp := statusDTO{
		TaxPool:          st.TaxPool.Dec(),
		TotalSupply:      st.TotalSupply.Dec(),
		Holders:          st.Holders,
		VaultAddress:     string(h.ledger.VaultAddress()),
		VaultBalance:     st.VaultBalance.Dec(),
		OracleFeeBalance: st.OracleFeeBalance.Dec(),
		LastDistribution: st.LastDistribution.UTC().Format(timeFormat),
		NextDistribution: st.NextDistribution.UTC().Format(timeFormat),
	}
	if p := st.Pending; p != nil {
		resp.Pending = &pendingDTO{
			RequestID:   p.RequestID,
			Snapshot:    p.Snapshot.Dec(),
			RequestedAt: p.RequestedAt.UTC().Format(timeFormat),
		}
	}
	writeSuccess(w, http.StatusOK, "", resp)
}

func (h *Handler) getRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "request_id")
	writeSuccess(w, http.StatusOK, "", map[string]any{
		"request_id": id,
		"fulfilled":  h.ledger.RequestFulfilled(id),
	})
}

func (h *Handler) checkUpkeep(w http.ResponseWriter, r *http.Request) {
	due, aux := h.ledger.CheckDue()
	writeSuccess(w, http.StatusOK, "", map[string]any{
		"upkeep_needed": due,
		"aux":           hex.EncodeToString(aux),
	})
}

func (h *Handler) performUpkeep(w http.ResponseWriter, r *http.Request) {
	var req upkeepRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.badRequest(w, r, "invalid_json", err.Error())
			return
		}
	}
	aux, err := hex.DecodeString(strings.TrimPrefix(req.Aux, "0x"))
	if err != nil {
		h.badRequest(w, r, "invalid_aux", err.Error())
		return
	}
	requestID, err := h.ledger.PerformDue(r.Context(), aux)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusAccepted, "randomness requested", map[string]string{"request_id": requestID})
}

func (h *Handler) buy(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, r, "invalid_json", err.Error())
		return
	}
	payment, ok := h.parseAmount(w, r, req.Payment)
	if !ok {
		return
	}
	tokens, err := h.ledger.Buy(accountFromContext(r.Context()), payment)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]string{"tokens_issued": tokens.Dec()})
}

func (h *Handler) sell(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, r, "invalid_json", err.Error())
		return
	}
	amount, ok := h.parseAmount(w, r, req.Amount)
	if !ok {
		return
	}
	proceeds, err := h.ledger.Sell(accountFromContext(r.Context()), amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]string{"proceeds": proceeds.Dec()})
}

func (h *Handler) emergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, r, "invalid_json", err.Error())
		return
	}
	recipient := strings.TrimSpace(req.Recipient)
	if recipient == "" {
		h.badRequest(w, r, "invalid_recipient", "recipient is required")
		return
	}
	amount, ok := h.parseAmount(w, r, req.Amount)
	if !ok {
		return
	}
	if err := h.vault.EmergencyWithdraw(accountFromContext(r.Context()), model.Address(recipient), amount); err != nil {
		h.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "withdrawn", map[string]string{
		"recipient":     recipient,
		"amount":        amount.Dec(),
		"vault_balance": h.vault.Balance().Dec(),
		"at":            time.Now().UTC().Format(timeFormat),
	})
}

func (h *Handler) parseAmount(w http.ResponseWriter, r *http.Request, s string) (*uint256.Int, bool) {
	v, err := model.ParseAmount(s)
	if err != nil {
		h.badRequest(w, r, "invalid_amount", err.Error())
		return nil, false
	}
	return v, true
}
