package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"TaxPool/internal/model"
)

type successResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type errorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type errorResponse struct {
	Status string       `json:"status"`
	Error  errorPayload `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, successResponse{Status: "success", Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message, requestID string) {
	writeJSON(w, status, errorResponse{Status: "error", Error: errorPayload{Code: code, Message: message, RequestID: requestID}})
}

func mapDomainError(err error) (int, string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, model.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, model.ErrNotAuthorized):
		return http.StatusForbidden, "not_authorized"
	case errors.Is(err, model.ErrInsufficientBalance):
		return http.StatusConflict, "insufficient_balance"
	case errors.Is(err, model.ErrInsufficientFunds):
		return http.StatusConflict, "insufficient_funds"
	case errors.Is(err, model.ErrInsufficientOracleFee):
		return http.StatusConflict, "insufficient_oracle_fee"
	case errors.Is(err, model.ErrNotDue):
		return http.StatusConflict, "not_due"
	case errors.Is(err, model.ErrRequestAlreadyPending):
		return http.StatusConflict, "request_pending"
	case errors.Is(err, model.ErrRejected):
		return http.StatusConflict, "transfer_rejected"
	case errors.Is(err, model.ErrQueueFull):
		return http.StatusServiceUnavailable, "oracle_busy"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
