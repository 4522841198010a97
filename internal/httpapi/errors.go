package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Oshkosh1922/edens-gates/internal/database"
	"github.com/Oshkosh1922/edens-gates/internal/feetx"
	"github.com/Oshkosh1922/edens-gates/internal/votes"
	"github.com/Oshkosh1922/edens-gates/internal/wallet"
	"github.com/Oshkosh1922/edens-gates/supabase/client"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Signature string `json:"signature,omitempty"`
}

// classify maps an error to a status and a stable code. Order matters:
// the fee outcomes wrap transfer and data store errors.
func classify(err error) (int, errorBody) {
	body := errorBody{Error: err.Error()}

	var unrecorded *votes.UnrecordedFeeError
	var indeterminate *votes.IndeterminateError
	var unsettled *votes.UnsettledFeeError
	switch {
	case errors.As(err, &unrecorded):
		body.Code, body.Signature = "unrecorded_fee", unrecorded.Signature.String()
		return http.StatusInternalServerError, body
	case errors.As(err, &indeterminate):
		body.Code, body.Signature = "indeterminate", indeterminate.Signature.String()
		return http.StatusGatewayTimeout, body
	case errors.As(err, &unsettled):
		body.Code, body.Signature = "fee_unsettled", unsettled.Signature.String()
		return http.StatusConflict, body
	case errors.Is(err, votes.ErrVotePending):
		body.Code = "vote_pending"
		return http.StatusConflict, body
	case errors.Is(err, votes.ErrAlreadyVoted):
		body.Code = "already_voted"
		return http.StatusConflict, body
	case errors.Is(err, wallet.ErrBusy):
		body.Code = "wallet_busy"
		return http.StatusConflict, body
	case errors.Is(err, wallet.ErrFeatureDisabled):
		body.Code = "wallet_disabled"
		return http.StatusPreconditionFailed, body
	case errors.Is(err, wallet.ErrNotConnected):
		body.Code = "wallet_not_connected"
		return http.StatusPreconditionFailed, body
	case errors.Is(err, wallet.ErrAdapterUnavailable):
		body.Code = "adapter_unavailable"
		return http.StatusPreconditionFailed, body
	case errors.Is(err, wallet.ErrUserRejected):
		body.Code = "user_rejected"
		return http.StatusForbidden, body
	case errors.Is(err, feetx.ErrInvalidConfiguration):
		body.Code = "invalid_configuration"
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, votes.ErrTransfer):
		body.Code = "transfer_failed"
		return http.StatusBadGateway, body
	case errors.Is(err, wallet.ErrUnknownAdapter), errors.Is(err, database.ErrUnknownFounder):
		body.Code = "not_found"
		return http.StatusNotFound, body
	case errors.Is(err, votes.ErrDataStore), errors.Is(err, client.ErrBreakerOpen):
		body.Code = "data_store_unavailable"
		return http.StatusServiceUnavailable, body
	default:
		body.Code = "internal"
		return http.StatusInternalServerError, body
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status >= 500 {
		h.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Code: "bad_request"})
}
