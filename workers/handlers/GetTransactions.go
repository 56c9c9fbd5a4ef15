package handlers

import (
	"net/http"

	"github.com/go-chi/chi"
	"go.uber.org/zap"

	"gobridgelocker/types"
)

// GetTransfers lists the audit records of one status, locked or unlocked.
func (a *API) GetTransfers(w http.ResponseWriter, r *http.Request) {
	status := chi.URLParam(r, "status")
	if status != types.StatusLocked && status != types.StatusUnlocked {
		responseError(w, "status", "Unknown transfer status", http.StatusNotFound)
		return
	}

	transfers, err := a.locker.Transfers(r.Context(), status)
	if err != nil {
		a.logger.Error("cannot list transfers", zap.String("status", status), zap.Error(err))
		responseError(w, "", "internal error", http.StatusInternalServerError)
		return
	}
	if transfers == nil {
		transfers = []*types.TransferRecord{}
	}

	responseJSON(w, &APITransfersResponse{Status: "ok", Transfers: transfers}, http.StatusOK)
}
