package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"gobridgelocker/types"
)

// Send locks the signer's tokens and dispatches them to another chain. The
// signer must have approved the locker for the amount beforehand.
func (a *API) Send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	from, ok := a.decodeSigned(w, r, ActionSend, &req)
	if !ok {
		return
	}

	recipient, err := parseAddress(req.Recipient)
	if err != nil {
		responseError(w, "recipient", "No recipient or invalid address provided", http.StatusBadRequest)
		return
	}
	amount, err := parseAmount(req.Amount, false)
	if err != nil {
		responseError(w, "amount", "Invalid amount", http.StatusBadRequest)
		return
	}
	fee, err := parseAmount(req.ExecutionFee, true)
	if err != nil {
		responseError(w, "executionFee", "Invalid execution fee", http.StatusBadRequest)
		return
	}

	receipt, err := a.locker.SendToChain(r.Context(), from, types.ChainID(req.Destination), amount, recipient, fee)
	if err != nil {
		responseLockerError(w, err)
		return
	}

	a.logger.Info("send accepted",
		zap.String("from", from.Hex()),
		zap.Uint64("destination", req.Destination),
		zap.String("messageId", receipt.MessageID))

	responseJSON(w, &APIResponseSend{
		Status:    "ok",
		MessageID: receipt.MessageID,
		Sequence:  receipt.Sequence,
	}, http.StatusOK)
}
