package handlers

import (
	"net/http"

	"go.uber.org/zap"
)

// Balance returns the custody balance in base units as plain text.
func (a *API) Balance(w http.ResponseWriter, r *http.Request) {
	balance, err := a.locker.CustodyBalance(r.Context())
	if err != nil {
		a.logger.Error("error getting custody balance", zap.Error(err))
		responsePlain(w, []byte("error"), http.StatusInternalServerError)
		return
	}
	responsePlain(w, []byte(balance.String()), http.StatusOK)
}
