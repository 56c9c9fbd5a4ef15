package handlers

import (
	"net/http"

	"go.uber.org/zap"
)

func (a *API) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if a.store != nil {
		if err := a.store.Ping(r.Context()); err != nil {
			a.logger.Warn("health check failed", zap.Error(err))
			responseJSON(w, &APIResponse{
				Status:  "error",
				Message: "store unavailable",
			}, http.StatusServiceUnavailable)
			return
		}
	}
	responseJSON(w, &APIResponse{
		Status: "ok",
	}, http.StatusOK)
}
