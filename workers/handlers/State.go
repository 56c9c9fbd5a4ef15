package handlers

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"gobridgelocker/types"
)

func hexOrEmpty(addr common.Address) string {
	if addr == (common.Address{}) {
		return ""
	}
	return addr.Hex()
}

// State summarises the instance. The custody balance is left out when the
// ledger cannot be reached.
func (a *API) State(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := a.locker.ChainID(ctx)
	if err != nil {
		responseLockerError(w, err)
		return
	}
	owner, err := a.locker.Owner(ctx)
	if err != nil {
		responseLockerError(w, err)
		return
	}
	pending, err := a.locker.PendingOwner(ctx)
	if err != nil {
		responseLockerError(w, err)
		return
	}

	resp := &APIStateResponse{
		Status:       "ok",
		Address:      a.locker.Address().Hex(),
		Gateway:      a.locker.GatewayAddress().Hex(),
		ChainID:      uint64(id),
		Owner:        owner.Hex(),
		PendingOwner: hexOrEmpty(pending),
	}
	if balance, err := a.locker.CustodyBalance(ctx); err != nil {
		a.logger.Warn("cannot read custody balance", zap.Error(err))
		resp.Message = "custody balance unavailable"
	} else {
		resp.Balance = balance.String()
	}
	responseJSON(w, resp, http.StatusOK)
}

// ChainID reports the id embedded in outgoing messages. Anyone may read it.
func (a *API) ChainID(w http.ResponseWriter, r *http.Request) {
	id, err := a.locker.ChainID(r.Context())
	if err != nil {
		responseLockerError(w, err)
		return
	}
	responseJSON(w, &APIChainIDResponse{Status: "ok", ChainID: uint64(id)}, http.StatusOK)
}

func (a *API) Owner(w http.ResponseWriter, r *http.Request) {
	owner, err := a.locker.Owner(r.Context())
	if err != nil {
		responseLockerError(w, err)
		return
	}
	pending, err := a.locker.PendingOwner(r.Context())
	if err != nil {
		responseLockerError(w, err)
		return
	}
	responseJSON(w, &APIOwnerResponse{Status: "ok", Owner: owner.Hex(), PendingOwner: hexOrEmpty(pending)}, http.StatusOK)
}

// Route shows the peers, the limit and today's usage for one chain.
func (a *API) Route(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chain, err := chainParam(r)
	if err != nil {
		responseError(w, "chainId", "Invalid chain id", http.StatusBadRequest)
		return
	}

	dest, err := a.locker.DestinationChainContract(ctx, chain)
	if err != nil {
		responseLockerError(w, err)
		return
	}
	src, err := a.locker.SourceChainContract(ctx, chain)
	if err != nil {
		responseLockerError(w, err)
		return
	}
	limit, err := a.locker.ChainLimitPerDay(ctx, chain)
	if err != nil {
		responseLockerError(w, err)
		return
	}
	day := a.locker.Today()
	out, err := a.locker.UsageOn(ctx, types.Outbound, chain, day)
	if err != nil {
		responseLockerError(w, err)
		return
	}
	in, err := a.locker.UsageOn(ctx, types.Inbound, chain, day)
	if err != nil {
		responseLockerError(w, err)
		return
	}

	responseJSON(w, &APIRouteResponse{
		Status:        "ok",
		ChainID:       uint64(chain),
		Destination:   hexOrEmpty(dest),
		Source:        hexOrEmpty(src),
		LimitPerDay:   types.AmountString(limit),
		UsageOutbound: types.AmountString(out),
		UsageInbound:  types.AmountString(in),
		Day:           day,
	}, http.StatusOK)
}
