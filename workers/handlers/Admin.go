package handlers

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"gobridgelocker/types"
)

func responseOK(w http.ResponseWriter) {
	responseJSON(w, &APIResponse{Status: "ok"}, http.StatusOK)
}

// peer contracts may be the zero address, which removes the entry
func parsePeer(w http.ResponseWriter, s string) (common.Address, bool) {
	peer, err := parseAddress(s)
	if err != nil {
		responseError(w, "contract", "Invalid contract address provided", http.StatusBadRequest)
		return common.Address{}, false
	}
	return peer, true
}

func (a *API) SetDestination(w http.ResponseWriter, r *http.Request) {
	var req ContractRequest
	from, ok := a.decodeSigned(w, r, ActionSetDestination, &req)
	if !ok {
		return
	}
	peer, ok := parsePeer(w, req.Contract)
	if !ok {
		return
	}
	if err := a.locker.SetDestinationChainContract(r.Context(), from, types.ChainID(req.ChainID), peer); err != nil {
		responseLockerError(w, err)
		return
	}
	responseOK(w)
}

func (a *API) SetSource(w http.ResponseWriter, r *http.Request) {
	var req ContractRequest
	from, ok := a.decodeSigned(w, r, ActionSetSource, &req)
	if !ok {
		return
	}
	peer, ok := parsePeer(w, req.Contract)
	if !ok {
		return
	}
	if err := a.locker.SetSourceChainContract(r.Context(), from, types.ChainID(req.ChainID), peer); err != nil {
		responseLockerError(w, err)
		return
	}
	responseOK(w)
}

func (a *API) SetLimit(w http.ResponseWriter, r *http.Request) {
	var req LimitRequest
	from, ok := a.decodeSigned(w, r, ActionSetLimit, &req)
	if !ok {
		return
	}
	limit, err := parseAmount(req.Limit, false)
	if err != nil {
		responseError(w, "limit", "Invalid limit", http.StatusBadRequest)
		return
	}
	if err := a.locker.SetChainLimitPerDay(r.Context(), from, types.ChainID(req.ChainID), limit); err != nil {
		responseLockerError(w, err)
		return
	}
	responseOK(w)
}

func (a *API) SetChainID(w http.ResponseWriter, r *http.Request) {
	var req ChainIDRequest
	from, ok := a.decodeSigned(w, r, ActionSetChainID, &req)
	if !ok {
		return
	}
	if req.ChainID == 0 {
		responseError(w, "chainId", "Chain id must not be zero", http.StatusBadRequest)
		return
	}
	if err := a.locker.SetInternalChainID(r.Context(), from, types.ChainID(req.ChainID)); err != nil {
		responseLockerError(w, err)
		return
	}
	responseOK(w)
}

func (a *API) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req OwnershipRequest
	from, ok := a.decodeSigned(w, r, ActionTransferOwnership, &req)
	if !ok {
		return
	}
	newOwner, err := parseAddress(req.NewOwner)
	if err != nil {
		responseError(w, "newOwner", "Invalid address provided", http.StatusBadRequest)
		return
	}
	if err := a.locker.TransferOwnership(r.Context(), from, newOwner); err != nil {
		responseLockerError(w, err)
		return
	}
	responseOK(w)
}

func (a *API) AcceptOwnership(w http.ResponseWriter, r *http.Request) {
	var req AcceptOwnershipRequest
	from, ok := a.decodeSigned(w, r, ActionAcceptOwnership, &req)
	if !ok {
		return
	}
	if err := a.locker.AcceptOwnership(r.Context(), from); err != nil {
		responseLockerError(w, err)
		return
	}
	responseOK(w)
}
