package handlers

import (
	"strconv"

	"gobridgelocker/types"
)

type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

type APIStateResponse struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	Address      string `json:"address"`
	Gateway      string `json:"gateway"`
	ChainID      uint64 `json:"chainId"`
	Owner        string `json:"owner"`
	PendingOwner string `json:"pendingOwner,omitempty"`
	Balance      string `json:"balance,omitempty"`
}

type APIChainIDResponse struct {
	Status  string `json:"status"`
	ChainID uint64 `json:"chainId"`
}

type APIOwnerResponse struct {
	Status       string `json:"status"`
	Owner        string `json:"owner"`
	PendingOwner string `json:"pendingOwner,omitempty"`
}

type APIRouteResponse struct {
	Status        string `json:"status"`
	ChainID       uint64 `json:"chainId"`
	Destination   string `json:"destination"`
	Source        string `json:"source"`
	LimitPerDay   string `json:"limitPerDay"`
	UsageOutbound string `json:"usageOutbound"`
	UsageInbound  string `json:"usageInbound"`
	Day           uint64 `json:"day"`
}

type APITransfersResponse struct {
	Status    string                  `json:"status"`
	Transfers []*types.TransferRecord `json:"transfers"`
}

type APIResponseSend struct {
	Status    string `json:"status"`
	MessageID string `json:"messageId"`
	Sequence  uint64 `json:"sequence"`
}

// Auth is carried by every write request. The signature covers the request
// action, the locker address, these fields and the request's parameters.
type Auth struct {
	From      string `json:"from"`
	Nonce     string `json:"nonce"`
	Deadline  int64  `json:"deadline"`
	Signature string `json:"signature"`
}

func (a *Auth) auth() *Auth { return a }

// SignedRequest is a write request body.
type SignedRequest interface {
	auth() *Auth
	Params() map[string]string
}

type SendRequest struct {
	Auth
	Destination  uint64 `json:"destination"`
	Amount       string `json:"amount"`
	Recipient    string `json:"recipient"`
	ExecutionFee string `json:"executionFee,omitempty"`
}

func (r *SendRequest) Params() map[string]string {
	return map[string]string{
		"destination":  strconv.FormatUint(r.Destination, 10),
		"amount":       r.Amount,
		"recipient":    r.Recipient,
		"executionFee": r.ExecutionFee,
	}
}

// ContractRequest sets the destination or the trusted source peer of a chain.
type ContractRequest struct {
	Auth
	ChainID  uint64 `json:"chainId"`
	Contract string `json:"contract"`
}

func (r *ContractRequest) Params() map[string]string {
	return map[string]string{
		"chainId":  strconv.FormatUint(r.ChainID, 10),
		"contract": r.Contract,
	}
}

type LimitRequest struct {
	Auth
	ChainID uint64 `json:"chainId"`
	Limit   string `json:"limit"`
}

func (r *LimitRequest) Params() map[string]string {
	return map[string]string{
		"chainId": strconv.FormatUint(r.ChainID, 10),
		"limit":   r.Limit,
	}
}

type ChainIDRequest struct {
	Auth
	ChainID uint64 `json:"chainId"`
}

func (r *ChainIDRequest) Params() map[string]string {
	return map[string]string{
		"chainId": strconv.FormatUint(r.ChainID, 10),
	}
}

type OwnershipRequest struct {
	Auth
	NewOwner string `json:"newOwner"`
}

func (r *OwnershipRequest) Params() map[string]string {
	return map[string]string{
		"newOwner": r.NewOwner,
	}
}

type AcceptOwnershipRequest struct {
	Auth
}

func (r *AcceptOwnershipRequest) Params() map[string]string {
	return nil
}

// Request actions, part of the signed message.
const (
	ActionSend              = "send"
	ActionSetDestination    = "setDestinationChainContract"
	ActionSetSource         = "setSourceChainContract"
	ActionSetLimit          = "setChainLimitPerDay"
	ActionSetChainID        = "setInternalChainId"
	ActionTransferOwnership = "transferOwnership"
	ActionAcceptOwnership   = "acceptOwnership"
)
