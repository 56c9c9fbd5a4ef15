package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"

	ethav "github.com/KOREAN139/ethereum-address-validator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi"

	"gobridgelocker/locker"
	"gobridgelocker/types"
)

const maxBodySize = 64 << 10

func responseJSON(w http.ResponseWriter, data interface{}, code int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func responsePlain(w http.ResponseWriter, data []byte, code int) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	w.Write(data)
}

func responseError(w http.ResponseWriter, field, message string, code int) {
	responseJSON(w, &APIResponse{
		Status:  "error",
		Field:   field,
		Message: message,
	}, code)
}

func readJSON(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	addr := common.HexToAddress(s)
	if err := ethav.Validate(addr.Hex()); err != nil {
		return common.Address{}, err
	}
	return addr, nil
}

// parseAmount reads a decimal amount in base units; empty is allowed when
// optional.
func parseAmount(s string, optional bool) (*big.Int, error) {
	if s == "" && optional {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 || v.Cmp(locker.MaxAmount) > 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

func chainParam(r *http.Request) (types.ChainID, error) {
	v, err := strconv.ParseUint(chi.URLParam(r, "chainId"), 10, 64)
	if err != nil {
		return 0, err
	}
	return types.ChainID(v), nil
}

// statusOf maps a locker error kind to an HTTP status code.
func statusOf(err error) int {
	switch {
	case errors.Is(err, locker.ErrNotOwner), errors.Is(err, locker.ErrUntrustedSender):
		return http.StatusForbidden
	case errors.Is(err, locker.ErrNoRoute):
		return http.StatusNotFound
	case errors.Is(err, locker.ErrLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, locker.ErrLedgerUnconfirmed):
		return http.StatusGatewayTimeout
	case errors.Is(err, locker.ErrLedger):
		return http.StatusUnprocessableEntity
	case errors.Is(err, locker.ErrInvalidAmount), errors.Is(err, locker.ErrInvalidPayload), errors.Is(err, locker.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, locker.ErrGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func responseLockerError(w http.ResponseWriter, err error) {
	code := statusOf(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		message = "internal error"
	}
	responseError(w, "", message, code)
}
