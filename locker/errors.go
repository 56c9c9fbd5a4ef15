package locker

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"gobridgelocker/types"
)

// Error kinds. Match them with errors.Is.
var (
	ErrNotOwner        = errors.New("not owner")
	ErrNoRoute         = errors.New("no route to destination chain")
	ErrUntrustedSender = errors.New("untrusted sender")
	ErrLimitExceeded   = errors.New("Limit reached")
	ErrLedger          = errors.New("token ledger error")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidPayload  = errors.New("invalid message payload")
	ErrGateway         = errors.New("gateway error")
	ErrStore           = errors.New("store error")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Ledgers wrap these so the locker can tell their failures apart.
var (
	// nothing was submitted, the call can be repeated
	ErrLedgerUnavailable = errors.New("token ledger unavailable")
	// submitted but not confirmed; the locker keeps the usage counted and
	// reports the call with this kind
	ErrLedgerUnconfirmed = errors.New("token transfer unconfirmed")
)

// MaxAmount is the largest amount a message can carry (2^256-1).
var MaxAmount = math.MaxBig256

// Error is a rejected locker call. It carries enough context for a caller to
// decide between retrying, waiting for the next day window or asking for a
// route/limit update.
type Error struct {
	Kind    error
	ChainID types.ChainID
	Amount  *big.Int
	Caller  common.Address
	Reason  string
	Err     error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.Error())
	if e.ChainID != 0 {
		fmt.Fprintf(&sb, ": chain %d", e.ChainID)
	}
	if e.Amount != nil {
		fmt.Fprintf(&sb, ", amount %s", e.Amount)
	}
	if e.Caller != (common.Address{}) {
		fmt.Fprintf(&sb, ", caller %s", e.Caller.Hex())
	}
	if e.Reason != "" {
		sb.WriteString(", ")
		sb.WriteString(e.Reason)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the error kind of a locker error, or nil for foreign errors.
func KindOf(err error) error {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Kind
	}
	return nil
}

func storeError(op string, err error) error {
	return &Error{Kind: ErrStore, Reason: op, Err: err}
}
