package locker

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"gobridgelocker/types"
)

// HandleMessage decodes a gateway delivery and unlocks accordingly. caller is
// the account the gateway delivers from.
//
// There is no message-id bookkeeping: the gateway is assumed to deliver each
// message at most once. A redelivered message is unlocked again, bounded only
// by the daily limit.
func (l *Locker) HandleMessage(ctx context.Context, caller common.Address, msg types.AuthenticatedMessage) error {
	call, err := DecodeUnlock(msg.Payload)
	if err != nil {
		return l.reject("unlock", &Error{
			Kind:    ErrInvalidPayload,
			ChainID: msg.Origin.ChainID,
			Caller:  caller,
			Reason:  fmt.Sprintf("message %s", msg.ID),
			Err:     err,
		})
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.unlock(ctx, caller, msg.Origin, call.SourceChainID, call.Amount, call.Recipient, msg.ID); err != nil {
		return l.reject("unlock", err)
	}
	return nil
}

// Unlock releases amount from custody to recipient. It only succeeds when the
// gateway is the caller and the gateway's origin claim names the trusted peer
// of source.
func (l *Locker) Unlock(ctx context.Context, caller common.Address, origin types.Origin, source types.ChainID, amount *big.Int, recipient common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.unlock(ctx, caller, origin, source, amount, recipient, ""); err != nil {
		return l.reject("unlock", err)
	}
	return nil
}

func (l *Locker) unlock(ctx context.Context, caller common.Address, origin types.Origin, source types.ChainID, amount *big.Int, recipient common.Address, messageID string) error {
	if caller != l.gateway.Address() {
		return &Error{Kind: ErrUntrustedSender, ChainID: source, Amount: amount, Caller: caller, Reason: "caller is not the gateway"}
	}
	if origin.ChainID != source {
		return &Error{Kind: ErrUntrustedSender, ChainID: source, Amount: amount, Caller: caller,
			Reason: fmt.Sprintf("origin chain %d does not match claimed chain", origin.ChainID)}
	}
	trusted, err := l.store.SourceContract(ctx, source)
	if err != nil {
		return storeError("read trusted peer", err)
	}
	if trusted == (common.Address{}) || trusted != origin.Address {
		return &Error{Kind: ErrUntrustedSender, ChainID: source, Amount: amount, Caller: caller,
			Reason: fmt.Sprintf("origin sender %s is not the trusted peer", origin.Address.Hex())}
	}
	if !validAmount(amount) {
		return &Error{Kind: ErrInvalidAmount, ChainID: source, Amount: amount, Reason: "amount must be positive and fit uint256"}
	}

	day := l.today()
	used, next, err := l.reserve(ctx, types.Inbound, source, day, amount)
	if err != nil {
		return err
	}
	if err := l.store.SetUsage(ctx, types.Inbound, source, day, next); err != nil {
		return storeError("write usage", err)
	}

	if err := l.token.Transfer(ctx, recipient, amount); err != nil {
		if errors.Is(err, ErrLedgerUnconfirmed) {
			// the release may still land, so the usage stays
			l.logger.Error("release unconfirmed",
				zap.Stringer("source", source),
				zap.String("recipient", recipient.Hex()),
				zap.String("amount", amount.String()),
				zap.String("messageId", messageID),
				zap.Error(err))
			return &Error{Kind: ErrLedgerUnconfirmed, ChainID: source, Amount: amount, Reason: messageReason(messageID), Err: err}
		}
		if rerr := l.store.SetUsage(ctx, types.Inbound, source, day, used); rerr != nil {
			l.logger.Error("cannot restore usage after ledger failure",
				zap.Stringer("chainId", source), zap.Uint64("day", day), zap.Error(rerr))
		}
		return &Error{Kind: ErrLedger, ChainID: source, Amount: amount, Err: err}
	}

	l.logger.Info("unlocked",
		zap.Stringer("source", source),
		zap.String("peer", origin.Address.Hex()),
		zap.String("recipient", recipient.Hex()),
		zap.String("amount", amount.String()),
	)

	l.record(ctx, &types.TransferRecord{
		Status:    types.StatusUnlocked,
		Direction: types.Inbound,
		ChainID:   source,
		DayIndex:  day,
		Amount:    amount.String(),
		From:      origin.Address.Hex(),
		Recipient: recipient.Hex(),
		MessageID: messageID,
	})
	return nil
}

func messageReason(id string) string {
	if id == "" {
		return ""
	}
	return fmt.Sprintf("message %s", id)
}
