package locker

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"gobridgelocker/types"
)

// SendToChain locks amount of the caller's tokens (the caller must have
// approved the locker beforehand) and asks the gateway to release the same
// amount to recipient on destination. executionFee is forwarded to the
// gateway untouched; nil means no fee.
//
// The call returns once the lock and the dispatch are committed locally; the
// remote unlock happens later, if at all.
func (l *Locker) SendToChain(ctx context.Context, from common.Address, destination types.ChainID, amount *big.Int, recipient common.Address, executionFee *big.Int) (*types.DispatchReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	receipt, err := l.sendToChain(ctx, from, destination, amount, recipient, executionFee)
	if err != nil {
		return nil, l.reject("sendToChain", err)
	}
	return receipt, nil
}

func (l *Locker) sendToChain(ctx context.Context, from common.Address, destination types.ChainID, amount *big.Int, recipient common.Address, executionFee *big.Int) (*types.DispatchReceipt, error) {
	if !validAmount(amount) {
		return nil, &Error{Kind: ErrInvalidAmount, ChainID: destination, Amount: amount, Caller: from, Reason: "amount must be positive and fit uint256"}
	}
	if executionFee == nil {
		executionFee = new(big.Int)
	}
	if executionFee.Sign() < 0 {
		return nil, &Error{Kind: ErrInvalidAmount, ChainID: destination, Amount: executionFee, Caller: from, Reason: "negative execution fee"}
	}

	peer, err := l.store.DestinationContract(ctx, destination)
	if err != nil {
		return nil, storeError("read route", err)
	}
	if peer == (common.Address{}) {
		return nil, &Error{Kind: ErrNoRoute, ChainID: destination, Amount: amount, Caller: from}
	}

	day := l.today()
	used, next, err := l.reserve(ctx, types.Outbound, destination, day, amount)
	if err != nil {
		return nil, err
	}

	self, _, err := l.store.InternalChainID(ctx)
	if err != nil {
		return nil, storeError("read chain id", err)
	}
	payload, err := EncodeUnlock(self, amount, recipient)
	if err != nil {
		return nil, &Error{Kind: ErrInvalidPayload, ChainID: destination, Amount: amount, Err: err}
	}

	// lock
	if err := l.token.TransferFrom(ctx, from, l.address, amount); err != nil {
		if errors.Is(err, ErrLedgerUnconfirmed) {
			// the lock may still land, count it against the limit
			if serr := l.store.SetUsage(ctx, types.Outbound, destination, day, next); serr != nil {
				l.logger.Error("cannot write usage after unconfirmed lock",
					zap.Stringer("chainId", destination), zap.Uint64("day", day), zap.Error(serr))
			}
			l.logger.Error("lock unconfirmed, no message dispatched",
				zap.Stringer("destination", destination),
				zap.String("from", from.Hex()),
				zap.String("recipient", recipient.Hex()),
				zap.String("amount", amount.String()),
				zap.Error(err))
			return nil, &Error{Kind: ErrLedgerUnconfirmed, ChainID: destination, Amount: amount, Caller: from, Reason: "no message dispatched", Err: err}
		}
		return nil, &Error{Kind: ErrLedger, ChainID: destination, Amount: amount, Caller: from, Err: err}
	}

	if err := l.store.SetUsage(ctx, types.Outbound, destination, day, next); err != nil {
		l.refund(ctx, from, amount)
		return nil, storeError("write usage", err)
	}

	receipt, err := l.gateway.Send(ctx, l.address, destination, peer, payload, executionFee)
	if err != nil {
		// the whole call fails, so undo the lock and the counter
		if rerr := l.store.SetUsage(ctx, types.Outbound, destination, day, used); rerr != nil {
			l.logger.Error("cannot restore usage after gateway failure",
				zap.Stringer("chainId", destination), zap.Uint64("day", day), zap.Error(rerr))
		}
		l.refund(ctx, from, amount)
		return nil, &Error{Kind: ErrGateway, ChainID: destination, Amount: amount, Caller: from, Err: err}
	}

	l.logger.Info("locked and dispatched",
		zap.Stringer("destination", destination),
		zap.String("peer", peer.Hex()),
		zap.String("from", from.Hex()),
		zap.String("recipient", recipient.Hex()),
		zap.String("amount", amount.String()),
		zap.String("messageId", receipt.MessageID),
	)

	l.record(ctx, &types.TransferRecord{
		Status:    types.StatusLocked,
		Direction: types.Outbound,
		ChainID:   destination,
		DayIndex:  day,
		Amount:    amount.String(),
		From:      from.Hex(),
		Recipient: recipient.Hex(),
		MessageID: receipt.MessageID,
		Sequence:  receipt.Sequence,
	})
	return receipt, nil
}

func (l *Locker) refund(ctx context.Context, to common.Address, amount *big.Int) {
	if err := l.token.Transfer(ctx, to, amount); err != nil {
		l.logger.Error("cannot return locked tokens",
			zap.String("to", to.Hex()), zap.String("amount", amount.String()), zap.Error(err))
	}
}
