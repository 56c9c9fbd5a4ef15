package locker

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"gobridgelocker/types"
)

func (l *Locker) onlyOwner(ctx context.Context, from common.Address) error {
	owner, err := l.store.Owner(ctx)
	if err != nil {
		return storeError("read owner", err)
	}
	if from != owner {
		return &Error{Kind: ErrNotOwner, Caller: from}
	}
	return nil
}

// SetDestinationChainContract sets the outbound route to chain. The zero
// address removes the route.
func (l *Locker) SetDestinationChainContract(ctx context.Context, from common.Address, chain types.ChainID, peer common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.onlyOwner(ctx, from); err != nil {
		return l.reject("setDestinationChainContract", err)
	}
	if err := l.store.SetDestinationContract(ctx, chain, peer); err != nil {
		return l.reject("setDestinationChainContract", storeError("write route", err))
	}
	l.logger.Info("destination chain contract set", zap.Stringer("chainId", chain), zap.String("peer", peer.Hex()))
	return nil
}

// SetSourceChainContract sets the peer trusted to unlock on behalf of chain.
func (l *Locker) SetSourceChainContract(ctx context.Context, from common.Address, chain types.ChainID, peer common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.onlyOwner(ctx, from); err != nil {
		return l.reject("setSourceChainContract", err)
	}
	if err := l.store.SetSourceContract(ctx, chain, peer); err != nil {
		return l.reject("setSourceChainContract", storeError("write trusted peer", err))
	}
	l.logger.Info("source chain contract set", zap.Stringer("chainId", chain), zap.String("peer", peer.Hex()))
	return nil
}

// SetChainLimitPerDay sets the daily volume for chain, applied separately to
// locks towards it and unlocks from it. Zero blocks the chain.
func (l *Locker) SetChainLimitPerDay(ctx context.Context, from common.Address, chain types.ChainID, limit *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.onlyOwner(ctx, from); err != nil {
		return l.reject("setChainLimitPerDay", err)
	}
	if limit == nil || limit.Sign() < 0 {
		return l.reject("setChainLimitPerDay", &Error{Kind: ErrInvalidAmount, ChainID: chain, Amount: limit, Caller: from, Reason: "limit must not be negative"})
	}
	if limit.Cmp(MaxAmount) > 0 {
		return l.reject("setChainLimitPerDay", &Error{Kind: ErrInvalidAmount, ChainID: chain, Amount: limit, Caller: from, Reason: "limit does not fit uint256"})
	}
	if err := l.store.SetLimitPerDay(ctx, chain, limit); err != nil {
		return l.reject("setChainLimitPerDay", storeError("write limit", err))
	}
	l.logger.Info("chain limit per day set", zap.Stringer("chainId", chain), zap.String("limit", limit.String()))
	return nil
}

// SetInternalChainID changes the chain id embedded in messages sent from now on.
func (l *Locker) SetInternalChainID(ctx context.Context, from common.Address, id types.ChainID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.onlyOwner(ctx, from); err != nil {
		return l.reject("setInternalChainId", err)
	}
	if id == 0 {
		return l.reject("setInternalChainId", &Error{Kind: ErrInvalidArgument, Caller: from, Reason: "chain id must not be zero"})
	}
	if err := l.store.SetInternalChainID(ctx, id); err != nil {
		return l.reject("setInternalChainId", storeError("write chain id", err))
	}
	l.logger.Info("internal chain id set", zap.Stringer("chainId", id))
	return nil
}

// TransferOwnership nominates a new owner; it takes effect once the nominee
// calls AcceptOwnership.
func (l *Locker) TransferOwnership(ctx context.Context, from common.Address, newOwner common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.onlyOwner(ctx, from); err != nil {
		return l.reject("transferOwnership", err)
	}
	if newOwner == (common.Address{}) {
		return l.reject("transferOwnership", &Error{Kind: ErrInvalidArgument, Caller: from, Reason: "new owner is the zero address"})
	}
	if err := l.store.SetPendingOwner(ctx, newOwner); err != nil {
		return l.reject("transferOwnership", storeError("write pending owner", err))
	}
	l.logger.Info("ownership transfer started", zap.String("from", from.Hex()), zap.String("to", newOwner.Hex()))
	return nil
}

// AcceptOwnership completes a transfer started by TransferOwnership.
func (l *Locker) AcceptOwnership(ctx context.Context, from common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pending, err := l.store.PendingOwner(ctx)
	if err != nil {
		return l.reject("acceptOwnership", storeError("read pending owner", err))
	}
	if pending == (common.Address{}) || pending != from {
		return l.reject("acceptOwnership", &Error{Kind: ErrNotOwner, Caller: from, Reason: "caller is not the pending owner"})
	}
	if err := l.store.SetOwner(ctx, from); err != nil {
		return l.reject("acceptOwnership", storeError("write owner", err))
	}
	if err := l.store.SetPendingOwner(ctx, common.Address{}); err != nil {
		return l.reject("acceptOwnership", storeError("clear pending owner", err))
	}
	l.logger.Info("ownership transferred", zap.String("owner", from.Hex()))
	return nil
}
