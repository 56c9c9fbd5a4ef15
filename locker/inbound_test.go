package locker_test

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gobridgelocker/ledger"
	"gobridgelocker/locker"
	"gobridgelocker/types"
)

func TestUnlock_ReleasesFromCustody(t *testing.T) {
	ctx := context.Background()
	br := newBridge(t, 100)
	br.b.token.Mint(lockerB, big.NewInt(500))

	origin := types.Origin{ChainID: chainA, Address: lockerA}
	require.NoError(t, br.b.locker.Unlock(ctx, gatewayB, origin, chainA, big.NewInt(40), bob))

	assert.Equal(t, int64(40), br.b.balance(bob))
	assert.Equal(t, int64(460), br.b.balance(lockerB))
	assert.Equal(t, int64(40), br.b.usage(t, types.Inbound, chainA))

	unlocked, err := br.b.locker.Transfers(ctx, types.StatusUnlocked)
	require.NoError(t, err)
	require.Len(t, unlocked, 1)
	assert.Equal(t, lockerA.Hex(), unlocked[0].From)
	assert.Equal(t, bob.Hex(), unlocked[0].Recipient)
}

func TestUnlock_UntrustedSender(t *testing.T) {
	ctx := context.Background()
	br := newBridge(t, 100)
	br.b.token.Mint(lockerB, big.NewInt(500))

	impostor := common.HexToAddress("0x00000000000000000000000000000000000000cc")

	tests := []struct {
		name   string
		caller common.Address
		origin types.Origin
		source types.ChainID
	}{
		{"caller is not the gateway", stranger, types.Origin{ChainID: chainA, Address: lockerA}, chainA},
		{"origin sender is not the trusted peer", gatewayB, types.Origin{ChainID: chainA, Address: impostor}, chainA},
		{"origin chain differs from claimed chain", gatewayB, types.Origin{ChainID: 5, Address: lockerA}, chainA},
		{"no trusted peer for chain", gatewayB, types.Origin{ChainID: 9, Address: lockerA}, 9},
		{"zero origin on chain without peer", gatewayB, types.Origin{ChainID: 9}, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := br.b.locker.Unlock(ctx, tt.caller, tt.origin, tt.source, big.NewInt(10), bob)
			assert.ErrorIs(t, err, locker.ErrUntrustedSender)

			assert.Equal(t, int64(0), br.b.balance(bob))
			assert.Equal(t, int64(500), br.b.balance(lockerB))
			assert.Equal(t, int64(0), br.b.usage(t, types.Inbound, tt.source))
		})
	}
}

func TestUnlock_LimitExceeded(t *testing.T) {
	ctx := context.Background()
	br := newBridge(t, 100)
	br.b.token.Mint(lockerB, big.NewInt(500))
	origin := types.Origin{ChainID: chainA, Address: lockerA}

	require.NoError(t, br.b.locker.Unlock(ctx, gatewayB, origin, chainA, big.NewInt(100), bob))

	err := br.b.locker.Unlock(ctx, gatewayB, origin, chainA, big.NewInt(1), bob)
	assert.ErrorIs(t, err, locker.ErrLimitExceeded)
	assert.Equal(t, int64(100), br.b.balance(bob))
	assert.Equal(t, int64(100), br.b.usage(t, types.Inbound, chainA))
}

func TestUnlock_InvalidAmount(t *testing.T) {
	ctx := context.Background()
	br := newBridge(t, 100)
	origin := types.Origin{ChainID: chainA, Address: lockerA}

	err := br.b.locker.Unlock(ctx, gatewayB, origin, chainA, big.NewInt(0), bob)
	assert.ErrorIs(t, err, locker.ErrInvalidAmount)
}

func TestUnlock_LedgerFailureRestoresUsage(t *testing.T) {
	ctx := context.Background()
	br := newBridge(t, 100)
	br.b.token.Mint(lockerB, big.NewInt(5))
	origin := types.Origin{ChainID: chainA, Address: lockerA}

	err := br.b.locker.Unlock(ctx, gatewayB, origin, chainA, big.NewInt(10), bob)
	assert.ErrorIs(t, err, locker.ErrLedger)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	assert.Equal(t, int64(0), br.b.usage(t, types.Inbound, chainA))
	assert.Equal(t, int64(5), br.b.balance(lockerB))
}

func TestUnlock_RejectsAmountAboveUint256(t *testing.T) {
	ctx := context.Background()
	br := newBridge(t, 100)
	require.NoError(t, br.b.locker.SetChainLimitPerDay(ctx, owner, chainA, locker.MaxAmount))
	origin := types.Origin{ChainID: chainA, Address: lockerA}

	tooBig := new(big.Int).Add(locker.MaxAmount, big.NewInt(1))
	err := br.b.locker.Unlock(ctx, gatewayB, origin, chainA, tooBig, bob)
	assert.ErrorIs(t, err, locker.ErrInvalidAmount)
	assert.Equal(t, int64(0), br.b.usage(t, types.Inbound, chainA))
}

func TestUnlock_UnavailableLedgerRestoresUsage(t *testing.T) {
	ctx := context.Background()
	br := newBridge(t, 100)
	br.b.token.Mint(lockerB, big.NewInt(500))
	l, fl := br.b.reopen(t, br.clock)
	fl.fail = fmt.Errorf("%w: dial tcp: connection refused", locker.ErrLedgerUnavailable)
	origin := types.Origin{ChainID: chainA, Address: lockerA}

	err := l.Unlock(ctx, gatewayB, origin, chainA, big.NewInt(40), bob)
	assert.ErrorIs(t, err, locker.ErrLedger)
	assert.ErrorIs(t, err, locker.ErrLedgerUnavailable)
	assert.Equal(t, int64(0), br.b.usage(t, types.Inbound, chainA))
	assert.Equal(t, int64(500), br.b.balance(lockerB))
}

func TestUnlock_UnconfirmedReleaseKeepsUsage(t *testing.T) {
	ctx := context.Background()
	br := newBridge(t, 100)
	br.b.token.Mint(lockerB, big.NewInt(500))
	l, fl := br.b.reopen(t, br.clock)
	fl.fail = fmt.Errorf("%w: waiting for 0xabc: context deadline exceeded", locker.ErrLedgerUnconfirmed)
	origin := types.Origin{ChainID: chainA, Address: lockerA}

	err := l.Unlock(ctx, gatewayB, origin, chainA, big.NewInt(40), bob)
	assert.ErrorIs(t, err, locker.ErrLedgerUnconfirmed)
	assert.NotErrorIs(t, err, locker.ErrLedger)
	// the release may still land, so it stays counted
	assert.Equal(t, int64(40), br.b.usage(t, types.Inbound, chainA))

	unlocked, err := l.Transfers(ctx, types.StatusUnlocked)
	require.NoError(t, err)
	assert.Empty(t, unlocked)
}

func TestHandleMessage_RecordsMessageID(t *testing.T) {
	ctx := context.Background()
	br := newBridge(t, 100)
	br.b.token.Mint(lockerB, big.NewInt(500))
	payload, err := locker.EncodeUnlock(chainA, big.NewInt(15), bob)
	require.NoError(t, err)

	require.NoError(t, br.b.locker.HandleMessage(ctx, gatewayB, types.AuthenticatedMessage{
		ID:      "msg-1",
		Origin:  types.Origin{ChainID: chainA, Address: lockerA},
		Payload: payload,
	}))

	unlocked, err := br.b.locker.Transfers(ctx, types.StatusUnlocked)
	require.NoError(t, err)
	require.Len(t, unlocked, 1)
	assert.Equal(t, "msg-1", unlocked[0].MessageID)

	// direct unlocks carry no message
	require.NoError(t, br.b.locker.Unlock(ctx, gatewayB, types.Origin{ChainID: chainA, Address: lockerA}, chainA, big.NewInt(5), bob))
	unlocked, err = br.b.locker.Transfers(ctx, types.StatusUnlocked)
	require.NoError(t, err)
	require.Len(t, unlocked, 2)
	ids := []string{unlocked[0].MessageID, unlocked[1].MessageID}
	assert.ElementsMatch(t, []string{"msg-1", ""}, ids)
}

func TestUnlock_CountersAreIndependentPerDirection(t *testing.T) {
	ctx := context.Background()
	br := newBridge(t, 100)
	br.b.token.Mint(lockerB, big.NewInt(500))
	br.b.fund(alice, 100)
	origin := types.Origin{ChainID: chainA, Address: lockerA}

	require.NoError(t, br.b.locker.Unlock(ctx, gatewayB, origin, chainA, big.NewInt(100), bob))

	// the same chain's limit is still available for locks towards it
	_, err := br.b.locker.SendToChain(ctx, alice, chainA, big.NewInt(100), bob, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(100), br.b.usage(t, types.Inbound, chainA))
	assert.Equal(t, int64(100), br.b.usage(t, types.Outbound, chainA))
}

func TestHandleMessage_InvalidPayload(t *testing.T) {
	ctx := context.Background()
	br := newBridge(t, 100)
	br.b.token.Mint(lockerB, big.NewInt(500))

	err := br.b.locker.HandleMessage(ctx, gatewayB, types.AuthenticatedMessage{
		ID:      "bad",
		Origin:  types.Origin{ChainID: chainA, Address: lockerA},
		Payload: []byte{0x01, 0x02, 0x03},
	})
	assert.ErrorIs(t, err, locker.ErrInvalidPayload)
	assert.Equal(t, int64(500), br.b.balance(lockerB))
}

func TestHandleMessage_ClaimedChainMustMatchOrigin(t *testing.T) {
	ctx := context.Background()
	br := newBridge(t, 100)
	br.b.token.Mint(lockerB, big.NewInt(500))

	// a trusted peer claiming to speak for another chain
	payload, err := locker.EncodeUnlock(7, big.NewInt(10), bob)
	require.NoError(t, err)
	require.NoError(t, br.b.locker.SetSourceChainContract(ctx, owner, 7, lockerA))

	err = br.b.locker.HandleMessage(ctx, gatewayB, types.AuthenticatedMessage{
		Origin:  types.Origin{ChainID: chainA, Address: lockerA},
		Payload: payload,
	})
	assert.ErrorIs(t, err, locker.ErrUntrustedSender)
	assert.Equal(t, int64(0), br.b.balance(bob))
}

func TestUnlock_DayRollover(t *testing.T) {
	ctx := context.Background()
	br := newBridge(t, 100)
	br.b.token.Mint(lockerB, big.NewInt(500))
	origin := types.Origin{ChainID: chainA, Address: lockerA}

	require.NoError(t, br.b.locker.Unlock(ctx, gatewayB, origin, chainA, big.NewInt(100), bob))
	require.ErrorIs(t, br.b.locker.Unlock(ctx, gatewayB, origin, chainA, big.NewInt(1), bob), locker.ErrLimitExceeded)

	br.clock.advance(24 * time.Hour)

	require.NoError(t, br.b.locker.Unlock(ctx, gatewayB, origin, chainA, big.NewInt(100), bob))
	assert.Equal(t, int64(200), br.b.balance(bob))
	assert.Equal(t, int64(100), br.b.usage(t, types.Inbound, chainA))
}
