package locker_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"gobridgelocker/gateway"
	"gobridgelocker/ledger"
	"gobridgelocker/locker"
	"gobridgelocker/types"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000ff")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000b0")

	lockerA  = common.HexToAddress("0x000000000000000000000000000000000000100a")
	lockerB  = common.HexToAddress("0x000000000000000000000000000000000000100b")
	gatewayA = common.HexToAddress("0x000000000000000000000000000000000000200a")
	gatewayB = common.HexToAddress("0x000000000000000000000000000000000000200b")
)

const (
	chainA types.ChainID = 1
	chainB types.ChainID = 2
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

// the middle of some day, far from a rollover
func newClock() *fakeClock {
	return &fakeClock{now: time.Unix(19500*types.SecondsPerDay+12*3600, 0)}
}

type peer struct {
	locker   *locker.Locker
	store    *locker.MemoryStore
	token    *ledger.Memory
	endpoint *gateway.Endpoint
	address  common.Address
	chain    types.ChainID
}

type bridge struct {
	net   *gateway.Network
	clock *fakeClock
	a, b  *peer
}

func newPeer(t *testing.T, net *gateway.Network, clock *fakeClock, chain types.ChainID, address, gw common.Address) *peer {
	t.Helper()
	store := locker.NewMemoryStore()
	token := ledger.NewMemory("CVP")
	endpoint := net.Endpoint(chain, gw)

	l, err := locker.New(context.Background(), locker.Options{
		Store:         store,
		Token:         token.Account(address),
		Gateway:       endpoint,
		Address:       address,
		Owner:         owner,
		NativeChainID: chain,
		Clock:         clock,
	})
	require.NoError(t, err)
	endpoint.Handle(l.HandleMessage)

	return &peer{locker: l, store: store, token: token, endpoint: endpoint, address: address, chain: chain}
}

// newBridge returns two peered lockers, chain 1 (a) and chain 2 (b), each
// routing to and trusting the other with a daily limit of limit.
func newBridge(t *testing.T, limit int64) *bridge {
	t.Helper()
	net := gateway.NewNetwork()
	clock := newClock()
	br := &bridge{
		net:   net,
		clock: clock,
		a:     newPeer(t, net, clock, chainA, lockerA, gatewayA),
		b:     newPeer(t, net, clock, chainB, lockerB, gatewayB),
	}
	br.a.peerWith(t, br.b, limit)
	br.b.peerWith(t, br.a, limit)
	return br
}

func (p *peer) peerWith(t *testing.T, other *peer, limit int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, p.locker.SetDestinationChainContract(ctx, owner, other.chain, other.address))
	require.NoError(t, p.locker.SetSourceChainContract(ctx, owner, other.chain, other.address))
	require.NoError(t, p.locker.SetChainLimitPerDay(ctx, owner, other.chain, big.NewInt(limit)))
}

// fund gives account amount tokens approved to the locker.
func (p *peer) fund(account common.Address, amount int64) {
	p.token.Mint(account, big.NewInt(amount))
	p.token.Approve(account, p.address, big.NewInt(amount))
}

func (p *peer) balance(account common.Address) int64 {
	return p.token.Balance(account).Int64()
}

func (p *peer) usage(t *testing.T, dir types.Direction, chain types.ChainID) int64 {
	t.Helper()
	u, err := p.locker.Usage(context.Background(), dir, chain)
	require.NoError(t, err)
	return u.Int64()
}

// failingLedger passes calls through to Ledger until fail is set.
type failingLedger struct {
	locker.Ledger
	fail error
}

func (f *failingLedger) TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if f.fail != nil {
		return f.fail
	}
	return f.Ledger.TransferFrom(ctx, from, to, amount)
}

func (f *failingLedger) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	if f.fail != nil {
		return f.fail
	}
	return f.Ledger.Transfer(ctx, to, amount)
}

// reopen starts a second locker over the peer's state whose ledger calls
// go through the returned failingLedger.
func (p *peer) reopen(t *testing.T, clock *fakeClock) (*locker.Locker, *failingLedger) {
	t.Helper()
	fl := &failingLedger{Ledger: p.token.Account(p.address)}
	l, err := locker.New(context.Background(), locker.Options{
		Store:         p.store,
		Token:         fl,
		Gateway:       p.endpoint,
		Address:       p.address,
		NativeChainID: p.chain,
		Clock:         clock,
	})
	require.NoError(t, err)
	return l, fl
}
