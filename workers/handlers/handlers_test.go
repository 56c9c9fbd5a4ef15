package handlers

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gobridgelocker/gateway"
	"gobridgelocker/ledger"
	"gobridgelocker/locker"
	"gobridgelocker/types"
)

var (
	lockerAddr = common.HexToAddress("0x000000000000000000000000000000000000100a")
	peerAddr   = common.HexToAddress("0x000000000000000000000000000000000000100b")
	recipient  = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

type fixture struct {
	api      *API
	router   chi.Router
	locker   *locker.Locker
	token    *ledger.Memory
	net      *gateway.Network
	owner    *ecdsa.PrivateKey
	user     *ecdsa.PrivateKey
	nonce    int
	unhealth error
}

func (f *fixture) Ping(context.Context) error { return f.unhealth }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	owner, err := crypto.GenerateKey()
	require.NoError(t, err)
	user, err := crypto.GenerateKey()
	require.NoError(t, err)

	net := gateway.NewNetwork()
	net.Endpoint(2, common.HexToAddress("0x000000000000000000000000000000000000200b"))
	token := ledger.NewMemory("CVP")
	l, err := locker.New(context.Background(), locker.Options{
		Store:         locker.NewMemoryStore(),
		Token:         token.Account(lockerAddr),
		Gateway:       net.Endpoint(1, common.HexToAddress("0x000000000000000000000000000000000000200a")),
		Address:       lockerAddr,
		Owner:         crypto.PubkeyToAddress(owner.PublicKey),
		NativeChainID: 1,
	})
	require.NoError(t, err)

	f := &fixture{locker: l, token: token, net: net, owner: owner, user: user}
	f.api = New(Options{Locker: l, Store: f})
	f.router = chi.NewRouter()
	f.api.Routes(f.router)
	return f
}

// sign fills the auth fields of req for action.
func (f *fixture) sign(t *testing.T, key *ecdsa.PrivateKey, action string, req SignedRequest) {
	t.Helper()
	f.nonce++
	require.NoError(t, Sign(req, action, lockerAddr, fmt.Sprint(f.nonce), time.Now().Add(time.Minute), key))
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) admin(t *testing.T, key *ecdsa.PrivateKey, path, action string, req SignedRequest) *httptest.ResponseRecorder {
	t.Helper()
	f.sign(t, key, action, req)
	return f.do(t, http.MethodPost, path, req)
}

// peer sets up a route to chain 2 with limit.
func (f *fixture) peer(t *testing.T, limit int64) {
	t.Helper()
	rec := f.admin(t, f.owner, "/admin/destination", ActionSetDestination, &ContractRequest{ChainID: 2, Contract: peerAddr.Hex()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = f.admin(t, f.owner, "/admin/source", ActionSetSource, &ContractRequest{ChainID: 2, Contract: peerAddr.Hex()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = f.admin(t, f.owner, "/admin/limit", ActionSetLimit, &LimitRequest{ChainID: 2, Limit: fmt.Sprint(limit)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (f *fixture) fund(key *ecdsa.PrivateKey, amount int64) common.Address {
	addr := crypto.PubkeyToAddress(key.PublicKey)
	f.token.Mint(addr, big.NewInt(amount))
	f.token.Approve(addr, lockerAddr, big.NewInt(amount))
	return addr
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestSend(t *testing.T) {
	f := newFixture(t)
	f.peer(t, 100)
	user := f.fund(f.user, 100)

	rec := f.admin(t, f.user, "/send", ActionSend, &SendRequest{Destination: 2, Amount: "60", Recipient: recipient.Hex()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[APIResponseSend](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.MessageID)

	assert.Equal(t, int64(40), f.token.Balance(user).Int64())
	require.Len(t, f.net.Pending(), 1)

	rec = f.admin(t, f.user, "/send", ActionSend, &SendRequest{Destination: 2, Amount: "41", Recipient: recipient.Hex()})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Limit reached")

	rec = f.admin(t, f.user, "/send", ActionSend, &SendRequest{Destination: 9, Amount: "1", Recipient: recipient.Hex()})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.admin(t, f.user, "/send", ActionSend, &SendRequest{Destination: 2, Amount: "0", Recipient: recipient.Hex()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.admin(t, f.user, "/send", ActionSend, &SendRequest{Destination: 2, Amount: "ten", Recipient: recipient.Hex()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "amount", decode[APIResponse](t, rec).Field)

	// 2^256 does not fit a message
	rec = f.admin(t, f.user, "/send", ActionSend, &SendRequest{Destination: 2, Recipient: recipient.Hex(),
		Amount: "115792089237316195423570985008687907853269984665640564039457584007913129639936"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "amount", decode[APIResponse](t, rec).Field)
	assert.Equal(t, int64(40), f.token.Balance(user).Int64())
}

func TestParseAmount(t *testing.T) {
	largest := locker.MaxAmount.String()
	tooBig := new(big.Int).Add(locker.MaxAmount, big.NewInt(1)).String()

	v, err := parseAmount(largest, false)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Cmp(locker.MaxAmount))

	v, err = parseAmount("", true)
	require.NoError(t, err)
	assert.Nil(t, v)

	for _, s := range []string{tooBig, "-1", "1.5", "0x10", ""} {
		_, err := parseAmount(s, false)
		assert.Error(t, err, s)
	}
}

func TestSend_LedgerAndGatewayErrors(t *testing.T) {
	f := newFixture(t)
	f.peer(t, 100)
	user := crypto.PubkeyToAddress(f.user.PublicKey)
	f.token.Mint(user, big.NewInt(10)) // no approval

	rec := f.admin(t, f.user, "/send", ActionSend, &SendRequest{Destination: 2, Amount: "5", Recipient: recipient.Hex()})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	f.fund(f.user, 10)
	f.net.FailSends(errors.New("down"))
	rec = f.admin(t, f.user, "/send", ActionSend, &SendRequest{Destination: 2, Amount: "5", Recipient: recipient.Hex()})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAuth_Rejections(t *testing.T) {
	f := newFixture(t)
	f.peer(t, 100)

	t.Run("tampered params", func(t *testing.T) {
		req := &LimitRequest{ChainID: 2, Limit: "5"}
		f.sign(t, f.owner, ActionSetLimit, req)
		req.Limit = "500"
		rec := f.do(t, http.MethodPost, "/admin/limit", req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("signed for another action", func(t *testing.T) {
		req := &ContractRequest{ChainID: 2, Contract: peerAddr.Hex()}
		f.sign(t, f.owner, ActionSetSource, req)
		rec := f.do(t, http.MethodPost, "/admin/destination", req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("replayed nonce", func(t *testing.T) {
		req := &ChainIDRequest{ChainID: 1}
		f.sign(t, f.owner, ActionSetChainID, req)
		rec := f.do(t, http.MethodPost, "/admin/chain-id", req)
		require.Equal(t, http.StatusOK, rec.Code)
		rec = f.do(t, http.MethodPost, "/admin/chain-id", req)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("expired", func(t *testing.T) {
		req := &ChainIDRequest{ChainID: 1}
		f.sign(t, f.owner, ActionSetChainID, req)
		f.api.now = func() time.Time { return time.Now().Add(time.Hour) }
		defer func() { f.api.now = time.Now }()
		rec := f.do(t, http.MethodPost, "/admin/chain-id", req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "deadline", decode[APIResponse](t, rec).Field)
	})

	t.Run("deadline too far", func(t *testing.T) {
		req := &ChainIDRequest{ChainID: 1}
		f.sign(t, f.owner, ActionSetChainID, req)
		f.api.now = func() time.Time { return time.Now().Add(-time.Hour) }
		defer func() { f.api.now = time.Now }()
		rec := f.do(t, http.MethodPost, "/admin/chain-id", req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/admin/chain-id", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		bad := &ChainIDRequest{ChainID: 1}
		f.sign(t, f.owner, ActionSetChainID, bad)
		bad.Signature = "0x1234"
		assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/admin/chain-id", bad).Code)
	})
}

func TestAdmin_NotOwner(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		path   string
		action string
		req    SignedRequest
	}{
		{"/admin/destination", ActionSetDestination, &ContractRequest{ChainID: 2, Contract: peerAddr.Hex()}},
		{"/admin/source", ActionSetSource, &ContractRequest{ChainID: 2, Contract: peerAddr.Hex()}},
		{"/admin/limit", ActionSetLimit, &LimitRequest{ChainID: 2, Limit: "5"}},
		{"/admin/chain-id", ActionSetChainID, &ChainIDRequest{ChainID: 7}},
		{"/admin/ownership/transfer", ActionTransferOwnership, &OwnershipRequest{NewOwner: recipient.Hex()}},
		{"/admin/ownership/accept", ActionAcceptOwnership, &AcceptOwnershipRequest{}},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			rec := f.admin(t, f.user, tt.path, tt.action, tt.req)
			assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
		})
	}

	rec := f.do(t, http.MethodGet, "/routes/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	route := decode[APIRouteResponse](t, rec)
	assert.Empty(t, route.Destination)
	assert.Equal(t, "0", route.LimitPerDay)
}

func TestOwnershipTransfer(t *testing.T) {
	f := newFixture(t)
	next := crypto.PubkeyToAddress(f.user.PublicKey)

	rec := f.admin(t, f.owner, "/admin/ownership/transfer", ActionTransferOwnership, &OwnershipRequest{NewOwner: next.Hex()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	owner := decode[APIOwnerResponse](t, f.do(t, http.MethodGet, "/owner", nil))
	assert.Equal(t, crypto.PubkeyToAddress(f.owner.PublicKey).Hex(), owner.Owner)
	assert.Equal(t, next.Hex(), owner.PendingOwner)

	rec = f.admin(t, f.user, "/admin/ownership/accept", ActionAcceptOwnership, &AcceptOwnershipRequest{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	owner = decode[APIOwnerResponse](t, f.do(t, http.MethodGet, "/owner", nil))
	assert.Equal(t, next.Hex(), owner.Owner)
	assert.Empty(t, owner.PendingOwner)
}

func TestReads(t *testing.T) {
	f := newFixture(t)
	f.peer(t, 100)
	f.fund(f.user, 100)

	rec := f.admin(t, f.user, "/send", ActionSend, &SendRequest{Destination: 2, Amount: "30", Recipient: recipient.Hex()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.admin(t, f.owner, "/admin/chain-id", ActionSetChainID, &ChainIDRequest{ChainID: 100})
	require.Equal(t, http.StatusOK, rec.Code)
	chain := decode[APIChainIDResponse](t, f.do(t, http.MethodGet, "/chain-id", nil))
	assert.Equal(t, uint64(100), chain.ChainID)

	state := decode[APIStateResponse](t, f.do(t, http.MethodGet, "/state", nil))
	assert.Equal(t, "ok", state.Status)
	assert.Equal(t, lockerAddr.Hex(), state.Address)
	assert.Equal(t, "30", state.Balance)

	rec = f.do(t, http.MethodGet, "/balance", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "30", rec.Body.String())

	route := decode[APIRouteResponse](t, f.do(t, http.MethodGet, "/routes/2", nil))
	assert.Equal(t, peerAddr.Hex(), route.Destination)
	assert.Equal(t, peerAddr.Hex(), route.Source)
	assert.Equal(t, "100", route.LimitPerDay)
	assert.Equal(t, "30", route.UsageOutbound)
	assert.Equal(t, "0", route.UsageInbound)
	assert.Equal(t, f.locker.Today(), route.Day)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/routes/two", nil).Code)

	transfers := decode[APITransfersResponse](t, f.do(t, http.MethodGet, "/transfers/locked", nil))
	require.Len(t, transfers.Transfers, 1)
	assert.Equal(t, types.StatusLocked, transfers.Transfers[0].Status)
	assert.Equal(t, "30", transfers.Transfers[0].Amount)

	transfers = decode[APITransfersResponse](t, f.do(t, http.MethodGet, "/transfers/unlocked", nil))
	assert.Empty(t, transfers.Transfers)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/transfers/pending", nil).Code)
}

// brokenTransfers fails every transfer listing.
type brokenTransfers struct {
	*locker.MemoryStore
}

func (brokenTransfers) Transfers(context.Context, string) ([]*types.TransferRecord, error) {
	return nil, errors.New("connection reset")
}

func TestGetTransfers_StoreFailure(t *testing.T) {
	owner, err := crypto.GenerateKey()
	require.NoError(t, err)
	l, err := locker.New(context.Background(), locker.Options{
		Store:         brokenTransfers{MemoryStore: locker.NewMemoryStore()},
		Token:         ledger.NewMemory("CVP").Account(lockerAddr),
		Gateway:       gateway.NewNetwork().Endpoint(1, common.HexToAddress("0x000000000000000000000000000000000000200a")),
		Address:       lockerAddr,
		Owner:         crypto.PubkeyToAddress(owner.PublicKey),
		NativeChainID: 1,
	})
	require.NoError(t, err)
	r := chi.NewRouter()
	New(Options{Locker: l}).Routes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transfers/locked", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[APIResponse](t, rec)
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, "internal error", body.Message)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", nil).Code)

	f.unhealth = errors.New("connection refused")
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/health", nil).Code)
}

func TestMemoryNonces_Expire(t *testing.T) {
	m := NewMemoryNonces()
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }
	signer := common.HexToAddress("0x01")

	ok, err := m.ReserveNonce(context.Background(), signer, "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = m.ReserveNonce(context.Background(), signer, "a", time.Minute)
	assert.False(t, ok)

	now = now.Add(time.Minute)
	ok, _ = m.ReserveNonce(context.Background(), signer, "a", time.Minute)
	assert.True(t, ok)
}

func TestStatusOf(t *testing.T) {
	tests := map[error]int{
		locker.ErrNotOwner:          http.StatusForbidden,
		locker.ErrUntrustedSender:   http.StatusForbidden,
		locker.ErrNoRoute:           http.StatusNotFound,
		locker.ErrLimitExceeded:     http.StatusTooManyRequests,
		locker.ErrLedgerUnconfirmed: http.StatusGatewayTimeout,
		locker.ErrLedger:            http.StatusUnprocessableEntity,
		locker.ErrInvalidAmount:     http.StatusBadRequest,
		locker.ErrInvalidArgument:   http.StatusBadRequest,
		locker.ErrGateway:           http.StatusBadGateway,
		locker.ErrStore:             http.StatusInternalServerError,
	}
	for kind, code := range tests {
		assert.Equal(t, code, statusOf(&locker.Error{Kind: kind}), kind.Error())
	}
}
