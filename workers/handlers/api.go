package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi"
	"go.uber.org/zap"

	"gobridgelocker/locker"
)

// NonceGuard remembers which request nonces a signer already used.
type NonceGuard interface {
	ReserveNonce(ctx context.Context, signer common.Address, nonce string, ttl time.Duration) (bool, error)
}

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// API serves one locker over HTTP.
type API struct {
	locker *locker.Locker
	nonces NonceGuard
	store  Pinger
	logger *zap.Logger
	maxTTL time.Duration
	now    func() time.Time
}

type Options struct {
	Locker *locker.Locker
	Nonces NonceGuard
	// optional, checked by the health handler
	Store  Pinger
	Logger *zap.Logger
	// signed requests may not have a deadline further away than this
	MaxRequestTTL time.Duration
}

func New(opts Options) *API {
	if opts.Nonces == nil {
		opts.Nonces = NewMemoryNonces()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxRequestTTL <= 0 {
		opts.MaxRequestTTL = 15 * time.Minute
	}
	return &API{
		locker: opts.Locker,
		nonces: opts.Nonces,
		store:  opts.Store,
		logger: opts.Logger,
		maxTTL: opts.MaxRequestTTL,
		now:    time.Now,
	}
}

// Routes registers the API on r.
func (a *API) Routes(r chi.Router) {
	r.Get("/state", a.State)
	r.Get("/health", a.HealthCheck)
	r.Get("/chain-id", a.ChainID)
	r.Get("/owner", a.Owner)
	r.Get("/routes/{chainId}", a.Route)
	r.Get("/balance", a.Balance)
	r.Get("/transfers/{status}", a.GetTransfers)

	r.Post("/send", a.Send)
	r.Route("/admin", func(r chi.Router) {
		r.Post("/destination", a.SetDestination)
		r.Post("/source", a.SetSource)
		r.Post("/limit", a.SetLimit)
		r.Post("/chain-id", a.SetChainID)
		r.Post("/ownership/transfer", a.TransferOwnership)
		r.Post("/ownership/accept", a.AcceptOwnership)
	})
}

// MemoryNonces is a NonceGuard for a single process.
type MemoryNonces struct {
	mu   sync.Mutex
	used map[string]time.Time
	now  func() time.Time
}

func NewMemoryNonces() *MemoryNonces {
	return &MemoryNonces{used: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryNonces) ReserveNonce(_ context.Context, signer common.Address, nonce string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, exp := range m.used {
		if !now.Before(exp) {
			delete(m.used, k)
		}
	}
	key := signer.Hex() + ":" + nonce
	if _, ok := m.used[key]; ok {
		return false, nil
	}
	m.used[key] = now.Add(ttl)
	return true, nil
}
