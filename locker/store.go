package locker

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"gobridgelocker/types"
)

// Store persists the locker tables. Implementations do not need to be safe for
// concurrent writers: a Locker is the only writer of its store and serializes
// its own calls.
type Store interface {
	DestinationContract(ctx context.Context, chain types.ChainID) (common.Address, error)
	SetDestinationContract(ctx context.Context, chain types.ChainID, peer common.Address) error
	SourceContract(ctx context.Context, chain types.ChainID) (common.Address, error)
	SetSourceContract(ctx context.Context, chain types.ChainID, peer common.Address) error
	LimitPerDay(ctx context.Context, chain types.ChainID) (*big.Int, error)
	SetLimitPerDay(ctx context.Context, chain types.ChainID, limit *big.Int) error
	Usage(ctx context.Context, dir types.Direction, chain types.ChainID, day uint64) (*big.Int, error)
	SetUsage(ctx context.Context, dir types.Direction, chain types.ChainID, day uint64, used *big.Int) error

	// InternalChainID reports false when the instance was never initialised.
	InternalChainID(ctx context.Context) (types.ChainID, bool, error)
	SetInternalChainID(ctx context.Context, id types.ChainID) error
	Owner(ctx context.Context) (common.Address, error)
	SetOwner(ctx context.Context, owner common.Address) error
	PendingOwner(ctx context.Context) (common.Address, error)
	SetPendingOwner(ctx context.Context, owner common.Address) error

	SaveTransfer(ctx context.Context, rec *types.TransferRecord) error
	Transfers(ctx context.Context, status string) ([]*types.TransferRecord, error)
}

type usageKey struct {
	dir   types.Direction
	chain types.ChainID
	day   uint64
}

// MemoryStore keeps the locker tables in process memory.
type MemoryStore struct {
	mu           sync.RWMutex
	destinations map[types.ChainID]common.Address
	sources      map[types.ChainID]common.Address
	limits       map[types.ChainID]*big.Int
	usage        map[usageKey]*big.Int
	chainID      types.ChainID
	chainIDSet   bool
	owner        common.Address
	pendingOwner common.Address
	transfers    []*types.TransferRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		destinations: make(map[types.ChainID]common.Address),
		sources:      make(map[types.ChainID]common.Address),
		limits:       make(map[types.ChainID]*big.Int),
		usage:        make(map[usageKey]*big.Int),
	}
}

func (s *MemoryStore) DestinationContract(_ context.Context, chain types.ChainID) (common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.destinations[chain], nil
}

func (s *MemoryStore) SetDestinationContract(_ context.Context, chain types.ChainID, peer common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destinations[chain] = peer
	return nil
}

func (s *MemoryStore) SourceContract(_ context.Context, chain types.ChainID) (common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sources[chain], nil
}

func (s *MemoryStore) SetSourceContract(_ context.Context, chain types.ChainID, peer common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[chain] = peer
	return nil
}

func (s *MemoryStore) LimitPerDay(_ context.Context, chain types.ChainID) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if l, ok := s.limits[chain]; ok {
		return new(big.Int).Set(l), nil
	}
	return new(big.Int), nil
}

func (s *MemoryStore) SetLimitPerDay(_ context.Context, chain types.ChainID, limit *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limits[chain] = new(big.Int).Set(limit)
	return nil
}

func (s *MemoryStore) Usage(_ context.Context, dir types.Direction, chain types.ChainID, day uint64) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.usage[usageKey{dir, chain, day}]; ok {
		return new(big.Int).Set(u), nil
	}
	return new(big.Int), nil
}

func (s *MemoryStore) SetUsage(_ context.Context, dir types.Direction, chain types.ChainID, day uint64, used *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[usageKey{dir, chain, day}] = new(big.Int).Set(used)
	return nil
}

func (s *MemoryStore) InternalChainID(_ context.Context) (types.ChainID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chainID, s.chainIDSet, nil
}

func (s *MemoryStore) SetInternalChainID(_ context.Context, id types.ChainID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chainID = id
	s.chainIDSet = true
	return nil
}

func (s *MemoryStore) Owner(_ context.Context) (common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner, nil
}

func (s *MemoryStore) SetOwner(_ context.Context, owner common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owner = owner
	return nil
}

func (s *MemoryStore) PendingOwner(_ context.Context) (common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingOwner, nil
}

func (s *MemoryStore) SetPendingOwner(_ context.Context, owner common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingOwner = owner
	return nil
}

func (s *MemoryStore) SaveTransfer(_ context.Context, rec *types.TransferRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.transfers = append(s.transfers, &cp)
	return nil
}

func (s *MemoryStore) Transfers(_ context.Context, status string) ([]*types.TransferRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.TransferRecord, 0)
	for _, rec := range s.transfers {
		if rec.Status == status {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}
