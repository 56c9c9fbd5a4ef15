package locker

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"gobridgelocker/metrics"
	"gobridgelocker/types"
)

// Ledger is the fungible token the locker holds in custody. Transfer moves
// tokens out of the locker's own account; TransferFrom spends an allowance the
// owner granted to the locker.
type Ledger interface {
	TransferFrom(ctx context.Context, owner, to common.Address, amount *big.Int) error
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
}

// Gateway is the cross-chain messaging transport. Address is the account the
// gateway uses when it calls into the locker on delivery.
type Gateway interface {
	Address() common.Address
	Send(ctx context.Context, from common.Address, destination types.ChainID, target common.Address, payload []byte, executionFee *big.Int) (*types.DispatchReceipt, error)
}

// Clock supplies the time used for day indexes
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Options configure a new Locker.
type Options struct {
	Store   Store
	Token   Ledger
	Gateway Gateway
	// Address is the locker's own account: custody holder and message sender
	Address common.Address
	// Owner becomes the owner of a freshly initialised store
	Owner common.Address
	// InternalChainID is used on first initialisation; zero falls back to NativeChainID
	InternalChainID types.ChainID
	NativeChainID   types.ChainID
	Clock           Clock
	Logger          *zap.Logger
}

// Locker is one bridge instance. All mutating calls are serialized.
type Locker struct {
	mu      sync.Mutex
	store   Store
	token   Ledger
	gateway Gateway
	address common.Address
	clock   Clock
	logger  *zap.Logger
}

// New builds a locker over opts.Store. A store that was initialised before
// keeps its owner and chain id; otherwise both are set from opts.
func New(ctx context.Context, opts Options) (*Locker, error) {
	if opts.Store == nil || opts.Token == nil || opts.Gateway == nil {
		return nil, errors.New("locker: store, token and gateway are required")
	}
	if opts.Address == (common.Address{}) {
		return nil, errors.New("locker: instance address is required")
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	l := &Locker{
		store:   opts.Store,
		token:   opts.Token,
		gateway: opts.Gateway,
		address: opts.Address,
		clock:   opts.Clock,
		logger:  opts.Logger.With(zap.String("locker", opts.Address.Hex())),
	}

	id, initialised, err := opts.Store.InternalChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("locker: read chain id: %w", err)
	}
	if initialised {
		owner, err := opts.Store.Owner(ctx)
		if err != nil {
			return nil, fmt.Errorf("locker: read owner: %w", err)
		}
		l.logger.Info("resumed locker state", zap.Stringer("chainId", id), zap.String("owner", owner.Hex()))
		return l, nil
	}

	if opts.Owner == (common.Address{}) {
		return nil, errors.New("locker: owner is required")
	}
	id = opts.InternalChainID
	if id == 0 {
		id = opts.NativeChainID
	}
	if id == 0 {
		return nil, errors.New("locker: neither internal nor native chain id given")
	}
	if err := opts.Store.SetOwner(ctx, opts.Owner); err != nil {
		return nil, fmt.Errorf("locker: set owner: %w", err)
	}
	if err := opts.Store.SetInternalChainID(ctx, id); err != nil {
		return nil, fmt.Errorf("locker: set chain id: %w", err)
	}
	l.logger.Info("initialised locker", zap.Stringer("chainId", id), zap.String("owner", opts.Owner.Hex()))
	return l, nil
}

// Address is the locker's own account.
func (l *Locker) Address() common.Address {
	return l.address
}

// GatewayAddress is the only caller allowed to deliver unlocks.
func (l *Locker) GatewayAddress() common.Address {
	return l.gateway.Address()
}

// ChainID reports the internal chain id.
func (l *Locker) ChainID(ctx context.Context) (types.ChainID, error) {
	id, _, err := l.store.InternalChainID(ctx)
	return id, err
}

func (l *Locker) Owner(ctx context.Context) (common.Address, error) {
	return l.store.Owner(ctx)
}

func (l *Locker) PendingOwner(ctx context.Context) (common.Address, error) {
	return l.store.PendingOwner(ctx)
}

func (l *Locker) DestinationChainContract(ctx context.Context, chain types.ChainID) (common.Address, error) {
	return l.store.DestinationContract(ctx, chain)
}

func (l *Locker) SourceChainContract(ctx context.Context, chain types.ChainID) (common.Address, error) {
	return l.store.SourceContract(ctx, chain)
}

func (l *Locker) ChainLimitPerDay(ctx context.Context, chain types.ChainID) (*big.Int, error) {
	return l.store.LimitPerDay(ctx, chain)
}

// Usage is the volume already moved today in one direction for chain.
func (l *Locker) Usage(ctx context.Context, dir types.Direction, chain types.ChainID) (*big.Int, error) {
	return l.store.Usage(ctx, dir, chain, l.today())
}

// UsageOn is Usage for an explicit day index.
func (l *Locker) UsageOn(ctx context.Context, dir types.Direction, chain types.ChainID, day uint64) (*big.Int, error) {
	return l.store.Usage(ctx, dir, chain, day)
}

// CustodyBalance is the token balance held by the locker.
func (l *Locker) CustodyBalance(ctx context.Context) (*big.Int, error) {
	return l.token.BalanceOf(ctx, l.address)
}

func (l *Locker) Transfers(ctx context.Context, status string) ([]*types.TransferRecord, error) {
	return l.store.Transfers(ctx, status)
}

// Today is the current day index used for usage counters.
func (l *Locker) Today() uint64 {
	return l.today()
}

func (l *Locker) today() uint64 {
	return types.DayIndex(l.clock.Now().Unix())
}

// reserve checks the daily limit for chain and returns the current and the
// resulting usage. Nothing is written.
func (l *Locker) reserve(ctx context.Context, dir types.Direction, chain types.ChainID, day uint64, amount *big.Int) (used, next *big.Int, err error) {
	limit, err := l.store.LimitPerDay(ctx, chain)
	if err != nil {
		return nil, nil, storeError("read limit", err)
	}
	used, err = l.store.Usage(ctx, dir, chain, day)
	if err != nil {
		return nil, nil, storeError("read usage", err)
	}
	next = new(big.Int).Add(used, amount)
	if limit.Sign() == 0 || next.Cmp(limit) > 0 {
		return nil, nil, &Error{
			Kind:    ErrLimitExceeded,
			ChainID: chain,
			Amount:  new(big.Int).Set(amount),
			Reason:  fmt.Sprintf("%s usage %s of %s", dir, used, limit),
		}
	}
	return used, next, nil
}

func validAmount(amount *big.Int) bool {
	return amount != nil && amount.Sign() > 0 && amount.Cmp(MaxAmount) <= 0
}

func (l *Locker) record(ctx context.Context, rec *types.TransferRecord) {
	rec.ID = uuid.New().String()
	rec.TsCreated = l.clock.Now().Unix()
	if err := l.store.SaveTransfer(ctx, rec); err != nil {
		// the transfer itself already happened
		l.logger.Error("cannot save transfer record", zap.Error(err), zap.Any("record", rec))
	}
	metrics.Transfers.WithLabelValues(string(rec.Direction), rec.ChainID.String()).Inc()
}

func (l *Locker) reject(op string, err error) error {
	kind := "unknown"
	if k := KindOf(err); k != nil {
		kind = k.Error()
	}
	metrics.Rejections.WithLabelValues(op, kind).Inc()
	l.logger.Warn("rejected", zap.String("op", op), zap.Error(err))
	return err
}
