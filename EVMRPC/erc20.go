package EVMRPC

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"gobridgelocker/config"
	"gobridgelocker/locker"
)

const erc20ABI = `[
{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function","stateMutability":"view"},
{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function","stateMutability":"view"},
{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function","stateMutability":"nonpayable"},
{"constant":false,"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transferFrom","outputs":[{"name":"","type":"bool"}],"type":"function","stateMutability":"nonpayable"},
{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function","stateMutability":"nonpayable"}
]`

var ErrReverted = errors.New("transaction reverted")

type ERC20Config struct {
	RPCList []string
	Token   common.Address
	// hex private key of the custody account, without 0x
	PrivateKey string
	ChainID    uint64
	GasLimit   uint64
	// how long to wait for a sent transaction to be mined
	MineTimeout time.Duration
}

// ERC20Ledger moves a real ERC-20 token on behalf of the custody account.
// It only retries the steps before a transaction is broadcast, so a call
// never sends the same transfer twice.
type ERC20Ledger struct {
	rpcList     []string
	token       common.Address
	key         *ecdsa.PrivateKey
	from        common.Address
	chainID     *big.Int
	gasLimit    uint64
	mineTimeout time.Duration
	abi         abi.ABI
	logger      *zap.Logger

	retryInterval time.Duration
}

func NewERC20Ledger(cfg ERC20Config, logger *zap.Logger) (*ERC20Ledger, error) {
	if len(cfg.RPCList) == 0 {
		return nil, ErrNoRPC
	}
	if cfg.Token == (common.Address{}) {
		return nil, errors.New("token address is required")
	}
	if cfg.ChainID == 0 {
		return nil, errors.New("chain id is required")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("error instantiating private key: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, err
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = config.DEFAULT_GAS_LIMIT
	}
	if cfg.MineTimeout <= 0 {
		cfg.MineTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ERC20Ledger{
		rpcList:       cfg.RPCList,
		token:         cfg.Token,
		key:           key,
		from:          crypto.PubkeyToAddress(key.PublicKey),
		chainID:       new(big.Int).SetUint64(cfg.ChainID),
		gasLimit:      cfg.GasLimit,
		mineTimeout:   cfg.MineTimeout,
		abi:           parsed,
		logger:        logger.With(zap.String("token", cfg.Token.Hex())),
		retryInterval: time.Second,
	}, nil
}

// Address is the custody account the ledger signs for.
func (l *ERC20Ledger) Address() common.Address {
	return l.from
}

func (l *ERC20Ledger) contract(client *ethclient.Client) *bind.BoundContract {
	return bind.NewBoundContract(l.token, l.abi, client, client, client)
}

func (l *ERC20Ledger) callUint(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	return WithClient(ctx, l.rpcList, l.logger, func(client *ethclient.Client) (*big.Int, error) {
		var out []interface{}
		if err := l.contract(client).Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
			return nil, err
		}
		if len(out) != 1 {
			return nil, fmt.Errorf("%s: unexpected output", method)
		}
		return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
	})
}

func (l *ERC20Ledger) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return l.callUint(ctx, "balanceOf", account)
}

func (l *ERC20Ledger) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return l.callUint(ctx, "allowance", owner, spender)
}

// Transfer sends amount from the custody account to to and waits until the
// transaction is mined.
func (l *ERC20Ledger) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	return l.transact(ctx, "transfer", to, amount)
}

// TransferFrom spends owner's allowance to the custody account.
func (l *ERC20Ledger) TransferFrom(ctx context.Context, owner, to common.Address, amount *big.Int) error {
	return l.transact(ctx, "transferFrom", owner, to, amount)
}

func (l *ERC20Ledger) transactor(ctx context.Context, client *ethclient.Client) (*bind.TransactOpts, error) {
	nonce, err := client.PendingNonceAt(ctx, l.from)
	if err != nil {
		return nil, fmt.Errorf("error getting nonce for wallet: %w", err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting suggested gas price: %w", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(l.key, l.chainID)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("error instantiating contract call: %w", err))
	}

	auth.Context = ctx
	auth.Nonce = new(big.Int).SetUint64(nonce)
	auth.Value = big.NewInt(0)
	auth.GasLimit = l.gasLimit
	if l.chainID.Uint64() == 1 {
		auth.GasPrice = gasPrice
	} else {
		auth.GasPrice = gasPrice.Mul(gasPrice, big.NewInt(2))
	}
	return auth, nil
}

func (l *ERC20Ledger) transact(ctx context.Context, method string, args ...interface{}) error {
	var (
		client  *ethclient.Client
		auth    *bind.TransactOpts
		attempt int
	)
	prepare := func() error {
		url := l.rpcList[attempt%len(l.rpcList)]
		attempt++

		c, err := ethclient.DialContext(ctx, url)
		if err != nil {
			return err
		}
		a, err := l.transactor(ctx, c)
		if err != nil {
			c.Close()
			l.logger.Warn("cannot prepare transaction", zap.String("url", url), zap.Error(err))
			return err
		}
		client, auth = c, a
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.retryInterval
	b.MaxInterval = 10 * l.retryInterval
	if err := backoff.Retry(prepare, backoff.WithContext(backoff.WithMaxRetries(b, config.EVM_RETRIES), ctx)); err != nil {
		return fmt.Errorf("%w: %s: %w", locker.ErrLedgerUnavailable, method, err)
	}
	defer client.Close()

	// once submitted, the caller going away must not abandon the transaction
	submitCtx := context.WithoutCancel(ctx)
	auth.Context = submitCtx

	tx, err := l.contract(client).Transact(auth, method, args...)
	if err != nil {
		return fmt.Errorf("error calling %s method: %w", method, err)
	}
	l.logger.Info("transaction sent", zap.String("method", method), zap.String("tx", tx.Hash().Hex()))

	mctx, cancel := context.WithTimeout(submitCtx, l.mineTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(mctx, client, tx)
	if err != nil {
		l.logger.Error("transaction not confirmed", zap.String("method", method), zap.String("tx", tx.Hash().Hex()), zap.Error(err))
		return fmt.Errorf("%w: waiting for %s: %w", locker.ErrLedgerUnconfirmed, tx.Hash().Hex(), err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s %s", ErrReverted, method, tx.Hash().Hex())
	}
	return nil
}
