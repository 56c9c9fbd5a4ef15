package main

import (
	"context"
	"errors"
	"flag"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"gobridgelocker/EVMRPC"
	"gobridgelocker/config"
	"gobridgelocker/gateway"
	"gobridgelocker/ledger"
	"gobridgelocker/locker"
	"gobridgelocker/logger"
	"gobridgelocker/redis"
	"gobridgelocker/types"
	"gobridgelocker/workers"
	"gobridgelocker/workers/handlers"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to the yaml config")
	flag.Parse()

	config.Init(*configPath)
	cfg := &config.Config

	if err := logger.Initialize(logger.Config{
		Debug:     cfg.Debug,
		SentryDSN: cfg.SentryDSN,
		Service:   "bridge-locker",
	}); err != nil {
		panic(err)
	}
	defer logger.Flush(2 * time.Second)

	logger.Info("Starting bridge locker",
		zap.String("locker", cfg.Locker.Address),
		zap.Uint64("nativeChainId", cfg.Locker.NativeChainID))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error(err)
		logger.Flush(2 * time.Second)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Configuration) error {
	self := common.HexToAddress(cfg.Locker.Address)
	chainID := types.ChainID(cfg.Locker.InternalChainID)
	if chainID == 0 {
		chainID = types.ChainID(cfg.Locker.NativeChainID)
	}

	// persistence: redis when configured, process memory otherwise
	var store locker.Store
	var nonces handlers.NonceGuard
	var pinger handlers.Pinger
	if cfg.Server.RedisHost != "" {
		pool := redis.NewPool(cfg.Server.RedisHost, cfg.Server.RedisPort)
		defer pool.Close()
		rs := redis.NewStore(pool, self.Hex())
		if err := rs.Ping(ctx); err != nil {
			return err
		}
		store, nonces, pinger = rs, rs, rs
	} else {
		logger.Warn("no redis configured, locker state lives in memory only")
		store = locker.NewMemoryStore()
	}

	var token locker.Ledger
	if len(cfg.EVM.RPCList) > 0 {
		erc20, err := EVMRPC.NewERC20Ledger(EVMRPC.ERC20Config{
			RPCList:    cfg.EVM.RPCList,
			Token:      common.HexToAddress(cfg.Locker.Token),
			PrivateKey: cfg.EVM.PrivateKey,
			ChainID:    cfg.Locker.NativeChainID,
			GasLimit:   cfg.EVM.GasLimit,
		}, logger.Named("erc20"))
		if err != nil {
			return err
		}
		if erc20.Address() != self {
			return errors.New("EVM private key does not belong to locker.address")
		}
		token = erc20
	} else {
		logger.Warn("no EVM rpc configured, using the in-memory token ledger")
		token = ledger.NewMemory("TOKEN").Account(self)
	}

	gatewayAddress := common.HexToAddress(cfg.Locker.Gateway)
	var natsGateway *gateway.NATS
	var loopback *gateway.Network
	var endpoint *gateway.Endpoint
	var gw locker.Gateway
	if cfg.NATS.URL != "" {
		g, err := gateway.DialNATS(gateway.NATSConfig{
			URL:           cfg.NATS.URL,
			Stream:        cfg.NATS.Stream,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			Durable:       cfg.NATS.Durable,
			ChainID:       chainID,
			Address:       gatewayAddress,
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		}, logger.Named("gateway"))
		if err != nil {
			return err
		}
		defer g.Close()
		natsGateway, gw = g, g
	} else {
		logger.Warn("no NATS configured, using the in-process loopback gateway")
		loopback = gateway.NewNetwork()
		endpoint = loopback.Endpoint(chainID, gatewayAddress)
		gw = endpoint
		for _, p := range cfg.Peers {
			loopback.Endpoint(types.ChainID(p.ChainID), common.Address{})
		}
	}

	l, err := locker.New(ctx, locker.Options{
		Store:           store,
		Token:           token,
		Gateway:         gw,
		Address:         self,
		Owner:           common.HexToAddress(cfg.Locker.Owner),
		InternalChainID: types.ChainID(cfg.Locker.InternalChainID),
		NativeChainID:   types.ChainID(cfg.Locker.NativeChainID),
		Logger:          logger.Named("locker"),
	})
	if err != nil {
		return err
	}
	applyPeers(ctx, l, cfg)

	if natsGateway != nil {
		go func() {
			if err := workers.Worker_consumeGateway(ctx, natsGateway, l, logger.Named("consumer")); err != nil {
				logger.Error(err)
			}
		}()
	} else {
		endpoint.Handle(workers.GatewayHandler(l, logger.Named("consumer")))
		go deliverLoopback(ctx, loopback)
	}
	go workers.Worker_monitorCustody(ctx, l, cfg.CustodyPollInterval, logger.Named("custody"))

	api := handlers.New(handlers.Options{
		Locker:        l,
		Nonces:        nonces,
		Store:         pinger,
		Logger:        logger.Named("api"),
		MaxRequestTTL: cfg.MaxRequestTTL,
	})

	// HTTP serving is the main worker thread
	return workers.Worker_HTTP(ctx, workers.HTTPConfig{
		Listen:   cfg.Server.Listen,
		UseSSL:   cfg.Server.UseSSL,
		CertFile: cfg.Server.CertFile,
		KeyFile:  cfg.Server.KeyFile,
	}, workers.NewRouter(api, logger.Named("http")), logger.Named("http"))
}

// applyPeers registers the configured peers on behalf of the configured
// owner. Peers the owner cannot change any more are skipped with a warning.
func applyPeers(ctx context.Context, l *locker.Locker, cfg *config.Configuration) {
	owner := common.HexToAddress(cfg.Locker.Owner)
	for _, p := range cfg.Peers {
		chain := types.ChainID(p.ChainID)
		peer := common.HexToAddress(p.Contract)
		log := logger.Default().With(zap.Stringer("chainId", chain), zap.String("peer", peer.Hex()))

		err := l.SetDestinationChainContract(ctx, owner, chain, peer)
		if err == nil {
			err = l.SetSourceChainContract(ctx, owner, chain, peer)
		}
		if err == nil {
			var limit *big.Int
			limit, err = p.Limit()
			if err == nil && limit != nil {
				err = l.SetChainLimitPerDay(ctx, owner, chain, limit)
			}
		}
		if err != nil {
			log.Warn("cannot apply peer config", zap.Error(err))
			continue
		}
		log.Info("peer configured")
	}
}

// deliverLoopback drains the in-process gateway queue once a second. Messages
// to peer chains have no receiver in this process and are only logged.
func deliverLoopback(ctx context.Context, n *gateway.Network) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := n.DeliverAll(ctx); err != nil {
			logger.Warn("loopback delivery", zap.Error(err))
		}
	}
}
