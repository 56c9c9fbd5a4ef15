package EVMRPC

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

var ErrNoRPC = errors.New("no rpc endpoint configured")

// WithClient runs f against each endpoint of rpcList in turn until one
// succeeds. The error of the last attempt is returned.
func WithClient[T any](ctx context.Context, rpcList []string, logger *zap.Logger, f func(client *ethclient.Client) (T, error)) (res T, err error) {
	if len(rpcList) == 0 {
		err = ErrNoRPC
		return
	}
	var client *ethclient.Client
	for _, url := range rpcList {
		client, err = ethclient.DialContext(ctx, url)
		if err != nil {
			logger.Warn("error connecting to rpc", zap.String("url", url), zap.Error(err))
			continue
		}

		res, err = f(client)
		client.Close()
		if err == nil {
			return
		}
		logger.Warn("rpc call failed", zap.String("url", url), zap.Error(err))
		if ctx.Err() != nil {
			return
		}
	}
	return
}
