package workers

import (
	"context"
	"math/big"
	"time"

	"go.uber.org/zap"

	"gobridgelocker/locker"
	"gobridgelocker/metrics"
)

// Worker_monitorCustody publishes the custody balance every interval.
func Worker_monitorCustody(ctx context.Context, l *locker.Locker, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		pollCustody(ctx, l, logger)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func pollCustody(ctx context.Context, l *locker.Locker, logger *zap.Logger) {
	balance, err := l.CustodyBalance(ctx)
	if err != nil {
		logger.Warn("error getting custody balance", zap.Error(err))
		return
	}
	f, _ := new(big.Float).SetInt(balance).Float64()
	metrics.CustodyBalance.Set(f)
	logger.Debug("custody balance", zap.String("balance", balance.String()))
}
