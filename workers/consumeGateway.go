package workers

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"gobridgelocker/gateway"
	"gobridgelocker/locker"
	"gobridgelocker/metrics"
	"gobridgelocker/types"
)

// GatewayHandler feeds gateway deliveries to l. Store failures and ledger
// outages before anything was submitted are handed back as retryable; every
// other rejection is final.
func GatewayHandler(l *locker.Locker, logger *zap.Logger) gateway.Handler {
	return func(ctx context.Context, caller common.Address, msg types.AuthenticatedMessage) error {
		if msg.Target != (common.Address{}) && msg.Target != l.Address() {
			metrics.GatewayMessages.WithLabelValues("misaddressed").Inc()
			logger.Warn("message for another locker", zap.String("id", msg.ID), zap.String("target", msg.Target.Hex()))
			return fmt.Errorf("message %s is addressed to %s", msg.ID, msg.Target.Hex())
		}

		err := l.HandleMessage(ctx, caller, msg)
		switch {
		case err == nil:
			metrics.GatewayMessages.WithLabelValues("unlocked").Inc()
			return nil
		case errors.Is(err, locker.ErrStore), errors.Is(err, locker.ErrLedgerUnavailable):
			metrics.GatewayMessages.WithLabelValues("retry").Inc()
			return fmt.Errorf("%w: %w", gateway.ErrRetryLater, err)
		default:
			metrics.GatewayMessages.WithLabelValues("rejected").Inc()
			logger.Warn("message rejected by locker",
				zap.String("id", msg.ID),
				zap.Stringer("origin", msg.Origin.ChainID),
				zap.String("sender", msg.Origin.Address.Hex()),
				zap.Error(err))
			return err
		}
	}
}

// Worker_consumeGateway delivers messages from the NATS gateway to l until
// ctx is cancelled.
func Worker_consumeGateway(ctx context.Context, g *gateway.NATS, l *locker.Locker, logger *zap.Logger) error {
	sub, err := g.Subscribe(GatewayHandler(l, logger))
	if err != nil {
		return fmt.Errorf("subscribe to gateway: %w", err)
	}
	logger.Info("consuming gateway messages", zap.String("subject", sub.Subject))

	<-ctx.Done()

	if err := sub.Drain(); err != nil {
		logger.Warn("cannot drain gateway subscription", zap.Error(err))
	}
	logger.Info("gateway consumer stopped")
	return nil
}
