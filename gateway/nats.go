package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"gobridgelocker/types"
)

// Message headers. The gateway fills them on publish; the receiving side trusts
// them as the authenticated origin.
const (
	HeaderOriginChain  = "Bridge-Origin-Chain"
	HeaderOriginSender = "Bridge-Origin-Sender"
	HeaderTarget       = "Bridge-Target"
	HeaderExecutionFee = "Bridge-Execution-Fee"
)

// ErrRetryLater marks a handler failure worth redelivering. Any other handler
// error terminates the message.
var ErrRetryLater = errors.New("retry later")

// NATSConfig configures a JetStream gateway for one chain.
type NATSConfig struct {
	URL            string
	Stream         string
	SubjectPrefix  string
	Durable        string
	ChainID        types.ChainID
	Address        common.Address
	MaxReconnects  int
	ReconnectWait  time.Duration
	HandlerTimeout time.Duration
}

// NATS is a gateway that carries locker messages over a JetStream stream,
// one subject per destination chain.
type NATS struct {
	cfg    NATSConfig
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *zap.Logger
}

// DialNATS connects and makes sure the stream exists.
func DialNATS(cfg NATSConfig, logger *zap.Logger) (*NATS, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HandlerTimeout == 0 {
		cfg.HandlerTimeout = 30 * time.Second
	}
	logger = logger.With(zap.String("gateway", "nats"), zap.Stringer("chainId", cfg.ChainID))

	conn, err := nats.Connect(cfg.URL,
		nats.Name(fmt.Sprintf("bridge-locker-%d", cfg.ChainID)),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	g := &NATS{cfg: cfg, conn: conn, js: js, logger: logger}
	if err := g.ensureStream(); err != nil {
		conn.Close()
		return nil, err
	}
	return g, nil
}

func (g *NATS) ensureStream() error {
	_, err := g.js.StreamInfo(g.cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info: %w", err)
	}
	_, err = g.js.AddStream(&nats.StreamConfig{
		Name:     g.cfg.Stream,
		Subjects: []string{g.cfg.SubjectPrefix + ".>"},
		Storage:  nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", g.cfg.Stream, err)
	}
	g.logger.Info("created stream", zap.String("stream", g.cfg.Stream))
	return nil
}

func (g *NATS) Address() common.Address {
	return g.cfg.Address
}

// Send publishes payload for target on destination and returns once the
// stream acknowledged it.
func (g *NATS) Send(ctx context.Context, from common.Address, destination types.ChainID, target common.Address, payload []byte, executionFee *big.Int) (*types.DispatchReceipt, error) {
	id := uuid.New().String()
	msg := newMessage(Subject(g.cfg.SubjectPrefix, destination), id, types.Origin{ChainID: g.cfg.ChainID, Address: from}, target, payload, executionFee)

	ack, err := g.js.PublishMsg(msg, nats.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("publish to %s: %w", msg.Subject, err)
	}
	g.logger.Debug("published message",
		zap.String("subject", msg.Subject), zap.String("id", id), zap.Uint64("seq", ack.Sequence))
	return &types.DispatchReceipt{MessageID: id, Sequence: ack.Sequence}, nil
}

// Subscribe consumes messages addressed to this chain with a durable consumer.
func (g *NATS) Subscribe(h Handler) (*nats.Subscription, error) {
	subject := Subject(g.cfg.SubjectPrefix, g.cfg.ChainID)
	return g.js.Subscribe(subject, func(m *nats.Msg) {
		msg, err := parseMessage(m)
		if err != nil {
			g.logger.Error("dropping malformed message", zap.String("subject", m.Subject), zap.Error(err))
			_ = m.Term()
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), g.cfg.HandlerTimeout)
		defer cancel()

		err = h(ctx, g.cfg.Address, msg)
		switch {
		case err == nil:
			_ = m.Ack()
		case errors.Is(err, ErrRetryLater):
			g.logger.Warn("message will be redelivered", zap.String("id", msg.ID), zap.Error(err))
			_ = m.Nak()
		default:
			g.logger.Warn("message rejected", zap.String("id", msg.ID), zap.Error(err))
			_ = m.Term()
		}
	}, nats.Durable(g.cfg.Durable), nats.ManualAck(), nats.DeliverAll())
}

func (g *NATS) Close() {
	g.conn.Close()
}

// Subject is the stream subject carrying messages for chain.
func Subject(prefix string, chain types.ChainID) string {
	return prefix + "." + chain.String()
}

func newMessage(subject, id string, origin types.Origin, target common.Address, payload []byte, executionFee *big.Int) *nats.Msg {
	msg := nats.NewMsg(subject)
	msg.Header.Set(nats.MsgIdHdr, id)
	msg.Header.Set(HeaderOriginChain, origin.ChainID.String())
	msg.Header.Set(HeaderOriginSender, origin.Address.Hex())
	msg.Header.Set(HeaderTarget, target.Hex())
	msg.Header.Set(HeaderExecutionFee, types.AmountString(executionFee))
	msg.Data = payload
	return msg
}

func parseMessage(m *nats.Msg) (types.AuthenticatedMessage, error) {
	if m.Header == nil {
		return types.AuthenticatedMessage{}, errors.New("message has no headers")
	}
	chain, err := strconv.ParseUint(m.Header.Get(HeaderOriginChain), 10, 64)
	if err != nil {
		return types.AuthenticatedMessage{}, fmt.Errorf("origin chain header: %w", err)
	}
	sender := m.Header.Get(HeaderOriginSender)
	if !common.IsHexAddress(sender) {
		return types.AuthenticatedMessage{}, fmt.Errorf("origin sender header %q is not an address", sender)
	}
	return types.AuthenticatedMessage{
		ID:      m.Header.Get(nats.MsgIdHdr),
		Origin:  types.Origin{ChainID: types.ChainID(chain), Address: common.HexToAddress(sender)},
		Target:  common.HexToAddress(m.Header.Get(HeaderTarget)),
		Payload: m.Data,
	}, nil
}
