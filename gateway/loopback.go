// Package gateway holds cross-chain messaging transports for the locker.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"gobridgelocker/types"
)

// Handler receives a delivered message. caller is the gateway's own account
// on the destination chain.
type Handler func(ctx context.Context, caller common.Address, msg types.AuthenticatedMessage) error

// Envelope is a message waiting in, or taken from, the loopback queue.
type Envelope struct {
	Destination  types.ChainID
	Message      types.AuthenticatedMessage
	ExecutionFee *big.Int
	Sequence     uint64
}

// Network connects loopback endpoints in one process. Messages are queued on
// Send and only delivered when the test or the operator asks for it, which
// makes the missing atomicity between lock and unlock observable.
type Network struct {
	mu        sync.Mutex
	endpoints map[types.ChainID]*Endpoint
	queue     []*Envelope
	delivered map[string]*Envelope
	seq       uint64
	sendErr   error
}

func NewNetwork() *Network {
	return &Network{
		endpoints: make(map[types.ChainID]*Endpoint),
		delivered: make(map[string]*Envelope),
	}
}

// Endpoint registers (or returns) the gateway of chain, acting as address
// when it calls into lockers on that chain.
func (n *Network) Endpoint(chain types.ChainID, address common.Address) *Endpoint {
	n.mu.Lock()
	defer n.mu.Unlock()
	if e, ok := n.endpoints[chain]; ok {
		return e
	}
	e := &Endpoint{network: n, chainID: chain, address: address, fees: new(big.Int)}
	n.endpoints[chain] = e
	return e
}

// FailSends makes every following Send return err; nil restores normal operation.
func (n *Network) FailSends(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sendErr = err
}

// Pending lists queued messages in delivery order.
func (n *Network) Pending() []Envelope {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Envelope, 0, len(n.queue))
	for _, env := range n.queue {
		out = append(out, *env)
	}
	return out
}

// Drop removes a queued message without delivering it.
func (n *Network) Drop(messageID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, env := range n.queue {
		if env.Message.ID == messageID {
			n.queue = append(n.queue[:i], n.queue[i+1:]...)
			return true
		}
	}
	return false
}

// DeliverNext delivers the oldest queued message. It reports false when the
// queue is empty. The message leaves the queue whatever the handler returns.
func (n *Network) DeliverNext(ctx context.Context) (bool, error) {
	n.mu.Lock()
	if len(n.queue) == 0 {
		n.mu.Unlock()
		return false, nil
	}
	env := n.queue[0]
	n.queue = n.queue[1:]
	n.delivered[env.Message.ID] = env
	n.mu.Unlock()

	return true, n.deliver(ctx, env)
}

// DeliverAll drains the queue and returns every handler error joined.
func (n *Network) DeliverAll(ctx context.Context) error {
	var errs []error
	for {
		ok, err := n.DeliverNext(ctx)
		if !ok {
			break
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Redeliver hands an already delivered message to its destination again, as
// a misbehaving transport would.
func (n *Network) Redeliver(ctx context.Context, messageID string) error {
	n.mu.Lock()
	env, ok := n.delivered[messageID]
	n.mu.Unlock()
	if !ok {
		return fmt.Errorf("message %s was never delivered", messageID)
	}
	return n.deliver(ctx, env)
}

func (n *Network) deliver(ctx context.Context, env *Envelope) error {
	n.mu.Lock()
	dest, ok := n.endpoints[env.Destination]
	n.mu.Unlock()
	if !ok {
		return fmt.Errorf("no gateway endpoint for chain %d", env.Destination)
	}
	h := dest.handler()
	if h == nil {
		return fmt.Errorf("no handler registered on chain %d", env.Destination)
	}
	return h(ctx, dest.address, env.Message)
}

// Endpoint is the gateway as seen from one chain.
type Endpoint struct {
	network *Network
	chainID types.ChainID
	address common.Address

	mu   sync.Mutex
	h    Handler
	fees *big.Int
}

func (e *Endpoint) Address() common.Address {
	return e.address
}

func (e *Endpoint) ChainID() types.ChainID {
	return e.chainID
}

// Handle sets the receiver of messages addressed to this chain.
func (e *Endpoint) Handle(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.h = h
}

// Fees is the total execution fee collected by this endpoint.
func (e *Endpoint) Fees() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return new(big.Int).Set(e.fees)
}

func (e *Endpoint) handler() Handler {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.h
}

// Send queues payload for target on destination. The origin recorded with the
// message is this endpoint's chain and the sending account.
func (e *Endpoint) Send(_ context.Context, from common.Address, destination types.ChainID, target common.Address, payload []byte, executionFee *big.Int) (*types.DispatchReceipt, error) {
	n := e.network
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.sendErr != nil {
		return nil, n.sendErr
	}
	if _, ok := n.endpoints[destination]; !ok {
		return nil, fmt.Errorf("unsupported destination chain %d", destination)
	}

	fee := new(big.Int)
	if executionFee != nil {
		fee.Set(executionFee)
	}
	n.seq++
	env := &Envelope{
		Destination: destination,
		Message: types.AuthenticatedMessage{
			ID:      uuid.New().String(),
			Origin:  types.Origin{ChainID: e.chainID, Address: from},
			Target:  target,
			Payload: append([]byte{}, payload...),
		},
		ExecutionFee: fee,
		Sequence:     n.seq,
	}
	n.queue = append(n.queue, env)

	e.mu.Lock()
	e.fees.Add(e.fees, fee)
	e.mu.Unlock()

	return &types.DispatchReceipt{MessageID: env.Message.ID, Sequence: env.Sequence}, nil
}
