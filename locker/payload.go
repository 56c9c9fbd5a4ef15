package locker

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"gobridgelocker/types"
)

// UnlockSignature is the call the peer locker executes when a message arrives.
const UnlockSignature = "unlock(uint256,uint256,address)"

var (
	unlockSelector = crypto.Keccak256([]byte(UnlockSignature))[:4]
	unlockArgs     = mustUnlockArgs()
)

func mustUnlockArgs() abi.Arguments {
	uint256, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	address, err := abi.NewType("address", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{
		{Name: "fromChainId", Type: uint256},
		{Name: "amount", Type: uint256},
		{Name: "recipient", Type: address},
	}
}

// UnlockCall is the decoded body of a cross-chain unlock message.
type UnlockCall struct {
	SourceChainID types.ChainID
	Amount        *big.Int
	Recipient     common.Address
}

// EncodeUnlock builds the call data sent to the destination peer.
func EncodeUnlock(source types.ChainID, amount *big.Int, recipient common.Address) ([]byte, error) {
	// abi packs uint256 modulo 2^256
	if amount == nil || amount.Sign() < 0 || amount.Cmp(MaxAmount) > 0 {
		return nil, fmt.Errorf("amount %v does not fit uint256", amount)
	}
	packed, err := unlockArgs.Pack(new(big.Int).SetUint64(uint64(source)), amount, recipient)
	if err != nil {
		return nil, fmt.Errorf("pack unlock call: %w", err)
	}
	return append(append([]byte{}, unlockSelector...), packed...), nil
}

// DecodeUnlock parses call data produced by EncodeUnlock.
func DecodeUnlock(data []byte) (*UnlockCall, error) {
	if len(data) < 4 || !bytes.Equal(data[:4], unlockSelector) {
		return nil, fmt.Errorf("unexpected selector")
	}
	values, err := unlockArgs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("expected 3 arguments, got %d", len(values))
	}
	chain, ok := values[0].(*big.Int)
	if !ok || !chain.IsUint64() {
		return nil, fmt.Errorf("source chain id out of range")
	}
	amount, ok := values[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("bad amount")
	}
	recipient, ok := values[2].(common.Address)
	if !ok {
		return nil, fmt.Errorf("bad recipient")
	}
	return &UnlockCall{
		SourceChainID: types.ChainID(chain.Uint64()),
		Amount:        amount,
		Recipient:     recipient,
	}, nil
}
