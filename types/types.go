package types

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// ChainID is the identifier a locker instance is known by in the peer network.
// It is not necessarily the native chain id of the network the instance runs on.
type ChainID uint64

func (c ChainID) String() string {
	return strconv.FormatUint(uint64(c), 10)
}

// ParseChainID parses a decimal chain id as found in URLs and configs.
func ParseChainID(s string) (ChainID, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ChainID(id), nil
}

// Direction tells which side of the bridge a counter or record belongs to.
type Direction string

const (
	// Outbound: tokens locked here, released on the destination chain
	Outbound Direction = "outbound"
	// Inbound: tokens released here on behalf of a source chain
	Inbound Direction = "inbound"
)

// SecondsPerDay is the length of one rate-limit window.
const SecondsPerDay = 86400

// DayIndex buckets a unix timestamp into a rate-limit window.
func DayIndex(unix int64) uint64 {
	if unix < 0 {
		return 0
	}
	return uint64(unix) / SecondsPerDay
}

// Origin is the gateway's authenticated claim about who sent a message.
type Origin struct {
	ChainID ChainID
	Address common.Address
}

// AuthenticatedMessage is what a gateway hands to the destination locker.
// The locker trusts Origin as delivered and only checks it against its trust table.
type AuthenticatedMessage struct {
	ID      string
	Origin  Origin
	Target  common.Address
	Payload []byte
}

// DispatchReceipt is returned by a gateway once a message is accepted for delivery.
type DispatchReceipt struct {
	MessageID string
	Sequence  uint64
}

// Transfer statuses, each one stored in its own set
const (
	StatusLocked   = "locked"
	StatusUnlocked = "unlocked"
)

// TransferRecord is the audit entry for one lock or unlock.
// Records are never used to deduplicate deliveries.
type TransferRecord struct {
	ID        string
	Status    string
	Direction Direction
	ChainID   ChainID // counterparty: destination for locks, source for unlocks
	DayIndex  uint64
	Amount    string // base units, decimal
	From      string // locker caller for locks, origin peer for unlocks
	Recipient string
	MessageID string
	Sequence  uint64
	TsCreated int64
}

// AmountString renders nil amounts as zero.
func AmountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
