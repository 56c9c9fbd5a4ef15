// Package signing authenticates API callers with Ethereum personal-message
// signatures (EIP-191). A signed request names the locker it is meant for,
// a caller-chosen nonce and a deadline, so a signature cannot be replayed
// against another instance or after it expires.
package signing

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrBadSignature = errors.New("invalid signature")
	ErrWrongSigner  = errors.New("signature does not match the address provided")
)

// Request is the signed part of a write call.
type Request struct {
	Action   string
	Locker   common.Address
	From     common.Address
	Nonce    string
	Deadline int64
	// action arguments, rendered in key order
	Params map[string]string
}

// Message is the text that gets signed.
func (r *Request) Message() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "bridge locker request: %s\n", r.Action)
	fmt.Fprintf(&sb, "locker: %s\n", r.Locker.Hex())
	fmt.Fprintf(&sb, "from: %s\n", r.From.Hex())
	fmt.Fprintf(&sb, "nonce: %s\n", r.Nonce)
	fmt.Fprintf(&sb, "deadline: %d", r.Deadline)

	keys := make([]string, 0, len(r.Params))
	for k := range r.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "\n%s: %s", k, r.Params[k])
	}
	return sb.String()
}

// PrefixHash is the EIP-191 hash of data.
func PrefixHash(data []byte) common.Hash {
	msg := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(data), data)
	return crypto.Keccak256Hash([]byte(msg))
}

// Sign returns the 0x-prefixed signature of msg with v in {27, 28}, as
// wallets produce it.
func Sign(msg string, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(PrefixHash([]byte(msg)).Bytes(), key)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

// Recover returns the account that signed msg.
func Recover(msg string, sig string) (common.Address, error) {
	sigBytes, err := hexutil.Decode(sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: bad hex", ErrBadSignature)
	}
	if len(sigBytes) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrBadSignature, len(sigBytes))
	}

	switch sigBytes[64] {
	case 27, 28:
		sigBytes[64] -= 27
	case 0, 1:
	default:
		return common.Address{}, fmt.Errorf("%w: recovery id %d", ErrBadSignature, sigBytes[64])
	}

	pub, err := crypto.Ecrecover(PrefixHash([]byte(msg)).Bytes(), sigBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %s", ErrBadSignature, err)
	}
	return common.BytesToAddress(crypto.Keccak256(pub[1:])[12:]), nil
}

// Verify checks that sig over r was made by r.From.
func (r *Request) Verify(sig string) error {
	signer, err := Recover(r.Message(), sig)
	if err != nil {
		return err
	}
	if signer != r.From {
		return fmt.Errorf("%w: signed by %s", ErrWrongSigner, signer.Hex())
	}
	return nil
}

// SignRequest fills r.From from key and signs r.
func SignRequest(r *Request, key *ecdsa.PrivateKey) (string, error) {
	r.From = crypto.PubkeyToAddress(key.PublicKey)
	return Sign(r.Message(), key)
}
