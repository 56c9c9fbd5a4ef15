package handlers

import (
	"crypto/ecdsa"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"gobridgelocker/signing"
)

// authenticate checks the signature, deadline and nonce of req and returns
// the signer. On failure the response is already written.
func (a *API) authenticate(w http.ResponseWriter, r *http.Request, action string, req SignedRequest) (common.Address, bool) {
	auth := req.auth()

	from, err := parseAddress(auth.From)
	if err != nil {
		responseError(w, "from", "No address or invalid address provided", http.StatusBadRequest)
		return common.Address{}, false
	}
	if auth.Nonce == "" {
		responseError(w, "nonce", "No nonce provided", http.StatusBadRequest)
		return common.Address{}, false
	}

	now := a.now()
	deadline := time.Unix(auth.Deadline, 0)
	if !deadline.After(now) {
		responseError(w, "deadline", "Request expired", http.StatusBadRequest)
		return common.Address{}, false
	}
	if deadline.Sub(now) > a.maxTTL {
		responseError(w, "deadline", "Deadline too far in the future", http.StatusBadRequest)
		return common.Address{}, false
	}

	signed := &signing.Request{
		Action:   action,
		Locker:   a.locker.Address(),
		From:     from,
		Nonce:    auth.Nonce,
		Deadline: auth.Deadline,
		Params:   req.Params(),
	}
	if err := signed.Verify(auth.Signature); err != nil {
		a.logger.Info("signature rejected", zap.String("action", action), zap.String("from", from.Hex()), zap.Error(err))
		if errors.Is(err, signing.ErrWrongSigner) {
			responseError(w, "signature", "Signature does not match the address provided", http.StatusUnauthorized)
		} else {
			responseError(w, "signature", "No signature or malformed signature provided", http.StatusBadRequest)
		}
		return common.Address{}, false
	}

	fresh, err := a.nonces.ReserveNonce(r.Context(), from, auth.Nonce, deadline.Sub(now))
	if err != nil {
		a.logger.Error("cannot reserve nonce", zap.Error(err))
		responseError(w, "", "internal error", http.StatusInternalServerError)
		return common.Address{}, false
	}
	if !fresh {
		responseError(w, "nonce", "Nonce already used", http.StatusConflict)
		return common.Address{}, false
	}
	return from, true
}

// decodeSigned reads a write request body into req and authenticates it.
func (a *API) decodeSigned(w http.ResponseWriter, r *http.Request, action string, req SignedRequest) (common.Address, bool) {
	if err := readJSON(r, req); err != nil {
		a.logger.Debug("cannot unmarshal request", zap.Error(err))
		responseError(w, "", "Cannot unmarshal input JSON", http.StatusBadRequest)
		return common.Address{}, false
	}
	return a.authenticate(w, r, action, req)
}

// Sign fills the auth fields of req so that it authenticates as key for
// action against the locker at lockerAddr.
func Sign(req SignedRequest, action string, lockerAddr common.Address, nonce string, deadline time.Time, key *ecdsa.PrivateKey) error {
	a := req.auth()
	a.Nonce = nonce
	a.Deadline = deadline.Unix()

	signed := &signing.Request{
		Action:   action,
		Locker:   lockerAddr,
		Nonce:    a.Nonce,
		Deadline: a.Deadline,
		Params:   req.Params(),
	}
	sig, err := signing.SignRequest(signed, key)
	if err != nil {
		return err
	}
	a.From = signed.From.Hex()
	a.Signature = sig
	return nil
}
