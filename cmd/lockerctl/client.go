package main

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"gobridgelocker/workers/handlers"
)

// client talks to one locker API.
type client struct {
	api    string
	http   *http.Client
	key    *ecdsa.PrivateKey
	locker common.Address
	ttl    time.Duration
}

// APIError is a non-2xx answer of the locker API.
type APIError struct {
	Code    int
	Field   string
	Message string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%d %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

func parseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	if hexKey == "" {
		return nil, errors.New("no signing key given, use --key or LOCKER_KEY")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signing key: %w", err)
	}
	return key, nil
}

func (c *client) url(path string) string {
	return strings.TrimRight(c.api, "/") + path
}

// lockerAddress is the address signed requests are bound to, read from the
// API when it was not given.
func (c *client) lockerAddress(ctx context.Context) (common.Address, error) {
	if c.locker != (common.Address{}) {
		return c.locker, nil
	}
	var state handlers.APIStateResponse
	if err := c.get(ctx, "/state", &state); err != nil {
		return common.Address{}, fmt.Errorf("cannot read locker address: %w", err)
	}
	if !common.IsHexAddress(state.Address) {
		return common.Address{}, fmt.Errorf("locker reported invalid address %q", state.Address)
	}
	c.locker = common.HexToAddress(state.Address)
	return c.locker, nil
}

func (c *client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// post signs body for action and sends it to path.
func (c *client) post(ctx context.Context, path, action string, body handlers.SignedRequest, out interface{}) error {
	if c.key == nil {
		return errors.New("no signing key")
	}
	lockerAddr, err := c.lockerAddress(ctx)
	if err != nil {
		return err
	}
	if err := handlers.Sign(body, action, lockerAddr, uuid.NewString(), time.Now().Add(c.ttl), c.key); err != nil {
		return err
	}

	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Code: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var body handlers.APIResponse
		if json.Unmarshal(data, &body) == nil && body.Message != "" {
			apiErr.Field = body.Field
			apiErr.Message = body.Message
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
