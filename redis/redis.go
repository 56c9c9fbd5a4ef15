package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"

	"gobridgelocker/config"
	"gobridgelocker/types"
)

// usage counters of past days are only kept for reporting
const usageRetention = 8 * 24 * time.Hour

func timeoutDialOptions() []redis.DialOption {
	return []redis.DialOption{
		redis.DialConnectTimeout(5 * time.Second),
		redis.DialReadTimeout(5 * time.Second),
		redis.DialWriteTimeout(5 * time.Second),
	}
}

// NewPool dials host:port on demand.
func NewPool(host string, port int) *redis.Pool {
	redisAddr := fmt.Sprintf("%s:%d", host, port)
	return &redis.Pool{
		MaxIdle:     5,
		IdleTimeout: 4 * time.Minute,
		Dial:        func() (redis.Conn, error) { return redis.Dial("tcp", redisAddr, timeoutDialOptions()...) },
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// Store keeps the tables of one locker instance in redis. Every key is
// prefixed with the namespace so several lockers can share a server.
type Store struct {
	pool      *redis.Pool
	namespace string
}

func NewStore(pool *redis.Pool, namespace string) *Store {
	return &Store{pool: pool, namespace: namespace}
}

func (s *Store) key(format string, args ...any) string {
	return s.namespace + ":" + fmt.Sprintf(format, args...)
}

func (s *Store) do(ctx context.Context, cmd string, args ...any) (any, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	reply, err := redis.DoContext(conn, ctx, cmd, args...)
	if err != nil {
		return nil, fmt.Errorf("redis %s: %w", cmd, err)
	}
	return reply, nil
}

func (s *Store) getString(ctx context.Context, key string) (string, error) {
	v, err := redis.String(s.do(ctx, "GET", key))
	if errors.Is(err, redis.ErrNil) {
		return "", nil
	}
	return v, err
}

func (s *Store) getAddress(ctx context.Context, key string) (common.Address, error) {
	v, err := s.getString(ctx, key)
	if err != nil || v == "" {
		return common.Address{}, err
	}
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("corrupt address at %s: %q", key, v)
	}
	return common.HexToAddress(v), nil
}

// the zero address is stored as a missing key
func (s *Store) setAddress(ctx context.Context, key string, addr common.Address) error {
	if addr == (common.Address{}) {
		_, err := s.do(ctx, "DEL", key)
		return err
	}
	_, err := s.do(ctx, "SET", key, addr.Hex())
	return err
}

func (s *Store) getInt(ctx context.Context, key string) (*big.Int, error) {
	v, err := s.getString(ctx, key)
	if err != nil {
		return nil, err
	}
	if v == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return nil, fmt.Errorf("corrupt amount at %s: %q", key, v)
	}
	return n, nil
}

func (s *Store) DestinationContract(ctx context.Context, chain types.ChainID) (common.Address, error) {
	return s.getAddress(ctx, s.key("destination:%d", chain))
}

func (s *Store) SetDestinationContract(ctx context.Context, chain types.ChainID, peer common.Address) error {
	return s.setAddress(ctx, s.key("destination:%d", chain), peer)
}

func (s *Store) SourceContract(ctx context.Context, chain types.ChainID) (common.Address, error) {
	return s.getAddress(ctx, s.key("source:%d", chain))
}

func (s *Store) SetSourceContract(ctx context.Context, chain types.ChainID, peer common.Address) error {
	return s.setAddress(ctx, s.key("source:%d", chain), peer)
}

func (s *Store) LimitPerDay(ctx context.Context, chain types.ChainID) (*big.Int, error) {
	return s.getInt(ctx, s.key("limit:%d", chain))
}

func (s *Store) SetLimitPerDay(ctx context.Context, chain types.ChainID, limit *big.Int) error {
	_, err := s.do(ctx, "SET", s.key("limit:%d", chain), types.AmountString(limit))
	return err
}

func (s *Store) Usage(ctx context.Context, dir types.Direction, chain types.ChainID, day uint64) (*big.Int, error) {
	return s.getInt(ctx, s.key("usage:%s:%d:%d", dir, chain, day))
}

func (s *Store) SetUsage(ctx context.Context, dir types.Direction, chain types.ChainID, day uint64, used *big.Int) error {
	_, err := s.do(ctx, "SET", s.key("usage:%s:%d:%d", dir, chain, day), types.AmountString(used),
		"PX", usageRetention.Milliseconds())
	return err
}

func (s *Store) InternalChainID(ctx context.Context) (types.ChainID, bool, error) {
	v, err := redis.Uint64(s.do(ctx, "GET", s.key("chainId")))
	if errors.Is(err, redis.ErrNil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return types.ChainID(v), true, nil
}

func (s *Store) SetInternalChainID(ctx context.Context, id types.ChainID) error {
	_, err := s.do(ctx, "SET", s.key("chainId"), uint64(id))
	return err
}

func (s *Store) Owner(ctx context.Context) (common.Address, error) {
	return s.getAddress(ctx, s.key("owner"))
}

func (s *Store) SetOwner(ctx context.Context, owner common.Address) error {
	return s.setAddress(ctx, s.key("owner"), owner)
}

func (s *Store) PendingOwner(ctx context.Context) (common.Address, error) {
	return s.getAddress(ctx, s.key("pendingOwner"))
}

func (s *Store) SetPendingOwner(ctx context.Context, owner common.Address) error {
	return s.setAddress(ctx, s.key("pendingOwner"), owner)
}

func (s *Store) statusSet(status string) (string, error) {
	set, ok := config.RedisStatusSets[status]
	if !ok {
		return "", fmt.Errorf("unknown transfer status %q", status)
	}
	return s.namespace + ":" + set, nil
}

// SaveTransfer stores rec as JSON and adds it to the set of its status.
func (s *Store) SaveTransfer(ctx context.Context, rec *types.TransferRecord) error {
	if rec == nil {
		return errors.New("null object to store")
	}
	set, err := s.statusSet(rec.Status)
	if err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	recordKey := s.key("transfer:%s:%s", rec.Status, rec.ID)

	recJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("cannot marshal transfer record to JSON: %w", err)
	}

	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Send("MULTI"); err != nil {
		return err
	}
	if err := conn.Send("SET", recordKey, recJSON); err != nil {
		return err
	}
	if err := conn.Send("SADD", set, recordKey); err != nil {
		return err
	}
	if _, err := redis.DoContext(conn, ctx, "EXEC"); err != nil {
		return fmt.Errorf("redis EXEC: %w", err)
	}
	return nil
}

// Transfers returns every record with status, oldest first.
func (s *Store) Transfers(ctx context.Context, status string) ([]*types.TransferRecord, error) {
	set, err := s.statusSet(status)
	if err != nil {
		return nil, err
	}

	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	recs := make([]*types.TransferRecord, 0)

	var cursor int64
	for {
		values, err := redis.Values(redis.DoContext(conn, ctx, "SSCAN", set, cursor))
		if err != nil {
			return nil, err
		}

		var keys []string
		if _, err := redis.Scan(values, &cursor, &keys); err != nil {
			return nil, err
		}

		for _, key := range keys {
			raw, err := redis.Bytes(redis.DoContext(conn, ctx, "GET", key))
			if errors.Is(err, redis.ErrNil) {
				// set member without a record
				continue
			}
			if err != nil {
				return nil, err
			}
			var rec types.TransferRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return nil, fmt.Errorf("corrupt transfer record %s: %w", key, err)
			}
			recs = append(recs, &rec)
		}

		if cursor == 0 {
			break
		}
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].TsCreated != recs[j].TsCreated {
			return recs[i].TsCreated < recs[j].TsCreated
		}
		return recs[i].ID < recs[j].ID
	})
	return recs, nil
}

// ReserveNonce marks nonce of signer as used until ttl passes. It reports
// false when the nonce was already taken.
func (s *Store) ReserveNonce(ctx context.Context, signer common.Address, nonce string, ttl time.Duration) (bool, error) {
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	reply, err := s.do(ctx, "SET", s.key("nonce:%s:%s", signer.Hex(), nonce), 1, "NX", "PX", ttl.Milliseconds())
	if err != nil {
		return false, err
	}
	return reply != nil, nil
}

// Ping checks the connection, used by the health handler.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.do(ctx, "PING")
	return err
}
