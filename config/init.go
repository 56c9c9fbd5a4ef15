package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"

	ethav "github.com/KOREAN139/ethereum-address-validator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/kelseyhightower/envconfig"
	yaml "gopkg.in/yaml.v2"
)

// reading config error is fatal, and exists main thread
func processError(err error) {
	fmt.Println(err)
	os.Exit(2)
}

func readFile(cfg *Configuration, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func readEnv(cfg *Configuration) error {
	return envconfig.Process("", cfg)
}

func applyDefaults(cfg *Configuration) {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = DEFAULT_LISTEN
	}
	if cfg.CustodyPollInterval <= 0 {
		cfg.CustodyPollInterval = DEFAULT_POLL_INTERVAL
	}
	if cfg.MaxRequestTTL <= 0 {
		cfg.MaxRequestTTL = DEFAULT_REQUEST_TTL
	}
	if cfg.NATS.Stream == "" {
		cfg.NATS.Stream = DEFAULT_NATS_STREAM
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = DEFAULT_SUBJECT_PREFIX
	}
	if cfg.EVM.GasLimit == 0 {
		cfg.EVM.GasLimit = DEFAULT_GAS_LIMIT
	}
}

// Load reads the yaml file at path, overlays environment variables and checks
// the result.
func Load(path string) (*Configuration, error) {
	var cfg Configuration
	if err := readFile(&cfg, path); err != nil {
		return nil, err
	}
	if err := readEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks addresses, chain ids and peer limits.
func (c *Configuration) Validate() error {
	var errs []error
	if c.Locker.NativeChainID == 0 {
		errs = append(errs, errors.New("locker.native_chain_id is required"))
	}
	if _, err := ParseAddress("locker.address", c.Locker.Address); err != nil {
		errs = append(errs, err)
	}
	for field, value := range map[string]string{
		"locker.owner":   c.Locker.Owner,
		"locker.token":   c.Locker.Token,
		"locker.gateway": c.Locker.Gateway,
		"EVM.address":    c.EVM.PublicAddress,
	} {
		if value == "" {
			continue
		}
		if _, err := ParseAddress(field, value); err != nil {
			errs = append(errs, err)
		}
	}
	if len(c.EVM.RPCList) > 0 && c.EVM.PrivateKey == "" {
		errs = append(errs, errors.New("EVM.private_key is required with an rpc_list"))
	}
	for i, p := range c.Peers {
		if p.ChainID == 0 {
			errs = append(errs, fmt.Errorf("peers[%d]: chain_id is required", i))
		}
		if _, err := ParseAddress(fmt.Sprintf("peers[%d].contract", i), p.Contract); err != nil {
			errs = append(errs, err)
		}
		if p.LimitPerDay != "" {
			if _, err := p.Limit(); err != nil {
				errs = append(errs, fmt.Errorf("peers[%d]: %w", i, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Limit parses LimitPerDay; nil means keep the stored limit.
func (p PeerConfig) Limit() (*big.Int, error) {
	if p.LimitPerDay == "" {
		return nil, nil
	}
	limit, ok := new(big.Int).SetString(p.LimitPerDay, 10)
	if !ok || limit.Sign() < 0 {
		return nil, fmt.Errorf("invalid limit_per_day %q", p.LimitPerDay)
	}
	return limit, nil
}

// ParseAddress accepts a 0x-prefixed hex address.
func ParseAddress(field, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, value)
	}
	addr := common.HexToAddress(value)
	if err := ethav.Validate(addr.Hex()); err != nil {
		return common.Address{}, fmt.Errorf("%s: %w", field, err)
	}
	return addr, nil
}

func Init(path string) {
	cfg, err := Load(path)
	if err != nil {
		processError(err)
	}
	Config = *cfg
}
