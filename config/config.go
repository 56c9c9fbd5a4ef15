package config

import "time"

type Configuration struct {
	// Server config
	Server struct {
		UseSSL    bool   `yaml:"ssl"`
		Listen    string `yaml:"listen"`
		CertFile  string `yaml:"cert_file"`
		KeyFile   string `yaml:"key_file"`
		RedisPort int    `yaml:"redis_port"`
		RedisHost string `yaml:"redis_host"`
	} `yaml:"server"`
	// this locker instance
	Locker struct {
		Address string `yaml:"address"`
		// owner on first start, ignored once the store is initialised
		Owner           string `yaml:"owner"`
		Token           string `yaml:"token"`
		Gateway         string `yaml:"gateway"`
		NativeChainID   uint64 `yaml:"native_chain_id"`
		InternalChainID uint64 `yaml:"internal_chain_id"`
	} `yaml:"locker"`
	// EVM-related config, leave rpc_list empty to run on the in-memory ledger
	EVM struct {
		RPCList       []string `yaml:"rpc_list"`
		PublicAddress string   `yaml:"address"`
		PrivateKey    string   `yaml:"private_key"`
		GasLimit      uint64   `yaml:"gas_limit"`
	} `yaml:"EVM"`
	// gateway transport, leave url empty for the in-process loopback
	NATS struct {
		URL           string `yaml:"url"`
		Stream        string `yaml:"stream"`
		SubjectPrefix string `yaml:"subject_prefix"`
		Durable       string `yaml:"durable"`
	} `yaml:"NATS"`
	// peers applied by the owner at startup
	Peers []PeerConfig `yaml:"peers" ignored:"true"`

	Debug               bool          `yaml:"debug"`
	SentryDSN           string        `yaml:"sentry_dsn"`
	CustodyPollInterval time.Duration `yaml:"custody_poll_interval"`
	// how long a signed request stays valid at most
	MaxRequestTTL time.Duration `yaml:"max_request_ttl"`
}

// PeerConfig is the locker on another chain.
type PeerConfig struct {
	ChainID  uint64 `yaml:"chain_id"`
	Contract string `yaml:"contract"`
	// decimal token amount, empty keeps the stored limit
	LimitPerDay string `yaml:"limit_per_day"`
}

var Config Configuration

// maximum number of EVM RPC retries
const EVM_RETRIES = 3

const (
	DEFAULT_LISTEN         = ":8000"
	DEFAULT_POLL_INTERVAL  = time.Minute
	DEFAULT_REQUEST_TTL    = 15 * time.Minute
	DEFAULT_NATS_STREAM    = "LOCKER"
	DEFAULT_SUBJECT_PREFIX = "locker"
	DEFAULT_GAS_LIMIT      = 200000
)

var RedisStatusSets = map[string]string{
	"locked":   "transfers:locked",   // tokens taken into custody and message dispatched
	"unlocked": "transfers:unlocked", // tokens released from custody on message delivery
}
