package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	kafkawrapper "github.com/joripage/transfer-orders/pkg/infra/kafka"
	redis_wrapper "github.com/joripage/transfer-orders/pkg/infra/redis"
	"github.com/joripage/transfer-orders/pkg/ledger"
	"github.com/joripage/transfer-orders/pkg/model"
	"github.com/joripage/transfer-orders/pkg/session"
	"github.com/joripage/transfer-orders/pkg/store"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	ServiceName string                       `yaml:"service_name"`
	LogLevel    string                       `yaml:"log_level"`
	Network     model.ChainParams            `yaml:"network"`
	Wallet      WalletConfig                 `yaml:"wallet"`
	Ledger      LedgerConfig                 `yaml:"ledger"`
	Tx          TxConfig                     `yaml:"tx"`
	Store       StoreConfig                  `yaml:"store"`
	Metrics     MetricsConfig                `yaml:"metrics"`
	Redis       *redis_wrapper.RedisConfig   `yaml:"redis"`
	Kafka       *kafkawrapper.ProducerConfig `yaml:"kafka"`
}

type WalletConfig struct {
	RPCURL              string              `yaml:"rpc_url"`
	DialTimeout         time.Duration       `yaml:"dial_timeout"`
	AccountPollInterval time.Duration       `yaml:"account_poll_interval"`
	OwnershipProof      session.ProofConfig `yaml:"ownership_proof"`
}

type LedgerConfig struct {
	ContractAddress string `yaml:"contract_address"`
	GasLimit        uint64 `yaml:"gas_limit"`
}

type TxConfig struct {
	ReceiptPollInitial time.Duration `yaml:"receipt_poll_initial"`
	ReceiptPollMax     time.Duration `yaml:"receipt_poll_max"`
}

type StoreConfig struct {
	RecentLimit int `yaml:"recent_limit"`
}

type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// MumbaiParams is the network the escrow contract is deployed on.
func MumbaiParams() model.ChainParams {
	return model.ChainParams{
		ChainID:   "0x13881",
		ChainName: "Polygon Mumbai",
		RPCURLs:   []string{"https://rpc-mumbai.maticvigil.com"},
		NativeCurrency: model.NativeCurrency{
			Name:     "MATIC",
			Symbol:   "MATIC",
			Decimals: 18,
		},
		BlockExplorerURLs: []string{"https://mumbai.polygonscan.com/"},
	}
}

// Default returns a config with every optional field filled.
func Default() *AppConfig {
	cfg := &AppConfig{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values.
func (c *AppConfig) ApplyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "transferctl"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Network.ChainID == "" {
		c.Network = MumbaiParams()
	}
	if c.Wallet.DialTimeout == 0 {
		c.Wallet.DialTimeout = 30 * time.Second
	}
	if c.Wallet.AccountPollInterval == 0 {
		c.Wallet.AccountPollInterval = 2 * time.Second
	}
	if c.Wallet.OwnershipProof.Challenge == "" {
		c.Wallet.OwnershipProof.Challenge = session.DefaultChallenge
	}
	if c.Ledger.GasLimit == 0 {
		c.Ledger.GasLimit = ledger.DefaultGasLimit
	}
	if c.Tx.ReceiptPollInitial == 0 {
		c.Tx.ReceiptPollInitial = 500 * time.Millisecond
	}
	if c.Tx.ReceiptPollMax == 0 {
		c.Tx.ReceiptPollMax = 15 * time.Second
	}
	if c.Store.RecentLimit == 0 {
		c.Store.RecentLimit = store.DefaultRecentLimit
	}
}

// Validate checks the fields that have no sensible default.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Wallet.RPCURL == "" {
		errs = append(errs, errors.New("wallet.rpc_url is required"))
	}
	if !common.IsHexAddress(c.Ledger.ContractAddress) {
		errs = append(errs, fmt.Errorf("ledger.contract_address %q is not an address", c.Ledger.ContractAddress))
	}
	if c.Store.RecentLimit < 0 {
		errs = append(errs, errors.New("store.recent_limit must not be negative"))
	}
	if c.Tx.ReceiptPollMax < c.Tx.ReceiptPollInitial {
		errs = append(errs, errors.New("tx.receipt_poll_max must not be below tx.receipt_poll_initial"))
	}
	if c.Kafka != nil && len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}
	return errors.Join(errs...)
}

// ContractAddress returns the parsed escrow address. Call Validate first.
func (c *AppConfig) ContractAddress() common.Address {
	return common.HexToAddress(c.Ledger.ContractAddress)
}

// Load load config from file and environment variables. A .env file next to
// the working directory is loaded first when present.
func Load(filePath string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		zap.S().Debugf("load .env fail: %v", err)
	}

	if len(filePath) == 0 {
		filePath = os.Getenv("CONFIG_FILE")
	}

	fields := []interface{}{
		"func",
		"config.readFromFile",
		"filePath",
		filePath,
	}

	sugar := zap.S().With(fields...)

	sugar.Debug("Load config...")
	zap.S().Debugf("CONFIG_FILE=%v", filePath)

	configBytes, err := os.ReadFile(filePath)
	if err != nil {
		sugar.Error("Failed to load config file")
		return nil, err
	}

	return Parse(configBytes)
}

// Parse expands environment variables in raw, decodes it, applies defaults
// and validates the result.
func Parse(raw []byte) (*AppConfig, error) {
	configBytes := []byte(os.ExpandEnv(string(raw)))

	cfg := &AppConfig{}
	err := yaml.Unmarshal(configBytes, cfg)
	if err != nil {
		zap.S().Error("Failed to parse config file")
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	zap.S().Debugf("config: %+v", cfg)

	return cfg, nil
}
