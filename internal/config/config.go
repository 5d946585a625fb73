package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"time"
	"unicode"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/spf13/viper"
)

const (
	badgerDb = "badger"

	ChainEvm    = "evm"
	ChainSolana = "solana"
)

type Config struct {
	Datadir    string `mapstructure:"DATADIR" envDefault:"bitlift" envInfo:"Data directory for Bitlift state"`
	DbType     string `mapstructure:"DB_TYPE" envDefault:"badger" envInfo:"Database backend: badger"`
	LogLevel   uint32 `mapstructure:"LOG_LEVEL" envDefault:"4" envInfo:"Log verbosity (higher = more verbose)"`
	EsploraURL string `mapstructure:"ESPLORA_URL" envDefault:"https://blockstream.info/api" envInfo:"Esplora base URL"`
	ElectrumURL string `mapstructure:"ELECTRUM_URL" envDefault:"" envInfo:"Electrum server address (host:port), optional"`

	ChainType     string `mapstructure:"CHAIN_TYPE" envDefault:"evm" envInfo:"Settlement chain: evm | solana"`
	EvmRpcURL     string `mapstructure:"EVM_RPC_URL" envDefault:"" envInfo:"EVM node RPC endpoint"`
	EvmContract   string `mapstructure:"EVM_CONTRACT" envDefault:"" envInfo:"Escrow contract address (0x-prefixed)"`
	SolanaRpcURL  string `mapstructure:"SOLANA_RPC_URL" envDefault:"" envInfo:"Solana JSON-RPC endpoint"`
	SolanaWsURL   string `mapstructure:"SOLANA_WS_URL" envDefault:"" envInfo:"Solana WebSocket endpoint"`
	SolanaProgram string `mapstructure:"SOLANA_PROGRAM" envDefault:"" envInfo:"Escrow program id (base58)"`

	PyroscopeURL string `mapstructure:"PYROSCOPE_URL" envDefault:"" envInfo:"Pyroscope server URL, empty disables profiling"`

	CounterpartyKey string `mapstructure:"COUNTERPARTY_KEY" envDefault:"" envInfo:"Counterparty secp256k1 public key (compressed, hex)"`
	WalletKey       string `mapstructure:"WALLET_KEY" envDefault:"" envInfo:"Signing key: hex secp256k1 for evm, base58 ed25519 for solana"`

	PollInterval       uint32 `mapstructure:"POLL_INTERVAL" envDefault:"10" envInfo:"Watchdog poll interval in seconds"`
	SyncInterval       uint32 `mapstructure:"SYNC_INTERVAL" envDefault:"60" envInfo:"Relay sync interval in seconds"`
	SafetyWindow       uint32 `mapstructure:"SAFETY_WINDOW" envDefault:"3600" envInfo:"Minimum seconds left before expiry to accept a commit"`
	GracePeriod        uint32 `mapstructure:"GRACE_PERIOD" envDefault:"300" envInfo:"Minimum remaining authorization validity in seconds"`
	RetryTimeout       uint32 `mapstructure:"RETRY_TIMEOUT" envDefault:"60" envInfo:"Max seconds to retry a transient chain call"`
	MaxHeadersMain     uint32 `mapstructure:"MAX_HEADERS_MAIN" envDefault:"15" envInfo:"Max headers per main-chain submission"`
	MaxHeadersFork     uint32 `mapstructure:"MAX_HEADERS_FORK" envDefault:"7" envInfo:"Max headers per fork submission"`
	ReconcileWindow    uint64 `mapstructure:"RECONCILE_WINDOW" envDefault:"2000" envInfo:"Max blocks or slots per event scan window"`
	StartupConcurrency int64  `mapstructure:"STARTUP_CONCURRENCY" envDefault:"8" envInfo:"Concurrent swap reconciliations at startup"`

	counterpartyKey *btcec.PublicKey
}

func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("BITLIFT")
	v.AutomaticEnv()

	if err := setDefaultConfig(v); err != nil {
		return nil, fmt.Errorf("error setting default config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %v", err)
	}

	if err := config.initDatadir(); err != nil {
		return nil, fmt.Errorf("error initializing data directory: %w", err)
	}

	if err := config.validateChain(); err != nil {
		return nil, err
	}

	if err := config.parseCounterpartyKey(); err != nil {
		return nil, err
	}

	return &config, nil
}

// CounterpartyPubKey returns the parsed counterparty signing key.
func (c *Config) CounterpartyPubKey() *btcec.PublicKey {
	return c.counterpartyKey
}

func (c *Config) PollIntervalDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

func (c *Config) SyncIntervalDuration() time.Duration {
	return time.Duration(c.SyncInterval) * time.Second
}

func (c *Config) SafetyWindowDuration() time.Duration {
	return time.Duration(c.SafetyWindow) * time.Second
}

func (c *Config) GracePeriodDuration() time.Duration {
	return time.Duration(c.GracePeriod) * time.Second
}

func (c *Config) RetryTimeoutDuration() time.Duration {
	return time.Duration(c.RetryTimeout) * time.Second
}

func (c *Config) initDatadir() error {
	if c.DbType != badgerDb {
		return fmt.Errorf("unsupported db type: %s", c.DbType)
	}

	if c.Datadir == "bitlift" {
		c.Datadir = appDatadir("bitlift", false)
	}
	return makeDirectoryIfNotExists(c.Datadir)
}

func (c *Config) validateChain() error {
	switch c.ChainType {
	case ChainEvm:
		if c.EvmRpcURL == "" || c.EvmContract == "" {
			return fmt.Errorf("evm chain requires EVM_RPC_URL and EVM_CONTRACT")
		}
	case ChainSolana:
		if c.SolanaRpcURL == "" || c.SolanaWsURL == "" || c.SolanaProgram == "" {
			return fmt.Errorf("solana chain requires SOLANA_RPC_URL, SOLANA_WS_URL and SOLANA_PROGRAM")
		}
	default:
		return fmt.Errorf("unsupported chain type %q, must be: %s | %s", c.ChainType, ChainEvm, ChainSolana)
	}
	if c.WalletKey == "" {
		return fmt.Errorf("WALLET_KEY is required")
	}
	return nil
}

func (c *Config) parseCounterpartyKey() error {
	if c.CounterpartyKey == "" {
		return fmt.Errorf("COUNTERPARTY_KEY is required")
	}
	raw, err := hex.DecodeString(c.CounterpartyKey)
	if err != nil {
		return fmt.Errorf("invalid counterparty key: %v", err)
	}
	key, err := btcec.ParsePubKey(raw)
	if err != nil {
		return fmt.Errorf("invalid counterparty key: %v", err)
	}
	c.counterpartyKey = key
	return nil
}

func setDefaultConfig(v *viper.Viper) error {
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		key := f.Tag.Get("mapstructure")
		def := f.Tag.Get("envDefault")
		if def != "" {
			v.SetDefault(key, def)
		}
		err := v.BindEnv(key)
		if err != nil {
			return fmt.Errorf("error binding env variable for key %s: %w", key, err)
		}
	}
	return nil
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

// appDatadir returns an operating system specific directory to be used for
// storing application data for an application.
func appDatadir(appName string, roaming bool) string {
	if appName == "" || appName == "." {
		return "."
	}

	appName = strings.TrimPrefix(appName, ".")
	appNameUpper := string(unicode.ToUpper(rune(appName[0]))) + appName[1:]
	appNameLower := string(unicode.ToLower(rune(appName[0]))) + appName[1:]

	var homeDir string
	usr, err := user.Current()
	if err == nil {
		homeDir = usr.HomeDir
	}
	if err != nil || homeDir == "" {
		homeDir = os.Getenv("HOME")
	}

	switch runtime.GOOS {
	case "windows":
		// Windows XP and before didn't have a LOCALAPPDATA, so fallback
		// to regular APPDATA when LOCALAPPDATA is not set.
		appData := os.Getenv("LOCALAPPDATA")
		if roaming || appData == "" {
			appData = os.Getenv("APPDATA")
		}
		if appData != "" {
			return filepath.Join(appData, appNameUpper)
		}

	case "darwin":
		if homeDir != "" {
			return filepath.Join(homeDir, "Library",
				"Application Support", appNameUpper)
		}

	case "plan9":
		if homeDir != "" {
			return filepath.Join(homeDir, appNameLower)
		}

	default:
		if homeDir != "" {
			return filepath.Join(homeDir, "."+appNameLower)
		}
	}

	return "."
}
