// Package config defines the buzzpool configuration, its defaults and its
// validation rules.
package config

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration. Fields come from a TOML file and may be
// overridden by BUZZ_* environment variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Chain    ChainConfig    `toml:"chain"`
	Market   MarketConfig   `toml:"market"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig names the signing key. PrivateKey wins over EncryptedKeyPath.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig selects the RPC node and the contract deployment.
type ChainConfig struct {
	RPCURL         string   `toml:"rpc_url"`
	ChainID        int64    `toml:"chain_id"`
	PollInterval   duration `toml:"poll_interval"`
	ReceiptTimeout duration `toml:"receipt_timeout"`
	GasHeadroomPct int      `toml:"gas_headroom_pct"`
	// Addresses is keyed by decimal chain id.
	Addresses map[string]AddressBook `toml:"addresses"`
}

// AddressBook is one deployment of the five contracts.
type AddressBook struct {
	MainContract string `toml:"main_contract"`
	Token        string `toml:"token"`
	USDe         string `toml:"usde"`
	NFT          string `toml:"nft"`
	Conversion   string `toml:"conversion"`
}

// Book returns the deployment for the configured chain id.
func (c ChainConfig) Book() (AddressBook, bool) {
	b, ok := c.Addresses[strconv.FormatInt(c.ChainID, 10)]
	return b, ok
}

// MarketConfig tunes the state container and its actions.
type MarketConfig struct {
	CreationFeeWei  string   `toml:"creation_fee_wei"`
	NFTTokenURI     string   `toml:"nft_token_uri"`
	DisplayTimezone string   `toml:"display_timezone"`
	RefreshInterval duration `toml:"refresh_interval"`
	ToastHistory    int      `toml:"toast_history"`
}

// CreationFee parses CreationFeeWei.
func (m MarketConfig) CreationFee() (*big.Int, bool) {
	return new(big.Int).SetString(strings.TrimSpace(m.CreationFeeWei), 10)
}

// PostgresConfig holds the audit and pool mirror database parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds cache, lock and pub/sub parameters.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	PoolCacheTTL duration `toml:"pool_cache_ttl"`
	NonceLockTTL duration `toml:"nonce_lock_ttl"`
}

// S3Config holds snapshot archive parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// ServerConfig holds HTTP server parameters. An empty APIKey disables auth;
// a zero RateLimit disables rate limiting.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds operator alert channels.
type NotifyConfig struct {
	TelegramAPI       string   `toml:"telegram_api"`
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration decodes TOML strings such as "5m" or "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration, matching config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:         "https://testnet.rpc.ethena.fi",
			ChainID:        52085143,
			PollInterval:   duration{2 * time.Second},
			ReceiptTimeout: duration{3 * time.Minute},
			GasHeadroomPct: 20,
			Addresses:      map[string]AddressBook{},
		},
		Market: MarketConfig{
			CreationFeeWei:  "100",
			NFTTokenURI:     "https://gateway.pinata.cloud/ipfs/bafkreifsghmurcvqcer5axfj4jaryfa42gxmqgqv3pkjl56g2k6bcigq4u/",
			DisplayTimezone: "UTC",
			RefreshInterval: duration{30 * time.Second},
			ToastHistory:    50,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "buzzpool",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			PoolCacheTTL: duration{24 * time.Hour},
			NonceLockTTL: duration{2 * time.Minute},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "buzzpool-snapshots",
			ForcePathStyle: true,
			Prefix:         "snapshots",
		},
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"toast_error"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"server":  true,
	"watch":   true,
	"refresh": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate reports every problem found, not just the first.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if !validModes[strings.ToLower(c.Mode)] {
		add("unknown mode %q (valid: server, watch, refresh)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
		add("wallet: either private_key or encrypted_key_path must be set")
	}
	if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		add("wallet: key_password is required with encrypted_key_path")
	}

	if c.Chain.RPCURL == "" {
		add("chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		add("chain: chain_id must be positive")
	}
	if c.Chain.GasHeadroomPct < 0 {
		add("chain: gas_headroom_pct must be >= 0")
	}
	if book, ok := c.Chain.Book(); !ok {
		add("chain: no [chain.addresses.\"%d\"] table", c.Chain.ChainID)
	} else {
		for name, addr := range map[string]string{
			"main_contract": book.MainContract,
			"token":         book.Token,
			"usde":          book.USDe,
			"nft":           book.NFT,
			"conversion":    book.Conversion,
		} {
			if !common.IsHexAddress(addr) {
				add("chain: addresses.%d.%s %q is not a hex address", c.Chain.ChainID, name, addr)
			}
		}
	}

	if fee, ok := c.Market.CreationFee(); !ok || fee.Sign() < 0 {
		add("market: creation_fee_wei %q must be a non-negative integer", c.Market.CreationFeeWei)
	}
	if _, err := time.LoadLocation(c.Market.DisplayTimezone); err != nil {
		add("market: display_timezone %q: %v", c.Market.DisplayTimezone, err)
	}
	if c.Market.RefreshInterval.Duration <= 0 && c.Mode != "refresh" {
		add("market: refresh_interval must be > 0")
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				add("postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				add("postgres: port must be 1-65535, got %d", c.Postgres.Port)
			}
			if c.Postgres.Database == "" {
				add("postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			add("postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			add("postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			add("redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			add("s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			add("s3: region must not be empty")
		}
	}

	if c.Mode == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server: port must be 1-65535, got %d", c.Server.Port)
		}
		if c.Server.RateLimit > 0 && !c.Redis.Enabled {
			add("server: rate_limit needs redis.enabled")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			add("server: rate_window must be > 0 when rate_limit is set")
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		add("notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
