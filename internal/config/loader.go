package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load decodes the TOML file at path over Defaults, loads .env when present
// and applies BUZZ_* overrides. An empty path skips the file. The result is
// not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	applyEnv(&cfg)
	return &cfg, nil
}

// applyEnv overwrites fields from set, non-empty BUZZ_* variables so secrets
// can be injected at deploy time.
func applyEnv(cfg *Config) {
	setStr(&cfg.Wallet.PrivateKey, "BUZZ_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "BUZZ_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "BUZZ_WALLET_KEY_PASSWORD")

	setStr(&cfg.Chain.RPCURL, "BUZZ_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "BUZZ_CHAIN_ID")
	setDuration(&cfg.Chain.PollInterval, "BUZZ_CHAIN_POLL_INTERVAL")
	setDuration(&cfg.Chain.ReceiptTimeout, "BUZZ_CHAIN_RECEIPT_TIMEOUT")
	setInt(&cfg.Chain.GasHeadroomPct, "BUZZ_CHAIN_GAS_HEADROOM_PCT")

	setStr(&cfg.Market.CreationFeeWei, "BUZZ_MARKET_CREATION_FEE_WEI")
	setStr(&cfg.Market.NFTTokenURI, "BUZZ_MARKET_NFT_TOKEN_URI")
	setStr(&cfg.Market.DisplayTimezone, "BUZZ_MARKET_DISPLAY_TIMEZONE")
	setDuration(&cfg.Market.RefreshInterval, "BUZZ_MARKET_REFRESH_INTERVAL")

	setBool(&cfg.Postgres.Enabled, "BUZZ_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "BUZZ_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "BUZZ_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BUZZ_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BUZZ_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BUZZ_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BUZZ_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BUZZ_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "BUZZ_POSTGRES_RUN_MIGRATIONS")

	setBool(&cfg.Redis.Enabled, "BUZZ_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "BUZZ_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BUZZ_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BUZZ_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "BUZZ_REDIS_TLS_ENABLED")

	setBool(&cfg.S3.Enabled, "BUZZ_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "BUZZ_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BUZZ_S3_REGION")
	setStr(&cfg.S3.Bucket, "BUZZ_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BUZZ_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BUZZ_S3_SECRET_KEY")

	setInt(&cfg.Server.Port, "BUZZ_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "BUZZ_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "BUZZ_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "BUZZ_SERVER_RATE_LIMIT")

	setStr(&cfg.Notify.TelegramToken, "BUZZ_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BUZZ_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BUZZ_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BUZZ_NOTIFY_EVENTS")

	setStr(&cfg.Mode, "BUZZ_MODE")
	setStr(&cfg.LogLevel, "BUZZ_LOG_LEVEL")
}

// Each setter leaves dst alone when the variable is unset, empty or
// unparsable.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		*dst = n
	}
}

func setInt64(dst *int64, key string) {
	if n, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil {
		*dst = n
	}
}

func setBool(dst *bool, key string) {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		*dst = b
	}
}

func setDuration(dst *duration, key string) {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		dst.Duration = d
	}
}

func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}
