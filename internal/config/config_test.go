package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
mode = "watch"
log_level = "debug"

[wallet]
private_key = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

[chain]
rpc_url = "http://localhost:8545"
chain_id = 1337
receipt_timeout = "45s"

[chain.addresses."1337"]
main_contract = "0x1000000000000000000000000000000000000001"
token = "0x1000000000000000000000000000000000000002"
usde = "0x1000000000000000000000000000000000000003"
nft = "0x1000000000000000000000000000000000000004"
conversion = "0x1000000000000000000000000000000000000005"

[market]
creation_fee_wei = "250"
display_timezone = "UTC"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "buzzpool.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func validConfig() Config {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0xabc"
	cfg.Chain.Addresses["52085143"] = AddressBook{
		MainContract: "0x1000000000000000000000000000000000000001",
		Token:        "0x1000000000000000000000000000000000000002",
		USDe:         "0x1000000000000000000000000000000000000003",
		NFT:          "0x1000000000000000000000000000000000000004",
		Conversion:   "0x1000000000000000000000000000000000000005",
	}
	return cfg
}

func TestLoadDecodesOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, "watch", cfg.Mode)
	assert.Equal(t, int64(1337), cfg.Chain.ChainID)
	assert.Equal(t, 45*time.Second, cfg.Chain.ReceiptTimeout.Duration)
	// untouched by the file
	assert.Equal(t, 2*time.Second, cfg.Chain.PollInterval.Duration)
	assert.Equal(t, 50, cfg.Market.ToastHistory)

	book, ok := cfg.Chain.Book()
	require.True(t, ok)
	assert.Equal(t, "0x1000000000000000000000000000000000000005", book.Conversion)

	fee, ok := cfg.Market.CreationFee()
	require.True(t, ok)
	assert.Equal(t, int64(250), fee.Int64())

	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BUZZ_MODE", "refresh")
	t.Setenv("BUZZ_CHAIN_ID", "1337")
	t.Setenv("BUZZ_REDIS_ENABLED", "true")
	t.Setenv("BUZZ_SERVER_CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("BUZZ_MARKET_REFRESH_INTERVAL", "10s")
	t.Setenv("BUZZ_SERVER_PORT", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "refresh", cfg.Mode)
	assert.Equal(t, int64(1337), cfg.Chain.ChainID)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 10*time.Second, cfg.Market.RefreshInterval.Duration)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadBadFile(t *testing.T) {
	_, err := Load(writeConfig(t, "mode = ["))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: decode")
}

func TestValidateDefaultsNeedWalletAndAddresses(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet: either private_key or encrypted_key_path")
	assert.Contains(t, err.Error(), `no [chain.addresses."52085143"] table`)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	cfg.Mode = "trade"
	cfg.Market.CreationFeeWei = "-1"
	cfg.Market.DisplayTimezone = "Mars/Olympus"
	book := cfg.Chain.Addresses["52085143"]
	book.NFT = "not-an-address"
	cfg.Chain.Addresses["52085143"] = book
	cfg.Notify.TelegramToken = "tok"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "config validation failed:")
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, "creation_fee_wei")
	assert.Contains(t, msg, "display_timezone")
	assert.Contains(t, msg, "addresses.52085143.nft")
	assert.Contains(t, msg, "telegram_token and telegram_chat_id")
}

func TestValidateOptionalBackends(t *testing.T) {
	cfg := validConfig()
	cfg.Server.RateLimit = 30
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limit needs redis.enabled")

	cfg.Redis.Enabled = true
	require.NoError(t, cfg.Validate())

	cfg.Postgres.Enabled = true
	cfg.Postgres.Host = ""
	require.Error(t, cfg.Validate())
	cfg.Postgres.DSN = "postgres://u:p@db:5432/buzzpool"
	require.NoError(t, cfg.Validate())

	cfg.S3.Enabled = true
	cfg.S3.Bucket = ""
	require.Error(t, cfg.Validate())
}

func TestValidateEncryptedKeyNeedsPassword(t *testing.T) {
	cfg := validConfig()
	cfg.Wallet.PrivateKey = ""
	cfg.Wallet.EncryptedKeyPath = "/keys/buzz.json"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_password is required")

	cfg.Wallet.KeyPassword = "hunter2"
	require.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Wallet.KeyPassword = "hunter2"
	cfg.Postgres.DSN = "postgres://u:secret@db/buzzpool"
	cfg.Server.APIKey = "k"
	cfg.Notify.DiscordWebhookURL = "https://discord.example/hook"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Wallet.PrivateKey)
	assert.Equal(t, "***", out.Wallet.KeyPassword)
	assert.Equal(t, "***", out.Postgres.DSN)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Equal(t, "***", out.Notify.DiscordWebhookURL)
	assert.Empty(t, out.Redis.Password)

	assert.Equal(t, "0xabc", cfg.Wallet.PrivateKey)
	out.Chain.Addresses["other"] = AddressBook{}
	_, leaked := cfg.Chain.Addresses["other"]
	assert.False(t, leaked)
}
