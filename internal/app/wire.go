package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/buzzpool/internal/blob/s3"
	"github.com/alanyoungcy/buzzpool/internal/cache/redis"
	"github.com/alanyoungcy/buzzpool/internal/chain"
	"github.com/alanyoungcy/buzzpool/internal/config"
	"github.com/alanyoungcy/buzzpool/internal/contracts"
	"github.com/alanyoungcy/buzzpool/internal/crypto"
	"github.com/alanyoungcy/buzzpool/internal/domain"
	"github.com/alanyoungcy/buzzpool/internal/market"
	"github.com/alanyoungcy/buzzpool/internal/notify"
	"github.com/alanyoungcy/buzzpool/internal/server/handler"
	"github.com/alanyoungcy/buzzpool/internal/store/postgres"
)

// Infra holds the optional backing services. Nil fields are disabled.
type Infra struct {
	PoolCache   domain.PoolCache
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter
	Nonces      chain.NonceLocker
	AuditStore  domain.AuditStore
	PoolStore   domain.PoolStore
	Archiver    domain.SnapshotArchiver
	// Checks feed the health endpoint.
	Checks map[string]handler.Check
}

// Dependencies is everything a mode needs.
type Dependencies struct {
	Infra
	Chain    *chain.Client
	Service  *market.Service
	Toaster  *notify.Toaster
	Notifier *notify.Notifier
}

// Wire resolves the signing key, dials the node, connects the enabled
// backing services and builds the market service. The returned cleanup
// releases connections in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	signer, err := crypto.LoadSigner(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: signer: %w", err)
	}

	rpc, err := chain.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	closers = append(closers, rpc.Close)

	infra, infraCleanup, err := wireInfra(ctx, cfg)
	closers = append(closers, infraCleanup)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	deps, err := Build(ctx, cfg, rpc, signer, infra, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return deps, cleanup, nil
}

// wireInfra connects Postgres, Redis and S3 when enabled.
func wireInfra(ctx context.Context, cfg *config.Config) (Infra, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	infra := Infra{Checks: map[string]handler.Check{}}

	if cfg.Postgres.Enabled {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return infra, cleanup, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pg.Close)

		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return infra, cleanup, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		infra.AuditStore = postgres.NewAuditStore(pg.Pool())
		infra.PoolStore = postgres.NewPoolStore(pg.Pool())
		infra.Checks["postgres"] = pg.Ping
	}

	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return infra, cleanup, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = rc.Close() })

		infra.PoolCache = redis.NewPoolCache(rc, cfg.Redis.PoolCacheTTL.Duration)
		infra.SignalBus = redis.NewSignalBus(rc)
		infra.RateLimiter = redis.NewRateLimiter(rc)
		infra.Nonces = redis.NewLockManager(rc).NonceLocker(cfg.Redis.NonceLockTTL.Duration, 0)
		infra.Checks["redis"] = rc.Ping
	}

	if cfg.S3.Enabled {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return infra, cleanup, fmt.Errorf("wire: s3: %w", err)
		}
		infra.Archiver = s3blob.NewArchiver(s3blob.NewWriter(sc), cfg.S3.Prefix, infra.AuditStore)
		infra.Checks["s3"] = sc.Health
	}

	return infra, cleanup, nil
}

// Build binds the contracts of the configured chain on backend and
// assembles the market service. It verifies the node's chain id.
func Build(ctx context.Context, cfg *config.Config, backend chain.Backend, signer chain.Signer, infra Infra, logger *slog.Logger) (*Dependencies, error) {
	book, ok := cfg.Chain.Book()
	if !ok {
		return nil, fmt.Errorf("wire: no contract addresses for chain %d", cfg.Chain.ChainID)
	}
	fee, ok := cfg.Market.CreationFee()
	if !ok {
		return nil, fmt.Errorf("wire: bad creation fee %q", cfg.Market.CreationFeeWei)
	}
	loc, err := time.LoadLocation(cfg.Market.DisplayTimezone)
	if err != nil {
		return nil, fmt.Errorf("wire: display timezone: %w", err)
	}

	client := chain.NewClient(backend, signer, big.NewInt(cfg.Chain.ChainID), chain.Options{
		PollInterval:   cfg.Chain.PollInterval.Duration,
		ReceiptTimeout: cfg.Chain.ReceiptTimeout.Duration,
		GasHeadroomPct: uint64(cfg.Chain.GasHeadroomPct),
		Nonces:         infra.Nonces,
	}, logger)
	if err := client.CheckChain(ctx); err != nil {
		return nil, fmt.Errorf("wire: %w", err)
	}

	c, err := bindContracts(client, book)
	if err != nil {
		return nil, err
	}

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramAPI, cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger)
	toaster := notify.NewToaster(cfg.Market.ToastHistory, infra.SignalBus, notifier, logger)

	svc := market.NewService(client.Account(), cfg.Chain.ChainID, c, toaster, market.Hooks{
		Cache:    infra.PoolCache,
		Store:    infra.PoolStore,
		Archiver: infra.Archiver,
		Audit:    infra.AuditStore,
		Bus:      infra.SignalBus,
	}, market.Options{
		CreationFee: fee,
		NFTTokenURI: cfg.Market.NFTTokenURI,
		Location:    loc,
	}, logger)

	if infra.Checks == nil {
		infra.Checks = map[string]handler.Check{}
	}
	infra.Checks["rpc"] = client.CheckChain

	return &Dependencies{
		Infra:    infra,
		Chain:    client,
		Service:  svc,
		Toaster:  toaster,
		Notifier: notifier,
	}, nil
}

func bindContracts(client *chain.Client, book config.AddressBook) (market.Contracts, error) {
	var c market.Contracts
	var err error
	if c.Buzz, err = contracts.NewToken(client, common.HexToAddress(book.Token)); err != nil {
		return c, fmt.Errorf("wire: token: %w", err)
	}
	if c.USDe, err = contracts.NewToken(client, common.HexToAddress(book.USDe)); err != nil {
		return c, fmt.Errorf("wire: usde: %w", err)
	}
	if c.Market, err = contracts.NewMarket(client, common.HexToAddress(book.MainContract)); err != nil {
		return c, fmt.Errorf("wire: main contract: %w", err)
	}
	if c.NFT, err = contracts.NewNFT(client, common.HexToAddress(book.NFT)); err != nil {
		return c, fmt.Errorf("wire: nft: %w", err)
	}
	if c.Converter, err = contracts.NewConverter(client, common.HexToAddress(book.Conversion)); err != nil {
		return c, fmt.Errorf("wire: conversion: %w", err)
	}
	return c, nil
}
