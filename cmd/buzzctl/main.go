// Command buzzctl runs one market action or query against the configured
// chain and prints the result as JSON.
//
//	buzzctl [-config path] <command> [flags]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alanyoungcy/buzzpool/internal/app"
	"github.com/alanyoungcy/buzzpool/internal/config"
	"github.com/alanyoungcy/buzzpool/internal/crypto"
	"github.com/alanyoungcy/buzzpool/internal/domain"
	"github.com/alanyoungcy/buzzpool/internal/market"
)

const usage = `usage: buzzctl [-config path] <command> [flags]

commands:
  state          print the full refreshed state
  pools          print the refreshed pools
  create-pool    -question -deadline -link -parameter -keyword -type [-name]
  bet            -pool -amount -target
  claim          -pool
  set-result     -pool -score
  mint           mint the participation NFT
  usde-to-buzz   -amount
  buzz-to-usde   -amount
  encrypt-key    -out [-key] [-password]
`

// command runs against a wired service.
type command func(ctx context.Context, svc *market.Service, args []string) (any, error)

var commands = map[string]command{
	"state":        cmdState,
	"pools":        cmdPools,
	"create-pool":  cmdCreatePool,
	"bet":          cmdBet,
	"claim":        cmdClaim,
	"set-result":   cmdSetResult,
	"mint":         cmdMint,
	"usde-to-buzz": cmdConvert(true),
	"buzz-to-usde": cmdConvert(false),
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "buzzctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("buzzctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "config.toml", "path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}
	name, rest := fs.Arg(0), fs.Args()[1:]

	if name == "encrypt-key" {
		return encryptKey(rest, stdout)
	}
	cmd, ok := commands[name]
	if !ok {
		fs.Usage()
		return fmt.Errorf("unknown command %q", name)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	// one-shot: no HTTP server, refresh interval unused
	cfg.Mode = "refresh"
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel, stderr)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := app.Wire(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	out, err := cmd(ctx, deps.Service, rest)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}

func cmdState(ctx context.Context, svc *market.Service, _ []string) (any, error) {
	if err := svc.RefreshAll(ctx); err != nil {
		return nil, err
	}
	return svc.Snapshot(), nil
}

func cmdPools(ctx context.Context, svc *market.Service, _ []string) (any, error) {
	pools, err := svc.RefreshPools(ctx)
	if err != nil {
		return nil, err
	}
	return pools, nil
}

func cmdCreatePool(ctx context.Context, svc *market.Service, args []string) (any, error) {
	fs := flag.NewFlagSet("create-pool", flag.ContinueOnError)
	name := fs.String("name", "", "display name")
	question := fs.String("question", "", "pool question")
	deadline := fs.String("deadline", "", "closing time, RFC 3339")
	link := fs.String("link", "", "reference link")
	parameter := fs.String("parameter", "", "scored parameter")
	keyword := fs.String("keyword", "", "category keyword")
	pollType := fs.Uint("type", 0, "poll type")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *question == "" {
		return nil, errors.New("create-pool: -question is required")
	}
	if *pollType > 255 {
		return nil, errors.New("create-pool: -type must fit in a byte")
	}
	dl, err := time.Parse(time.RFC3339, *deadline)
	if err != nil {
		return nil, fmt.Errorf("create-pool: -deadline: %w", err)
	}

	err = svc.CreatePool(ctx, domain.CreatePoolParams{
		Name:      *name,
		Deadline:  dl,
		Question:  *question,
		Link:      *link,
		Parameter: *parameter,
		Keyword:   *keyword,
		Type:      domain.PollType(*pollType),
	})
	return done(market.ActCreatePool, svc, err)
}

func cmdBet(ctx context.Context, svc *market.Service, args []string) (any, error) {
	fs := flag.NewFlagSet("bet", flag.ContinueOnError)
	pool := fs.Uint64("pool", 0, "pool id")
	amount := fs.String("amount", "", "BUZZ amount, e.g. 2.5")
	target := fs.Int64("target", 0, "predicted score")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	amt, err := domain.ParseAmount(*amount)
	if err != nil {
		return nil, err
	}
	return done(market.ActPlaceBet, svc, svc.PlaceBet(ctx, *pool, amt, *target))
}

func cmdClaim(ctx context.Context, svc *market.Service, args []string) (any, error) {
	fs := flag.NewFlagSet("claim", flag.ContinueOnError)
	pool := fs.Uint64("pool", 0, "pool id")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return done(market.ActClaimBet, svc, svc.ClaimBet(ctx, *pool))
}

func cmdSetResult(ctx context.Context, svc *market.Service, args []string) (any, error) {
	fs := flag.NewFlagSet("set-result", flag.ContinueOnError)
	pool := fs.Uint64("pool", 0, "pool id")
	score := fs.Int64("score", 0, "final score")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return done(market.ActSetResult, svc, svc.SetResult(ctx, *pool, *score))
}

func cmdMint(ctx context.Context, svc *market.Service, _ []string) (any, error) {
	return done(market.ActMintNFT, svc, svc.MintNFT(ctx))
}

func cmdConvert(toBuzz bool) command {
	return func(ctx context.Context, svc *market.Service, args []string) (any, error) {
		fs := flag.NewFlagSet("convert", flag.ContinueOnError)
		amount := fs.String("amount", "", "amount to convert")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		amt, err := domain.ParseAmount(*amount)
		if err != nil {
			return nil, err
		}
		if toBuzz {
			return done(market.ActUSDeToBuzz, svc, svc.ConvertUSDeToBuzz(ctx, amt))
		}
		return done(market.ActBuzzToUSDe, svc, svc.ConvertBuzzToUSDe(ctx, amt))
	}
}

// done maps an action outcome to the message the user would have seen.
func done(a market.Action, svc *market.Service, err error) (any, error) {
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyMinted) {
			return nil, fmt.Errorf("%s: %w", market.MsgAlreadyMinted, err)
		}
		return nil, fmt.Errorf("%s: %w", a.Failed, err)
	}
	snap := svc.Snapshot()
	return map[string]any{
		"message":       a.Done,
		"token_balance": snap.Balance,
		"user_bets":     snap.UserBets,
		"nft_minted":    snap.NFTMinted,
	}, nil
}

// encryptKey writes an encrypted key file usable as wallet.encrypted_key_path.
func encryptKey(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("encrypt-key", flag.ContinueOnError)
	out := fs.String("out", "", "output file")
	key := fs.String("key", os.Getenv("BUZZ_WALLET_PRIVATE_KEY"), "hex private key")
	password := fs.String("password", os.Getenv("BUZZ_WALLET_KEY_PASSWORD"), "encryption password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" || *key == "" || *password == "" {
		return errors.New("encrypt-key: -out, -key and -password are required")
	}

	data, err := crypto.EncryptKey(*key, *password)
	if err != nil {
		return err
	}
	// round trip before writing so a bad file never replaces a good one
	pk, err := crypto.DecryptKey(data, *password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o600); err != nil {
		return fmt.Errorf("encrypt-key: %w", err)
	}
	return json.NewEncoder(stdout).Encode(map[string]string{
		"path":    *out,
		"address": crypto.NewTxSigner(pk).Address().Hex(),
	})
}
