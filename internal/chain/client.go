package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Options tunes transaction submission.
type Options struct {
	// PollInterval is the receipt polling period.
	PollInterval time.Duration
	// ReceiptTimeout bounds a single wait for inclusion; zero means the
	// caller's context alone decides.
	ReceiptTimeout time.Duration
	// GasHeadroomPct is added on top of the node's gas estimate.
	GasHeadroomPct uint64
	// Nonces serializes submissions per account. Defaults to an in-process lock.
	Nonces NonceLocker
}

// Client binds contract handles to one backend, one chain and at most one
// signing account.
type Client struct {
	backend Backend
	signer  Signer
	chainID *big.Int
	opts    Options
	logger  *slog.Logger
}

// NewClient creates a Client. signer may be nil for a read-only client.
func NewClient(backend Backend, signer Signer, chainID *big.Int, opts Options, logger *slog.Logger) *Client {
	if opts.Nonces == nil {
		opts.Nonces = NewLocalNonceLocker()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Client{
		backend: backend,
		signer:  signer,
		chainID: new(big.Int).Set(chainID),
		opts:    opts,
		logger:  logger.With(slog.String("component", "chain")),
	}
}

// CheckChain verifies the node serves the chain this client was built for.
func (c *Client) CheckChain(ctx context.Context) error {
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain: chain id: %w", err)
	}
	if id.Cmp(c.chainID) != 0 {
		return fmt.Errorf("chain: node serves chain %s, configured %s", id, c.chainID)
	}
	return nil
}

// Account returns the signing account, or the zero address for a read-only
// client.
func (c *Client) Account() common.Address {
	if c.signer == nil {
		return common.Address{}
	}
	return c.signer.Address()
}

// ChainID returns the chain this client targets.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Bind returns a handle for the contract at address described by abiJSON.
func (c *Client) Bind(address common.Address, abiJSON string) (*Contract, error) {
	if address == (common.Address{}) {
		return nil, fmt.Errorf("chain: bind: zero contract address")
	}
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("chain: bind %s: parse abi: %w", address.Hex(), err)
	}
	return &Contract{
		client:  c,
		address: address,
		abi:     parsed,
	}, nil
}
