package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Contract is a handle for one deployed contract.
type Contract struct {
	client  *Client
	address common.Address
	abi     abi.ABI
}

// Address returns the contract address.
func (k *Contract) Address() common.Address {
	return k.address
}

// Call runs a read-only method and unpacks its outputs into out. For methods
// with several outputs out must point to a struct whose fields are named after
// the outputs.
func (k *Contract) Call(ctx context.Context, out any, method string, args ...any) error {
	data, err := k.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("chain: pack %s: %w", method, err)
	}

	msg := ethereum.CallMsg{
		From: k.client.Account(),
		To:   &k.address,
		Data: data,
	}
	res, err := k.client.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return fmt.Errorf("chain: call %s: %w", method, err)
	}
	if len(res) == 0 && len(k.abi.Methods[method].Outputs) > 0 {
		return fmt.Errorf("%w %s (%s)", ErrNoCode, k.address.Hex(), method)
	}

	if err := k.abi.UnpackIntoInterface(out, method, res); err != nil {
		return fmt.Errorf("chain: unpack %s: %w", method, err)
	}
	return nil
}

// Transact signs and sends a state-changing call. value may be nil.
func (k *Contract) Transact(ctx context.Context, value *big.Int, method string, args ...any) (*types.Transaction, error) {
	c := k.client
	if c.signer == nil {
		return nil, ErrNoSigner
	}
	if value == nil {
		value = new(big.Int)
	}

	data, err := k.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}

	from := c.signer.Address()
	unlock, err := c.opts.Nonces.Lock(ctx, "nonce:"+c.chainID.String()+":"+from.Hex())
	if err != nil {
		return nil, fmt.Errorf("chain: lock nonce for %s: %w", method, err)
	}
	defer unlock()

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("chain: pending nonce: %w", err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: gas price: %w", err)
	}
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &k.address,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return nil, fmt.Errorf("chain: estimate gas %s: %w", method, err)
	}
	gas += gas * c.opts.GasHeadroomPct / 100

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &k.address,
		Value:    value,
		Data:     data,
	})
	signed, err := c.signer.SignTx(tx, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("chain: sign %s: %w", method, err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("chain: send %s: %w", method, err)
	}

	c.logger.DebugContext(ctx, "transaction sent",
		slog.String("method", method),
		slog.String("to", k.address.Hex()),
		slog.String("tx", signed.Hash().Hex()),
		slog.Uint64("nonce", nonce),
	)
	return signed, nil
}

// TransactAndWait sends the call and blocks until it is included.
func (k *Contract) TransactAndWait(ctx context.Context, value *big.Int, method string, args ...any) (*types.Receipt, error) {
	tx, err := k.Transact(ctx, value, method, args...)
	if err != nil {
		return nil, err
	}

	waitCtx := ctx
	if t := k.client.opts.ReceiptTimeout; t > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	receipt, err := WaitMined(waitCtx, k.client.backend, tx.Hash(), k.client.opts.PollInterval)
	if err != nil {
		return receipt, fmt.Errorf("chain: %s: %w", method, err)
	}
	return receipt, nil
}
