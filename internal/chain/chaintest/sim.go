// Package chaintest provides an in-memory chain.Backend that executes the
// market, token, NFT and conversion contracts well enough for tests.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/buzzpool/internal/chain"
)

// Fixed contract addresses used by New.
var (
	MarketAddress     = common.HexToAddress("0x1000000000000000000000000000000000000001")
	BuzzAddress       = common.HexToAddress("0x1000000000000000000000000000000000000002")
	USDeAddress       = common.HexToAddress("0x1000000000000000000000000000000000000003")
	NFTAddress        = common.HexToAddress("0x1000000000000000000000000000000000000004")
	ConversionAddress = common.HexToAddress("0x1000000000000000000000000000000000000005")
)

// CreationFee is the minimum value createPool accepts.
var CreationFee = big.NewInt(100)

// Pool is the simulated pool record.
type Pool struct {
	Question    string
	URL         string
	Parameter   string
	Category    string
	PollType    uint8
	TotalAmount *big.Int
	TotalBets   *big.Int
	FinalScore  *big.Int
	StartTime   *big.Int
	EndTime     *big.Int
	Ended       bool
	Bets        []Bet
}

// Bet mirrors the getBets tuple. Field names match the ABI components.
type Bet struct {
	User          common.Address
	Amount        *big.Int
	TargetScore   *big.Int
	ClaimedAmount *big.Int
	Claimed       bool
}

type allowanceKey struct {
	owner, spender common.Address
}

type stage int

const (
	stageCall stage = iota
	stageEstimate
	stageSend
)

// Backend is a single-node simulated chain. Transactions execute at send time
// and their receipts become visible after ReceiptDelay polls.
type Backend struct {
	mu sync.Mutex

	chainID *big.Int
	abis    map[common.Address]abi.ABI
	now     func() time.Time

	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[common.Address]map[allowanceKey]*big.Int
	nfts       map[common.Address]int64
	pools      []*Pool
	nonces     map[common.Address]uint64
	receipts   map[common.Hash]*types.Receipt
	polls      map[common.Hash]int
	failures   map[string]map[stage]error
	reverts    map[string]int
	holds      map[string]*hold

	// ReceiptDelay is how many TransactionReceipt calls report NotFound
	// before a receipt shows up.
	ReceiptDelay int

	sent  []string
	calls []string
}

// New returns an empty chain with the five contracts deployed at their fixed
// addresses.
func New(chainID int64) *Backend {
	b := &Backend{
		chainID:    big.NewInt(chainID),
		abis:       make(map[common.Address]abi.ABI),
		now:        time.Now,
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[allowanceKey]*big.Int),
		nfts:       make(map[common.Address]int64),
		nonces:     make(map[common.Address]uint64),
		receipts:   make(map[common.Hash]*types.Receipt),
		polls:      make(map[common.Hash]int),
		failures:   make(map[string]map[stage]error),
		reverts:    make(map[string]int),
		holds:      make(map[string]*hold),
	}
	for addr, js := range map[common.Address]string{
		MarketAddress:     chain.MarketABI,
		BuzzAddress:       chain.ERC20ABI,
		USDeAddress:       chain.ERC20ABI,
		NFTAddress:        chain.NFTABI,
		ConversionAddress: chain.ConversionABI,
	} {
		parsed, err := abi.JSON(strings.NewReader(js))
		if err != nil {
			panic(fmt.Sprintf("chaintest: parse abi: %v", err))
		}
		b.abis[addr] = parsed
	}
	return b
}

var _ chain.Backend = (*Backend)(nil)

// Mint credits amount of token to owner.
func (b *Backend) Mint(token, owner common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.credit(token, owner, amount)
}

// Balance returns owner's balance of token.
func (b *Backend) Balance(token, owner common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.balanceOf(token, owner))
}

// Allowance returns the approved amount.
func (b *Backend) Allowance(token, owner, spender common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.allowanceOf(token, owner, spender))
}

// NFTBalance returns how many NFTs owner holds.
func (b *Backend) NFTBalance(owner common.Address) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nfts[owner]
}

// AddPool appends p directly, bypassing createPool. Nil amounts become zero.
func (b *Backend) AddPool(p Pool) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range []**big.Int{&p.TotalAmount, &p.TotalBets, &p.FinalScore, &p.StartTime, &p.EndTime} {
		if *f == nil {
			*f = new(big.Int)
		}
	}
	for i := range p.Bets {
		if p.Bets[i].ClaimedAmount == nil {
			p.Bets[i].ClaimedAmount = new(big.Int)
		}
	}
	b.pools = append(b.pools, &p)
	return uint64(len(b.pools) - 1)
}

// Pool returns a copy of the pool at id.
func (b *Backend) Pool(id uint64) (Pool, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id >= uint64(len(b.pools)) {
		return Pool{}, false
	}
	p := *b.pools[id]
	p.Bets = append([]Bet(nil), p.Bets...)
	return p, true
}

// FailCall makes eth_call of method return err.
func (b *Backend) FailCall(method string, err error) { b.fail(method, stageCall, err) }

// FailEstimate makes gas estimation for method return err.
func (b *Backend) FailEstimate(method string, err error) { b.fail(method, stageEstimate, err) }

// FailSend makes submission of method return err.
func (b *Backend) FailSend(method string, err error) { b.fail(method, stageSend, err) }

// RevertNext makes the next n transactions calling method revert.
func (b *Backend) RevertNext(method string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reverts[method] += n
}

// ClearFailures drops every injected failure.
func (b *Backend) ClearFailures() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = make(map[string]map[stage]error)
	b.reverts = make(map[string]int)
}

// Sent returns the names of executed transactions in order.
func (b *Backend) Sent() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.sent...)
}

// Calls returns the names of read calls in order.
func (b *Backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *Backend) fail(method string, s stage, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures[method] == nil {
		b.failures[method] = make(map[stage]error)
	}
	b.failures[method][s] = err
}

func (b *Backend) failure(method string, s stage) error {
	if m := b.failures[method]; m != nil {
		return m[s]
	}
	return nil
}

// ChainID implements chain.Backend.
func (b *Backend) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.chainID), nil
}

// SuggestGasPrice implements chain.Backend.
func (b *Backend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

// PendingNonceAt implements chain.Backend.
func (b *Backend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonces[account], nil
}

// EstimateGas implements chain.Backend.
func (b *Backend) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	method, _, err := b.decode(msg.To, msg.Data)
	if err != nil {
		return 0, err
	}
	if err := b.failure(method.Name, stageEstimate); err != nil {
		return 0, err
	}
	return 100_000, nil
}

type hold struct {
	reached chan struct{}
	release chan struct{}
}

// HoldCall parks the next eth_call of method after its result has been read
// from state. reached is closed once the call is parked; release lets it
// return the result it read.
func (b *Backend) HoldCall(method string) (reached <-chan struct{}, release func()) {
	h := &hold{reached: make(chan struct{}), release: make(chan struct{})}
	b.mu.Lock()
	b.holds[method] = h
	b.mu.Unlock()
	var once sync.Once
	return h.reached, func() { once.Do(func() { close(h.release) }) }
}

// CallContract implements chain.Backend. Calls to unknown addresses return
// empty output, like a node does for an account without code.
func (b *Backend) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	b.mu.Lock()
	name, out, err := b.call(msg)
	h := b.holds[name]
	delete(b.holds, name)
	b.mu.Unlock()

	if h != nil {
		close(h.reached)
		select {
		case <-h.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return out, err
}

func (b *Backend) call(msg ethereum.CallMsg) (string, []byte, error) {
	out, err := b.view(msg)
	if msg.To == nil {
		return "", out, err
	}
	if _, ok := b.abis[*msg.To]; !ok {
		return "", out, err
	}
	method, _, derr := b.decode(msg.To, msg.Data)
	if derr != nil {
		return "", out, err
	}
	return method.Name, out, err
}

func (b *Backend) view(msg ethereum.CallMsg) ([]byte, error) {
	if msg.To == nil {
		return nil, errors.New("chaintest: call without recipient")
	}
	if _, ok := b.abis[*msg.To]; !ok {
		return nil, nil
	}
	method, args, err := b.decode(msg.To, msg.Data)
	if err != nil {
		return nil, err
	}
	b.calls = append(b.calls, method.Name)
	if err := b.failure(method.Name, stageCall); err != nil {
		return nil, err
	}

	to := *msg.To
	switch method.Name {
	case "balanceOf":
		owner := args[0].(common.Address)
		if to == NFTAddress {
			return method.Outputs.Pack(big.NewInt(b.nfts[owner]))
		}
		return method.Outputs.Pack(b.balanceOf(to, owner))
	case "allowance":
		return method.Outputs.Pack(b.allowanceOf(to, args[0].(common.Address), args[1].(common.Address)))
	case "getPoolId":
		return method.Outputs.Pack(big.NewInt(int64(len(b.pools))))
	case "pools":
		p, err := b.poolAt(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(p.Question, p.URL, p.Parameter, p.Category, p.PollType,
			p.TotalAmount, p.TotalBets, p.FinalScore, p.StartTime, p.EndTime, p.Ended)
	case "getBets":
		p, err := b.poolAt(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		bets := p.Bets
		if bets == nil {
			bets = []Bet{}
		}
		return method.Outputs.Pack(bets)
	}
	return nil, fmt.Errorf("chaintest: %s is not a view", method.Name)
}

// SendTransaction implements chain.Backend.
func (b *Backend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	from, err := types.Sender(types.LatestSignerForChainID(b.chainID), tx)
	if err != nil {
		return fmt.Errorf("chaintest: recover sender: %w", err)
	}
	if want := b.nonces[from]; tx.Nonce() != want {
		return fmt.Errorf("chaintest: nonce %d, expected %d", tx.Nonce(), want)
	}
	method, args, err := b.decode(tx.To(), tx.Data())
	if err != nil {
		return err
	}
	if err := b.failure(method.Name, stageSend); err != nil {
		return err
	}
	b.nonces[from]++

	status := types.ReceiptStatusSuccessful
	if b.reverts[method.Name] > 0 {
		b.reverts[method.Name]--
		status = types.ReceiptStatusFailed
	} else if err := b.execute(*tx.To(), from, tx.Value(), method.Name, args); err != nil {
		status = types.ReceiptStatusFailed
	}
	b.sent = append(b.sent, method.Name)
	b.receipts[tx.Hash()] = &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		GasUsed:     tx.Gas(),
		BlockNumber: big.NewInt(int64(len(b.receipts) + 1)),
	}
	return nil
}

// TransactionReceipt implements chain.Backend.
func (b *Backend) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	if b.polls[txHash] < b.ReceiptDelay {
		b.polls[txHash]++
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (b *Backend) decode(to *common.Address, data []byte) (*abi.Method, []any, error) {
	if to == nil {
		return nil, nil, errors.New("chaintest: contract creation not supported")
	}
	parsed, ok := b.abis[*to]
	if !ok {
		return nil, nil, fmt.Errorf("chaintest: no contract at %s", to.Hex())
	}
	if len(data) < 4 {
		return nil, nil, errors.New("chaintest: short calldata")
	}
	method, err := parsed.MethodById(data[:4])
	if err != nil {
		return nil, nil, fmt.Errorf("chaintest: %w", err)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("chaintest: unpack %s: %w", method.Name, err)
	}
	return method, args, nil
}

// execute applies a state change. A returned error reverts the transaction.
func (b *Backend) execute(to, from common.Address, value *big.Int, method string, args []any) error {
	switch method {
	case "approve":
		b.setAllowance(to, from, args[0].(common.Address), args[1].(*big.Int))
		return nil

	case "createPool":
		if value.Cmp(CreationFee) < 0 {
			return errors.New("creation fee")
		}
		b.pools = append(b.pools, &Pool{
			Question:    args[0].(string),
			URL:         args[1].(string),
			Parameter:   args[2].(string),
			Category:    args[3].(string),
			PollType:    args[4].(uint8),
			EndTime:     new(big.Int).Set(args[5].(*big.Int)),
			StartTime:   big.NewInt(b.now().Unix()),
			TotalAmount: new(big.Int),
			TotalBets:   new(big.Int),
			FinalScore:  new(big.Int),
		})
		return nil

	case "placeBet":
		amount, score := args[0].(*big.Int), args[1].(*big.Int)
		p, err := b.poolAt(args[2].(*big.Int))
		if err != nil {
			return err
		}
		if p.Ended {
			return errors.New("pool ended")
		}
		if err := b.spend(BuzzAddress, from, to, amount); err != nil {
			return err
		}
		b.credit(BuzzAddress, to, amount)
		p.Bets = append(p.Bets, Bet{
			User:          from,
			Amount:        new(big.Int).Set(amount),
			TargetScore:   new(big.Int).Set(score),
			ClaimedAmount: new(big.Int),
		})
		p.TotalAmount.Add(p.TotalAmount, amount)
		p.TotalBets.Add(p.TotalBets, big.NewInt(1))
		return nil

	case "claimBet":
		p, err := b.poolAt(args[0].(*big.Int))
		if err != nil {
			return err
		}
		if !p.Ended {
			return errors.New("pool not ended")
		}
		claimed := false
		for i := range p.Bets {
			bet := &p.Bets[i]
			if bet.User != from || bet.Claimed {
				continue
			}
			bet.Claimed = true
			bet.ClaimedAmount = new(big.Int).Set(bet.Amount)
			b.debit(BuzzAddress, to, bet.Amount)
			b.credit(BuzzAddress, from, bet.Amount)
			claimed = true
		}
		if !claimed {
			return errors.New("nothing to claim")
		}
		return nil

	case "setResult":
		p, err := b.poolAt(args[0].(*big.Int))
		if err != nil {
			return err
		}
		p.FinalScore = new(big.Int).Set(args[1].(*big.Int))
		p.Ended = true
		return nil

	case "mintNFT":
		b.nfts[args[0].(common.Address)]++
		return nil

	case "convertUSDetoBuzz":
		amount := args[0].(*big.Int)
		if err := b.spend(USDeAddress, from, to, amount); err != nil {
			return err
		}
		b.credit(BuzzAddress, from, amount)
		return nil

	case "convertBuzztoUSDe":
		amount := args[0].(*big.Int)
		if err := b.spend(BuzzAddress, from, to, amount); err != nil {
			return err
		}
		b.credit(USDeAddress, from, amount)
		return nil
	}
	return fmt.Errorf("unsupported method %s", method)
}

func (b *Backend) poolAt(id *big.Int) (*Pool, error) {
	if !id.IsUint64() || id.Uint64() >= uint64(len(b.pools)) {
		return nil, fmt.Errorf("chaintest: pool %s does not exist", id)
	}
	return b.pools[id.Uint64()], nil
}

// spend moves amount of token out of owner's balance using spender's
// allowance. The tokens are burned; callers credit the destination.
func (b *Backend) spend(token, owner, spender common.Address, amount *big.Int) error {
	allowed := b.allowanceOf(token, owner, spender)
	if allowed.Cmp(amount) < 0 {
		return errors.New("insufficient allowance")
	}
	if b.balanceOf(token, owner).Cmp(amount) < 0 {
		return errors.New("insufficient balance")
	}
	b.setAllowance(token, owner, spender, new(big.Int).Sub(allowed, amount))
	b.debit(token, owner, amount)
	return nil
}

func (b *Backend) balanceOf(token, owner common.Address) *big.Int {
	if v := b.balances[token][owner]; v != nil {
		return v
	}
	return new(big.Int)
}

func (b *Backend) credit(token, owner common.Address, amount *big.Int) {
	if b.balances[token] == nil {
		b.balances[token] = make(map[common.Address]*big.Int)
	}
	b.balances[token][owner] = new(big.Int).Add(b.balanceOf(token, owner), amount)
}

func (b *Backend) debit(token, owner common.Address, amount *big.Int) {
	b.credit(token, owner, new(big.Int).Neg(amount))
}

func (b *Backend) allowanceOf(token, owner, spender common.Address) *big.Int {
	if v := b.allowances[token][allowanceKey{owner, spender}]; v != nil {
		return v
	}
	return new(big.Int)
}

func (b *Backend) setAllowance(token, owner, spender common.Address, amount *big.Int) {
	if b.allowances[token] == nil {
		b.allowances[token] = make(map[allowanceKey]*big.Int)
	}
	b.allowances[token][allowanceKey{owner, spender}] = new(big.Int).Set(amount)
}
