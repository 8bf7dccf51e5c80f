package settlement

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/seabucks/dealer"
)

// RouterABI is the subset of the deployed router interface the dealer talks to.
const RouterABI = `[
{"type":"function","name":"swapWithQuote","stateMutability":"nonpayable","inputs":[
 {"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},
 {"name":"amountIn","type":"uint256"},{"name":"amountOut","type":"uint256"},
 {"name":"recipient","type":"address"},{"name":"nonce","type":"uint256"},
 {"name":"deadline","type":"uint256"},{"name":"signature","type":"bytes"},
 {"name":"memo","type":"string"}],"outputs":[]},
{"type":"function","name":"usedNonces","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"dealer","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
{"type":"event","name":"SwapExecuted","anonymous":false,"inputs":[
 {"indexed":true,"name":"payer","type":"address"},{"indexed":true,"name":"recipient","type":"address"},
 {"indexed":true,"name":"tokenIn","type":"address"},{"indexed":false,"name":"tokenOut","type":"address"},
 {"indexed":false,"name":"amountIn","type":"uint256"},{"indexed":false,"name":"amountOut","type":"uint256"},
 {"indexed":false,"name":"fee","type":"uint256"},{"indexed":false,"name":"nonce","type":"uint256"},
 {"indexed":false,"name":"memo","type":"string"}]}
]`

var routerABI = mustParseABI(RouterABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("settlement: invalid router ABI: %v", err))
	}
	return parsed
}

// Binding talks to a deployed router contract.
type Binding struct {
	address common.Address
	caller  ethereum.ContractCaller
}

// NewBinding binds the router at address through caller.
func NewBinding(address common.Address, caller ethereum.ContractCaller) *Binding {
	return &Binding{address: address, caller: caller}
}

// DialBinding connects to an RPC endpoint and binds the router at address.
func DialBinding(ctx context.Context, rpcURL string, address common.Address) (*Binding, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}
	return NewBinding(address, client), nil
}

// PackSwap encodes the swapWithQuote call for sq.
func PackSwap(sq dealer.SignedQuote, memo string) ([]byte, error) {
	sig, err := hexutil.Decode(sq.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dealer.ErrInvalidSignature, err)
	}
	q := sq.Quote
	data, err := routerABI.Pack("swapWithQuote",
		q.TokenIn, q.TokenOut, q.AmountIn, q.AmountOut, q.Recipient, q.Nonce, q.Deadline, sig, memo)
	if err != nil {
		return nil, fmt.Errorf("failed to pack swapWithQuote: %w", err)
	}
	return data, nil
}

// SwapCall returns the message a payer submits to settle sq.
func (b *Binding) SwapCall(payer common.Address, sq dealer.SignedQuote, memo string) (ethereum.CallMsg, error) {
	data, err := PackSwap(sq, memo)
	if err != nil {
		return ethereum.CallMsg{}, err
	}
	return ethereum.CallMsg{From: payer, To: &b.address, Data: data}, nil
}

// IsNonceUsed queries the router's consumed-nonce set.
func (b *Binding) IsNonceUsed(ctx context.Context, nonce *big.Int) (bool, error) {
	var used bool
	if err := b.call(ctx, &used, "usedNonces", nonce); err != nil {
		return false, err
	}
	return used, nil
}

// Dealer returns the signer address the router trusts.
func (b *Binding) Dealer(ctx context.Context) (common.Address, error) {
	var addr common.Address
	if err := b.call(ctx, &addr, "dealer"); err != nil {
		return common.Address{}, err
	}
	return addr, nil
}

func (b *Binding) call(ctx context.Context, out any, method string, args ...any) error {
	data, err := routerABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to pack %s: %w", method, err)
	}
	result, err := b.caller.CallContract(ctx, ethereum.CallMsg{To: &b.address, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", method, err)
	}
	values, err := routerABI.Unpack(method, result)
	if err != nil {
		return fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(values) != 1 {
		return fmt.Errorf("%s returned %d values", method, len(values))
	}
	return assign(out, values[0])
}

func assign(out, value any) error {
	switch dst := out.(type) {
	case *bool:
		v, ok := value.(bool)
		if !ok {
			return fmt.Errorf("unexpected %T", value)
		}
		*dst = v
	case *common.Address:
		v, ok := value.(common.Address)
		if !ok {
			return fmt.Errorf("unexpected %T", value)
		}
		*dst = v
	default:
		return fmt.Errorf("unsupported output %T", out)
	}
	return nil
}

// ParseSwapExecuted decodes a SwapExecuted log emitted by the router.
func ParseSwapExecuted(log types.Log) (*SwapExecuted, error) {
	event := routerABI.Events["SwapExecuted"]
	if len(log.Topics) != 4 || log.Topics[0] != event.ID {
		return nil, fmt.Errorf("log is not a SwapExecuted event")
	}

	values, err := event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack SwapExecuted: %w", err)
	}
	if len(values) != 6 {
		return nil, fmt.Errorf("SwapExecuted has %d data fields", len(values))
	}

	ev := &SwapExecuted{
		Router:    log.Address,
		Payer:     common.BytesToAddress(log.Topics[1].Bytes()),
		Recipient: common.BytesToAddress(log.Topics[2].Bytes()),
		TokenIn:   common.BytesToAddress(log.Topics[3].Bytes()),
	}
	var ok [6]bool
	ev.TokenOut, ok[0] = values[0].(common.Address)
	ev.AmountIn, ok[1] = values[1].(*big.Int)
	ev.AmountOut, ok[2] = values[2].(*big.Int)
	ev.Fee, ok[3] = values[3].(*big.Int)
	ev.Nonce, ok[4] = values[4].(*big.Int)
	ev.Memo, ok[5] = values[5].(string)
	for _, v := range ok {
		if !v {
			return nil, fmt.Errorf("SwapExecuted has unexpected field types")
		}
	}
	return ev, nil
}

// EncodeSwapExecuted builds the log the router emits for ev. Used by indexer tests and
// by tooling that replays in-process settlements.
func EncodeSwapExecuted(ev SwapExecuted) (types.Log, error) {
	event := routerABI.Events["SwapExecuted"]
	data, err := event.Inputs.NonIndexed().Pack(ev.TokenOut, ev.AmountIn, ev.AmountOut, ev.Fee, ev.Nonce, ev.Memo)
	if err != nil {
		return types.Log{}, fmt.Errorf("failed to pack SwapExecuted: %w", err)
	}
	return types.Log{
		Address: ev.Router,
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(ev.Payer.Bytes()),
			common.BytesToHash(ev.Recipient.Bytes()),
			common.BytesToHash(ev.TokenIn.Bytes()),
		},
		Data: data,
	}, nil
}
