package settlement

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Transfer moves Amount of Token from From to To.
type Transfer struct {
	Token  common.Address
	From   common.Address
	To     common.Address
	Amount *big.Int
}

// InsufficientFundsError reports the first transfer of a batch that could not be covered.
type InsufficientFundsError struct {
	Token  common.Address
	Holder common.Address
	Have   *big.Int
	Want   *big.Int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("holder %s has %s of token %s, needs %s", e.Holder.Hex(), e.Have, e.Token.Hex(), e.Want)
}

// Ledger is an in-memory set of ERC-20 balances. Batches apply atomically.
type Ledger struct {
	mu       sync.Mutex
	balances map[common.Address]map[common.Address]*big.Int // token -> holder -> balance
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[common.Address]map[common.Address]*big.Int)}
}

// Mint credits amount of token to holder.
func (l *Ledger) Mint(token, to common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.set(token, to, new(big.Int).Add(l.get(token, to), amount))
}

// BalanceOf returns a copy of holder's balance of token.
func (l *Ledger) BalanceOf(token, holder common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.get(token, holder))
}

// Apply executes transfers in order. If any transfer overdraws its sender, given the
// transfers before it, nothing is applied.
func (l *Ledger) Apply(transfers ...Transfer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	type key struct{ token, holder common.Address }
	pending := make(map[key]*big.Int)
	balance := func(k key) *big.Int {
		if b, ok := pending[k]; ok {
			return b
		}
		b := new(big.Int).Set(l.get(k.token, k.holder))
		pending[k] = b
		return b
	}

	for _, t := range transfers {
		if t.Amount == nil || t.Amount.Sign() < 0 {
			return fmt.Errorf("invalid transfer amount %v", t.Amount)
		}
		from := balance(key{t.Token, t.From})
		if from.Cmp(t.Amount) < 0 {
			return &InsufficientFundsError{Token: t.Token, Holder: t.From, Have: new(big.Int).Set(from), Want: new(big.Int).Set(t.Amount)}
		}
		from.Sub(from, t.Amount)
		to := balance(key{t.Token, t.To})
		to.Add(to, t.Amount)
	}

	for k, b := range pending {
		l.set(k.token, k.holder, b)
	}
	return nil
}

func (l *Ledger) get(token, holder common.Address) *big.Int {
	if b, ok := l.balances[token][holder]; ok {
		return b
	}
	return new(big.Int)
}

func (l *Ledger) set(token, holder common.Address, amount *big.Int) {
	holders, ok := l.balances[token]
	if !ok {
		holders = make(map[common.Address]*big.Int)
		l.balances[token] = holders
	}
	holders[holder] = amount
}
