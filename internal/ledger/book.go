package ledger

import (
	"fmt"

	"TaxPool/internal/model"

	"github.com/google/btree"
	"github.com/holiman/uint256"
)

// Holding is one non-zero token balance.
type Holding struct {
	Account model.Address
	Balance *uint256.Int
}

// book keeps token balances ordered by account so that the cumulative
// weight walk visits holders in the same order on every node and restart.
// Zero balances are removed; supply is the running sum.
type book struct {
	tree   *btree.BTreeG[Holding]
	supply *uint256.Int
}

func newBook() *book {
	return &book{
		tree:   btree.NewG[Holding](32, func(a, b Holding) bool { return a.Account < b.Account }),
		supply: new(uint256.Int),
	}
}

func (b *book) balanceOf(a model.Address) *uint256.Int {
	h, ok := b.tree.Get(Holding{Account: a})
	if !ok {
		return new(uint256.Int)
	}
	return model.Clone(h.Balance)
}

func (b *book) credit(a model.Address, amount *uint256.Int) {
	if model.Zero(amount) {
		return
	}
	bal := b.balanceOf(a)
	bal.Add(bal, amount)
	b.tree.ReplaceOrInsert(Holding{Account: a, Balance: bal})
	b.supply.Add(b.supply, amount)
}

func (b *book) debit(a model.Address, amount *uint256.Int) error {
	bal := b.balanceOf(a)
	if bal.Lt(amount) {
		return fmt.Errorf("%s holds %s, need %s: %w", a, bal.Dec(), amount.Dec(), model.ErrInsufficientBalance)
	}
	bal.Sub(bal, amount)
	if bal.IsZero() {
		b.tree.Delete(Holding{Account: a})
	} else {
		b.tree.ReplaceOrInsert(Holding{Account: a, Balance: bal})
	}
	b.supply.Sub(b.supply, amount)
	return nil
}

// pick returns the holder whose cumulative range [prev, prev+balance)
// contains index. index must be below supply.
func (b *book) pick(index *uint256.Int) (model.Address, bool) {
	var (
		cum    = new(uint256.Int)
		winner model.Address
		found  bool
	)
	b.tree.Ascend(func(h Holding) bool {
		cum.Add(cum, h.Balance)
		if index.Lt(cum) {
			winner, found = h.Account, true
			return false
		}
		return true
	})
	return winner, found
}

func (b *book) holdings() []Holding {
	out := make([]Holding, 0, b.tree.Len())
	b.tree.Ascend(func(h Holding) bool {
		out = append(out, Holding{Account: h.Account, Balance: model.Clone(h.Balance)})
		return true
	})
	return out
}
