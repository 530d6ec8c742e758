package ledger

import (
	"errors"
	"testing"

	"TaxPool/internal/model"

	"github.com/holiman/uint256"
)

func TestBook_PickCumulativeRanges(t *testing.T) {
	b := newBook()
	b.credit("carol", uint256.NewInt(5))
	b.credit("alice", uint256.NewInt(10))
	b.credit("bob", uint256.NewInt(20))

	if b.supply.Uint64() != 35 {
		t.Fatalf("supply = %d", b.supply.Uint64())
	}

	// ascending by address: alice [0,10), bob [10,30), carol [30,35)
	tests := []struct {
		index uint64
		want  model.Address
	}{
		{0, "alice"},
		{9, "alice"},
		{10, "bob"},
		{29, "bob"},
		{30, "carol"},
		{34, "carol"},
	}
	for _, tt := range tests {
		got, ok := b.pick(uint256.NewInt(tt.index))
		if !ok || got != tt.want {
			t.Errorf("pick(%d) = %q, %v; want %q", tt.index, got, ok, tt.want)
		}
	}
	if _, ok := b.pick(uint256.NewInt(35)); ok {
		t.Error("pick(supply) should find nobody")
	}
}

func TestBook_DebitRemovesEmptyHoldings(t *testing.T) {
	b := newBook()
	b.credit("alice", uint256.NewInt(10))
	b.credit("alice", uint256.NewInt(0))

	if err := b.debit("alice", uint256.NewInt(11)); !errors.Is(err, model.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := b.debit("alice", uint256.NewInt(10)); err != nil {
		t.Fatal(err)
	}
	if b.tree.Len() != 0 || !b.supply.IsZero() {
		t.Errorf("book not empty: %d holders, supply %s", b.tree.Len(), b.supply.Dec())
	}
	if err := b.debit("nobody", uint256.NewInt(1)); !errors.Is(err, model.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestBook_BalanceIsCopy(t *testing.T) {
	b := newBook()
	b.credit("alice", uint256.NewInt(10))

	bal := b.balanceOf("alice")
	bal.SetUint64(1000)
	if got := b.balanceOf("alice").Uint64(); got != 10 {
		t.Errorf("balance mutated through copy: %d", got)
	}
}
