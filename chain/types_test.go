package chain

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

func hashFromByte(b byte) chainhash.Hash {
	var h chainhash.Hash
	h[0] = b
	return h
}

func TestTxidLess(t *testing.T) {
	a := hashFromByte(0x01)
	b := hashFromByte(0x02)
	if !TxidLess(a, b) {
		t.Fatalf("expected %x < %x", a, b)
	}
	if TxidLess(b, a) {
		t.Fatalf("expected %x not < %x", b, a)
	}
	if TxidLess(a, a) {
		t.Fatalf("expected equal hashes to not be less")
	}
}

func TestOutPointLess(t *testing.T) {
	lo := hashFromByte(0x01)
	hi := hashFromByte(0x02)
	cases := []struct {
		name string
		a, b OutPoint
		want bool
	}{
		{"lower hash wins", OutPoint{Hash: lo, Index: 5}, OutPoint{Hash: hi, Index: 0}, true},
		{"same hash lower index wins", OutPoint{Hash: lo, Index: 0}, OutPoint{Hash: lo, Index: 1}, true},
		{"same hash higher index loses", OutPoint{Hash: lo, Index: 2}, OutPoint{Hash: lo, Index: 1}, false},
		{"identical", OutPoint{Hash: lo, Index: 1}, OutPoint{Hash: lo, Index: 1}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := OutPointLess(c.a, c.b); got != c.want {
				t.Fatalf("OutPointLess(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
			}
		})
	}
}

func TestComputeScriptHashDeterministic(t *testing.T) {
	script := []byte{0x76, 0xa9, 0x14}
	a := ComputeScriptHash(script)
	b := ComputeScriptHash(script)
	if a != b {
		t.Fatalf("ComputeScriptHash not deterministic: %x != %x", a, b)
	}
	other := ComputeScriptHash([]byte{0x00})
	if a == other {
		t.Fatalf("distinct scripts hashed to the same value")
	}
}

func TestIsCoinbase(t *testing.T) {
	coinbaseIn := &wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: 0xffffffff},
	}
	if !IsCoinbase(coinbaseIn) {
		t.Fatalf("expected coinbase input to be detected")
	}

	normalIn := &wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: hashFromByte(0x01), Index: 0},
	}
	if IsCoinbase(normalIn) {
		t.Fatalf("expected normal input to not be coinbase")
	}
}

func TestNewTransactionStatus(t *testing.T) {
	if got := NewTransactionStatus(nil); got.Confirmed {
		t.Fatalf("expected unconfirmed status for nil block")
	}

	h := hashFromByte(0x09)
	b := &BlockId{Hash: h, Height: 100, Time: 123}
	status := NewTransactionStatus(b)
	if !status.Confirmed {
		t.Fatalf("expected confirmed status")
	}
	if status.BlockHeight == nil || *status.BlockHeight != 100 {
		t.Fatalf("unexpected block height: %+v", status.BlockHeight)
	}
	if status.BlockHash == nil || *status.BlockHash != h {
		t.Fatalf("unexpected block hash: %+v", status.BlockHash)
	}
}

func TestScriptStatsAdd(t *testing.T) {
	a := ScriptStats{FundedTxoCount: 1, FundedTxoSum: 100, TxCount: 1}
	b := ScriptStats{FundedTxoCount: 2, FundedTxoSum: 200, SpentTxoCount: 1, SpentTxoSum: 50, TxCount: 2}
	a.Add(b)
	want := ScriptStats{FundedTxoCount: 3, FundedTxoSum: 300, SpentTxoCount: 1, SpentTxoSum: 50, TxCount: 3}
	if a != want {
		t.Fatalf("Add() = %+v, want %+v", a, want)
	}
}
