package chainquery

import (
	"path/filepath"
	"testing"

	"github.com/metaid/utxoquery/chain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "chain"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTipRoundTrip(t *testing.T) {
	s := openTestStore(t)
	if _, ok := s.TipHeight(); ok {
		t.Fatalf("expected no tip before SetTip")
	}
	if err := s.PutBlockId(chain.BlockId{Hash: chain.Txid{0x01}, Height: 5, Time: 100}); err != nil {
		t.Fatalf("PutBlockId: %v", err)
	}
	s.SetTip(5)

	height, ok := s.TipHeight()
	if !ok || height != 5 {
		t.Fatalf("TipHeight() = %d, %v; want 5, true", height, ok)
	}
	tip, ok := s.Tip()
	if !ok || tip.Height != 5 {
		t.Fatalf("Tip() = %+v, %v", tip, ok)
	}
}

func TestBlockIdByHash(t *testing.T) {
	s := openTestStore(t)
	hash := chain.Txid{0x02}
	if err := s.PutBlockId(chain.BlockId{Hash: hash, Height: 10, Time: 200}); err != nil {
		t.Fatalf("PutBlockId: %v", err)
	}
	got, ok := s.BlockIdByHash(hash)
	if !ok || got.Height != 10 {
		t.Fatalf("BlockIdByHash() = %+v, %v; want height 10", got, ok)
	}
}

func TestUtxoLifecycle(t *testing.T) {
	s := openTestStore(t)
	sh := chain.ComputeScriptHash([]byte{0xaa})
	txid := chain.Txid{0x03}

	if err := s.PutUtxo(sh, txid, 0, 5000, 100, 1700000000); err != nil {
		t.Fatalf("PutUtxo: %v", err)
	}
	utxos, err := s.Utxo(sh)
	if err != nil {
		t.Fatalf("Utxo: %v", err)
	}
	if len(utxos) != 1 || utxos[0].Value != 5000 {
		t.Fatalf("unexpected utxo set: %+v", utxos)
	}

	if err := s.DeleteUtxo(sh, txid, 0); err != nil {
		t.Fatalf("DeleteUtxo: %v", err)
	}
	utxos, err = s.Utxo(sh)
	if err != nil {
		t.Fatalf("Utxo after delete: %v", err)
	}
	if len(utxos) != 0 {
		t.Fatalf("expected no utxos after delete, got %+v", utxos)
	}
}

func TestUtxoPaginated(t *testing.T) {
	s := openTestStore(t)
	sh := chain.ComputeScriptHash([]byte{0xbb})
	for i := 0; i < 5; i++ {
		txid := chain.Txid{byte(i + 1)}
		if err := s.PutUtxo(sh, txid, 0, uint64(i), 1, 0); err != nil {
			t.Fatalf("PutUtxo(%d): %v", i, err)
		}
	}

	page1, total, err := s.UtxoPaginated(sh, 0, 2)
	if err != nil {
		t.Fatalf("UtxoPaginated: %v", err)
	}
	if total != 5 || len(page1) != 2 {
		t.Fatalf("page1 = %+v, total=%d; want 2 items, total 5", page1, total)
	}

	tail, total, err := s.UtxoPaginated(sh, 4, 2)
	if err != nil {
		t.Fatalf("UtxoPaginated tail: %v", err)
	}
	if total != 5 || len(tail) != 1 {
		t.Fatalf("tail page = %+v, total=%d; want 1 item, total 5", tail, total)
	}
}

func TestUtxoCursorPaginatesInOrder(t *testing.T) {
	s := openTestStore(t)
	sh := chain.ComputeScriptHash([]byte{0xcc})
	for i := 0; i < 3; i++ {
		txid := chain.Txid{byte(i + 1)}
		if err := s.PutUtxo(sh, txid, 0, uint64(i), 1, 0); err != nil {
			t.Fatalf("PutUtxo(%d): %v", i, err)
		}
	}

	var cursor *chain.OutPoint
	var seen []chain.Utxo
	for i := 0; i < 10; i++ {
		page, total, next, err := s.UtxoCursor(sh, cursor, 1)
		if err != nil {
			t.Fatalf("UtxoCursor: %v", err)
		}
		if total != 3 {
			t.Fatalf("expected total 3, got %d", total)
		}
		seen = append(seen, page...)
		if next == nil {
			break
		}
		cursor = next
	}
	if len(seen) != 3 {
		t.Fatalf("expected to page through all 3 utxos, saw %d", len(seen))
	}
}

func TestScriptStatsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	sh := chain.ComputeScriptHash([]byte{0xdd})
	want := chain.ScriptStats{FundedTxoCount: 2, FundedTxoSum: 1000, SpentTxoCount: 1, SpentTxoSum: 400, TxCount: 2}
	if err := s.PutScriptStats(sh, want); err != nil {
		t.Fatalf("PutScriptStats: %v", err)
	}
	got, err := s.ScriptStats(sh)
	if err != nil {
		t.Fatalf("ScriptStats: %v", err)
	}
	if got != want {
		t.Fatalf("ScriptStats() = %+v, want %+v", got, want)
	}
}

func TestScriptStatsMissingIsZeroValue(t *testing.T) {
	s := openTestStore(t)
	sh := chain.ComputeScriptHash([]byte{0xee})
	got, err := s.ScriptStats(sh)
	if err != nil {
		t.Fatalf("ScriptStats: %v", err)
	}
	if got != (chain.ScriptStats{}) {
		t.Fatalf("expected zero-value stats for an unseen script, got %+v", got)
	}
}

func TestHistoryTxidsDescendingHeight(t *testing.T) {
	s := openTestStore(t)
	sh := chain.ComputeScriptHash([]byte{0xff})
	txidLow := chain.Txid{0x01}
	txidHigh := chain.Txid{0x02}
	if err := s.PutHistory(sh, txidLow, 100, 0); err != nil {
		t.Fatalf("PutHistory: %v", err)
	}
	if err := s.PutHistory(sh, txidHigh, 200, 0); err != nil {
		t.Fatalf("PutHistory: %v", err)
	}

	entries, err := s.HistoryTxids(sh, nil, 10)
	if err != nil {
		t.Fatalf("HistoryTxids: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Txid != txidHigh {
		t.Fatalf("expected the higher block first, got %+v", entries[0])
	}
}

func TestTxAndSpendRoundTrip(t *testing.T) {
	s := openTestStore(t)
	txid := chain.Txid{0x10}
	raw := []byte{0xde, 0xad, 0xbe, 0xef}
	block := chain.BlockId{Hash: chain.Txid{0x20}, Height: 42, Time: 12345}

	if err := s.PutTx(txid, raw, block); err != nil {
		t.Fatalf("PutTx: %v", err)
	}
	gotRaw, gotBlock, ok := s.LookupRawTxn(txid)
	if !ok {
		t.Fatalf("expected raw tx to be found")
	}
	if string(gotRaw) != string(raw) {
		t.Fatalf("raw tx mismatch")
	}
	if gotBlock == nil || gotBlock.Height != 42 {
		t.Fatalf("unexpected block anchor: %+v", gotBlock)
	}

	spendTxid := chain.Txid{0x30}
	op := chain.OutPoint{Hash: txid, Index: 0}
	if err := s.PutSpend(op, spendTxid, 1, block); err != nil {
		t.Fatalf("PutSpend: %v", err)
	}
	spend, ok := s.LookupSpend(op)
	if !ok || spend.Txid != spendTxid || spend.Vin != 1 {
		t.Fatalf("unexpected spend: %+v, ok=%v", spend, ok)
	}
}

func TestBlockTxidsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	if txids, err := s.BlockTxids(7); err != nil || txids != nil {
		t.Fatalf("expected nil, nil before any write; got %v, %v", txids, err)
	}

	want := []chain.Txid{{0x01}, {0x02}, {0x03}}
	if err := s.PutBlockTxids(7, want); err != nil {
		t.Fatalf("PutBlockTxids: %v", err)
	}
	got, err := s.BlockTxids(7)
	if err != nil {
		t.Fatalf("BlockTxids: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("BlockTxids() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("BlockTxids()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAddressSearchMatchesPrefixInLexicalOrder(t *testing.T) {
	s := openTestStore(t)
	for _, addr := range []string{"1BoatSLRHtKNngkdXEeobR76b53LETtpyT", "1BoatAAA", "1Other"} {
		if err := s.PutAddressText(addr); err != nil {
			t.Fatalf("PutAddressText(%q): %v", addr, err)
		}
	}

	got, err := s.AddressSearch("1Boat", 10)
	if err != nil {
		t.Fatalf("AddressSearch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("AddressSearch(%q) = %v, want 2 matches", "1Boat", got)
	}
	for _, addr := range got {
		if len(addr) < 5 || addr[:5] != "1Boat" {
			t.Fatalf("AddressSearch returned a non-matching address: %q", addr)
		}
	}
}

func TestAddressSearchRespectsLimit(t *testing.T) {
	s := openTestStore(t)
	for _, addr := range []string{"addrA", "addrB", "addrC"} {
		if err := s.PutAddressText(addr); err != nil {
			t.Fatalf("PutAddressText(%q): %v", addr, err)
		}
	}

	got, err := s.AddressSearch("addr", 2)
	if err != nil {
		t.Fatalf("AddressSearch: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("AddressSearch limit 2 returned %d results", len(got))
	}
}
