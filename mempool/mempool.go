// Package mempool is the live, in-process view of unconfirmed
// transactions. Population (subscribing to the node's mempool feed,
// evicting mined/replaced transactions) is an external sync task; this
// package only holds the data and hands out consistent snapshots.
package mempool

import (
	"sort"
	"sync/atomic"

	"github.com/metaid/utxoquery/chain"
)

// RecentEntry is one row of the "recently added" mempool view.
type RecentEntry struct {
	Txid  chain.Txid
	Fee   uint64
	VSize uint32
	Value uint64
}

// MaxRecent bounds the /mempool/recent listing.
const MaxRecent = 10

type state struct {
	txs             map[chain.Txid]*chain.Transaction
	rawTxs          map[chain.Txid][]byte
	utxosByScript   map[chain.ScriptHash][]chain.Utxo
	spentByOutpoint map[chain.OutPoint]chain.SpendingInput
	historyByScript map[chain.ScriptHash][]chain.Txid
	fees            map[chain.Txid]uint64
	vsizes          map[chain.Txid]uint32
	order           []chain.Txid // arrival order, oldest first
}

func emptyState() *state {
	return &state{
		txs:             make(map[chain.Txid]*chain.Transaction),
		rawTxs:          make(map[chain.Txid][]byte),
		utxosByScript:   make(map[chain.ScriptHash][]chain.Utxo),
		spentByOutpoint: make(map[chain.OutPoint]chain.SpendingInput),
		historyByScript: make(map[chain.ScriptHash][]chain.Txid),
		fees:            make(map[chain.Txid]uint64),
		vsizes:          make(map[chain.Txid]uint32),
	}
}

// clone makes a shallow-enough copy for copy-on-write mutation: the
// top-level maps are rebuilt so a Snapshot taken before the mutation
// keeps seeing the old, unmodified maps.
func (s *state) clone() *state {
	n := &state{
		txs:             make(map[chain.Txid]*chain.Transaction, len(s.txs)),
		rawTxs:          make(map[chain.Txid][]byte, len(s.rawTxs)),
		utxosByScript:   make(map[chain.ScriptHash][]chain.Utxo, len(s.utxosByScript)),
		spentByOutpoint: make(map[chain.OutPoint]chain.SpendingInput, len(s.spentByOutpoint)),
		historyByScript: make(map[chain.ScriptHash][]chain.Txid, len(s.historyByScript)),
		fees:            make(map[chain.Txid]uint64, len(s.fees)),
		vsizes:          make(map[chain.Txid]uint32, len(s.vsizes)),
		order:           append([]chain.Txid(nil), s.order...),
	}
	for k, v := range s.txs {
		n.txs[k] = v
	}
	for k, v := range s.rawTxs {
		n.rawTxs[k] = v
	}
	for k, v := range s.utxosByScript {
		n.utxosByScript[k] = v
	}
	for k, v := range s.spentByOutpoint {
		n.spentByOutpoint[k] = v
	}
	for k, v := range s.historyByScript {
		n.historyByScript[k] = v
	}
	for k, v := range s.fees {
		n.fees[k] = v
	}
	for k, v := range s.vsizes {
		n.vsizes[k] = v
	}
	return n
}

// Mempool is the concrete MempoolView backing store.
type Mempool struct {
	ptr atomic.Pointer[state]
}

// New returns an empty mempool.
func New() *Mempool {
	m := &Mempool{}
	m.ptr.Store(emptyState())
	return m
}

// Snapshot takes the single read-guard a request needs: every method
// on the returned value sees the same, internally consistent view,
// even if the mempool is mutated concurrently afterwards.
func (m *Mempool) Snapshot() *Snapshot {
	return &Snapshot{s: m.ptr.Load()}
}

// ScriptOf resolves the owning script hash for an output, used when
// indexing a transaction's outputs by script.
func ScriptOf(pkScript []byte) chain.ScriptHash {
	return chain.ComputeScriptHash(pkScript)
}

// Add inserts or replaces a transaction in the mempool, indexing its
// outputs by script and marking the outputs it spends. fee and vsize
// come from the node's own mempool entry (bitcoind computes these; we
// don't re-derive them from prevout resolution here).
func (m *Mempool) Add(tx *chain.Transaction, raw []byte, outputScripts []chain.ScriptHash, fee uint64, vsize uint32) {
	for {
		old := m.ptr.Load()
		n := old.clone()

		txid := tx.TxHash()
		n.txs[txid] = tx
		n.rawTxs[txid] = raw
		n.fees[txid] = fee
		n.vsizes[txid] = vsize
		n.order = append(n.order, txid)

		for vout, txOut := range tx.TxOut {
			sh := outputScripts[vout]
			u := chain.Utxo{Txid: txid, Vout: uint32(vout), Value: uint64(txOut.Value)}
			n.utxosByScript[sh] = insertSorted(n.utxosByScript[sh], u)
			n.historyByScript[sh] = appendUnique(n.historyByScript[sh], txid)
		}
		for vin, txIn := range tx.TxIn {
			if chain.IsCoinbase(txIn) {
				continue
			}
			n.spentByOutpoint[txIn.PreviousOutPoint] = chain.SpendingInput{
				Txid: txid,
				Vin:  uint32(vin),
			}
		}

		if m.ptr.CompareAndSwap(old, n) {
			return
		}
	}
}

// Remove evicts a transaction (mined, replaced, or expired).
func (m *Mempool) Remove(txid chain.Txid) {
	for {
		old := m.ptr.Load()
		tx, ok := old.txs[txid]
		if !ok {
			return
		}
		n := old.clone()
		delete(n.txs, txid)
		delete(n.rawTxs, txid)
		delete(n.fees, txid)
		delete(n.vsizes, txid)
		for i, id := range n.order {
			if id == txid {
				n.order = append(n.order[:i], n.order[i+1:]...)
				break
			}
		}
		for vout := range tx.TxOut {
			op := chain.OutPoint{Hash: txid, Index: uint32(vout)}
			for sh, utxos := range n.utxosByScript {
				n.utxosByScript[sh] = removeOutpoint(utxos, op)
			}
		}
		for _, txIn := range tx.TxIn {
			delete(n.spentByOutpoint, txIn.PreviousOutPoint)
		}
		if m.ptr.CompareAndSwap(old, n) {
			return
		}
	}
}

func insertSorted(utxos []chain.Utxo, u chain.Utxo) []chain.Utxo {
	i := sort.Search(len(utxos), func(i int) bool {
		return !chain.OutPointLess(utxos[i].OutPointVal(), u.OutPointVal())
	})
	utxos = append(utxos, chain.Utxo{})
	copy(utxos[i+1:], utxos[i:])
	utxos[i] = u
	return utxos
}

func removeOutpoint(utxos []chain.Utxo, op chain.OutPoint) []chain.Utxo {
	for i, u := range utxos {
		if u.OutPointVal() == op {
			return append(utxos[:i], utxos[i+1:]...)
		}
	}
	return utxos
}

func appendUnique(ids []chain.Txid, id chain.Txid) []chain.Txid {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// Snapshot is a point-in-time, lock-free read view of the mempool.
type Snapshot struct {
	s *state
}

func (s *Snapshot) Tx(txid chain.Txid) (*chain.Transaction, bool) {
	tx, ok := s.s.txs[txid]
	return tx, ok
}

func (s *Snapshot) RawTx(txid chain.Txid) ([]byte, bool) {
	raw, ok := s.s.rawTxs[txid]
	return raw, ok
}

func (s *Snapshot) Utxo(sh chain.ScriptHash) []chain.Utxo {
	return s.s.utxosByScript[sh]
}

// IsSpent reports whether op is consumed by a mempool transaction.
func (s *Snapshot) IsSpent(op chain.OutPoint) (chain.SpendingInput, bool) {
	in, ok := s.s.spentByOutpoint[op]
	return in, ok
}

// HistoryTxids returns the unconfirmed transactions touching sh, in
// arrival order.
func (s *Snapshot) HistoryTxids(sh chain.ScriptHash) []chain.Txid {
	return s.s.historyByScript[sh]
}

func (s *Snapshot) Fee(txid chain.Txid) (uint64, bool) {
	f, ok := s.s.fees[txid]
	return f, ok
}

func (s *Snapshot) VSize(txid chain.Txid) (uint32, bool) {
	v, ok := s.s.vsizes[txid]
	return v, ok
}

func (s *Snapshot) TxCount() int {
	return len(s.s.order)
}

// Txids returns every mempool txid, arrival order.
func (s *Snapshot) Txids() []chain.Txid {
	return append([]chain.Txid(nil), s.s.order...)
}

// Recent returns up to MaxRecent most recently added transactions,
// newest first.
func (s *Snapshot) Recent() []RecentEntry {
	order := s.s.order
	n := len(order)
	limit := MaxRecent
	if n < limit {
		limit = n
	}
	out := make([]RecentEntry, 0, limit)
	for i := 0; i < limit; i++ {
		txid := order[n-1-i]
		tx := s.s.txs[txid]
		value := uint64(0)
		for _, o := range tx.TxOut {
			value += uint64(o.Value)
		}
		out = append(out, RecentEntry{
			Txid:  txid,
			Fee:   s.s.fees[txid],
			VSize: s.s.vsizes[txid],
			Value: value,
		})
	}
	return out
}

// LookupTxos resolves prevouts purely from in-mempool transactions.
func (s *Snapshot) LookupTxos(ops []chain.OutPoint) map[chain.OutPoint]chain.TxOut {
	out := make(map[chain.OutPoint]chain.TxOut, len(ops))
	for _, op := range ops {
		tx, ok := s.s.txs[op.Hash]
		if !ok || int(op.Index) >= len(tx.TxOut) {
			continue
		}
		out[op] = *tx.TxOut[op.Index]
	}
	return out
}
