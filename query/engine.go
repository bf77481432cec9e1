// Package query implements the merge between the persistent chain
// index and the live mempool view: every read here reconciles both so
// callers never see an output as both spent and unspent.
package query

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/metaid/utxoquery/apierr"
	"github.com/metaid/utxoquery/chain"
	"github.com/metaid/utxoquery/chainquery"
	"github.com/metaid/utxoquery/daemon"
	"github.com/metaid/utxoquery/feecache"
	"github.com/metaid/utxoquery/mempool"
)

const txoCacheSize = 10000

// daemonClient is the subset of daemon.Gateway the engine and the REST
// layer need to broadcast transactions, fetch a raw transaction the
// local stores lack, and report chain-wide totals. Narrowing it to an
// interface lets tests exercise BroadcastRaw's mempool-materialization
// logic without a live RPC connection.
type daemonClient interface {
	BroadcastRaw(rawHex string) (chain.Txid, error)
	MempoolEntryFor(txid chain.Txid) (daemon.MempoolEntry, error)
	TotalCoinSupply() (amount float64, height int64, blockHash string, err error)
	GetRawTransactionHex(txid chain.Txid) (string, error)
}

// Engine merges chain and mempool state into one queryable surface.
type Engine struct {
	Chain   chainquery.ChainQuery
	Pool    *mempool.Mempool
	Daemon  daemonClient
	Fees    *feecache.Cache
	Regtest bool

	txoCache *lru.Cache
}

// New wires a query engine from its four collaborators: the chain
// index, the mempool, the daemon and the fee cache.
func New(chainQuery chainquery.ChainQuery, pool *mempool.Mempool, gw daemonClient, fees *feecache.Cache, regtest bool) *Engine {
	cache, _ := lru.New(txoCacheSize)
	return &Engine{Chain: chainQuery, Pool: pool, Daemon: gw, Fees: fees, Regtest: regtest, txoCache: cache}
}

// Snapshot takes the single mempool read-guard a request needs; every
// Engine read method below takes it as a parameter rather than reaching
// back into Pool, so one guard covers the whole request.
func (e *Engine) Snapshot() *mempool.Snapshot {
	return e.Pool.Snapshot()
}

// HistEntry is one entry in a merged (confirmed + unconfirmed) history
// listing. Block is nil for unconfirmed entries.
type HistEntry struct {
	Txid  chain.Txid
	Block *chain.BlockId
}

func spentInMempool(snap *mempool.Snapshot, u chain.Utxo) bool {
	_, spent := snap.IsSpent(u.OutPointVal())
	return spent
}

func filterUnspent(snap *mempool.Snapshot, utxos []chain.Utxo) []chain.Utxo {
	out := utxos[:0:0]
	for _, u := range utxos {
		if !spentInMempool(snap, u) {
			out = append(out, u)
		}
	}
	return out
}

// Utxo returns every unspent output for a script: confirmed outputs
// not yet spent in the mempool, plus unconfirmed outputs.
func (e *Engine) Utxo(snap *mempool.Snapshot, sh chain.ScriptHash) ([]chain.Utxo, error) {
	chainUtxos, err := e.Chain.Utxo(sh)
	if err != nil {
		return nil, err
	}
	out := filterUnspent(snap, chainUtxos)
	out = append(out, filterUnspent(snap, snap.Utxo(sh))...)
	return out, nil
}

// UtxoPaginated is the offset-based listing: total is an approximate,
// not-yet-mempool-adjusted count (chain total plus every mempool
// utxo), matching the same approximation the cursor variant makes.
func (e *Engine) UtxoPaginated(snap *mempool.Snapshot, sh chain.ScriptHash, startIndex, limit int) (utxos []chain.Utxo, total int, err error) {
	chainUtxos, totalChain, err := e.Chain.UtxoPaginated(sh, startIndex, limit)
	if err != nil {
		return nil, 0, err
	}
	out := filterUnspent(snap, chainUtxos)

	mempoolAll := snap.Utxo(sh)
	if len(out) < limit {
		remaining := limit - len(out)
		for _, u := range mempoolAll {
			if remaining == 0 {
				break
			}
			if spentInMempool(snap, u) {
				continue
			}
			out = append(out, u)
			remaining--
		}
	}
	return out, totalChain + len(mempoolAll), nil
}

// UtxoCursor is the cursor-based listing. The page continues into the
// mempool only when the chain page comes back short and the chain
// store reports no further chain entries. A nil next cursor therefore
// means no further page follows from this one; when the chain page is
// filled exactly by the chain's last entries, next is nil even if
// mempool utxos remain; a request that passes the last chain outpoint
// as cursor resumes at the first mempool utxo ordered after that
// outpoint. There is no separate "chain
// drained, mempool not yet visited" sentinel; see DESIGN.md.
func (e *Engine) UtxoCursor(snap *mempool.Snapshot, sh chain.ScriptHash, cursor *chain.OutPoint, limit int) (utxos []chain.Utxo, total int, next *chain.OutPoint, err error) {
	chainUtxos, totalChain, chainNext, err := e.Chain.UtxoCursor(sh, cursor, limit)
	if err != nil {
		return nil, 0, nil, err
	}
	out := filterUnspent(snap, chainUtxos)

	mempoolAll := snap.Utxo(sh)
	total = totalChain + len(mempoolAll)

	if len(out) >= limit || chainNext != nil {
		if chainNext != nil {
			next = chainNext
		}
		return out, total, next, nil
	}

	// Chain is drained for this script; continue into the mempool
	// ordering from wherever the cursor left off.
	start := 0
	if cursor != nil {
		start = sort.Search(len(mempoolAll), func(i int) bool {
			op := mempoolAll[i].OutPointVal()
			return chain.OutPointLess(*cursor, op)
		})
	}

	remaining := limit - len(out)
	for i := start; i < len(mempoolAll); i++ {
		u := mempoolAll[i]
		if spentInMempool(snap, u) {
			continue
		}
		if remaining == 0 {
			op := out[len(out)-1].OutPointVal()
			next = &op
			break
		}
		out = append(out, u)
		remaining--
	}
	return out, total, next, nil
}

// ScriptStats returns the confirmed and unconfirmed aggregates for a
// script separately; callers that want a flattened balance combine
// them explicitly the way the REST layer's balance endpoints do.
func (e *Engine) ScriptStats(snap *mempool.Snapshot, sh chain.ScriptHash) (chainStats, mempoolStats chain.ScriptStats, err error) {
	chainStats, err = e.Chain.ScriptStats(sh)
	if err != nil {
		return chain.ScriptStats{}, chain.ScriptStats{}, err
	}

	seenTxids := make(map[chain.Txid]struct{})
	for _, u := range snap.Utxo(sh) {
		mempoolStats.FundedTxoCount++
		mempoolStats.FundedTxoSum += u.Value
		seenTxids[u.Txid] = struct{}{}
		if spend, spent := snap.IsSpent(u.OutPointVal()); spent {
			mempoolStats.SpentTxoCount++
			mempoolStats.SpentTxoSum += u.Value
			seenTxids[spend.Txid] = struct{}{}
		}
	}
	chainUtxos, err := e.Chain.Utxo(sh)
	if err != nil {
		return chain.ScriptStats{}, chain.ScriptStats{}, err
	}
	for _, u := range chainUtxos {
		if spend, spent := snap.IsSpent(u.OutPointVal()); spent {
			mempoolStats.SpentTxoCount++
			mempoolStats.SpentTxoSum += u.Value
			seenTxids[spend.Txid] = struct{}{}
		}
	}
	mempoolStats.TxCount = uint64(len(seenTxids))
	return chainStats, mempoolStats, nil
}

// HistoryTxids returns confirmed history first, then unconfirmed
// entries, up to limit entries total.
func (e *Engine) HistoryTxids(snap *mempool.Snapshot, sh chain.ScriptHash, lastSeen *chain.Txid, limit int) ([]HistEntry, error) {
	chainEntries, err := e.Chain.HistoryTxids(sh, lastSeen, limit)
	if err != nil {
		return nil, err
	}
	out := make([]HistEntry, 0, limit)
	for _, ce := range chainEntries {
		block := ce.Block
		out = append(out, HistEntry{Txid: ce.Txid, Block: &block})
	}
	if len(out) >= limit {
		return out, nil
	}

	mempoolIds := snap.HistoryTxids(sh)
	for i := len(mempoolIds) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, HistEntry{Txid: mempoolIds[i], Block: nil})
	}
	return out, nil
}

// LookupTxn returns a transaction and its confirming block (nil if
// unconfirmed), checking the chain store before the mempool.
func (e *Engine) LookupTxn(snap *mempool.Snapshot, txid chain.Txid) (*chain.Transaction, *chain.BlockId, bool) {
	if tx, block, ok := e.Chain.LookupTxn(txid); ok {
		return tx, block, true
	}
	tx, ok := snap.Tx(txid)
	return tx, nil, ok
}

// LookupRawTxn is LookupTxn without deserializing the transaction.
func (e *Engine) LookupRawTxn(snap *mempool.Snapshot, txid chain.Txid) ([]byte, *chain.BlockId, bool) {
	if raw, block, ok := e.Chain.LookupRawTxn(txid); ok {
		return raw, block, true
	}
	raw, ok := snap.RawTx(txid)
	return raw, nil, ok
}

// LookupSpend reports the input spending op, if any, checking
// confirmed spends before mempool ones.
func (e *Engine) LookupSpend(snap *mempool.Snapshot, op chain.OutPoint) (chain.SpendingInput, bool) {
	if in, ok := e.Chain.LookupSpend(op); ok {
		return in, ok
	}
	return snap.IsSpent(op)
}

// LookupTxSpends reports, for every output of txid, the input that
// spends it (nil if unspent or unspendable). Lookups run in parallel
// since they're independent of one another.
func (e *Engine) LookupTxSpends(snap *mempool.Snapshot, txid chain.Txid, outs []*chain.TxOut) []*chain.SpendingInput {
	result := make([]*chain.SpendingInput, len(outs))
	var wg sync.WaitGroup
	for i, out := range outs {
		if !chain.IsSpendable(out.PkScript) {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if in, ok := e.LookupSpend(snap, chain.OutPoint{Hash: txid, Index: uint32(i)}); ok {
				result[i] = &in
			}
		}(i)
	}
	wg.Wait()
	return result
}

// LookupTxos resolves the TxOut for each requested outpoint, preferring
// the mempool (new or still-unconfirmed outputs) and falling back to
// a small LRU-cached chain lookup. A requested outpoint that resolves
// nowhere is a fatal inconsistency, not a silently incomplete result:
// it means a spend or prevout reference points at an output this index
// never recorded, so it's surfaced as an internal error rather than
// dropped from the returned map.
func (e *Engine) LookupTxos(snap *mempool.Snapshot, ops []chain.OutPoint) (map[chain.OutPoint]chain.TxOut, error) {
	out := snap.LookupTxos(ops)
	var remaining []chain.OutPoint
	for _, op := range ops {
		if _, ok := out[op]; ok {
			continue
		}
		if v, ok := e.txoCache.Get(op); ok {
			out[op] = v.(chain.TxOut)
			continue
		}
		remaining = append(remaining, op)
	}
	if len(remaining) > 0 {
		resolved, err := e.Chain.LookupTxos(remaining)
		if err != nil {
			return nil, err
		}
		for op, txOut := range resolved {
			out[op] = txOut
			e.txoCache.Add(op, txOut)
		}
	}

	if len(out) != len(ops) {
		for _, op := range ops {
			if _, ok := out[op]; !ok {
				return nil, apierr.Internalf("query: missing txo for outpoint %s:%d", op.Hash, op.Index)
			}
		}
	}
	return out, nil
}

// GetTxStatus reports a transaction's confirmation status.
func (e *Engine) GetTxStatus(snap *mempool.Snapshot, txid chain.Txid) (chain.TransactionStatus, bool) {
	_, block, ok := e.LookupTxn(snap, txid)
	if !ok {
		return chain.TransactionStatus{}, false
	}
	return chain.NewTransactionStatus(block), true
}

// GetMempoolTxFee returns the fee of an unconfirmed transaction, as
// reported by the node when it entered the mempool.
func (e *Engine) GetMempoolTxFee(snap *mempool.Snapshot, txid chain.Txid) (uint64, bool) {
	return snap.Fee(txid)
}

// HasUnconfirmedParents reports whether any input of an unconfirmed
// transaction itself spends another unconfirmed transaction.
func (e *Engine) HasUnconfirmedParents(snap *mempool.Snapshot, txid chain.Txid) bool {
	tx, ok := snap.Tx(txid)
	if !ok {
		return false
	}
	for _, in := range tx.TxIn {
		if chain.IsCoinbase(in) {
			continue
		}
		if _, ok := snap.Tx(in.PreviousOutPoint.Hash); ok {
			return true
		}
	}
	return false
}

// BroadcastRaw submits a raw transaction to the node and, before
// returning, folds it into the local mempool view itself so a
// subsequent read in the same process sees it immediately rather than
// waiting on the external sync task's next poll. The tx can't be found
// by looking the txid back up (it exists in neither the chain store
// nor the mempool yet — that lookup would always miss); it has to be
// decoded from rawHex directly, the same way postTxsTest does.
func (e *Engine) BroadcastRaw(rawHex string) (chain.Txid, error) {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return chain.Txid{}, fmt.Errorf("query: decode raw tx: %w", err)
	}
	var tx chain.Transaction
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return chain.Txid{}, fmt.Errorf("query: deserialize raw tx: %w", err)
	}

	txid, err := e.Daemon.BroadcastRaw(rawHex)
	if err != nil {
		return chain.Txid{}, err
	}

	scripts := make([]chain.ScriptHash, len(tx.TxOut))
	for i, o := range tx.TxOut {
		scripts[i] = chain.ComputeScriptHash(o.PkScript)
	}
	entry, err := e.Daemon.MempoolEntryFor(txid)
	if err != nil {
		entry = daemon.MempoolEntry{}
	}
	e.Pool.Add(&tx, raw, scripts, entry.Fee, entry.VSize)
	return txid, nil
}

// EstimateFee returns the fee rate for confirmation within target
// blocks.
func (e *Engine) EstimateFee(target uint16) (float64, bool) {
	return e.Fees.EstimateFee(target)
}

// EstimateFeeMap returns every recognized target's fee rate.
func (e *Engine) EstimateFeeMap() chain.FeeEstimates {
	return e.Fees.EstimateFeeMap()
}

// GetTotalCoinSupply reports the chain's total unspent value.
func (e *Engine) GetTotalCoinSupply() (amount float64, height int64, blockHash string, err error) {
	amount, height, blockHash, err = e.Daemon.TotalCoinSupply()
	if err != nil {
		return 0, 0, "", fmt.Errorf("query: total coin supply: %w", err)
	}
	return amount, height, blockHash, nil
}
