// Package chainquery is the read-only view over the persisted chain
// index. Population of the store (block ingestion, reorg handling) is
// an external concern; this package only ever reads pebble and hands
// back domain types.
package chainquery

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/pebble"
	"github.com/metaid/utxoquery/chain"
)

// HistoryEntry is one confirmed appearance of a script in the chain.
type HistoryEntry struct {
	Txid  chain.Txid
	Block chain.BlockId
}

// ChainQuery is the read surface QueryEngine depends on. Everything
// here reflects confirmed chain state only; mempool state is layered
// on top by the caller.
type ChainQuery interface {
	TipHeight() (uint32, bool)
	Tip() (chain.BlockId, bool)
	BlockId(height uint32) (chain.BlockId, bool)
	BlockIdByHash(hash chainhash.Hash) (chain.BlockId, bool)

	Utxo(sh chain.ScriptHash) ([]chain.Utxo, error)
	UtxoPaginated(sh chain.ScriptHash, startIndex, limit int) (utxos []chain.Utxo, total int, err error)
	UtxoCursor(sh chain.ScriptHash, cursor *chain.OutPoint, limit int) (utxos []chain.Utxo, total int, next *chain.OutPoint, err error)

	ScriptStats(sh chain.ScriptHash) (chain.ScriptStats, error)
	HistoryTxids(sh chain.ScriptHash, lastSeen *chain.Txid, limit int) ([]HistoryEntry, error)
	BlockTxids(height uint32) ([]chain.Txid, error)

	LookupTxn(txid chain.Txid) (*chain.Transaction, *chain.BlockId, bool)
	LookupRawTxn(txid chain.Txid) ([]byte, *chain.BlockId, bool)
	LookupSpend(op chain.OutPoint) (chain.SpendingInput, bool)
	LookupTxos(ops []chain.OutPoint) (map[chain.OutPoint]chain.TxOut, error)

	AddressSearch(prefix string, limit int) ([]string, error)
}

// customLogger silences pebble's own internal logging; the store
// reports failures through its own callers instead.
type customLogger struct{}

func (customLogger) Infof(string, ...interface{})  {}
func (customLogger) Fatalf(string, ...interface{}) {}
func (customLogger) Errorf(string, ...interface{}) {}

// Store is a single-pebble-instance ChainQuery implementation.
type Store struct {
	db *pebble.DB
	mu sync.RWMutex // guards tip, refreshed by the external indexer via SetTip
	tipHeight uint32
	tipKnown  bool
}

var _ ChainQuery = (*Store)(nil)

// Open opens (or creates) the pebble database at dataDir.
func Open(dataDir string) (*Store, error) {
	opts := &pebble.Options{
		Logger: customLogger{},
	}
	db, err := pebble.Open(dataDir, opts)
	if err != nil {
		return nil, fmt.Errorf("chainquery: open %s: %w", dataDir, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying pebble handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetTip updates the cached tip height, called by the external
// indexer whenever a block is applied or rolled back.
func (s *Store) SetTip(height uint32) {
	s.mu.Lock()
	s.tipHeight = height
	s.tipKnown = true
	s.mu.Unlock()
}

func (s *Store) TipHeight() (uint32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tipHeight, s.tipKnown
}

// Tip returns the best known block, if any have been indexed yet.
func (s *Store) Tip() (chain.BlockId, bool) {
	height, ok := s.TipHeight()
	if !ok {
		return chain.BlockId{}, false
	}
	return s.BlockId(height)
}

func (s *Store) BlockId(height uint32) (chain.BlockId, bool) {
	v, closer, err := s.db.Get(blockByHeightKey(height))
	if err != nil {
		return chain.BlockId{}, false
	}
	defer closer.Close()
	return decodeBlockId(height, v), true
}

func (s *Store) BlockIdByHash(hash chainhash.Hash) (chain.BlockId, bool) {
	v, closer, err := s.db.Get(heightByHashKey(hash))
	if err != nil {
		return chain.BlockId{}, false
	}
	height := binary.BigEndian.Uint32(v)
	closer.Close()
	return s.BlockId(height)
}

func decodeBlockId(height uint32, v []byte) chain.BlockId {
	var hash chainhash.Hash
	copy(hash[:], v[0:32])
	t := binary.BigEndian.Uint32(v[32:36])
	return chain.BlockId{Hash: hash, Height: height, Time: t}
}

// PutBlockId records a confirmed block's header for later lookups.
// Called by the external indexer as blocks are applied.
func (s *Store) PutBlockId(b chain.BlockId) error {
	val := make([]byte, 0, 36)
	val = append(val, b.Hash[:]...)
	val = append(val, be32(b.Time)...)
	batch := s.db.NewBatch()
	if err := batch.Set(blockByHeightKey(b.Height), val, nil); err != nil {
		return err
	}
	if err := batch.Set(heightByHashKey(b.Hash), be32(b.Height), nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

// BlockTxids returns the ordered txid list of the block at height, if
// the external indexer recorded one via PutBlockTxids.
func (s *Store) BlockTxids(height uint32) ([]chain.Txid, error) {
	v, closer, err := s.db.Get(blockTxidsKey(height))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	if len(v)%32 != 0 {
		return nil, fmt.Errorf("chainquery: malformed block txids value")
	}
	out := make([]chain.Txid, len(v)/32)
	for i := range out {
		copy(out[i][:], v[i*32:i*32+32])
	}
	return out, nil
}

// PutBlockTxids records a block's ordered txid list. Called by the
// external indexer alongside PutBlockId.
func (s *Store) PutBlockTxids(height uint32, txids []chain.Txid) error {
	v := make([]byte, 0, len(txids)*32)
	for _, txid := range txids {
		v = append(v, txid[:]...)
	}
	return s.db.Set(blockTxidsKey(height), v, pebble.Sync)
}

func (s *Store) Utxo(sh chain.ScriptHash) ([]chain.Utxo, error) {
	prefix := utxoScriptPrefix(sh)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []chain.Utxo
	for iter.First(); iter.Valid(); iter.Next() {
		u, err := decodeUtxoEntry(sh, iter.Key(), iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, iter.Error()
}

func decodeUtxoEntry(sh chain.ScriptHash, key, val []byte) (chain.Utxo, error) {
	if len(key) != 1+32+32+4 {
		return chain.Utxo{}, fmt.Errorf("chainquery: malformed utxo key")
	}
	var txid chain.Txid
	copy(txid[:], key[1+32:1+32+32])
	vout := binary.BigEndian.Uint32(key[1+32+32:])
	if len(val) != 16 {
		return chain.Utxo{}, fmt.Errorf("chainquery: malformed utxo value")
	}
	value := binary.BigEndian.Uint64(val[0:8])
	height := binary.BigEndian.Uint32(val[8:12])
	t := binary.BigEndian.Uint32(val[12:16])
	var hash chainhash.Hash // block hash not stored inline; resolved lazily by height
	_ = hash
	return chain.Utxo{
		Txid:  txid,
		Vout:  vout,
		Value: value,
		Confirmed: &chain.BlockId{
			Height: height,
			Time:   t,
		},
	}, nil
}

// PutUtxo records an unspent output for a script. Called by the
// external indexer; height/time anchor the owning block.
func (s *Store) PutUtxo(sh chain.ScriptHash, txid chain.Txid, vout uint32, value uint64, height, blockTime uint32) error {
	val := make([]byte, 0, 16)
	val = append(val, be64(value)...)
	val = append(val, be32(height)...)
	val = append(val, be32(blockTime)...)
	return s.db.Set(utxoKey(sh, txid, vout), val, pebble.Sync)
}

// DeleteUtxo removes a spent output from the unspent set.
func (s *Store) DeleteUtxo(sh chain.ScriptHash, txid chain.Txid, vout uint32) error {
	return s.db.Delete(utxoKey(sh, txid, vout), pebble.Sync)
}

func (s *Store) UtxoPaginated(sh chain.ScriptHash, startIndex, limit int) ([]chain.Utxo, int, error) {
	all, err := s.Utxo(sh)
	if err != nil {
		return nil, 0, err
	}
	total := len(all)
	if startIndex >= total {
		return nil, total, nil
	}
	end := startIndex + limit
	if end > total {
		end = total
	}
	return all[startIndex:end], total, nil
}

func (s *Store) UtxoCursor(sh chain.ScriptHash, cursor *chain.OutPoint, limit int) ([]chain.Utxo, int, *chain.OutPoint, error) {
	prefix := utxoScriptPrefix(sh)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, 0, nil, err
	}
	defer iter.Close()

	total := 0
	for iter.First(); iter.Valid(); iter.Next() {
		total++
	}

	if cursor != nil {
		start := utxoKey(sh, cursor.Hash, cursor.Index)
		iter.SeekGE(start)
		if iter.Valid() && bytes.Equal(iter.Key(), start) {
			iter.Next()
		}
	} else {
		iter.First()
	}

	var out []chain.Utxo
	var next *chain.OutPoint
	for ; iter.Valid(); iter.Next() {
		if len(out) >= limit {
			if len(out) > 0 {
				op := out[len(out)-1].OutPointVal()
				next = &op
			}
			break
		}
		u, err := decodeUtxoEntry(sh, iter.Key(), iter.Value())
		if err != nil {
			return nil, 0, nil, err
		}
		out = append(out, u)
	}
	return out, total, next, iter.Error()
}

func (s *Store) ScriptStats(sh chain.ScriptHash) (chain.ScriptStats, error) {
	v, closer, err := s.db.Get(statsKey(sh))
	if err == pebble.ErrNotFound {
		return chain.ScriptStats{}, nil
	}
	if err != nil {
		return chain.ScriptStats{}, err
	}
	defer closer.Close()
	if len(v) != 40 {
		return chain.ScriptStats{}, fmt.Errorf("chainquery: malformed stats value")
	}
	return chain.ScriptStats{
		FundedTxoCount: binary.BigEndian.Uint64(v[0:8]),
		FundedTxoSum:   binary.BigEndian.Uint64(v[8:16]),
		SpentTxoCount:  binary.BigEndian.Uint64(v[16:24]),
		SpentTxoSum:    binary.BigEndian.Uint64(v[24:32]),
		TxCount:        binary.BigEndian.Uint64(v[32:40]),
	}, nil
}

// PutScriptStats overwrites the cached aggregate for a script.
func (s *Store) PutScriptStats(sh chain.ScriptHash, st chain.ScriptStats) error {
	v := make([]byte, 0, 40)
	v = append(v, be64(st.FundedTxoCount)...)
	v = append(v, be64(st.FundedTxoSum)...)
	v = append(v, be64(st.SpentTxoCount)...)
	v = append(v, be64(st.SpentTxoSum)...)
	v = append(v, be64(st.TxCount)...)
	return s.db.Set(statsKey(sh), v, pebble.Sync)
}

func (s *Store) HistoryTxids(sh chain.ScriptHash, lastSeen *chain.Txid, limit int) ([]HistoryEntry, error) {
	prefix := historyScriptPrefix(sh)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []HistoryEntry
	skipping := lastSeen != nil
	for iter.First(); iter.Valid() && len(out) < limit; iter.Next() {
		key := iter.Key()
		var txid chain.Txid
		copy(txid[:], key[1+32+4:1+32+4+32])
		if skipping {
			if txid == *lastSeen {
				skipping = false
			}
			continue
		}
		val := iter.Value()
		height := binary.BigEndian.Uint32(val[0:4])
		t := binary.BigEndian.Uint32(val[4:8])
		out = append(out, HistoryEntry{
			Txid:  txid,
			Block: chain.BlockId{Height: height, Time: t},
		})
	}
	return out, iter.Error()
}

// PutHistory records that txid touched script sh in the block at
// height/blockTime.
func (s *Store) PutHistory(sh chain.ScriptHash, txid chain.Txid, height, blockTime uint32) error {
	v := make([]byte, 0, 8)
	v = append(v, be32(height)...)
	v = append(v, be32(blockTime)...)
	return s.db.Set(historyKey(sh, height, txid), v, pebble.Sync)
}

func (s *Store) LookupTxn(txid chain.Txid) (*chain.Transaction, *chain.BlockId, bool) {
	raw, blockId, ok := s.LookupRawTxn(txid)
	if !ok {
		return nil, nil, false
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, nil, false
	}
	return tx, blockId, true
}

func (s *Store) LookupRawTxn(txid chain.Txid) ([]byte, *chain.BlockId, bool) {
	raw, closer, err := s.db.Get(txRawKey(txid))
	if err != nil {
		return nil, nil, false
	}
	out := append([]byte(nil), raw...)
	closer.Close()

	var blockId *chain.BlockId
	if bv, c2, err := s.db.Get(txBlockKey(txid)); err == nil {
		if len(bv) == 40 {
			height := binary.BigEndian.Uint32(bv[0:4])
			t := binary.BigEndian.Uint32(bv[4:8])
			var hash chainhash.Hash
			copy(hash[:], bv[8:40])
			blockId = &chain.BlockId{Hash: hash, Height: height, Time: t}
		}
		c2.Close()
	}
	return out, blockId, true
}

// PutTx stores a confirmed transaction's raw bytes and anchoring
// block.
func (s *Store) PutTx(txid chain.Txid, raw []byte, b chain.BlockId) error {
	batch := s.db.NewBatch()
	if err := batch.Set(txRawKey(txid), raw, nil); err != nil {
		return err
	}
	bv := make([]byte, 0, 40)
	bv = append(bv, be32(b.Height)...)
	bv = append(bv, be32(b.Time)...)
	bv = append(bv, b.Hash[:]...)
	if err := batch.Set(txBlockKey(txid), bv, nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

func (s *Store) LookupSpend(op chain.OutPoint) (chain.SpendingInput, bool) {
	v, closer, err := s.db.Get(spendKey(op.Hash, op.Index))
	if err != nil {
		return chain.SpendingInput{}, false
	}
	defer closer.Close()
	if len(v) != 32+4+4+4+32 {
		return chain.SpendingInput{}, false
	}
	var spendTxid chain.Txid
	copy(spendTxid[:], v[0:32])
	vin := binary.BigEndian.Uint32(v[32:36])
	height := binary.BigEndian.Uint32(v[36:40])
	t := binary.BigEndian.Uint32(v[40:44])
	var hash chainhash.Hash
	copy(hash[:], v[44:76])
	return chain.SpendingInput{
		Txid: spendTxid,
		Vin:  vin,
		Confirmed: &chain.BlockId{
			Hash:   hash,
			Height: height,
			Time:   t,
		},
	}, true
}

// PutSpend records that outpoint op was spent by (spendTxid, vin)
// inside block b.
func (s *Store) PutSpend(op chain.OutPoint, spendTxid chain.Txid, vin uint32, b chain.BlockId) error {
	v := make([]byte, 0, 32+4+4+4+32)
	v = append(v, spendTxid[:]...)
	v = append(v, be32(vin)...)
	v = append(v, be32(b.Height)...)
	v = append(v, be32(b.Time)...)
	v = append(v, b.Hash[:]...)
	return s.db.Set(spendKey(op.Hash, op.Index), v, pebble.Sync)
}

func (s *Store) LookupTxos(ops []chain.OutPoint) (map[chain.OutPoint]chain.TxOut, error) {
	out := make(map[chain.OutPoint]chain.TxOut, len(ops))
	seen := make(map[chain.Txid]*chain.Transaction)
	for _, op := range ops {
		tx, ok := seen[op.Hash]
		if !ok {
			var found bool
			tx, _, found = s.LookupTxn(op.Hash)
			seen[op.Hash] = tx
			if !found {
				continue
			}
		}
		if tx == nil {
			continue
		}
		if int(op.Index) >= len(tx.TxOut) {
			continue
		}
		out[op] = *tx.TxOut[op.Index]
	}
	return out, nil
}

// AddressSearch returns up to limit distinct address strings recorded
// via PutAddressText whose text begins with prefix, in lexical order.
func (s *Store) AddressSearch(prefix string, limit int) ([]string, error) {
	lower := addrTextPrefix(prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: prefixUpperBound(lower),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []string
	for iter.First(); iter.Valid() && len(out) < limit; iter.Next() {
		out = append(out, string(iter.Key()[1:]))
	}
	return out, iter.Error()
}

// PutAddressText records addr in the prefix-searchable address index.
// Called by the external indexer alongside PutHistory for every
// script it can decode to a standard address.
func (s *Store) PutAddressText(addr string) error {
	return s.db.Set(addrTextKey(addr), []byte{}, pebble.Sync)
}
